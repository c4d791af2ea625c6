// Package hub implements the MessageHub: the four blocking queues that
// decouple the Scheduler from the Reader, Executor and Writer workers
// (spec.md §4.6). Workers never call each other directly; they push
// onto their own output queue and block on their own input queue,
// breaking the ownership cycle described in spec.md §9 ("Cyclic
// ownership").
//
// The queue discipline mirrors pipeline.Pipeline's per-stage channel
// wiring in the teacher package this was adapted from: one Go channel
// per queue, Push a send into a buffered channel, PopOrWait
// a plain receive that parks the calling goroutine until a producer
// sends or the queue is closed.
package hub

import "github.com/brandonshearin/vcgraph/message"

// queueDepth bounds how many in-flight messages a queue holds before a
// Push blocks; it only needs to be large enough that Push from the
// Scheduler's single goroutine never contends with a slow consumer,
// since nothing in this design relies on Push being instantaneous.
const queueDepth = 64

// Queue is a FIFO channel of Messages with closed-channel semantics:
// once Close is called, a drained PopOrWait returns ok=false.
type Queue struct {
	ch chan message.Message
}

func newQueue() *Queue {
	return &Queue{ch: make(chan message.Message, queueDepth)}
}

// Push enqueues msg. Push never blocks in practice (the buffer is sized
// for the single-producer-per-queue topology this engine uses) but will
// block rather than drop if the buffer is ever exhausted — silent drops
// would violate the "exactly once" delivery spec.md §8 requires.
func (q *Queue) Push(msg message.Message) { q.ch <- msg }

// PopOrWait blocks until a message is available or the queue is closed,
// in which case ok is false.
func (q *Queue) PopOrWait() (msg message.Message, ok bool) {
	msg, ok = <-q.ch
	return msg, ok
}

// Close signals that no further messages will be pushed. Workers ranging
// over PopOrWait results exit cleanly once the queue drains.
func (q *Queue) Close() { close(q.ch) }

// MessageHub owns the reader/executor/writer/response queues that the
// Scheduler drives and the three long-lived workers consume.
type MessageHub struct {
	Reader   *Queue
	Executor *Queue
	Writer   *Queue
	Response *Queue
}

// New allocates an empty MessageHub with all four queues ready for use.
func New() *MessageHub {
	return &MessageHub{
		Reader:   newQueue(),
		Executor: newQueue(),
		Writer:   newQueue(),
		Response: newQueue(),
	}
}

// Shutdown pushes a terminate-flagged sentinel of the matching Kind onto
// the reader, executor and writer queues. Each worker's loop observes
// the flag at the top of its next iteration and returns, per spec.md
// §4.1 "Termination".
func (h *MessageHub) Shutdown() {
	h.Reader.Push(message.Terminate(message.KindRead))
	h.Executor.Push(message.Terminate(message.KindExecute))
	h.Writer.Push(message.Terminate(message.KindWrite))
}
