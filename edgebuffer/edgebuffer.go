// Package edgebuffer implements the EdgeBuffer: the memory-budget
// enforcement and readiness-signalling layer between the Reader and the
// Executor (spec.md §4.2).
//
// It follows the same single-mutex-plus-condition-variable discipline
// bspgraph/message.inMemoryQueue uses for its vertex mailboxes in the
// teacher package this was adapted from — one lock guarding a small set
// of flags and a slice acting as a queue — generalized here to a FIFO
// (readiness must be observed in completion order, per spec.md §4.2)
// and to a whole-buffer byte budget instead of a single queue's length.
package edgebuffer

import (
	"sync"

	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/common"
)

// Key identifies one sub-block within the whole engine.
type Key struct {
	Block common.BlockID
	Sub   common.SubBlockID
}

// ReadyEntry is one item popped off the ready-queue: either a concrete
// sub-block that just became resident, or the per-block sentinel
// meaning "this block's reads are all issued, drain any remaining
// residents" (spec.md §4.2).
type ReadyEntry struct {
	Key      Key
	Sentinel bool
}

type subState struct {
	reading   bool
	inMemory  bool
	finished  bool
	sizeBytes uint64
}

// EdgeBuffer enforces a fixed byte budget for edge data across however
// many sub-blocks are concurrently being read or held resident.
type EdgeBuffer struct {
	mu    sync.Mutex
	cond  *sync.Cond
	budget uint64
	used   uint64

	states map[Key]*subState
	ready  []ReadyEntry
}

// New allocates an EdgeBuffer with the given byte budget. A budget of 0
// means "unbounded" (spec.md §6's --in_memory flag): IsEnough always
// reports true and eviction never happens.
func New(budgetBytes uint64) *EdgeBuffer {
	b := &EdgeBuffer{
		budget: budgetBytes,
		states: make(map[Key]*subState),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *EdgeBuffer) unbounded() bool { return b.budget == 0 }

// Register records a sub-block's immutable byte size before it is ever
// read. Calling Register more than once for the same key is a no-op.
func (b *EdgeBuffer) Register(key Key, sizeBytes uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.states[key]; ok {
		return
	}
	b.states[key] = &subState{sizeBytes: sizeBytes}
}

// IsEnough reports whether key could be admitted right now without
// exceeding the budget. Callers should treat a false result as "wait on
// the condition that Finish signals", not as a permanent refusal.
func (b *EdgeBuffer) IsEnough(key Key) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isEnoughLocked(key)
}

func (b *EdgeBuffer) isEnoughLocked(key Key) bool {
	if b.unbounded() {
		return true
	}
	s := b.states[key]
	if s == nil {
		return false
	}
	return b.used+s.sizeBytes <= b.budget
}

// Apply debits the budget and marks key as being read. The caller must
// have observed IsEnough(key) true (or be willing to block here until
// Finish calls elsewhere make it true); calling Apply when it can never
// become true is the ErrBudgetInvariant logic bug spec.md §7 describes.
func (b *EdgeBuffer) Apply(key Key) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.states[key]
	if s == nil {
		return xerrors.Errorf("apply %+v: %w: sub-block was never registered", key, common.ErrBudgetInvariant)
	}

	for !b.unbounded() && b.used+s.sizeBytes > b.budget {
		if !b.unbounded() && s.sizeBytes > b.budget {
			return xerrors.Errorf("apply %+v: %w: sub-block alone exceeds the budget", key, common.ErrBudgetInvariant)
		}
		b.cond.Wait()
	}

	s.reading = true
	b.used += s.sizeBytes
	return nil
}

// PushLoaded marks key as resident (the Reader's read for it has
// completed) and enqueues it on the ready-queue for the Executor.
func (b *EdgeBuffer) PushLoaded(key Key) {
	b.mu.Lock()
	s := b.states[key]
	if s != nil {
		s.inMemory = true
		s.reading = false
	}
	b.ready = append(b.ready, ReadyEntry{Key: key})
	b.cond.Broadcast()
	b.mu.Unlock()
}

// PushSentinel enqueues the per-block "drain remaining residents"
// marker for block, once the Reader has issued every read for it.
func (b *EdgeBuffer) PushSentinel(block common.BlockID) {
	b.mu.Lock()
	b.ready = append(b.ready, ReadyEntry{Key: Key{Block: block, Sub: common.ReadyQueueSentinel}, Sentinel: true})
	b.cond.Broadcast()
	b.mu.Unlock()
}

// PopReady blocks until an entry is available and returns it.
func (b *EdgeBuffer) PopReady() ReadyEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.ready) == 0 {
		b.cond.Wait()
	}
	e := b.ready[0]
	b.ready = b.ready[1:]
	return e
}

// TryPopReady returns the next ready entry without blocking, or ok=false
// if the queue is currently empty.
func (b *EdgeBuffer) TryPopReady() (ReadyEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ready) == 0 {
		return ReadyEntry{}, false
	}
	e := b.ready[0]
	b.ready = b.ready[1:]
	return e, true
}

// Finish declares key fully consumed by the Executor: its edge buffer
// may be freed, its budget refunded, and waiters on Apply woken.
func (b *EdgeBuffer) Finish(key Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.states[key]
	if s == nil || !s.inMemory {
		return
	}
	s.inMemory = false
	s.finished = true
	b.used -= s.sizeBytes
	b.cond.Broadcast()
}

// ReleaseAll tears down every sub-block belonging to block, used by the
// Scheduler between rounds to free all of a finished block's edge data
// (spec.md §4.2). keep, if non-nil, is a single sub-block to spare from
// release. The Scheduler always passes nil: its ShortCut mode spares a
// whole block by not calling ReleaseAll for it at all.
func (b *EdgeBuffer) ReleaseAll(block common.BlockID, keep *common.SubBlockID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, s := range b.states {
		if key.Block != block {
			continue
		}
		if keep != nil && key.Sub == *keep {
			continue
		}
		if s.inMemory {
			b.used -= s.sizeBytes
		}
		s.inMemory = false
		s.reading = false
		s.finished = true
	}
	b.cond.Broadcast()
}

// BytesUsed returns the buffer's current debit, for tests asserting the
// budget invariant in spec.md §8.
func (b *EdgeBuffer) BytesUsed() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// State reports the {reading, in_memory, finished} triple for key, for
// tests asserting the per-sub-block state machine.
func (b *EdgeBuffer) State(key Key) (reading, inMemory, finished bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.states[key]
	if s == nil {
		return false, false, false
	}
	return s.reading, s.inMemory, s.finished
}
