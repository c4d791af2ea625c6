// Package message defines the tagged-union Message that flows across the
// MessageHub between the Scheduler, Reader, Executor and Writer, plus the
// kernel function types the map primitives dispatch.
//
// This is the Go-idiomatic rendering of the C union in the original
// engine's message.h: a single discriminated struct with one typed
// constructor per variant, rather than a real union, so that every
// caller builds messages through the same narrow surface.
package message

import (
	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/common"
)

// Kind discriminates which of the three request/response shapes a
// Message carries.
type Kind int

const (
	KindRead Kind = iota + 1
	KindExecute
	KindWrite
)

func (k Kind) String() string {
	switch k {
	case KindRead:
		return "ReadMessage"
	case KindExecute:
		return "ExecuteMessage"
	case KindWrite:
		return "WriteMessage"
	default:
		return "UnknownMessageType"
	}
}

// ExecutePhase is the "kind ∈ {Deserialize, Compute, Serialize}" field
// spec.md §3 attaches to every ExecuteMessage.
type ExecutePhase int

const (
	PhaseDeserialize ExecutePhase = iota + 1
	PhaseCompute
	PhaseSerialize
)

// MapKind selects which of the three map primitives an ExecuteMessage's
// Compute phase is latched to for the duration of a map call.
type MapKind int

const (
	MapNone MapKind = iota
	MapVertex
	MapEdge
	MapEdgeAndMutate
)

func (m MapKind) String() string {
	switch m {
	case MapVertex:
		return "MapVertex"
	case MapEdge:
		return "MapEdge"
	case MapEdgeAndMutate:
		return "MapEdgeAndMutate"
	default:
		return "Default"
	}
}

// VertexFunc is the per-vertex kernel MapVertex dispatches.
type VertexFunc func(v common.VertexID) error

// EdgeFunc is the per-edge kernel MapEdge dispatches.
type EdgeFunc func(u, v common.VertexID) error

// EdgeMutateFunc is the per-edge kernel MapEdgeAndMutate dispatches; a
// true return marks the edge (u,v) for deletion.
type EdgeMutateFunc func(u, v common.VertexID) (bool, error)

// ReadRequest asks the Reader to fetch every active sub-block of Block.
type ReadRequest struct {
	Block      common.BlockID
	Generation int // selects index.bin vs index.bin.new, per mutation generation
}

// ReadResponse is the Reader's reply once every sub-block of Block has
// completed (or the read failed fatally).
type ReadResponse struct {
	Block     common.BlockID
	BytesRead uint64
	Err       error
}

// ExecuteRequest asks the Executor to run one phase of a map call
// against Block.
type ExecuteRequest struct {
	Block          common.BlockID
	Phase          ExecutePhase
	Map            MapKind
	VertexFn       VertexFunc
	EdgeFn         EdgeFunc
	EdgeMutateFn   EdgeMutateFunc
	FirstOfMapCall bool
}

// ExecuteResponse is the Executor's reply once it has finished the
// requested phase for Block.
type ExecuteResponse struct {
	Block          common.BlockID
	Map            MapKind
	FirstOfMapCall bool
	Err            error
}

// WriteRequest asks the Writer to serialize Block's mutated CSR to its
// `.new` sibling files.
type WriteRequest struct {
	Block common.BlockID
}

// WriteResponse is the Writer's reply once Block has been flushed to
// disk (or the write failed fatally).
type WriteResponse struct {
	Block        common.BlockID
	BytesWritten uint64
	Err          error
}

// Message is the tagged union pushed through the MessageHub's four
// queues. On the Reader/Executor/Writer queues, exactly one of the
// Read/Execute/Write request fields is meaningful, selected by Kind; on
// the shared Response queue, the matching ReadResp/ExecuteResp/WriteResp
// field is meaningful instead. Terminated, when set, tells the
// receiving worker to shut down instead of processing a payload.
type Message struct {
	Kind       Kind
	Terminated bool

	Read    ReadRequest
	Execute ExecuteRequest
	Write   WriteRequest

	ReadResp    ReadResponse
	ExecuteResp ExecuteResponse
	WriteResp   WriteResponse
}

// ReadMsg wraps a ReadRequest as a Message.
func ReadMsg(req ReadRequest) Message { return Message{Kind: KindRead, Read: req} }

// ExecuteMsg wraps an ExecuteRequest as a Message.
func ExecuteMsg(req ExecuteRequest) Message { return Message{Kind: KindExecute, Execute: req} }

// WriteMsg wraps a WriteRequest as a Message.
func WriteMsg(req WriteRequest) Message { return Message{Kind: KindWrite, Write: req} }

// ReadRespMsg wraps a ReadResponse as a Message for the Response queue.
func ReadRespMsg(resp ReadResponse) Message { return Message{Kind: KindRead, ReadResp: resp} }

// ExecuteRespMsg wraps an ExecuteResponse as a Message for the Response queue.
func ExecuteRespMsg(resp ExecuteResponse) Message {
	return Message{Kind: KindExecute, ExecuteResp: resp}
}

// WriteRespMsg wraps a WriteResponse as a Message for the Response queue.
func WriteRespMsg(resp WriteResponse) Message { return Message{Kind: KindWrite, WriteResp: resp} }

// Terminate returns a sentinel Message of the given Kind; workers shut
// down upon receiving one instead of looking at the payload.
func Terminate(k Kind) Message { return Message{Kind: k, Terminated: true} }

// ErrWrongKind is returned by a worker's Run loop when a Message of
// another Kind arrives on its queue — a ProtocolViolation-class logic
// bug.
var ErrWrongKind = xerrors.New("message: wrong kind for accessor")
