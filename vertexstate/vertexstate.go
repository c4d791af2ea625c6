// Package vertexstate holds the two parallel read/write arrays kernels
// operate on during a superstep (spec.md §3, §4.5) and the atomic
// combining writers concurrent tasks must use when correctness requires
// a monoidal combine.
//
// The Read/Write/Sync shape is a direct port of
// nvme/update_stores/nvme_update_store.h's PramNvmeUpdateStore: two heap
// arrays plus a memcpy-on-Sync, generalized from its C++ template over
// VertexData to a Go generic over common.VertexData. Go's sync/atomic
// package has no compare-and-swap primitive narrower than 32 bits, so
// (unlike the original's per-width atomic intrinsics) this uses one
// striped-mutex path for all three widths — spec.md §9 explicitly notes
// the original "deliberately refuses to prescribe a specific intrinsic"
// for the float add case, and a mutex stripe is the uniform equivalent
// the generic signature needs for u16 as well as u32/f32.
package vertexstate

import (
	"sync"

	"github.com/brandonshearin/vcgraph/common"
)

// stripeCount bounds lock contention on WriteMin/WriteMax/WriteAdd
// without needing one mutex per vertex.
const stripeCount = 256

// VertexState is the read/write array pair for one run of the engine,
// sized by the graph's total vertex count.
type VertexState[T common.VertexData] struct {
	read  []T
	write []T

	stripes [stripeCount]sync.Mutex

	// readOnlySync suppresses the write-into-read copy on Sync, for
	// algorithms declared read-only-sync (graph coloring; spec.md §4.5,
	// Open Questions). With it set, Read keeps returning the values
	// read[] was seeded with, and writes stay in write[] only.
	readOnlySync bool
}

// New allocates read/write arrays of size numVertices, both initialized
// to init(v) for each vertex id — e.g. WCC/MST seed write[v]=v, SSSP
// seeds write[v]=+Inf, coloring seeds write[v]=0.
func New[T common.VertexData](numVertices uint64, readOnlySync bool, init func(v common.VertexID) T) *VertexState[T] {
	vs := &VertexState[T]{
		read:         make([]T, numVertices),
		write:        make([]T, numVertices),
		readOnlySync: readOnlySync,
	}
	for i := range vs.write {
		val := init(common.VertexID(i))
		vs.read[i] = val
		vs.write[i] = val
	}
	return vs
}

func (vs *VertexState[T]) stripe(v common.VertexID) *sync.Mutex {
	return &vs.stripes[uint64(v)%stripeCount]
}

// Read returns v's value from the read array. Safe to call concurrently
// with writes to the write array; read[] is immutable between syncs.
func (vs *VertexState[T]) Read(v common.VertexID) T { return vs.read[v] }

// Write overwrites v's value in the write array with "last writer wins"
// semantics: safe for initialization and for kernels whose combine is
// idempotent assignment, unsafe otherwise (spec.md §4.4).
func (vs *VertexState[T]) Write(v common.VertexID, val T) { vs.write[v] = val }

// WriteMin atomically sets write[v] = min(write[v], val).
func (vs *VertexState[T]) WriteMin(v common.VertexID, val T) {
	m := vs.stripe(v)
	m.Lock()
	if val < vs.write[v] {
		vs.write[v] = val
	}
	m.Unlock()
}

// WriteMax atomically sets write[v] = max(write[v], val).
func (vs *VertexState[T]) WriteMax(v common.VertexID, val T) {
	m := vs.stripe(v)
	m.Lock()
	if val > vs.write[v] {
		vs.write[v] = val
	}
	m.Unlock()
}

// WriteAdd atomically sets write[v] += val.
func (vs *VertexState[T]) WriteAdd(v common.VertexID, val T) {
	m := vs.stripe(v)
	m.Lock()
	vs.write[v] += val
	m.Unlock()
}

// Sync copies write[] over read[], unless the state was constructed
// with readOnlySync, in which case it does nothing (spec.md §4.5). Sync
// is called single-threaded, between map calls; it establishes the
// happens-before edge spec.md §5 requires from one superstep's writes
// to the next superstep's reads.
func (vs *VertexState[T]) Sync() {
	if vs.readOnlySync {
		return
	}
	copy(vs.read, vs.write)
}

// Len returns the number of vertices this state was sized for.
func (vs *VertexState[T]) Len() int { return len(vs.write) }
