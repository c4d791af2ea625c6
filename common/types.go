// Package common holds the identifier types, numeric constraints and
// sentinel error kinds shared by every package in the engine.
package common

import "golang.org/x/xerrors"

// VertexID identifies a vertex within the whole graph, independent of
// which block currently owns it.
type VertexID uint32

// BlockID identifies one of the graph's on-disk blocks.
type BlockID uint32

// SubBlockID identifies a sub-block within a block.
type SubBlockID uint32

// ReadyQueueSentinel is pushed onto an EdgeBuffer ready-queue to mean
// "this block's reads are all issued, drain any remaining residents".
const ReadyQueueSentinel SubBlockID = 0xFFFFFFFF

// EdgeIndex counts or offsets edges within a block or sub-block.
type EdgeIndex uint64

// VertexData is the set of vertex-data element types the engine supports.
// Algorithms pick exactly one of these for a given run (WCC/MST/coloring
// use u32, SSSP/BFS-depth use u32, GNN feature scalars use f32, narrow
// counters use u16).
type VertexData interface {
	~uint16 | ~uint32 | ~float32
}

// Error kinds recognized by the core, per spec.md §7. There is no local
// recovery for any of them: the owning goroutine logs context and the
// engine aborts.
var (
	// ErrFatalIO covers failed opens, negative completions and short
	// reads with no remaining bytes to resubmit.
	ErrFatalIO = xerrors.New("fatal I/O error")

	// ErrBudgetInvariant is raised when EdgeBuffer.Apply is called after
	// IsEnough returned false and no eviction can free enough space —
	// a logic bug in the caller, never a runtime condition to recover
	// from.
	ErrBudgetInvariant = xerrors.New("edge buffer budget invariant violated")

	// ErrProtocolViolation is raised when the ready-queue yields a
	// sub-block id that does not belong to the block currently being
	// executed.
	ErrProtocolViolation = xerrors.New("ready-queue yielded a sub-block owned by another block")

	// ErrMalformedMetadata is raised by metadata.Load when meta.yaml is
	// absent or missing a required field.
	ErrMalformedMetadata = xerrors.New("malformed graph metadata")
)

// ParseByteSize parses a byte-budget string with an optional G or M
// suffix (case-insensitive), as used by the --buffer_size CLI flag
// described in spec.md §6. A bare number is interpreted as bytes.
func ParseByteSize(s string) (uint64, error) {
	if s == "" {
		return 0, xerrors.Errorf("parse byte size %q: %w", s, ErrMalformedMetadata)
	}

	mult := uint64(1)
	suffix := s[len(s)-1]
	switch suffix {
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	}

	var n uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, xerrors.Errorf("parse byte size %q: not a number", s)
		}
		n = n*10 + uint64(r-'0')
	}
	return n * mult, nil
}
