package executor

import (
	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/common"
	"github.com/brandonshearin/vcgraph/message"
)

// MapVertex calls fn(v) for every vertex v in [beginID, endID), spread
// across the worker pool in chunks of at least e.taskSize, then calls
// sync (the VertexState's Sync) once every chunk has returned, per
// spec.md §4.4.
//
// A vertex with degree 0 still gets exactly one call to fn, since
// MapVertex never looks at edges at all — only MapEdge's dispatch is
// shaped by which vertices have adjacency.
func (e *Executor) MapVertex(beginID, endID common.VertexID, fn message.VertexFunc, sync func()) error {
	total := uint32(endID - beginID)
	chunks := e.chunks(total)

	err := e.runChunks(chunks, func(start, end uint32) error {
		for i := start; i < end; i++ {
			if err := fn(beginID + common.VertexID(i)); err != nil {
				return xerrors.Errorf("MapVertex(%d): %w", beginID+common.VertexID(i), err)
			}
		}
		return nil
	})

	// Sync runs even when a kernel failed partway through a chunk: the
	// chunks that did complete already wrote into write[], and leaving
	// read[] stale would make a subsequent abort's diagnostics report a
	// pre-superstep state that never actually held.
	sync()

	return err
}
