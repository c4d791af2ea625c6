package executor

import (
	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/blockgraph"
	"github.com/brandonshearin/vcgraph/common"
	"github.com/brandonshearin/vcgraph/edgebuffer"
	"github.com/brandonshearin/vcgraph/message"
)

// MapEdge calls fn(u, v) for every directed edge u->v rooted in block,
// draining sub-blocks off edgeBuf's ready-queue as the Reader makes
// them resident rather than waiting for the whole block to finish
// reading first (spec.md §4.4). Unlike MapVertex, the unit of dispatch
// is a sub-block rather than an arbitrary vertex range: each sub-block's
// CSR slice is contiguous, and only the EdgeBuffer knows which
// sub-blocks are currently resident.
//
// A dispatch failure on one sub-block does not stop the others from
// running; the first error is returned once the block's sentinel has
// been observed and every dispatched sub-block's task has completed.
func (e *Executor) MapEdge(g *blockgraph.BlockGraph, edgeBuf *edgebuffer.EdgeBuffer, block common.BlockID, fn message.EdgeFunc, sync func()) error {
	err := e.drainEdges(edgeBuf, block, func(sub common.SubBlockID) error {
		return walkSubBlock(g, sub, fn)
	})

	sync()

	return err
}

// walkSubBlock reconstructs each vertex's adjacency slice within sub by
// walking a running degree countdown from sub.BeginID, then calls fn
// for every edge. This is the CSR decode spec.md §3 describes: offsets
// are never stored per-vertex, only recovered by summing degrees.
func walkSubBlock(g *blockgraph.BlockGraph, sub common.SubBlockID, fn message.EdgeFunc) error {
	meta, ok := g.SubBlock(sub)
	if !ok {
		return xerrors.Errorf("walkSubBlock: %w: unknown sub-block %d", common.ErrProtocolViolation, sub)
	}
	edges, resident := g.ResidentEdges(sub)
	if !resident {
		return xerrors.Errorf("walkSubBlock: %w: sub-block %d is not buffer-resident", common.ErrProtocolViolation, sub)
	}

	var local common.EdgeIndex
	for v := meta.BeginID; v < meta.EndID; v++ {
		degree := common.EdgeIndex(g.OutDegree(v))
		for _, nbr := range edges[local : local+degree] {
			if err := fn(v, nbr); err != nil {
				return xerrors.Errorf("MapEdge(%d,%d): %w", v, nbr, err)
			}
		}
		local += degree
	}
	return nil
}
