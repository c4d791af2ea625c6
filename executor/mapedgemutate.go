package executor

import (
	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/blockgraph"
	"github.com/brandonshearin/vcgraph/common"
	"github.com/brandonshearin/vcgraph/edgebuffer"
	"github.com/brandonshearin/vcgraph/message"
)

// MapEdgeAndMutate calls fn(u, v) for every directed edge u->v rooted in
// block, same ready-queue-driven dispatch as MapEdge, but fn
// additionally returns whether the edge should be deleted. Deletions
// are recorded into bitmap at the edge's global offset within the block
// rather than applied in place: each sub-block's task only ever marks
// bits inside its own offset range, so no synchronization is needed
// across tasks, and the Writer applies the bitmap when it rewrites the
// block's CSR (spec.md §4.4, §4.6).
//
// bitmap must already be sized for the block's full edge count (see
// NewDeletionBitmap); callers get one DeletionBitmap per block, not per
// call, since a block's mutation generation only advances once all its
// sub-blocks have been visited.
func (e *Executor) MapEdgeAndMutate(g *blockgraph.BlockGraph, edgeBuf *edgebuffer.EdgeBuffer, block common.BlockID, fn message.EdgeMutateFunc, bitmap *DeletionBitmap, sync func()) error {
	err := e.drainEdges(edgeBuf, block, func(sub common.SubBlockID) error {
		return walkSubBlockMutate(g, sub, fn, bitmap)
	})

	sync()

	return err
}

func walkSubBlockMutate(g *blockgraph.BlockGraph, sub common.SubBlockID, fn message.EdgeMutateFunc, bitmap *DeletionBitmap) error {
	meta, ok := g.SubBlock(sub)
	if !ok {
		return xerrors.Errorf("walkSubBlockMutate: %w: unknown sub-block %d", common.ErrProtocolViolation, sub)
	}
	edges, resident := g.ResidentEdges(sub)
	if !resident {
		return xerrors.Errorf("walkSubBlockMutate: %w: sub-block %d is not buffer-resident", common.ErrProtocolViolation, sub)
	}

	global := uint64(meta.BeginOffset)
	var local common.EdgeIndex
	for v := meta.BeginID; v < meta.EndID; v++ {
		degree := common.EdgeIndex(g.OutDegree(v))
		for _, nbr := range edges[local : local+degree] {
			del, err := fn(v, nbr)
			if err != nil {
				return xerrors.Errorf("MapEdgeAndMutate(%d,%d): %w", v, nbr, err)
			}
			if del {
				bitmap.Mark(global)
			}
			global++
		}
		local += degree
	}
	return nil
}
