package executor

import (
	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/blockgraph"
	"github.com/brandonshearin/vcgraph/common"
	"github.com/brandonshearin/vcgraph/edgebuffer"
	"github.com/brandonshearin/vcgraph/hub"
	"github.com/brandonshearin/vcgraph/message"
)

// BitmapSink receives a block's completed MapEdgeAndMutate deletion
// bitmap so whoever rewrites the block's CSR (the Writer) can consult
// it. Kept as a narrow interface rather than a direct dependency on the
// writer package, since writer.Writer already needs to import this
// package for DeletionBitmap itself — a direct back-reference would
// cycle.
type BitmapSink interface {
	SetBitmap(block common.BlockID, bitmap *DeletionBitmap)
}

// Worker is the fourth long-lived thread spec.md §5 names: it drains
// ExecuteRequests off the MessageHub and dispatches them onto the pool,
// one block at a time. The pool itself (Executor) stays reusable and
// stateless between requests; Worker is what turns "MapEdge over this
// block" into a single ExecuteResponse.
//
// For MapEdge/MapEdgeAndMutate, handle does not wait for the Reader to
// finish the block first: it hands edgeBuf straight to the pool, which
// drains the block's sub-blocks off the ready-queue as the Reader fills
// it and calls EdgeBuffer.Finish on each as it is consumed. That is what
// lets a block bigger than the configured EdgeBufferBudget still make
// progress instead of deadlocking on a budget nothing would otherwise
// refund.
//
// Per-block MapVertex/MapEdge/MapEdgeAndMutate calls dispatched here
// never invoke the caller's real VertexState.Sync: that must run
// exactly once per round, after every block in the round reaches
// Computed, which only the Scheduler can observe. Worker always passes
// a no-op sync and lets the Scheduler call the real one centrally.
type Worker struct {
	hub     *hub.MessageHub
	pool    *Executor
	graphs  map[common.BlockID]*blockgraph.BlockGraph
	edgeBuf *edgebuffer.EdgeBuffer
	sink    BitmapSink
}

// NewWorker constructs a Worker over the given pool and block views.
// sink may be nil if the engine never runs MapEdgeAndMutate.
func NewWorker(h *hub.MessageHub, pool *Executor, graphs map[common.BlockID]*blockgraph.BlockGraph, edgeBuf *edgebuffer.EdgeBuffer, sink BitmapSink) *Worker {
	return &Worker{hub: h, pool: pool, graphs: graphs, edgeBuf: edgeBuf, sink: sink}
}

// Run drains the Executor queue until it observes a terminate-flagged
// message, handling one ExecuteRequest at a time.
func (w *Worker) Run() error {
	for {
		msg, ok := w.hub.Executor.PopOrWait()
		if !ok || msg.Terminated {
			return nil
		}
		if msg.Kind != message.KindExecute {
			return xerrors.Errorf("executor: %w: got %s message on execute queue", message.ErrWrongKind, msg.Kind)
		}

		resp := w.handle(msg.Execute)
		w.hub.Response.Push(message.ExecuteRespMsg(resp))
	}
}

func (w *Worker) handle(req message.ExecuteRequest) message.ExecuteResponse {
	g, ok := w.graphs[req.Block]
	if !ok {
		return message.ExecuteResponse{Block: req.Block, Map: req.Map, Err: xerrors.Errorf("executor: %w: unknown block %d", common.ErrProtocolViolation, req.Block)}
	}

	noop := func() {}

	var err error
	switch req.Map {
	case message.MapEdge:
		err = w.pool.MapEdge(g, w.edgeBuf, req.Block, req.EdgeFn, noop)
	case message.MapEdgeAndMutate:
		bitmap := NewDeletionBitmap(totalEdges(g))
		err = w.pool.MapEdgeAndMutate(g, w.edgeBuf, req.Block, req.EdgeMutateFn, bitmap, noop)
		if err == nil && w.sink != nil {
			w.sink.SetBitmap(req.Block, bitmap)
		}
	case message.MapVertex:
		meta := g.Meta()
		err = w.pool.MapVertex(meta.BeginID, meta.EndID, req.VertexFn, noop)
	default:
		err = xerrors.Errorf("executor: %w: ExecuteRequest for block %d carries no map kind", common.ErrProtocolViolation, req.Block)
	}

	if err != nil {
		return message.ExecuteResponse{Block: req.Block, Map: req.Map, FirstOfMapCall: req.FirstOfMapCall, Err: err}
	}
	return message.ExecuteResponse{Block: req.Block, Map: req.Map, FirstOfMapCall: req.FirstOfMapCall}
}

func totalEdges(g *blockgraph.BlockGraph) uint64 {
	var n uint64
	for _, s := range g.Meta().SubBlocks {
		n += uint64(g.SubBlockEdgeCount(s.ID))
	}
	return n
}
