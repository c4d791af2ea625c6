// Package engine wires the Scheduler, Reader, Executor and Writer
// workers together over one MessageHub and exposes the three map
// primitives as the single surface an algorithm drives (spec.md §1,
// §5). Constructing and tearing down that worker quartet follows
// pipeline.Pipeline.Process's shape from the teacher package this was
// adapted from: one goroutine per worker, a shared WaitGroup, and a
// buffered error channel that Close folds into one
// *go-multierror.Error* once every worker has returned.
package engine

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/blockgraph"
	"github.com/brandonshearin/vcgraph/common"
	"github.com/brandonshearin/vcgraph/edgebuffer"
	"github.com/brandonshearin/vcgraph/executor"
	"github.com/brandonshearin/vcgraph/hub"
	"github.com/brandonshearin/vcgraph/message"
	"github.com/brandonshearin/vcgraph/metadata"
	"github.com/brandonshearin/vcgraph/reader"
	"github.com/brandonshearin/vcgraph/scheduler"
	"github.com/brandonshearin/vcgraph/writer"
)

// Engine owns the whole-graph resources an algorithm run shares: the
// worker quartet, the per-block views they operate over, and the
// metadata loaded once at construction.
type Engine struct {
	cfg  Config
	meta *metadata.GraphMeta

	pool   *executor.Executor
	sched  *scheduler.Scheduler
	graphs map[common.BlockID]*blockgraph.BlockGraph

	hub     *hub.MessageHub
	edgeBuf *edgebuffer.EdgeBuffer

	wg     sync.WaitGroup
	errCh  chan error
	cancel context.CancelFunc
}

// New loads the graph's metadata under cfg.RootPath, constructs every
// block's view, the MessageHub, the EdgeBuffer, the pool and the
// Scheduler. The Reader, Executor and Writer workers are constructed
// and launched by Start.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	meta, err := metadata.Load(cfg.RootPath)
	if err != nil {
		return nil, xerrors.Errorf("engine: %w", err)
	}

	graphs := make(map[common.BlockID]*blockgraph.BlockGraph, len(meta.Blocks))
	for _, b := range meta.Blocks {
		graphs[b.ID] = blockgraph.New(cfg.RootPath, b)
	}

	h := hub.New()
	edgeBuf := edgebuffer.New(cfg.EdgeBufferBudget)
	pool := executor.New(cfg.Parallelism, cfg.TaskSize, cfg.TaskPackageFactor)

	sched, err := scheduler.New(h, edgeBuf, graphs, meta, cfg.schedulerConfig())
	if err != nil {
		return nil, xerrors.Errorf("engine: %w", err)
	}

	return &Engine{
		cfg:     cfg,
		meta:    meta,
		pool:    pool,
		sched:   sched,
		graphs:  graphs,
		hub:     h,
		edgeBuf: edgeBuf,
	}, nil
}

// NumVertices returns the whole graph's vertex count, for sizing a
// VertexState.
func (e *Engine) NumVertices() uint64 { return e.meta.NumVertices }

// Start launches the Reader, Executor and Writer as long-lived
// goroutines, each draining its own MessageHub queue until terminated.
func (e *Engine) Start() {
	queueDepth := e.cfg.ReaderQueueDepth
	if queueDepth < 1 {
		queueDepth = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.errCh = make(chan error, 3)

	rd := reader.New(e.hub, e.edgeBuf, e.graphs, queueDepth)
	wr := writer.New(e.hub, e.cfg.RootPath, e.graphs)
	ex := executor.NewWorker(e.hub, e.pool, e.graphs, e.edgeBuf, wr)

	e.wg.Add(3)
	go func() {
		defer e.wg.Done()
		if err := rd.Run(ctx); err != nil {
			e.errCh <- xerrors.Errorf("reader: %w", err)
		}
	}()
	go func() {
		defer e.wg.Done()
		if err := ex.Run(); err != nil {
			e.errCh <- xerrors.Errorf("executor: %w", err)
		}
	}()
	go func() {
		defer e.wg.Done()
		if err := wr.Run(); err != nil {
			e.errCh <- xerrors.Errorf("writer: %w", err)
		}
	}()
}

// MapVertex runs fn over every vertex in the graph, synced against
// vertexSync once all chunks complete. It never touches the Scheduler
// or any block's edge data, since VertexState is always fully resident
// (see the scheduler package doc).
func (e *Engine) MapVertex(fn message.VertexFunc, vertexSync func()) error {
	return e.pool.MapVertex(0, common.VertexID(e.meta.NumVertices), fn, vertexSync)
}

// MapEdge streams every block through the Scheduler, calling fn(u, v)
// for each resident edge, synced once the round completes.
func (e *Engine) MapEdge(fn message.EdgeFunc, vertexSync func()) error {
	return e.sched.RunEdgeMap(message.MapEdge, fn, nil, vertexSync)
}

// MapEdgeAndMutate streams every block through the Scheduler like
// MapEdge, but fn's boolean return marks edges for deletion; each
// block's CSR is rewritten to its `.new` generation before the round
// completes.
func (e *Engine) MapEdgeAndMutate(fn message.EdgeMutateFunc, vertexSync func()) error {
	return e.sched.RunEdgeMap(message.MapEdgeAndMutate, nil, fn, vertexSync)
}

// Close signals every worker to terminate, waits for them to return,
// and aggregates whatever errors they reported.
func (e *Engine) Close() error {
	e.hub.Shutdown()
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	close(e.errCh)

	var err error
	for workerErr := range e.errCh {
		err = multierror.Append(err, workerErr)
	}
	return err
}
