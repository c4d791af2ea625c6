// Package executor implements the parallel vertex/edge iteration
// primitives (spec.md §4.4): MapVertex, MapEdge and MapEdgeAndMutate,
// plus the bounded worker pool they dispatch onto.
//
// The pool itself follows bspgraph.Graph's stepWorker: a fixed number of
// long-lived goroutines draining a work channel and a sync.WaitGroup
// the dispatcher blocks on — adapted here into the runChunks helper
// MapVertex uses instead of one hard-coded vertex loop; MapEdge and
// MapEdgeAndMutate use the same shape in drainEdges, fed by the
// EdgeBuffer's ready-queue instead of a chunk list. Chunk sizing (at
// least taskSize per task, taskPackageFactor tasks submitted per
// worker) follows junjiewwang-perf-analysis's pkg/parallel.ChunkProcessor,
// the pack's other worked example of splitting a range into
// parallelism-sized chunks ahead of a fixed pool.
package executor

import (
	"sync"
	"sync/atomic"

	"golang.org/x/xerrors"
)

// Executor owns a long-lived worker pool of configured parallelism that
// every map primitive dispatches onto.
type Executor struct {
	parallelism       int
	taskSize          uint32
	taskPackageFactor int
}

// New returns an Executor with the given pool parallelism P, minimum
// chunk size taskSize, and taskPackageFactor (spec.md §4.4: "submits
// P × task_package_factor tasks to the pool").
func New(parallelism int, taskSize uint32, taskPackageFactor int) *Executor {
	if parallelism < 1 {
		parallelism = 1
	}
	if taskSize < 1 {
		taskSize = 1
	}
	if taskPackageFactor < 1 {
		taskPackageFactor = 1
	}
	return &Executor{parallelism: parallelism, taskSize: taskSize, taskPackageFactor: taskPackageFactor}
}

// chunks splits [0, total) into pieces at least taskSize wide, aiming
// for parallelism*taskPackageFactor pieces overall.
func (e *Executor) chunks(total uint32) [][2]uint32 {
	if total == 0 {
		return nil
	}

	want := e.parallelism * e.taskPackageFactor
	size := total / uint32(want)
	if size < e.taskSize {
		size = e.taskSize
	}
	if size == 0 {
		size = 1
	}

	var out [][2]uint32
	for start := uint32(0); start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		out = append(out, [2]uint32{start, end})
	}
	return out
}

// runChunks dispatches one task per chunk onto a pool of e.parallelism
// goroutines, blocking until every chunk's task has returned. It mirrors
// bspgraph.Graph.step's vertexCh/wg/stepCompletedCh trio: a channel of
// work, a fixed pool draining it, and a pending counter the dispatcher
// waits to reach zero.
func (e *Executor) runChunks(chunks [][2]uint32, task func(start, end uint32) error) error {
	if len(chunks) == 0 {
		return nil
	}

	workCh := make(chan [2]uint32)
	var wg sync.WaitGroup
	var firstErr atomic.Pointer[error]

	workers := e.parallelism
	if workers > len(chunks) {
		workers = len(chunks)
	}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for c := range workCh {
				if err := task(c[0], c[1]); err != nil {
					wrapped := xerrors.Errorf("executor chunk [%d,%d): %w", c[0], c[1], err)
					firstErr.CompareAndSwap(nil, &wrapped)
				}
			}
		}()
	}

	for _, c := range chunks {
		workCh <- c
	}
	close(workCh)
	wg.Wait()

	if p := firstErr.Load(); p != nil {
		return *p
	}
	return nil
}
