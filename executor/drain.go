package executor

import (
	"sync"
	"sync/atomic"

	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/common"
	"github.com/brandonshearin/vcgraph/edgebuffer"
)

// drainEdges pulls block's sub-blocks off edgeBuf's ready-queue as the
// Reader fills it and runs task against each one as soon as it is
// resident, calling edgeBuf.Finish right after so its budget is
// refunded incrementally rather than only once the whole block has
// finished reading. That is what lets a block whose total edge bytes
// exceed EdgeBufferBudget still make progress instead of deadlocking on
// a budget nothing would otherwise refund (spec.md §4.2, §4.4).
//
// It returns once it has observed block's sentinel and every task
// dispatched before that point has completed.
func (e *Executor) drainEdges(edgeBuf *edgebuffer.EdgeBuffer, block common.BlockID, task func(sub common.SubBlockID) error) error {
	workCh := make(chan common.SubBlockID)
	var wg sync.WaitGroup
	var firstErr atomic.Pointer[error]

	workers := e.parallelism
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for sub := range workCh {
				if err := task(sub); err != nil {
					wrapped := xerrors.Errorf("executor drain sub-block %d: %w", sub, err)
					firstErr.CompareAndSwap(nil, &wrapped)
				}
				edgeBuf.Finish(edgebuffer.Key{Block: block, Sub: sub})
			}
		}()
	}

	var protocolErr error
	for {
		entry := edgeBuf.PopReady()
		if entry.Sentinel {
			if entry.Key.Block != block {
				protocolErr = xerrors.Errorf("executor drain: %w: sentinel for block %d while draining block %d", common.ErrProtocolViolation, entry.Key.Block, block)
			}
			break
		}
		workCh <- entry.Key.Sub
	}

	close(workCh)
	wg.Wait()

	if protocolErr != nil {
		return protocolErr
	}
	if p := firstErr.Load(); p != nil {
		return *p
	}
	return nil
}
