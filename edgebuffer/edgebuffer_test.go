package edgebuffer

import (
	"sync"
	"testing"
	"time"

	gc "gopkg.in/check.v1"

	"github.com/brandonshearin/vcgraph/common"
)

func Test(t *testing.T) { gc.TestingT(t) }

var _ = gc.Suite(new(EdgeBufferTestSuite))

type EdgeBufferTestSuite struct{}

func (s *EdgeBufferTestSuite) TestRegisterIsIdempotent(c *gc.C) {
	b := New(1024)
	key := Key{Block: 1, Sub: 1}
	b.Register(key, 100)
	b.Register(key, 999) // second call must be a no-op

	c.Assert(b.IsEnough(key), gc.Equals, true)
	c.Assert(b.Apply(key), gc.IsNil)
	c.Assert(b.BytesUsed(), gc.Equals, uint64(100))
}

func (s *EdgeBufferTestSuite) TestIsEnoughRespectsBudget(c *gc.C) {
	b := New(150)
	small := Key{Block: 1, Sub: 1}
	big := Key{Block: 1, Sub: 2}
	b.Register(small, 100)
	b.Register(big, 200)

	c.Assert(b.IsEnough(small), gc.Equals, true)
	c.Assert(b.IsEnough(big), gc.Equals, false)
}

func (s *EdgeBufferTestSuite) TestUnboundedAlwaysEnough(c *gc.C) {
	b := New(0)
	key := Key{Block: 1, Sub: 1}
	b.Register(key, 1<<40)
	c.Assert(b.IsEnough(key), gc.Equals, true)
	c.Assert(b.Apply(key), gc.IsNil)
}

func (s *EdgeBufferTestSuite) TestApplyUnregisteredIsBudgetInvariant(c *gc.C) {
	b := New(1024)
	err := b.Apply(Key{Block: 9, Sub: 9})
	c.Assert(err, gc.ErrorMatches, ".*edge buffer budget invariant violated.*")
}

func (s *EdgeBufferTestSuite) TestApplyLargerThanBudgetIsBudgetInvariant(c *gc.C) {
	b := New(10)
	key := Key{Block: 1, Sub: 1}
	b.Register(key, 100)
	err := b.Apply(key)
	c.Assert(err, gc.ErrorMatches, ".*sub-block alone exceeds the budget.*")
}

func (s *EdgeBufferTestSuite) TestApplyBlocksUntilFinishFreesRoom(c *gc.C) {
	b := New(100)
	first := Key{Block: 1, Sub: 1}
	second := Key{Block: 1, Sub: 2}
	b.Register(first, 100)
	b.Register(second, 100)

	c.Assert(b.Apply(first), gc.IsNil)
	b.PushLoaded(first)

	var wg sync.WaitGroup
	wg.Add(1)
	admitted := make(chan struct{})
	go func() {
		defer wg.Done()
		c.Check(b.Apply(second), gc.IsNil)
		close(admitted)
	}()

	select {
	case <-admitted:
		c.Fatal("second sub-block admitted before first was finished")
	case <-time.After(50 * time.Millisecond):
	}

	b.Finish(first)

	select {
	case <-admitted:
	case <-time.After(time.Second):
		c.Fatal("second sub-block never admitted after Finish freed the budget")
	}
	wg.Wait()
}

func (s *EdgeBufferTestSuite) TestPushLoadedAndPopReadyFIFO(c *gc.C) {
	b := New(0)
	first := Key{Block: 1, Sub: 1}
	second := Key{Block: 1, Sub: 2}
	b.Register(first, 10)
	b.Register(second, 10)

	b.PushLoaded(first)
	b.PushLoaded(second)

	e1 := b.PopReady()
	c.Assert(e1.Key, gc.Equals, first)
	c.Assert(e1.Sentinel, gc.Equals, false)

	e2 := b.PopReady()
	c.Assert(e2.Key, gc.Equals, second)
}

func (s *EdgeBufferTestSuite) TestPushSentinel(c *gc.C) {
	b := New(0)
	b.PushSentinel(common.BlockID(5))

	e, ok := b.TryPopReady()
	c.Assert(ok, gc.Equals, true)
	c.Assert(e.Sentinel, gc.Equals, true)
	c.Assert(e.Key.Block, gc.Equals, common.BlockID(5))
	c.Assert(e.Key.Sub, gc.Equals, common.ReadyQueueSentinel)
}

func (s *EdgeBufferTestSuite) TestTryPopReadyEmpty(c *gc.C) {
	b := New(0)
	_, ok := b.TryPopReady()
	c.Assert(ok, gc.Equals, false)
}

func (s *EdgeBufferTestSuite) TestFinishRefundsBudgetAndMarksFinished(c *gc.C) {
	b := New(1024)
	key := Key{Block: 1, Sub: 1}
	b.Register(key, 100)
	c.Assert(b.Apply(key), gc.IsNil)
	b.PushLoaded(key)
	c.Assert(b.BytesUsed(), gc.Equals, uint64(100))

	b.Finish(key)
	c.Assert(b.BytesUsed(), gc.Equals, uint64(0))

	reading, inMemory, finished := b.State(key)
	c.Assert(reading, gc.Equals, false)
	c.Assert(inMemory, gc.Equals, false)
	c.Assert(finished, gc.Equals, true)
}

func (s *EdgeBufferTestSuite) TestReleaseAllSparesKeptSubBlock(c *gc.C) {
	b := New(1024)
	kept := Key{Block: 1, Sub: 1}
	released := Key{Block: 1, Sub: 2}
	b.Register(kept, 100)
	b.Register(released, 100)
	c.Assert(b.Apply(kept), gc.IsNil)
	c.Assert(b.Apply(released), gc.IsNil)
	b.PushLoaded(kept)
	b.PushLoaded(released)

	keepSub := common.SubBlockID(1)
	b.ReleaseAll(common.BlockID(1), &keepSub)

	_, inMemoryKept, _ := b.State(kept)
	c.Assert(inMemoryKept, gc.Equals, true)

	_, inMemoryReleased, finishedReleased := b.State(released)
	c.Assert(inMemoryReleased, gc.Equals, false)
	c.Assert(finishedReleased, gc.Equals, true)

	c.Assert(b.BytesUsed(), gc.Equals, uint64(100))
}

func (s *EdgeBufferTestSuite) TestReleaseAllNilKeepReleasesEverything(c *gc.C) {
	b := New(1024)
	key := Key{Block: 1, Sub: 1}
	b.Register(key, 100)
	c.Assert(b.Apply(key), gc.IsNil)
	b.PushLoaded(key)

	b.ReleaseAll(common.BlockID(1), nil)
	c.Assert(b.BytesUsed(), gc.Equals, uint64(0))
}
