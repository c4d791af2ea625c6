package executor

import (
	"sync/atomic"

	gc "gopkg.in/check.v1"
	"golang.org/x/xerrors"
)

var _ = gc.Suite(new(PoolTestSuite))

type PoolTestSuite struct{}

func (s *PoolTestSuite) TestChunksCoversWholeRangeWithNoGaps(c *gc.C) {
	e := New(4, 1, 2)
	chunks := e.chunks(100)

	var covered uint32
	for i, ch := range chunks {
		if i > 0 {
			c.Assert(ch[0], gc.Equals, chunks[i-1][1])
		}
		c.Assert(ch[1] > ch[0], gc.Equals, true)
		covered += ch[1] - ch[0]
	}
	c.Assert(covered, gc.Equals, uint32(100))
	c.Assert(chunks[len(chunks)-1][1], gc.Equals, uint32(100))
}

func (s *PoolTestSuite) TestChunksRespectsMinimumTaskSize(c *gc.C) {
	// want = parallelism*factor = 8, so 20/8 = 2 would undercut taskSize;
	// chunks must widen to the configured floor of 10 instead.
	e := New(4, 10, 2)
	chunks := e.chunks(20)
	for _, ch := range chunks {
		c.Assert(ch[1]-ch[0] >= 10, gc.Equals, true)
	}
}

func (s *PoolTestSuite) TestChunksEmptyRange(c *gc.C) {
	e := New(4, 1, 2)
	c.Assert(e.chunks(0), gc.IsNil)
}

func (s *PoolTestSuite) TestRunChunksExecutesEveryChunk(c *gc.C) {
	e := New(4, 1, 2)
	chunks := e.chunks(20)

	var total atomic.Int64
	err := e.runChunks(chunks, func(start, end uint32) error {
		total.Add(int64(end - start))
		return nil
	})
	c.Assert(err, gc.IsNil)
	c.Assert(total.Load(), gc.Equals, int64(20))
}

func (s *PoolTestSuite) TestRunChunksPropagatesFirstError(c *gc.C) {
	e := New(4, 1, 2)
	chunks := e.chunks(20)
	boom := xerrors.New("boom")

	err := e.runChunks(chunks, func(start, end uint32) error {
		if start == chunks[0][0] {
			return boom
		}
		return nil
	})
	c.Assert(err, gc.ErrorMatches, ".*boom.*")
}

func (s *PoolTestSuite) TestRunChunksEmptyIsNoop(c *gc.C) {
	e := New(4, 1, 2)
	err := e.runChunks(nil, func(start, end uint32) error {
		c.Fatal("task should never run for an empty chunk list")
		return nil
	})
	c.Assert(err, gc.IsNil)
}
