package executor

import (
	"sync"
	"sync/atomic"

	gc "gopkg.in/check.v1"
	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/common"
)

var _ = gc.Suite(new(MapVertexTestSuite))

type MapVertexTestSuite struct{}

func (s *MapVertexTestSuite) TestVisitsEveryVertexExactlyOnce(c *gc.C) {
	e := New(4, 1, 2)

	var mu sync.Mutex
	seen := make(map[common.VertexID]int)
	fn := func(v common.VertexID) error {
		mu.Lock()
		seen[v]++
		mu.Unlock()
		return nil
	}

	var synced atomic.Int32
	err := e.MapVertex(10, 20, fn, func() { synced.Add(1) })
	c.Assert(err, gc.IsNil)
	c.Assert(synced.Load(), gc.Equals, int32(1))
	c.Assert(len(seen), gc.Equals, 10)
	for v := common.VertexID(10); v < 20; v++ {
		c.Assert(seen[v], gc.Equals, 1)
	}
}

func (s *MapVertexTestSuite) TestSyncRunsEvenOnKernelError(c *gc.C) {
	e := New(2, 1, 1)
	boom := xerrors.New("boom")

	var synced atomic.Bool
	err := e.MapVertex(0, 5, func(v common.VertexID) error {
		if v == 2 {
			return boom
		}
		return nil
	}, func() { synced.Store(true) })

	c.Assert(err, gc.ErrorMatches, ".*boom.*")
	c.Assert(synced.Load(), gc.Equals, true)
}

func (s *MapVertexTestSuite) TestEmptyRangeStillSyncs(c *gc.C) {
	e := New(2, 1, 1)
	var synced atomic.Bool
	err := e.MapVertex(5, 5, func(common.VertexID) error {
		c.Fatal("fn should never run over an empty range")
		return nil
	}, func() { synced.Store(true) })
	c.Assert(err, gc.IsNil)
	c.Assert(synced.Load(), gc.Equals, true)
}
