package executor

import (
	gc "gopkg.in/check.v1"
	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/common"
)

var _ = gc.Suite(new(MapEdgeAndMutateTestSuite))

type MapEdgeAndMutateTestSuite struct{}

func (s *MapEdgeAndMutateTestSuite) TestMarksDeletedEdgesAtGlobalOffset(c *gc.C) {
	g := newFixtureGraph(c)
	e := New(2, 1, 2)
	bitmap := NewDeletionBitmap(6)
	buf := readyEdgeBuf(0, []common.SubBlockID{0, 1})

	err := e.MapEdgeAndMutate(g, buf, 0, func(u, v common.VertexID) (bool, error) {
		return v == 12 || v == 14, nil
	}, bitmap, func() {})

	c.Assert(err, gc.IsNil)
	// sub-block 0 spans global offsets [0,3): edges 10,11,12 -> delete 12 at offset 2
	c.Assert(bitmap.IsMarked(2), gc.Equals, true)
	// sub-block 1 spans global offsets [3,6): edges 13,14,15 -> delete 14 at offset 4
	c.Assert(bitmap.IsMarked(4), gc.Equals, true)
	c.Assert(bitmap.Count(), gc.Equals, uint64(2))
	c.Assert(bitmap.IsMarked(0), gc.Equals, false)
	c.Assert(bitmap.IsMarked(1), gc.Equals, false)
	c.Assert(bitmap.IsMarked(3), gc.Equals, false)
	c.Assert(bitmap.IsMarked(5), gc.Equals, false)
}

func (s *MapEdgeAndMutateTestSuite) TestKernelErrorPropagates(c *gc.C) {
	g := newFixtureGraph(c)
	e := New(2, 1, 2)
	bitmap := NewDeletionBitmap(6)
	buf := readyEdgeBuf(0, []common.SubBlockID{0, 1})

	boom := xerrors.New("boom")
	err := e.MapEdgeAndMutate(g, buf, 0, func(u, v common.VertexID) (bool, error) {
		if v == 15 {
			return false, boom
		}
		return false, nil
	}, bitmap, func() {})

	c.Assert(err, gc.ErrorMatches, ".*boom.*")
}
