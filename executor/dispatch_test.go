package executor

import (
	gc "gopkg.in/check.v1"

	"github.com/brandonshearin/vcgraph/blockgraph"
	"github.com/brandonshearin/vcgraph/common"
	"github.com/brandonshearin/vcgraph/edgebuffer"
	"github.com/brandonshearin/vcgraph/hub"
	"github.com/brandonshearin/vcgraph/message"
)

var _ = gc.Suite(new(DispatchTestSuite))

type DispatchTestSuite struct{}

type fakeSink struct {
	block  common.BlockID
	bitmap *DeletionBitmap
}

func (f *fakeSink) SetBitmap(block common.BlockID, bitmap *DeletionBitmap) {
	f.block = block
	f.bitmap = bitmap
}

func (s *DispatchTestSuite) TestMapVertexDispatch(c *gc.C) {
	g := newFixtureGraph(c)
	graphs := map[common.BlockID]*blockgraph.BlockGraph{0: g}
	h := hub.New()
	w := NewWorker(h, New(2, 1, 2), graphs, edgebuffer.New(0), nil)

	var visited int
	h.Executor.Push(message.ExecuteMsg(message.ExecuteRequest{
		Block: 0,
		Map:   message.MapVertex,
		VertexFn: func(v common.VertexID) error {
			visited++
			return nil
		},
	}))
	h.Executor.Push(message.Terminate(message.KindExecute))

	c.Assert(w.Run(), gc.IsNil)

	resp, ok := h.Response.PopOrWait()
	c.Assert(ok, gc.Equals, true)
	c.Assert(resp.ExecuteResp.Err, gc.IsNil)
	c.Assert(visited, gc.Equals, 4)
}

func (s *DispatchTestSuite) TestMapEdgeAndMutateDispatchPublishesBitmap(c *gc.C) {
	g := newFixtureGraph(c)
	graphs := map[common.BlockID]*blockgraph.BlockGraph{0: g}
	h := hub.New()
	sink := &fakeSink{}
	buf := readyEdgeBuf(0, []common.SubBlockID{0, 1})
	w := NewWorker(h, New(2, 1, 2), graphs, buf, sink)

	h.Executor.Push(message.ExecuteMsg(message.ExecuteRequest{
		Block: 0,
		Map:   message.MapEdgeAndMutate,
		EdgeMutateFn: func(u, v common.VertexID) (bool, error) {
			return v == 12, nil
		},
	}))
	h.Executor.Push(message.Terminate(message.KindExecute))

	c.Assert(w.Run(), gc.IsNil)

	resp, ok := h.Response.PopOrWait()
	c.Assert(ok, gc.Equals, true)
	c.Assert(resp.ExecuteResp.Err, gc.IsNil)

	c.Assert(sink.block, gc.Equals, common.BlockID(0))
	c.Assert(sink.bitmap, gc.NotNil)
	c.Assert(sink.bitmap.Count(), gc.Equals, uint64(1))
}

func (s *DispatchTestSuite) TestUnknownBlockIsProtocolViolation(c *gc.C) {
	graphs := map[common.BlockID]*blockgraph.BlockGraph{}
	h := hub.New()
	w := NewWorker(h, New(1, 1, 1), graphs, edgebuffer.New(0), nil)

	h.Executor.Push(message.ExecuteMsg(message.ExecuteRequest{Block: 99, Map: message.MapVertex}))
	h.Executor.Push(message.Terminate(message.KindExecute))

	c.Assert(w.Run(), gc.IsNil)

	resp, ok := h.Response.PopOrWait()
	c.Assert(ok, gc.Equals, true)
	c.Assert(resp.ExecuteResp.Err, gc.ErrorMatches, ".*unknown block 99.*")
}

func (s *DispatchTestSuite) TestWrongKindMessageIsRejected(c *gc.C) {
	h := hub.New()
	w := NewWorker(h, New(1, 1, 1), nil, edgebuffer.New(0), nil)
	h.Executor.Push(message.ReadMsg(message.ReadRequest{Block: 0}))

	err := w.Run()
	c.Assert(err, gc.ErrorMatches, ".*wrong kind for accessor.*")
}
