package executor

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	gc "gopkg.in/check.v1"

	"github.com/brandonshearin/vcgraph/blockgraph"
	"github.com/brandonshearin/vcgraph/common"
	"github.com/brandonshearin/vcgraph/edgebuffer"
	"github.com/brandonshearin/vcgraph/metadata"
)

var _ = gc.Suite(new(MapEdgeTestSuite))

type MapEdgeTestSuite struct{}

// newFixtureGraph lays out one on-disk block with two sub-blocks
// (2 vertices each, degrees [2,1,1,2]) and returns it already Load()ed,
// with both sub-blocks' edges buffer-resident.
func newFixtureGraph(c *gc.C) *blockgraph.BlockGraph {
	root := c.MkDir()
	meta := metadata.BlockMeta{
		ID:           0,
		BeginID:      0,
		EndID:        4,
		NumVertices:  4,
		NumEdges:     6,
		OffsetRatio:  2,
		NumSubBlocks: 2,
		SubBlocks: []metadata.SubBlockMeta{
			{ID: 0, BeginID: 0, EndID: 2, NumEdges: 3, BeginOffset: 0},
			{ID: 1, BeginID: 2, EndID: 4, NumEdges: 3, BeginOffset: 3},
		},
	}

	dir := metadata.BlockDir(root, meta.ID)
	c.Assert(os.MkdirAll(dir, 0o755), gc.IsNil)

	degrees := []uint32{2, 1, 1, 2}
	offsets := []uint64{0, 3}
	buf := make([]byte, len(offsets)*8+len(degrees)*4)
	for i, o := range offsets {
		binary.LittleEndian.PutUint64(buf[i*8:], o)
	}
	base := len(offsets) * 8
	for i, d := range degrees {
		binary.LittleEndian.PutUint32(buf[base+i*4:], d)
	}
	c.Assert(os.WriteFile(filepath.Join(dir, "index.bin"), buf, 0o644), gc.IsNil)

	g := blockgraph.New(root, meta)
	c.Assert(g.Load(), gc.IsNil)

	g.SetResident(common.SubBlockID(0), []common.VertexID{10, 11, 12})
	g.SetResident(common.SubBlockID(1), []common.VertexID{13, 14, 15})
	return g
}

// readyEdgeBuf stands in for a Reader that has already made every sub
// in subs resident and issued the block's sentinel, so drainEdges can
// run against it without a real Reader goroutine.
func readyEdgeBuf(block common.BlockID, subs []common.SubBlockID) *edgebuffer.EdgeBuffer {
	buf := edgebuffer.New(0)
	for _, sub := range subs {
		key := edgebuffer.Key{Block: block, Sub: sub}
		buf.Register(key, 0)
		buf.PushLoaded(key)
	}
	buf.PushSentinel(block)
	return buf
}

func (s *MapEdgeTestSuite) TestVisitsEveryEdgeWithCorrectSource(c *gc.C) {
	g := newFixtureGraph(c)
	e := New(2, 1, 2)
	buf := readyEdgeBuf(0, []common.SubBlockID{0, 1})

	var mu sync.Mutex
	var got [][2]common.VertexID
	err := e.MapEdge(g, buf, 0, func(u, v common.VertexID) error {
		mu.Lock()
		got = append(got, [2]common.VertexID{u, v})
		mu.Unlock()
		return nil
	}, func() {})

	c.Assert(err, gc.IsNil)
	c.Assert(len(got), gc.Equals, 6)

	byU := map[common.VertexID][]common.VertexID{}
	for _, pair := range got {
		byU[pair[0]] = append(byU[pair[0]], pair[1])
	}
	c.Assert(byU[common.VertexID(0)], gc.DeepEquals, []common.VertexID{10, 11})
	c.Assert(byU[common.VertexID(1)], gc.DeepEquals, []common.VertexID{12})
	c.Assert(byU[common.VertexID(2)], gc.DeepEquals, []common.VertexID{13})
	c.Assert(byU[common.VertexID(3)], gc.DeepEquals, []common.VertexID{14, 15})
}

func (s *MapEdgeTestSuite) TestNonResidentSubBlockIsProtocolViolation(c *gc.C) {
	g := newFixtureGraph(c)
	g.ClearResident(common.SubBlockID(0))

	e := New(2, 1, 2)
	buf := readyEdgeBuf(0, []common.SubBlockID{0})
	err := e.MapEdge(g, buf, 0, func(common.VertexID, common.VertexID) error { return nil }, func() {})
	c.Assert(err, gc.ErrorMatches, ".*not buffer-resident.*")
}
