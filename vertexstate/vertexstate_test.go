package vertexstate

import (
	"sync"
	"testing"

	gc "gopkg.in/check.v1"

	"github.com/brandonshearin/vcgraph/common"
)

func Test(t *testing.T) { gc.TestingT(t) }

var _ = gc.Suite(new(VertexStateTestSuite))

type VertexStateTestSuite struct{}

func (s *VertexStateTestSuite) TestNewSeedsBothArrays(c *gc.C) {
	vs := New(4, false, func(v common.VertexID) uint32 { return uint32(v) })
	c.Assert(vs.Len(), gc.Equals, 4)
	for i := common.VertexID(0); i < 4; i++ {
		c.Assert(vs.Read(i), gc.Equals, uint32(i))
	}
}

func (s *VertexStateTestSuite) TestWriteLastWriterWins(c *gc.C) {
	vs := New[uint32](2, false, func(common.VertexID) uint32 { return 0 })
	vs.Write(0, 5)
	vs.Write(0, 9)
	vs.Sync()
	c.Assert(vs.Read(0), gc.Equals, uint32(9))
}

func (s *VertexStateTestSuite) TestWriteMinKeepsSmallest(c *gc.C) {
	vs := New[uint32](1, false, func(common.VertexID) uint32 { return 100 })
	vs.WriteMin(0, 50)
	vs.WriteMin(0, 80) // larger than current write[0]=50, should not overwrite
	vs.Sync()
	c.Assert(vs.Read(0), gc.Equals, uint32(50))
}

func (s *VertexStateTestSuite) TestWriteMaxKeepsLargest(c *gc.C) {
	vs := New[uint32](1, false, func(common.VertexID) uint32 { return 0 })
	vs.WriteMax(0, 5)
	vs.WriteMax(0, 3)
	vs.Sync()
	c.Assert(vs.Read(0), gc.Equals, uint32(5))
}

func (s *VertexStateTestSuite) TestWriteAddAccumulates(c *gc.C) {
	vs := New[uint32](1, false, func(common.VertexID) uint32 { return 0 })
	vs.WriteAdd(0, 3)
	vs.WriteAdd(0, 4)
	vs.Sync()
	c.Assert(vs.Read(0), gc.Equals, uint32(7))
}

func (s *VertexStateTestSuite) TestWriteAddConcurrentIsRaceFree(c *gc.C) {
	vs := New[uint32](1, false, func(common.VertexID) uint32 { return 0 })
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vs.WriteAdd(0, 1)
		}()
	}
	wg.Wait()
	vs.Sync()
	c.Assert(vs.Read(0), gc.Equals, uint32(100))
}

func (s *VertexStateTestSuite) TestSyncCopiesWriteIntoRead(c *gc.C) {
	vs := New[uint32](2, false, func(common.VertexID) uint32 { return 0 })
	vs.Write(0, 1)
	vs.Write(1, 2)
	c.Assert(vs.Read(0), gc.Equals, uint32(0)) // not yet synced

	vs.Sync()
	c.Assert(vs.Read(0), gc.Equals, uint32(1))
	c.Assert(vs.Read(1), gc.Equals, uint32(2))
}

func (s *VertexStateTestSuite) TestReadOnlySyncSuppressesCopy(c *gc.C) {
	vs := New[uint32](1, true, func(common.VertexID) uint32 { return 7 })
	vs.Write(0, 42)
	vs.Sync()
	c.Assert(vs.Read(0), gc.Equals, uint32(7)) // unchanged: readOnlySync is set
}

func (s *VertexStateTestSuite) TestFloat32WriteMax(c *gc.C) {
	vs := New[float32](1, false, func(common.VertexID) float32 { return 0 })
	vs.WriteMax(0, 1.5)
	vs.WriteMax(0, 0.5)
	vs.Sync()
	c.Assert(vs.Read(0), gc.Equals, float32(1.5))
}
