// Package blockgraph parses the on-disk per-block layout (spec.md §3,
// §6) and provides BlockGraph, the in-memory view of one block: its
// small, always-resident index arrays, and non-owning pointers to
// whichever of its sub-blocks' edge arrays the EdgeBuffer currently
// holds in memory.
//
// The ownership shape — small owned metadata plus a map of possibly-nil
// pointers to buffer-resident data, guarded by one mutex, with an
// iterator-friendly read path — follows linkgraph/store/memory.go's
// InMemoryGraph from the teacher package this was adapted from.
package blockgraph

import (
	"sync"

	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/common"
	"github.com/brandonshearin/vcgraph/metadata"
)

// BlockGraph is the in-memory view of one on-disk block.
type BlockGraph struct {
	meta metadata.BlockMeta
	root string

	// generation selects which on-disk files (plain or .new) back this
	// block's reads; it is bumped by the scheduler after a
	// MapEdgeAndMutate round commits a deletion.
	generation int

	offsets []EdgeOffset   // reduced offsets, one per offset_ratio vertices
	degrees []VertexDegree // one per vertex in the block's range

	mu    sync.RWMutex
	edges map[common.SubBlockID][]common.VertexID // non-nil iff resident
}

// New constructs a BlockGraph for meta without reading anything from
// disk yet; Load populates the index arrays.
func New(root string, meta metadata.BlockMeta) *BlockGraph {
	return &BlockGraph{
		meta:  meta,
		root:  root,
		edges: make(map[common.SubBlockID][]common.VertexID, len(meta.SubBlocks)),
	}
}

// Meta returns the block's metadata record.
func (g *BlockGraph) Meta() metadata.BlockMeta { return g.meta }

// Generation returns the block's current mutation generation.
func (g *BlockGraph) Generation() int { return g.generation }

// BumpGeneration advances the block to read its mutated (.new) files on
// the next Load, per spec.md §4.1's "increment the block's mutation
// generation (so its next read picks the mutated file)".
func (g *BlockGraph) BumpGeneration() { g.generation++ }

// Load reads the block's index.bin (offsets + degrees) into memory.
// This is the small, always-resident part of a block; it does not touch
// any sub-block's edge data.
func (g *BlockGraph) Load() error {
	offsets, degrees, err := loadIndex(g.root, g.meta.ID, g.meta.IndexEntries(), g.meta.NumVertices, g.generation)
	if err != nil {
		return xerrors.Errorf("loading index for block %d: %w", g.meta.ID, err)
	}
	g.offsets = offsets
	g.degrees = degrees
	return nil
}

// SubBlockPath returns the file path the Reader should open for sub, at
// the block's current generation.
func (g *BlockGraph) SubBlockPath(sub common.SubBlockID) string {
	return subBlockPath(g.root, g.meta.ID, sub, g.generation)
}

// localIndex converts a global vertex id into an index within this
// block's arrays.
func (g *BlockGraph) localIndex(v common.VertexID) uint32 {
	return uint32(v - g.meta.BeginID)
}

// OutDegree returns v's out-degree in O(1).
func (g *BlockGraph) OutDegree(v common.VertexID) uint32 {
	return g.degrees[g.localIndex(v)]
}

// OutOffset reconstructs v's full edge offset by adding the degrees of
// earlier vertices in the same offset_ratio-sized group to the group's
// reduced offset, in O(offset_ratio) time (spec.md §3).
func (g *BlockGraph) OutOffset(v common.VertexID) common.EdgeIndex {
	idx := g.localIndex(v)
	ratio := g.meta.OffsetRatio
	group := idx / ratio
	groupStart := group * ratio

	offset := g.offsets[group]
	for i := groupStart; i < idx; i++ {
		offset += common.EdgeIndex(g.degrees[i])
	}
	return offset
}

// subBlockFor returns the sub-block metadata owning vertex v.
func (g *BlockGraph) subBlockFor(v common.VertexID) (metadata.SubBlockMeta, bool) {
	for _, s := range g.meta.SubBlocks {
		if v >= s.BeginID && v < s.EndID {
			return s, true
		}
	}
	return metadata.SubBlockMeta{}, false
}

// SubBlock returns the metadata record for sub, used by MapEdge to walk
// a resident sub-block's CSR without a per-vertex lookup.
func (g *BlockGraph) SubBlock(id common.SubBlockID) (metadata.SubBlockMeta, bool) {
	for _, s := range g.meta.SubBlocks {
		if s.ID == id {
			return s, true
		}
	}
	return metadata.SubBlockMeta{}, false
}

// SubBlockEdgeCount sums the currently-loaded degrees of every vertex in
// sub's range. Degrees are reloaded fresh by Load at every generation,
// so this tracks a sub-block's true edge count across MapEdgeAndMutate
// rounds even though the graph-wide metadata parsed once at startup
// never changes; callers should use this instead of SubBlockMeta's
// static NumEdges whenever a mutated generation might be in play.
func (g *BlockGraph) SubBlockEdgeCount(sub common.SubBlockID) common.EdgeIndex {
	meta, ok := g.SubBlock(sub)
	if !ok {
		return 0
	}
	var total common.EdgeIndex
	for v := meta.BeginID; v < meta.EndID; v++ {
		total += common.EdgeIndex(g.OutDegree(v))
	}
	return total
}

// ResidentEdges returns sub's edge array if it is currently
// buffer-resident.
func (g *BlockGraph) ResidentEdges(sub common.SubBlockID) ([]common.VertexID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edges, ok := g.edges[sub]
	return edges, ok
}

// SetResident publishes sub's edge array as buffer-resident; edges must
// be non-nil. Called by the Reader once a sub-block's read completes.
func (g *BlockGraph) SetResident(sub common.SubBlockID, edges []common.VertexID) {
	g.mu.Lock()
	g.edges[sub] = edges
	g.mu.Unlock()
}

// ClearResident marks sub as no longer buffer-resident, releasing the
// BlockGraph's pointer so the EdgeBuffer's backing array can be
// collected. Called by the Scheduler for every sub-block of a block
// whose round is complete, alongside EdgeBuffer.ReleaseAll; Finish on a
// single sub-block does not clear its residency here.
func (g *BlockGraph) ClearResident(sub common.SubBlockID) {
	g.mu.Lock()
	delete(g.edges, sub)
	g.mu.Unlock()
}

// IsResident reports whether sub's edge array pointer is currently
// non-null, i.e. the invariant spec.md §3 requires of BlockGraph's
// per-sub-block edge pointer.
func (g *BlockGraph) IsResident(sub common.SubBlockID) bool {
	g.mu.RLock()
	_, ok := g.edges[sub]
	g.mu.RUnlock()
	return ok
}

// OutEdges returns v's adjacency list. Valid only when v's sub-block is
// currently resident; callers must check IsResident (or only call this
// from within a MapEdge task, which only runs over resident sub-blocks).
func (g *BlockGraph) OutEdges(v common.VertexID) ([]common.VertexID, error) {
	sub, ok := g.subBlockFor(v)
	if !ok {
		return nil, xerrors.Errorf("vertex %d: %w: no sub-block owns it in block %d", v, common.ErrProtocolViolation, g.meta.ID)
	}

	g.mu.RLock()
	edges, resident := g.edges[sub.ID]
	g.mu.RUnlock()
	if !resident {
		return nil, xerrors.Errorf("vertex %d: %w: sub-block %d is not buffer-resident", v, common.ErrProtocolViolation, sub.ID)
	}

	full := g.OutOffset(v)
	local := full - sub.BeginOffset
	degree := common.EdgeIndex(g.OutDegree(v))
	return edges[local : local+degree], nil
}
