// Package metadata loads the immutable graph-metadata description
// (spec.md §3, §6) that is parsed once at engine start: total vertex
// and edge counts, the number of blocks, and each block's own record
// of its sub-blocks.
//
// The type shapes mirror linkgraph/graph.Link and linkgraph/graph.Edge
// from the teacher package this was adapted from — small, exported
// value structs with no behavior beyond what the loader needs — while
// the YAML wire format follows spec.md §6's meta.yaml layout, read with
// gopkg.in/yaml.v3 (the YAML library recurring as an indirect dependency
// across the retrieved example pack; SPEC_FULL.md's DOMAIN STACK section
// gives it its one direct, exercised use here).
package metadata

import (
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/brandonshearin/vcgraph/common"
)

// SubBlockMeta describes one sub-block: its vertex range, edge count,
// and BeginOffset, the position of its first edge within the owning
// block's whole CSR edge sequence.
type SubBlockMeta struct {
	ID          common.SubBlockID `yaml:"id"`
	BeginID     common.VertexID   `yaml:"begin_id"`
	EndID       common.VertexID   `yaml:"end_id"`
	NumEdges    common.EdgeIndex  `yaml:"num_edges"`
	BeginOffset common.EdgeIndex  `yaml:"begin_offset"`
}

// NumVertices returns the size of the sub-block's half-open vertex range.
func (s SubBlockMeta) NumVertices() uint32 { return uint32(s.EndID - s.BeginID) }

// BlockMeta describes one block: its vertex range, total edges, and the
// offset-reduction factor controlling how per-vertex offsets are
// compressed in index.bin.
type BlockMeta struct {
	ID           common.BlockID `yaml:"id"`
	BeginID      common.VertexID `yaml:"begin_id"`
	EndID        common.VertexID `yaml:"end_id"`
	NumVertices  uint32           `yaml:"num_vertices"`
	NumEdges     common.EdgeIndex `yaml:"num_edges"`
	OffsetRatio  uint32           `yaml:"offset_ratio"`
	NumSubBlocks uint32           `yaml:"num_sub_blocks"`
	SubBlocks    []SubBlockMeta   `yaml:"sub_blocks"`
}

// IndexEntries returns ceil(NumVertices / OffsetRatio), the number of
// reduced-offset entries stored at the head of index.bin.
func (b BlockMeta) IndexEntries() uint32 {
	if b.OffsetRatio == 0 {
		return 0
	}
	return (b.NumVertices + b.OffsetRatio - 1) / b.OffsetRatio
}

// GraphMeta is the whole-graph metadata parsed from meta.yaml.
type GraphMeta struct {
	NumVertices uint64           `yaml:"num_vertices"`
	NumEdges    common.EdgeIndex `yaml:"num_edges"`
	NumBlocks   uint32           `yaml:"num_blocks"`
	Blocks      []BlockMeta      `yaml:"blocks"`
}

// Block looks up a block's metadata by id, returning ok=false if the
// graph has no block with that id.
func (g *GraphMeta) Block(id common.BlockID) (BlockMeta, bool) {
	for _, b := range g.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return BlockMeta{}, false
}

// validate checks the structural consistency spec.md §7's
// MalformedMetadata error kind is named for: at least one block, a
// num_blocks matching the listed block records, a num_sub_blocks
// matching each block's listed sub-blocks, and no block or sub-block
// whose end_id precedes its begin_id.
func (g *GraphMeta) validate() error {
	if g.NumBlocks == 0 && len(g.Blocks) == 0 {
		return xerrors.Errorf("graph metadata: %w: num_blocks is zero and no blocks were listed", common.ErrMalformedMetadata)
	}
	if uint32(len(g.Blocks)) != g.NumBlocks {
		return xerrors.Errorf("graph metadata: %w: num_blocks=%d but %d block records present", common.ErrMalformedMetadata, g.NumBlocks, len(g.Blocks))
	}
	for _, b := range g.Blocks {
		if b.EndID < b.BeginID {
			return xerrors.Errorf("graph metadata: %w: block %d has end_id < begin_id", common.ErrMalformedMetadata, b.ID)
		}
		if uint32(len(b.SubBlocks)) != b.NumSubBlocks {
			return xerrors.Errorf("graph metadata: %w: block %d declares %d sub-blocks but lists %d", common.ErrMalformedMetadata, b.ID, b.NumSubBlocks, len(b.SubBlocks))
		}
		for _, s := range b.SubBlocks {
			if s.EndID < s.BeginID {
				return xerrors.Errorf("graph metadata: %w: sub-block %d of block %d has end_id < begin_id", common.ErrMalformedMetadata, s.ID, b.ID)
			}
		}
	}
	return nil
}

// RootPath returns the directory a meta.yaml file was loaded from, the
// base against which Load's caller resolves "graphs/<block_id>_blocks/".
type RootPath string

// Load reads and validates meta.yaml under root. The loader aborts
// before any worker starts if the file is absent or malformed, per
// spec.md §7.
func Load(root string) (*GraphMeta, error) {
	path := filepath.Join(root, "meta.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("loading %s: %w: %v", path, common.ErrMalformedMetadata, err)
	}

	var g GraphMeta
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return nil, xerrors.Errorf("parsing %s: %w: %v", path, common.ErrMalformedMetadata, err)
	}

	if err := g.validate(); err != nil {
		return nil, err
	}

	return &g, nil
}

// BlockDir returns the directory holding a block's index.bin and
// per-sub-block files, per spec.md §6.
func BlockDir(root string, id common.BlockID) string {
	return filepath.Join(root, "graphs", blockDirName(id))
}

func blockDirName(id common.BlockID) string {
	return strconv.FormatUint(uint64(id), 10) + "_blocks"
}
