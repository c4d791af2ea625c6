package blockgraph

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/common"
	"github.com/brandonshearin/vcgraph/metadata"
)

// EdgeOffset is the on-disk reduced-offset element type.
type EdgeOffset = common.EdgeIndex

// VertexDegree is the on-disk out-degree element type.
type VertexDegree = uint32

const (
	edgeOffsetSize  = 8 // sizeof(EdgeOffset) on disk
	vertexDegreeSize = 4 // sizeof(VertexDegree) on disk
)

// loadIndex reads a block's index.bin: a dense array of offsetEntries
// reduced offsets followed by a dense array of numVertices out-degrees,
// per spec.md §3/§6.
func loadIndex(root string, block common.BlockID, offsetEntries, numVertices uint32, generation int) ([]EdgeOffset, []VertexDegree, error) {
	path := indexPath(root, block, generation)
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, xerrors.Errorf("opening %s: %w: %v", path, common.ErrFatalIO, err)
	}
	defer f.Close()

	raw := make([]byte, int(offsetEntries)*edgeOffsetSize+int(numVertices)*vertexDegreeSize)
	if _, err := readFull(f, raw); err != nil {
		return nil, nil, xerrors.Errorf("reading %s: %w: %v", path, common.ErrFatalIO, err)
	}

	offsets := make([]EdgeOffset, offsetEntries)
	for i := range offsets {
		offsets[i] = EdgeOffset(binary.LittleEndian.Uint64(raw[i*edgeOffsetSize:]))
	}

	degreeBase := int(offsetEntries) * edgeOffsetSize
	degrees := make([]VertexDegree, numVertices)
	for i := range degrees {
		degrees[i] = binary.LittleEndian.Uint32(raw[degreeBase+i*vertexDegreeSize:])
	}

	return offsets, degrees, nil
}

// readFull reads exactly len(buf) bytes, treating a short read with no
// remaining bytes as fatal per spec.md §7 ("short read with no
// remaining bytes").
func readFull(f *os.File, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := f.Read(buf[n:])
		n += m
		if err != nil {
			if m == 0 {
				return n, err
			}
			continue
		}
		if m == 0 {
			return n, xerrors.Errorf("short read: got %d of %d bytes", n, len(buf))
		}
	}
	return n, nil
}

func indexPath(root string, block common.BlockID, generation int) string {
	dir := metadata.BlockDir(root, block)
	if generation > 0 {
		return filepath.Join(dir, "index.bin.new")
	}
	return filepath.Join(dir, "index.bin")
}

// subBlockPath returns the path to a sub-block's packed destination-id
// file, honoring the block's current mutation generation (spec.md §6:
// "successor files are written with the suffix .new").
func subBlockPath(root string, block common.BlockID, sub common.SubBlockID, generation int) string {
	dir := metadata.BlockDir(root, block)
	name := strconv.FormatUint(uint64(sub), 10) + ".bin"
	if generation > 0 {
		name += ".new"
	}
	return filepath.Join(dir, name)
}
