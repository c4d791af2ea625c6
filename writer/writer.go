// Package writer implements the Writer worker: given a block whose
// resident sub-blocks have just been walked by a MapEdgeAndMutate
// round, it rewrites that block's CSR to the ".new" generation,
// dropping whichever edges the round's DeletionBitmap marked (spec.md
// §4.1, §4.6).
//
// The encode side is the mirror image of blockgraph/index.go's decode:
// same reduced-offset-plus-degrees index.bin layout, same packed
// little-endian destination-id sub-block files, just written instead
// of read.
package writer

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/blockgraph"
	"github.com/brandonshearin/vcgraph/common"
	"github.com/brandonshearin/vcgraph/executor"
	"github.com/brandonshearin/vcgraph/hub"
	"github.com/brandonshearin/vcgraph/message"
	"github.com/brandonshearin/vcgraph/metadata"
)

const (
	edgeOffsetSize   = 8
	vertexDegreeSize = 4
	vertexIDSize     = 4
)

// Writer owns the root directory its rewritten files are written under,
// the block views it reads edges from, and the deletion bitmaps the
// executor Worker hands it.
type Writer struct {
	hub    *hub.MessageHub
	root   string
	graphs map[common.BlockID]*blockgraph.BlockGraph

	mu      sync.Mutex
	bitmaps map[common.BlockID]*executor.DeletionBitmap
}

// New constructs a Writer over the given block views.
func New(h *hub.MessageHub, root string, graphs map[common.BlockID]*blockgraph.BlockGraph) *Writer {
	return &Writer{
		hub:     h,
		root:    root,
		graphs:  graphs,
		bitmaps: make(map[common.BlockID]*executor.DeletionBitmap),
	}
}

// SetBitmap registers the deletion bitmap a MapEdgeAndMutate round built
// for block, to be consulted by the next WriteRequest this Writer
// handles for it. Called by the executor Worker once the block's
// MapEdgeAndMutate pass succeeds, before it pushes the block's
// ExecuteResponse (and so before the Scheduler's WriteRequest).
func (w *Writer) SetBitmap(block common.BlockID, bitmap *executor.DeletionBitmap) {
	w.mu.Lock()
	w.bitmaps[block] = bitmap
	w.mu.Unlock()
}

func (w *Writer) takeBitmap(block common.BlockID) *executor.DeletionBitmap {
	w.mu.Lock()
	defer w.mu.Unlock()
	b := w.bitmaps[block]
	delete(w.bitmaps, block)
	return b
}

// Run drains the Writer queue until it observes a terminate-flagged
// message, handling one WriteRequest at a time.
func (w *Writer) Run() error {
	for {
		msg, ok := w.hub.Writer.PopOrWait()
		if !ok || msg.Terminated {
			return nil
		}
		if msg.Kind != message.KindWrite {
			return xerrors.Errorf("writer: %w: got %s message on write queue", message.ErrWrongKind, msg.Kind)
		}

		resp := w.handle(msg.Write)
		w.hub.Response.Push(message.WriteRespMsg(resp))
	}
}

func (w *Writer) handle(req message.WriteRequest) message.WriteResponse {
	g, ok := w.graphs[req.Block]
	if !ok {
		return message.WriteResponse{Block: req.Block, Err: xerrors.Errorf("writer: %w: unknown block %d", common.ErrProtocolViolation, req.Block)}
	}
	bitmap := w.takeBitmap(req.Block)

	meta := g.Meta()
	degrees := make([]uint32, meta.NumVertices)
	var global uint64
	var totalEdgeBytes uint64

	for _, sub := range meta.SubBlocks {
		edges, resident := g.ResidentEdges(sub.ID)
		if !resident {
			return message.WriteResponse{Block: req.Block, Err: xerrors.Errorf("writer: %w: sub-block %d of block %d is not buffer-resident", common.ErrProtocolViolation, sub.ID, req.Block)}
		}

		subOut := make([]common.VertexID, 0, len(edges))
		var local common.EdgeIndex
		for v := sub.BeginID; v < sub.EndID; v++ {
			degree := common.EdgeIndex(g.OutDegree(v))
			kept := 0
			for _, nbr := range edges[local : local+degree] {
				if bitmap == nil || !bitmap.IsMarked(global) {
					subOut = append(subOut, nbr)
					kept++
				}
				global++
			}
			degrees[v-meta.BeginID] = uint32(kept)
			local += degree
		}

		if err := writeSubBlock(subBlockPathNew(w.root, req.Block, sub.ID), subOut); err != nil {
			return message.WriteResponse{Block: req.Block, Err: xerrors.Errorf("writer: %w: %v", common.ErrFatalIO, err)}
		}
		totalEdgeBytes += uint64(len(subOut)) * vertexIDSize
	}

	offsets := reduceOffsets(degrees, meta.OffsetRatio)
	bytesWritten, err := writeIndex(indexPathNew(w.root, req.Block), offsets, degrees)
	if err != nil {
		return message.WriteResponse{Block: req.Block, Err: xerrors.Errorf("writer: %w: %v", common.ErrFatalIO, err)}
	}

	return message.WriteResponse{Block: req.Block, BytesWritten: bytesWritten + totalEdgeBytes}
}

// reduceOffsets rebuilds the reduced-offset array: one entry per
// offset_ratio vertices, holding the cumulative edge count at the start
// of that group (spec.md §3).
func reduceOffsets(degrees []uint32, ratio uint32) []common.EdgeIndex {
	if ratio == 0 {
		ratio = 1
	}
	entries := (uint32(len(degrees)) + ratio - 1) / ratio
	offsets := make([]common.EdgeIndex, entries)

	var cum common.EdgeIndex
	for i, d := range degrees {
		if uint32(i)%ratio == 0 {
			offsets[uint32(i)/ratio] = cum
		}
		cum += common.EdgeIndex(d)
	}
	return offsets
}

func writeSubBlock(path string, edges []common.VertexID) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, len(edges)*vertexIDSize)
	for i, e := range edges {
		binary.LittleEndian.PutUint32(buf[i*vertexIDSize:], uint32(e))
	}
	_, err = f.Write(buf)
	return err
}

func writeIndex(path string, offsets []common.EdgeIndex, degrees []uint32) (uint64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, len(offsets)*edgeOffsetSize+len(degrees)*vertexDegreeSize)
	for i, o := range offsets {
		binary.LittleEndian.PutUint64(buf[i*edgeOffsetSize:], uint64(o))
	}
	base := len(offsets) * edgeOffsetSize
	for i, d := range degrees {
		binary.LittleEndian.PutUint32(buf[base+i*vertexDegreeSize:], d)
	}

	n, err := f.Write(buf)
	return uint64(n), err
}

func subBlockPathNew(root string, block common.BlockID, sub common.SubBlockID) string {
	dir := metadata.BlockDir(root, block)
	return filepath.Join(dir, strconv.FormatUint(uint64(sub), 10)+".bin.new")
}

func indexPathNew(root string, block common.BlockID) string {
	dir := metadata.BlockDir(root, block)
	return filepath.Join(dir, "index.bin.new")
}
