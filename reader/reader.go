// Package reader implements the Reader worker: it pulls ReadRequests
// off the MessageHub, asynchronously loads the requested block's
// sub-block edge files under a bounded I/O concurrency limit, and
// reports completion back through the EdgeBuffer's ready-queue and the
// hub's response queue (spec.md §4.1, §4.2).
//
// Bounding in-flight reads follows pipeline.DynamicWorkerPool's
// token-pool pattern from the teacher package this was adapted from,
// but is expressed with golang.org/x/sync/errgroup's SetLimit instead
// of a hand-rolled channel of tokens: errgroup additionally collects
// the first error across the batch and gives a single Wait point,
// which the fixed-size fan-out this worker does (one sub-block per
// goroutine, bounded by queue depth) doesn't otherwise need a custom
// type for.
package reader

import (
	"context"
	"encoding/binary"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/blockgraph"
	"github.com/brandonshearin/vcgraph/common"
	"github.com/brandonshearin/vcgraph/edgebuffer"
	"github.com/brandonshearin/vcgraph/hub"
	"github.com/brandonshearin/vcgraph/message"
)

// vertexIDSize is sizeof(common.VertexID) on disk: a packed destination
// id, per spec.md §3's CSR edge array layout.
const vertexIDSize = 4

// Reader owns the per-block views it reads into and the shared
// EdgeBuffer its reads are budgeted against.
type Reader struct {
	hub     *hub.MessageHub
	edgeBuf *edgebuffer.EdgeBuffer
	graphs  map[common.BlockID]*blockgraph.BlockGraph

	// queueDepth bounds how many sub-block reads this worker has
	// in flight at once, independent of the EdgeBuffer's byte budget
	// (spec.md §6's --queue_depth).
	queueDepth int
}

// New constructs a Reader over the given block views, sharing buf as
// the budget every sub-block read is admitted against.
func New(h *hub.MessageHub, buf *edgebuffer.EdgeBuffer, graphs map[common.BlockID]*blockgraph.BlockGraph, queueDepth int) *Reader {
	if queueDepth < 1 {
		queueDepth = 1
	}
	return &Reader{hub: h, edgeBuf: buf, graphs: graphs, queueDepth: queueDepth}
}

// Run drains the Reader queue until it observes a terminate-flagged
// message, handling one ReadRequest at a time. A single Reader handles
// requests sequentially at the block level: when the Scheduler admits
// several blocks at once their ReadRequests wait in the queue, and
// concurrency only happens across one block's own sub-blocks.
func (r *Reader) Run(ctx context.Context) error {
	for {
		msg, ok := r.hub.Reader.PopOrWait()
		if !ok || msg.Terminated {
			return nil
		}
		if msg.Kind != message.KindRead {
			return xerrors.Errorf("reader: %w: got %s message on read queue", message.ErrWrongKind, msg.Kind)
		}

		resp := r.handle(ctx, msg.Read)
		r.hub.Response.Push(message.ReadRespMsg(resp))
	}
}

// handle loads every sub-block of req.Block that IsEnough currently
// admits, backpressuring the rest behind EdgeBuffer.Apply, and pushes
// the sentinel once every sub-block's read has completed (or the batch
// has failed), so through the ready-queue's FIFO discipline the
// Executor sees every sub-block it should expect before the sentinel.
func (r *Reader) handle(ctx context.Context, req message.ReadRequest) message.ReadResponse {
	g, ok := r.graphs[req.Block]
	if !ok {
		return message.ReadResponse{Block: req.Block, Err: xerrors.Errorf("reader: %w: unknown block %d", common.ErrProtocolViolation, req.Block)}
	}

	for g.Generation() < req.Generation {
		g.BumpGeneration()
	}
	if err := g.Load(); err != nil {
		return message.ReadResponse{Block: req.Block, Err: xerrors.Errorf("reader: %w", err)}
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(r.queueDepth)

	var totalBytes atomic.Uint64

	for _, sub := range g.Meta().SubBlocks {
		sub := sub
		key := edgebuffer.Key{Block: req.Block, Sub: sub.ID}
		numEdges := g.SubBlockEdgeCount(sub.ID)
		sizeBytes := uint64(numEdges) * vertexIDSize
		r.edgeBuf.Register(key, sizeBytes)

		grp.Go(func() error {
			if err := r.edgeBuf.Apply(key); err != nil {
				return xerrors.Errorf("admitting sub-block %d: %w", sub.ID, err)
			}

			edges, err := readSubBlock(gctx, g.SubBlockPath(sub.ID), numEdges)
			if err != nil {
				return xerrors.Errorf("reading sub-block %d: %w: %v", sub.ID, common.ErrFatalIO, err)
			}

			g.SetResident(sub.ID, edges)
			r.edgeBuf.PushLoaded(key)
			totalBytes.Add(sizeBytes)
			return nil
		})
	}

	err := grp.Wait()
	r.edgeBuf.PushSentinel(req.Block)

	if err != nil {
		return message.ReadResponse{Block: req.Block, BytesRead: totalBytes.Load(), Err: err}
	}
	return message.ReadResponse{Block: req.Block, BytesRead: totalBytes.Load()}
}

// readSubBlock reads a packed little-endian VertexID array of numEdges
// entries from path.
func readSubBlock(ctx context.Context, path string, numEdges common.EdgeIndex) ([]common.VertexID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw := make([]byte, int(numEdges)*vertexIDSize)
	n := 0
	for n < len(raw) {
		m, err := f.Read(raw[n:])
		n += m
		if err != nil {
			if m == 0 {
				return nil, err
			}
			continue
		}
		if m == 0 {
			return nil, xerrors.Errorf("short read: got %d of %d bytes", n, len(raw))
		}
	}

	edges := make([]common.VertexID, numEdges)
	for i := range edges {
		edges[i] = common.VertexID(binary.LittleEndian.Uint32(raw[i*vertexIDSize:]))
	}
	return edges, nil
}
