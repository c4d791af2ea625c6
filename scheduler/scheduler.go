// Package scheduler implements the Scheduler: the cooperative
// top-level state machine that streams blocks through
// OnDisk -> Reading -> Deserialized -> Computed -> (Writing ->) OnDisk
// for a MapEdge or MapEdgeAndMutate round (spec.md §4.1).
//
// Read and Execute run concurrently once a block is admitted: the
// Reader streams each of its sub-blocks into the EdgeBuffer's
// ready-queue as soon as it is resident, and the Executor drains that
// queue and calls EdgeBuffer.Finish as it consumes each sub-block, so a
// block whose total edge bytes exceed the configured EdgeBufferBudget
// still makes progress instead of deadlocking on a budget that nothing
// ever refunds. Reading and Deserialized therefore track "neither of
// the pair has responded yet" and "one of the pair has", not a strict
// read-then-execute sequence.
//
// MapVertex never reaches the Scheduler at all: VertexState is fully
// resident for the engine's whole lifetime, so a vertex-only kernel has
// no out-of-core dependency to stream against (see DESIGN.md for the
// Open Question this resolves). Only edge data is block-streamed.
package scheduler

import (
	"math/rand/v2"

	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/blockgraph"
	"github.com/brandonshearin/vcgraph/common"
	"github.com/brandonshearin/vcgraph/edgebuffer"
	"github.com/brandonshearin/vcgraph/hub"
	"github.com/brandonshearin/vcgraph/message"
	"github.com/brandonshearin/vcgraph/metadata"
)

// Scheduler owns per-block round state and drives the MessageHub on
// behalf of whichever edge-map call is currently running. One
// Scheduler instance is reused across every MapEdge/MapEdgeAndMutate
// call an engine makes.
type Scheduler struct {
	hub     *hub.MessageHub
	edgeBuf *edgebuffer.EdgeBuffer
	graphs  map[common.BlockID]*blockgraph.BlockGraph
	order   []common.BlockID
	cfg     Config

	// approxSize records the footprint each admitted block was debited
	// under the coarse admission policy, so releaseBlock can refund the
	// same amount. It comes from blockSize's static-metadata estimate,
	// which does not shrink after MapEdgeAndMutate deletes edges.
	approxSize map[common.BlockID]uint64
}

// New constructs a Scheduler over every block in meta, admitted in the
// order cfg.Mode selects: meta's block order for ModeNormal,
// cfg.StaticOrder for ModeStatic, a seeded shuffle for ModeRandom.
func New(h *hub.MessageHub, edgeBuf *edgebuffer.EdgeBuffer, graphs map[common.BlockID]*blockgraph.BlockGraph, meta *metadata.GraphMeta, cfg Config) (*Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	order := make([]common.BlockID, len(meta.Blocks))
	for i, b := range meta.Blocks {
		order[i] = b.ID
	}

	switch cfg.Mode {
	case ModeStatic:
		if len(cfg.StaticOrder) != len(order) {
			return nil, xerrors.New("scheduler: StaticOrder must name every block exactly once")
		}
		order = append([]common.BlockID(nil), cfg.StaticOrder...)
	case ModeRandom:
		rnd := rand.New(rand.NewPCG(cfg.RandomSeed, 0))
		rnd.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	return &Scheduler{
		hub:        h,
		edgeBuf:    edgeBuf,
		graphs:     graphs,
		order:      order,
		cfg:        cfg,
		approxSize: make(map[common.BlockID]uint64),
	}, nil
}

// round holds the bookkeeping for one in-progress RunEdgeMap call.
type round struct {
	mapKind      message.MapKind
	edgeFn       message.EdgeFunc
	edgeMutateFn message.EdgeMutateFunc

	state   map[common.BlockID]BlockState
	pending []common.BlockID // blocks not yet admitted, in admission order
	done    int

	budgetLeft uint64
	slotsLeft  int

	firstErr error
}

// RunEdgeMap drives one full round of MapEdge or MapEdgeAndMutate
// across every block, admitting blocks under the configured budget,
// and calls sync exactly once after every block reaches OnDisk again.
func (s *Scheduler) RunEdgeMap(kind message.MapKind, edgeFn message.EdgeFunc, edgeMutateFn message.EdgeMutateFunc, sync func()) error {
	r := &round{
		mapKind:      kind,
		edgeFn:       edgeFn,
		edgeMutateFn: edgeMutateFn,
		state:        make(map[common.BlockID]BlockState, len(s.order)),
		pending:      append([]common.BlockID(nil), s.order...),
		budgetLeft:   s.cfg.MemoryBudget,
		slotsLeft:    s.cfg.PreReadSlots,
	}
	for _, id := range s.order {
		r.state[id] = OnDisk
	}

	s.admitNext(r)

	for r.done < len(s.order) {
		msg, ok := s.hub.Response.PopOrWait()
		if !ok {
			return xerrors.Errorf("scheduler: %w: response queue closed mid-round", common.ErrProtocolViolation)
		}

		switch msg.Kind {
		case message.KindRead:
			s.onReadResponse(r, msg.ReadResp)
		case message.KindExecute:
			s.onExecuteResponse(r, msg.ExecuteResp)
		case message.KindWrite:
			s.onWriteResponse(r, msg.WriteResp)
		default:
			return xerrors.Errorf("scheduler: %w: unexpected %s message on response queue", common.ErrProtocolViolation, msg.Kind)
		}

		if r.firstErr != nil {
			return xerrors.Errorf("scheduler: round aborted: %w", r.firstErr)
		}
	}

	sync()
	return nil
}

func (s *Scheduler) onReadResponse(r *round, resp message.ReadResponse) {
	if resp.Err != nil {
		r.firstErr = resp.Err
		return
	}
	s.advance(r, resp.Block)
}

func (s *Scheduler) onExecuteResponse(r *round, resp message.ExecuteResponse) {
	if resp.Err != nil {
		r.firstErr = resp.Err
		return
	}
	s.advance(r, resp.Block)
}

// advance records that one of {Read, Execute} has completed for block.
// Since both are dispatched together at admission time and run
// concurrently (the Executor drains the EdgeBuffer's ready-queue as the
// Reader fills it), either response may arrive first; BlockState is
// reused as a two-step counter rather than a strict phase sequence:
// Reading -> Deserialized on the first of the pair to respond,
// Deserialized -> Computed (and on) on the second.
func (s *Scheduler) advance(r *round, block common.BlockID) {
	switch r.state[block] {
	case Reading:
		r.state[block] = Deserialized
		return
	case Deserialized:
		r.state[block] = Computed
	default:
		return
	}

	if r.mapKind == message.MapEdgeAndMutate {
		r.state[block] = Writing
		s.hub.Writer.Push(message.WriteMsg(message.WriteRequest{Block: block}))
		return
	}

	s.releaseBlock(r, block)
}

func (s *Scheduler) onWriteResponse(r *round, resp message.WriteResponse) {
	if resp.Err != nil {
		r.firstErr = resp.Err
		return
	}

	g := s.graphs[resp.Block]
	g.BumpGeneration()
	s.releaseBlock(r, resp.Block)
}

// releaseBlock frees a block's resident sub-blocks (unless it is the
// round's designated ShortCut survivor), returns it to OnDisk, refunds
// the coarse admission budget, and tries to admit the next pending
// block.
func (s *Scheduler) releaseBlock(r *round, block common.BlockID) {
	isShortCutSurvivor := s.cfg.ShortCut && block == s.order[len(s.order)-1]
	if !isShortCutSurvivor {
		// Spare the whole block by skipping release entirely rather than
		// threading a single surviving sub-block id through ReleaseAll.
		s.edgeBuf.ReleaseAll(block, nil)

		// ReleaseAll only flips the EdgeBuffer's own bookkeeping; the
		// actual edge slices live in BlockGraph and must be dropped here
		// too, or every sub-block ever loaded stays referenced for the
		// life of the process (spec.md §3's "freed by EdgeBuffer when
		// marked finished or when eviction is required").
		if g := s.graphs[block]; g != nil {
			for _, sub := range g.Meta().SubBlocks {
				g.ClearResident(sub.ID)
			}
		}
	}

	r.state[block] = OnDisk
	r.done++

	if s.cfg.usesSlots() {
		r.slotsLeft++
	} else {
		r.budgetLeft += s.approxSize[block]
	}

	s.admitNext(r)
}

// admitNext pushes ReadRequests for as many pending blocks as the
// configured admission policy currently allows, per spec.md §4.1's
// TryReadNext: first pending block in admission order, gated on byte budget or
// slot count. Each admitted block's ExecuteRequest is pushed in the same
// breath: the Executor drains the EdgeBuffer's ready-queue as the Reader
// fills it, rather than waiting for the whole block to finish reading,
// so a block bigger than EdgeBufferBudget still drains incrementally
// instead of deadlocking on a budget nothing would otherwise refund.
func (s *Scheduler) admitNext(r *round) {
	for len(r.pending) > 0 {
		block := r.pending[0]
		g := s.graphs[block]
		size := s.blockSize(g)

		if s.cfg.usesSlots() {
			if r.slotsLeft <= 0 {
				return
			}
			r.slotsLeft--
		} else {
			if r.budgetLeft < size {
				return
			}
			r.budgetLeft -= size
		}

		s.approxSize[block] = size
		r.pending = r.pending[1:]
		r.state[block] = Reading
		s.hub.Reader.Push(message.ReadMsg(message.ReadRequest{Block: block, Generation: g.Generation()}))
		s.hub.Executor.Push(message.ExecuteMsg(message.ExecuteRequest{
			Block:        block,
			Map:          r.mapKind,
			VertexFn:     nil,
			EdgeFn:       r.edgeFn,
			EdgeMutateFn: r.edgeMutateFn,
		}))
	}
}

// blockSize estimates a block's on-disk footprint from its static
// metadata (sum of SubBlockMeta.NumEdges, 4 bytes per edge), cheap
// relative to actually loading the sub-block files. It does not reflect
// edges deleted by an earlier MapEdgeAndMutate round.
func (s *Scheduler) blockSize(g *blockgraph.BlockGraph) uint64 {
	meta := g.Meta()
	var edges uint64
	for _, sub := range meta.SubBlocks {
		edges += uint64(sub.NumEdges)
	}
	return edges * 4
}
