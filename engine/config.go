package engine

import (
	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/common"
	"github.com/brandonshearin/vcgraph/scheduler"
)

// Config configures one Engine instance, gathering the external
// interfaces spec.md §6 lists as CLI flags into a plain struct the way
// bspgraph.GraphConfig does for its own workers/queue-factory pair in
// the teacher package this was adapted from.
type Config struct {
	// RootPath is the graph root directory (-i).
	RootPath string

	// Parallelism is the Executor pool's worker count (-p).
	Parallelism int

	// TaskSize is the minimum chunk width MapVertex hands to a single
	// pool task. MapEdge and MapEdgeAndMutate dispatch one task per
	// sub-block and do not use it.
	TaskSize uint32

	// TaskPackageFactor controls how many tasks are submitted per
	// worker before chunk width is allowed to grow past TaskSize.
	TaskPackageFactor int

	// EdgeBufferBudget bounds total resident edge bytes (--buffer_size);
	// 0 means unbounded (--in_memory).
	EdgeBufferBudget uint64

	// MemoryBudget and PreReadSlots select the Scheduler's coarse block
	// admission policy; see scheduler.Config.
	MemoryBudget uint64
	PreReadSlots int

	// ShortCut keeps the round's last block resident across round
	// boundaries (--short_cut).
	ShortCut bool

	// ReaderQueueDepth bounds the Reader's in-flight sub-block I/O count
	// (QD in spec.md §4.3).
	ReaderQueueDepth int

	// Mode selects block admission order (--mode normal|static|random);
	// see scheduler.Mode. Zero value is scheduler.ModeNormal.
	Mode scheduler.Mode

	// StaticOrder is the fixed admission order for Mode == ModeStatic.
	StaticOrder []common.BlockID

	// RandomSeed seeds the permutation for Mode == ModeRandom.
	RandomSeed uint64
}

func (c Config) validate() error {
	if c.RootPath == "" {
		return xerrors.New("engine: config invalid: RootPath is required")
	}
	if c.Parallelism < 1 {
		return xerrors.New("engine: config invalid: Parallelism must be >= 1")
	}
	if c.EdgeBufferBudget == 0 && c.MemoryBudget == 0 && c.PreReadSlots == 0 {
		return xerrors.New("engine: config invalid: running fully unbounded requires EdgeBufferBudget=0 together with an explicit admission policy; set MemoryBudget or PreReadSlots")
	}
	return nil
}

func (c Config) schedulerConfig() scheduler.Config {
	return scheduler.Config{
		MemoryBudget: c.MemoryBudget,
		PreReadSlots: c.PreReadSlots,
		ShortCut:     c.ShortCut,
		Mode:         c.Mode,
		StaticOrder:  c.StaticOrder,
		RandomSeed:   c.RandomSeed,
	}
}
