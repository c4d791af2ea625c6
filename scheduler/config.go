package scheduler

import (
	"golang.org/x/xerrors"

	"github.com/brandonshearin/vcgraph/common"
)

// Mode selects the order in which blocks are admitted within a round
// (spec.md §6's --mode {normal,static,random}).
type Mode int

const (
	// ModeNormal admits blocks in ascending block-id order.
	ModeNormal Mode = iota
	// ModeStatic admits blocks in a caller-supplied fixed order
	// (Config.StaticOrder).
	ModeStatic
	// ModeRandom admits blocks in a seeded-random permutation of
	// ascending block-id order.
	ModeRandom
)

// Config selects the Scheduler's block-level admission policy, the
// coarse-grained counterpart to the EdgeBuffer's own per-sub-block byte
// budget (spec.md §4.1, §6, §9's "3/4 mode vs byte-budget mode").
type Config struct {
	// MemoryBudget bounds how many bytes of block data may be
	// concurrently Reading/Deserialized/Computed/Writing. Ignored if
	// PreReadSlots is nonzero.
	MemoryBudget uint64

	// PreReadSlots, if nonzero, switches admission to slot-count mode:
	// at most this many blocks may be outstanding regardless of size.
	PreReadSlots int

	// ShortCut keeps the sub-blocks of the round's last block in
	// admission order resident across the round boundary instead of
	// releasing them (spec.md §6's --short_cut). The next round's
	// ReadRequest for that block still reloads every one of its
	// sub-blocks from disk.
	ShortCut bool

	// Mode picks the block admission order. Zero value is ModeNormal.
	Mode Mode

	// StaticOrder is the fixed admission order used when Mode is
	// ModeStatic. Must contain every block id exactly once.
	StaticOrder []common.BlockID

	// RandomSeed seeds the permutation used when Mode is ModeRandom.
	// Grounded on PramScheduler's srand(0): a fixed seed of 0 gives a
	// reproducible run unless the caller overrides it.
	RandomSeed uint64
}

func (c Config) validate() error {
	if c.MemoryBudget == 0 && c.PreReadSlots == 0 {
		return xerrors.New("scheduler: config invalid: either MemoryBudget or PreReadSlots must be nonzero")
	}
	if c.Mode == ModeStatic && len(c.StaticOrder) == 0 {
		return xerrors.New("scheduler: config invalid: ModeStatic requires a non-empty StaticOrder")
	}
	return nil
}

func (c Config) usesSlots() bool { return c.PreReadSlots > 0 }
