package scheduler

// BlockState is a block's position in the per-round lifecycle spec.md
// §4.1 describes. This implementation folds the spec's two distinct
// "Serialized" states (post-read, pre-write) into the surrounding
// transition, since the Reader already decodes a sub-block's bytes
// into a VertexID slice inline rather than leaving a separate
// deserialize step for the Executor to perform — see DESIGN.md.
//
// Read and Execute are dispatched together at admission time and run
// concurrently (the Executor drains the EdgeBuffer's ready-queue as the
// Reader fills it), so Reading and Deserialized track a two-step
// completion counter for the {Read, Execute} pair rather than a strict
// phase sequence: either response may arrive first.
type BlockState int

const (
	// OnDisk is a block's rest state: no sub-block is resident, nothing
	// outstanding against it.
	OnDisk BlockState = iota
	// Reading means the block has been admitted and both its
	// ReadRequest and ExecuteRequest are in flight; neither has
	// responded yet.
	Reading
	// Deserialized means one of {ReadResponse, ExecuteResponse} has
	// arrived; the other is still outstanding.
	Deserialized
	// Computed means both have arrived: the block's Compute phase
	// finished and every sub-block has been drained from the
	// EdgeBuffer. It is either about to be written back
	// (MapEdgeAndMutate) or released directly.
	Computed
	// Writing means a WriteRequest for this block is in flight.
	Writing
)

func (s BlockState) String() string {
	switch s {
	case OnDisk:
		return "OnDisk"
	case Reading:
		return "Reading"
	case Deserialized:
		return "Deserialized"
	case Computed:
		return "Computed"
	case Writing:
		return "Writing"
	default:
		return "Unknown"
	}
}
