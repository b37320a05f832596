package cohort

import (
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
)

// ScratchMultiplier converts the coverage of a lot into the node scratch
// space, in GB, its job needs while simulating and splitting reads.
const ScratchMultiplier = 3 * 5

// Resources describes the capacity of one cluster node.
type Resources struct {
	// MemPerNodeGB is the memory of a node, in GB.
	MemPerNodeGB float64
	// ScratchPerNodeGB is the node-local scratch space, in GB.
	ScratchPerNodeGB float64
}

// DefaultResources matches the nodes the simulations were first run on.
var DefaultResources = Resources{
	MemPerNodeGB:     512,
	ScratchPerNodeGB: 300,
}

// MemoryPerLot returns the memory, in GB, to request for each lot job. Jobs
// are sized so that the node memory is shared among jobs in proportion to
// the scratch space they use; the result is never below a fifth of a node.
//
// For example, with 512GB/300GB nodes, 40 lots and a max coverage of 200x,
// each lot needs 75GB of scratch and is allotted ceil(512*75/300) = 128GB.
func MemoryPerLot(r Resources, numLots, maxCoverage int, multiplier float64) (int, error) {
	switch {
	case r.MemPerNodeGB <= 0:
		return 0, errors.E(errors.Invalid, fmt.Sprintf("memory per node must be positive, got %v", r.MemPerNodeGB))
	case r.ScratchPerNodeGB <= 0:
		return 0, errors.E(errors.Invalid, fmt.Sprintf("scratch per node must be positive, got %v", r.ScratchPerNodeGB))
	case numLots <= 0:
		return 0, errors.E(errors.Invalid, fmt.Sprintf("number of lots must be positive, got %d", numLots))
	case maxCoverage <= 0:
		return 0, errors.E(errors.Invalid, fmt.Sprintf("max coverage must be positive, got %d", maxCoverage))
	case multiplier <= 0:
		return 0, errors.E(errors.Invalid, fmt.Sprintf("scratch multiplier must be positive, got %v", multiplier))
	}
	spacePerLot := multiplier * float64(maxCoverage) / float64(numLots)
	mem := int(math.Ceil(r.MemPerNodeGB * spacePerLot / r.ScratchPerNodeGB))
	if floor := int(math.Ceil(r.MemPerNodeGB / 5)); mem < floor {
		mem = floor
	}
	return mem, nil
}
