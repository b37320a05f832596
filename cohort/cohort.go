package cohort

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/grailbio/base/errors"
)

// SeqType is the kind of sample sequenced by a cohort.
type SeqType string

const (
	// Tumour cohorts sequence the tumour samples of the subject.
	Tumour SeqType = "tumour"
	// Normal cohorts sequence the germline of the subject.
	Normal SeqType = "normal"
	// NormalWithPreneoplastic cohorts sequence normal tissue including
	// preneoplastic clones.
	NormalWithPreneoplastic SeqType = "normal_with_preneoplastic"
)

// ParseSeqType converts a string into a SeqType.
func ParseSeqType(s string) (SeqType, error) {
	switch t := SeqType(s); t {
	case Tumour, Normal, NormalWithPreneoplastic:
		return t, nil
	}
	return "", errors.E(errors.Invalid,
		fmt.Sprintf("unsupported sequence type %q; only %q, %q, and %q are supported",
			s, Tumour, Normal, NormalWithPreneoplastic))
}

// IsTumour reports whether t sequences tumour samples.
func (t SeqType) IsTumour() bool { return t == Tumour }

// Status is the Sarek status flag of samples of this type: 1 for tumour, 0
// otherwise.
func (t SeqType) Status() int {
	if t.IsTumour() {
		return 1
	}
	return 0
}

// Spec describes the cohort of one sequence type.
type Spec struct {
	Type SeqType `yaml:"type"`
	// MaxCoverage is the overall coverage, in x, simulated across all the lots
	// of a group.
	MaxCoverage int `yaml:"max_coverage"`
	// Purities lists the tumour purities to simulate. Normal cohorts have a
	// single implicit purity of 1.
	Purities []float64 `yaml:"purities"`
}

// purities returns the purities of the spec, filling in the implicit purity
// of normal cohorts.
func (s Spec) purities() []float64 {
	if len(s.Purities) == 0 && !s.Type.IsTumour() {
		return []float64{1}
	}
	return s.Purities
}

// Groups returns one group per purity of the spec, rooted at root.
func (s Spec) Groups(root string) []Group {
	var groups []Group
	for _, purity := range s.purities() {
		groups = append(groups, NewGroup(root, s, purity))
	}
	return groups
}

// Group is the set of lots simulated for one (sequence type, purity) pair.
type Group struct {
	Spec
	Purity float64
	// Dir is the output directory of the group. Jobs write their outputs and
	// completion markers here.
	Dir string
}

// NewGroup returns the group of spec at the given purity, rooted at root.
func NewGroup(root string, spec Spec, purity float64) Group {
	return Group{
		Spec:   spec,
		Purity: purity,
		Dir:    filepath.Join(root, string(spec.Type), "purity_"+FormatPurity(purity)),
	}
}

// LogDir is the directory receiving the job logs of the group.
func (g Group) LogDir() string { return filepath.Join(g.Dir, "log") }

// FastqDir is the directory where the jobs of the group place their reads.
func (g Group) FastqDir() string { return filepath.Join(g.Dir, "FASTQ") }

// LotCoverage is the coverage simulated by each of numLots lots.
func (g Group) LotCoverage(numLots int) float64 {
	return float64(g.MaxCoverage) / float64(numLots)
}

func (g Group) String() string {
	return fmt.Sprintf("%s/purity_%s", g.Type, FormatPurity(g.Purity))
}

// FormatPurity renders a purity the way it appears in directory and manifest
// names, e.g. "0.3" or "1".
func FormatPurity(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
