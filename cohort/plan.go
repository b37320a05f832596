package cohort

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"gopkg.in/yaml.v3"
)

// Plan lists the cohorts simulated for a subject.
type Plan struct {
	// NumLots is the number of independent jobs each group is split into.
	NumLots int `yaml:"num_lots"`
	// Coverages lists the aggregate tumour coverages, in x, for which manifests
	// are written.
	Coverages []int  `yaml:"coverages"`
	Cohorts   []Spec `yaml:"cohorts"`
}

// DefaultPlan is the cohort layout used when no plan file is given.
var DefaultPlan = Plan{
	NumLots:   40,
	Coverages: []int{50, 100, 150, 200},
	Cohorts: []Spec{
		{Type: Tumour, MaxCoverage: 200, Purities: []float64{0.3, 0.6, 0.9}},
		{Type: Normal, MaxCoverage: 50, Purities: []float64{1}},
	},
}

// LoadPlan reads a YAML plan, e.g.
//
//	num_lots: 40
//	coverages: [50, 100, 150, 200]
//	cohorts:
//	  - type: tumour
//	    max_coverage: 200
//	    purities: [0.3, 0.6, 0.9]
//	  - type: normal
//	    max_coverage: 50
//
// The returned plan has been validated.
func LoadPlan(ctx context.Context, path string) (Plan, error) {
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return Plan{}, errors.E(err, "read plan", path)
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plan{}, errors.E(errors.Invalid, "parse plan "+path, err)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, errors.E(err, path)
	}
	return p, nil
}

// Validate checks that the plan describes a runnable set of cohorts. All
// failures are of kind errors.Invalid.
func (p Plan) Validate() error {
	if p.NumLots <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("number of lots must be positive, got %d", p.NumLots))
	}
	if len(p.Cohorts) == 0 {
		return errors.E(errors.Invalid, "plan has no cohorts")
	}
	seen := map[SeqType]bool{}
	for _, spec := range p.Cohorts {
		if _, err := ParseSeqType(string(spec.Type)); err != nil {
			return err
		}
		if seen[spec.Type] {
			return errors.E(errors.Invalid, fmt.Sprintf("cohort %q listed twice", spec.Type))
		}
		seen[spec.Type] = true
		if spec.MaxCoverage <= 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("cohort %q: max coverage must be positive, got %d", spec.Type, spec.MaxCoverage))
		}
		purities := spec.purities()
		if len(purities) == 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("cohort %q: no purities", spec.Type))
		}
		for _, purity := range purities {
			if purity <= 0 || purity > 1 {
				return errors.E(errors.Invalid, fmt.Sprintf("cohort %q: purity %v out of (0, 1]", spec.Type, purity))
			}
		}
	}
	tumour, hasTumour := p.Cohort(Tumour)
	for _, cov := range p.Coverages {
		if cov <= 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("coverage must be positive, got %d", cov))
		}
		if hasTumour && cov > tumour.MaxCoverage {
			return errors.E(errors.Invalid, fmt.Sprintf("coverage %dx exceeds the tumour max coverage %dx", cov, tumour.MaxCoverage))
		}
	}
	return nil
}

// Cohort returns the spec of the given sequence type.
func (p Plan) Cohort(t SeqType) (Spec, bool) {
	for _, spec := range p.Cohorts {
		if spec.Type == t {
			return spec, true
		}
	}
	return Spec{}, false
}

// NormalReference returns the cohort providing the normal rows of manifests:
// the normal cohort if present, else the one with preneoplastic clones.
func (p Plan) NormalReference() (Spec, bool) {
	if spec, ok := p.Cohort(Normal); ok {
		return spec, true
	}
	return p.Cohort(NormalWithPreneoplastic)
}

// MaxCoverage is the largest max coverage across cohorts. It sizes the scratch
// space needed by the most demanding lot.
func (p Plan) MaxCoverage() int {
	max := 0
	for _, spec := range p.Cohorts {
		if spec.MaxCoverage > max {
			max = spec.MaxCoverage
		}
	}
	return max
}

// Groups lists every (sequence type, purity) group of the plan rooted at root,
// in plan order.
func (p Plan) Groups(root string) []Group {
	var groups []Group
	for _, spec := range p.Cohorts {
		groups = append(groups, spec.Groups(root)...)
	}
	return groups
}
