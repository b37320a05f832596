// Package manifest aggregates the FASTQ files of simulated lots into Sarek
// sample sheets, one per (coverage, tumour purity).
//
// A manifest at coverage c uses, for each tumour sample, the first
// LotsNeeded(c) lots of the tumour group, followed by every lot of the normal
// reference sample:
//
//	patient,sex,status,sample,lane,fastq_1,fastq_2
//	SPN01,XY,1,SPN01_1.1,L01,/out/tumour/purity_0.3/FASTQ/t00_SPN01_1.1.R1.fastq.gz,...
//	...
//	SPN01,XY,0,normal_sample,L01,/out/normal/purity_1/FASTQ/n00_normal_sample.R1.fastq.gz,...
package manifest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/cohortsim/cohort"
	"github.com/grailbio/cohortsim/lot"
)

// Columns of a manifest.
var Columns = []string{"patient", "sex", "status", "sample", "lane", "fastq_1", "fastq_2"}

// NormalSample is the name of the sample simulated by normal lots.
const NormalSample = "normal_sample"

// Opts configures Aggregate.
type Opts struct {
	// Subject is the patient column.
	Subject string
	// Sex is the sex column, copied verbatim.
	Sex string
	// Root is the output root of the cohort.
	Root string
	// Plan describes the groups and the manifest coverages.
	Plan cohort.Plan
}

// Result describes a manifest written by Aggregate.
type Result struct {
	Path     string
	Coverage int
	Purity   float64
	// Rows counts the data rows.
	Rows int
	// Fingerprint is the farm fingerprint of the file content. Two runs over
	// the same reads produce the same fingerprint.
	Fingerprint uint64
	// Unchanged is set when the file already had this fingerprint and was
	// left as is.
	Unchanged bool
}

// Dir returns the directory manifests are written to.
func Dir(root string) string { return filepath.Join(root, "sarek") }

// Path returns the path of the manifest for a coverage and purity.
func Path(root string, coverage int, purity float64) string {
	return filepath.Join(Dir(root), fmt.Sprintf("sarek_%dx_%sp.csv", coverage, cohort.FormatPurity(purity)))
}

// LotsNeeded returns the number of lots, each simulating maxCoverage/numLots,
// needed to reach coverage.
func LotsNeeded(coverage, numLots, maxCoverage int) int {
	return (coverage*numLots + maxCoverage - 1) / maxCoverage
}

// LaneWidth is the number of digits of lane numbers in a manifest with
// samples tumour samples.
func LaneWidth(numLots, samples int) int {
	return lot.Width(numLots * (samples + 1))
}

// Aggregate writes a manifest for every combination of plan coverage and
// tumour purity. Missing samples or reads are reported as errors.NotExist
// errors, before any manifest is written. Manifests are a deterministic
// function of the discovered files: a manifest whose fingerprint matches the
// existing file is not rewritten, so downstream runs keyed on the file see no
// change.
func Aggregate(ctx context.Context, opts Opts) ([]Result, error) {
	tumour, ok := opts.Plan.Cohort(cohort.Tumour)
	if !ok {
		return nil, errors.E(errors.Invalid, "manifests need a tumour cohort")
	}
	normal, ok := opts.Plan.NormalReference()
	if !ok {
		return nil, errors.E(errors.Invalid, "manifests need a normal cohort")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	numLots := opts.Plan.NumLots
	groups := append(tumour.Groups(root), normal.Groups(root)[0])
	reads := make([]Reads, len(groups))
	err = traverse.Each(len(groups), func(i int) error {
		var err error
		reads[i], err = Discover(ctx, groups[i], numLots)
		return err
	})
	if err != nil {
		return nil, err
	}
	normalReads := reads[len(reads)-1]

	type manifest struct {
		path     string
		coverage int
		purity   float64
		rows     [][]string
	}
	var manifests []manifest
	for _, tr := range reads[:len(reads)-1] {
		if len(tr.Samples) == 0 {
			return nil, errors.E(errors.NotExist, fmt.Sprintf("%s: no samples in %s", tr.Group, tr.Group.FastqDir()))
		}
		width := LaneWidth(numLots, len(tr.Samples))
		for _, coverage := range opts.Plan.Coverages {
			m := manifest{
				path:     Path(root, coverage, tr.Group.Purity),
				coverage: coverage,
				purity:   tr.Group.Purity,
			}
			for _, sample := range tr.Samples {
				rows, err := opts.rows(tr, sample, LotsNeeded(coverage, numLots, tumour.MaxCoverage), width)
				if err != nil {
					return nil, err
				}
				m.rows = append(m.rows, rows...)
			}
			rows, err := opts.rows(normalReads, NormalSample, numLots, width)
			if err != nil {
				return nil, err
			}
			m.rows = append(m.rows, rows...)
			manifests = append(manifests, m)
		}
	}

	if err := os.MkdirAll(Dir(root), 0755); err != nil {
		return nil, errors.E(err, "create", Dir(root))
	}
	results := make([]Result, len(manifests))
	for i, m := range manifests {
		fp, unchanged, err := write(ctx, m.path, m.rows)
		if err != nil {
			return nil, err
		}
		results[i] = Result{Path: m.path, Coverage: m.coverage, Purity: m.purity, Rows: len(m.rows), Fingerprint: fp, Unchanged: unchanged}
		if unchanged {
			log.Printf("%s: unchanged, fingerprint %016x", m.path, fp)
		} else {
			log.Printf("%s: %d rows, fingerprint %016x", m.path, len(m.rows), fp)
		}
	}
	return results, nil
}

// rows returns the manifest rows of the first numLots lots of sample. Lanes
// are numbered from 1.
func (o Opts) rows(r Reads, sample string, numLots, width int) ([][]string, error) {
	status := strconv.Itoa(r.Group.Type.Status())
	rows := make([][]string, numLots)
	for i := range rows {
		r1, r2, err := r.Pair(sample, i)
		if err != nil {
			return nil, err
		}
		rows[i] = []string{o.Subject, o.Sex, status, sample, fmt.Sprintf("L%0*d", width, i+1), r1, r2}
	}
	return rows, nil
}

// write stores the manifest at path unless path already holds content with
// the same fingerprint.
func write(ctx context.Context, path string, rows [][]string) (fp uint64, unchanged bool, err error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err = w.Write(Columns); err != nil {
		return
	}
	if err = w.WriteAll(rows); err != nil {
		return
	}
	fp = farm.Fingerprint64(buf.Bytes())
	if old, err := file.ReadFile(ctx, path); err == nil && farm.Fingerprint64(old) == fp {
		return fp, true, nil
	}

	out, err := file.Create(ctx, path)
	if err != nil {
		return 0, false, err
	}
	defer file.CloseAndReport(ctx, out, &err)
	_, err = out.Writer(ctx).Write(buf.Bytes())
	return
}
