package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/grailbio/cohortsim/cohort"
)

// Job describes one submission to the batch queue.
type Job struct {
	// Name labels the job in the queue, e.g. "SPN01_t07".
	Name string
	// Script references the executable run by the job. Its content is opaque.
	Script string
	// MemoryGB is the memory to request for the job.
	MemoryGB int
	// LogPath receives the output of the job.
	LogPath string
	// Params are exported to the job's environment.
	Params map[string]string
}

// Queue is the batch-job queue. Submit returns once the queue has accepted
// the job; the job then runs asynchronously and reports completion only by
// creating its marker.
type Queue interface {
	Submit(ctx context.Context, job Job) error
}

// Template holds the parameters shared by all the lot jobs of a run.
type Template struct {
	// Script is the lot simulation job script.
	Script string
	// Subject is the subject identifier, e.g. "SPN01".
	Subject string
	// Forest is the path of the phylogenetic forest to sequence.
	Forest string
	// NodeScratch is the node-local directory jobs work in.
	NodeScratch string
	// MemoryGB is the memory requested per lot; see cohort.MemoryPerLot.
	MemoryGB int
	// NumLots is the number of lots per group.
	NumLots int
}

// Lot returns the job simulating lot index, named name, of group g. The lot
// index doubles as the simulation seed so a rerun of a lot reproduces its
// reads.
func (t Template) Lot(g cohort.Group, name string, index int) Job {
	return Job{
		Name:     fmt.Sprintf("%s_%s", t.Subject, name),
		Script:   t.Script,
		MemoryGB: t.MemoryGB,
		LogPath:  filepath.Join(g.LogDir(), fmt.Sprintf("lot_%s.log", name)),
		Params: map[string]string{
			"PHYLO_FOREST": t.Forest,
			"SPN":          t.Subject,
			"LOT":          name,
			"DEST":         g.Dir,
			"COVERAGE":     strconv.FormatFloat(g.LotCoverage(t.NumLots), 'f', -1, 64),
			"TYPE":         string(g.Type),
			"NODE_SCRATCH": t.NodeScratch,
			"SEED":         strconv.Itoa(index),
			"PURITY":       cohort.FormatPurity(g.Purity),
			"MEMORY":       strconv.Itoa(t.MemoryGB),
		},
	}
}

// Sex returns the job that determines the sex of the subject from the forest
// and writes it to cohort.SexPath(t.Forest).
func (t Template) Sex(script string) Job {
	return Job{
		Name:   t.Subject + "_sex",
		Script: script,
		Params: map[string]string{"PHYLO_FOREST": t.Forest},
	}
}
