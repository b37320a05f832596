// Package slurm submits scheduler jobs to a Slurm cluster with sbatch.
package slurm

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cohortsim/scheduler"
	"v.io/x/lib/gosh"
	"v.io/x/lib/lookpath"
)

// Opts configures a Submitter.
type Opts struct {
	// Account is the account jobs are charged to.
	Account string
	// Partition is the cluster partition jobs run on.
	Partition string
	// Exclude lists the nodes jobs must not run on, in sbatch syntax.
	Exclude string
	// Command is the submission program. It defaults to "sbatch", looked up
	// in $PATH.
	Command string
}

// Submitter implements scheduler.Queue by running sbatch once per job.
type Submitter struct {
	opts Opts
	path string

	mu sync.Mutex
	sh *gosh.Shell
}

var _ scheduler.Queue = (*Submitter)(nil)

var jobIDRE = regexp.MustCompile(`Submitted batch job (\d+)`)

// New returns a Submitter. It fails if the submission program cannot be
// found. Close must be called when the submitter is no longer used.
func New(opts Opts) (*Submitter, error) {
	if opts.Command == "" {
		opts.Command = "sbatch"
	}
	sh := gosh.NewShell(nil)
	sh.ContinueOnError = true
	path, err := lookpath.Look(sh.Vars, opts.Command)
	if err != nil {
		sh.Cleanup()
		return nil, errors.E(errors.NotExist, fmt.Sprintf("%s not found", opts.Command), err)
	}
	return &Submitter{opts: opts, path: path, sh: sh}, nil
}

// Submit runs sbatch for job. It returns an error if sbatch exits with a
// non-zero status; the error carries sbatch's standard error.
func (s *Submitter) Submit(ctx context.Context, job scheduler.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	args := s.args(job)
	log.Debug.Printf("%s %s", s.path, strings.Join(args, " "))

	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := s.sh.Cmd(s.path, args...)
	stdout, stderr := cmd.StdoutStderr()
	if err := cmd.Err; err != nil {
		s.sh.Err = nil
		return errors.E(fmt.Sprintf("%s: %s", job.Name, strings.TrimSpace(stderr)), err)
	}
	if m := jobIDRE.FindStringSubmatch(stdout); m != nil {
		log.Printf("%s: slurm job %s", job.Name, m[1])
	} else {
		log.Printf("%s: submitted (%s)", job.Name, strings.TrimSpace(stdout))
	}
	return nil
}

// args renders the sbatch command line of a job. Exported parameters are
// sorted so that a job always produces the same command.
func (s *Submitter) args(job scheduler.Job) []string {
	var args []string
	if s.opts.Account != "" {
		args = append(args, "--account="+s.opts.Account)
	}
	if s.opts.Partition != "" {
		args = append(args, "--partition="+s.opts.Partition)
	}
	if job.Name != "" {
		args = append(args, "--job-name="+job.Name)
	}
	if job.MemoryGB > 0 {
		args = append(args, fmt.Sprintf("--mem=%dG", job.MemoryGB))
	}
	if len(job.Params) > 0 {
		keys := make([]string, 0, len(job.Params))
		for k := range job.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		vars := make([]string, len(keys))
		for i, k := range keys {
			vars[i] = k + "=" + job.Params[k]
		}
		args = append(args, "--export="+strings.Join(vars, ","))
	}
	if job.LogPath != "" {
		args = append(args, "--output="+job.LogPath)
	}
	if s.opts.Exclude != "" {
		args = append(args, "--exclude="+s.opts.Exclude)
	}
	return append(args, job.Script)
}

// Close releases the resources of the submitter.
func (s *Submitter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sh.Cleanup()
	return nil
}
