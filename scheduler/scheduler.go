package scheduler

import (
	"context"
	"os"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cohortsim/cohort"
	"github.com/grailbio/cohortsim/lot"
)

// Opts configures a Scheduler.
type Opts struct {
	// MaxInFlight caps the number of lot jobs submitted but not yet complete.
	MaxInFlight int
	// PollInterval is the time between two scans of a group directory.
	PollInterval time.Duration
	// Force invalidates the completion markers of each group before it is
	// scheduled, so that all of its lots are simulated again.
	Force bool
	// ForceCheckpoints, with Force, also removes the intermediate markers
	// jobs use to resume partially simulated lots.
	ForceCheckpoints bool
}

// DefaultOpts are the default scheduler options.
var DefaultOpts = Opts{
	MaxInFlight:  40,
	PollInterval: time.Minute,
}

// Scheduler submits the lots of cohort groups to a queue and waits for them
// to complete. Groups are processed one at a time.
type Scheduler struct {
	Queue    Queue
	Template Template
	Opts     Opts
	// Sleep waits for d or until ctx is done. It defaults to a timer; tests
	// replace it to advance simulated jobs between cycles.
	Sleep func(ctx context.Context, d time.Duration) error
}

// RunAll runs every group in order. It stops at the first error.
func (s *Scheduler) RunAll(ctx context.Context, groups []cohort.Group) error {
	for _, g := range groups {
		if err := s.Run(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

// Run schedules the lots of group g until every one of them has a
// completion marker. Run keeps no state besides the group directory: if it
// is interrupted, calling it again resumes where it stopped.
func (s *Scheduler) Run(ctx context.Context, g cohort.Group) error {
	naming, err := lot.NewNaming(g.Type, s.Template.NumLots)
	if err != nil {
		return err
	}
	for _, dir := range []string{g.Dir, g.LogDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.E(err, "create", dir)
		}
	}
	if s.Opts.Force {
		invalidate := lot.Invalidate
		if s.Opts.ForceCheckpoints {
			invalidate = lot.InvalidateCheckpoints
		}
		n, err := invalidate(ctx, g.Dir, naming)
		if err != nil {
			return err
		}
		log.Printf("%s: removed %d markers", g, n)
	}
	r, err := NewReconciler(ctx, s.Queue, g, naming, s.Template, s.Opts.MaxInFlight)
	if err != nil {
		return err
	}
	start := time.Now()
	for {
		p, err := r.Reconcile(ctx)
		if err != nil {
			return err
		}
		if p.Done() {
			log.Printf("%s: all %d lots complete (%d submitted, %v)", g, p.Total, p.Submitted, time.Since(start).Round(time.Second))
			return nil
		}
		if err := s.sleep(ctx, s.Opts.PollInterval); err != nil {
			return err
		}
	}
}

// WaitForFile polls until path exists. It is used for results of jobs other
// than lots, which signal completion by creating their output. Errors other
// than the file not existing yet are returned.
func (s *Scheduler) WaitForFile(ctx context.Context, path string) error {
	for {
		_, err := file.Stat(ctx, path)
		if err == nil {
			return nil
		}
		if !errors.Is(errors.NotExist, err) && !os.IsNotExist(err) {
			return errors.E(err, "wait for", path)
		}
		log.Debug.Printf("waiting for %s", path)
		if err := s.sleep(ctx, s.Opts.PollInterval); err != nil {
			return err
		}
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
