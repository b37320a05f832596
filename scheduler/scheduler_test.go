package scheduler_test

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cohortsim/cohort"
	"github.com/grailbio/cohortsim/lot"
	"github.com/grailbio/cohortsim/scheduler"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var tumour = cohort.Spec{Type: cohort.Tumour, MaxCoverage: 200, Purities: []float64{0.3}}

// fakeQueue records submissions and plays the role of the cluster: finish
// creates the completion markers of running jobs.
type fakeQueue struct {
	// dir is the group directory of the latest submission.
	dir      string
	reject   map[string]bool
	onSubmit func()
	jobs     []scheduler.Job
	running  []string
	// maxRunning is the largest number of jobs observed running at once.
	maxRunning int
}

func (q *fakeQueue) Submit(ctx context.Context, job scheduler.Job) error {
	name := job.Params["LOT"]
	if q.reject[name] {
		return fmt.Errorf("sbatch: error: job %s rejected", job.Name)
	}
	q.dir = job.Params["DEST"]
	q.jobs = append(q.jobs, job)
	q.running = append(q.running, name)
	if len(q.running) > q.maxRunning {
		q.maxRunning = len(q.running)
	}
	if q.onSubmit != nil {
		q.onSubmit()
	}
	return nil
}

// finish completes the given running jobs.
func (q *fakeQueue) finish(names ...string) error {
	names = append([]string(nil), names...)
	for _, name := range names {
		if err := ioutil.WriteFile(lot.MarkerPath(q.dir, name), nil, 0644); err != nil {
			return err
		}
		for i, r := range q.running {
			if r == name {
				q.running = append(q.running[:i], q.running[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (q *fakeQueue) submitted() []string {
	var names []string
	for _, job := range q.jobs {
		names = append(names, job.Params["LOT"])
	}
	return names
}

func newTestScheduler(q *fakeQueue, numLots, maxInFlight int) *scheduler.Scheduler {
	return &scheduler.Scheduler{
		Queue: q,
		Template: scheduler.Template{
			Script:      "/scripts/ProCESS_seq.sh",
			Subject:     "SPN01",
			Forest:      "/data/SPN01/phylo_forest.sff",
			NodeScratch: "/local_scratch",
			MemoryGB:    128,
			NumLots:     numLots,
		},
		Opts: scheduler.Opts{MaxInFlight: maxInFlight, PollInterval: time.Minute},
	}
}

func names(naming lot.Naming, indices ...int) []string {
	var r []string
	for _, i := range indices {
		r = append(r, naming.Name(i))
	}
	return r
}

func TestRunFromScratch(t *testing.T) {
	root, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, root)
	ctx := context.Background()

	g := cohort.NewGroup(root, tumour, 0.3)
	q := &fakeQueue{dir: g.Dir}
	s := newTestScheduler(q, 10, 3)
	sleeps := 0
	s.Sleep = func(ctx context.Context, d time.Duration) error {
		expect.EQ(t, d, time.Minute)
		sleeps++
		// The oldest job finishes at each poll.
		return q.finish(q.running[0])
	}
	assert.NoError(t, s.Run(ctx, g))

	naming, err := lot.NewNaming(cohort.Tumour, 10)
	assert.NoError(t, err)
	expect.EQ(t, q.submitted(), names(naming, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9))
	expect.EQ(t, q.maxRunning, 3)
	expect.EQ(t, sleeps, 10)
	_, err = os.Stat(g.LogDir())
	expect.NoError(t, err)
}

func TestLotJob(t *testing.T) {
	g := cohort.NewGroup("/out", tumour, 0.3)
	s := newTestScheduler(nil, 40, 1)
	job := s.Template.Lot(g, "t07", 7)
	expect.EQ(t, job.Name, "SPN01_t07")
	expect.EQ(t, job.Script, "/scripts/ProCESS_seq.sh")
	expect.EQ(t, job.MemoryGB, 128)
	expect.EQ(t, job.LogPath, "/out/tumour/purity_0.3/log/lot_t07.log")
	expect.EQ(t, job.Params, map[string]string{
		"PHYLO_FOREST": "/data/SPN01/phylo_forest.sff",
		"SPN":          "SPN01",
		"LOT":          "t07",
		"DEST":         "/out/tumour/purity_0.3",
		"COVERAGE":     "5",
		"TYPE":         "tumour",
		"NODE_SCRATCH": "/local_scratch",
		"SEED":         "7",
		"PURITY":       "0.3",
		"MEMORY":       "128",
	})
}

func TestRunResumes(t *testing.T) {
	root, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, root)
	ctx := context.Background()

	g := cohort.NewGroup(root, tumour, 0.3)
	naming, err := lot.NewNaming(cohort.Tumour, 8)
	assert.NoError(t, err)
	assert.NoError(t, os.MkdirAll(g.Dir, 0755))
	q := &fakeQueue{dir: g.Dir}
	assert.NoError(t, q.finish(names(naming, 0, 3, 4)...))

	s := newTestScheduler(q, 8, 2)
	s.Sleep = func(ctx context.Context, d time.Duration) error {
		return q.finish(q.running...)
	}
	assert.NoError(t, s.Run(ctx, g))
	expect.EQ(t, q.submitted(), names(naming, 1, 2, 5, 6, 7))
	expect.EQ(t, q.maxRunning, 2)
}

func TestRunAlreadyComplete(t *testing.T) {
	root, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, root)
	ctx := context.Background()

	g := cohort.NewGroup(root, tumour, 0.3)
	naming, err := lot.NewNaming(cohort.Tumour, 4)
	assert.NoError(t, err)
	assert.NoError(t, os.MkdirAll(g.Dir, 0755))
	q := &fakeQueue{dir: g.Dir}
	assert.NoError(t, q.finish(names(naming, 0, 1, 2, 3)...))

	s := newTestScheduler(q, 4, 2)
	s.Sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatal("unexpected sleep")
		return nil
	}
	assert.NoError(t, s.Run(ctx, g))
	expect.EQ(t, len(q.jobs), 0)

	// Forcing a rerun resubmits every lot.
	s.Opts.Force = true
	s.Sleep = func(ctx context.Context, d time.Duration) error {
		return q.finish(q.running...)
	}
	assert.NoError(t, s.Run(ctx, g))
	expect.EQ(t, q.submitted(), names(naming, 0, 1, 2, 3))
}

func TestRunSubmissionFailure(t *testing.T) {
	root, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, root)
	ctx := context.Background()

	g := cohort.NewGroup(root, tumour, 0.3)
	naming, err := lot.NewNaming(cohort.Tumour, 6)
	assert.NoError(t, err)
	q := &fakeQueue{dir: g.Dir, reject: map[string]bool{naming.Name(2): true}}
	s := newTestScheduler(q, 6, 4)
	s.Sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatal("unexpected sleep")
		return nil
	}
	err = s.Run(ctx, g)
	require.Error(t, err)
	expect.True(t, errors.Is(errors.Unavailable, err), err)
	expect.EQ(t, q.submitted(), names(naming, 0, 1))

	// The jobs accepted before the failure complete; a new run picks up from
	// the first lot that was never accepted.
	assert.NoError(t, q.finish(q.running...))
	q2 := &fakeQueue{dir: g.Dir}
	s = newTestScheduler(q2, 6, 4)
	s.Sleep = func(ctx context.Context, d time.Duration) error {
		return q2.finish(q2.running...)
	}
	assert.NoError(t, s.Run(ctx, g))
	expect.EQ(t, q2.submitted(), names(naming, 2, 3, 4, 5))
}

func TestRunMarkerDisappears(t *testing.T) {
	root, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, root)
	ctx := context.Background()

	g := cohort.NewGroup(root, tumour, 0.3)
	naming, err := lot.NewNaming(cohort.Tumour, 4)
	assert.NoError(t, err)
	assert.NoError(t, os.MkdirAll(g.Dir, 0755))
	q := &fakeQueue{dir: g.Dir}
	assert.NoError(t, q.finish(naming.Name(0)))

	s := newTestScheduler(q, 4, 1)
	s.Sleep = func(ctx context.Context, d time.Duration) error {
		_, err := lot.Invalidate(ctx, g.Dir, naming)
		return err
	}
	err = s.Run(ctx, g)
	expect.True(t, errors.Is(errors.Precondition, err), err)
}

func TestRunAll(t *testing.T) {
	root, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, root)
	ctx := context.Background()

	groups := cohort.DefaultPlan.Groups(root)
	q := &fakeQueue{}
	s := newTestScheduler(q, 3, 5)
	s.Sleep = func(ctx context.Context, d time.Duration) error {
		return q.finish(q.running...)
	}
	assert.NoError(t, s.RunAll(ctx, groups))
	expect.EQ(t, q.submitted(), []string{"t0", "t1", "t2", "t0", "t1", "t2", "t0", "t1", "t2", "n0", "n1", "n2"})
	for _, job := range q.jobs {
		expect.EQ(t, job.LogPath, filepath.Join(job.Params["DEST"], "log", "lot_"+job.Params["LOT"]+".log"))
	}
	for _, g := range groups {
		naming, err := lot.NewNaming(g.Type, 3)
		assert.NoError(t, err)
		done, err := lot.ScanCompleted(ctx, g.Dir, naming)
		assert.NoError(t, err)
		expect.EQ(t, done.Sorted(), []int{0, 1, 2})
	}
}

func TestWaitForFile(t *testing.T) {
	root, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, root)
	ctx := context.Background()

	path := filepath.Join(root, "subject_gender.txt")
	s := newTestScheduler(nil, 1, 1)
	polls := 0
	s.Sleep = func(ctx context.Context, d time.Duration) error {
		polls++
		if polls == 3 {
			return ioutil.WriteFile(path, []byte("XY\n"), 0644)
		}
		return nil
	}
	assert.NoError(t, s.WaitForFile(ctx, path))
	expect.EQ(t, polls, 3)
}

func TestWaitForFileError(t *testing.T) {
	root, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, root)
	ctx := context.Background()

	// The parent of the awaited path is a regular file, so the path can never
	// appear.
	forest := filepath.Join(root, "phylo_forest.sff")
	assert.NoError(t, ioutil.WriteFile(forest, nil, 0644))
	s := newTestScheduler(nil, 1, 1)
	s.Sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatal("unexpected sleep")
		return nil
	}
	err := s.WaitForFile(ctx, filepath.Join(forest, "subject_gender.txt"))
	require.Error(t, err)
	expect.False(t, errors.Is(errors.NotExist, err), err)
}

func TestRunCanceled(t *testing.T) {
	root, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, root)
	ctx, cancel := context.WithCancel(context.Background())

	g := cohort.NewGroup(root, tumour, 0.3)
	q := &fakeQueue{dir: g.Dir}
	q.onSubmit = cancel
	s := newTestScheduler(q, 2, 1)
	s.Opts.PollInterval = time.Hour
	err := s.Run(ctx, g)
	expect.EQ(t, err, context.Canceled)
	expect.EQ(t, len(q.jobs), 1)
}

func TestNewReconcilerInvalid(t *testing.T) {
	naming, err := lot.NewNaming(cohort.Tumour, 4)
	assert.NoError(t, err)
	_, err = scheduler.NewReconciler(context.Background(), &fakeQueue{}, cohort.NewGroup("/nonexistent", tumour, 0.3), naming, scheduler.Template{}, 0)
	expect.True(t, errors.Is(errors.Invalid, err), err)
}

// TestSchedulingProperties checks, for random group sizes, caps, initial
// markers and completion orders, that a run submits exactly the lots without
// a marker, once each and in ascending order, and never has more than the
// cap in flight.
func TestSchedulingProperties(t *testing.T) {
	root, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, root)
	ctx := context.Background()

	rapid.Check(t, func(t *rapid.T) {
		numLots := rapid.IntRange(1, 60).Draw(t, "numLots")
		maxInFlight := rapid.IntRange(1, 12).Draw(t, "maxInFlight")
		naming, err := lot.NewNaming(cohort.Tumour, numLots)
		if err != nil {
			t.Fatal(err)
		}
		dir, err := ioutil.TempDir(root, "run")
		if err != nil {
			t.Fatal(err)
		}
		g := cohort.NewGroup(dir, tumour, 0.3)
		if err := os.MkdirAll(g.Dir, 0755); err != nil {
			t.Fatal(err)
		}
		q := &fakeQueue{dir: g.Dir}
		var want []string
		for i := 0; i < numLots; i++ {
			if rapid.Bool().Draw(t, "complete") {
				if err := q.finish(naming.Name(i)); err != nil {
					t.Fatal(err)
				}
			} else {
				want = append(want, naming.Name(i))
			}
		}

		s := newTestScheduler(q, numLots, maxInFlight)
		s.Sleep = func(ctx context.Context, d time.Duration) error {
			if len(q.running) == 0 {
				return fmt.Errorf("polling with nothing running")
			}
			n := rapid.IntRange(1, len(q.running)).Draw(t, "finished")
			order := rapid.Permutation(append([]string(nil), q.running...)).Draw(t, "order")
			return q.finish(order[:n]...)
		}
		if err := s.Run(ctx, g); err != nil {
			t.Fatal(err)
		}
		got := q.submitted()
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("submitted %v, want %v", got, want)
		}
		if !sort.StringsAreSorted(got) {
			t.Fatalf("submissions out of order: %v", got)
		}
		if q.maxRunning > maxInFlight {
			t.Fatalf("%d jobs in flight, cap is %d", q.maxRunning, maxInFlight)
		}
		done, err := lot.ScanCompleted(ctx, g.Dir, naming)
		if err != nil {
			t.Fatal(err)
		}
		if len(done) != numLots {
			t.Fatalf("%d/%d lots complete", len(done), numLots)
		}
	})
}
