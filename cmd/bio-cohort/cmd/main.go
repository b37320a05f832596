package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/cohortsim/cohort"
	"github.com/grailbio/cohortsim/scheduler"
	"v.io/x/lib/cmdline"
)

// planFlag registers the -plan flag on cmd.
func planFlag(cmd *cmdline.Command) *string {
	return cmd.Flags.String("plan", "", `YAML file describing the lots, coverages and cohorts to simulate.
By default, 40 lots of tumour samples at purities 0.3, 0.6 and 0.9 up to 200x,
and of a normal sample up to 50x, indexed at 50x, 100x, 150x and 200x.`)
}

func loadPlan(ctx context.Context, path string) (cohort.Plan, error) {
	if path == "" {
		return cohort.DefaultPlan, nil
	}
	return cohort.LoadPlan(ctx, path)
}

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "run",
		Short:    "Simulate the lots of a cohort and write its manifests",
		ArgsName: "subject forest root",
		Long: `
Run submits one job per lot of every cohort group, keeping at most
-parallel-jobs of them in flight, and waits until every lot has written its
completion marker. It then writes the Sarek manifests under root/sarek.

Run can be interrupted and restarted at any time: lots that completed are not
simulated again unless -force is given.`,
	}
	opts := runOpts{
		sched:     scheduler.DefaultOpts,
		resources: cohort.DefaultResources,
	}
	cmd.Flags.StringVar(&opts.slurm.Partition, "partition", "", "The cluster partition")
	cmd.Flags.StringVar(&opts.slurm.Account, "account", "", "The cluster account")
	cmd.Flags.StringVar(&opts.slurm.Exclude, "exclude", "", "Nodes the jobs must not run on, in sbatch syntax")
	cmd.Flags.StringVar(&opts.slurm.Command, "sbatch", "sbatch", "The job submission program")
	cmd.Flags.StringVar(&opts.nodeScratch, "node-scratch", "/local_scratch", "The node-local scratch directory")
	cmd.Flags.IntVar(&opts.sched.MaxInFlight, "parallel-jobs", opts.sched.MaxInFlight, "Maximum number of lot jobs in flight")
	cmd.Flags.DurationVar(&opts.sched.PollInterval, "poll", opts.sched.PollInterval, "Interval between two checks for completed lots")
	cmd.Flags.BoolVar(&opts.sched.Force, "force", false, "Simulate again the lots that already completed")
	cmd.Flags.BoolVar(&opts.sched.ForceCheckpoints, "force-checkpoints", false, "With -force, also discard the intermediate results of lots")
	cmd.Flags.Float64Var(&opts.resources.ScratchPerNodeGB, "scratch-per-node", opts.resources.ScratchPerNodeGB, "Scratch space of a node, in GB")
	cmd.Flags.Float64Var(&opts.resources.MemPerNodeGB, "mem-per-node", opts.resources.MemPerNodeGB, "Memory of a node, in GB")
	cmd.Flags.StringVar(&opts.script, "script", "ProCESS_seq.sh", "The lot simulation job script")
	cmd.Flags.StringVar(&opts.sexScript, "sex-script", "", "The job script that writes the subject sex next to the forest")
	cmd.Flags.StringVar(&opts.sex, "sex", "", "The subject sex. By default, it is read from the subject_gender.txt file next to the forest")
	plan := planFlag(cmd)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return env.UsageErrorf("run takes subject, forest and root arguments, but got %v", argv)
		}
		ctx, cancel := signalContext()
		defer cancel()
		var err error
		if opts.plan, err = loadPlan(ctx, *plan); err != nil {
			return err
		}
		return opts.runSlurm(ctx, argv[0], argv[1], argv[2])
	})
	return cmd
}

func newCmdManifest() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "manifest",
		Short:    "Write the Sarek manifests of a simulated cohort",
		ArgsName: "subject forest root",
	}
	sex := cmd.Flags.String("sex", "", "The subject sex. By default, it is read from the subject_gender.txt file next to the forest")
	plan := planFlag(cmd)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return env.UsageErrorf("manifest takes subject, forest and root arguments, but got %v", argv)
		}
		ctx, cancel := signalContext()
		defer cancel()
		p, err := loadPlan(ctx, *plan)
		if err != nil {
			return err
		}
		return writeManifests(ctx, p, argv[0], argv[1], argv[2], *sex)
	})
	return cmd
}

func newCmdStatus() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "status",
		Short:    "Show the number of completed lots of each cohort group",
		ArgsName: "root",
	}
	plan := planFlag(cmd)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return env.UsageErrorf("status takes one root argument, but got %v", argv)
		}
		ctx := context.Background()
		p, err := loadPlan(ctx, *plan)
		if err != nil {
			return err
		}
		return status(ctx, env.Stdout, p, argv[0])
	})
	return cmd
}

func newCmdInvalidate() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "invalidate",
		Short:    "Remove the completion markers of cohort groups",
		ArgsName: "root [group...]",
		ArgsLong: `
root is the output root of the cohort. Groups are named like
"tumour/purity_0.3"; by default, every group of the plan is invalidated.`,
	}
	checkpoints := cmd.Flags.Bool("checkpoints", false, "Also remove the intermediate markers of lots")
	plan := planFlag(cmd)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) < 1 {
			return env.UsageErrorf("invalidate takes a root argument")
		}
		ctx := context.Background()
		p, err := loadPlan(ctx, *plan)
		if err != nil {
			return err
		}
		return invalidate(ctx, p, argv[0], argv[1:], *checkpoints)
	})
	return cmd
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func Run() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-cohort",
			Short:    "Simulate the sequencing of a cohort on a Slurm cluster",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdRun(),
				newCmdStatus(),
				newCmdManifest(),
				newCmdInvalidate(),
			},
		})
}
