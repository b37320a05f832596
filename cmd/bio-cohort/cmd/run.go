package cmd

import (
	"context"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cohortsim/cohort"
	"github.com/grailbio/cohortsim/manifest"
	"github.com/grailbio/cohortsim/scheduler"
	"github.com/grailbio/cohortsim/slurm"
)

type runOpts struct {
	plan        cohort.Plan
	sched       scheduler.Opts
	slurm       slurm.Opts
	resources   cohort.Resources
	nodeScratch string
	script      string
	sexScript   string
	sex         string
}

func (o runOpts) runSlurm(ctx context.Context, subject, forest, root string) error {
	if o.slurm.Partition == "" || o.slurm.Account == "" {
		return errors.E(errors.Invalid, "-partition and -account are required")
	}
	q, err := slurm.New(o.slurm)
	if err != nil {
		return err
	}
	defer q.Close()
	return o.run(ctx, q, subject, forest, root)
}

// run simulates every group of the plan through q, then writes the manifests.
func (o runOpts) run(ctx context.Context, q scheduler.Queue, subject, forest, root string) error {
	if err := o.plan.Validate(); err != nil {
		return err
	}
	mem, err := cohort.MemoryPerLot(o.resources, o.plan.NumLots, o.plan.MaxCoverage(), cohort.ScratchMultiplier)
	if err != nil {
		return err
	}
	script, err := existing(ctx, o.script)
	if err != nil {
		return err
	}
	s := &scheduler.Scheduler{
		Queue: q,
		Template: scheduler.Template{
			Script:      script,
			Subject:     subject,
			Forest:      forest,
			NodeScratch: o.nodeScratch,
			MemoryGB:    mem,
			NumLots:     o.plan.NumLots,
		},
		Opts: o.sched,
	}
	log.Printf("%s: %d lots per group, %dGB per lot", subject, o.plan.NumLots, mem)

	sexPath := cohort.SexPath(forest)
	if o.sex == "" {
		if _, err := file.Stat(ctx, sexPath); err != nil {
			if o.sexScript == "" {
				return errors.E(errors.Invalid, sexPath+" does not exist; set -sex or -sex-script")
			}
			sexScript, err := existing(ctx, o.sexScript)
			if err != nil {
				return err
			}
			log.Printf("%s: submitting subject sex job", subject)
			if err := q.Submit(ctx, s.Template.Sex(sexScript)); err != nil {
				return errors.E(errors.Unavailable, "submit subject sex job", err)
			}
		}
	}

	if err := s.RunAll(ctx, o.plan.Groups(root)); err != nil {
		return err
	}

	sex := o.sex
	if sex == "" {
		if err := s.WaitForFile(ctx, sexPath); err != nil {
			return err
		}
		if sex, err = cohort.ReadSex(ctx, sexPath); err != nil {
			return err
		}
	}
	_, err = manifest.Aggregate(ctx, manifest.Opts{Subject: subject, Sex: sex, Root: root, Plan: o.plan})
	return err
}

// writeManifests aggregates the reads of a cohort that was already simulated.
func writeManifests(ctx context.Context, plan cohort.Plan, subject, forest, root, sex string) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	if sex == "" {
		var err error
		if sex, err = cohort.ReadSex(ctx, cohort.SexPath(forest)); err != nil {
			return err
		}
	}
	_, err := manifest.Aggregate(ctx, manifest.Opts{Subject: subject, Sex: sex, Root: root, Plan: plan})
	return err
}

// existing returns the absolute path of a job script, which must exist.
func existing(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if _, err := file.Stat(ctx, abs); err != nil {
		return "", errors.E(errors.Invalid, "job script "+path, err)
	}
	return abs, nil
}
