package scheduler

import (
	"context"
	"fmt"

	"github.com/gammazero/deque"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cohortsim/cohort"
	"github.com/grailbio/cohortsim/lot"
)

// Progress summarizes the state of a group after a reconciliation.
type Progress struct {
	// Total is the number of lots of the group.
	Total int
	// Completed counts lots with a completion marker.
	Completed int
	// InFlight counts lots submitted by this run that have no marker yet.
	InFlight int
	// Pending counts lots not submitted yet.
	Pending int
	// Submitted counts the submissions made by this run so far.
	Submitted int
}

// Done reports whether every lot of the group is complete.
func (p Progress) Done() bool {
	return p.Pending == 0 && p.InFlight == 0
}

func (p Progress) String() string {
	return fmt.Sprintf("%d/%d complete, %d in flight, %d pending", p.Completed, p.Total, p.InFlight, p.Pending)
}

// Reconciler drives one group towards the state where every lot has a
// completion marker. Each call to Reconcile compares the markers on disk
// against the lots it has submitted, and submits pending lots while fewer
// than the configured number of jobs are in flight.
//
// A Reconciler holds two disjoint sets: pending lots, which have never been
// submitted, and in-flight lots, which were submitted but have no marker yet.
// Lots completed before the reconciler started are in neither.
type Reconciler struct {
	queue       Queue
	group       cohort.Group
	naming      lot.Naming
	tmpl        Template
	maxInFlight int

	pending   deque.Deque[int]
	inFlight  lot.Set
	seen      lot.Set
	submitted int
}

// NewReconciler scans the group directory and returns a reconciler whose
// pending lots are those without a completion marker.
func NewReconciler(ctx context.Context, q Queue, g cohort.Group, naming lot.Naming, tmpl Template, maxInFlight int) (*Reconciler, error) {
	if maxInFlight <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("max jobs in flight must be positive, got %d", maxInFlight))
	}
	done, err := lot.ScanCompleted(ctx, g.Dir, naming)
	if err != nil {
		return nil, err
	}
	r := &Reconciler{
		queue:       q,
		group:       g,
		naming:      naming,
		tmpl:        tmpl,
		maxInFlight: maxInFlight,
		inFlight:    lot.Set{},
		seen:        done,
	}
	for i := 0; i < naming.NumLots; i++ {
		if !done.Has(i) {
			r.pending.PushBack(i)
		}
	}
	return r, nil
}

// Reconcile runs one scheduling cycle. It returns an errors.Unavailable error
// if the queue rejects a submission; lots submitted before the failure stay
// in flight, so a later restart does not submit them twice once they
// complete. A marker that disappears after having been observed, which
// happens only if the group is invalidated while being scheduled, is reported
// as an errors.Precondition error.
func (r *Reconciler) Reconcile(ctx context.Context) (Progress, error) {
	done, err := lot.ScanCompleted(ctx, r.group.Dir, r.naming)
	if err != nil {
		return Progress{}, err
	}
	for i := range r.seen {
		if !done.Has(i) {
			return Progress{}, errors.E(errors.Precondition,
				fmt.Sprintf("%s: marker of lot %s disappeared; the group must not be invalidated while it is scheduled",
					r.group, r.naming.Name(i)))
		}
	}
	r.seen = done
	for i := range r.inFlight {
		if done.Has(i) {
			delete(r.inFlight, i)
		}
	}
	for len(r.inFlight) < r.maxInFlight && r.pending.Len() > 0 {
		i := r.pending.Front()
		if done.Has(i) {
			// Completed by someone else, e.g. a previous scheduler whose
			// job was still running when this one started.
			r.pending.PopFront()
			continue
		}
		name := r.naming.Name(i)
		log.Printf("%s: submitting lot %s", r.group, name)
		if err := r.queue.Submit(ctx, r.tmpl.Lot(r.group, name, i)); err != nil {
			return r.progress(done), errors.E(errors.Unavailable, fmt.Sprintf("%s: submit lot %s", r.group, name), err)
		}
		r.pending.PopFront()
		r.inFlight[i] = struct{}{}
		r.submitted++
	}
	p := r.progress(done)
	log.Debug.Printf("%s: %v", r.group, p)
	return p, nil
}

func (r *Reconciler) progress(done lot.Set) Progress {
	return Progress{
		Total:     r.naming.NumLots,
		Completed: len(done),
		InFlight:  len(r.inFlight),
		Pending:   r.pending.Len(),
		Submitted: r.submitted,
	}
}
