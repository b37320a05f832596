/*
Package scheduler drives the lots of cohort groups through a batch queue.

For each group, a Reconciler compares the lots it knows about with the
completion markers found in the group directory and submits pending lots,
in ascending order, while fewer than Opts.MaxInFlight of its submissions are
incomplete. Scheduler.Run repeats the reconciliation every Opts.PollInterval
until all lots are complete.

The group directory is the only state. A scheduler killed at any point can
be restarted: lots whose marker exists are never submitted again, and all
the others are pending. A lot that was in flight when the scheduler died and
has not completed yet is submitted again, and the job script is expected to
tolerate that.

A submission rejected by the queue stops the run; there is no retry.
*/
package scheduler
