package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/cohortsim/cohort"
	"github.com/grailbio/cohortsim/lot"
)

// status writes a table of the completed lots of every group under root.
// Groups that were never scheduled show zero completed lots.
func status(ctx context.Context, w io.Writer, plan cohort.Plan, root string) error {
	tw := tsv.NewWriter(w)
	tw.WriteString("GROUP\tLOTS\tCOMPLETED\tCOVERAGE")
	if err := tw.EndLine(); err != nil {
		return err
	}
	for _, g := range plan.Groups(root) {
		naming, err := lot.NewNaming(g.Type, plan.NumLots)
		if err != nil {
			return err
		}
		completed := 0
		if _, err := os.Stat(g.Dir); err == nil {
			done, err := lot.ScanCompleted(ctx, g.Dir, naming)
			if err != nil {
				return err
			}
			completed = len(done)
		}
		tw.WriteString(g.String())
		tw.WriteInt64(int64(plan.NumLots))
		tw.WriteInt64(int64(completed))
		tw.WriteString(fmt.Sprintf("%gx", g.LotCoverage(plan.NumLots)*float64(completed)))
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// invalidate removes the completion markers of the named groups, or of all
// groups if names is empty.
func invalidate(ctx context.Context, plan cohort.Plan, root string, names []string, checkpoints bool) error {
	groups := map[string]cohort.Group{}
	var all []string
	for _, g := range plan.Groups(root) {
		groups[g.String()] = g
		all = append(all, g.String())
	}
	if len(names) == 0 {
		names = all
	}
	for _, name := range names {
		g, ok := groups[name]
		if !ok {
			return errors.E(errors.Invalid, fmt.Sprintf("unknown group %q, expected one of %s", name, strings.Join(all, ", ")))
		}
		if _, err := os.Stat(g.Dir); err != nil {
			log.Printf("%s: not scheduled yet", g)
			continue
		}
		naming, err := lot.NewNaming(g.Type, plan.NumLots)
		if err != nil {
			return err
		}
		remove := lot.Invalidate
		if checkpoints {
			remove = lot.InvalidateCheckpoints
		}
		n, err := remove(ctx, g.Dir, naming)
		if err != nil {
			return err
		}
		log.Printf("%s: removed %d markers", g, n)
	}
	return nil
}
