package manifest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/cohortsim/cohort"
	"github.com/grailbio/cohortsim/encoding/fastq"
	"github.com/grailbio/cohortsim/lot"
)

// Reads is the FASTQ content of a group, as written by its lot jobs. Each lot
// writes one pair per sample, named {lot}_{sample}.R1.fastq.gz and
// {lot}_{sample}.R2.fastq.gz.
type Reads struct {
	Group cohort.Group
	// Samples are the names of the samples found, sorted.
	Samples []string

	naming lot.Naming
	files  map[string]struct{}
}

// Discover lists the FASTQ directory of g. A R1 file whose lot part is not a
// valid lot name of the group is reported as an errors.Integrity error.
// Files that do not start with the group's lot prefix are ignored.
func Discover(ctx context.Context, g cohort.Group, numLots int) (Reads, error) {
	naming, err := lot.NewNaming(g.Type, numLots)
	if err != nil {
		return Reads{}, err
	}
	r := Reads{Group: g, naming: naming, files: map[string]struct{}{}}
	samples := map[string]struct{}{}
	lister := file.List(ctx, g.FastqDir(), false)
	for lister.Scan() {
		if lister.IsDir() {
			continue
		}
		name := file.Base(lister.Path())
		r.files[name] = struct{}{}
		base, mate, ok := fastq.ParseName(name)
		if !ok || mate != fastq.R1 || !strings.HasPrefix(base, naming.Prefix) {
			continue
		}
		sep := strings.IndexByte(base, '_')
		if sep < 0 {
			continue
		}
		if _, err := naming.Parse(base[:sep]); err != nil {
			return Reads{}, errors.E(err, "reads", lister.Path())
		}
		samples[base[sep+1:]] = struct{}{}
	}
	if err := lister.Err(); err != nil {
		return Reads{}, errors.E(err, "list", g.FastqDir())
	}
	for s := range samples {
		r.Samples = append(r.Samples, s)
	}
	sort.Strings(r.Samples)
	return r, nil
}

// Pair returns the absolute R1 and R2 paths of sample in lot index. It
// returns an errors.NotExist error unless both files were discovered.
func (r Reads) Pair(sample string, index int) (r1, r2 string, err error) {
	base := fmt.Sprintf("%s_%s", r.naming.Name(index), sample)
	for _, m := range []fastq.Mate{fastq.R1, fastq.R2} {
		if _, ok := r.files[fastq.Name(base, m)]; !ok {
			return "", "", errors.E(errors.NotExist,
				fmt.Sprintf("%s: missing %s reads of lot %s for sample %s", r.Group, m, r.naming.Name(index), sample))
		}
	}
	r1, r2 = fastq.PairPaths(r.Group.FastqDir(), base)
	return r1, r2, nil
}
