package lot

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

const (
	// MarkerSuffix ends the name of the file a lot job creates once all of its
	// outputs are in place.
	MarkerSuffix = "_final.done"
	// checkpointSuffix ends the names of all the markers a job writes,
	// including intermediate ones such as "t07_BAM.done".
	checkpointSuffix = ".done"
)

// MarkerPath returns the completion marker of the named lot in dir, e.g.
// "dir/t07_final.done".
func MarkerPath(dir, name string) string {
	return filepath.Join(dir, name+MarkerSuffix)
}

// Set is a set of lot indices.
type Set map[int]struct{}

// Has reports whether index is in the set.
func (s Set) Has(index int) bool {
	_, ok := s[index]
	return ok
}

// Sorted returns the indices in ascending order.
func (s Set) Sorted() []int {
	indices := make([]int, 0, len(s))
	for i := range s {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}

// ScanCompleted returns the indices of the lots of naming that have a
// completion marker in dir. A file that carries the lot prefix and the marker
// suffix but whose lot name does not parse is reported as an errors.Integrity
// error: it would make the identity of some lot ambiguous.
//
// ScanCompleted only reads dir, so it may run while jobs are creating their
// markers.
func ScanCompleted(ctx context.Context, dir string, naming Naming) (Set, error) {
	done := Set{}
	err := eachMarker(ctx, dir, naming.Prefix, MarkerSuffix, func(path, name string) error {
		index, err := naming.Parse(name)
		if err != nil {
			return errors.E(err, path)
		}
		done[index] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return done, nil
}

// Invalidate removes every completion marker of naming's lots from dir so
// that the lots are simulated again. It returns the number of markers removed.
// Invalidate must not run while jobs of the group are in flight.
func Invalidate(ctx context.Context, dir string, naming Naming) (int, error) {
	return remove(ctx, dir, naming.Prefix, MarkerSuffix)
}

// InvalidateCheckpoints is like Invalidate, but it also removes the
// intermediate markers jobs use to skip steps they already completed.
func InvalidateCheckpoints(ctx context.Context, dir string, naming Naming) (int, error) {
	return remove(ctx, dir, naming.Prefix, checkpointSuffix)
}

func remove(ctx context.Context, dir, prefix, suffix string) (int, error) {
	var paths []string
	if err := eachMarker(ctx, dir, prefix, suffix, func(path, _ string) error {
		paths = append(paths, path)
		return nil
	}); err != nil {
		return 0, err
	}
	for i, path := range paths {
		if err := file.Remove(ctx, path); err != nil {
			return i, errors.E(err, "remove marker", path)
		}
		log.Debug.Printf("removed %s", path)
	}
	return len(paths), nil
}

// eachMarker calls fn for each regular file in dir whose name is
// {prefix}*{suffix}. The name passed to fn has the suffix stripped.
func eachMarker(ctx context.Context, dir, prefix, suffix string, fn func(path, name string) error) error {
	lister := file.List(ctx, dir, false)
	for lister.Scan() {
		if lister.IsDir() {
			continue
		}
		base := file.Base(lister.Path())
		if !strings.HasPrefix(base, prefix) || !strings.HasSuffix(base, suffix) {
			continue
		}
		if err := fn(lister.Path(), strings.TrimSuffix(base, suffix)); err != nil {
			return err
		}
	}
	if err := lister.Err(); err != nil {
		return errors.E(err, "list", dir)
	}
	return nil
}
