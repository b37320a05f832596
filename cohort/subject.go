package cohort

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// SexFilename is the file, next to the phylogenetic forest, in which the
// subject sex job records its result.
const SexFilename = "subject_gender.txt"

// SexPath returns the path of the subject sex file for a forest.
func SexPath(forestPath string) string {
	return filepath.Join(filepath.Dir(forestPath), SexFilename)
}

// ReadSex returns the subject sex stored at path. The value is passed through
// to manifests verbatim; only surrounding whitespace is removed.
func ReadSex(ctx context.Context, path string) (string, error) {
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return "", errors.E(err, "read subject sex", path)
	}
	sex := strings.TrimSpace(string(data))
	if sex == "" || strings.ContainsAny(sex, ",\n") {
		return "", errors.E(errors.Invalid, "malformed subject sex in "+path)
	}
	return sex, nil
}
