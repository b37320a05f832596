package lot

import (
	"fmt"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cohortsim/cohort"
)

// Prefix returns the one-character lot prefix of a sequence type.
func Prefix(t cohort.SeqType) (string, error) {
	switch t {
	case cohort.Tumour:
		return "t", nil
	case cohort.Normal:
		return "n", nil
	case cohort.NormalWithPreneoplastic:
		return "s", nil
	}
	_, err := cohort.ParseSeqType(string(t))
	return "", err
}

// Naming renders lot indices of one sequence type into lot names and back.
//
// A lot name is the prefix of the sequence type followed by the index,
// zero-padded to a width fixed by the number of lots, e.g. "t07" for lot 7 of
// 40 tumour lots. Since all the names of a run have the same length, their
// lexical and numeric orders coincide and no name is a prefix of another.
type Naming struct {
	Prefix  string
	Width   int
	NumLots int
}

// NewNaming returns the naming of numLots lots of type t.
func NewNaming(t cohort.SeqType, numLots int) (Naming, error) {
	prefix, err := Prefix(t)
	if err != nil {
		return Naming{}, err
	}
	if numLots <= 0 {
		return Naming{}, errors.E(errors.Invalid, fmt.Sprintf("number of lots must be positive, got %d", numLots))
	}
	return Naming{Prefix: prefix, Width: Width(numLots), NumLots: numLots}, nil
}

// Width returns the number of digits used to render lot indices in
// [0, numLots), i.e. ceil(log10(numLots)), but at least one.
func Width(numLots int) int {
	w := 1
	for n := numLots - 1; n >= 10; n /= 10 {
		w++
	}
	return w
}

// Name renders the lot index.
func (n Naming) Name(index int) string {
	return fmt.Sprintf("%s%0*d", n.Prefix, n.Width, index)
}

// Parse returns the index of the named lot. Names with another prefix, another
// width, non-digit characters or an index out of range are rejected with an
// errors.Integrity error.
func (n Naming) Parse(name string) (int, error) {
	if len(name) != len(n.Prefix)+n.Width || name[:len(n.Prefix)] != n.Prefix {
		return -1, n.violation(name)
	}
	digits := name[len(n.Prefix):]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return -1, n.violation(name)
		}
	}
	index, err := strconv.Atoi(digits)
	if err != nil || index >= n.NumLots {
		return -1, n.violation(name)
	}
	return index, nil
}

func (n Naming) violation(name string) error {
	return errors.E(errors.Integrity,
		fmt.Sprintf("lot name %q does not match %s followed by %d digits below %d", name, n.Prefix, n.Width, n.NumLots))
}
