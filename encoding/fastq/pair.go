// Package fastq names the paired-end FASTQ files written by lot jobs.
package fastq

import (
	"path/filepath"
	"strings"
)

// Ext is the extension of the gzipped FASTQ files written by lot jobs.
const Ext = ".fastq.gz"

// Mate identifies one of the two files of a read pair.
type Mate int

const (
	// R1 holds the first reads of the pairs.
	R1 Mate = iota + 1
	// R2 holds the second reads of the pairs.
	R2
)

func (m Mate) String() string {
	switch m {
	case R1:
		return "R1"
	case R2:
		return "R2"
	}
	return "R?"
}

// Name returns the filename of one mate of the pair with the given base
// name, e.g. Name("t07_sampleA", R1) is "t07_sampleA.R1.fastq.gz".
func Name(base string, m Mate) string {
	return base + "." + m.String() + Ext
}

// PairPaths returns the R1 and R2 paths of the pair with the given base name
// in dir.
func PairPaths(dir, base string) (r1, r2 string) {
	return filepath.Join(dir, Name(base, R1)), filepath.Join(dir, Name(base, R2))
}

// ParseName splits a filename produced by Name into the base name and the
// mate. Unpaired and singleton read files, or anything else, yield ok=false.
func ParseName(name string) (base string, m Mate, ok bool) {
	if !strings.HasSuffix(name, Ext) {
		return "", 0, false
	}
	stem := strings.TrimSuffix(name, Ext)
	for _, m := range []Mate{R1, R2} {
		if suffix := "." + m.String(); strings.HasSuffix(stem, suffix) {
			base = strings.TrimSuffix(stem, suffix)
			return base, m, base != ""
		}
	}
	return "", 0, false
}
