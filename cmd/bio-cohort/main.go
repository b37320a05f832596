// bio-cohort simulates the sequencing of a cohort of samples from a
// phylogenetic forest. It submits one batch job per lot of reads to a Slurm
// cluster, keeps a bounded number of them running, and once every lot has
// completed writes the Sarek sample sheets that index the reads.
//
// Usage:
//
//	bio-cohort run -partition=P -account=A SPN01 /data/SPN01/phylo_forest.sff /out/SPN01
//	bio-cohort status /out/SPN01
//	bio-cohort manifest -sex=XY SPN01 /data/SPN01/phylo_forest.sff /out/SPN01
//	bio-cohort invalidate /out/SPN01 tumour/purity_0.3
package main

import "github.com/grailbio/cohortsim/cmd/bio-cohort/cmd"

func main() {
	cmd.Run()
}
