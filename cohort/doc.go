/*
Package cohort describes the sequencing cohorts simulated for one subject.

A Plan lists the cohorts (one per sequence type) together with the number of
lots every (sequence type, purity) Group is split into and the aggregate
coverages for which manifests are produced. Each lot is simulated by an
independent batch job; its outputs land in the Group's directory:

	{root}/{type}/purity_{purity}/
	   log/lot_{lot}.log
	   BAM/{lot}.bam
	   FASTQ/{lot}_{sample}.R1.fastq.gz
	   FASTQ/{lot}_{sample}.R2.fastq.gz
	   {lot}_final.done

The package also derives the memory requested for each job from the node
capacity (MemoryPerLot) and reads the subject sex recorded next to the
phylogenetic forest.
*/
package cohort
