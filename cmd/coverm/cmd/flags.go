package cmd

import (
	"context"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"v.io/x/lib/cmdline"

	"github.com/biocov/coverm/internal/aln"
	"github.com/biocov/coverm/internal/genome"
)

// runnerFunc is a one-line alias for cmdutil.RunnerFunc, matching
// cmd/bio-pamtool/cmd's usage.
func runnerFunc(f func(env *cmdline.Env, argv []string) error) cmdutil.RunnerFunc {
	return cmdutil.RunnerFunc(f)
}

// stringSliceValue adapts a *[]string to flag.Value for a repeatable flag
// (e.g. --genome-fasta, given once per genome file).
type stringSliceValue struct{ s *[]string }

func (v stringSliceValue) String() string {
	if v.s == nil {
		return ""
	}
	return strings.Join(*v.s, ",")
}

func (v stringSliceValue) Set(s string) error {
	*v.s = append(*v.s, s)
	return nil
}

// bindGenomeFlags registers the contig->genome resolution flags of the
// genome subcommand (the contig subcommand registers only --separator, for
// --exclude-genomes).
func bindGenomeFlags(c *cmdline.Command, gf *GenomeFlags) {
	c.Flags.StringVar(&gf.Separator, "separator", "", "Genome/contig name separator byte")
	c.Flags.StringVar(&gf.TablePath, "genome-table", "", "Path to a tab-separated genome<TAB>contig table")
	c.Flags.Var(stringSliceValue{&gf.GenomeFastas}, "genome-fasta", "Genome FASTA file (repeatable); genome name is taken from the file stem")
	c.Flags.BoolVar(&gf.SingleGenome, "single-genome", false, "Treat every contig in each BAM as belonging to one genome")
}

// bindEstimatorFlags registers the estimator-stack configuration flags.
func bindEstimatorFlags(c *cmdline.Command, ef *EstimatorFlags) {
	c.Flags.StringVar(&ef.Methods, "methods", "mean", "Comma-separated estimator list: mean,trimmed_mean,variance,covered_fraction,covered_bases,length,count,reads_per_base,rpkm,relative_abundance,pileup_counts,metabat")
	c.Flags.IntVar(&ef.EndExclusion, "end-exclusion", -1, "Bases excluded from each end of a reference (default 75)")
	c.Flags.Float64Var(&ef.MinCoveredFraction, "min-covered-fraction", 0, "Gate threshold below which gated estimators report 0")
	c.Flags.Float64Var(&ef.TrimMin, "trim-min", 0, "Trimmed-mean lower quantile bound (default 0.05; 0 when only --trim-max is given)")
	c.Flags.Float64Var(&ef.TrimMax, "trim-max", 0, "Trimmed-mean upper quantile bound (default 0.95; 0 when only --trim-min is given)")
}

// bindFilterFlags registers the reference-sorted filter's flags.
func bindFilterFlags(c *cmdline.Command, ff *FilterFlags) {
	c.Flags.IntVar(&ff.MinAlignedLength, "min-read-aligned-length", 0, "Minimum per-read aligned length")
	c.Flags.Float64Var(&ff.MinPercentIdentity, "min-read-percent-identity", 0, "Minimum per-read percent identity")
	c.Flags.Float64Var(&ff.MinAlignedPercent, "min-read-aligned-percent", 0, "Minimum per-read aligned fraction")
	c.Flags.IntVar(&ff.MinAlignedLengthPair, "min-read-aligned-length-pair", 0, "Minimum combined aligned length for a mate pair")
	c.Flags.Float64Var(&ff.MinPercentIdentityPair, "min-read-percent-identity-pair", 0, "Minimum length-weighted average identity for a mate pair")
	c.Flags.BoolVar(&ff.IncludeSecondary, "include-secondary", false, "Include secondary alignments")
	c.Flags.BoolVar(&ff.IncludeSupplementary, "include-supplementary", false, "Include supplementary alignments")
	c.Flags.BoolVar(&ff.ProperPairsOnly, "proper-pairs-only", false, "Drop paired reads that are not flagged properly paired")
}

// bindOutputFlags registers the sink's layout flags plus --output and
// --threads, shared by genome/contig.
func bindOutputFlags(c *cmdline.Command, of *OutputFlags, outputPath *string, parallelism *int) {
	c.Flags.BoolVar(&of.Sparse, "sparse", false, "Sparse (long) output layout instead of dense")
	c.Flags.BoolVar(&of.PrintZeros, "print-zeros", false, "Include all-zero rows in the output")
	c.Flags.StringVar(outputPath, "output", "", "Output path (default stdout)")
	c.Flags.IntVar(parallelism, "threads", 0, "Maximum BAMs processed concurrently (default: one per input)")
}

// SampleSources gathers every input the genome/contig subcommands accept:
// plain BAM paths (one sample each) and --shards sets (one deshard-merged
// sample each).
type SampleSources struct {
	ShardSets          [][]string
	ExcludeGenomesPath string
}

func bindSampleSourceFlags(c *cmdline.Command, ss *SampleSources) {
	c.Flags.Var(shardSetValue{&ss.ShardSets}, "shards", "Comma-separated set of read-name-sorted shard BAMs to deshard-merge into one sample (repeatable)")
	c.Flags.StringVar(&ss.ExcludeGenomesPath, "exclude-genomes", "", "Path to a newline-separated list of genome names to exclude from --shards merging")
}

// buildSampleGenerators combines positional BAM paths with any --shards
// sets into one ordered list of (name, Generator) samples, command-line
// order preserved across both sources.
func buildSampleGenerators(ctx context.Context, argv []string, ss SampleSources, gf GenomeFlags) (names []string, gens []aln.Generator, err error) {
	for _, path := range argv {
		names = append(names, aln.SampleName(path))
		gens = append(gens, aln.NewFileGenerator(path))
	}
	if len(ss.ShardSets) == 0 {
		return names, gens, nil
	}
	var idx *genome.Index
	if ss.ExcludeGenomesPath != "" && gf.Separator == "" {
		var ierr error
		if idx, ierr = buildGenomeIndex(ctx, gf, ""); ierr != nil {
			return nil, nil, ierr
		}
	}
	excl, err := buildExclusion(ctx, ss.ExcludeGenomesPath, gf, idx)
	if err != nil {
		return nil, nil, err
	}
	for _, shards := range ss.ShardSets {
		name := aln.SampleName(shards[0])
		names = append(names, name)
		gens = append(gens, NewDeshardGenerator(name, shards, excl))
	}
	return names, gens, nil
}
