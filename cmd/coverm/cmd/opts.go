// Package cmd implements the coverm command-line surface: a
// v.io/x/lib/cmdline dispatcher over the coverage pipeline's
// genome/contig engines, the standalone filter, and the mapper-invocation
// helper, structured the way cmd/bio-pamtool/cmd structures its own
// view/flagstat/convert/checksum children.
package cmd

import (
	"context"
	"strings"
	"sync"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/biocov/coverm/internal/aln"
	"github.com/biocov/coverm/internal/estimator"
	"github.com/biocov/coverm/internal/filter"
	"github.com/biocov/coverm/internal/genome"
	"github.com/biocov/coverm/internal/sink"
)

// parseKinds parses the --methods flag into a Kind slice, honoring
// MetaBAT's exclusivity rule: it cannot be combined with any other
// estimator.
func parseKinds(methods string) ([]estimator.Kind, error) {
	if methods == "" {
		methods = "mean"
	}
	names := strings.Split(methods, ",")
	kinds := make([]estimator.Kind, 0, len(names))
	hasMetabat := false
	for _, n := range names {
		n = strings.TrimSpace(n)
		k, ok := kindByName[n]
		if !ok {
			return nil, errors.Errorf("coverm: unknown estimator method %q", n)
		}
		if k == estimator.MetaBAT {
			hasMetabat = true
		}
		kinds = append(kinds, k)
	}
	if hasMetabat && len(kinds) != 1 {
		return nil, errors.Errorf("coverm: metabat is mutually exclusive with every other estimator, got %q", methods)
	}
	return kinds, nil
}

var kindByName = map[string]estimator.Kind{
	"mean":               estimator.Mean,
	"trimmed_mean":       estimator.TrimmedMean,
	"variance":           estimator.Variance,
	"covered_fraction":   estimator.CoveredFraction,
	"covered_bases":      estimator.CoveredBases,
	"length":             estimator.Length,
	"count":              estimator.Count,
	"reads_per_base":     estimator.ReadsPerBase,
	"rpkm":               estimator.RPKM,
	"relative_abundance": estimator.RelativeAbundance,
	"pileup_counts":      estimator.Histogram,
	"metabat":            estimator.MetaBAT,
}

// GenomeFlags selects a contig->genome resolution strategy; exactly one
// field may be set, enforced by buildGenomeIndex.
type GenomeFlags struct {
	Separator    string
	TablePath    string
	GenomeFastas []string
	SingleGenome bool
}

func (g GenomeFlags) count() int {
	n := 0
	if g.Separator != "" {
		n++
	}
	if g.TablePath != "" {
		n++
	}
	if len(g.GenomeFastas) > 0 {
		n++
	}
	if g.SingleGenome {
		n++
	}
	return n
}

// buildGenomeIndex constructs the genome.Index for the "genome" subcommand
// from whichever single strategy GenomeFlags selects.
func buildGenomeIndex(ctx context.Context, g GenomeFlags, sampleName string) (*genome.Index, error) {
	if n := g.count(); n == 0 {
		return nil, errors.New("coverm: genome requires exactly one of --separator, --genome-table, --genome-fasta, --single-genome")
	} else if n > 1 {
		return nil, errors.New("coverm: --separator, --genome-table, --genome-fasta, and --single-genome are mutually exclusive")
	}
	switch {
	case g.Separator != "":
		if len(g.Separator) != 1 {
			return nil, errors.Errorf("coverm: --separator must be exactly one byte, got %q", g.Separator)
		}
		return genome.NewSeparatorIndex(g.Separator[0]), nil
	case g.TablePath != "":
		entries, err := genome.LoadTable(ctx, g.TablePath)
		if err != nil {
			return nil, err
		}
		return genome.NewTableIndex(entries)
	case len(g.GenomeFastas) > 0:
		entries, err := genome.LoadFastaGenomes(ctx, g.GenomeFastas)
		if err != nil {
			return nil, err
		}
		return genome.NewTableIndex(entries)
	default: // SingleGenome
		// A single-genome run names the genome after the sample's own display
		// name rather than a placeholder.
		return genome.NewSingleGenomeIndex(sampleName), nil
	}
}

// buildExclusion constructs the genome-exclusion predicate for the
// deshard merger from an exclusion-list path and the same strategy used for
// genome resolution.
func buildExclusion(ctx context.Context, path string, g GenomeFlags, idx *genome.Index) (*genome.Exclusion, error) {
	if path == "" {
		return genome.NoExclusion(), nil
	}
	excluded, err := genome.LoadExclusions(ctx, path)
	if err != nil {
		return nil, err
	}
	if g.Separator != "" {
		return genome.NewSeparatorExclusion(g.Separator[0], excluded), nil
	}
	return genome.NewIndexExclusion(idx, excluded), nil
}

// FilterFlags gathers the filter's configuration surface, shared by the
// genome/contig subcommands (applied ahead of the engine) and the
// standalone filter subcommand.
type FilterFlags struct {
	MinAlignedLength       int
	MinPercentIdentity     float64
	MinAlignedPercent      float64
	MinAlignedLengthPair   int
	MinPercentIdentityPair float64
	IncludeSecondary       bool
	IncludeSupplementary   bool
	ProperPairsOnly        bool
	Inverse                bool
}

// ForMetabat returns the filter configuration forced when a MetaBAT
// estimator is present: identity >= 0.97001, proper and improper pairs both
// included, secondary and supplementary alignments both included.
func ForMetabat() FilterFlags {
	return FilterFlags{MinPercentIdentity: 0.97001, IncludeSecondary: true, IncludeSupplementary: true}
}

func (f FilterFlags) build(under aln.Reader) aln.Reader {
	flags := filter.FlagFilter{
		IncludeImproperPairs: !f.ProperPairsOnly,
		IncludeSecondary:     f.IncludeSecondary,
		IncludeSupplementary: f.IncludeSupplementary,
	}
	single := filter.Thresholds{
		MinAlignedLength:   f.MinAlignedLength,
		MinPercentIdentity: f.MinPercentIdentity,
		MinAlignedPercent:  f.MinAlignedPercent,
	}
	pair := filter.PairThresholds{
		MinAlignedLengthPair:   f.MinAlignedLengthPair,
		MinPercentIdentityPair: f.MinPercentIdentityPair,
	}
	return filter.New(under, flags, single, pair, f.Inverse)
}

// Build wraps under in the filter described by f. If f applies no predicate
// at all (the common case when the user requested no filtering), under is
// returned unwrapped.
func (f FilterFlags) Build(under aln.Reader) aln.Reader {
	if f.isNoop() {
		return under
	}
	return f.build(under)
}

func (f FilterFlags) isNoop() bool {
	return f.MinAlignedLength == 0 && f.MinPercentIdentity == 0 && f.MinAlignedPercent == 0 &&
		f.MinAlignedLengthPair == 0 && f.MinPercentIdentityPair == 0 &&
		!f.IncludeSecondary && !f.IncludeSupplementary && !f.ProperPairsOnly && !f.Inverse
}

// OutputFlags selects the sink's layout and zero-row suppression.
type OutputFlags struct {
	Sparse     bool
	PrintZeros bool
}

func (o OutputFlags) layout() sink.Layout {
	if o.Sparse {
		return sink.Sparse
	}
	return sink.Dense
}

// EstimatorFlags gathers the estimator.Config surface.
type EstimatorFlags struct {
	Methods            string
	EndExclusion        int
	MinCoveredFraction  float64
	TrimMin, TrimMax    float64
}

func (e EstimatorFlags) config() estimator.Config {
	cfg := estimator.DefaultConfig()
	if e.EndExclusion >= 0 {
		cfg.EndExclusion = e.EndExclusion
	}
	cfg.MinCoveredFraction = e.MinCoveredFraction
	if e.TrimMin > 0 || e.TrimMax > 0 {
		cfg.TrimLo, cfg.TrimHi = e.TrimMin, e.TrimMax
	}
	return cfg
}

// sampleFunc processes one already-opened, already-filtered sample stream
// and reports its run-wide retained-read total (used for RPKM).
type sampleFunc func(name string, r aln.Reader) (totalReads uint64, err error)

// RunPool opens each generator and runs fn over its stream, bounded by a
// worker pool of the given size (a worker owns its BAM stream, its
// estimator stack, its filter state; parallelism <= 0 means one worker per
// input, since each worker is I/O-bound on its own stream rather than
// CPU-bound). wrap is applied to each opened reader before fn sees it (e.g.
// the filter).
func RunPool(ctx context.Context, gens []aln.Generator, parallelism int, wrap func(aln.Reader) aln.Reader, fn sampleFunc) error {
	if parallelism <= 0 || parallelism > len(gens) {
		parallelism = len(gens)
	}
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup
	errs := make([]error, len(gens))
	for i, g := range gens {
		i, g := i, g
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			nr, err := g.Open(ctx)
			if err != nil {
				errs[i] = err
				return
			}
			defer func() {
				if cerr := nr.Reader.Close(); cerr != nil {
					log.Error.Printf("coverm: closing %v: %v", nr.Name, cerr)
				}
			}()
			r := wrap(nr.Reader)
			if _, err := fn(nr.Name, r); err != nil {
				errs[i] = errors.Wrapf(err, "coverm: sample %v", nr.Name)
			}
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
