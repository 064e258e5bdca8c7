// Package estimator implements the coverage-estimator stack: stateful
// per-reference accumulators that fold a pileup event stream into one or
// more floating-point results. Modeled as a single tagged-variant type
// rather than an interface/trait-object collection, since the state each
// kind carries is small and the kind set is closed.
package estimator

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Kind identifies one coverage-estimator variant.
type Kind int

const (
	Mean Kind = iota
	TrimmedMean
	Variance
	CoveredFraction
	CoveredBases
	Length
	Count
	ReadsPerBase
	RPKM
	RelativeAbundance
	Histogram
	MetaBAT
)

// Header returns the estimator's output-column header(s).
func (k Kind) Header() []string {
	switch k {
	case Mean:
		return []string{"Mean"}
	case TrimmedMean:
		return []string{"Trimmed Mean"}
	case Variance:
		return []string{"Variance"}
	case CoveredFraction:
		return []string{"Covered Fraction"}
	case CoveredBases:
		return []string{"Covered Bases"}
	case Length:
		return []string{"Length"}
	case Count:
		return []string{"Read Count"}
	case ReadsPerBase:
		return []string{"Reads per base"}
	case RPKM:
		return []string{"RPKM"}
	case RelativeAbundance:
		return []string{"Relative Abundance (%)"}
	case Histogram:
		return []string{"Depth", "Count"}
	case MetaBAT:
		return []string{"Length", "Mean", "Variance"}
	default:
		return nil
	}
}

// needsWindow reports whether the kind requires per-position depth detail
// (and hence a *window), as opposed to pure read-count/length bookkeeping.
func (k Kind) needsWindow() bool {
	switch k {
	case Mean, TrimmedMean, Variance, CoveredFraction, CoveredBases, Histogram, MetaBAT, RelativeAbundance:
		return true
	default:
		return false
	}
}

// gated reports whether min_covered_fraction applies to this kind.
func (k Kind) gated() bool {
	switch k {
	case Length, Count, ReadsPerBase, CoveredFraction:
		return false
	default:
		return true
	}
}

// Config holds the invocation-wide parameters shared by every estimator in
// a stack.
type Config struct {
	// EndExclusion (e) excludes positions within e bases of either end of a
	// reference from per-position statistics. Default 75.
	EndExclusion int
	// MinCoveredFraction gates every estimator except Length, Count,
	// ReadsPerBase and CoveredFraction itself to 0 when the reference's
	// covered fraction falls below this threshold (MetaBAT keeps its length
	// column and reports 0 mean and variance).
	MinCoveredFraction float64
	// TrimLo/TrimHi bound the central region kept by TrimmedMean; the
	// defaults are (0.05, 0.95).
	TrimLo, TrimHi float64
}

// DefaultConfig returns the invocation defaults.
func DefaultConfig() Config {
	return Config{EndExclusion: 75, MinCoveredFraction: 0, TrimLo: 0.05, TrimHi: 0.95}
}

// Validate rejects a configuration-error case: a non-zero
// MinCoveredFraction is incompatible with a stack containing only
// Length/Count/ReadsPerBase/CoveredFraction (there would be nothing for the
// gate to apply to).
func (c Config) Validate(kinds []Kind) error {
	if c.MinCoveredFraction <= 0 {
		return nil
	}
	for _, k := range kinds {
		if k.gated() {
			return nil
		}
	}
	return errors.Errorf("estimator: min_covered_fraction=%v set, but stack %v contains no gated estimator", c.MinCoveredFraction, kinds)
}

// Estimator is one instance of a Kind with its own small scalar/window
// state, reset between references but not between reads.
type Estimator struct {
	kind Kind
	cfg  Config

	refLength int
	win       *window
	reads     int64

	// totalReadsMapped is only known after every stream in the run has
	// completed; RPKM is finalised in a second pass once the sink supplies
	// it.
	totalReadsMapped uint64
}

// New constructs an estimator of the given kind sharing cfg.
func New(kind Kind, cfg Config) *Estimator {
	return &Estimator{kind: kind, cfg: cfg}
}

// Kind returns the estimator's variant.
func (e *Estimator) Kind() Kind { return e.kind }

// Reset begins accumulation for a reference (or, for per-genome
// aggregation, the first contig of a genome) of the given length.
func (e *Estimator) Reset(length int) {
	e.refLength = length
	e.reads = 0
	if e.kind.needsWindow() {
		e.win = newWindow(e.cfg.EndExclusion, length)
	} else {
		e.win = nil
	}
}

// ExtendLength grows the current reference's logical length without
// resetting accumulated state, used by the per-genome engine to join
// consecutive contigs of the same genome into one logical reference: end
// exclusion only trims the outer ends of the whole genome, not internal
// contig joins. The window recomputes its upper bound from the new total
// length rather than shifting the old one, so a leading contig shorter
// than the exclusion distance (whose window starts clamped to zero width)
// correctly regains the excess once later contigs push the total length
// back past the exclusion distance.
func (e *Estimator) ExtendLength(delta int) {
	e.refLength += delta
	if e.win != nil {
		e.win.extend(delta)
	}
}

// ObserveRead records one retained alignment on the current reference.
func (e *Estimator) ObserveRead() { e.reads++ }

// ObserveSpan records a depth-contributing reference span produced by one
// alignment's CIGAR (aln.DepthSpans), translated by base so that
// coordinates are relative to the start of the *current logical reference*
// (which may be a joined multi-contig genome window).
func (e *Estimator) ObserveSpan(base, start, end int) {
	if e.win == nil {
		return
	}
	e.win.observe(base+start, base+end)
}

// SetTotalReadsMapped supplies the run-wide total used by RPKM.
func (e *Estimator) SetTotalReadsMapped(n uint64) { e.totalReadsMapped = n }

// covered fraction used for the min_covered_fraction gate; not itself
// gated.
func (e *Estimator) coveredFraction() float64 {
	if e.win == nil {
		return 0
	}
	el := e.win.effectiveLength()
	if el <= 0 {
		return 0
	}
	return float64(e.win.coveredCount()) / float64(el)
}

func (e *Estimator) gateFails() bool {
	return e.kind.gated() && e.cfg.MinCoveredFraction > 0 && e.coveredFraction() < e.cfg.MinCoveredFraction
}

// Finalize closes the window (if any) and returns the estimator's output
// values, in Kind.Header() order. Histogram does not use Finalize; see
// FinalizeHistogram.
func (e *Estimator) Finalize() []float64 {
	if e.win != nil {
		e.win.finish()
	}
	if e.gateFails() {
		if e.kind == MetaBAT {
			return []float64{float64(e.refLength), 0, 0}
		}
		return []float64{0}
	}
	switch e.kind {
	case Mean, RelativeAbundance:
		return []float64{e.mean()}
	case TrimmedMean:
		return []float64{e.trimmedMean()}
	case Variance:
		return []float64{e.variance()}
	case CoveredFraction:
		return []float64{e.coveredFraction()}
	case CoveredBases:
		return []float64{float64(e.win.coveredCount())}
	case Length:
		return []float64{float64(e.refLength)}
	case Count:
		return []float64{float64(e.reads)}
	case ReadsPerBase:
		if e.refLength == 0 {
			return []float64{0}
		}
		return []float64{float64(e.reads) / float64(e.refLength)}
	case RPKM:
		if e.refLength == 0 || e.totalReadsMapped == 0 {
			return []float64{0}
		}
		return []float64{1e9 * float64(e.reads) / (float64(e.refLength) * float64(e.totalReadsMapped))}
	case MetaBAT:
		length, mean, variance := e.metabat()
		return []float64{length, mean, variance}
	default:
		return nil
	}
}

func (e *Estimator) mean() float64 {
	el := e.win.effectiveLength()
	if el <= 0 {
		return 0
	}
	return e.win.sum() / float64(el)
}

func (e *Estimator) variance() float64 {
	n := float64(e.win.effectiveLength())
	if n < 2 {
		return 0
	}
	sum, sumSq := e.win.sum(), e.win.sumSq()
	return (sumSq - sum*sum/n) / (n - 1)
}

// trimmedMean drops the lowest floor(lo*N) and highest floor((1-hi)*N)
// entries of the sorted in-range depth multiset, then averages the rest.
// Operates on the window's sparse bucket representation so no per-position
// vector is ever built.
func (e *Estimator) trimmedMean() float64 {
	buckets := e.win.sortedBuckets()
	n := int64(e.win.effectiveLength())
	if n == 0 {
		return 0
	}
	lowDrop := int64(e.cfg.TrimLo * float64(n))
	highDrop := int64((1 - e.cfg.TrimHi) * float64(n))
	return trimmedMeanOf(buckets, lowDrop, highDrop)
}

func trimmedMeanOf(buckets []bucket, lowDrop, highDrop int64) float64 {
	total := int64(0)
	for _, b := range buckets {
		total += b.count
	}
	keepFrom, keepTo := lowDrop, total-highDrop
	if keepTo <= keepFrom {
		return 0
	}
	var sum float64
	var kept int64
	pos := int64(0)
	for _, b := range buckets {
		lo := pos
		hi := pos + b.count
		pos = hi
		segLo, segHi := maxI64(lo, keepFrom), minI64(hi, keepTo)
		if segHi > segLo {
			n := segHi - segLo
			sum += float64(b.depth) * float64(n)
			kept += n
		}
	}
	if kept == 0 {
		return 0
	}
	return sum / float64(kept)
}

// metabat computes the MetaBAT-adjusted (length, mean, variance) triple:
// sort depths; if >=3 distinct depths, discard values outside [μ-σ, μ+σ]
// (computed from the full set) once; recompute mean and sample variance
// from the remainder.
func (e *Estimator) metabat() (length, mean, variance float64) {
	length = float64(e.refLength)
	buckets := e.win.sortedBuckets()
	n := int64(e.win.effectiveLength())
	if n == 0 {
		return length, 0, 0
	}
	sum, sumSq := e.win.sum(), e.win.sumSq()
	fullMean := sum / float64(n)
	var fullVar float64
	if n >= 2 {
		fullVar = (sumSq - sum*sum/float64(n)) / float64(n-1)
	}
	fullSD := math.Sqrt(fullVar)

	if distinctDepths(buckets) < 3 {
		mean = fullMean
		variance = fullVar
		return
	}
	lo, hi := fullMean-fullSD, fullMean+fullSD
	var rSum, rSumSq float64
	var rN int64
	for _, b := range buckets {
		d := float64(b.depth)
		if d < lo || d > hi {
			continue
		}
		rSum += d * float64(b.count)
		rSumSq += d * d * float64(b.count)
		rN += b.count
	}
	if rN == 0 {
		return length, 0, 0
	}
	mean = rSum / float64(rN)
	if rN >= 2 {
		variance = (rSumSq - rSum*rSum/float64(rN)) / float64(rN-1)
	}
	return
}

func distinctDepths(buckets []bucket) int {
	n := 0
	for _, b := range buckets {
		if b.count > 0 {
			n++
		}
	}
	return n
}

// HistogramRow is one (depth, count) entry of a Histogram estimator's
// output.
type HistogramRow struct {
	Depth int
	Count int64
}

// FinalizeHistogram returns the sparse depth -> position-count mapping for
// a Histogram estimator. Only depths with at least one position are
// reported; the implicit depth-0 bucket is omitted, matching the sparse
// pileup-histogram output convention.
func (e *Estimator) FinalizeHistogram() []HistogramRow {
	e.win.finish()
	rows := make([]HistogramRow, 0, len(e.win.buckets))
	for d, c := range e.win.buckets {
		if d == 0 {
			continue
		}
		rows = append(rows, HistogramRow{Depth: d, Count: c})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Depth < rows[j].Depth })
	return rows
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
