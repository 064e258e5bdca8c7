// Package covcontig implements the per-contig coverage engine: drives one
// alignment stream through an estimator stack at contig granularity.
package covcontig

import (
	"io"

	"github.com/pkg/errors"

	"github.com/biocov/coverm/internal/aln"
	"github.com/biocov/coverm/internal/estimator"
)

// Row is one finalised per-contig result.
type Row struct {
	Name      string
	Length    int
	Reads     int64
	Values    []float64
	Histogram []estimator.HistogramRow // non-nil only when the stack has a Histogram estimator
}

// Emit receives one Row per reference, in header order, including
// references with zero retained reads; callers apply print_zeros
// suppression when shaping output.
type Emit func(Row)

// Run streams r (already filtered/deshard-merged upstream as needed)
// through stack, emitting one Row per reference in header order. It
// returns the total number of retained reads across the whole stream,
// which callers fold into the run-wide RPKM total.
func Run(r aln.Reader, stack *estimator.Stack, emit Emit) (totalReads uint64, err error) {
	refs := r.Header().Refs()
	if len(refs) == 0 {
		return 0, errors.New("covcontig: BAM header has no references")
	}

	cur := 0
	reads := int64(0)
	resetCur := func(idx int) {
		cur = idx
		reads = 0
		stack.Reset(refs[idx].Len())
	}
	emitCur := func() {
		var hist []estimator.HistogramRow
		if he := stack.HistogramEstimator(); he != nil {
			hist = he.FinalizeHistogram()
		}
		emit(Row{Name: refs[cur].Name(), Length: refs[cur].Len(), Reads: reads, Values: stack.Finalize(), Histogram: hist})
	}
	resetCur(0)

	for {
		rec, nerr := r.Next()
		if nerr == io.EOF {
			break
		}
		if nerr != nil {
			return 0, nerr
		}
		if aln.IsUnmapped(rec) || !aln.IsPrimary(rec) {
			continue
		}
		refID := rec.Ref.ID()
		if refID < cur {
			return 0, errors.Errorf("covcontig: stream not position-sorted: record %q on ref %d after ref %d", rec.Name, refID, cur)
		}
		for refID > cur {
			emitCur()
			resetCur(cur + 1)
		}
		stack.ObserveRead()
		reads++
		totalReads++
		for _, span := range aln.DepthSpans(rec) {
			stack.ObserveSpan(0, span.Start, span.End)
		}
	}
	emitCur()
	for cur+1 < len(refs) {
		resetCur(cur + 1)
		emitCur()
	}
	return totalReads, nil
}
