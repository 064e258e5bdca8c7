// Package covgenome implements the per-genome coverage engine: folds
// contig pileups into genomes via a contig->genome map, joining consecutive
// same-genome contigs into one logical reference before folding them
// through an estimator stack.
package covgenome

import (
	"io"

	"github.com/pkg/errors"

	"github.com/biocov/coverm/internal/aln"
	"github.com/biocov/coverm/internal/covcontig"
	"github.com/biocov/coverm/internal/estimator"
	"github.com/biocov/coverm/internal/genome"
)

// Row is one finalised per-genome result. Identical in shape to
// covcontig.Row: in MetaBAT mode Run bypasses genome grouping entirely and
// delegates straight to covcontig, emitting contig rows.
type Row = covcontig.Row

// Emit receives one Row per run of consecutive same-genome contigs, in
// header order, including genomes with zero retained reads. A genome whose
// contigs are not adjacent in the header is emitted once per run.
type Emit func(Row)

// Run streams r through stack, grouping consecutive contigs of one genome
// via idx and emitting one Row per such group. If stack contains a MetaBAT estimator, the
// genome step is bypassed and Run behaves exactly like covcontig.Run,
// emitting one row per contig.
func Run(r aln.Reader, idx *genome.Index, stack *estimator.Stack, emit Emit) (totalReads uint64, err error) {
	for _, e := range stack.Estimators {
		if e.Kind() == estimator.MetaBAT {
			return covcontig.Run(r, stack, emit)
		}
	}

	refs := r.Header().Refs()
	if len(refs) == 0 {
		return 0, errors.New("covgenome: BAM header has no references")
	}

	type resolved struct {
		genomeIdx int
		name      string
	}
	res := make([]resolved, len(refs))
	for i, rf := range refs {
		g, name, rerr := idx.Resolve(rf.Name())
		if rerr != nil {
			return 0, rerr
		}
		res[i] = resolved{genomeIdx: g, name: name}
	}

	curRef := 0
	var groupName string
	var groupLen int
	var groupReads int64
	var contigBase int
	groupOpen := false

	startGroup := func(ref int) {
		groupName = res[ref].name
		groupLen = refs[ref].Len()
		groupReads = 0
		contigBase = 0
		stack.Reset(groupLen)
		groupOpen = true
	}
	joinContig := func(ref int) {
		contigBase = groupLen
		delta := refs[ref].Len()
		stack.ExtendLength(delta)
		groupLen += delta
	}
	emitGroup := func() {
		if !groupOpen {
			return
		}
		var hist []estimator.HistogramRow
		if he := stack.HistogramEstimator(); he != nil {
			hist = he.FinalizeHistogram()
		}
		emit(Row{Name: groupName, Length: groupLen, Reads: groupReads, Values: stack.Finalize(), Histogram: hist})
		groupOpen = false
	}
	advanceTo := func(ref int) {
		for next := curRef + 1; next <= ref; next++ {
			if res[next].genomeIdx == res[next-1].genomeIdx {
				joinContig(next)
			} else {
				emitGroup()
				startGroup(next)
			}
		}
		curRef = ref
	}

	startGroup(0)

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
		if refID < curRef {
			return 0, errors.Errorf("covgenome: stream not position-sorted: record %q on ref %d after ref %d", rec.Name, refID, curRef)
		}
		if refID > curRef {
			advanceTo(refID)
		}
		stack.ObserveRead()
		groupReads++
		totalReads++
		for _, span := range aln.DepthSpans(rec) {
			stack.ObserveSpan(contigBase, span.Start, span.End)
		}
	}
	if curRef < len(refs)-1 {
		advanceTo(len(refs) - 1)
	}
	emitGroup()
	return totalReads, nil
}
