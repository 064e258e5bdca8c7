package estimator

import "container/heap"

// window accumulates per-position pileup depth over a half-open reference
// range [lo, hi) without ever materialising a full depth vector: depth is
// swept incrementally from (enter, leave) events, and the only retained
// state is a sparse depth -> position-count histogram. That histogram is
// exactly what the Histogram estimator reports, and it is also sufficient
// to derive every other depth-consuming estimator (mean, variance, covered
// fraction/bases, trimmed mean, MetaBAT-adjusted mean/variance) exactly,
// since each of those is a function of the depth multiset, not of position
// order.
//
// lo is fixed at the end-exclusion distance; hi tracks the growing
// reference length minus that same distance, recomputed from the raw
// length rather than accumulated incrementally, so that a short leading
// contig whose length is clamped below the exclusion distance doesn't
// permanently lose the clamped-off span once later contigs are joined in.
type window struct {
	lo, hi  int
	excl    int
	refLen  int
	curPos  int
	curDep  int
	ends    endHeap
	buckets map[int]int64 // depth (>=1) -> number of in-range positions at that depth
}

func newWindow(excl, refLen int) *window {
	w := &window{lo: excl, excl: excl, buckets: make(map[int]int64)}
	w.setRefLen(refLen)
	w.curPos = w.lo
	return w
}

// setRefLen recomputes hi from the raw reference length, clamping to lo
// when the (possibly still-growing) reference is shorter than twice the
// exclusion distance.
func (w *window) setRefLen(refLen int) {
	w.refLen = refLen
	hi := refLen - w.excl
	if hi < w.lo {
		hi = w.lo
	}
	w.hi = hi
}

// extend grows the reference by delta positions (a per-genome contig
// join) and recomputes hi from the new total length.
func (w *window) extend(delta int) {
	w.setRefLen(w.refLen + delta)
}

// effectiveLength is the size of the windowed range.
func (w *window) effectiveLength() int { return w.hi - w.lo }

// observe registers a depth-contributing span [start, end) clipped to the
// window. Spans must be supplied in non-decreasing start order.
func (w *window) observe(start, end int) {
	if start < w.lo {
		start = w.lo
	}
	if end > w.hi {
		end = w.hi
	}
	if start >= end {
		return
	}
	w.advanceTo(start)
	heap.Push(&w.ends, end)
	w.curDep++
}

// advanceTo sweeps the depth counter forward to pos, closing any pending
// spans whose end has been reached and tallying the depth histogram for
// every position passed.
func (w *window) advanceTo(pos int) {
	for len(w.ends) > 0 && w.ends[0] <= pos {
		e := heap.Pop(&w.ends).(int)
		w.accumulate(w.curPos, e)
		w.curPos = e
		w.curDep--
	}
	if pos > w.curPos {
		w.accumulate(w.curPos, pos)
		w.curPos = pos
	}
}

func (w *window) accumulate(from, to int) {
	if to <= from || w.curDep <= 0 {
		return
	}
	w.buckets[w.curDep] += int64(to - from)
}

// finish closes every still-open span. Must be called exactly once, after
// all observe calls, before reading aggregate statistics.
func (w *window) finish() {
	w.advanceTo(w.hi)
}

// bucket is one (depth, count-of-positions) entry of the window's depth
// distribution, including an implicit depth-0 bucket for uncovered
// positions.
type bucket struct {
	depth int
	count int64
}

// buckets sorted ascending by depth, synthesising the depth-0 bucket for
// any positions never covered by a span.
func (w *window) sortedBuckets() []bucket {
	covered := int64(0)
	out := make([]bucket, 0, len(w.buckets)+1)
	for d, c := range w.buckets {
		covered += c
		out = append(out, bucket{depth: d, count: c})
	}
	sortBuckets(out)
	if rest := int64(w.effectiveLength()) - covered; rest > 0 {
		out = append([]bucket{{depth: 0, count: rest}}, out...)
	}
	return out
}

func sortBuckets(b []bucket) {
	for i := 1; i < len(b); i++ {
		for j := i; j > 0 && b[j-1].depth > b[j].depth; j-- {
			b[j-1], b[j] = b[j], b[j-1]
		}
	}
}

// coveredCount is the number of in-range positions with depth >= 1.
func (w *window) coveredCount() int64 {
	var n int64
	for _, c := range w.buckets {
		n += c
	}
	return n
}

// sum and sumSq are Σdepth and Σdepth² over in-range positions.
func (w *window) sum() float64 {
	var s float64
	for d, c := range w.buckets {
		s += float64(d) * float64(c)
	}
	return s
}

func (w *window) sumSq() float64 {
	var s float64
	for d, c := range w.buckets {
		s += float64(d) * float64(d) * float64(c)
	}
	return s
}

// endHeap is a min-heap of pending span-end positions.
type endHeap []int

func (h endHeap) Len() int            { return len(h) }
func (h endHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h endHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *endHeap) Push(x interface{}) { *h = append(*h, x.(int)) }
func (h *endHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
