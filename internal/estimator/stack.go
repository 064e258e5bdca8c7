package estimator

// Stack is a configured, ordered set of estimators driven together through
// one reference (or genome) at a time.
type Stack struct {
	Estimators []*Estimator
}

// NewStack builds a Stack of the given kinds sharing cfg. MetaBAT is
// mutually exclusive with every other kind; callers enforce that at
// configuration time (cmd/coverm), not here.
func NewStack(kinds []Kind, cfg Config) *Stack {
	s := &Stack{Estimators: make([]*Estimator, len(kinds))}
	for i, k := range kinds {
		s.Estimators[i] = New(k, cfg)
	}
	return s
}

// HistogramEstimator returns the stack's Histogram estimator, or nil if it
// has none.
func (s *Stack) HistogramEstimator() *Estimator {
	for _, e := range s.Estimators {
		if e.Kind() == Histogram {
			return e
		}
	}
	return nil
}

// HasHistogram reports whether the stack includes a Histogram estimator,
// which the sink must handle as a multi-row emission.
func (s *Stack) HasHistogram() bool {
	for _, e := range s.Estimators {
		if e.Kind() == Histogram {
			return true
		}
	}
	return false
}

// Headers returns the flattened column headers across every estimator in
// the stack, in order.
func (s *Stack) Headers() []string {
	var h []string
	for _, e := range s.Estimators {
		h = append(h, e.Kind().Header()...)
	}
	return h
}

// Reset resets every estimator in the stack to a fresh reference of the
// given length.
func (s *Stack) Reset(length int) {
	for _, e := range s.Estimators {
		e.Reset(length)
	}
}

// ExtendLength grows every estimator's current reference by delta
// positions without resetting state (per-genome contig joins).
func (s *Stack) ExtendLength(delta int) {
	for _, e := range s.Estimators {
		e.ExtendLength(delta)
	}
}

// ObserveRead records one retained alignment across the whole stack.
func (s *Stack) ObserveRead() {
	for _, e := range s.Estimators {
		e.ObserveRead()
	}
}

// ObserveSpan records one depth-contributing span across the whole stack.
func (s *Stack) ObserveSpan(base, start, end int) {
	for _, e := range s.Estimators {
		e.ObserveSpan(base, start, end)
	}
}

// SetTotalReadsMapped supplies the run-wide total to every RPKM estimator
// in the stack.
func (s *Stack) SetTotalReadsMapped(n uint64) {
	for _, e := range s.Estimators {
		e.SetTotalReadsMapped(n)
	}
}

// Finalize flattens Finalize() across every non-Histogram estimator in the
// stack into one row of values, in Headers() order with any Histogram
// columns left out. The caller must handle
// Histogram estimators (if any) separately via FinalizeHistogram.
func (s *Stack) Finalize() []float64 {
	var vals []float64
	for _, e := range s.Estimators {
		if e.Kind() == Histogram {
			continue
		}
		vals = append(vals, e.Finalize()...)
	}
	return vals
}
