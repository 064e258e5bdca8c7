// Package filter implements the reference-sorted filter: a streaming
// predicate over (optionally paired) primary alignments, wrapping one
// alignment-reader abstraction (internal/aln) and producing another.
package filter

import (
	"io"

	"github.com/grailbio/hts/sam"

	"github.com/biocov/coverm/internal/aln"
)

// FlagFilter is the triple of flag-based inclusion booleans.
type FlagFilter struct {
	IncludeImproperPairs bool
	IncludeSecondary     bool
	IncludeSupplementary bool
}

// pass reports whether rec survives the flag-filter rule alone (unmapped
// reads are handled separately by the caller, since "always dropped from
// coverage accumulation" is a property of the engines, not just this
// filter).
func (f FlagFilter) pass(rec *sam.Record) bool {
	if !f.IncludeSecondary && rec.Flags&sam.Secondary != 0 {
		return false
	}
	if !f.IncludeSupplementary && rec.Flags&sam.Supplementary != 0 {
		return false
	}
	if !f.IncludeImproperPairs && rec.Flags&sam.Paired != 0 && rec.Flags&sam.ProperPair == 0 {
		return false
	}
	return true
}

// Thresholds are the single-read predicates.
type Thresholds struct {
	MinAlignedLength   int
	MinPercentIdentity float64
	MinAlignedPercent  float64
}

func (t Thresholds) pass(rec *sam.Record) bool {
	return aln.AlignedLength(rec) >= t.MinAlignedLength &&
		aln.PercentIdentity(rec) >= t.MinPercentIdentity &&
		aln.AlignedPercent(rec) >= t.MinAlignedPercent
}

// PairThresholds are the paired predicates, evaluated against the
// combined pair once both mates have arrived.
type PairThresholds struct {
	MinAlignedLengthPair   int
	MinPercentIdentityPair float64
}

// set reports whether any pair threshold was configured; when one is, the
// filter implies --proper-pairs-only.
func (t PairThresholds) set() bool {
	return t.MinAlignedLengthPair > 0 || t.MinPercentIdentityPair > 0
}

func (t PairThresholds) pass(a, b *sam.Record) bool {
	la, lb := aln.AlignedLength(a), aln.AlignedLength(b)
	combined := la + lb
	if combined < t.MinAlignedLengthPair {
		return false
	}
	if combined == 0 {
		return t.MinPercentIdentityPair <= 0
	}
	weighted := (aln.PercentIdentity(a)*float64(la) + aln.PercentIdentity(b)*float64(lb)) / float64(combined)
	return weighted >= t.MinPercentIdentityPair
}

// Filter wraps an aln.Reader, implementing aln.Reader itself so it can be
// composed transparently ahead of the coverage engines or the deshard
// merger.
type Filter struct {
	under   aln.Reader
	flags   FlagFilter
	single  Thresholds
	pair    PairThresholds
	inverse bool

	pending  map[string]*sam.Record // qname -> first-seen mate, bounded by current ref
	haveRef  bool
	curRef   int
	queue    []*sam.Record
	underEOF bool
}

// New builds a Filter. When pair thresholds are set, IncludeImproperPairs
// is forced false regardless of flags.
func New(under aln.Reader, flags FlagFilter, single Thresholds, pair PairThresholds, inverse bool) *Filter {
	if pair.set() {
		flags.IncludeImproperPairs = false
	}
	return &Filter{
		under:   under,
		flags:   flags,
		single:  single,
		pair:    pair,
		inverse: inverse,
		pending: make(map[string]*sam.Record),
	}
}

func (f *Filter) Header() *sam.Header { return f.under.Header() }

func (f *Filter) Close() error { return f.under.Close() }

// Next returns the next surviving (or, in inverse mode, the next rejected)
// record.
func (f *Filter) Next() (*sam.Record, error) {
	for {
		if len(f.queue) > 0 {
			r := f.queue[0]
			f.queue = f.queue[1:]
			return r, nil
		}
		if f.underEOF {
			return nil, io.EOF
		}
		rec, err := f.under.Next()
		if err == io.EOF {
			f.underEOF = true
			f.flushPendingAsDropped()
			continue
		}
		if err != nil {
			return nil, err
		}
		f.observeBoundary(rec)
		f.process(rec)
	}
}

func (f *Filter) observeBoundary(rec *sam.Record) {
	ref := -1
	if rec.Ref != nil {
		ref = rec.Ref.ID()
	}
	if f.haveRef && ref != f.curRef {
		f.flushPendingAsDropped()
	}
	f.curRef, f.haveRef = ref, true
}

// flushPendingAsDropped discards every partially-paired record accumulated
// for the current reference window: a mate whose partner never arrives
// before the next reference boundary is dropped, bounding memory to one
// reference's worth of pending mates.
func (f *Filter) flushPendingAsDropped() {
	if f.inverse {
		for _, r := range f.pending {
			f.queue = append(f.queue, r)
		}
	}
	f.pending = make(map[string]*sam.Record)
}

func (f *Filter) emit(rec *sam.Record, survives bool) {
	if survives != f.inverse {
		f.queue = append(f.queue, rec)
	}
}

func (f *Filter) process(rec *sam.Record) {
	if aln.IsUnmapped(rec) || !f.flags.pass(rec) {
		f.emit(rec, false)
		return
	}
	if !aln.IsPrimary(rec) {
		// Secondary/supplementary alignments that survive the flag filter
		// are passed through untouched; the single-read predicates only
		// apply to primary alignments.
		f.emit(rec, true)
		return
	}
	if !f.pair.set() {
		f.emit(rec, f.single.pass(rec))
		return
	}
	mate, ok := f.pending[rec.Name]
	if !ok {
		f.pending[rec.Name] = rec
		return
	}
	delete(f.pending, rec.Name)
	survives := f.single.pass(mate) && f.single.pass(rec) && f.pair.pass(mate, rec)
	f.emit(mate, survives)
	f.emit(rec, survives)
}
