// Package aln adapts grailbio/hts SAM/BAM records into the alignment
// abstraction the coverage pipeline streams over: primary-alignment
// predicates, CIGAR-derived spans, and the small set of per-record
// statistics the estimators and filters need.
package aln

import (
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

// nmTag is the SAM/BAM optional field holding edit distance from the
// reference, including substitution and indel bases.
var nmTag = sam.NewTag("NM")

// IsPrimary reports whether rec is neither a secondary nor a supplementary
// alignment.
func IsPrimary(rec *sam.Record) bool {
	return rec.Flags&(sam.Secondary|sam.Supplementary) == 0
}

// IsUnmapped reports whether rec has no placement on its reference.
func IsUnmapped(rec *sam.Record) bool {
	return rec.Flags&sam.Unmapped != 0
}

// NM returns the record's edit-distance auxiliary field, or ok=false if the
// record carries none.
func NM(rec *sam.Record) (nm int, ok bool) {
	aux := rec.AuxFields.Get(nmTag)
	if aux == nil {
		return 0, false
	}
	switch v := aux.Value().(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	default:
		return 0, false
	}
}

// ReadLength returns the length of the record's query sequence, including
// any soft-clipped bases.
func ReadLength(rec *sam.Record) int {
	return rec.Seq.Length
}

// SoftClipped returns the number of soft-clipped query bases (both ends
// combined).
func SoftClipped(rec *sam.Record) int {
	n := 0
	for _, co := range rec.Cigar {
		if co.Type() == sam.CigarSoftClipped {
			n += co.Len()
		}
	}
	return n
}

// AlignedLength is read_length - soft_clipped.
func AlignedLength(rec *sam.Record) int {
	return ReadLength(rec) - SoftClipped(rec)
}

// AlignedPercent is AlignedLength / ReadLength; 0 when the read is empty.
func AlignedPercent(rec *sam.Record) float64 {
	rl := ReadLength(rec)
	if rl == 0 {
		return 0
	}
	return float64(AlignedLength(rec)) / float64(rl)
}

// PercentIdentity is 1 - NM/AlignedLength, with insertions and deletions
// counted as in NM. A record with no NM tag is treated as 100% identity,
// since a filter threshold of 0 should not reject unannotated alignments.
func PercentIdentity(rec *sam.Record) float64 {
	al := AlignedLength(rec)
	if al <= 0 {
		return 0
	}
	nm, ok := NM(rec)
	if !ok {
		return 1
	}
	return 1 - float64(nm)/float64(al)
}

// RefSpan returns the number of reference bases consumed by the alignment
// (the distance from Pos to the one-past-the-end position).
func RefSpan(rec *sam.Record) int {
	span, _ := rec.Cigar.Lengths()
	return span
}

// DepthSpan is a single (enter, leave) half-open interval [Start, End) on
// the reference over which the alignment contributes one unit of depth.
// It corresponds to a maximal run of CIGAR M/D/=/X operations; I/S/H/P
// don't consume the reference and so contribute no depth.
//
// A reference-skip (N) operation ends the current span rather than
// extending it: a spliced long read's intron is not pileup depth, so it is
// treated the same as a gap between two separate alignments rather than as
// a "D" that keeps the depth counter open. This differs from a literal
// reading of "M/I/D/N/S/H/P/=/X" as uniformly depth-contributing; introns
// have never actually been covered by a base, so counting them as depth
// would undercount true gaps in coverage.
type DepthSpan struct {
	Start, End int
}

// DepthSpans decomposes rec's CIGAR into the reference-consuming spans that
// contribute to pileup depth. Most records produce exactly one span; records
// with reference-skip (N, e.g. spliced long reads) operations produce one
// span per exon, with the intron itself excluded.
func DepthSpans(rec *sam.Record) []DepthSpan {
	var spans []DepthSpan
	pos := rec.Pos
	open := -1
	flush := func(end int) {
		if open >= 0 {
			spans = append(spans, DepthSpan{Start: open, End: end})
			open = -1
		}
	}
	for _, co := range rec.Cigar {
		switch co.Type() {
		case sam.CigarMatch, sam.CigarDeletion, sam.CigarEqual, sam.CigarMismatch:
			if open < 0 {
				open = pos
			}
			pos += co.Len()
		case sam.CigarSkipped:
			flush(pos)
			pos += co.Len()
		case sam.CigarInsertion, sam.CigarSoftClipped, sam.CigarHardClipped, sam.CigarPadded:
			// Reference-non-consuming; does not affect depth.
		}
	}
	flush(pos)
	return spans
}

// ValidateSortedPosition returns an error if next does not follow prev in
// (reference id, start) order, the invariant every input stream must hold
// except explicitly qname-sorted deshard input.
func ValidateSortedPosition(prev, next *sam.Record) error {
	if prev == nil || prev.Ref == nil || next.Ref == nil {
		return nil
	}
	if next.Ref.ID() < prev.Ref.ID() {
		return errors.Errorf("aln: stream not position-sorted: record %q on ref %d precedes ref %d", next.Name, next.Ref.ID(), prev.Ref.ID())
	}
	if next.Ref.ID() == prev.Ref.ID() && next.Pos < prev.Pos {
		return errors.Errorf("aln: stream not position-sorted: record %q at %d precedes %d on ref %d", next.Name, next.Pos, prev.Pos, prev.Ref.ID())
	}
	return nil
}
