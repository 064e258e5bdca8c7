// Package testaln provides a small in-memory aln.Reader and record-building
// helpers shared by the coverage pipeline's unit tests, in the style of
// grailbio/bio/encoding/bamprovider's fakeprovider.go.
package testaln

import (
	"io"

	"github.com/grailbio/hts/sam"
)

// Fake is an in-memory aln.Reader over a fixed slice of records.
type Fake struct {
	Head *sam.Header
	Recs []*sam.Record
	pos  int
}

func (f *Fake) Header() *sam.Header { return f.Head }

func (f *Fake) Next() (*sam.Record, error) {
	if f.pos >= len(f.Recs) {
		return nil, io.EOF
	}
	r := f.Recs[f.pos]
	f.pos++
	return r, nil
}

func (f *Fake) Close() error { return nil }

// NewHeader builds a header with references of the given (name, length)
// pairs, in order.
func NewHeader(refs ...RefSpec) *sam.Header {
	rs := make([]*sam.Reference, len(refs))
	for i, spec := range refs {
		r, err := sam.NewReference(spec.Name, "", "", spec.Length, nil, nil)
		if err != nil {
			panic(err)
		}
		rs[i] = r
	}
	h, err := sam.NewHeader(nil, rs)
	if err != nil {
		panic(err)
	}
	return h
}

// RefSpec is one reference dictionary entry.
type RefSpec struct {
	Name   string
	Length int
}

// RecordSpec describes a simple, fully-matched (no indels) alignment used
// by tests: a read of Length bases, aligned perfectly starting at Pos on
// Ref, with EditDistance mismatches.
type RecordSpec struct {
	Name         string
	Ref          *sam.Reference
	Pos          int
	Length       int
	EditDistance int
	Flags        sam.Flags
	SoftClipped  int
	MateRef      *sam.Reference
	MatePos      int
}

// NewRecord builds a record from a RecordSpec, with a single CIGAR match
// span (plus a soft-clip at the end when SoftClipped > 0) and an NM
// auxiliary tag.
func NewRecord(s RecordSpec) *sam.Record {
	matchLen := s.Length - s.SoftClipped
	cigar := sam.Cigar{sam.NewCigarOp(sam.CigarMatch, matchLen)}
	if s.SoftClipped > 0 {
		cigar = append(cigar, sam.NewCigarOp(sam.CigarSoftClipped, s.SoftClipped))
	}
	aux, err := sam.NewAux(sam.NewTag("NM"), s.EditDistance)
	if err != nil {
		panic(err)
	}
	mPos := -1
	if s.MateRef != nil {
		mPos = s.MatePos
	}
	return &sam.Record{
		Name:      s.Name,
		Ref:       s.Ref,
		Pos:       s.Pos,
		MapQ:      60,
		Cigar:     cigar,
		Flags:     s.Flags,
		MateRef:   s.MateRef,
		MatePos:   mPos,
		Seq:       sam.NewSeq(make([]byte, s.Length)),
		AuxFields: sam.AuxFields{aux},
	}
}
