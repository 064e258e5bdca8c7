package aln

import (
	"context"
	"io"
	"runtime"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

// Reader is the alignment-reader abstraction the coverage pipeline streams
// over: a single forward-streaming, position- or qname-sorted source of
// SAM/BAM records plus its reference dictionary. Parsing the underlying
// file format itself isn't this package's concern; this is the narrow
// interface the pipeline consumes, backed here by github.com/grailbio/hts.
type Reader interface {
	// Header returns the reference dictionary. Must not be modified by the
	// caller.
	Header() *sam.Header

	// Next returns the next record, or (nil, io.EOF) once the stream is
	// exhausted. Any other error is fatal to the whole run.
	Next() (*sam.Record, error)

	// Close releases the underlying resource.
	Close() error
}

// NamedReader pairs a Reader with the display name the coverage printer
// uses as the sample column / "Sample" row value.
type NamedReader struct {
	Name   string
	Reader Reader
}

// Generator produces a NamedReader on demand: a concrete generator may
// simply open an existing BAM file, or it may shell out to a mapper
// (internal/mapper) and hand back a stream read from its stdout pipe.
type Generator interface {
	// Open returns a stream and its display name. The caller owns the
	// returned Reader and must Close it.
	Open(ctx context.Context) (NamedReader, error)
}

// bamReader adapts *bam.Reader (and the file.File it was opened from) to
// Reader.
type bamReader struct {
	f   file.File
	br  *bam.Reader
	ctx context.Context
}

// OpenBAM opens path (local or any scheme github.com/grailbio/base/file
// supports, e.g. s3://) as a position- or qname-sorted BAM stream.
func OpenBAM(ctx context.Context, path string) (Reader, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "aln: open %v", path)
	}
	br, err := bam.NewReader(f.Reader(ctx), runtime.NumCPU())
	if err != nil {
		_ = f.Close(ctx)
		return nil, errors.Wrapf(err, "aln: parse BAM header %v", path)
	}
	return &bamReader{f: f, br: br, ctx: ctx}, nil
}

func (r *bamReader) Header() *sam.Header { return r.br.Header() }

func (r *bamReader) Next() (*sam.Record, error) {
	rec, err := r.br.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrap(err, "aln: read BAM record")
	}
	return rec, nil
}

func (r *bamReader) Close() error {
	return r.f.Close(r.ctx)
}

// fileGenerator is a Generator over an already-existing BAM file; its
// display name is the file's basename with any .bam/.sam/.cram suffix
// trimmed (the "sample name from input filename stem" convention).
type fileGenerator struct {
	path string
}

// NewFileGenerator returns a Generator that opens the BAM file at path.
func NewFileGenerator(path string) Generator {
	return &fileGenerator{path: path}
}

func (g *fileGenerator) Open(ctx context.Context) (NamedReader, error) {
	r, err := OpenBAM(ctx, g.path)
	if err != nil {
		return NamedReader{}, err
	}
	return NamedReader{Name: SampleName(g.path), Reader: r}, nil
}

// SliceReader is an in-memory Reader over a fixed, already-ordered slice of
// records, used to hand the deshard merger's resorted output back into the
// engines as an ordinary Reader.
type SliceReader struct {
	head *sam.Header
	recs []*sam.Record
	pos  int
}

// NewSliceReader wraps recs (which the caller must have already placed in
// (reference id, start) order) as a Reader presenting head.
func NewSliceReader(head *sam.Header, recs []*sam.Record) *SliceReader {
	return &SliceReader{head: head, recs: recs}
}

func (r *SliceReader) Header() *sam.Header { return r.head }

func (r *SliceReader) Next() (*sam.Record, error) {
	if r.pos >= len(r.recs) {
		return nil, io.EOF
	}
	rec := r.recs[r.pos]
	r.pos++
	return rec, nil
}

func (r *SliceReader) Close() error { return nil }

// SampleName derives a display name from a BAM path: basename, minus
// directory, minus a trailing .bam/.sam/.cram.
func SampleName(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	for _, suf := range []string{".bam", ".sam", ".cram"} {
		if strings.HasSuffix(base, suf) {
			return base[:len(base)-len(suf)]
		}
	}
	return base
}
