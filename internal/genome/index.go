// Package genome implements the small immutable contig<->genome lookup
// structures shared read-only by the deshard merger and the per-genome
// coverage engine: a contig->genome index built either from an explicit
// table, a name-prefix separator, or a single-genome override, plus the
// genome-exclusion predicate derived from it.
package genome

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Strategy selects how contig names resolve to genomes. The two table-like
// representations (Separator, Table) are mutually exclusive per
// invocation.
type Strategy int

const (
	// Separator resolves a genome name as the prefix of a contig name up to
	// (not including) the first occurrence of a configured byte.
	Separator Strategy = iota
	// Table resolves genomes from an explicit contig->genome mapping.
	Table
	// Single assigns every contig to one genome (--single-genome).
	Single
)

// Index is the contig->genome lookup table. Genome indices are dense,
// 0..G-1, assigned in the order genomes are first encountered. Resolve
// registers genomes lazily, so an Index is not safe for concurrent use.
type Index struct {
	strategy Strategy
	sep      byte

	// explicit holds the contig->genome-name table for Strategy==Table; nil
	// otherwise (genome assignment is computed on the fly for Separator and
	// Single).
	explicit map[string]string

	mu          sortlessMutex
	nameToIdx   map[string]int
	names       []string // genome index -> name, in first-occurrence order
	contigs     map[string]int
	contigsByG  [][]string
	singleName  string
}

// NewSeparatorIndex builds an Index that resolves genomes by splitting
// contig names on sep.
func NewSeparatorIndex(sep byte) *Index {
	return newIndex(Separator, sep, nil, "")
}

// NewSingleGenomeIndex builds an Index that assigns every contig to one
// genome named name.
func NewSingleGenomeIndex(name string) *Index {
	return newIndex(Single, 0, nil, name)
}

// NewTableIndex builds an Index from an explicit contig->genome table, as
// parsed by LoadTable. Genomes appear in the order of their first
// occurrence in the table.
func NewTableIndex(entries []TableEntry) (*Index, error) {
	idx := newIndex(Table, 0, make(map[string]string, len(entries)), "")
	for _, e := range entries {
		if g, ok := idx.explicit[e.Contig]; ok && g != e.Genome {
			return nil, errors.Errorf("genome: contig %q maps to both %q and %q", e.Contig, g, e.Genome)
		}
		idx.explicit[e.Contig] = e.Genome
	}
	return idx, nil
}

func newIndex(strategy Strategy, sep byte, explicit map[string]string, singleName string) *Index {
	return &Index{
		strategy:   strategy,
		sep:        sep,
		explicit:   explicit,
		singleName: singleName,
		nameToIdx:  make(map[string]int),
		contigs:    make(map[string]int),
	}
}

// TableEntry is one (genome, contig) pair.
type TableEntry struct {
	Genome, Contig string
}

// Resolve returns the dense genome index and name for contig, registering
// a new genome on first sight. Resolve is NOT concurrency-safe; the
// per-genome engine calls it from a single goroutine per stream, and
// genome ordering is only well defined when contigs are resolved in BAM
// header order.
func (idx *Index) Resolve(contig string) (genomeIdx int, genomeName string, err error) {
	if g, ok := idx.contigs[contig]; ok {
		return g, idx.names[g], nil
	}
	name, err := idx.genomeNameFor(contig)
	if err != nil {
		return 0, "", err
	}
	g, ok := idx.nameToIdx[name]
	if !ok {
		g = len(idx.names)
		idx.nameToIdx[name] = g
		idx.names = append(idx.names, name)
		idx.contigsByG = append(idx.contigsByG, nil)
	}
	idx.contigs[contig] = g
	idx.contigsByG[g] = append(idx.contigsByG[g], contig)
	return g, name, nil
}

func (idx *Index) genomeNameFor(contig string) (string, error) {
	switch idx.strategy {
	case Single:
		return idx.singleName, nil
	case Separator:
		i := strings.IndexByte(contig, idx.sep)
		if i < 0 {
			return "", errors.Errorf("genome: separator %q not found in contig name %q", string(idx.sep), contig)
		}
		return contig[:i], nil
	case Table:
		name, ok := idx.explicit[contig]
		if !ok {
			return "", errors.Errorf("genome: contig %q absent from contig->genome table", contig)
		}
		return name, nil
	default:
		return "", errors.Errorf("genome: unknown strategy %v", idx.strategy)
	}
}

// NumGenomes returns the number of genomes registered so far.
func (idx *Index) NumGenomes() int { return len(idx.names) }

// GenomeName returns the name of genome index g.
func (idx *Index) GenomeName(g int) string { return idx.names[g] }

// ContigsOf returns the contig names assigned to genome index g, in the
// order they were first resolved.
func (idx *Index) ContigsOf(g int) []string { return idx.contigsByG[g] }

// sortlessMutex documents that Index.Resolve is intentionally not
// synchronised; it exists only as a named zero-size marker so a future
// concurrent caller notices the requirement instead of silently racing.
type sortlessMutex struct{}

// LoadTable parses a contig->genome file: tab-separated, two columns per
// non-empty line, `genome_name<TAB>contig_name`; blank lines are ignored.
// Transparently decompresses a gzip-suffixed path, matching
// pileup/common.go's LoadFa.
func LoadTable(ctx context.Context, path string) ([]TableEntry, error) {
	r, err := openMaybeGzip(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var entries []TableEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("genome: malformed contig table line %q", line)
		}
		entries = append(entries, TableEntry{Genome: parts[0], Contig: parts[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "genome: read table %v", path)
	}
	return entries, nil
}

// LoadExclusions parses a newline-separated list of genome names to
// exclude; blank lines are ignored.
func LoadExclusions(ctx context.Context, path string) (map[string]bool, error) {
	r, err := openMaybeGzip(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out[line] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "genome: read exclusion list %v", path)
	}
	return out, nil
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }

func openMaybeGzip(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "genome: open %v", path)
	}
	var rd io.Reader = f.Reader(ctx)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(rd)
		if err != nil {
			_ = f.Close(ctx)
			return nil, errors.Wrapf(err, "genome: gzip %v", path)
		}
		return readCloser{Reader: gz, close: func() error { gz.Close(); return f.Close(ctx) }}, nil
	}
	return readCloser{Reader: rd, close: func() error { return f.Close(ctx) }}, nil
}
