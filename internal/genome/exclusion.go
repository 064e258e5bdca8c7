package genome

import "strings"

// ExclusionMode picks the genome-exclusion strategy: one type, three
// modes, in place of a static-dispatch explosion of exclusion-filter
// types crossed with stream generators.
type ExclusionMode int

const (
	// ExcludeNone permits every genome.
	ExcludeNone ExclusionMode = iota
	// ExcludeBySeparator rejects a contig if the prefix up to sep is in the
	// excluded set.
	ExcludeBySeparator
	// ExcludeByIndex rejects a contig if an Index resolves it to an excluded
	// genome.
	ExcludeByIndex
)

// Exclusion is the genome-exclusion predicate consumed by the deshard
// merger and, optionally, the coverage engines.
type Exclusion struct {
	mode     ExclusionMode
	sep      byte
	excluded map[string]bool
	idx      *Index
}

// NoExclusion permits every genome.
func NoExclusion() *Exclusion { return &Exclusion{mode: ExcludeNone} }

// NewSeparatorExclusion rejects contigs whose sep-delimited genome prefix
// is in excluded.
func NewSeparatorExclusion(sep byte, excluded map[string]bool) *Exclusion {
	return &Exclusion{mode: ExcludeBySeparator, sep: sep, excluded: excluded}
}

// NewIndexExclusion rejects contigs that idx resolves to a genome in
// excluded.
func NewIndexExclusion(idx *Index, excluded map[string]bool) *Exclusion {
	return &Exclusion{mode: ExcludeByIndex, idx: idx, excluded: excluded}
}

// Excluded reports whether contig's genome is in the excluded set. The
// deshard merger is the one place a resolution failure (e.g. missing
// separator) is tolerated rather than fatal: an unresolvable contig is
// treated as not excluded, scoping exclusion to genomes it can actually
// resolve.
func (ex *Exclusion) Excluded(contig string) bool {
	switch ex.mode {
	case ExcludeNone:
		return false
	case ExcludeBySeparator:
		i := strings.IndexByte(contig, ex.sep)
		if i < 0 {
			return false
		}
		return ex.excluded[contig[:i]]
	case ExcludeByIndex:
		g, _, err := ex.idx.Resolve(contig)
		if err != nil {
			return false
		}
		return ex.excluded[ex.idx.GenomeName(g)]
	default:
		return false
	}
}
