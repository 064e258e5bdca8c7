// Package deshard implements the sharded-BAM deshard merger: a k-way merge
// of read-name-sorted alignment streams, one per disjoint reference shard,
// into a single best-hit-per-read stream.
package deshard

import (
	"io"

	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"

	"github.com/biocov/coverm/internal/aln"
	"github.com/biocov/coverm/internal/genome"
)

// group is the set of consecutive records sharing one qname within a
// single shard's read-name-sorted stream.
type group struct {
	qname string
	recs  []*sam.Record
}

// groupReader turns a qname-sorted aln.Reader into a sequence of groups.
type groupReader struct {
	under   aln.Reader
	lookahead *sam.Record
	eof     bool
}

func newGroupReader(under aln.Reader) *groupReader {
	return &groupReader{under: under}
}

func (g *groupReader) fill() error {
	if g.lookahead != nil || g.eof {
		return nil
	}
	rec, err := g.under.Next()
	if err == io.EOF {
		g.eof = true
		return nil
	}
	if err != nil {
		return err
	}
	g.lookahead = rec
	return nil
}

// next returns the next group, or (nil, io.EOF) when the shard is
// exhausted.
func (g *groupReader) next() (*group, error) {
	if err := g.fill(); err != nil {
		return nil, err
	}
	if g.lookahead == nil {
		return nil, io.EOF
	}
	qname := g.lookahead.Name
	grp := &group{qname: qname, recs: []*sam.Record{g.lookahead}}
	g.lookahead = nil
	for {
		if err := g.fill(); err != nil {
			return nil, err
		}
		if g.lookahead == nil || g.lookahead.Name != qname {
			break
		}
		grp.recs = append(grp.recs, g.lookahead)
		g.lookahead = nil
	}
	return grp, nil
}

// score combines a shard's record(s) for a qname into one score, so the
// winning shard for a read can be picked by highest score. Unmapped qnames
// score 0.
func score(recs []*sam.Record) float64 {
	var lenTotal, nmTotal int
	any := false
	for _, r := range recs {
		if aln.IsUnmapped(r) || !aln.IsPrimary(r) {
			continue
		}
		any = true
		al := aln.AlignedLength(r)
		lenTotal += al
		nm, _ := aln.NM(r)
		nmTotal += nm
	}
	if !any || lenTotal == 0 {
		return 0
	}
	return float64(lenTotal) * (1 - float64(nmTotal)/float64(lenTotal))
}

// winningContig returns the reference name of the first mapped, primary
// record in recs, used to evaluate genome exclusion.
func winningContig(recs []*sam.Record) (string, bool) {
	for _, r := range recs {
		if !aln.IsUnmapped(r) && aln.IsPrimary(r) && r.Ref != nil {
			return r.Ref.Name(), true
		}
	}
	return "", false
}

// Merger is the k-way merge over shards sharing a qname order.
type Merger struct {
	shards    []*groupReader
	exclusion *genome.Exclusion
	header    *sam.Header
	refMaps   []map[string]*sam.Reference // per shard: that shard's contig name -> merged header's Reference

	queue []*sam.Record
}

// New builds a Merger over shards, each a read-name-sorted alignment
// stream from a disjoint reference shard. exclusion may be
// genome.NoExclusion().
//
// Because shards carry disjoint reference dictionaries, each numbered
// independently from 0, New builds one merged dictionary spanning every
// shard (shard 0's references first, then shard 1's, and so on) and a
// per-shard name->Reference map into it. Next remaps every emitted
// record's Ref/MateRef through that map, so a record kept from shard i>0
// doesn't carry a reference ID that collides with shard 0's numbering.
func New(shards []aln.Reader, exclusion *genome.Exclusion) (*Merger, error) {
	if len(shards) == 0 {
		return nil, errors.New("deshard: no input shards")
	}
	grs := make([]*groupReader, len(shards))
	refMaps := make([]map[string]*sam.Reference, len(shards))
	var mergedRefs []*sam.Reference
	for i, s := range shards {
		grs[i] = newGroupReader(s)
		refMaps[i] = make(map[string]*sam.Reference)
		for _, r := range s.Header().Refs() {
			merged, err := sam.NewReference(r.Name(), r.AssemblyID(), r.Species(), r.Len(), r.MD5(), nil)
			if err != nil {
				return nil, errors.Wrapf(err, "deshard: shard %d reference %q", i, r.Name())
			}
			refMaps[i][r.Name()] = merged
			mergedRefs = append(mergedRefs, merged)
		}
	}
	header, err := sam.NewHeader(nil, mergedRefs)
	if err != nil {
		return nil, errors.Wrap(err, "deshard: build merged reference dictionary")
	}
	return &Merger{shards: grs, exclusion: exclusion, header: header, refMaps: refMaps}, nil
}

// Header returns the merged reference dictionary spanning every shard, in
// shard order.
func (m *Merger) Header() *sam.Header { return m.header }

// remap rewrites rec's Ref/MateRef from shard-local Reference pointers to
// the equivalent entries in the merged header, by name.
func remap(rec *sam.Record, refMap map[string]*sam.Reference) *sam.Record {
	if rec.Ref != nil {
		if mapped, ok := refMap[rec.Ref.Name()]; ok {
			rec.Ref = mapped
		}
	}
	if rec.MateRef != nil {
		if mapped, ok := refMap[rec.MateRef.Name()]; ok {
			rec.MateRef = mapped
		}
	}
	return rec
}

func (m *Merger) Close() error {
	var first error
	for _, s := range m.shards {
		if err := s.under.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Next returns the next record of the winning alignment for one read
// group, or io.EOF once every shard is exhausted.
func (m *Merger) Next() (*sam.Record, error) {
	for len(m.queue) == 0 {
		done, err := m.step()
		if err != nil {
			return nil, err
		}
		if done {
			return nil, io.EOF
		}
	}
	r := m.queue[0]
	m.queue = m.queue[1:]
	return r, nil
}

// step consumes one read group from every shard in lockstep, picks the
// winner, applies genome exclusion (falling through to the next-best
// shard, then dropping the group entirely if every candidate is
// excluded), and queues the winner's records. Returns done=true once every
// shard has reached EOF.
func (m *Merger) step() (done bool, err error) {
	groups := make([]*group, len(m.shards))
	var qname string
	anyLive := false
	for i, s := range m.shards {
		g, err := s.next()
		if err == io.EOF {
			continue
		}
		if err != nil {
			return false, err
		}
		anyLive = true
		if qname == "" {
			qname = g.qname
		} else if g.qname != qname {
			return false, errors.Errorf("deshard: shard qname orderings diverge: shard 0 at %q, shard %d at %q", qname, i, g.qname)
		}
		groups[i] = g
	}
	if !anyLive {
		return true, nil
	}

	type candidate struct {
		idx   int
		score float64
	}
	var cands []candidate
	for i, g := range groups {
		if g == nil {
			continue
		}
		cands = append(cands, candidate{idx: i, score: score(g.recs)})
	}

	// Highest score wins; ties broken by lowest shard index. Candidates
	// resolving to an excluded genome are skipped in descending-score
	// order; if none remain the whole group is dropped.
	for len(cands) > 0 {
		bestPos := 0
		for i, c := range cands {
			if c.score > cands[bestPos].score || (c.score == cands[bestPos].score && c.idx < cands[bestPos].idx) {
				bestPos = i
			}
		}
		winner := cands[bestPos]
		contig, ok := winningContig(groups[winner.idx].recs)
		if !ok || m.exclusion == nil || !m.exclusion.Excluded(contig) {
			for _, r := range groups[winner.idx].recs {
				m.queue = append(m.queue, remap(r, m.refMaps[winner.idx]))
			}
			return false, nil
		}
		cands = append(cands[:bestPos], cands[bestPos+1:]...)
	}
	return false, nil // group dropped: every candidate excluded
}
