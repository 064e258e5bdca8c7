package covgenome

import (
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biocov/coverm/internal/estimator"
	"github.com/biocov/coverm/internal/genome"
	"github.com/biocov/coverm/internal/testaln"
)

// TestJoinedContigsPoolIntoOneGenome checks two contigs of one separator
// genome, each with one fully-aligned read and end-exclusion 0, fold into
// a single joined-length genome row.
func TestJoinedContigsPoolIntoOneGenome(t *testing.T) {
	head := testaln.NewHeader(
		testaln.RefSpec{Name: "a~c1", Length: 100},
		testaln.RefSpec{Name: "a~c2", Length: 100},
	)
	refs := head.Refs()
	rec1 := testaln.NewRecord(testaln.RecordSpec{Name: "r1", Ref: refs[0], Pos: 0, Length: 100})
	rec2 := testaln.NewRecord(testaln.RecordSpec{Name: "r2", Ref: refs[1], Pos: 0, Length: 100})
	fake := &testaln.Fake{Head: head, Recs: []*sam.Record{rec1, rec2}}

	cfg := estimator.DefaultConfig()
	cfg.EndExclusion = 0
	stack := estimator.NewStack([]estimator.Kind{estimator.Mean, estimator.CoveredBases, estimator.CoveredFraction, estimator.Length}, cfg)

	idx := genome.NewSeparatorIndex('~')
	var rows []Row
	_, err := Run(fake, idx, stack, func(r Row) { rows = append(rows, r) })
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].Name)
	assert.Equal(t, 200, rows[0].Length)
	assert.InDelta(t, 1.0, rows[0].Values[0], 1e-9) // Mean
	assert.Equal(t, float64(200), rows[0].Values[1]) // CoveredBases
	assert.InDelta(t, 1.0, rows[0].Values[2], 1e-9)  // CoveredFraction
	assert.Equal(t, float64(200), rows[0].Values[3]) // Length
}

func TestMetaBATBypassesGenomeGrouping(t *testing.T) {
	head := testaln.NewHeader(
		testaln.RefSpec{Name: "a~c1", Length: 100},
		testaln.RefSpec{Name: "a~c2", Length: 100},
	)
	refs := head.Refs()
	rec1 := testaln.NewRecord(testaln.RecordSpec{Name: "r1", Ref: refs[0], Pos: 0, Length: 100})
	fake := &testaln.Fake{Head: head, Recs: []*sam.Record{rec1}}

	cfg := estimator.DefaultConfig()
	cfg.EndExclusion = 0
	stack := estimator.NewStack([]estimator.Kind{estimator.MetaBAT}, cfg)

	idx := genome.NewSeparatorIndex('~')
	var rows []Row
	_, err := Run(fake, idx, stack, func(r Row) { rows = append(rows, r) })
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a~c1", rows[0].Name)
	assert.Equal(t, "a~c2", rows[1].Name)
}

func TestNonContiguousGenomeGroupsEmitSeparately(t *testing.T) {
	head := testaln.NewHeader(
		testaln.RefSpec{Name: "a~c1", Length: 100},
		testaln.RefSpec{Name: "b~c1", Length: 100},
		testaln.RefSpec{Name: "a~c2", Length: 100},
	)
	refs := head.Refs()
	recs := []*sam.Record{
		testaln.NewRecord(testaln.RecordSpec{Name: "r1", Ref: refs[0], Pos: 0, Length: 10}),
		testaln.NewRecord(testaln.RecordSpec{Name: "r2", Ref: refs[2], Pos: 0, Length: 10}),
	}
	fake := &testaln.Fake{Head: head, Recs: recs}

	cfg := estimator.DefaultConfig()
	cfg.EndExclusion = 0
	stack := estimator.NewStack([]estimator.Kind{estimator.Count}, cfg)
	idx := genome.NewSeparatorIndex('~')

	var rows []Row
	_, err := Run(fake, idx, stack, func(r Row) { rows = append(rows, r) })
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0].Name)
	assert.Equal(t, "b", rows[1].Name)
	assert.Equal(t, "a", rows[2].Name)
}
