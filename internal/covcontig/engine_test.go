package covcontig

import (
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biocov/coverm/internal/estimator"
	"github.com/biocov/coverm/internal/testaln"
)

// TestSingleReadMeanCoverage checks a 1000bp reference with one 100bp
// read produces the expected mean coverage end to end through the engine.
func TestSingleReadMeanCoverage(t *testing.T) {
	head := testaln.NewHeader(testaln.RefSpec{Name: "ctg1", Length: 1000})
	ref := head.Refs()[0]
	rec := testaln.NewRecord(testaln.RecordSpec{Name: "r1", Ref: ref, Pos: 500, Length: 100})
	fake := &testaln.Fake{Head: head, Recs: []*sam.Record{rec}}

	cfg := estimator.DefaultConfig()
	stack := estimator.NewStack([]estimator.Kind{estimator.Mean, estimator.CoveredFraction, estimator.Count}, cfg)

	var rows []Row
	total, err := Run(fake, stack, func(r Row) { rows = append(rows, r) })
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(1), total)
	assert.InDelta(t, 100.0/850.0, rows[0].Values[0], 1e-9)
	assert.InDelta(t, 100.0/850.0, rows[0].Values[1], 1e-9)
	assert.Equal(t, float64(1), rows[0].Values[2])
}

func TestSkippedReferencesStillEmitZeroRow(t *testing.T) {
	head := testaln.NewHeader(
		testaln.RefSpec{Name: "ctg1", Length: 100},
		testaln.RefSpec{Name: "ctg2", Length: 100},
		testaln.RefSpec{Name: "ctg3", Length: 100},
	)
	refs := head.Refs()
	rec1 := testaln.NewRecord(testaln.RecordSpec{Name: "r1", Ref: refs[0], Pos: 0, Length: 10})
	rec3 := testaln.NewRecord(testaln.RecordSpec{Name: "r3", Ref: refs[2], Pos: 0, Length: 10})
	fake := &testaln.Fake{Head: head, Recs: []*sam.Record{rec1, rec3}}

	cfg := estimator.DefaultConfig()
	cfg.EndExclusion = 0
	stack := estimator.NewStack([]estimator.Kind{estimator.Count}, cfg)

	var rows []Row
	_, err := Run(fake, stack, func(r Row) { rows = append(rows, r) })
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ctg1", rows[0].Name)
	assert.Equal(t, float64(1), rows[0].Values[0])
	assert.Equal(t, "ctg2", rows[1].Name)
	assert.Equal(t, float64(0), rows[1].Values[0])
	assert.Equal(t, "ctg3", rows[2].Name)
	assert.Equal(t, float64(1), rows[2].Values[0])
}
