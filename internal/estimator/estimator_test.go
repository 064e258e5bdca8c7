package estimator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMeanAndCoveredFractionWithDefaultEndExclusion checks a 1000bp
// reference, one 100bp read aligned perfectly at position 500, default
// end-exclusion 75.
func TestMeanAndCoveredFractionWithDefaultEndExclusion(t *testing.T) {
	cfg := DefaultConfig()
	mean := New(Mean, cfg)
	covFrac := New(CoveredFraction, cfg)
	count := New(Count, cfg)

	for _, e := range []*Estimator{mean, covFrac, count} {
		e.Reset(1000)
	}
	for _, e := range []*Estimator{mean, covFrac, count} {
		e.ObserveRead()
		e.ObserveSpan(0, 500, 600)
	}

	want := 100.0 / 850.0
	assert.InDelta(t, want, mean.Finalize()[0], 1e-9)
	assert.InDelta(t, want, covFrac.Finalize()[0], 1e-9)
	assert.Equal(t, float64(1), count.Finalize()[0])
}

// TestMinCoveredFractionGateZeroesMean is the same setup with
// min_covered_fraction=0.5: the gate fails and Mean reports 0.
func TestMinCoveredFractionGateZeroesMean(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinCoveredFraction = 0.5
	mean := New(Mean, cfg)
	mean.Reset(1000)
	mean.ObserveRead()
	mean.ObserveSpan(0, 500, 600)
	assert.Equal(t, float64(0), mean.Finalize()[0])
}

// TestTrimmedMeanIdempotence checks that lo=0,hi=1 makes
// TrimmedMean equal Mean.
func TestTrimmedMeanIdempotence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EndExclusion = 0
	cfg.TrimLo, cfg.TrimHi = 0, 1

	mean := New(Mean, cfg)
	trimmed := New(TrimmedMean, cfg)
	for _, e := range []*Estimator{mean, trimmed} {
		e.Reset(100)
		e.ObserveSpan(0, 0, 30)
		e.ObserveSpan(0, 10, 60)
		e.ObserveSpan(0, 50, 100)
	}
	assert.InDelta(t, mean.Finalize()[0], trimmed.Finalize()[0], 1e-9)
}

func TestCoveredBasesNeverExceedsEffectiveLength(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EndExclusion = 10
	e := New(CoveredBases, cfg)
	e.Reset(100)
	e.ObserveSpan(0, 0, 100)
	got := e.Finalize()[0]
	require.LessOrEqual(t, got, float64(80))
}

func TestVarianceRequiresTwoPositions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EndExclusion = 0
	v := New(Variance, cfg)
	v.Reset(1)
	v.ObserveSpan(0, 0, 1)
	assert.Equal(t, float64(0), v.Finalize()[0])
}

func TestMetaBATFallsBackBelowThreeDistinctDepths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EndExclusion = 0
	e := New(MetaBAT, cfg)
	e.Reset(10)
	e.ObserveSpan(0, 0, 10) // uniform depth 1 everywhere: one distinct depth
	e.win.finish()
	length, mean, variance := e.metabat()
	assert.Equal(t, float64(10), length)
	assert.InDelta(t, 1.0, mean, 1e-9)
	assert.Equal(t, float64(0), variance)
}

func TestHistogramRowsExcludeZeroDepth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EndExclusion = 0
	e := New(Histogram, cfg)
	e.Reset(10)
	e.ObserveSpan(0, 0, 3)
	rows := e.FinalizeHistogram()
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Depth)
	assert.Equal(t, int64(3), rows[0].Count)
}

func TestRPKMZeroWithoutTotal(t *testing.T) {
	cfg := DefaultConfig()
	e := New(RPKM, cfg)
	e.Reset(1000)
	e.ObserveRead()
	assert.Equal(t, float64(0), e.Finalize()[0])
}

func TestConfigValidateRejectsIncompatibleGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinCoveredFraction = 0.5
	err := cfg.Validate([]Kind{Length, Count, ReadsPerBase})
	require.Error(t, err)

	err = cfg.Validate([]Kind{Length, Mean})
	require.NoError(t, err)
}
