package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biocov/coverm/internal/estimator"
	"github.com/biocov/coverm/internal/sink"
)

func TestParseKinds(t *testing.T) {
	kinds, err := parseKinds("mean,covered_fraction")
	require.NoError(t, err)
	assert.Equal(t, []estimator.Kind{estimator.Mean, estimator.CoveredFraction}, kinds)

	kinds, err = parseKinds("")
	require.NoError(t, err)
	assert.Equal(t, []estimator.Kind{estimator.Mean}, kinds)

	_, err = parseKinds("bogus")
	assert.Error(t, err)

	_, err = parseKinds("metabat,mean")
	assert.Error(t, err, "metabat must be mutually exclusive with every other estimator")
}

func TestGenomeFlagsCount(t *testing.T) {
	assert.Equal(t, 0, GenomeFlags{}.count())
	assert.Equal(t, 1, GenomeFlags{Separator: "~"}.count())
	assert.Equal(t, 2, GenomeFlags{Separator: "~", SingleGenome: true}.count())
}

func TestFilterFlagsIsNoop(t *testing.T) {
	assert.True(t, FilterFlags{}.isNoop())
	assert.False(t, FilterFlags{MinAlignedLength: 50}.isNoop())
	assert.False(t, FilterFlags{Inverse: true}.isNoop())
}

func TestForMetabat(t *testing.T) {
	ff := ForMetabat()
	assert.Equal(t, 0.97001, ff.MinPercentIdentity)
	assert.True(t, ff.IncludeSecondary)
	assert.True(t, ff.IncludeSupplementary)
	assert.False(t, ff.ProperPairsOnly, "metabat includes improper pairs too")
}

func TestOutputFlagsLayout(t *testing.T) {
	assert.Equal(t, sink.Dense, OutputFlags{}.layout())
	assert.Equal(t, sink.Sparse, OutputFlags{Sparse: true}.layout())
}
