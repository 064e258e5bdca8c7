package sink

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biocov/coverm/internal/covcontig"
	"github.com/biocov/coverm/internal/estimator"
)

func TestDenseSuppressesAllZeroRowsByDefault(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, Dense, []estimator.Kind{estimator.Mean, estimator.Length}, false)
	s.Register("sampleA")
	require.NoError(t, s.EmitRow("sampleA", covcontig.Row{Name: "ctg1", Length: 100, Values: []float64{0, 100}}))
	require.NoError(t, s.EmitRow("sampleA", covcontig.Row{Name: "ctg2", Length: 100, Values: []float64{2.5, 100}}))
	require.NoError(t, s.Finalize())

	out := buf.String()
	assert.Contains(t, out, "Sample\tEntry\tMean\tLength\n")
	assert.NotContains(t, out, "ctg1")
	assert.Contains(t, out, "sampleA\tctg2\t2.5\t100\n")
}

func TestDensePrintZerosKeepsAllRows(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, Dense, []estimator.Kind{estimator.Mean}, true)
	s.Register("sampleA")
	require.NoError(t, s.EmitRow("sampleA", covcontig.Row{Name: "ctg1", Values: []float64{0}}))
	require.NoError(t, s.Finalize())
	assert.Contains(t, buf.String(), "sampleA\tctg1\t0\n")
}

// TestRelativeAbundanceNormalisesToHundred checks that relative-abundance
// normalises a sample's non-zero entries to sum to 100, leaving
// gated-to-zero entries at 0.
func TestRelativeAbundanceNormalisesToHundred(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, Dense, []estimator.Kind{estimator.RelativeAbundance}, true)
	s.Register("sample1")
	s.Register("sample2")
	require.NoError(t, s.EmitRow("sample1", covcontig.Row{Name: "genomeA", Reads: 4, Length: 1, Values: []float64{4}}))
	require.NoError(t, s.EmitRow("sample1", covcontig.Row{Name: "genomeB", Reads: 0, Length: 1, Values: []float64{0}}))
	require.NoError(t, s.EmitRow("sample2", covcontig.Row{Name: "genomeA", Reads: 6, Length: 1, Values: []float64{6}}))
	require.NoError(t, s.EmitRow("sample2", covcontig.Row{Name: "genomeB", Reads: 0, Length: 1, Values: []float64{0}}))
	require.NoError(t, s.Finalize())

	out := buf.String()
	assert.Contains(t, out, "sample1\tgenomeA\t100\n")
	assert.Contains(t, out, "sample1\tgenomeB\t0\n")
	assert.Contains(t, out, "sample2\tgenomeA\t100\n")
	assert.Contains(t, out, "sample2\tgenomeB\t0\n")
}

func TestRPKMRecomputedAtFinalizeFromSampleTotal(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, Sparse, []estimator.Kind{estimator.RPKM}, true)
	s.Register("sampleA")
	require.NoError(t, s.EmitRow("sampleA", covcontig.Row{Name: "ctg1", Length: 1000, Reads: 10, Values: []float64{0}}))
	s.SetTotalReadsMapped("sampleA", 1_000_000)
	require.NoError(t, s.Finalize())

	want := 1e9 * 10.0 / (1000.0 * 1_000_000.0)
	assert.Contains(t, buf.String(), formatValue(estimator.RPKM, want))
}

func TestSparseStreamingWritesImmediatelyWithoutBuffering(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, Sparse, []estimator.Kind{estimator.Count}, true)
	require.False(t, s.buffered)
	require.NoError(t, s.EmitRow("sampleA", covcontig.Row{Name: "ctg1", Values: []float64{3}}))
	assert.Contains(t, buf.String(), "sampleA\tctg1\tRead Count\t3\n")
	require.NoError(t, s.Finalize())
}

func TestHistogramForcesBufferingAndWritesSeparateSection(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, Sparse, []estimator.Kind{estimator.Histogram}, true)
	require.True(t, s.buffered)
	s.Register("sampleA")
	require.NoError(t, s.EmitRow("sampleA", covcontig.Row{
		Name:      "ctg1",
		Histogram: []estimator.HistogramRow{{Depth: 1, Count: 5}, {Depth: 2, Count: 3}},
	}))
	require.NoError(t, s.Finalize())
	out := buf.String()
	assert.Contains(t, out, "Sample\tEntry\tDepth\tCount\n")
	assert.Contains(t, out, "sampleA\tctg1\t1\t5\n")
	assert.Contains(t, out, "sampleA\tctg1\t2\t3\n")
}

func TestWriteMetaBAT(t *testing.T) {
	var buf bytes.Buffer
	bySample := map[string][]covcontig.Row{
		"sampleA": {{Name: "ctg1", Length: 100, Values: []float64{100, 2.0, 0.5}}},
		"sampleB": {{Name: "ctg1", Length: 100, Values: []float64{100, 4.0, 1.5}}},
	}
	require.NoError(t, WriteMetaBAT(&buf, []string{"sampleA", "sampleB"}, bySample))
	out := buf.String()
	assert.Contains(t, out, "contigName\tcontigLen\ttotalAvgDepth\tsampleA.bam\tsampleA.bam-var\tsampleB.bam\tsampleB.bam-var\n")
	assert.Contains(t, out, "ctg1\t100\t3\t2\t0.5\t4\t1.5\n")
}
