package sink

import (
	"bufio"
	"fmt"
	"io"

	"github.com/biocov/coverm/internal/covcontig"
	"github.com/biocov/coverm/internal/estimator"
)

// WriteMetaBAT renders jgi_summarize-compatible depth output: one row per
// contig, a run-wide totalAvgDepth column, and a
// (mean, variance) column pair per sample. sampleOrder fixes the column
// order; bySample supplies each sample's MetaBAT-mode rows (one per
// contig, as emitted by covgenome.Run with a MetaBAT estimator in the
// stack). A contig absent from a given sample's rows is rendered with
// zeroed mean/variance for that sample.
func WriteMetaBAT(w io.Writer, sampleOrder []string, bySample map[string][]covcontig.Row) error {
	bw := bufio.NewWriter(w)

	fmt.Fprint(bw, "contigName\tcontigLen\ttotalAvgDepth")
	for _, s := range sampleOrder {
		fmt.Fprintf(bw, "\t%s.bam\t%s.bam-var", s, s)
	}
	fmt.Fprint(bw, "\n")

	index := make(map[string]map[string]covcontig.Row, len(sampleOrder))
	var order []string
	seen := make(map[string]bool)
	for _, s := range sampleOrder {
		m := make(map[string]covcontig.Row, len(bySample[s]))
		for _, r := range bySample[s] {
			m[r.Name] = r
			if !seen[r.Name] {
				seen[r.Name] = true
				order = append(order, r.Name)
			}
		}
		index[s] = m
	}

	for _, name := range order {
		length := 0
		var meanSum float64
		nSamples := 0
		for _, s := range sampleOrder {
			if r, ok := index[s][name]; ok {
				length = r.Length
				if len(r.Values) >= 2 {
					meanSum += r.Values[1]
				}
				nSamples++
			}
		}
		total := 0.0
		if nSamples > 0 {
			total = meanSum / float64(nSamples)
		}
		fmt.Fprintf(bw, "%s\t%d\t%s", name, length, formatValue(estimator.Mean, total))
		for _, s := range sampleOrder {
			mean, variance := 0.0, 0.0
			if r, ok := index[s][name]; ok && len(r.Values) >= 3 {
				mean, variance = r.Values[1], r.Values[2]
			}
			fmt.Fprintf(bw, "\t%s\t%s", formatValue(estimator.Mean, mean), formatValue(estimator.Mean, variance))
		}
		fmt.Fprint(bw, "\n")
	}
	return bw.Flush()
}
