// Package sink implements the coverage printer/sink: shapes estimator
// outputs into dense or sparse tab-separated tables, applying post-hoc
// relative-abundance and RPKM normalisation once a run's entries (and, for
// RPKM, its run-wide read-mapped total) are known.
package sink

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/biocov/coverm/internal/covcontig"
	"github.com/biocov/coverm/internal/estimator"
)

// Layout selects the printer's table shape.
type Layout int

const (
	Dense Layout = iota
	Sparse
)

type sampleData struct {
	sample string
	total  uint64
	rows   []covcontig.Row
}

// Sink accumulates rows from one or more named alignment streams and
// renders them per Layout once Finalize is called. kinds must not include
// MetaBAT; that mode bypasses the sink entirely (see WriteMetaBAT).
type Sink struct {
	w          io.Writer
	layout     Layout
	kinds      []estimator.Kind
	headers    []string
	headerKind []estimator.Kind // parallel to headers/row.Values, excluding Histogram
	printZeros bool

	buffered bool
	bw       *bufio.Writer // streaming path only

	samples  []*sampleData
	bySample map[string]*sampleData
	wroteHdr bool

	// mu guards bw (streaming mode's shared writer) and registration of new
	// samples; once Register has run for every sample ahead of the worker
	// pool, EmitRow/SetTotalReadsMapped only ever read bySample, so
	// concurrent callers need no further synchronisation on the map itself.
	mu sync.Mutex
}

func hasKind(kinds []estimator.Kind, want estimator.Kind) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

// New builds a Sink for a stack with the given kinds, in column order.
func New(w io.Writer, layout Layout, kinds []estimator.Kind, printZeros bool) *Sink {
	s := &Sink{w: w, layout: layout, kinds: kinds, printZeros: printZeros, bySample: make(map[string]*sampleData)}
	for _, k := range kinds {
		if k == estimator.Histogram {
			continue
		}
		h := k.Header()
		s.headers = append(s.headers, h...)
		for range h {
			s.headerKind = append(s.headerKind, k)
		}
	}
	// Dense layout, relative-abundance/RPKM normalisation, and the
	// histogram's grouped (depth, count) rows all require every entry in
	// hand before anything is written.
	s.buffered = layout == Dense ||
		hasKind(kinds, estimator.RelativeAbundance) ||
		hasKind(kinds, estimator.RPKM) ||
		hasKind(kinds, estimator.Histogram)
	if !s.buffered {
		s.bw = bufio.NewWriter(w)
	}
	return s
}

// Register pre-allocates sample's slot in the order samples are supplied on
// the command line. Callers running samples through a bounded worker pool
// must Register every sample, in order, before spawning any worker: once
// registration is done, concurrent EmitRow/SetTotalReadsMapped calls only
// ever read bySample (never insert), so per-sample ordering in Finalize's
// dense/sparse output follows input order regardless of which worker
// finishes first.
func (s *Sink) Register(sample string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bySample[sample]; ok {
		return
	}
	sd := &sampleData{sample: sample}
	s.bySample[sample] = sd
	s.samples = append(s.samples, sd)
}

// EmitRow delivers one finalised Row for sample, which must already have
// been Register-ed. In streaming mode (sparse layout, no
// RPKM/relative-abundance/histogram columns) it writes immediately;
// otherwise it buffers for Finalize.
func (s *Sink) EmitRow(sample string, row covcontig.Row) error {
	if s.buffered {
		sd := s.bySample[sample]
		sd.rows = append(sd.rows, row)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeSparseRow(s.bw, sample, row); err != nil {
		return err
	}
	return s.bw.Flush()
}

// SetTotalReadsMapped records sample's run-wide retained-read total, used
// by RPKM finalisation. Only meaningful in buffered mode (RPKM always
// forces buffering).
func (s *Sink) SetTotalReadsMapped(sample string, total uint64) {
	if sd, ok := s.bySample[sample]; ok {
		sd.total = total
	}
}

func (s *Sink) indexOf(k estimator.Kind) int {
	for i, hk := range s.headerKind {
		if hk == k {
			return i
		}
	}
	return -1
}

// Finalize applies RPKM/relative-abundance normalisation (buffered mode
// only) and writes every remaining row, then flushes the writer.
func (s *Sink) Finalize() error {
	if !s.buffered {
		return s.bw.Flush()
	}

	if idx := s.indexOf(estimator.RPKM); idx >= 0 {
		for _, sd := range s.samples {
			for i := range sd.rows {
				row := &sd.rows[i]
				if row.Length == 0 || sd.total == 0 {
					row.Values[idx] = 0
					continue
				}
				row.Values[idx] = 1e9 * float64(row.Reads) / (float64(row.Length) * float64(sd.total))
			}
		}
	}
	if idx := s.indexOf(estimator.RelativeAbundance); idx >= 0 {
		for _, sd := range s.samples {
			var sum float64
			for _, row := range sd.rows {
				if row.Values[idx] > 0 {
					sum += row.Values[idx]
				}
			}
			if sum <= 0 {
				continue
			}
			for i := range sd.rows {
				if sd.rows[i].Values[idx] > 0 {
					sd.rows[i].Values[idx] = sd.rows[i].Values[idx] / sum * 100.0
				}
			}
		}
	}

	bw := bufio.NewWriter(s.w)
	var err error
	switch s.layout {
	case Dense:
		err = s.writeDense(bw)
	case Sparse:
		err = s.writeSparseBuffered(bw)
	}
	if err != nil {
		return err
	}
	if hasKind(s.kinds, estimator.Histogram) {
		s.writeHistogram(bw)
	}
	return bw.Flush()
}

func allZero(vals []float64) bool {
	for _, v := range vals {
		if v != 0 {
			return false
		}
	}
	return true
}

func (s *Sink) writeDense(bw *bufio.Writer) error {
	if _, err := fmt.Fprintf(bw, "Sample\tEntry"); err != nil {
		return err
	}
	for _, h := range s.headers {
		if _, err := fmt.Fprintf(bw, "\t%s", h); err != nil {
			return err
		}
	}
	fmt.Fprint(bw, "\n")
	for _, sd := range s.samples {
		for _, row := range sd.rows {
			if !s.printZeros && allZero(row.Values) {
				continue
			}
			fmt.Fprintf(bw, "%s\t%s", sd.sample, row.Name)
			for i, v := range row.Values {
				fmt.Fprintf(bw, "\t%s", formatValue(s.headerKind[i], v))
			}
			fmt.Fprint(bw, "\n")
		}
	}
	return nil
}

func (s *Sink) writeSparseBuffered(bw *bufio.Writer) error {
	fmt.Fprint(bw, "Sample\tEntry\tEstimator\tValue\n")
	for _, sd := range s.samples {
		for _, row := range sd.rows {
			if !s.printZeros && allZero(row.Values) {
				continue
			}
			for i, v := range row.Values {
				fmt.Fprintf(bw, "%s\t%s\t%s\t%s\n", sd.sample, row.Name, s.headers[i], formatValue(s.headerKind[i], v))
			}
		}
	}
	return nil
}

// writeSparseRow is the streaming-path equivalent of one writeSparseBuffered
// entry, used when no column requires buffering.
func (s *Sink) writeSparseRow(bw *bufio.Writer, sample string, row covcontig.Row) error {
	if !s.wroteHdr {
		if _, err := fmt.Fprint(bw, "Sample\tEntry\tEstimator\tValue\n"); err != nil {
			return err
		}
		s.wroteHdr = true
	}
	if !s.printZeros && allZero(row.Values) {
		return nil
	}
	for i, v := range row.Values {
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\t%s\n", sample, row.Name, s.headers[i], formatValue(s.headerKind[i], v)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) writeHistogram(bw *bufio.Writer) {
	fmt.Fprint(bw, "Sample\tEntry\tDepth\tCount\n")
	for _, sd := range s.samples {
		for _, row := range sd.rows {
			for _, hr := range row.Histogram {
				fmt.Fprintf(bw, "%s\t%s\t%d\t%d\n", sd.sample, row.Name, hr.Depth, hr.Count)
			}
		}
	}
}

// formatValue renders v as an integer without a decimal point for
// count-like columns, otherwise with enough precision to losslessly
// roundtrip a single-precision float.
func formatValue(k estimator.Kind, v float64) string {
	switch k {
	case estimator.Length, estimator.Count, estimator.CoveredBases:
		return strconv.FormatInt(int64(v), 10)
	default:
		return strconv.FormatFloat(float64(float32(v)), 'g', -1, 32)
	}
}
