// Package mapper implements the "named BAM reader generator" collaborator
// that sits outside the core coverage pipeline: invoking an external short-
// or long-read mapper against a reference FASTA and one or more read
// files, and presenting its output as an aln.Reader.
package mapper

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strconv"

	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"

	"github.com/biocov/coverm/internal/aln"
)

// Kind labels a mapper run as short- or long-read. It does not change the
// mapper's arguments; the mode is set by Config.Preset.
type Kind int

const (
	// ShortRead labels a short-read mapper run.
	ShortRead Kind = iota
	// LongRead labels a long-read mapper run.
	LongRead
)

// Config describes one mapper invocation.
type Config struct {
	Kind      Kind
	Bin       string   // mapper executable, resolved via the system PATH
	Preset    string   // mapper-specific preset flag value, e.g. "sr" or "map-ont"
	Extra     []string // additional mapper flags, passed through verbatim
	Reference string
	Reads     []string // one (single-end) or two (paired-end) read files
	Threads   int

	// DiscardUnmapped strips unmapped records from the stream before the
	// coverage pass, saving disk on the `make` subcommand's output.
	DiscardUnmapped bool
}

func (c Config) args() []string {
	var args []string
	if c.Preset != "" {
		args = append(args, "-a", "-x", c.Preset)
	} else {
		args = append(args, "-a")
	}
	if c.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(c.Threads))
	}
	args = append(args, c.Extra...)
	args = append(args, c.Reference)
	args = append(args, c.Reads...)
	return args
}

// generator is an aln.Generator that runs a mapper subprocess on demand.
type generator struct {
	cfg  Config
	name string
}

// NewGenerator returns an aln.Generator that runs cfg's mapper when opened,
// presenting name as the stream's display name.
func NewGenerator(cfg Config, name string) aln.Generator {
	return &generator{cfg: cfg, name: name}
}

func (g *generator) Open(ctx context.Context) (aln.NamedReader, error) {
	r, err := Run(ctx, g.cfg)
	if err != nil {
		return aln.NamedReader{}, err
	}
	return aln.NamedReader{Name: g.name, Reader: r}, nil
}

// procReader adapts a running mapper subprocess's SAM-text stdout to
// aln.Reader, applying DiscardUnmapped if configured and surfacing the
// subprocess's exit status (with stderr attached) at Close.
type procReader struct {
	cmd             *exec.Cmd
	sr              *sam.Reader
	stderr          *bytes.Buffer
	discardUnmapped bool
}

// Run invokes cfg's mapper and streams its output. The subprocess is only
// waited-on (and its exit status checked) at Close, matching how a BAM
// reader's underlying file is only closed once the caller is done with it.
func Run(ctx context.Context, cfg Config) (aln.Reader, error) {
	if _, err := exec.LookPath(cfg.Bin); err != nil {
		return nil, errors.Wrapf(err, "mapper: %v not found on PATH", cfg.Bin)
	}
	cmd := exec.CommandContext(ctx, cfg.Bin, cfg.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "mapper: stdout pipe")
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "mapper: start %v", cfg.Bin)
	}
	log.Debug.Printf("mapper: running %v", cmd.Args)

	sr, err := sam.NewReader(stdout)
	if err != nil {
		_ = cmd.Wait()
		return nil, errors.Wrapf(err, "mapper: parse %v output header", cfg.Bin)
	}
	return &procReader{cmd: cmd, sr: sr, stderr: &stderr, discardUnmapped: cfg.DiscardUnmapped}, nil
}

func (r *procReader) Header() *sam.Header { return r.sr.Header() }

func (r *procReader) Next() (*sam.Record, error) {
	for {
		rec, err := r.sr.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, errors.Wrap(err, "mapper: read SAM record")
		}
		if r.discardUnmapped && aln.IsUnmapped(rec) {
			continue
		}
		return rec, nil
	}
}

func (r *procReader) Close() error {
	err := r.cmd.Wait()
	if err != nil {
		return errors.Wrapf(err, "mapper: %v exited with error; stderr: %s", r.cmd.Path, r.stderr.Bytes())
	}
	return nil
}
