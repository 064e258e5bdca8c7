package cmd

import (
	"context"
	"io"
	"runtime"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/pkg/errors"
	"v.io/x/lib/cmdline"

	"github.com/biocov/coverm/internal/mapper"
)

// newCmdMake is the `coverm make` subcommand: invokes an external short- or
// long-read mapper against a reference FASTA and one or more read files via
// the "named BAM reader generator" abstraction, writing the result to a BAM
// file for later reuse by `coverm genome`/`coverm contig`.
func newCmdMake() *cmdline.Command {
	c := &cmdline.Command{
		Name:     "make",
		Short:    "Invoke an external mapper to produce a BAM for later coverage runs",
		ArgsName: "reference read1 [read2]",
	}
	longRead := c.Flags.Bool("long-read", false, "Use the long-read mapper preset instead of short-read")
	bin := c.Flags.String("mapper", "minimap2", "Mapper executable, resolved on PATH")
	preset := c.Flags.String("preset", "", "Mapper preset flag value (e.g. \"sr\" or \"map-ont\"); default chosen from --long-read")
	threads := c.Flags.Int("threads", runtime.NumCPU(), "Mapper thread count")
	discardUnmapped := c.Flags.Bool("discard-unmapped", false, "Strip unmapped reads before writing the output BAM")
	outputPath := c.Flags.String("output", "", "Output BAM path (required)")

	c.Runner = runnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) < 2 || len(argv) > 3 {
			return errors.New("coverm make: expected reference read1 [read2]")
		}
		if *outputPath == "" {
			return errors.New("coverm make: --output is required")
		}
		kind := mapper.ShortRead
		defaultPreset := "sr"
		if *longRead {
			kind = mapper.LongRead
			defaultPreset = "map-ont"
		}
		p := *preset
		if p == "" {
			p = defaultPreset
		}
		cfg := mapper.Config{
			Kind:            kind,
			Bin:             *bin,
			Preset:          p,
			Reference:       argv[0],
			Reads:           argv[1:],
			Threads:         *threads,
			DiscardUnmapped: *discardUnmapped,
		}
		ctx := vcontext.Background()
		return runMake(ctx, cfg, *outputPath)
	})
	return c
}

func runMake(ctx context.Context, cfg mapper.Config, outputPath string) (err error) {
	r, err := mapper.Run(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			// Subprocess exit status / stderr surfaced here; the output BAM
			// already written is left in place rather than retracted.
			err = cerr
		}
	}()

	w, closeW, err := openOutput(ctx, outputPath)
	if err != nil {
		return err
	}
	defer closeW()

	bw, err := bam.NewWriter(w, r.Header(), runtime.NumCPU())
	if err != nil {
		return errors.Wrap(err, "coverm make: open BAM writer")
	}
	for {
		rec, rerr := r.Next()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
		if werr := bw.Write(rec); werr != nil {
			return errors.Wrap(werr, "coverm make: write BAM record")
		}
	}
	return bw.Close()
}
