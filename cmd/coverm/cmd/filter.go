package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/pkg/errors"
	"v.io/x/lib/cmdline"

	"github.com/biocov/coverm/internal/aln"
)

// newCmdFilter is the standalone reference-sorted filter subcommand:
// reads a BAM and writes the surviving (or, with --invert, the rejected)
// records to stdout or --output, in BAM or SAM-text form depending on the
// output path's extension.
func newCmdFilter() *cmdline.Command {
	c := &cmdline.Command{
		Name:     "filter",
		Short:    "Filter a BAM by per-read/per-pair identity and length thresholds",
		ArgsName: "bam",
	}
	ff := FilterFlags{}
	bindFilterFlags(c, &ff)
	var outputPath string
	var fullHelp bool
	c.Flags.StringVar(&outputPath, "output", "", "Output path (default stdout, SAM text)")
	c.Flags.BoolVar(&ff.Inverse, "invert", false, "Emit the records the filter would otherwise drop")
	// --full-help deliberately keeps a legacy quirk: it exits 1 even on
	// success.
	c.Flags.BoolVar(&fullHelp, "full-help", false, "Print the full flag listing and exit 1 (legacy quirk, preserved)")

	c.Runner = runnerFunc(func(env *cmdline.Env, argv []string) error {
		if fullHelp {
			c.Flags.SetOutput(env.Stdout)
			fmt.Fprintf(env.Stdout, "coverm filter: %s\n", c.Short)
			c.Flags.PrintDefaults()
			os.Exit(1)
		}
		if len(argv) != 1 {
			return errors.New("coverm filter: exactly one BAM input required")
		}
		ctx := vcontext.Background()
		r, err := aln.OpenBAM(ctx, argv[0])
		if err != nil {
			return err
		}
		defer r.Close()
		filtered := ff.Build(r)

		w, closeW, err := openOutput(ctx, outputPath)
		if err != nil {
			return err
		}
		defer closeW()

		if strings.HasSuffix(outputPath, ".bam") {
			return writeFilteredBAM(filtered, w)
		}
		return writeFilteredSAM(filtered, w)
	})
	return c
}

func writeFilteredBAM(r aln.Reader, w io.Writer) error {
	bw, err := bam.NewWriter(w, r.Header(), runtime.NumCPU())
	if err != nil {
		return errors.Wrap(err, "coverm filter: open BAM writer")
	}
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := bw.Write(rec); err != nil {
			return errors.Wrap(err, "coverm filter: write BAM record")
		}
	}
	return bw.Close()
}

func writeFilteredSAM(r aln.Reader, w io.Writer) error {
	bw := bufio.NewWriter(w)
	text, err := r.Header().MarshalText()
	if err != nil {
		return errors.Wrap(err, "coverm filter: encode header")
	}
	if _, err := bw.Write(text); err != nil {
		return err
	}
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(bw, rec.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}
