package cmd

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/pkg/errors"
	"v.io/x/lib/cmdline"

	"github.com/biocov/coverm/internal/aln"
	"github.com/biocov/coverm/internal/covgenome"
	"github.com/biocov/coverm/internal/estimator"
	"github.com/biocov/coverm/internal/genome"
	"github.com/biocov/coverm/internal/sink"
)

// indexFactory resolves a genome.Index for one sample. Every sample gets its
// own Index, since genome.Index.Resolve is not safe for concurrent use and
// samples run in parallel: separator/table/fasta strategies rebuild the same
// Index per sample; --single-genome names each sample's Index after that
// sample.
type indexFactory func(sampleName string) (*genome.Index, error)

func newIndexFactory(ctx context.Context, g GenomeFlags) (indexFactory, error) {
	if g.SingleGenome {
		return func(sampleName string) (*genome.Index, error) {
			return genome.NewSingleGenomeIndex(sampleName), nil
		}, nil
	}
	if _, err := buildGenomeIndex(ctx, g, ""); err != nil {
		return nil, err
	}
	return func(string) (*genome.Index, error) { return buildGenomeIndex(ctx, g, "") }, nil
}

func newCmdGenome() *cmdline.Command {
	c := &cmdline.Command{
		Name:     "genome",
		Short:    "Compute per-genome coverage statistics",
		ArgsName: "bam...",
	}
	gf := GenomeFlags{}
	ef := EstimatorFlags{EndExclusion: -1}
	ff := FilterFlags{}
	of := OutputFlags{}
	ss := SampleSources{}
	var outputPath string
	var parallelism int

	bindGenomeFlags(c, &gf)
	bindEstimatorFlags(c, &ef)
	bindFilterFlags(c, &ff)
	bindOutputFlags(c, &of, &outputPath, &parallelism)
	bindSampleSourceFlags(c, &ss)

	c.Runner = runnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 && len(ss.ShardSets) == 0 {
			return errors.New("coverm genome: at least one BAM input or --shards set required")
		}
		kinds, err := parseKinds(ef.Methods)
		if err != nil {
			return err
		}
		hasMetabat := len(kinds) == 1 && kinds[0] == estimator.MetaBAT
		if hasMetabat {
			ff = ForMetabat()
		}
		cfg := ef.config()
		if err := cfg.Validate(kinds); err != nil {
			return err
		}

		ctx := vcontext.Background()
		idxFactory, err := newIndexFactory(ctx, gf)
		if err != nil {
			return err
		}

		w, closeW, err := openOutput(ctx, outputPath)
		if err != nil {
			return err
		}
		defer closeW()

		names, gens, err := buildSampleGenerators(ctx, argv, ss, gf)
		if err != nil {
			return err
		}
		snk := sink.New(w, of.layout(), kinds, of.PrintZeros)
		for _, name := range names {
			snk.Register(name)
		}

		var metabatMu sync.Mutex
		metabatRows := make(map[string][]covgenome.Row)

		err = RunPool(ctx, gens, parallelism, func(r aln.Reader) aln.Reader { return ff.Build(r) },
			func(name string, r aln.Reader) (uint64, error) {
				idx, ferr := idxFactory(name)
				if ferr != nil {
					return 0, ferr
				}
				stack := estimator.NewStack(kinds, cfg)
				total, rerr := covgenome.Run(r, idx, stack, func(row covgenome.Row) {
					if hasMetabat {
						metabatMu.Lock()
						metabatRows[name] = append(metabatRows[name], row)
						metabatMu.Unlock()
						return
					}
					if werr := snk.EmitRow(name, row); werr != nil {
						log.Error.Printf("coverm: write row for %v/%v: %v", name, row.Name, werr)
					}
				})
				if rerr != nil {
					return 0, rerr
				}
				snk.SetTotalReadsMapped(name, total)
				return total, nil
			})
		if err != nil {
			return err
		}
		if hasMetabat {
			return sink.WriteMetaBAT(w, names, metabatRows)
		}
		return snk.Finalize()
	})
	return c
}

// openOutput opens outputPath for writing, or returns os.Stdout if empty.
func openOutput(ctx context.Context, outputPath string) (io.Writer, func(), error) {
	if outputPath == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := file.Create(ctx, outputPath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "coverm: create %v", outputPath)
	}
	w := f.Writer(ctx)
	return w, func() { _ = f.Close(ctx) }, nil
}
