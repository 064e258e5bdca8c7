package cmd

import (
	"sync"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/pkg/errors"
	"v.io/x/lib/cmdline"

	"github.com/biocov/coverm/internal/aln"
	"github.com/biocov/coverm/internal/covcontig"
	"github.com/biocov/coverm/internal/estimator"
	"github.com/biocov/coverm/internal/sink"
)

// newCmdContig mirrors newCmdGenome but drives covcontig.Run instead of
// covgenome.Run: one row per contig, no genome grouping, so it takes no
// genome-mapping flags.
func newCmdContig() *cmdline.Command {
	c := &cmdline.Command{
		Name:     "contig",
		Short:    "Compute per-contig coverage statistics",
		ArgsName: "bam...",
	}
	ef := EstimatorFlags{EndExclusion: -1}
	ff := FilterFlags{}
	of := OutputFlags{}
	ss := SampleSources{}
	gf := GenomeFlags{} // only consulted for --shards' --exclude-genomes resolution
	var outputPath string
	var parallelism int

	bindEstimatorFlags(c, &ef)
	bindFilterFlags(c, &ff)
	bindOutputFlags(c, &of, &outputPath, &parallelism)
	bindSampleSourceFlags(c, &ss)
	c.Flags.StringVar(&gf.Separator, "separator", "", "Genome/contig name separator, consulted only to resolve --exclude-genomes for --shards merging")

	c.Runner = runnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 && len(ss.ShardSets) == 0 {
			return errors.New("coverm contig: at least one BAM input or --shards set required")
		}
		kinds, err := parseKinds(ef.Methods)
		if err != nil {
			return err
		}
		if len(kinds) == 1 && kinds[0] == estimator.MetaBAT {
			ff = ForMetabat()
		}
		hasMetabat := len(kinds) == 1 && kinds[0] == estimator.MetaBAT
		cfg := ef.config()
		if err := cfg.Validate(kinds); err != nil {
			return err
		}

		ctx := vcontext.Background()
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
		metabatRows := make(map[string][]covcontig.Row)

		err = RunPool(ctx, gens, parallelism, func(r aln.Reader) aln.Reader { return ff.Build(r) },
			func(name string, r aln.Reader) (uint64, error) {
				stack := estimator.NewStack(kinds, cfg)
				total, rerr := covcontig.Run(r, stack, func(row covcontig.Row) {
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
