package cmd

import (
	"v.io/x/lib/cmdline"
)

// Run dispatches coverm's subcommands, matching
// cmd/bio-pamtool/cmd.Run's structure.
func Run() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(&cmdline.Command{
		Name:  "coverm",
		Short: "Per-reference and per-genome coverage statistics from BAM alignments",
		Long: `Command coverm computes per-reference (contig) and per-genome coverage
statistics from short- and long-read sequencing alignments, and can
optionally invoke an external mapper to produce the BAM inputs it
consumes.`,
		Children: []*cmdline.Command{
			newCmdGenome(),
			newCmdContig(),
			newCmdFilter(),
			newCmdMake(),
			newCmdShellCompletion(),
		},
	})
}
