package genome

import (
	"bufio"
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// LoadFastaGenomes derives a contig->genome table from a set of genome
// FASTA files, one genome per file: the genome name is the file's stem
// (basename minus extension) and every sequence id in the file is one of
// its contigs. A sequence id repeated across files is fatal.
func LoadFastaGenomes(ctx context.Context, paths []string) ([]TableEntry, error) {
	var entries []TableEntry
	seen := make(map[string]string) // contig -> genome it was first seen in
	for _, p := range paths {
		genome := stem(p)
		ids, err := fastaSeqIDs(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if g, ok := seen[id]; ok {
				return nil, errors.Errorf("genome: sequence id %q appears in both %q and %q", id, g, genome)
			}
			seen[id] = genome
			entries = append(entries, TableEntry{Genome: genome, Contig: id})
		}
	}
	return entries, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

func fastaSeqIDs(ctx context.Context, path string) ([]string, error) {
	r, err := openMaybeGzip(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var ids []string
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] != '>' {
			continue
		}
		id := strings.TrimPrefix(line, ">")
		if i := strings.IndexAny(id, " \t"); i >= 0 {
			id = id[:i]
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "genome: read FASTA %v", path)
	}
	return ids, nil
}
