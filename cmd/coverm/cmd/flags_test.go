package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardSetValue(t *testing.T) {
	var sets [][]string
	v := shardSetValue{&sets}
	require.NoError(t, v.Set("a.bam,b.bam"))
	require.NoError(t, v.Set("c.bam,d.bam,e.bam"))
	assert.Equal(t, [][]string{{"a.bam", "b.bam"}, {"c.bam", "d.bam", "e.bam"}}, sets)
	assert.Error(t, v.Set("only-one.bam"))
}

func TestStringSliceValue(t *testing.T) {
	var s []string
	v := stringSliceValue{&s}
	require.NoError(t, v.Set("genomeA.fa"))
	require.NoError(t, v.Set("genomeB.fa"))
	assert.Equal(t, "genomeA.fa,genomeB.fa", v.String())
}
