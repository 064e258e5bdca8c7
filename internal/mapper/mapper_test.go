package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigArgsShortRead(t *testing.T) {
	cfg := Config{Kind: ShortRead, Preset: "sr", Threads: 4, Reference: "ref.fa", Reads: []string{"r1.fq", "r2.fq"}}
	args := cfg.args()
	assert.Equal(t, []string{"-a", "-x", "sr", "-t", "4", "ref.fa", "r1.fq", "r2.fq"}, args)
}

func TestConfigArgsLongReadNoPreset(t *testing.T) {
	cfg := Config{Kind: LongRead, Reference: "ref.fa", Reads: []string{"reads.fq"}}
	args := cfg.args()
	assert.Equal(t, []string{"-a", "ref.fa", "reads.fq"}, args)
}

func TestConfigArgsExtraFlagsPassThrough(t *testing.T) {
	cfg := Config{Preset: "map-ont", Extra: []string{"--secondary=no"}, Reference: "ref.fa", Reads: []string{"reads.fq"}}
	args := cfg.args()
	assert.Equal(t, []string{"-a", "-x", "map-ont", "--secondary=no", "ref.fa", "reads.fq"}, args)
}
