package filter

import (
	"io"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biocov/coverm/internal/testaln"
)

func drain(t *testing.T, f *Filter) []*sam.Record {
	var out []*sam.Record
	for {
		r, err := f.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func TestSingleThresholdDropsFailingRead(t *testing.T) {
	head := testaln.NewHeader(testaln.RefSpec{Name: "ctg1", Length: 1000})
	ref := head.Refs()[0]
	good := testaln.NewRecord(testaln.RecordSpec{Name: "r1", Ref: ref, Pos: 10, Length: 100})
	bad := testaln.NewRecord(testaln.RecordSpec{Name: "r2", Ref: ref, Pos: 20, Length: 100, EditDistance: 50})

	f := New(&testaln.Fake{Head: head, Recs: []*sam.Record{good, bad}}, FlagFilter{}, Thresholds{MinPercentIdentity: 0.9}, PairThresholds{}, false)
	out := drain(t, f)
	require.Len(t, out, 1)
	assert.Equal(t, "r1", out[0].Name)
}

func TestInverseModeEmitsExactlyWhatForwardDrops(t *testing.T) {
	head := testaln.NewHeader(testaln.RefSpec{Name: "ctg1", Length: 1000})
	ref := head.Refs()[0]
	good := testaln.NewRecord(testaln.RecordSpec{Name: "r1", Ref: ref, Pos: 10, Length: 100})
	bad := testaln.NewRecord(testaln.RecordSpec{Name: "r2", Ref: ref, Pos: 20, Length: 100, EditDistance: 50})
	recs := []*sam.Record{good, bad}

	fwd := New(&testaln.Fake{Head: head, Recs: recs}, FlagFilter{}, Thresholds{MinPercentIdentity: 0.9}, PairThresholds{}, false)
	fwdOut := drain(t, fwd)
	inv := New(&testaln.Fake{Head: head, Recs: recs}, FlagFilter{}, Thresholds{MinPercentIdentity: 0.9}, PairThresholds{}, true)
	invOut := drain(t, inv)

	assert.Equal(t, len(recs), len(fwdOut)+len(invOut))
	fwdNames := map[string]bool{}
	for _, r := range fwdOut {
		fwdNames[r.Name] = true
	}
	for _, r := range invOut {
		assert.False(t, fwdNames[r.Name])
	}
}

// TestPairAlignedLengthThreshold checks that a 150bp pair-aligned-length
// threshold accepts an 80+80 pair and rejects an 80+60 pair.
func TestPairAlignedLengthThreshold(t *testing.T) {
	head := testaln.NewHeader(testaln.RefSpec{Name: "ctg1", Length: 1000})
	ref := head.Refs()[0]
	pairFlags := sam.Paired | sam.ProperPair

	accR1 := testaln.NewRecord(testaln.RecordSpec{Name: "acc", Ref: ref, Pos: 10, Length: 80, Flags: pairFlags | sam.Read1, MateRef: ref, MatePos: 200})
	accR2 := testaln.NewRecord(testaln.RecordSpec{Name: "acc", Ref: ref, Pos: 200, Length: 80, Flags: pairFlags | sam.Read2, MateRef: ref, MatePos: 10})
	rejR1 := testaln.NewRecord(testaln.RecordSpec{Name: "rej", Ref: ref, Pos: 300, Length: 80, Flags: pairFlags | sam.Read1, MateRef: ref, MatePos: 400})
	rejR2 := testaln.NewRecord(testaln.RecordSpec{Name: "rej", Ref: ref, Pos: 400, Length: 60, Flags: pairFlags | sam.Read2, MateRef: ref, MatePos: 300})

	f := New(&testaln.Fake{Head: head, Recs: []*sam.Record{accR1, accR2, rejR1, rejR2}}, FlagFilter{}, Thresholds{}, PairThresholds{MinAlignedLengthPair: 150}, false)
	out := drain(t, f)
	require.Len(t, out, 2)
	for _, r := range out {
		assert.Equal(t, "acc", r.Name)
	}
}

func TestPartialPairDroppedAtReferenceBoundary(t *testing.T) {
	head := testaln.NewHeader(testaln.RefSpec{Name: "ctg1", Length: 1000}, testaln.RefSpec{Name: "ctg2", Length: 1000})
	ref1, ref2 := head.Refs()[0], head.Refs()[1]
	pairFlags := sam.Paired | sam.ProperPair
	lonely := testaln.NewRecord(testaln.RecordSpec{Name: "lonely", Ref: ref1, Pos: 10, Length: 100, Flags: pairFlags | sam.Read1, MateRef: ref1, MatePos: 900})
	other := testaln.NewRecord(testaln.RecordSpec{Name: "other", Ref: ref2, Pos: 5, Length: 100, Flags: pairFlags | sam.Read1, MateRef: ref2, MatePos: 10})
	other2 := testaln.NewRecord(testaln.RecordSpec{Name: "other", Ref: ref2, Pos: 10, Length: 100, Flags: pairFlags | sam.Read2, MateRef: ref2, MatePos: 5})

	f := New(&testaln.Fake{Head: head, Recs: []*sam.Record{lonely, other, other2}}, FlagFilter{}, Thresholds{}, PairThresholds{MinAlignedLengthPair: 1}, false)
	out := drain(t, f)
	require.Len(t, out, 2)
	for _, r := range out {
		assert.Equal(t, "other", r.Name)
	}
}
