package seisloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepthPhaseStack(t *testing.T) {
	ctx := makeTestContext()
	ctx.Cfg.MinDepthPhases = 2
	trueDepth := 150.

	var phases []Phase
	for i := 0; i < 3; i++ {
		delta := 40. + float64(i)*10.
		tp := analyticTT(delta, trueDepth)
		phases = append(phases,
			Phase{
				RdID: i + 1, PriSta: staName(i), Agency: "TEST",
				Phase: "P", Delta: delta,
				Time: 1000. + tp, Timedef: true, FirstP: true,
			},
			Phase{
				RdID: i + 1, PriSta: staName(i), Agency: "TEST",
				Phase: "pP", Delta: delta,
				Time:          1000. + tp + trueDepth/(testVel/2.),
				Timedef:       true,
				HasDepthPhase: true,
			})
	}
	rdindx := Readings(phases)
	s := NewSolution(len(phases))
	s.Depth = 140.

	DepthPhaseStack(ctx, s, rdindx, phases)
	require.NotEqual(t, NULLVAL, s.Depdp)
	assert.InDelta(t, trueDepth, s.Depdp, 2.)
	assert.Equal(t, 3, s.Ndp)
	assert.NotEqual(t, NULLVAL, s.DepdpError)
	assert.Less(t, s.DepdpError, 5.)
}

func TestDepthPhaseStackTooFewEstimates(t *testing.T) {
	ctx := makeTestContext()
	ctx.Cfg.MinDepthPhases = 5
	phases := []Phase{
		{RdID: 1, PriSta: "AAA", Phase: "P", Delta: 40., Time: 1000., Timedef: true, FirstP: true},
		{RdID: 1, PriSta: "AAA", Phase: "pP", Delta: 40., Time: 1030., Timedef: true, HasDepthPhase: true},
	}
	rdindx := Readings(phases)
	s := NewSolution(len(phases))
	DepthPhaseStack(ctx, s, rdindx, phases)
	assert.Equal(t, NULLVAL, s.Depdp)
	assert.Equal(t, 0, s.Ndp)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 3., median([]float64{1., 3., 5.}))
	assert.Equal(t, 2.5, median([]float64{1., 2., 3., 4.}))
	assert.Equal(t, NULLVAL, median(nil))
}
