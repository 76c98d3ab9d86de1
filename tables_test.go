package seisloc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetValueAtNodes(t *testing.T) {
	tbl := makeTestTable("P", false)
	// node values are recovered exactly
	for _, i := range []int{0, 10, 25, 54} {
		for _, j := range []int{0, 5, 14, 27} {
			ttim, dtdd, dtdh, _, _, _ := tbl.GetValue(tbl.Depths[j], tbl.Deltas[i], true, false)
			assert.InDelta(t, tbl.TT[i][j], ttim, 1e-9, "tt at node %d %d", i, j)
			assert.InDelta(t, tbl.Dtdd[i][j], dtdd, 1e-9)
			assert.InDelta(t, tbl.Dtdh[i][j], dtdh, 1e-9)
		}
	}
}

func TestGetValueInterpolated(t *testing.T) {
	tbl := makeTestTable("P", false)
	ttim, dtdd, _, _, _, _ := tbl.GetValue(33.3, 47.7, false, false)
	want := analyticTT(47.7, 33.3)
	assert.InDelta(t, want, ttim, 0.05)
	assert.Greater(t, dtdd, 0.)
}

func TestGetValueOutOfRange(t *testing.T) {
	tbl := makeTestTable("P", false)
	ttim, _, _, _, _, _ := tbl.GetValue(800., 50., false, false)
	assert.Less(t, ttim, 0.)
	ttim, _, _, _, _, _ = tbl.GetValue(50., 150., false, false)
	assert.Less(t, ttim, 0.)
}

func TestGetValueSecondDerivatives(t *testing.T) {
	tbl := makeTestTable("P", false)
	_, _, _, _, d2tdd, d2tdh := tbl.GetValue(100., 45., true, true)
	// the travel-time surface is smooth and convex in delta at depth
	assert.NotEqual(t, 0., d2tdd)
	assert.NotEqual(t, 0., d2tdh)
}

func TestGetValueSkipsMissingNodes(t *testing.T) {
	tbl := makeTestTable("P", false)
	// punch a hole: a negative entry marks "no phase at this node"
	tbl.TT[20][5] = -1.
	ttim, _, _, _, _, _ := tbl.GetValue(tbl.Depths[5]+7., tbl.Deltas[20]+0.7, false, false)
	assert.Greater(t, ttim, 0.)
	want := analyticTT(tbl.Deltas[20]+0.7, tbl.Depths[5]+7.)
	assert.InDelta(t, want, ttim, 0.5)
}

func TestTableSetPhaseIndex(t *testing.T) {
	ts := makeTestTTSet()
	assert.Equal(t, 0, ts.GetPhaseIndex("firstP"))
	assert.Equal(t, 1, ts.GetPhaseIndex("firstS"))
	assert.GreaterOrEqual(t, ts.GetPhaseIndex("P"), 2)
	assert.Equal(t, -1, ts.GetPhaseIndex("ScS"))
	assert.Nil(t, ts.Get("nosuchphase"))
}

func TestDepthPhaseMoveout(t *testing.T) {
	p := makeTestTable("P", false)
	pp := makeTestTable("pP", true)
	tp, _, _, _, _, _ := p.GetValue(100., 40., false, false)
	tpp, _, _, bpdel, _, _ := pp.GetValue(100., 40., false, false)
	// two extra legs at half speed: moveout is h/(v/2)
	assert.InDelta(t, 100./(testVel/2.), tpp-tp, 0.1)
	assert.Greater(t, bpdel, 0.)
	if math.Abs(tpp-tp) < DEPSILON {
		t.Fatal("depth phase indistinguishable from direct arrival")
	}
}
