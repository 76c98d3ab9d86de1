package seisloc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// locateDirect is the shared harness for driving LocateEvent against a
// synthetic event: identification, then the inversion for one option.
func locateDirect(t *testing.T, ctx *Context, e *Event, option, unknowns int, depfix bool) *Solution {
	t.Helper()
	SortPhasesFromDatabase(e.Phases)
	rdindx := Readings(e.Phases)

	start := InitialHypocenter(e)
	s := initialSolution(e, &start, len(e.Phases))
	s.NumUnknowns = unknowns
	s.Depfix = depfix

	stalist, err := GetStalist(e.Phases)
	require.NoError(t, err)

	var dm [][]float64
	var staorder []StationOrder
	if ctx.Cfg.DoCorrelatedErrors {
		dm = GetDistanceMatrix(stalist)
		staorder = HierarchicalCluster(dm)
	}

	GetDeltaAzimuth(s, e.Phases)
	IdentifyPhases(ctx, s, rdindx, e.Phases)
	err = LocateEvent(ctx, option, s, rdindx, e.Phases, stalist, dm, staorder, false)
	if err != nil {
		t.Logf("LocateEvent: %v", err)
	}
	return s
}

func TestLocateFixedDepthConverges(t *testing.T) {
	ctx := makeTestContext()
	trueOT := 1000.
	e := makeClusterEvent(35., 139., 10., trueOT, 40)
	// seed with the true depth so the fixed-depth inversion solves the
	// remaining three unknowns
	e.Hypos[0].Depth = 10.

	s := locateDirect(t, ctx, e, OPT_USER_DEPTH, 3, true)
	require.True(t, s.Converged)
	assert.InDelta(t, 35., s.Lat, 0.05)
	assert.InDelta(t, 139., s.Lon, 0.05)
	assert.InDelta(t, trueOT, s.Time, 1.0)
	assert.NotEqual(t, NULLVAL, s.Error[0])
	assert.NotEqual(t, NULLVAL, s.Smajax)
	assert.Greater(t, s.Smajax, 0.)
	assert.GreaterOrEqual(t, s.Strike, 0.)
	assert.LessOrEqual(t, s.Strike, 180.)
}

func TestLocateAirquakeClamped(t *testing.T) {
	ctx := makeTestContext()
	trueOT := 1000.
	e := makeClusterEvent(0., 0., 5., trueOT, 30)
	// seed above the surface
	e.Hypos[0].Depth = -5.

	s := locateDirect(t, ctx, e, OPT_FREE_DEPTH, 4, false)
	assert.GreaterOrEqual(t, s.Depth, 0., "depth must be clamped into the physical range")
	assert.LessOrEqual(t, s.Depth, ctx.Cfg.MaxHypocenterDepth)
	assert.False(t, math.IsNaN(s.Lat))
	assert.False(t, math.IsNaN(s.Lon))
	assert.False(t, math.IsNaN(s.Depth))
}

func TestLocateSingularGeometry(t *testing.T) {
	ctx := makeTestContext()
	trueOT := 1000.
	// all stations on the same great-circle arc due north
	e := &Event{
		EvID:     4,
		PrefOrid: 1,
		Hypos: []Hypocenter{{
			HypID: 1, Agency: "TEST",
			Time: trueOT + 1., Lat: 0.2, Lon: 0.1, Depth: 10.,
		}},
	}
	for i := 0; i < 4; i++ {
		delta := 30. + float64(i)*15.
		slat, slon := PointAtDeltaAzimuth(0., 0., delta, 0.)
		d, _, _ := DistAzimuth(0., 0., slat, slon)
		e.Phases = append(e.Phases, Phase{
			PhaseID: i + 1, RdID: i + 1,
			Sta: staName(i), PriSta: staName(i), Agency: "TEST",
			StaLat: slat, StaLon: slon,
			ReportedPhase: "P", Phase: "P",
			Time:    trueOT + analyticTT(d, 10.),
			Azim:    NULLVAL,
			Slow:    NULLVAL,
			Deltim:  1.0,
			Timedef: true,
		})
	}

	SortPhasesFromDatabase(e.Phases)
	rdindx := Readings(e.Phases)
	start := InitialHypocenter(e)
	s := initialSolution(e, &start, len(e.Phases))
	s.NumUnknowns = 3
	s.Depfix = true
	stalist, err := GetStalist(e.Phases)
	require.NoError(t, err)
	GetDeltaAzimuth(s, e.Phases)
	IdentifyPhases(ctx, s, rdindx, e.Phases)

	err = LocateEvent(ctx, OPT_USER_DEPTH, s, rdindx, e.Phases, stalist, nil, nil, false)
	require.Error(t, err)
	assert.False(t, s.Converged)
	assert.False(t, math.IsNaN(s.Lat))
	assert.False(t, math.IsNaN(s.Lon))
	assert.False(t, math.IsNaN(s.Depth))
}

func TestLocateCorrelatedSqueeze(t *testing.T) {
	ctx := makeTestContext()
	ctx.Cfg.DoCorrelatedErrors = true
	ctx.Cfg.SigmaThreshold = 3.
	trueOT := 1000.
	e := makeClusterEvent(10., 20., 15., trueOT, 20)
	e.Hypos[0].Depth = 15.
	// inject a 20-sigma outlier
	e.Phases[7].Time += 20.

	s := locateDirect(t, ctx, e, OPT_USER_DEPTH, 3, true)
	require.True(t, s.Converged)
	assert.Equal(t, 19, s.Ndef, "the outlier must be demoted to non-defining")

	nOutlier := 0
	for i := range e.Phases {
		if !e.Phases[i].Timedef {
			nOutlier++
		}
	}
	assert.Equal(t, 1, nOutlier)
}

func TestConvergenceTestTermination(t *testing.T) {
	cfg := DefaultConfig()
	sol := make([]float64, 4)
	oldsol := make([]float64, 4)
	step := 1.
	oldcvg := 1.

	// vanishing convergence test value with an unchanged defining set
	nds := [3]int{20, 20, 20}
	modelnorm := [3]float64{0.5, 0.6, 0.7}
	convgtest := [3]float64{CONV_TOL / 10., CONV_TOL / 5., CONV_TOL / 2.}
	isconv, isdiv := convergenceTest(cfg, cfg.MinIterations+1, 3, nds, sol, oldsol,
		0.5, modelnorm, convgtest, &oldcvg, &step)
	assert.True(t, isconv)
	assert.False(t, isdiv)
}

func TestConvergenceTestDivergence(t *testing.T) {
	cfg := DefaultConfig()
	sol := make([]float64, 4)
	oldsol := make([]float64, 4)
	step := 1.
	oldcvg := 0.001

	// monotonically growing model norm past the grace iterations
	nds := [3]int{20, 20, 20}
	modelnorm := [3]float64{900., 700., 600.}
	convgtest := [3]float64{0.5, 0.4, 0.3}
	isconv, isdiv := convergenceTest(cfg, cfg.MinIterations+3, 3, nds, sol, oldsol,
		5., modelnorm, convgtest, &oldcvg, &step)
	assert.False(t, isconv)
	assert.True(t, isdiv)
}

func TestBuildGdTimeRow(t *testing.T) {
	s := NewSolution(1)
	s.Depth = 0.
	phases := []Phase{{
		Timedef: true,
		Esaz:    90.,
		Dtdd:    6.,
		Dtdh:    0.1,
		Timeres: 1.5,
	}}
	g := AllocateFloatMatrix(1, 4)
	d := make([]float64, 1)
	urms := buildGd(s, phases, 1, false, g, d)

	depthcorr := deg2rad * EARTH_RADIUS
	assert.InDelta(t, 1., g[0][0], 1e-12)           // dt/dt
	assert.InDelta(t, -6./depthcorr, g[0][1], 1e-9) // east: sin(90) = 1
	assert.InDelta(t, 0., g[0][2], 1e-9)            // north: cos(90) = 0
	assert.InDelta(t, -0.1, g[0][3], 1e-12)         // up
	assert.InDelta(t, 1.5, d[0], 1e-12)
	assert.InDelta(t, 1.5, urms, 1e-12)
}

func TestWeightGd(t *testing.T) {
	phases := []Phase{
		{Timedef: true, Deltim: 2.},
		{Timedef: true, Deltim: 0.}, // zero prior clips to weight 1
	}
	g := [][]float64{{2., 0., 0., 0.}, {4., 0., 0., 0.}}
	d := []float64{2., 4.}
	dnorm, wrms := weightGd(phases, 2, 1, g, d)
	assert.InDelta(t, 1., g[0][0], 1e-12)
	assert.InDelta(t, 1., d[0], 1e-12)
	assert.InDelta(t, 4., g[1][0], 1e-12)
	assert.InDelta(t, 4., d[1], 1e-12)
	assert.InDelta(t, 17., dnorm, 1e-12)
	assert.InDelta(t, math.Sqrt(17./2.), wrms, 1e-12)
}

func TestUncertaintiesEllipse(t *testing.T) {
	cfg := DefaultConfig()
	s := NewSolution(0)
	// diagonal covariance: the ellipse axes align with x/y
	s.Covar[0][0] = 0.04
	s.Covar[1][1] = 100.
	s.Covar[1][2] = 0.
	s.Covar[2][1] = 0.
	s.Covar[2][2] = 25.
	s.Covar[3][3] = 9.
	Uncertainties(cfg, s)

	assert.Greater(t, s.Error[0], 0.)
	assert.Greater(t, s.Smajax, s.Sminax)
	// larger variance is along x (east): strike 90 degrees
	assert.InDelta(t, 90., s.Strike, 1e-6)
}
