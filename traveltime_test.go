package seisloc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastLag(t *testing.T) {
	cases := map[string]int{
		"P":     1,
		"pP":    1,
		"sP":    1,
		"S":     2,
		"sS":    2,
		"pS":    2,
		"PcP":   1,
		"ScS":   2,
		"SKPdf": 1,
		"PKSdf": 2,
		"Lg":    0,
		"x":     0,
		"":      0,
	}
	for phase, want := range cases {
		assert.Equal(t, want, lastLag(phase), "phase %q", phase)
	}
}

func TestElevationCorrectionScalesLinearly(t *testing.T) {
	cfg := DefaultConfig()
	p := &Phase{Phase: "P", Dtdd: 6.0}

	p.StaElev = 0.
	assert.Equal(t, 0., elevationCorrection(cfg, p))

	p.StaElev = 1000.
	c1 := elevationCorrection(cfg, p)
	p.StaElev = 2000.
	c2 := elevationCorrection(cfg, p)
	require.Greater(t, c1, 0.)
	assert.InDelta(t, 2.*c1, c2, 1e-12)
}

func TestElevationCorrectionFormula(t *testing.T) {
	cfg := DefaultConfig()
	p := &Phase{Phase: "P", Dtdd: 6.0, StaElev: 1000.}
	v := cfg.PSurfVel
	term := v * p.Dtdd / DEG2KM
	want := math.Sqrt(1.-term*term) * p.StaElev / (1000. * v)
	assert.InDelta(t, want, elevationCorrection(cfg, p), 1e-12)

	// S-type last leg picks the S surface velocity
	ps := &Phase{Phase: "S", Dtdd: 10.0, StaElev: 1000.}
	vs := cfg.SSurfVel
	terms := vs * ps.Dtdd / DEG2KM
	wants := math.Sqrt(1.-terms*terms) * ps.StaElev / (1000. * vs)
	assert.InDelta(t, wants, elevationCorrection(cfg, ps), 1e-12)
}

func TestEtopoCorrectionCoefficients(t *testing.T) {
	cfg := DefaultConfig()
	topo := &TopoGrid{
		Nrows:    3,
		Ncols:    3,
		Cellsize: 90.,
		Elev:     [][]int16{{1000, 1000, 1000}, {1000, 1000, 1000}, {1000, 1000, 1000}},
	}
	rayp := 5.0
	bp2 := math.Abs(rayp) * rad2deg / EARTH_RADIUS
	delr := 1.0 // km everywhere

	// pP: coefficient 2 over the P surface velocity
	tcorc, tcorw := etopoCorrection(cfg, 1, rayp, 0., 0., topo)
	termP := cfg.PSurfVel * cfg.PSurfVel * bp2 * bp2
	assert.InDelta(t, 2.*delr*math.Sqrt(1.-termP)/cfg.PSurfVel, tcorc, 1e-9)
	assert.Equal(t, 0., tcorw)

	// sS: coefficient 2 over the S surface velocity
	tcorc, _ = etopoCorrection(cfg, 3, rayp, 0., 0., topo)
	termS := cfg.SSurfVel * cfg.SSurfVel * bp2 * bp2
	assert.InDelta(t, 2.*delr*math.Sqrt(1.-termS)/cfg.SSurfVel, tcorc, 1e-9)

	// sP / pS: the mixed form sums both one-way legs
	tcorc, _ = etopoCorrection(cfg, 2, rayp, 0., 0., topo)
	want := delr * (math.Sqrt(1.-termP)/cfg.PSurfVel + math.Sqrt(1.-termS)/cfg.SSurfVel)
	assert.InDelta(t, want, tcorc, 1e-9)

	// upgoing leg carries no bounce correction
	tcorc, _ = etopoCorrection(cfg, 4, rayp, 0., 0., topo)
	assert.Equal(t, 0., tcorc)
}

func TestEtopoWaterColumnCorrection(t *testing.T) {
	cfg := DefaultConfig()
	// 3 km of water everywhere
	topo := &TopoGrid{
		Nrows:    3,
		Ncols:    3,
		Cellsize: 90.,
		Elev:     [][]int16{{-3000, -3000, -3000}, {-3000, -3000, -3000}, {-3000, -3000, -3000}},
	}
	_, tcorw := etopoCorrection(cfg, 1, 5.0, 0., 0., topo)
	assert.Greater(t, tcorw, 0., "pwP water correction must be positive for deep water")

	bp2 := 5.0 * rad2deg / EARTH_RADIUS
	term := 1.5 * 1.5 * bp2 * bp2
	want := -2. * (-3.) * math.Sqrt(1.-term) / 1.5
	assert.InDelta(t, want, tcorw, 1e-9)
}

func TestAzimDiff(t *testing.T) {
	assert.InDelta(t, 10., azimDiff(20., 10.), 1e-12)
	assert.InDelta(t, -10., azimDiff(10., 20.), 1e-12)
	assert.InDelta(t, 20., azimDiff(10., 350.), 1e-12)
	assert.InDelta(t, -20., azimDiff(350., 10.), 1e-12)
}

func TestPredictionOutsideDomain(t *testing.T) {
	ctx := makeTestContext()
	s := NewSolution(1)
	s.Lat, s.Lon, s.Depth, s.Time = 0., 0., 900., 0.
	p := &Phase{Phase: "P", Delta: 50.}
	err := GetTravelTimePrediction(ctx, s, p, false, false, AllowFallback)
	assert.ErrorIs(t, err, ErrNoPrediction)

	s.Depth = 10.
	p.Delta = 200.
	err = GetTravelTimePrediction(ctx, s, p, false, false, AllowFallback)
	assert.ErrorIs(t, err, ErrNoPrediction)
}

func TestPredictionMatchesModel(t *testing.T) {
	ctx := makeTestContext()
	s := NewSolution(1)
	s.Lat, s.Lon, s.Depth, s.Time = 0., 0., 50., 0.

	slat, slon := PointAtDeltaAzimuth(0., 0., 40., 90.)
	p := &Phase{Phase: "P", StaLat: slat, StaLon: slon, StaElev: 0.}
	p.Delta, p.Esaz, p.Seaz = DistAzimuth(s.Lat, s.Lon, slat, slon)

	require.NoError(t, GetTravelTimePrediction(ctx, s, p, true, false, AllowFallback))
	assert.InDelta(t, analyticTT(40., 50.), p.Ttime, 0.05)
	assert.Greater(t, p.Dtdd, 0.)
	assert.Greater(t, p.Dtdh, 0.)
	assert.Equal(t, "ak135", p.TTModel)
}

func TestFirstArrivingPolicies(t *testing.T) {
	ctx := makeTestContext()
	s := NewSolution(1)
	s.Lat, s.Lon, s.Depth = 0., 0., 10.
	p := &Phase{Phase: "Pz", Delta: 40.} // no table for this name

	err := GetTravelTimePrediction(ctx, s, p, false, false, ForbidFirstArriving)
	assert.ErrorIs(t, err, ErrNoPrediction)

	// fallback goes to the composite first-arriving P table
	err = GetTravelTimePrediction(ctx, s, p, false, false, AllowFallback)
	require.NoError(t, err)
	assert.InDelta(t, analyticTT(40., 10.), p.Ttime, 0.05)

	// the composite path skips the phase's own table and uses the
	// first-arriving table of its last leg
	p2 := &Phase{Phase: "P", Delta: 40.}
	err = GetTravelTimePrediction(ctx, s, p2, false, false, UseFirstArriving)
	require.NoError(t, err)
}

func TestTravelTimeResidualsAllMode(t *testing.T) {
	ctx := makeTestContext()
	trueOT := 1000.
	e := makeClusterEvent(10., 20., 30., trueOT, 8)
	s := NewSolution(len(e.Phases))
	s.Lat, s.Lon, s.Depth, s.Time = 10., 20., 30., trueOT

	GetDeltaAzimuth(s, e.Phases)
	require.NoError(t, TravelTimeResiduals(ctx, s, e.Phases, "all", false, false))
	for i := range e.Phases {
		assert.Less(t, math.Abs(e.Phases[i].Timeres), 0.1,
			"residual at the true hypocentre should vanish")
	}
}
