package seisloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func defPhase(sta string, delta, esaz float64) Phase {
	return Phase{PriSta: sta, Delta: delta, Esaz: esaz, Timedef: true}
}

func TestAzimuthalGap(t *testing.T) {
	cfg := DefaultConfig()
	phases := []Phase{
		defPhase("A", 10., 0.),
		defPhase("B", 20., 90.),
		defPhase("C", 30., 180.),
		defPhase("D", 40., 270.),
	}
	q := GetLocationQuality(cfg, phases)
	assert.InDelta(t, 90., q.FullNetwork.Gap, 1e-9)
	assert.InDelta(t, 180., q.FullNetwork.Sgap, 1e-9)
	assert.InDelta(t, 10., q.FullNetwork.Mindist, 1e-9)
	assert.InDelta(t, 40., q.FullNetwork.Maxdist, 1e-9)
}

func TestSecondaryGapDominates(t *testing.T) {
	cfg := DefaultConfig()
	// azimuths clumped in one quadrant leave a dominating gap
	phases := []Phase{
		defPhase("A", 10., 10.),
		defPhase("B", 20., 20.),
		defPhase("C", 30., 30.),
	}
	q := GetLocationQuality(cfg, phases)
	assert.InDelta(t, 340., q.FullNetwork.Gap, 1e-9)
	assert.InDelta(t, 350., q.FullNetwork.Sgap, 1e-9)
}

func TestStationsWithin10km(t *testing.T) {
	cfg := DefaultConfig()
	phases := []Phase{
		defPhase("NEAR", 0.05, 0.), // ~5.6 km
		defPhase("NEAR", 0.05, 0.), // same station twice counts once
		defPhase("FAR", 1.0, 90.),
	}
	q := GetLocationQuality(cfg, phases)
	assert.Equal(t, 1, q.NumStaWithin10km)
}

func TestGT5Candidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GT5MinDefiningStations = 4
	cfg.GT5MinDefiningPhases = 4
	cfg.GT5MaxSecondaryGap = 200.
	cfg.GT5MaxCoverageMetric = 0.5

	// four local stations well distributed in azimuth
	phases := []Phase{
		defPhase("A", 0.5, 0.),
		defPhase("B", 0.5, 90.),
		defPhase("C", 0.5, 180.),
		defPhase("D", 0.5, 270.),
	}
	q := GetLocationQuality(cfg, phases)
	assert.True(t, q.GT5Candidate)

	// one-sided coverage fails the candidate test
	oneSided := []Phase{
		defPhase("A", 0.5, 0.),
		defPhase("B", 0.5, 10.),
		defPhase("C", 0.5, 20.),
		defPhase("D", 0.5, 30.),
	}
	q = GetLocationQuality(cfg, oneSided)
	assert.False(t, q.GT5Candidate)
}

func TestNonDefiningExcluded(t *testing.T) {
	cfg := DefaultConfig()
	phases := []Phase{
		defPhase("A", 10., 0.),
		{PriSta: "B", Delta: 20., Esaz: 180., Timedef: false},
	}
	q := GetLocationQuality(cfg, phases)
	assert.Equal(t, 1, q.FullNetwork.Ndef)
	assert.Equal(t, 1, q.FullNetwork.Ndefsta)
}
