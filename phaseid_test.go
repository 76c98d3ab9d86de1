package seisloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadings(t *testing.T) {
	phases := []Phase{
		{RdID: 1}, {RdID: 1}, {RdID: 2}, {RdID: 3}, {RdID: 3}, {RdID: 3},
	}
	rdindx := Readings(phases)
	require.Len(t, rdindx, 3)
	assert.Equal(t, Reading{Start: 0, Npha: 2}, rdindx[0])
	assert.Equal(t, Reading{Start: 2, Npha: 1}, rdindx[1])
	assert.Equal(t, Reading{Start: 3, Npha: 3}, rdindx[2])
}

func TestSortPhasesFromDatabase(t *testing.T) {
	phases := []Phase{
		{PriSta: "BBB", RdID: 2, Delta: 50., Time: 30.},
		{PriSta: "AAA", RdID: 1, Delta: 20., Time: 20.},
		{PriSta: "AAA", RdID: 1, Delta: 20., Time: 10.},
		{PriSta: "CCC", RdID: 3, Delta: 10., Time: 5.},
	}
	SortPhasesFromDatabase(phases)
	assert.Equal(t, "CCC", phases[0].PriSta)
	assert.Equal(t, "AAA", phases[1].PriSta)
	assert.Equal(t, 10., phases[1].Time)
	assert.Equal(t, 20., phases[2].Time)
	assert.Equal(t, "BBB", phases[3].PriSta)
}

func TestGetStalist(t *testing.T) {
	phases := []Phase{
		{PriSta: "AAA", StaLat: 1., StaLon: 2.},
		{PriSta: "BBB", StaLat: 3., StaLon: 4.},
		{PriSta: "AAA", StaLat: 1., StaLon: 2.},
	}
	stalist, err := GetStalist(phases)
	require.NoError(t, err)
	assert.Len(t, stalist, 2)
	assert.Equal(t, 0, GetStationIndex(stalist, "AAA"))
	assert.Equal(t, 1, GetStationIndex(stalist, "BBB"))
	assert.Equal(t, -1, GetStationIndex(stalist, "ZZZ"))
}

func TestGetStalistInvalidStation(t *testing.T) {
	phases := []Phase{{PriSta: "AAA", StaLat: NULLVAL, StaLon: 2.}}
	_, err := GetStalist(phases)
	assert.ErrorIs(t, err, ErrInvalidStation)
}

func TestIdentifyPhases(t *testing.T) {
	ctx := makeTestContext()
	trueOT := 500.
	e := makeClusterEvent(0., 0., 25., trueOT, 6)
	// forget the internal labels: identification must restore them from
	// the reported names
	for i := range e.Phases {
		e.Phases[i].Phase = ""
		e.Phases[i].Timedef = false
	}
	s := NewSolution(len(e.Phases))
	s.Lat, s.Lon, s.Depth, s.Time = 0., 0., 25., trueOT

	GetDeltaAzimuth(s, e.Phases)
	rdindx := Readings(e.Phases)
	ndef := IdentifyPhases(ctx, s, rdindx, e.Phases)

	assert.Equal(t, 6, ndef)
	for i := range e.Phases {
		assert.Equal(t, "P", e.Phases[i].Phase)
		assert.True(t, e.Phases[i].Timedef)
		assert.True(t, e.Phases[i].FirstP, "single P per reading is first-arriving")
	}
}

func TestIdentifyPhasesUnknownKeepsReported(t *testing.T) {
	ctx := makeTestContext()
	e := makeClusterEvent(0., 0., 25., 500., 3)
	s := NewSolution(len(e.Phases))
	s.Lat, s.Lon, s.Depth, s.Time = 0., 0., 25., 500.

	// an arrival 500 s off any prediction cannot be identified
	e.Phases[0].ReportedPhase = "P"
	e.Phases[0].Time += 500.
	GetDeltaAzimuth(s, e.Phases)
	rdindx := Readings(e.Phases)
	IdentifyPhases(ctx, s, rdindx, e.Phases)

	assert.Equal(t, "", e.Phases[0].Phase)
	assert.Equal(t, "P", e.Phases[0].ReportedPhase)
	assert.False(t, e.Phases[0].Timedef)
}

func TestDuplicatePhases(t *testing.T) {
	ctx := makeTestContext()
	e := makeClusterEvent(0., 0., 25., 500., 4)
	s := NewSolution(len(e.Phases))
	s.Lat, s.Lon, s.Depth, s.Time = 0., 0., 25., 500.

	// clone the first pick under a different reading but the same station
	// and agency, slightly later
	dup := e.Phases[0]
	dup.RdID = 99
	dup.Time += 0.5
	e.Phases = append(e.Phases, dup)

	GetDeltaAzimuth(s, e.Phases)
	require.NoError(t, TravelTimeResiduals(ctx, s, e.Phases, "use", false, false))
	DuplicatePhases(ctx, s, e.Phases)

	ndup := 0
	for i := range e.Phases {
		if e.Phases[i].Duplicate {
			ndup++
			assert.False(t, e.Phases[i].Timedef)
		}
	}
	assert.Equal(t, 1, ndup)
}

func TestDepthPhaseCheckOrphans(t *testing.T) {
	ctx := makeTestContext()
	ctx.Cfg.MinDepthPhases = 1
	ctx.Cfg.MinDepthPhaseAgencies = 1

	// a reading with only a depth phase: the pP is an orphan
	phases := []Phase{
		{RdID: 1, PriSta: "AAA", Phase: "pP", Time: 100., Timedef: true, Delta: 40.},
	}
	s := NewSolution(1)
	rdindx := Readings(phases)
	has := DepthPhaseCheck(ctx, s, rdindx, phases, true)
	assert.False(t, has)
	assert.False(t, phases[0].Timedef, "orphan depth phase must be made non-defining")
}

func TestDepthPhaseCheckCounts(t *testing.T) {
	ctx := makeTestContext()
	ctx.Cfg.MinDepthPhases = 2
	ctx.Cfg.MinDepthPhaseAgencies = 1

	phases := []Phase{
		{RdID: 1, PriSta: "AAA", Agency: "X", Phase: "P", Time: 100., Timedef: true, Delta: 40.},
		{RdID: 1, PriSta: "AAA", Agency: "X", Phase: "pP", Time: 120., Timedef: true, Delta: 40.},
		{RdID: 2, PriSta: "BBB", Agency: "X", Phase: "P", Time: 110., Timedef: true, Delta: 45.},
		{RdID: 2, PriSta: "BBB", Agency: "X", Phase: "pP", Time: 132., Timedef: true, Delta: 45.},
	}
	s := NewSolution(4)
	rdindx := Readings(phases)
	has := DepthPhaseCheck(ctx, s, rdindx, phases, false)
	assert.True(t, has)
	assert.True(t, phases[1].HasDepthPhase)
	assert.True(t, phases[3].HasDepthPhase)
}

func TestDepthResolutionSPPairs(t *testing.T) {
	ctx := makeTestContext()
	ctx.Cfg.MinSPpairs = 2
	ctx.Cfg.MinLocalStations = 99
	ctx.Cfg.MinCorePhases = 99

	phases := []Phase{
		{RdID: 1, PriSta: "AAA", Phase: "P", Timedef: true, Delta: 1.},
		{RdID: 1, PriSta: "AAA", Phase: "S", Timedef: true, Delta: 1.},
		{RdID: 2, PriSta: "BBB", Phase: "P", Timedef: true, Delta: 2.},
		{RdID: 2, PriSta: "BBB", Phase: "S", Timedef: true, Delta: 2.},
	}
	s := NewSolution(4)
	rdindx := Readings(phases)
	assert.True(t, DepthResolution(ctx, s, rdindx, phases))

	// pairs beyond the S-P distance limit do not count
	for i := range phases {
		phases[i].Delta = 50.
	}
	assert.False(t, DepthResolution(ctx, s, rdindx, phases))
}

func TestRemovePFAKE(t *testing.T) {
	phases := []Phase{
		{Phase: "pP", fake: true, Timedef: true},
		{Phase: "P", fake: false, Timedef: true},
	}
	RemovePFAKE(phases)
	assert.Equal(t, "", phases[0].Phase)
	assert.False(t, phases[0].Timedef)
	assert.Equal(t, "P", phases[1].Phase)
	assert.True(t, phases[1].Timedef)
}
