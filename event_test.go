package seisloc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEvent(t *testing.T) {
	content := `{
    "evid": 42,
    "preforid": 7,
    "etype": "ke",
    "hypocenters": [
        {"HypID": 7, "Agency": "TEST", "Time": 1000.0, "Lat": 10.0, "Lon": 20.0, "Depth": 15.0}
    ],
    "phases": [
        {"PhaseID": 1, "Sta": "AAA", "StaLat": 12.0, "StaLon": 22.0, "ReportedPhase": "P", "Time": 1060.0, "Deltim": 0.5},
        {"PhaseID": 2, "Sta": "BBB", "StaLat": 8.0, "StaLon": 18.0, "ReportedPhase": "S", "Time": 1100.0}
    ]
}`
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	e, err := ReadEvent(path)
	require.NoError(t, err)
	assert.Equal(t, 42, e.EvID)
	assert.Equal(t, 7, e.PrefOrid)
	require.Len(t, e.Phases, 2)

	// primary station key defaults to the station code
	assert.Equal(t, "AAA", e.Phases[0].PriSta)
	// zero deltim is raised so that weighting never divides by zero
	assert.Equal(t, 1.0, e.Phases[1].Deltim)
	assert.Equal(t, 0.5, e.Phases[0].Deltim)
	// unreported azimuth and slowness become null sentinels
	assert.Equal(t, NULLVAL, e.Phases[0].Azim)
	assert.Equal(t, NULLVAL, e.Phases[0].Slow)
	// reading ids assigned in order when absent
	assert.Equal(t, 1, e.Phases[0].RdID)
	assert.Equal(t, 2, e.Phases[1].RdID)
	assert.True(t, e.Phases[0].Timedef)
}

func TestReadEventRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"evid": 1, "hypocenters": [], "phases": []}`), 0644))
	_, err := ReadEvent(path)
	assert.ErrorIs(t, err, ErrBadEventFile)
}

func TestReadEventMissingFile(t *testing.T) {
	_, err := ReadEvent("/nonexistent/event.json")
	assert.ErrorIs(t, err, ErrCannotOpenFile)
}

func TestReadEventBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))
	_, err := ReadEvent(path)
	assert.ErrorIs(t, err, ErrBadEventFile)
}
