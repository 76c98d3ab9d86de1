package seisloc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDefaultDepthGrid(t *testing.T) {
	content := `# default depth grid
0.5
10.25 20.25 33.0
10.75 20.25 120.0
GRN
17 15.0
`
	path := filepath.Join(t.TempDir(), "default.depth.grid")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	g, err := ReadDefaultDepthGrid(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, g.Gres)
	require.Len(t, g.Lats, 2)
	assert.Equal(t, 15.0, g.GrnDepth[17])
}

func TestGetDefaultDepthGridPoint(t *testing.T) {
	cfg := DefaultConfig()
	g := &DefaultDepthGrid{
		Gres:     0.5,
		Lats:     []float64{10.25},
		Lons:     []float64{20.25},
		Depths:   []float64{33.},
		GrnDepth: map[int]float64{17: 15.},
	}

	s := NewSolution(0)
	s.Lat, s.Lon, s.Depth = 10.3, 20.4, 50.
	d, isdefdep := GetDefaultDepth(s, g, 0, cfg)
	assert.True(t, isdefdep)
	assert.Equal(t, 33., d)
	assert.Equal(t, FIX_DEPTH_DEFAULT_GRID, s.FixedDepthType)
}

func TestGetDefaultDepthRegionFallback(t *testing.T) {
	cfg := DefaultConfig()
	g := &DefaultDepthGrid{
		Gres:     0.5,
		Lats:     []float64{10.25},
		Lons:     []float64{20.25},
		Depths:   []float64{33.},
		GrnDepth: map[int]float64{17: 15.},
	}
	s := NewSolution(0)
	s.Lat, s.Lon, s.Depth = -40., 100., 50.
	d, isdefdep := GetDefaultDepth(s, g, 17, cfg)
	assert.True(t, isdefdep)
	assert.Equal(t, 15., d)
	assert.Equal(t, FIX_DEPTH_GRN, s.FixedDepthType)
}

func TestGetDefaultDepthMedianFallback(t *testing.T) {
	cfg := DefaultConfig()
	s := NewSolution(0)
	s.Lat, s.Lon, s.Depth = -40., 100., 50.
	// no grid at all: the median reported depth stays, code 6 with the
	// no-default flag cleared
	d, isdefdep := GetDefaultDepth(s, nil, 0, cfg)
	assert.False(t, isdefdep)
	assert.Equal(t, 50., d)
	assert.Equal(t, FIX_DEPTH_MEDIAN, s.FixedDepthType)
}
