package seisloc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadVariogram(t *testing.T) {
	content := `# generic variogram
# n sill maxsep nugget
4 3.5 300.0 0.2
0.0    0.2
100.0  1.5
200.0  2.8
300.0  3.5
`
	path := filepath.Join(t.TempDir(), "variogram.model")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	v, err := ReadVariogram(path)
	require.NoError(t, err)
	assert.Equal(t, 4, v.N)
	assert.Equal(t, 3.5, v.Sill)
	assert.Equal(t, 300.0, v.MaxSep)
	assert.Equal(t, 0.2, v.Nugget)
}

func TestVariogramValue(t *testing.T) {
	v := &Variogram{
		N:      3,
		MaxSep: 200.,
		Sill:   3.,
		Dist:   []float64{0., 100., 200.},
		Gamma:  []float64{0., 2., 3.},
	}
	assert.InDelta(t, 0., v.Value(0.), 1e-12)
	assert.InDelta(t, 1., v.Value(50.), 1e-12)
	// beyond max separation gamma saturates at the sill
	assert.InDelta(t, 3., v.Value(500.), 1e-12)
	// covariance is the complement
	assert.InDelta(t, 2., v.Covariance(50.), 1e-12)
	assert.InDelta(t, 0., v.Covariance(1000.), 1e-12)
}

func TestReadVariogramMissingFile(t *testing.T) {
	_, err := ReadVariogram("/nonexistent/variogram.model")
	assert.ErrorIs(t, err, ErrCannotOpenFile)
}
