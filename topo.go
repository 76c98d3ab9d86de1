package seisloc

import (
	"bufio"
	"encoding/binary"
	"errors"
	"math"
	"os"
)

// TopoGrid is the ETOPO style global elevation grid: a regular (lat, lon)
// raster of int16 metres, positive above sea level, stored little-endian
// row-major from the north-west corner.
type TopoGrid struct {
	Nrows    int
	Ncols    int
	Cellsize float64 // degrees
	Elev     [][]int16
}

// ReadTopoGrid reads the little-endian int16 binary elevation grid. The
// raster dimensions are declared by the host; the file must carry exactly
// nrows*ncols samples.
func ReadTopoGrid(filename string, nrows, ncols int, cellsize float64) (*TopoGrid, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, errors.Join(ErrCannotOpenFile, err)
	}
	defer fp.Close()

	grid := &TopoGrid{
		Nrows:    nrows,
		Ncols:    ncols,
		Cellsize: cellsize,
		Elev:     AllocateShortMatrix(nrows, ncols),
	}
	if grid.Elev == nil {
		return nil, ErrCannotAllocate
	}

	reader := bufio.NewReaderSize(fp, 1<<20)
	for i := 0; i < nrows; i++ {
		if err := binary.Read(reader, binary.LittleEndian, grid.Elev[i]); err != nil {
			return nil, errors.Join(ErrCannotOpenFile, err)
		}
	}
	return grid, nil
}

// Elevation returns the topography/bathymetry at (lat, lon) in km,
// positive above sea level, by bilinear interpolation between the four
// surrounding grid nodes.
func (g *TopoGrid) Elevation(lat, lon float64) float64 {
	// grid registration: row 0 is the northern edge
	col := (lon + 180.) / g.Cellsize
	row := (90. - lat) / g.Cellsize

	i := int(math.Floor(row))
	j := int(math.Floor(col))
	if i < 0 {
		i = 0
	}
	if j < 0 {
		j = 0
	}
	if i > g.Nrows-2 {
		i = g.Nrows - 2
	}
	if j > g.Ncols-2 {
		j = g.Ncols - 2
	}

	tx := row - float64(i)
	ty := col - float64(j)

	top := (1.-ty)*float64(g.Elev[i][j]) + ty*float64(g.Elev[i][j+1])
	bot := (1.-ty)*float64(g.Elev[i+1][j]) + ty*float64(g.Elev[i+1][j+1])
	elev := (1.-tx)*top + tx*bot

	return elev / 1000.
}
