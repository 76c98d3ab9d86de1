package seisloc

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

// DefaultDepthGrid carries the geographic grid of region-dependent default
// depths derived from historical seismicity, plus the per-geographic-region
// fallback depths used where no grid point exists.
type DefaultDepthGrid struct {
	Gres     float64 // grid resolution, degrees
	Lats     []float64
	Lons     []float64
	Depths   []float64
	GrnDepth map[int]float64 // Flinn-Engdahl region number -> depth
}

// ReadDefaultDepthGrid loads the default depth grid: a header with the
// resolution, then "lat lon depth" triplets, then optional "grn depth"
// region fallback pairs introduced by a "GRN" line.
func ReadDefaultDepthGrid(filename string) (*DefaultDepthGrid, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, errors.Join(ErrCannotOpenFile, err)
	}
	defer fp.Close()

	g := &DefaultDepthGrid{GrnDepth: make(map[int]float64)}
	scanner := bufio.NewScanner(fp)
	gothdr := false
	ingrn := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !gothdr {
			if _, err := fmt.Sscan(line, &g.Gres); err != nil {
				return nil, errors.Join(ErrCannotOpenFile, err)
			}
			gothdr = true
			continue
		}
		if strings.HasPrefix(line, "GRN") {
			ingrn = true
			continue
		}
		if ingrn {
			var grn int
			var depth float64
			if _, err := fmt.Sscan(line, &grn, &depth); err != nil {
				return nil, errors.Join(ErrCannotOpenFile, err)
			}
			g.GrnDepth[grn] = depth
			continue
		}
		var lat, lon, depth float64
		if _, err := fmt.Sscan(line, &lat, &lon, &depth); err != nil {
			return nil, errors.Join(ErrCannotOpenFile, err)
		}
		g.Lats = append(g.Lats, lat)
		g.Lons = append(g.Lons, lon)
		g.Depths = append(g.Depths, depth)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Join(ErrCannotOpenFile, err)
	}
	return g, nil
}

// GetDefaultDepth returns the default depth for an epicentre: the grid
// point covering (lat, lon) when one exists, else the geographic-region
// fallback, else Cfg.DefaultDepth when it is positive, else the median
// reported depth the solution currently holds. isdefdep reports whether
// a grid, region or configured value was used; the
// FixedDepthType bookkeeping on the solution mirrors the C original,
// reusing code 6 with IsDefaultDepth disambiguating the median fallback.
func GetDefaultDepth(s *Solution, grid *DefaultDepthGrid, grn int, cfg *Config) (depth float64, isdefdep bool) {
	depth = s.Depth
	if grid != nil {
		best := -1
		half := grid.Gres / 2.
		for i := range grid.Lats {
			if math.Abs(s.Lat-grid.Lats[i]) <= half &&
				math.Abs(lonDiff(s.Lon, grid.Lons[i])) <= half {
				best = i
				break
			}
		}
		if best >= 0 {
			s.FixedDepthType = FIX_DEPTH_DEFAULT_GRID
			return grid.Depths[best], true
		}
		if d, ok := grid.GrnDepth[grn]; ok {
			s.FixedDepthType = FIX_DEPTH_GRN
			return d, true
		}
	}
	if cfg.DefaultDepth > 0. {
		s.FixedDepthType = FIX_DEPTH_DEFAULT_GRID
		return cfg.DefaultDepth, true
	}
	// no default depth grid point exists; keep the median reported depth
	s.FixedDepthType = FIX_DEPTH_MEDIAN
	return depth, false
}

func lonDiff(a, b float64) float64 {
	d := a - b
	for d > 180. {
		d -= 360.
	}
	for d < -180. {
		d += 360.
	}
	return d
}
