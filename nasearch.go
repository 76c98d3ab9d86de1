package seisloc

import (
	"fmt"
	"math"
	"os"
	"sort"
)

// NASearchSpace is the 4-D search box of the neighbourhood algorithm:
// origin time, longitude, latitude and depth, each with its own scale so
// that Voronoi distances are computed in a normalised hypercube.
type NASearchSpace struct {
	OTLo, OTHi   float64
	LonLo, LonHi float64
	LatLo, LatHi float64
	DepLo, DepHi float64
}

// naSample is one trial hypocentre in normalised coordinates.
type naSample struct {
	x      [4]float64
	misfit float64
}

// SetNASearchSpace builds the search box around the starting hypocentre.
// The epicentre box is NAsearchRadius degrees, the origin-time box
// NAsearchOT seconds, the depth box NAsearchDepth km clipped to the
// physical depth range.
func SetNASearchSpace(ctx *Context, s *Solution) (*NASearchSpace, error) {
	cfg := ctx.Cfg
	if s.Lat == NULLVAL || s.Lon == NULLVAL || s.Time == NULLVAL {
		return nil, ErrNASearchFailed
	}
	depth := s.Depth
	if depth == NULLVAL {
		depth = cfg.DefaultDepth
	}
	sp := &NASearchSpace{
		OTLo:  s.Time - cfg.NAsearchOT,
		OTHi:  s.Time + cfg.NAsearchOT,
		LonLo: s.Lon - cfg.NAsearchRadius,
		LonHi: s.Lon + cfg.NAsearchRadius,
		LatLo: math.Max(-90., s.Lat-cfg.NAsearchRadius),
		LatHi: math.Min(90., s.Lat+cfg.NAsearchRadius),
		DepLo: math.Max(0., depth-cfg.NAsearchDepth),
		DepHi: math.Min(cfg.MaxHypocenterDepth, depth+cfg.NAsearchDepth),
	}
	return sp, nil
}

func (sp *NASearchSpace) denorm(x [4]float64) (ot, lon, lat, dep float64) {
	ot = sp.OTLo + x[0]*(sp.OTHi-sp.OTLo)
	lon = sp.LonLo + x[1]*(sp.LonHi-sp.LonLo)
	lat = sp.LatLo + x[2]*(sp.LatHi-sp.LatLo)
	dep = sp.DepLo + x[3]*(sp.DepHi-sp.DepLo)
	return
}

// NASearch runs the 4-D neighbourhood algorithm of Sambridge (1999):
// an initial uniform sample of the box, then NAiterMax resampling
// iterations that draw NAnextSample new points inside the Voronoi cells
// of the NAcells best-misfit points via a coordinate-wise walk. Phase
// identification is rerun for every trial hypocentre; the correlated
// error projection is deliberately not applied for speed. On success the
// best-fitting hypocentre replaces the solution coordinates.
func NASearch(ctx *Context, s *Solution, phases []Phase, sp *NASearchSpace, dumpfile string) error {
	cfg := ctx.Cfg
	if cfg.NAinitialSample < 1 || cfg.NAcells < 1 {
		return ErrNASearchFailed
	}

	scratch := make([]Phase, len(phases))
	trial := NewSolution(len(phases))

	evaluate := func(x [4]float64) float64 {
		ot, lon, lat, dep := sp.denorm(x)
		trial.Time = ot
		trial.Lon = lon
		trial.Lat = lat
		trial.Depth = dep
		trial.Timfix = false
		copy(scratch, phases)
		GetDeltaAzimuth(trial, scratch)
		rdindx := Readings(scratch)
		IdentifyPhases(ctx, trial, rdindx, scratch)
		if err := TravelTimeResiduals(ctx, trial, scratch, "use", false, false); err != nil {
			return NULLVAL
		}
		return naMisfit(cfg, scratch)
	}

	samples := make([]naSample, 0, cfg.NAinitialSample+cfg.NAiterMax*cfg.NAnextSample)
	for i := 0; i < cfg.NAinitialSample; i++ {
		var x [4]float64
		for j := 0; j < 4; j++ {
			x[j] = ctx.Rng.Float64()
		}
		samples = append(samples, naSample{x: x, misfit: evaluate(x)})
	}

	for it := 0; it < cfg.NAiterMax; it++ {
		sort.SliceStable(samples, func(i, j int) bool { return samples[i].misfit < samples[j].misfit })
		ncells := cfg.NAcells
		if ncells > len(samples) {
			ncells = len(samples)
		}
		for k := 0; k < cfg.NAnextSample; k++ {
			cell := k % ncells
			x := naWalk(ctx, samples, cell)
			samples = append(samples, naSample{x: x, misfit: evaluate(x)})
		}
	}

	sort.SliceStable(samples, func(i, j int) bool { return samples[i].misfit < samples[j].misfit })
	best := samples[0]
	if best.misfit >= NULLVAL {
		return ErrNASearchFailed
	}

	if cfg.WriteNASamples && dumpfile != "" {
		if err := dumpNASamples(dumpfile, sp, samples); err != nil {
			ctx.Diag.Printf(1, "    NASearch: cannot write %s\n", dumpfile)
		}
	}

	s.Time, s.Lon, s.Lat, s.Depth = sp.denorm(best.x)
	ctx.Diag.Printf(1, "    NASearch: best misfit %.4f\n", best.misfit)
	return nil
}

// naWalk draws a uniform point inside the Voronoi cell of samples[cell]
// (over the first len(samples) points) with a coordinate-wise Gibbs walk:
// along each axis the segment interior to the cell is bounded by the
// perpendicular bisectors with every other sample.
func naWalk(ctx *Context, samples []naSample, cell int) [4]float64 {
	vk := samples[cell].x
	x := vk
	for ax := 0; ax < 4; ax++ {
		lo, hi := 0., 1.
		// squared distance to the cell centre excluding this axis
		dk := 0.
		for j := 0; j < 4; j++ {
			if j == ax {
				continue
			}
			d := x[j] - vk[j]
			dk += d * d
		}
		for i := range samples {
			if i == cell {
				continue
			}
			vi := samples[i].x
			di := 0.
			for j := 0; j < 4; j++ {
				if j == ax {
					continue
				}
				d := x[j] - vi[j]
				di += d * d
			}
			denom := vk[ax] - vi[ax]
			if math.Abs(denom) < 1e-12 {
				continue
			}
			// axis intercept of the bisecting hyperplane
			xi := 0.5 * (vk[ax] + vi[ax] + (dk-di)/denom)
			if vi[ax] > vk[ax] {
				if xi < hi {
					hi = xi
				}
			} else {
				if xi > lo {
					lo = xi
				}
			}
		}
		if hi < lo {
			lo, hi = vk[ax], vk[ax]
		}
		x[ax] = lo + ctx.Rng.Float64()*(hi-lo)
	}
	return x
}

// naMisfit is the robust Lp misfit of the time-defining residuals,
// weighted by the prior time measurement errors.
func naMisfit(cfg *Config, phases []Phase) float64 {
	p := cfg.NAlpNorm
	sum := 0.
	wsum := 0.
	n := 0
	for i := range phases {
		ph := &phases[i]
		if !ph.Timedef || ph.Timeres == NULLVAL {
			continue
		}
		w := 1.
		if ph.Deltim > DEPSILON {
			w = 1. / ph.Deltim
		}
		sum += w * math.Pow(math.Abs(ph.Timeres), p)
		wsum += w
		n++
	}
	if n == 0 || wsum < DEPSILON {
		return NULLVAL
	}
	return math.Pow(sum/wsum, 1./p)
}

// dumpNASamples writes the accepted samples to a diagnostics artifact,
// one line per sample: misfit, origin time, longitude, latitude, depth.
func dumpNASamples(filename string, sp *NASearchSpace, samples []naSample) error {
	fp, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer fp.Close()
	for i := range samples {
		ot, lon, lat, dep := sp.denorm(samples[i].x)
		fmt.Fprintf(fp, "%12.4f %14.3f %9.4f %8.4f %6.1f\n",
			samples[i].misfit, ot, lon, lat, dep)
	}
	return nil
}
