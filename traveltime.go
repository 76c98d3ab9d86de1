package seisloc

import (
	"math"
	"runtime"
	"strings"

	"github.com/alitto/pond"
)

// FirstArrivingPolicy controls how the composite first-arriving P/S
// tables participate in a prediction.
type FirstArrivingPolicy int

const (
	// UseFirstArriving skips the phase's own table and queries the
	// composite first-arriving P or S table chosen by the last leg of the
	// phase name.
	UseFirstArriving FirstArrivingPolicy = iota
	// AllowFallback follows the normal per-phase path and retries the
	// composite table across local/regional crossover distances.
	AllowFallback
	// ForbidFirstArriving is the phase-identification internal path: the
	// candidate phase name must answer for itself.
	ForbidFirstArriving
)

// GetValue interpolates the table at (depth, delta). Bicubic natural
// spline interpolation over a 4x4 sample window; negative table entries
// mark nodes where the phase does not exist and are dropped from the
// window, requiring at least MIN_SAMPLES valid samples per axis.
// Returns the travel time plus dtdd, dtdh, the bounce point distance for
// depth phases, and the second derivatives when is2nderiv is set.
// A negative travel time means no prediction.
func (t *TTTable) GetValue(depth, delta float64, iszderiv, is2nderiv bool) (ttim, dtdd, dtdh, bpdel, d2tdd, d2tdh float64) {
	ttim = -1.
	ndel := len(t.Deltas)
	ndep := len(t.Depths)
	if ndel == 0 {
		return
	}
	if depth < t.Depths[0] || depth > t.Depths[ndep-1] ||
		delta < t.Deltas[0] || delta > t.Deltas[ndel-1] {
		return
	}

	ilo, ihi, idel, exactdelta := sampleWindow(delta, t.Deltas, DELTA_SAMPLES)
	jlo, jhi, jdep, exactdepth := sampleWindow(depth, t.Depths, DEPTH_SAMPLES)

	if exactdelta && exactdepth && !is2nderiv {
		ttim = t.TT[idel][jdep]
		dtdd = t.Dtdd[idel][jdep]
		if iszderiv {
			dtdh = t.Dtdh[idel][jdep]
		}
		if t.IsBounce {
			bpdel = t.Bpdel[idel][jdep]
		}
		return
	}

	var (
		x, z     [DELTA_SAMPLES]float64
		tx, tz   [DELTA_SAMPLES]float64
		dx, dz   [DELTA_SAMPLES]float64
		hx, hz   [DELTA_SAMPLES]float64
		px, pz   [DELTA_SAMPLES]float64
		d2y, tmp [DELTA_SAMPLES]float64
	)

	// spline in delta at each depth node, collecting depth profiles
	k := 0
	for j := jlo; j < jhi; j++ {
		if exactdelta && !is2nderiv {
			if t.TT[idel][j] < 0 {
				continue
			}
			z[k] = t.Depths[j]
			tz[k] = t.TT[idel][j]
			dz[k] = t.Dtdd[idel][j]
			if t.IsBounce {
				pz[k] = t.Bpdel[idel][j]
			}
			if iszderiv {
				hz[k] = t.Dtdh[idel][j]
			}
			k++
			continue
		}
		m := 0
		for i := ilo; i < ihi; i++ {
			if t.TT[i][j] < 0 {
				continue
			}
			x[m] = t.Deltas[i]
			tx[m] = t.TT[i][j]
			dx[m] = t.Dtdd[i][j]
			if t.IsBounce {
				px[m] = t.Bpdel[i][j]
			}
			if iszderiv {
				hx[m] = t.Dtdh[i][j]
			}
			m++
		}
		if m < MIN_SAMPLES {
			continue
		}
		z[k] = t.Depths[j]
		SplineCoeffs(x[:m], tx[:m], d2y[:m], tmp[:m])
		tz[k], _, _ = SplineInterpolation(delta, x[:m], tx[:m], d2y[:m], false)
		if t.IsBounce {
			SplineCoeffs(x[:m], px[:m], d2y[:m], tmp[:m])
			pz[k], _, _ = SplineInterpolation(delta, x[:m], px[:m], d2y[:m], false)
		}
		SplineCoeffs(x[:m], dx[:m], d2y[:m], tmp[:m])
		dz[k], _, _ = SplineInterpolation(delta, x[:m], dx[:m], d2y[:m], false)
		if iszderiv {
			SplineCoeffs(x[:m], hx[:m], d2y[:m], tmp[:m])
			hz[k], _, _ = SplineInterpolation(delta, x[:m], hx[:m], d2y[:m], false)
		}
		k++
	}
	if k < MIN_SAMPLES {
		return
	}

	// spline in depth
	SplineCoeffs(z[:k], tz[:k], d2y[:k], tmp[:k])
	var d2ydx float64
	ttim, _, d2ydx = SplineInterpolation(depth, z[:k], tz[:k], d2y[:k], true)
	if is2nderiv && d2ydx > -999. {
		d2tdh = d2ydx
	}
	if t.IsBounce {
		SplineCoeffs(z[:k], pz[:k], d2y[:k], tmp[:k])
		bpdel, _, _ = SplineInterpolation(depth, z[:k], pz[:k], d2y[:k], false)
	}
	SplineCoeffs(z[:k], dz[:k], d2y[:k], tmp[:k])
	dtdd, _, _ = SplineInterpolation(depth, z[:k], dz[:k], d2y[:k], false)
	if iszderiv {
		SplineCoeffs(z[:k], hz[:k], d2y[:k], tmp[:k])
		dtdh, _, _ = SplineInterpolation(depth, z[:k], hz[:k], d2y[:k], false)
	}

	if is2nderiv {
		// d2t/dd2 from the transposed slowness matrix
		k = 0
		for i := ilo; i < ihi; i++ {
			m := 0
			for j := jlo; j < jhi; j++ {
				if t.TT[i][j] < 0 {
					continue
				}
				z[m] = t.Depths[j]
				dz[m] = t.Dtdd[i][j]
				m++
			}
			if m < MIN_SAMPLES {
				continue
			}
			x[k] = t.Deltas[i]
			SplineCoeffs(z[:m], dz[:m], d2y[:m], tmp[:m])
			dx[k], _, _ = SplineInterpolation(depth, z[:m], dz[:m], d2y[:m], false)
			k++
		}
		if k < MIN_SAMPLES {
			return
		}
		SplineCoeffs(x[:k], dx[:k], d2y[:k], tmp[:k])
		var dydx float64
		_, dydx, _ = SplineInterpolation(delta, x[:k], dx[:k], d2y[:k], true)
		if dydx > -999. {
			d2tdd = dydx
		}
	}
	return
}

// sampleWindow finds the sample window [lo, hi) of width at most nsamp
// around x in the node array, reporting the exact node index when x
// coincides with a node.
func sampleWindow(xv float64, xs []float64, nsamp int) (lo, hi, idx int, exact bool) {
	n := len(xs)
	ilo, ihi := FloatBracket(xv, xs)
	switch {
	case math.Abs(xv-xs[ilo]) < DEPSILON:
		idx = ilo
		exact = true
	case math.Abs(xv-xs[ihi]) < DEPSILON:
		idx = ihi
		exact = true
	}
	if n <= nsamp {
		return 0, n, idx, exact
	}
	if exact {
		lo = idx - 1
	} else {
		idx = ilo
		lo = idx - nsamp/2 + 1
	}
	hi = lo + nsamp
	if lo < 0 {
		lo = 0
		hi = nsamp
	}
	if hi > n {
		hi = n
		lo = hi - nsamp
	}
	return lo, hi, idx, exact
}

// GetTravelTimePrediction predicts the travel time for an observation
// against the trial solution, filling the prediction slots of the phase:
// ttime, dtdd, dtdh, the second derivatives, the bounce point distance
// and the travel-time model tag. Selection priority: local tables inside
// the local radius, then regional tomography for qualifying crustal
// phases, then the global tables with a composite first-arriving fallback
// across crossover distances. Ellipticity, elevation and bounce-point
// corrections are applied to table predictions; tomography predictions
// come internally corrected.
func GetTravelTimePrediction(ctx *Context, s *Solution, p *Phase, iszderiv, is2nderiv bool, policy FirstArrivingPolicy) error {
	cfg := ctx.Cfg

	if s.Depth < 0. || s.Depth > cfg.MaxHypocenterDepth {
		return ErrNoPrediction
	}
	if p.Delta < 0. || p.Delta > 180. {
		return ErrNoPrediction
	}

	phase := p.Phase
	if phase == "" {
		return ErrNoPrediction
	}

	p.Ttime = -1.
	p.Dtdd = 0.
	p.Dtdh = 0.
	p.D2tdd = 0.
	p.D2tdh = 0.
	p.Bpdel = 0.

	// local velocity model inside the local radius
	if cfg.UseLocalTT && ctx.Aux.LocalTT != nil && p.Delta <= cfg.MaxLocalTTDelta {
		if ok := tableLookup(ctx.Aux.LocalTT, phase, s, p, iszderiv, is2nderiv, policy); ok {
			p.TTModel = "local"
			applyCorrections(ctx, s, p)
			return nil
		}
		return ErrNoPrediction
	}

	// regional tomography for qualifying crustal phases
	if isTomography(ctx, p, s.Depth) {
		ttime, dtdd, dtdh, _, _, err := ctx.Aux.RSTT.Predict(
			phase, s.Lat, s.Lon, s.Depth, p.StaLat, p.StaLon, p.StaElev)
		if err == nil {
			p.Ttime = ttime
			p.Dtdd = dtdd
			p.Dtdh = dtdh
			p.TTModel = "rstt"
			// tomography predictions arrive path corrected
			return nil
		}
		// fall through to the global tables
	}

	if ok := tableLookup(ctx.Aux.TT, phase, s, p, iszderiv, is2nderiv, policy); !ok {
		return ErrNoPrediction
	}
	p.TTModel = "ak135"
	applyCorrections(ctx, s, p)
	return nil
}

// tableLookup queries a table set for a phase, honouring the composite
// first-arriving policy. Returns false when no prediction is possible.
func tableLookup(ts *TTTableSet, phase string, s *Solution, p *Phase, iszderiv, is2nderiv bool, policy FirstArrivingPolicy) bool {
	if policy == UseFirstArriving {
		return compositeLookup(ts, phase, s, p, iszderiv, is2nderiv)
	}

	tbl := ts.Get(phase)
	if tbl != nil {
		ttim, dtdd, dtdh, bpdel, d2tdd, d2tdh := tbl.GetValue(s.Depth, p.Delta, iszderiv, is2nderiv)
		if ttim >= 0. {
			p.Ttime = ttim
			p.Dtdd = dtdd
			p.Dtdh = dtdh
			p.Bpdel = bpdel
			p.D2tdd = d2tdd
			p.D2tdh = d2tdh
			return true
		}
	}

	// crossover: the named phase has no arrival here but the matching
	// composite first-arriving branch may, without renaming the phase
	if policy == AllowFallback {
		return compositeLookup(ts, phase, s, p, iszderiv, is2nderiv)
	}
	return false
}

func compositeLookup(ts *TTTableSet, phase string, s *Solution, p *Phase, iszderiv, is2nderiv bool) bool {
	var tbl *TTTable
	switch lastLag(phase) {
	case 1:
		tbl = ts.Get("firstP")
	case 2:
		tbl = ts.Get("firstS")
	default:
		return false
	}
	if tbl == nil {
		return false
	}
	ttim, dtdd, dtdh, bpdel, d2tdd, d2tdh := tbl.GetValue(s.Depth, p.Delta, iszderiv, is2nderiv)
	if ttim < 0. {
		return false
	}
	p.Ttime = ttim
	p.Dtdd = dtdd
	p.Dtdh = dtdh
	p.Bpdel = bpdel
	p.D2tdd = d2tdd
	p.D2tdh = d2tdh
	return true
}

// isTomography decides whether the observation qualifies for the regional
// tomography branch: crustal phase, inside the radius, with the Pn/Sn and
// crustal sub-switches honoured, and no direct crustal waves for sources
// below the crust at very short range.
func isTomography(ctx *Context, p *Phase, depth float64) bool {
	cfg := ctx.Cfg
	if !cfg.UseRSTT || ctx.Aux.RSTT == nil {
		return false
	}
	if p.Delta > cfg.MaxRSTTDistDeg {
		return false
	}
	switch p.Phase {
	case "Pn", "Sn":
		if !cfg.UseRSTTPnSn {
			return false
		}
	case "Pg", "Pb", "Sg", "Sb", "Lg":
		if !cfg.UseRSTTPgLg {
			return false
		}
		if p.Delta < 0.75 && depth > 40. {
			return false
		}
	default:
		return false
	}
	return true
}

// applyCorrections adds the ellipticity, station elevation and depth
// phase bounce point corrections to a table prediction.
func applyCorrections(ctx *Context, s *Solution, p *Phase) {
	if s.Lat != NULLVAL {
		ecolat := GeocentricColatitude(s.Lat)
		p.Ttime += GetEllipticityCorrection(ctx.Aux.Ellip, p.Phase, ecolat, p.Delta, s.Depth, p.Esaz)
	}
	p.Ttime += elevationCorrection(ctx.Cfg, p)
	if len(p.Phase) > 0 && (p.Phase[0] == 'p' || p.Phase[0] == 's') {
		bounce, water := bounceCorrection(ctx, s, p)
		p.Ttime += bounce
		if p.Phase == "pwP" {
			p.Ttime += water
		}
	}
}

// elevationCorrection computes the travel-time correction for the station
// elevation from the surface velocity of the last leg of the phase.
func elevationCorrection(cfg *Config, p *Phase) float64 {
	if p.StaElev == NULLVAL {
		return 0.
	}
	var surfvel float64
	switch lastLag(p.Phase) {
	case 1:
		surfvel = cfg.PSurfVel
	case 2:
		surfvel = cfg.SSurfVel
	default:
		return 0.
	}
	corr := surfvel * (p.Dtdd / DEG2KM)
	corr *= corr
	if corr > 1. {
		corr = 1. / corr
	}
	corr = math.Sqrt(1. - corr)
	return corr * p.StaElev / (1000. * surfvel)
}

// bounceCorrection returns the topography/bathymetry correction at the
// surface reflection point of a depth phase, plus the water column
// correction applicable to pwP. Adopted from Bob Engdahl's libtau
// extensions.
func bounceCorrection(ctx *Context, s *Solution, p *Phase) (tcorc, tcorw float64) {
	if ctx.Aux.Topo == nil || p.Bpdel <= 0. {
		return 0., 0.
	}
	bpaz := p.Esaz
	if p.Dtdd < 0. {
		bpaz += 180.
	}
	if bpaz > 360. {
		bpaz -= 360.
	}
	bplat, bplon := PointAtDeltaAzimuth(s.Lat, s.Lon, p.Bpdel, bpaz)

	ips := 4
	switch {
	case strings.HasPrefix(p.Phase, "pP"), strings.HasPrefix(p.Phase, "pwP"):
		ips = 1
	case strings.HasPrefix(p.Phase, "pS"), strings.HasPrefix(p.Phase, "sP"):
		ips = 2
	case strings.HasPrefix(p.Phase, "sS"):
		ips = 3
	}
	return etopoCorrection(ctx.Cfg, ips, p.Dtdd, bplat, bplon, ctx.Aux.Topo)
}

// etopoCorrection evaluates Engdahl's topography equations at the bounce
// point.
//
//	ips - 1 for pP*, 2 for sP*/pS*, 3 for sS*, 4 for the upgoing leg
func etopoCorrection(cfg *Config, ips int, rayp, bplat, bplon float64, topo *TopoGrid) (tcorc, tcorw float64) {
	const watervel = 1.5 // P velocity in water [km/s]

	delr := topo.Elevation(bplat, bplon)
	if math.Abs(delr) < DEPSILON {
		return 0., 0.
	}
	bp2 := math.Abs(rayp) * rad2deg / EARTH_RADIUS

	switch ips {
	case 1:
		term := cfg.PSurfVel * cfg.PSurfVel * bp2 * bp2
		if term > 1. {
			term = 1.
		}
		tcorc = 2. * delr * math.Sqrt(1.-term) / cfg.PSurfVel
		if delr < -1.5 {
			// water deeper than 1.5 km
			term = watervel * watervel * bp2 * bp2
			if term > 1. {
				term = 1.
			}
			tcorw = -2. * delr * math.Sqrt(1.-term) / watervel
		}
	case 2:
		term1 := cfg.PSurfVel * cfg.PSurfVel * bp2 * bp2
		if term1 > 1. {
			term1 = 1.
		}
		term2 := cfg.SSurfVel * cfg.SSurfVel * bp2 * bp2
		if term2 > 1. {
			term2 = 1.
		}
		tcorc = delr * (math.Sqrt(1.-term1)/cfg.PSurfVel + math.Sqrt(1.-term2)/cfg.SSurfVel)
	case 3:
		term := cfg.SSurfVel * cfg.SSurfVel * bp2 * bp2
		if term > 1. {
			term = 1.
		}
		tcorc = 2. * delr * math.Sqrt(1.-term) / cfg.SSurfVel
	}
	return tcorc, tcorw
}

// lastLag scans the phase name right to left for the last uppercase
// letter: 1 for a P-type last leg, 2 for S-type, 0 otherwise.
func lastLag(phase string) int {
	for i := len(phase) - 1; i >= 0; i-- {
		switch phase[i] {
		case 'P':
			return 1
		case 'S':
			return 2
		}
	}
	return 0
}

// GetDeltaAzimuth recomputes delta, esaz and seaz for every phase against
// the current solution.
func GetDeltaAzimuth(s *Solution, phases []Phase) {
	for i := range phases {
		p := &phases[i]
		p.Delta, p.Esaz, p.Seaz = DistAzimuth(s.Lat, s.Lon, p.StaLat, p.StaLon)
	}
}

// TravelTimeResiduals sets predicted times and residuals. In "use" mode
// only defining observations are predicted; in "all" mode every
// associated phase gets a residual where a prediction exists (prediction
// failures surface as absent residuals, the association is retained).
// The per-observation loop is embarrassingly parallel: the tables are
// read-only and each observation writes only its own slots.
func TravelTimeResiduals(ctx *Context, s *Solution, phases []Phase, mode string, iszderiv, is2nderiv bool) error {
	all := mode == "all"

	compute := func(i int) {
		p := &phases[i]
		if !all && !p.Timedef && !p.Azimdef && !p.Slowdef {
			return
		}
		if phaseWithoutResidual(ctx.Cfg, p.Phase) {
			p.Timeres = NULLVAL
			p.Azimres = NULLVAL
			p.Slowres = NULLVAL
			return
		}
		policy := AllowFallback
		if err := GetTravelTimePrediction(ctx, s, p, iszderiv, is2nderiv, policy); err != nil {
			p.Timeres = NULLVAL
			p.Azimres = NULLVAL
			p.Slowres = NULLVAL
			if !all {
				p.Timedef = false
				p.Azimdef = false
				p.Slowdef = false
			}
			return
		}
		if p.Time != NULLVAL {
			p.Timeres = p.Time - s.Time - p.Ttime
		} else {
			p.Timeres = NULLVAL
		}
		if p.Azim != NULLVAL {
			p.Azimres = azimDiff(p.Azim, p.Esaz)
		} else {
			p.Azimres = NULLVAL
		}
		if p.Slow != NULLVAL {
			p.Slowres = p.Slow - math.Abs(p.Dtdd)
		} else {
			p.Slowres = NULLVAL
		}
	}

	// worker pool across observations for larger events; the tomography
	// backend keeps per-thread state, so it forces the serial path
	if len(phases) > 64 && !ctx.Cfg.UseRSTT {
		pool := pond.New(runtime.NumCPU(), 0, pond.MinWorkers(runtime.NumCPU()))
		for i := range phases {
			i := i
			pool.Submit(func() { compute(i) })
		}
		pool.StopAndWait()
	} else {
		for i := range phases {
			compute(i)
		}
	}
	return nil
}

// azimDiff returns the signed difference of two azimuths in (-180, 180].
func azimDiff(obs, pred float64) float64 {
	d := obs - pred
	for d > 180. {
		d -= 360.
	}
	for d <= -180. {
		d += 360.
	}
	return d
}

func phaseWithoutResidual(cfg *Config, phase string) bool {
	for _, ph := range cfg.PhasesWithoutResidual {
		if phase == ph {
			return true
		}
	}
	return false
}
