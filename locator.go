package seisloc

import (
	"fmt"
	"math"
	"sort"
)

// LocatorResult is everything the locator hands to the sink for one
// event: the final solution, the mutated phase array, the magnitude rows
// and the quality metrics. Err carries the failure kind when the event
// failed to converge; the solution then holds the rolled-back preferred
// origin with residuals computed against it.
type LocatorResult struct {
	Sol     *Solution
	Phases  []Phase
	StaMags []StationMagnitude
	RdMags  []StationMagnitude
	MSZH    []MSZH
	Quality LocationQuality
	Option  int
	Err     error
}

// InitialHypocenter builds the starting hypocentre as the median of the
// reported hypocentre parameters.
func InitialHypocenter(e *Event) Hypocenter {
	var h Hypocenter
	n := len(e.Hypos)
	if n == 0 {
		return h
	}
	times := make([]float64, 0, n)
	lats := make([]float64, 0, n)
	lons := make([]float64, 0, n)
	deps := make([]float64, 0, n)
	for i := range e.Hypos {
		times = append(times, e.Hypos[i].Time)
		lats = append(lats, e.Hypos[i].Lat)
		lons = append(lons, e.Hypos[i].Lon)
		if e.Hypos[i].Depth != NULLVAL {
			deps = append(deps, e.Hypos[i].Depth)
		}
	}
	sort.Float64s(times)
	sort.Float64s(lats)
	sort.Float64s(lons)
	sort.Float64s(deps)
	h.Time = median(times)
	h.Lat = median(lats)
	h.Lon = median(lons)
	if len(deps) > 0 {
		h.Depth = median(deps)
	}
	h.Agency = "MEDIAN"
	return h
}

// initialSolution seeds the working solution from the starting
// hypocentre and the caller instructions.
func initialSolution(e *Event, start *Hypocenter, numPhase int) *Solution {
	s := NewSolution(numPhase)
	s.Time = start.Time
	s.Lat = start.Lat
	s.Lon = start.Lon
	s.Depth = start.Depth
	s.Etype = e.Etype
	s.Timfix = e.FixedOT
	s.Epifix = e.FixedEpicenter
	if e.FixDepthToUser {
		s.Depth = e.StartDepth
	}
	if e.FixDepthToZero {
		s.Depth = 0.
	}
	return s
}

// Locate runs the full locator pipeline for one event: the option loop
// over free-depth and fixed-depth modes, the NA grid search for the
// starting hypocentre, the linearised inversion, and after convergence
// the residual, depth-phase, magnitude and quality passes.
func Locate(ctx *Context, e *Event) *LocatorResult {
	cfg := ctx.Cfg
	res := &LocatorResult{Phases: e.Phases}

	// the tomography backend keeps per-thread great-circle state
	if ctx.Aux.RSTT != nil {
		ctx.Aux.RSTT.Reset()
	}

	SortPhasesFromDatabase(res.Phases)
	rdindx := Readings(res.Phases)

	ntime := 0
	for i := range res.Phases {
		if res.Phases[i].Timedef {
			ntime++
		}
	}
	if ntime < cfg.MinNdefPhases && !e.FixedHypocenter {
		res.Err = ErrInsufficientPhases
		s := rollbackSolution(e, &Hypocenter{Time: NULLVAL, Lat: NULLVAL, Lon: NULLVAL}, len(res.Phases))
		res.Sol = s
		return res
	}

	start := InitialHypocenter(e)
	ctx.Diag.Printf(1, "Median hypocentre: Lat = %7.3f Lon = %8.3f Depth = %.1f\n",
		start.Lat, start.Lon, start.Depth)

	stalist, err := GetStalist(res.Phases)
	if err != nil {
		res.Err = err
		return res
	}

	var distmatrix [][]float64
	var staorder []StationOrder
	if cfg.DoCorrelatedErrors {
		distmatrix = GetDistanceMatrix(stalist)
		staorder = HierarchicalCluster(distmatrix)
	}

	// residuals-only path: everything is held fixed
	if e.FixedHypocenter {
		s := initialSolution(e, &start, len(res.Phases))
		s.Timfix = true
		s.Epifix = true
		s.Depfix = true
		s.NumUnknowns = 0
		residualsForFixedHypocenter(ctx, s, rdindx, res.Phases)
		finalTouches(ctx, s, res, rdindx, stalist)
		res.Sol = s
		res.Option = OPT_FIXED_ALL
		return res
	}

	var (
		s            *Solution
		firstpass    = true
		isgridsearch = cfg.DoGridSearch
		mediandepth  = start.Depth
		medianot     = start.Time
		medianlat    = start.Lat
		medianlon    = start.Lon
		isdefdep     = false
		fixDepthNow  = e.FixedDepth
		lastErr      error
	)

	for option := 0; option < 2; option++ {
	again:
		lastErr = nil

		// caller instructions override the free -> default-depth ladder
		if fixDepthNow {
			option = OPT_USER_DEPTH
		}
		if e.FixDepthToDefault {
			option = OPT_DEFAULT_DEPTH
		}
		if e.FixDepthToMedian {
			option = OPT_MEDIAN_DEPTH
		}
		if e.FixedEpicenter {
			if fixDepthNow {
				option = OPT_FIXED_EPI_AND_DEPTH
			} else {
				option = OPT_FIXED_EPI
			}
		}
		ctx.Diag.Printf(1, "Option %d\n", option)

		unknowns := 3
		switch option {
		case OPT_FREE_DEPTH:
			unknowns = 4
		case OPT_FIXED_EPI:
			unknowns = 2
		case OPT_FIXED_EPI_AND_DEPTH:
			unknowns = 1
		}
		if e.FixedOT {
			unknowns--
		}

		if firstpass || s == nil {
			s = initialSolution(e, &start, len(res.Phases))
			mediandepth = s.Depth
			medianot = s.Time
			medianlat = s.Lat
			medianlon = s.Lon
		}
		s.NumUnknowns = unknowns
		s.Converged = false
		s.Diverging = false

		// depth fix bookkeeping
		switch option {
		case OPT_FREE_DEPTH, OPT_FIXED_EPI:
			s.FixedDepthType = FIX_DEPTH_FREE
			s.Depfix = false
		case OPT_USER_DEPTH, OPT_FIXED_EPI_AND_DEPTH:
			s.Depfix = true
			switch {
			case e.FixDepthToUser:
				s.FixedDepthType = FIX_DEPTH_ANALYST
			case e.FixDepthToDefault:
				s.FixedDepthType = FIX_DEPTH_DEFAULT_GRID
			case e.FixDepthToDepdp:
				s.FixedDepthType = FIX_DEPTH_DEPDP
			case e.FixDepthToMedian:
				s.FixedDepthType = FIX_DEPTH_MEDIAN
				isdefdep = true
			case e.FixDepthToZero:
				s.FixedDepthType = FIX_DEPTH_SURFACE
			default:
				s.FixedDepthType = FIX_DEPTH_AGENCY
			}
		case OPT_MEDIAN_DEPTH:
			s.Depfix = true
			s.FixedDepthType = FIX_DEPTH_MEDIAN
			isdefdep = true
		}

		if option == OPT_DEFAULT_DEPTH {
			// no depth resolution, or the free-depth attempt failed:
			// fix to the region-dependent default depth
			s.Depfix = true
			s.Depth = mediandepth
			var d float64
			d, isdefdep = GetDefaultDepth(s, ctx.Aux.DepthGrid, 0, cfg)
			if math.Abs(d-mediandepth) > 20. {
				ctx.Diag.Printf(1, "Large depth difference, fall back to median hypocentre\n")
				s.Time = medianot
				s.Lat = medianlat
				s.Lon = medianlon
				s.Depth = mediandepth
				d, isdefdep = GetDefaultDepth(s, ctx.Aux.DepthGrid, 0, cfg)
			}
			// adjust the origin time with the depth change
			if !s.Timfix {
				s.Time += (d - mediandepth) / 10.
			}
			if math.Abs(d-mediandepth) > 20. {
				firstpass = true
			}
			s.Depth = d
		}
		s.IsDefaultDepth = isdefdep

		// regenerate local tables when the epicentre walked away
		updateLocalTT(ctx, s)

		GetDeltaAzimuth(s, res.Phases)
		IdentifyPhases(ctx, s, rdindx, res.Phases)
		DuplicatePhases(ctx, s, res.Phases)

		// NA grid search for the starting hypocentre, first pass only
		if isgridsearch && firstpass {
			ctx.Diag.Printf(1, "Neighbourhood algorithm\n")
			grds := *s
			if sp, err := SetNASearchSpace(ctx, &grds); err == nil {
				dumpfile := ""
				if cfg.WriteNASamples {
					dumpfile = fmt.Sprintf("%d.%d.gsres", e.EvID, option)
				}
				if err := NASearch(ctx, &grds, res.Phases, sp, dumpfile); err != nil {
					ctx.Diag.Printf(1, "    WARNING: NASearch failed\n")
				} else {
					s.Lat = grds.Lat
					s.Lon = grds.Lon
					s.Time = grds.Time
					s.Depth = grds.Depth
					ctx.Diag.Printf(1, "Best fitting hypocentre from grid search: Lat=%7.3f Lon=%8.3f Depth=%.1f\n",
						s.Lat, s.Lon, s.Depth)
					updateLocalTT(ctx, s)
					GetDeltaAzimuth(s, res.Phases)
					ReIdentifyPhases(ctx, s, rdindx, res.Phases)
					DuplicatePhases(ctx, s, res.Phases)
				}
			} else {
				ctx.Diag.Printf(1, "    WARNING: SetNASearchSpace failed\n")
			}
		}
		firstpass = false

		iszderiv := option == OPT_FREE_DEPTH || option == OPT_FIXED_EPI
		if err := TravelTimeResiduals(ctx, s, res.Phases, "use", iszderiv, false); err != nil {
			lastErr = err
			continue
		}

		ndef := countDefining(res.Phases)
		if ndef < s.NumUnknowns {
			ctx.Diag.Printf(1, "Insufficient number (%d) of phases left\n", ndef)
			lastErr = ErrInsufficientPhases
			continue
		}
		// pointless to try a free-depth solution with just a few phases
		if ndef <= s.NumUnknowns+1 && iszderiv {
			ctx.Diag.Printf(1, "Not enough phases for free-depth solution\n")
			if math.Abs(s.Depth-mediandepth) > 20. {
				firstpass = true
			}
			lastErr = ErrInsufficientPhases
			continue
		}

		hasDepdpres := DepthPhaseCheck(ctx, s, rdindx, res.Phases, iszderiv)
		ndef = countDefining(res.Phases)
		if ndef < s.NumUnknowns {
			lastErr = ErrInsufficientPhases
			continue
		}

		hasDepthResolution := hasDepdpres || DepthResolution(ctx, s, rdindx, res.Phases)
		if !hasDepthResolution && iszderiv {
			ctx.Diag.Printf(1, "No depth resolution for free-depth solution\n")
			if option == OPT_FIXED_EPI {
				var d float64
				d, isdefdep = GetDefaultDepth(s, ctx.Aux.DepthGrid, 0, cfg)
				s.Depth = d
				fixDepthNow = true
				lastErr = ErrNoDepthResolution
				goto again
			}
			if math.Abs(s.Depth-mediandepth) > 20. {
				firstpass = true
			}
			lastErr = ErrNoDepthResolution
			continue
		}

		ctx.Diag.Printf(1, "Event location\n")
		if err := LocateEvent(ctx, option, s, rdindx, res.Phases, stalist, distmatrix, staorder, false); err != nil {
			lastErr = err
			rdindx = Readings(res.Phases)
			if isgridsearch {
				// disable the grid search, reinitialize and retry once
				isgridsearch = false
				firstpass = true
				option--
				if option > 0 {
					option = 0
				}
				ctx.Diag.Printf(1, "Try again without the grid search\n")
			} else if option == OPT_FREE_DEPTH {
				firstpass = true
			} else {
				ctx.Diag.Printf(1, "locator failed\n")
			}
			continue
		}
		rdindx = Readings(res.Phases)

		if s.Converged {
			// discard the free-depth solution when the depth error is
			// out of band
			if option == OPT_FREE_DEPTH && s.Error[3] != NULLVAL &&
				((s.Depth > 0. && s.Depth <= cfg.Moho && s.Error[3] > cfg.MaxShallowDepthError) ||
					(s.Depth > cfg.Moho && s.Error[3] > cfg.MaxDeepDepthError)) {
				ctx.Diag.Printf(1, "Discarded free-depth solution: depth=%5.1f error=%.1f\n",
					s.Depth, s.Error[3])
				firstpass = true
				lastErr = ErrDepthErrorTooLarge
				continue
			}
			break
		}
	}

	res.Sol = s
	res.Err = nil

	if s == nil || !s.Converged {
		// roll back to the preferred origin and still compute residuals
		// for downstream reporting
		if lastErr == nil {
			lastErr = ErrDivergent
		}
		res.Err = lastErr
		s = rollbackSolution(e, &start, len(res.Phases))
		res.Sol = s
		residualsForFixedHypocenter(ctx, s, rdindx, res.Phases)
		res.Quality = GetLocationQuality(cfg, res.Phases)
		return res
	}

	finalTouches(ctx, s, res, rdindx, stalist)
	return res
}

// finalTouches performs the after-convergence passes: depth-phase depth,
// residuals for every associated phase (with temporary depth-phase
// identifications), location quality and magnitudes.
func finalTouches(ctx *Context, s *Solution, res *LocatorResult, rdindx []Reading, stalist []Station) {
	cfg := ctx.Cfg

	// depth-phase depth when resolvable
	if DepthPhaseCheck(ctx, s, rdindx, res.Phases, true) {
		DepthPhaseStack(ctx, s, rdindx, res.Phases)
		if s.Depdp != NULLVAL {
			ctx.Diag.Printf(1, "    ndp = %d, depdp=%.1f +/- %.1f\n",
				s.Ndp, s.Depdp, s.DepdpError)
		}
	}

	// temporarily reidentify unnamed arrivals as depth phases so they get
	// residuals, then strip the temporaries again
	IdentifyPFAKE(ctx, s, res.Phases)
	_ = TravelTimeResiduals(ctx, s, res.Phases, "all", false, false)
	RemovePFAKE(res.Phases)

	updateCounts(s, res.Phases, stalist)

	q := GetLocationQuality(cfg, res.Phases)
	res.Quality = q
	s.Azimgap = q.FullNetwork.Gap
	s.Sgap = q.FullNetwork.Sgap
	s.Mindist = q.FullNetwork.Mindist
	s.Maxdist = q.FullNetwork.Maxdist

	res.StaMags, res.RdMags, res.MSZH = NetworkMagnitudes(ctx, s, rdindx, res.Phases)
}

// updateCounts refreshes the summary counters on the solution.
func updateCounts(s *Solution, phases []Phase, stalist []Station) {
	s.Nass = len(phases)
	s.Nsta = len(stalist)
	s.Ntimedef = 0
	s.Nazimdef = 0
	s.Nslowdef = 0
	defsta := map[string]bool{}
	for i := range phases {
		if phases[i].Timedef {
			s.Ntimedef++
			defsta[phases[i].PriSta] = true
		}
		if phases[i].Azimdef {
			s.Nazimdef++
			defsta[phases[i].PriSta] = true
		}
		if phases[i].Slowdef {
			s.Nslowdef++
			defsta[phases[i].PriSta] = true
		}
	}
	s.Ndefsta = len(defsta)
	s.Nreading = len(Readings(phases))
}

// residualsForFixedHypocenter computes residuals against a hypocentre
// held entirely fixed: identification, duplicate handling and an "all"
// residual pass, with no inversion.
func residualsForFixedHypocenter(ctx *Context, s *Solution, rdindx []Reading, phases []Phase) {
	GetDeltaAzimuth(s, phases)
	IdentifyPhases(ctx, s, rdindx, phases)
	DuplicatePhases(ctx, s, phases)
	IdentifyPFAKE(ctx, s, phases)
	_ = TravelTimeResiduals(ctx, s, phases, "all", false, false)
	RemovePFAKE(phases)
}

// rollbackSolution restores the preferred reported origin after a failed
// location.
func rollbackSolution(e *Event, start *Hypocenter, numPhase int) *Solution {
	h := start
	for i := range e.Hypos {
		if e.Hypos[i].HypID == e.PrefOrid {
			h = &e.Hypos[i]
			break
		}
	}
	s := NewSolution(numPhase)
	s.HypID = h.HypID
	s.Agency = h.Agency
	s.Time = h.Time
	s.Lat = h.Lat
	s.Lon = h.Lon
	s.Depth = h.Depth
	if s.Depth == NULLVAL {
		s.Depth = 0.
	}
	s.Timfix = true
	s.Epifix = true
	s.Depfix = true
	s.Converged = false
	return s
}

// updateLocalTT regenerates the local travel-time tables when the
// epicentre walked further than EpiWalk km from where they were built.
func updateLocalTT(ctx *Context, s *Solution) {
	cfg := ctx.Cfg
	if !cfg.UseLocalTT || ctx.Aux.LocalTTDir == "" {
		return
	}
	if ctx.PrevLat != NULLVAL {
		d, _, _ := DistAzimuth(ctx.PrevLat, ctx.PrevLon, s.Lat, s.Lon)
		if d*DEG2KM <= cfg.EpiWalk && ctx.Aux.LocalTT != nil {
			return
		}
	}
	ctx.PrevLat = s.Lat
	ctx.PrevLon = s.Lon
	lt, err := GenerateLocalTTTables(ctx.Aux.LocalTTDir, s.Lat, s.Lon)
	if err != nil {
		ctx.Diag.Printf(1, "Cannot generate local TT tables\n")
		return
	}
	ctx.Aux.LocalTT = lt
}

// countDefining counts the defining data across all three datum classes.
func countDefining(phases []Phase) int {
	n := 0
	for i := range phases {
		if phases[i].Timedef {
			n++
		}
		if phases[i].Azimdef {
			n++
		}
		if phases[i].Slowdef {
			n++
		}
	}
	return n
}
