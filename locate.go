package seisloc

import (
	"math"
	"runtime"

	"github.com/alitto/pond"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// option codes of the locator option loop
const (
	OPT_FREE_DEPTH = iota
	OPT_DEFAULT_DEPTH
	OPT_USER_DEPTH
	OPT_MEDIAN_DEPTH
	OPT_FIXED_EPI
	OPT_FIXED_EPI_AND_DEPTH
	OPT_FIXED_ALL
)

// getNdef counts the defining observations, validates their stations,
// snapshots the defining flags and finds the earliest arrival time used
// to reduce the origin time.
func getNdef(phases []Phase, stalist []Station) (nd int, toffset float64, err error) {
	toff := NULLVAL
	for i := range phases {
		p := &phases[i]
		if !p.Timedef {
			continue
		}
		if GetStationIndex(stalist, p.PriSta) < 0 {
			return 0, 0., ErrInvalidStation
		}
		p.prevTimedef = true
		p.PrevPhase = p.Phase
		if p.Time < toff {
			toff = p.Time
		}
		nd++
	}
	for i := range phases {
		if phases[i].Azimdef {
			phases[i].prevAzimdef = true
			phases[i].PrevPhase = phases[i].Phase
			nd++
		}
	}
	for i := range phases {
		if phases[i].Slowdef {
			phases[i].prevSlowdef = true
			phases[i].PrevPhase = phases[i].Phase
			nd++
		}
	}
	if toff == NULLVAL {
		toff = 0.
	}
	return nd, toff, nil
}

// residualState carries the per-iteration bookkeeping of getResiduals.
type residualState struct {
	ndef      int
	ischanged bool // some observation was demoted
	ispchange bool // a phase name changed (forces covariance rebuild)
	nunp      int  // distinct phase names demoted this iteration
}

// getResiduals recomputes residuals for the defining observations and
// demotes any whose residual exceeds SigmaThreshold times its prior
// measurement error. Demoted rows and columns are squeezed out of the
// covariance and projection matrices so that the next projection stays
// consistent with the covariance row indices.
func getResiduals(ctx *Context, s *Solution, rdindx []Reading, phases []Phase,
	iszderiv, is2nderiv bool, iter int, ispchange bool, prevndef int,
	dcov, w [][]float64) (residualState, bool, error) {

	cfg := ctx.Cfg
	var st residualState
	st.ispchange = ispchange

	hasDepdp := DepthPhaseCheck(ctx, s, rdindx, phases, false)

	if err := TravelTimeResiduals(ctx, s, phases, "use", iszderiv, is2nderiv); err != nil {
		return st, hasDepdp, err
	}

	squeeze := func(k int, n int) {
		if dcov != nil {
			SqueezeMatrix(dcov, k, n)
		}
		if w != nil {
			SqueezeMatrix(w, k, n)
		}
	}
	canSqueeze := iter > 0 && !ispchange && cfg.DoCorrelatedErrors
	demoted := map[string]bool{}
	n := prevndef

	for i := range phases {
		p := &phases[i]
		if p.Timedef {
			thres := cfg.SigmaThreshold * p.Deltim
			if p.Timeres == NULLVAL || math.Abs(p.Timeres) > thres {
				p.Timedef = false
			} else {
				st.ndef++
			}
		}
		if !p.Timedef && p.prevTimedef {
			st.ischanged = true
			ctx.Diag.Printf(4, "        %-6s %-8s %10.3f time made non-defining\n",
				p.PriSta, p.Phase, p.Timeres)
			if canSqueeze {
				demoted[p.Phase] = true
				squeeze(p.CovIndTime, n)
				shiftCovIndices(phases, p.CovIndTime)
				n--
			}
		}
		p.prevTimedef = p.Timedef
	}
	for i := range phases {
		p := &phases[i]
		if p.Azimdef {
			thres := cfg.SigmaThreshold * p.Delaz
			if p.Azimres == NULLVAL || math.Abs(p.Azimres) > thres {
				p.Azimdef = false
			} else {
				st.ndef++
			}
		}
		if !p.Azimdef && p.prevAzimdef {
			st.ischanged = true
			if canSqueeze {
				demoted[p.Phase] = true
				squeeze(p.CovIndAzim, n)
				shiftCovIndices(phases, p.CovIndAzim)
				n--
			}
		}
		p.prevAzimdef = p.Azimdef
	}
	for i := range phases {
		p := &phases[i]
		if p.Slowdef {
			thres := cfg.SigmaThreshold * p.Delslo
			if p.Slowres == NULLVAL || math.Abs(p.Slowres) > thres {
				p.Slowdef = false
			} else {
				st.ndef++
			}
		}
		if !p.Slowdef && p.prevSlowdef {
			st.ischanged = true
			if canSqueeze {
				demoted[p.Phase] = true
				squeeze(p.CovIndSlow, n)
				shiftCovIndices(phases, p.CovIndSlow)
				n--
			}
		}
		p.prevSlowdef = p.Slowdef
	}
	st.nunp = len(demoted)
	return st, hasDepdp, nil
}

// shiftCovIndices keeps the covariance row indices of the still-defining
// observations consistent after row k was squeezed out.
func shiftCovIndices(phases []Phase, k int) {
	for i := range phases {
		p := &phases[i]
		if p.Timedef && p.CovIndTime > k {
			p.CovIndTime--
		}
		if p.Azimdef && p.CovIndAzim > k {
			p.CovIndAzim--
		}
		if p.Slowdef && p.CovIndSlow > k {
			p.CovIndSlow--
		}
	}
}

// buildGd builds the G matrix of partial derivatives and the residual
// vector d for the system Gm = d, ordered time block, azimuth block,
// slowness block. Returns the unweighted rms residual.
func buildGd(s *Solution, phases []Phase, ndef int, fixdepthfornow bool, g [][]float64, d []float64) float64 {
	depthcorr := deg2rad * (EARTH_RADIUS - s.Depth)
	acorr := deg2rad * EARTH_RADIUS
	urms := 0.

	k := 0
	for i := range phases {
		p := &phases[i]
		if !p.Timedef {
			continue
		}
		for j := 0; j < 4; j++ {
			g[k][j] = 0.
		}
		im := 0
		if !s.Timfix {
			g[k][im] = 1.
			im++
		}
		if !s.Epifix {
			esaz := deg2rad * p.Esaz
			g[k][im] = -(p.Dtdd / depthcorr) * math.Sin(esaz)
			im++
			g[k][im] = -(p.Dtdd / depthcorr) * math.Cos(esaz)
			im++
		}
		if !fixdepthfornow {
			g[k][im] = -p.Dtdh
		}
		d[k] = p.Timeres
		urms += d[k] * d[k]
		k++
	}
	for i := range phases {
		p := &phases[i]
		if !p.Azimdef {
			continue
		}
		for j := 0; j < 4; j++ {
			g[k][j] = 0.
		}
		im := 0
		if !s.Timfix {
			im++
		}
		if !s.Epifix {
			esaz := deg2rad * p.Esaz
			azcorr := math.Sin(deg2rad*p.Delta) * acorr
			if math.Abs(azcorr) < 0.0001 {
				if azcorr < 0. {
					azcorr = -0.0001
				} else {
					azcorr = 0.0001
				}
			}
			g[k][im] = -math.Cos(esaz) / azcorr
			im++
			g[k][im] = math.Sin(esaz) / azcorr
			im++
		}
		d[k] = deg2rad * p.Azimres
		urms += d[k] * d[k]
		k++
	}
	for i := range phases {
		p := &phases[i]
		if !p.Slowdef {
			continue
		}
		for j := 0; j < 4; j++ {
			g[k][j] = 0.
		}
		im := 0
		if !s.Timfix {
			im++
		}
		if !s.Epifix {
			esaz := deg2rad * p.Esaz
			g[k][im] = -(p.D2tdd / depthcorr) * math.Sin(esaz)
			im++
			g[k][im] = -(p.D2tdd / depthcorr) * math.Cos(esaz)
			im++
		}
		if !fixdepthfornow {
			g[k][im] = -p.D2tdh
		}
		d[k] = p.Slowres / DEG2KM
		urms += d[k] * d[k]
		k++
	}
	return math.Sqrt(urms / float64(ndef))
}

// projectGd projects Gm = d into the eigensystem: (G, d) <- (W G, W d).
// The column multiplications are independent, so they run on a worker
// pool for large systems. Returns the data norm and weighted rms.
func projectGd(ndef, m, prank int, g [][]float64, d []float64, w [][]float64) (dnorm, wrms float64) {
	wxg := func(j int) {
		temp := make([]float64, ndef)
		for k := 0; k < ndef; k++ {
			temp[k] = g[k][j]
		}
		for i := 0; i < prank; i++ {
			s := 0.
			for k := 0; k < ndef; k++ {
				s += w[i][k] * temp[k]
			}
			if math.Abs(s) < ZERO_TOL {
				s = 0.
			}
			g[i][j] = s
		}
		for i := prank; i < ndef; i++ {
			g[i][j] = 0.
		}
	}

	if ndef > 100 {
		nw := runtime.NumCPU()
		if nw > m {
			nw = m
		}
		pool := pond.New(nw, 0, pond.MinWorkers(nw))
		for j := 0; j < m; j++ {
			j := j
			pool.Submit(func() { wxg(j) })
		}
		pool.StopAndWait()
	} else {
		for j := 0; j < m; j++ {
			wxg(j)
		}
	}

	temp := make([]float64, ndef)
	for i := 0; i < prank; i++ {
		s := 0.
		for k := 0; k < ndef; k++ {
			s += w[i][k] * d[k]
		}
		if math.Abs(s) < ZERO_TOL {
			s = 0.
		}
		temp[i] = s
	}
	wssq := 0.
	for i := 0; i < ndef; i++ {
		if i < prank {
			d[i] = temp[i]
		} else {
			d[i] = 0.
		}
		wssq += d[i] * d[i]
	}
	return wssq, math.Sqrt(wssq / float64(ndef))
}

// weightGd weights Gm = d by the prior measurement errors under the
// independence assumption.
func weightGd(phases []Phase, ndef, m int, g [][]float64, d []float64) (dnorm, wrms float64) {
	wssq := 0.
	k := 0
	apply := func(prior float64) {
		weight := 1.
		if prior > DEPSILON {
			weight = 1. / prior
		}
		for j := 0; j < m; j++ {
			g[k][j] *= weight
		}
		d[k] *= weight
		wssq += d[k] * d[k]
		k++
	}
	for i := range phases {
		if phases[i].Timedef {
			apply(phases[i].Deltim)
		}
	}
	for i := range phases {
		if phases[i].Azimdef {
			apply(phases[i].Delaz)
		}
	}
	for i := range phases {
		if phases[i].Slowdef {
			apply(phases[i].Delslo)
		}
	}
	return wssq, math.Sqrt(wssq / float64(ndef))
}

// convergenceTestValue is the Paige and Saunders (1982) LSQR convergence
// test number ||Gt d|| / (||G|| ||d||).
func convergenceTestValue(gtdnorm, gnorm, dnorm float64) float64 {
	gd := gnorm * dnorm
	if gtdnorm > DEPSILON && gd < DEPSILON {
		return 999.
	}
	if gd < DEPSILON {
		return 0.
	}
	return gtdnorm / gd
}

// convergenceTest decides convergence or divergence from the
// Paige-Saunders value and the history of model and data norms, and
// applies the half step-length damping when the convergence value is
// increasing.
func convergenceTest(cfg *Config, iter, m int, nds [3]int, sol, oldsol []float64,
	wrms float64, modelnorm, convgtest [3]float64, oldcvgtst, step *float64) (isconv, isdiv bool) {

	sc := *step
	oldcvg := *oldcvgtst

	if modelnorm[0] > 0. && convgtest[0] > 0. {
		var dm01, dm12, dc01, dc12 float64
		if modelnorm[1] <= 0. || modelnorm[2] <= 0. {
			dm01, dm12 = 1.05, 1.05
		} else {
			dm01 = modelnorm[0] / modelnorm[1]
			dm12 = modelnorm[1] / modelnorm[2]
		}
		if convgtest[1] <= 0. || convgtest[2] <= 0. {
			dc01 = convgtest[0]
		} else {
			dc01 = convgtest[0] / convgtest[1]
			dc12 = convgtest[1] / convgtest[2]
			dc01 = math.Abs(dc12 - dc01)
		}
		dc12 = math.Abs(convgtest[0] - convgtest[2])

		switch {
		case dm12 > 1.1 && dm01 > dm12 && iter > cfg.MinIterations+2 && modelnorm[0] > 500:
			isdiv = true
		case nds[0] == nds[1] &&
			(convgtest[0] < CONV_TOL || modelnorm[0] < 0.1 || wrms < 0.01):
			isconv = true
		case (convgtest[0] < 1.01*oldcvg && convgtest[0] < CONV_TOL) ||
			(iter > 3*cfg.MaxIterations/4 &&
				(convgtest[0] < math.Sqrt(CONV_TOL) ||
					dc01 < CONV_TOL ||
					dc12 < math.Sqrt(CONV_TOL))):
			isconv = true
		}
	} else {
		isconv = true
	}
	if iter == cfg.MaxIterations-1 {
		isconv = false
	}

	// half step lengths when the convergence test value is increasing
	if iter > cfg.MinIterations+2 && sc > 0.05 &&
		(convgtest[0] > *oldcvgtst || convgtest[0]-convgtest[2] == 0.) {
		sc *= 0.5
		if sc != 0.5 {
			for i := 0; i < m; i++ {
				if math.Abs(oldsol[i]) < ZERO_TOL {
					oldsol[i] = sol[i]
				}
				sol[i] = sc * oldsol[i]
			}
		} else {
			for i := 0; i < m; i++ {
				sol[i] = sc * sol[i]
				oldsol[i] = sol[i]
			}
		}
	} else {
		sc = 1.
		*oldcvgtst = convgtest[0]
	}
	*step = sc
	return isconv, isdiv
}

// LocateEvent runs the linearised iterative least-squares inversion for
// one option of the option loop. The solution is updated in place; on
// convergence the model covariance, the uncertainties and the error
// ellipse are populated. The returned error is one of the taxonomy
// sentinels when the inversion fails.
func LocateEvent(ctx *Context, option int, s *Solution, rdindx []Reading, phases []Phase,
	stalist []Station, distmatrix [][]float64, staorder []StationOrder, is2nderiv bool) error {

	cfg := ctx.Cfg

	nd, toffset, err := getNdef(phases, stalist)
	if err != nil {
		return err
	}
	if nd <= s.NumUnknowns {
		ctx.Diag.Printf(1, "LocateEvent: insufficient number of phases (%d)\n", nd)
		return ErrInsufficientPhases
	}
	torg := s.Time - toffset

	sol := make([]float64, 4)
	oldsol := make([]float64, 4)
	i := 0
	if !s.Timfix {
		sol[i] = torg
		i++
	}
	if !s.Epifix {
		sol[i] = s.Lon
		i++
		sol[i] = s.Lat
		i++
	}
	if !s.Depfix {
		sol[i] = s.Depth
	}

	var (
		g              [][]float64
		d              []float64
		dcov, w        [][]float64
		svundamped     []float64
		vmat           *mat.Dense
		svth           float64
		modelnorm      [3]float64
		convgtest      [3]float64
		nds            [3]int
		prank          = nd
		nairquakes     = 0
		ndeepquakes    = 0
		isconv         = false
		isdiv          = false
		ispchange      = false
		step           = 1.
		oldcvgtst      = 1.
		urms, wrms     = 0., 0.
		dnorm          = 0.
		prevDepth      = s.Depth
		mFinal         = s.NumUnknowns
		fixdepthfornow = false
		locerr         error
	)
	nds[0] = nd

	for i := 0; i < 4; i++ {
		s.Error[i] = NULLVAL
		for j := 0; j < 4; j++ {
			s.Covar[i][j] = NULLVAL
		}
	}

	// reorder phase records so the covariance matrix becomes block
	// diagonal, then rebuild the reading index
	if cfg.DoCorrelatedErrors {
		SortPhasesForNA(phases, stalist, staorder)
		rdindx = Readings(phases)
		DepthPhaseCheck(ctx, s, rdindx, phases, false)
	}

	iter := 0
	for ; iter < cfg.MaxIterations; iter++ {
		ctx.Diag.Printf(1, "iteration = %d\n", iter)
		m := s.NumUnknowns
		iszderiv := true
		fixdepthfornow = false

		// decide whether depth is adjustable this iteration
		if option == OPT_FREE_DEPTH || option == OPT_FIXED_EPI {
			switch {
			case s.Depth < 0.:
				// airquakes are clamped before the early-iteration freeze
				// so that predictions stay inside the table domain
				ctx.Diag.Printf(1, "    airquake, fixing depth to 0\n")
				nairquakes++
				s.Depth = 0.
				fixdepthfornow = true
				m--
			case s.Depth > cfg.MaxHypocenterDepth:
				ctx.Diag.Printf(1, "    deepquake, fixing depth to max depth\n")
				ndeepquakes++
				s.Depth = cfg.MaxHypocenterDepth
				fixdepthfornow = true
				m--
			case iter < cfg.MinIterations-1:
				fixdepthfornow = true
				m--
			}
		} else {
			fixdepthfornow = true
		}
		if nairquakes > 2 || ndeepquakes > 2 {
			fixdepthfornow = true
			m = s.NumUnknowns - 1
			s.FixedDepthType = FIX_DEPTH_BEYOND
		}
		if fixdepthfornow {
			iszderiv = false
		}

		GetDeltaAzimuth(s, phases)

		// reidentify phases when the depth crossed a crustal discontinuity
		if crossedDiscontinuity(cfg, s.Depth, prevDepth) {
			ctx.Diag.Printf(1, "    depth: %.2f prev: %.2f; reidentifying phases\n",
				s.Depth, prevDepth)
			ispchange = ReIdentifyPhases(ctx, s, rdindx, phases)
			DuplicatePhases(ctx, s, phases)
		}

		st, _, rerr := getResiduals(ctx, s, rdindx, phases, iszderiv, is2nderiv,
			iter, ispchange, nd, dcov, w)
		if rerr != nil {
			locerr = rerr
			break
		}
		ndef := st.ndef
		if ndef <= s.NumUnknowns {
			ctx.Diag.Printf(1, "Insufficient number (%d) of phases left\n", ndef)
			locerr = ErrInsufficientPhases
			break
		}
		nds[2], nds[1] = nds[1], nds[0]
		nds[0] = ndef

		if iter == 0 {
			nd = ndef
			prank = ndef
			g = AllocateFloatMatrix(nd, 4)
			d = make([]float64, nd)
			if cfg.DoCorrelatedErrors {
				dcov = GetDataCovarianceMatrix(phases, stalist, distmatrix, ctx.Aux.Vgram)
				if dcov == nil {
					locerr = ErrCannotAllocate
					break
				}
				w, prank, locerr = ProjectionMatrix(dcov, nd, 95.)
				if locerr != nil {
					break
				}
			}
		} else if st.ispchange || ndef > nd {
			// change in defining phase names or growth in the defining
			// set: reallocate and rebuild the covariance structure
			if nd != ndef {
				isconv = false
				nd = ndef
				g = AllocateFloatMatrix(nd, 4)
				d = make([]float64, nd)
			}
			if cfg.DoCorrelatedErrors {
				ctx.Diag.Printf(1, "    changes in defining phase names, recalculating projection matrix\n")
				dcov = GetDataCovarianceMatrix(phases, stalist, distmatrix, ctx.Aux.Vgram)
				if dcov == nil {
					locerr = ErrCannotAllocate
					break
				}
				w, prank, locerr = ProjectionMatrix(dcov, nd, 95.)
				if locerr != nil {
					break
				}
			} else {
				prank = ndef
			}
		} else if st.ischanged {
			// the defining set only shrank: the squeeze-out already kept
			// the covariance and projection matrices consistent
			isconv = false
			prank -= nd - ndef
			nd = ndef
			if !cfg.DoCorrelatedErrors {
				prank = ndef
			}
		}
		ispchange = false
		if prank < s.NumUnknowns {
			ctx.Diag.Printf(1, "Insufficient number of independent phases (%d, %d)\n",
				prank, s.NumUnknowns)
			locerr = ErrInsufficientPhases
			break
		}

		urms = buildGd(s, phases, nd, fixdepthfornow, g, d)
		if cfg.DoCorrelatedErrors {
			dnorm, wrms = projectGd(nd, m, prank, g, d, w)
		} else {
			dnorm, wrms = weightGd(phases, nd, m, g, d)
		}

		// the last sweep after convergence only refreshes urms and wrms
		if isconv || isdiv {
			break
		}

		// ||Gt d||
		gtdnorm := 0.
		for j := 0; j < m; j++ {
			gtd := 0.
			for i := 0; i < nd; i++ {
				gtd += g[i][j] * d[i]
			}
			gtdnorm += gtd * gtd
		}

		gd := mat.NewDense(nd, m, nil)
		for i := 0; i < nd; i++ {
			for j := 0; j < m; j++ {
				gd.Set(i, j, g[i][j])
			}
		}
		u, sv, v, serr := SVDDecompose(gd)
		if serr != nil {
			locerr = serr
			break
		}
		svundamped = append(svundamped[:0], sv...)
		vmat = v

		svth = SVDThreshold(nd, m, sv)
		nr := SVDRank(sv, svth)
		gnorm, cond := SVDNorm(sv, svth)
		if nr < m {
			ctx.Diag.Printf(1, "Singular G matrix (%d < %d)\n", nr, m)
			locerr = ErrSingularNormalEquations
			break
		}
		if cond > 30000. {
			ctx.Diag.Printf(1, "Abnormally ill-conditioned problem (cond=%.0f)\n", cond)
			locerr = ErrIllConditioned
			break
		}
		cnvgtst := convergenceTestValue(gtdnorm, gnorm, dnorm)

		// damping: 1% of the largest singular value for moderately
		// ill-conditioned problems, 5% and 10% for worse ones; the
		// undamped spectrum is kept for the covariance calculation
		if cfg.AllowDamping && cond > 30. {
			damp := 0.01
			if cond > 300. {
				damp = 0.05
			}
			if cond > 3000. {
				damp = 0.1
			}
			for j := 1; j < nr; j++ {
				sv[j] += sv[0] * damp
			}
			ctx.Diag.Printf(1, "    large condition number (%.3f): %.0f%% damping\n",
				cond, 100.*damp)
		}

		x, serr := SVDSolve(u, sv, v, d[:nd], svth)
		if serr != nil {
			locerr = serr
			break
		}
		copy(sol, x)

		mnorm := 0.
		for j := 0; j < m; j++ {
			mnorm += sol[j] * sol[j]
		}
		mnorm = math.Sqrt(mnorm)

		// scale down excessive perturbations
		dmax := 1000.
		if mnorm > dmax {
			scale := dmax / mnorm
			for j := 0; j < m; j++ {
				sol[j] *= scale
			}
			mnorm = dmax
			ctx.Diag.Printf(1, "    large perturbation: %g scaling applied\n", scale)
		}

		modelnorm[2], modelnorm[1] = modelnorm[1], modelnorm[0]
		convgtest[2], convgtest[1] = convgtest[1], convgtest[0]
		modelnorm[0] = mnorm
		convgtest[0] = cnvgtst
		if iter > cfg.MinIterations-1 {
			isconv, isdiv = convergenceTest(cfg, iter, m, nds, sol, oldsol,
				wrms, modelnorm, convgtest, &oldcvgtst, &step)
		}

		// update the hypocentre
		prevDepth = s.Depth
		i = 0
		if !s.Timfix {
			torg += sol[i]
			s.Time = torg + toffset
			i++
		}
		if !s.Epifix {
			azim := rad2deg * math.Atan2(sol[i], sol[i+1])
			delta := math.Sqrt(sol[i]*sol[i] + sol[i+1]*sol[i+1])
			delta = rad2deg * (delta / (EARTH_RADIUS - s.Depth))
			s.Lat, s.Lon = PointAtDeltaAzimuth(s.Lat, s.Lon, delta, azim)
			i += 2
		}
		if !fixdepthfornow {
			s.Depth -= sol[i]
		}
		mFinal = m
		ctx.Diag.Printf(1, "    ||m||=%.5f cnvgtst=%.5g cond=%.3f ndef=%d wrms=%.4f\n",
			mnorm, cnvgtst, cond, nd, wrms)
	}

	// report in delta order again
	SortPhasesFromDatabase(phases)

	if locerr != nil {
		s.Converged = false
		s.Diverging = isdiv
		return locerr
	}
	if iter >= cfg.MaxIterations {
		ctx.Diag.Printf(1, "    maximum number of iterations reached\n")
		s.Converged = false
		s.Diverging = true
		return ErrMaxIterationsReached
	}
	if isdiv {
		ctx.Diag.Printf(1, "    divergent solution\n")
		s.Converged = false
		s.Diverging = true
		return ErrDivergent
	}
	if !isconv {
		s.Converged = false
		s.Diverging = true
		return ErrDivergent
	}

	// convergent: store fit statistics and derive the model covariance
	s.Converged = true
	s.Diverging = false
	s.Urms = urms
	s.Wrms = wrms
	s.Prank = prank
	s.Ndef = nd
	if nd > mFinal {
		s.Sdobs = math.Sqrt(dnorm / float64(nd-mFinal))
	} else {
		s.Sdobs = wrms
	}

	m := mFinal
	if s.FixedDepthType == FIX_DEPTH_FREE && !s.Depfix && s.Depth < DEPSILON {
		fixdepthfornow = true
		s.FixedDepthType = FIX_DEPTH_BEYOND
		s.Depth = 0.
		m--
	}
	if s.FixedDepthType == FIX_DEPTH_FREE && !s.Depfix && s.Depth > cfg.MaxHypocenterDepth-DEPSILON {
		fixdepthfornow = true
		s.FixedDepthType = FIX_DEPTH_BEYOND
		s.Depth = cfg.MaxHypocenterDepth
		m--
	}
	s.NumUnknowns = m
	s.Depfix = s.Depfix || fixdepthfornow

	mcov := SVDModelCovariance(svundamped[:m], vmat, svth)
	storeModelCovariance(s, mcov, fixdepthfornow)
	Uncertainties(cfg, s)
	return nil
}

// crossedDiscontinuity reports whether the depth moved across the Moho or
// the Conrad between iterations.
func crossedDiscontinuity(cfg *Config, depth, prev float64) bool {
	return (depth > cfg.Moho && prev <= cfg.Moho) ||
		(depth < cfg.Moho && prev >= cfg.Moho) ||
		(depth > cfg.Conrad && prev <= cfg.Conrad) ||
		(depth < cfg.Conrad && prev >= cfg.Conrad)
}

// storeModelCovariance maps the m x m covariance of the free parameters
// into the solution's fixed 4 x 4 (t, x, y, z) layout.
func storeModelCovariance(s *Solution, mcov [4][4]float64, depthfixed bool) {
	if !s.Timfix {
		s.Covar[0][0] = mcov[0][0]
		if !s.Epifix {
			s.Covar[0][1] = mcov[0][1]
			s.Covar[0][2] = mcov[0][2]
			s.Covar[1][0] = mcov[1][0]
			s.Covar[1][1] = mcov[1][1]
			s.Covar[1][2] = mcov[1][2]
			s.Covar[2][0] = mcov[2][0]
			s.Covar[2][1] = mcov[2][1]
			s.Covar[2][2] = mcov[2][2]
			if !depthfixed {
				s.Covar[0][3] = mcov[0][3]
				s.Covar[1][3] = mcov[1][3]
				s.Covar[2][3] = mcov[2][3]
				s.Covar[3][0] = mcov[3][0]
				s.Covar[3][1] = mcov[3][1]
				s.Covar[3][2] = mcov[3][2]
				s.Covar[3][3] = mcov[3][3]
			}
		} else if !depthfixed {
			s.Covar[0][3] = mcov[0][1]
			s.Covar[3][0] = mcov[1][0]
			s.Covar[3][3] = mcov[1][1]
		}
	} else {
		if !s.Epifix {
			s.Covar[1][1] = mcov[0][0]
			s.Covar[1][2] = mcov[0][1]
			s.Covar[2][1] = mcov[1][0]
			s.Covar[2][2] = mcov[1][1]
			if !depthfixed {
				s.Covar[1][3] = mcov[0][2]
				s.Covar[2][3] = mcov[1][2]
				s.Covar[3][1] = mcov[2][0]
				s.Covar[3][2] = mcov[2][1]
				s.Covar[3][3] = mcov[2][2]
			}
		} else if !depthfixed {
			s.Covar[3][3] = mcov[0][0]
		}
	}
}

// Uncertainties derives the per-parameter uncertainties and the error
// ellipse from the model covariance, scaled to the configured confidence
// level with the chi-square quantile for the matching degrees of freedom.
func Uncertainties(cfg *Config, s *Solution) {
	p := cfg.ConfidenceLevel / 100.
	chi1 := distuv.ChiSquared{K: 1}.Quantile(p)
	chi2 := distuv.ChiSquared{K: 2}.Quantile(p)

	for i := 0; i < 4; i++ {
		if s.Covar[i][i] != NULLVAL && s.Covar[i][i] >= 0. {
			s.Error[i] = math.Sqrt(chi1 * s.Covar[i][i])
		} else {
			s.Error[i] = NULLVAL
		}
	}

	// error ellipse from the horizontal 2 x 2 block
	sxx, sxy, syy := s.Covar[1][1], s.Covar[1][2], s.Covar[2][2]
	if sxx == NULLVAL || syy == NULLVAL {
		return
	}
	tr := sxx + syy
	det := sxx*syy - sxy*sxy
	disc := tr*tr/4. - det
	if disc < 0. {
		disc = 0.
	}
	lam1 := tr/2. + math.Sqrt(disc)
	lam2 := tr/2. - math.Sqrt(disc)
	if lam1 < 0. {
		return
	}
	if lam2 < 0. {
		lam2 = 0.
	}
	s.Smajax = math.Sqrt(chi2 * lam1)
	s.Sminax = math.Sqrt(chi2 * lam2)

	// strike measured clockwise from north; x is east, y is north
	strike := rad2deg * 0.5 * math.Atan2(2.*sxy, syy-sxx)
	if strike < 0. {
		strike += 180.
	}
	if strike > 180. {
		strike -= 180.
	}
	s.Strike = strike
}
