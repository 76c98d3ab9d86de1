package seisloc

import (
	"math"
	"sort"

	"github.com/samber/lo"
)

// magnitude type ids
const (
	MTYPE_MB  = 1
	MTYPE_MS  = 2
	MTYPE_ML  = 3
	MTYPE_MBB = 4
)

var magTypeNames = map[int]string{
	MTYPE_MB:  "mb",
	MTYPE_MS:  "MS",
	MTYPE_ML:  "ML",
	MTYPE_MBB: "mB",
}

// NetworkMagnitudes computes the mb, MS, ML and mB network magnitudes
// from the amplitude measurements attached to the phases. Station
// magnitudes are medians of reading magnitudes, network magnitudes are
// 20% alpha-trimmed medians of station magnitudes with a MAD-based
// uncertainty. Station rows are produced even when the network magnitude
// fails the MinNetmagSta requirement.
func NetworkMagnitudes(ctx *Context, s *Solution, rdindx []Reading, phases []Phase) (stamags, rdmags []StationMagnitude, mszh []MSZH) {
	s.Mags = nil
	s.Nstamag = 0
	s.Nnetmag = 0
	for _, mtypeid := range []int{MTYPE_MB, MTYPE_MS, MTYPE_ML, MTYPE_MBB} {
		if mtypeid == MTYPE_MS && s.Depth > ctx.Cfg.MSMaxDepth {
			continue
		}
		netmag, sm, rm, zh := getNetmag(ctx, s, rdindx, phases, mtypeid)
		stamags = append(stamags, sm...)
		rdmags = append(rdmags, rm...)
		mszh = append(mszh, zh...)
		s.Nstamag += len(sm)
		if netmag != nil {
			s.Mags = append(s.Mags, *netmag)
			s.Nnetmag++
		}
	}
	return stamags, rdmags, mszh
}

// getNetmag aggregates one magnitude type: reading magnitudes, station
// medians, then the alpha-trimmed network median.
func getNetmag(ctx *Context, s *Solution, rdindx []Reading, phases []Phase, mtypeid int) (*NetMagnitude, []StationMagnitude, []StationMagnitude, []MSZH) {
	cfg := ctx.Cfg
	var rdmag []StationMagnitude
	var mszh []MSZH

	for ri := range rdindx {
		start := rdindx[ri].Start
		end := start + rdindx[ri].Npha
		var readingMag float64
		var zh MSZH
		switch mtypeid {
		case MTYPE_MB:
			readingMag = getStationmb(ctx, s, phases, start, end)
		case MTYPE_MS:
			readingMag, zh = getStationMS(ctx, s, phases, start, end)
		case MTYPE_ML:
			readingMag = getStationML(ctx, s, phases, start, end)
		case MTYPE_MBB:
			readingMag = getStationmB(ctx, s, phases, start, end)
		default:
			continue
		}
		if readingMag <= -999. {
			continue
		}
		rdmag = append(rdmag, StationMagnitude{
			RdID:      phases[start].RdID,
			Sta:       phases[start].Sta,
			PriSta:    phases[start].PriSta,
			Deploy:    phases[start].Deploy,
			Lcn:       phases[start].Lcn,
			Agency:    phases[start].Agency,
			Magtype:   magTypeNames[mtypeid],
			MtypeID:   mtypeid,
			Magnitude: readingMag,
		})
		if mtypeid == MTYPE_MS {
			zh.RdID = phases[start].RdID
			mszh = append(mszh, zh)
		}
	}
	if len(rdmag) == 0 {
		return nil, nil, nil, nil
	}

	nagent := len(lo.UniqBy(rdmag, func(m StationMagnitude) string { return m.Agency }))
	if nagent == 0 {
		nagent = 1
	}

	// station magnitude: median of the reading magnitudes per station,
	// with a stable station-key tie break
	sort.SliceStable(rdmag, func(i, j int) bool { return rdmag[i].Magnitude < rdmag[j].Magnitude })
	sort.SliceStable(rdmag, func(i, j int) bool { return rdmag[i].Sta < rdmag[j].Sta })

	var stamag []StationMagnitude
	for i := 0; i < len(rdmag); {
		j := i
		for j < len(rdmag) && rdmag[j].Sta == rdmag[i].Sta {
			j++
		}
		n := j - i
		m := n / 2
		var med float64
		if n%2 == 1 {
			med = rdmag[i+m].Magnitude
			rdmag[i+m].Magdef = true
		} else {
			med = 0.5 * (rdmag[i+m-1].Magnitude + rdmag[i+m].Magnitude)
			rdmag[i+m-1].Magdef = true
			rdmag[i+m].Magdef = true
		}
		sm := rdmag[i]
		sm.Magnitude = med
		sm.Magdef = false
		stamag = append(stamag, sm)
		i = j
	}

	if len(stamag) < cfg.MinNetmagSta {
		ctx.Diag.Printf(2, "    %s: insufficient number of stations (%d)\n",
			magTypeNames[mtypeid], len(stamag))
		return nil, stamag, rdmag, mszh
	}

	// network magnitude: alpha-trimmed median, alpha = 20%
	sort.SliceStable(stamag, func(i, j int) bool { return stamag[i].Sta < stamag[j].Sta })
	sort.SliceStable(stamag, func(i, j int) bool { return stamag[i].Magnitude < stamag[j].Magnitude })
	nsta := len(stamag)
	med := 0.
	if nsta%2 == 1 {
		med = stamag[nsta/2].Magnitude
	} else {
		med = 0.5 * (stamag[nsta/2-1].Magnitude + stamag[nsta/2].Magnitude)
	}

	trim := int(math.Floor(0.2 * float64(nsta)))
	minMag := stamag[trim].Magnitude
	maxMag := stamag[nsta-trim-1].Magnitude

	adev := make([]float64, 0, nsta-2*trim)
	for i := trim; i < nsta-trim; i++ {
		adev = append(adev, math.Abs(stamag[i].Magnitude-med))
		stamag[i].Magdef = true
	}
	sort.Float64s(adev)
	smad := 1.4826 * median(adev)

	if maxMag-minMag > cfg.MagnitudeRangeLimit {
		ctx.Diag.Printf(1, "WARNING: %s RANGE %.1f - %.1f\n",
			magTypeNames[mtypeid], minMag, maxMag)
	}

	return &NetMagnitude{
		Magtype:     magTypeNames[mtypeid],
		MtypeID:     mtypeid,
		Magnitude:   med,
		Uncertainty: smad,
		Nass:        len(rdmag),
		Nsta:        nsta,
		Nagency:     nagent,
	}, stamag, rdmag, mszh
}

// magTimeResidualOK rejects phases whose time residual disqualifies their
// amplitudes; amplitude-only phases carry no residual expectation.
func magTimeResidualOK(cfg *Config, p *Phase) bool {
	if phaseWithoutResidual(cfg, p.Phase) {
		return true
	}
	return p.Timeres != NULLVAL && math.Abs(p.Timeres) <= cfg.MagMaxTimeResidual
}

// getStationmb computes the reading mb from the amplitude/period pair
// maximising A/T on the vertical component:
//
//	mb = log10(max(A/T)) + Q(delta, h)
//
// With no usable pair it falls back to the maximal reported log(A/T).
func getStationmb(ctx *Context, s *Solution, phases []Phase, start, end int) float64 {
	cfg := ctx.Cfg
	q := ctx.Aux.MagQ
	delta := phases[start].Delta
	if delta < cfg.MbMinDistDeg || delta > cfg.MbMaxDistDeg {
		return -999.
	}

	peakToPeak := q != nil && q.Kind == MAGQ_VEITH_CLAWSON

	bestPha, bestAmp := -1, -1
	maxat := -999.
	for i := start; i < end; i++ {
		p := &phases[i]
		if len(p.Amps) == 0 || p.Phase == "AMB" {
			continue
		}
		if !lo.Contains(cfg.MBPhases, p.Phase) {
			continue
		}
		if !magTimeResidualOK(cfg, p) {
			continue
		}
		for j := range p.Amps {
			a := &p.Amps[j]
			if a.Comp == 'N' || a.Comp == 'E' {
				continue
			}
			if a.Period < cfg.MbMinPeriod || a.Period > cfg.MbMaxPeriod {
				continue
			}
			if math.Abs(a.Amp) < DEPSILON || a.Amp == NULLVAL ||
				math.Abs(a.Period) < DEPSILON || a.Period == NULLVAL {
				continue
			}
			if a.Magtype != "" && a.Magtype != "mb" {
				continue
			}
			amp := a.Amp
			if peakToPeak {
				amp *= 2.
			}
			apert := amp / a.Period
			if apert > maxat {
				maxat = apert
				bestPha, bestAmp = i, j
			}
			a.Magnitude = math.Log10(apert) + GetMagnitudeQ(q, delta, s.Depth)
			a.Ampdef = false
			if a.Magtype == "" {
				a.Magtype = "mb"
			}
			a.MtypeID = MTYPE_MB
		}
	}
	if bestPha >= 0 {
		phases[bestPha].Amps[bestAmp].Ampdef = true
		return phases[bestPha].Amps[bestAmp].Magnitude
	}

	// no amplitude/period pairs: fall back to reported logat values
	maxat = -999.
	for i := start; i < end; i++ {
		p := &phases[i]
		if len(p.Amps) == 0 || p.Phase == "AMB" {
			continue
		}
		if !lo.Contains(cfg.MBPhases, p.Phase) {
			continue
		}
		for j := range p.Amps {
			a := &p.Amps[j]
			if a.Logat == NULLVAL || a.Logat == 0. {
				continue
			}
			if a.Magtype != "" && a.Magtype != "mb" {
				continue
			}
			a.Magnitude = a.Logat + GetMagnitudeQ(q, delta, s.Depth)
			a.Ampdef = false
			if a.Magtype == "" {
				a.Magtype = "mb"
			}
			a.MtypeID = MTYPE_MB
			if a.Logat > maxat {
				maxat = a.Logat
				bestPha, bestAmp = i, j
			}
		}
	}
	if bestPha >= 0 {
		phases[bestPha].Amps[bestAmp].Ampdef = true
		return phases[bestPha].Amps[bestAmp].Magnitude
	}
	return -999.
}

// getStationmB computes the broadband body-wave magnitude for a reading:
//
//	mB = log10(max(A / 2 pi)) + Q(delta, h)
//
// Broadband velocity amplitudes carry no period selection window.
func getStationmB(ctx *Context, s *Solution, phases []Phase, start, end int) float64 {
	cfg := ctx.Cfg
	q := ctx.Aux.MagQ
	delta := phases[start].Delta
	if delta < cfg.BBmBMinDistDeg || delta > cfg.BBmBMaxDistDeg {
		return -999.
	}

	bestPha, bestAmp := -1, -1
	maxat := -999.
	for i := start; i < end; i++ {
		p := &phases[i]
		if len(p.Amps) == 0 {
			continue
		}
		if !lo.Contains(cfg.MBPhases, p.Phase) {
			continue
		}
		if !magTimeResidualOK(cfg, p) {
			continue
		}
		for j := range p.Amps {
			a := &p.Amps[j]
			if a.Comp == 'N' || a.Comp == 'E' {
				continue
			}
			if math.Abs(a.Amp) < DEPSILON || a.Amp == NULLVAL {
				continue
			}
			if a.Magtype != "" && a.Magtype != "mB" {
				continue
			}
			apert := a.Amp / (2. * math.Pi)
			if apert > maxat {
				maxat = apert
				bestPha, bestAmp = i, j
			}
			a.Magnitude = math.Log10(apert) + GetMagnitudeQ(q, delta, s.Depth)
			a.Ampdef = false
			a.Magtype = "mB"
			a.MtypeID = MTYPE_MBB
		}
	}
	if bestPha >= 0 {
		phases[bestPha].Amps[bestAmp].Ampdef = true
		return phases[bestPha].Amps[bestAmp].Magnitude
	}
	return -999.
}

// getStationMS computes the surface-wave reading magnitude with the
// Prague formula of Vanek et al. (1962):
//
//	MS = log10(A/T) + 1.66 log10(delta) + 0.3
//
// The vertical MS comes from the Z component max(A/T); the horizontal MS
// combines the N and E maxima within MSPeriodRange seconds of the Z
// period as sqrt(max(A_N/T_N)^2 + max(A_E/T_E)^2), doubling a lone
// component. The reading MS averages the two when both exist.
func getStationMS(ctx *Context, s *Solution, phases []Phase, start, end int) (float64, MSZH) {
	cfg := ctx.Cfg
	delta := phases[start].Delta
	zh := MSZH{MSZ: NULLVAL, MSH: NULLVAL}
	if delta < cfg.MSMinDistDeg || delta > cfg.MSMaxDistDeg {
		return -999., zh
	}

	type pick struct {
		pha, amp int
		apert    float64
		period   float64
	}
	best := map[byte]pick{}

	consider := func(comp byte, zperiod float64) {
		for i := start; i < end; i++ {
			p := &phases[i]
			if len(p.Amps) == 0 {
				continue
			}
			if !lo.Contains(cfg.MSPhases, p.Phase) {
				continue
			}
			if !magTimeResidualOK(cfg, p) {
				continue
			}
			for j := range p.Amps {
				a := &p.Amps[j]
				if a.Comp != comp {
					continue
				}
				if a.Period < cfg.MSMinPeriod || a.Period > cfg.MSMaxPeriod {
					continue
				}
				if zperiod != NULLVAL && math.Abs(a.Period-zperiod) > cfg.MSPeriodRange {
					continue
				}
				if math.Abs(a.Amp) < DEPSILON || a.Amp == NULLVAL ||
					math.Abs(a.Period) < DEPSILON || a.Period == NULLVAL {
					continue
				}
				apert := a.Amp / a.Period
				if b, ok := best[comp]; !ok || apert > b.apert {
					best[comp] = pick{i, j, apert, a.Period}
				}
			}
		}
	}

	consider('Z', NULLVAL)
	zperiod := NULLVAL
	if b, ok := best['Z']; ok {
		zperiod = b.period
	}
	consider('N', zperiod)
	consider('E', zperiod)

	prague := func(apert float64) float64 {
		return math.Log10(apert) + 1.66*math.Log10(delta) + 0.3
	}

	if b, ok := best['Z']; ok {
		zh.MSZ = prague(b.apert)
		a := &phases[b.pha].Amps[b.amp]
		a.Magnitude = zh.MSZ
		a.Magtype = "MS"
		a.MtypeID = MTYPE_MS
		a.Ampdef = true
	}
	bn, hasN := best['N']
	be, hasE := best['E']
	switch {
	case hasN && hasE:
		zh.MSH = prague(math.Sqrt(bn.apert*bn.apert + be.apert*be.apert))
	case hasN:
		zh.MSH = prague(math.Sqrt(2. * bn.apert * bn.apert))
	case hasE:
		zh.MSH = prague(math.Sqrt(2. * be.apert * be.apert))
	}
	for _, b := range []struct {
		p  pick
		ok bool
	}{{bn, hasN}, {be, hasE}} {
		if !b.ok {
			continue
		}
		a := &phases[b.p.pha].Amps[b.p.amp]
		a.Magnitude = zh.MSH
		a.Magtype = "MS"
		a.MtypeID = MTYPE_MS
		a.Ampdef = true
	}

	switch {
	case zh.MSZ != NULLVAL && zh.MSH != NULLVAL:
		return 0.5 * (zh.MSZ + zh.MSH), zh
	case zh.MSZ != NULLVAL:
		return zh.MSZ, zh
	case zh.MSH != NULLVAL:
		return zh.MSH, zh
	}
	return -999., zh
}

// getStationML computes the local magnitude for a reading with the
// Hutton and Boore (1987) attenuation:
//
//	ML = log10(A) + 1.11 log10(r) + 0.00189 r - 2.09
//
// where r is the hypocentral distance in km, limited to MLMaxDistkm.
func getStationML(ctx *Context, s *Solution, phases []Phase, start, end int) float64 {
	cfg := ctx.Cfg
	distkm := phases[start].Delta * DEG2KM
	r := math.Sqrt(distkm*distkm + s.Depth*s.Depth)
	if r > cfg.MLMaxDistkm || r < DEPSILON {
		return -999.
	}

	bestPha, bestAmp := -1, -1
	maxamp := -999.
	for i := start; i < end; i++ {
		p := &phases[i]
		if len(p.Amps) == 0 {
			continue
		}
		if !lo.Contains(cfg.MLPhases, p.Phase) {
			continue
		}
		if !magTimeResidualOK(cfg, p) {
			continue
		}
		for j := range p.Amps {
			a := &p.Amps[j]
			if math.Abs(a.Amp) < DEPSILON || a.Amp == NULLVAL {
				continue
			}
			if a.Magtype != "" && a.Magtype != "ML" {
				continue
			}
			if a.Amp > maxamp {
				maxamp = a.Amp
				bestPha, bestAmp = i, j
			}
			a.Magnitude = math.Log10(a.Amp) + 1.11*math.Log10(r) + 0.00189*r - 2.09
			a.Ampdef = false
			a.Magtype = "ML"
			a.MtypeID = MTYPE_ML
		}
	}
	if bestPha >= 0 {
		phases[bestPha].Amps[bestAmp].Ampdef = true
		return phases[bestPha].Amps[bestAmp].Magnitude
	}
	return -999.
}
