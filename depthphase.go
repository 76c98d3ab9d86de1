package seisloc

import (
	"math"
	"sort"
)

// DepthPhaseStack estimates the depth from the depth-phase arrivals. For
// every defining depth phase with a first-arriving P in its reading, the
// observed depth-phase moveout (t_depthphase - t_P) is compared against
// the moveout predicted at the observation's delta for a scan of trial
// depths; the matching depth is the phase's depth estimate. The
// depth-phase depth is the median of the estimates and its error the
// scaled median absolute deviation. Populates s.Depdp, s.DepdpError and
// s.Ndp when at least MinDepthPhases estimates exist.
func DepthPhaseStack(ctx *Context, s *Solution, rdindx []Reading, phases []Phase) {
	cfg := ctx.Cfg
	s.Depdp = NULLVAL
	s.DepdpError = NULLVAL
	s.Ndp = 0

	var estimates []float64
	for ri := range rdindx {
		firstP := -1
		for i := rdindx[ri].Start; i < rdindx[ri].Start+rdindx[ri].Npha; i++ {
			if phases[i].FirstP {
				firstP = i
				break
			}
		}
		if firstP < 0 || phases[firstP].Time == NULLVAL {
			continue
		}
		for i := rdindx[ri].Start; i < rdindx[ri].Start+rdindx[ri].Npha; i++ {
			p := &phases[i]
			if !p.HasDepthPhase || !p.Timedef || p.Time == NULLVAL {
				continue
			}
			moveout := p.Time - phases[firstP].Time
			if moveout <= 0. {
				continue
			}
			est := stackOneDepthPhase(ctx, p, &phases[firstP], moveout)
			if est != NULLVAL {
				estimates = append(estimates, est)
			}
		}
	}
	if len(estimates) < cfg.MinDepthPhases {
		return
	}

	sort.Float64s(estimates)
	s.Ndp = len(estimates)
	s.Depdp = median(estimates)

	adev := make([]float64, len(estimates))
	for i, e := range estimates {
		adev[i] = math.Abs(e - s.Depdp)
	}
	sort.Float64s(adev)
	s.DepdpError = 1.4826 * median(adev)
}

// stackOneDepthPhase scans the trial depth axis for the depth whose
// predicted depth-phase moveout matches the observed one. The depth
// phase's bounce geometry requires a valid horizontal slowness; trials
// where either table has no arrival are skipped.
func stackOneDepthPhase(ctx *Context, dp, first *Phase, moveout float64) float64 {
	tt := ctx.Aux.TT
	dpTable := tt.Get(dp.Phase)
	pTable := tt.Get(first.Phase)
	if dpTable == nil || pTable == nil {
		return NULLVAL
	}

	const step = 1.0
	best := NULLVAL
	bestdiff := NULLVAL
	for depth := 0.; depth <= ctx.Cfg.MaxHypocenterDepth; depth += step {
		tdp, dtdd, _, _, _, _ := dpTable.GetValue(depth, dp.Delta, false, false)
		if tdp < 0. || math.Abs(dtdd) < DEPSILON {
			continue
		}
		tp, _, _, _, _, _ := pTable.GetValue(depth, first.Delta, false, false)
		if tp < 0. {
			continue
		}
		diff := math.Abs((tdp - tp) - moveout)
		if diff < bestdiff {
			bestdiff = diff
			best = depth
		}
	}
	// reject estimates whose moveout never came close
	if bestdiff > 5. {
		return NULLVAL
	}
	return best
}

// median of a sorted slice.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return NULLVAL
	}
	m := n / 2
	if n%2 == 1 {
		return sorted[m]
	}
	return 0.5 * (sorted[m-1] + sorted[m])
}
