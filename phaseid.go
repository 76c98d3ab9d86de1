package seisloc

import (
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// corePhases counted towards depth resolution
var corePhases = []string{"PKPdf", "PKiKP", "PcP", "ScS", "PKPab", "PKPbc"}

// depth phase candidates tried when temporarily identifying unnamed
// arrivals for reporting
var fakeDepthCandidates = []string{"pP", "sP", "pwP", "sS"}

// GetStalist builds the unique station list referenced by the phases.
// Returns ErrInvalidStation when a pick references a station with unknown
// coordinates.
func GetStalist(phases []Phase) ([]Station, error) {
	seen := make(map[string]int)
	stalist := make([]Station, 0, len(phases)/4+1)
	for i := range phases {
		p := &phases[i]
		if p.PriSta == "" || p.StaLat == NULLVAL || p.StaLon == NULLVAL {
			return nil, ErrInvalidStation
		}
		if _, ok := seen[p.PriSta]; ok {
			continue
		}
		seen[p.PriSta] = len(stalist)
		stalist = append(stalist, Station{
			Key:  p.PriSta,
			Lat:  p.StaLat,
			Lon:  p.StaLon,
			Elev: p.StaElev,
		})
	}
	return stalist, nil
}

// GetStationIndex finds the index of a station key in the station list,
// or -1.
func GetStationIndex(stalist []Station, key string) int {
	for i := range stalist {
		if stalist[i].Key == key {
			return i
		}
	}
	return -1
}

// Readings rebuilds the reading index after a sort: each reading records
// the start index and the number of consecutive phases sharing its id.
func Readings(phases []Phase) []Reading {
	var rdindx []Reading
	j := 0
	for j < len(phases) {
		rdid := phases[j].RdID
		start := j
		for j < len(phases) && phases[j].RdID == rdid {
			j++
		}
		rdindx = append(rdindx, Reading{Start: start, Npha: j - start})
	}
	return rdindx
}

// SortPhasesFromDatabase orders phases by delta, station, reading and
// time, the order used for reporting and magnitude aggregation. NULL
// times sort last within a reading. The sort is stable so that equal keys
// keep their source order.
func SortPhasesFromDatabase(phases []Phase) {
	sort.SliceStable(phases, func(i, j int) bool {
		if phases[i].Time != phases[j].Time {
			if phases[i].Time == NULLVAL {
				return false
			}
			if phases[j].Time == NULLVAL {
				return true
			}
			return phases[i].Time < phases[j].Time
		}
		return false
	})
	sort.SliceStable(phases, func(i, j int) bool { return phases[i].RdID < phases[j].RdID })
	sort.SliceStable(phases, func(i, j int) bool { return phases[i].PriSta < phases[j].PriSta })
	sort.SliceStable(phases, func(i, j int) bool { return phases[i].Delta < phases[j].Delta })
}

// SortPhasesForNA orders phases by the nearest-neighbour station order,
// reading and time so that the data covariance matrix becomes block
// diagonal phase by phase.
func SortPhasesForNA(phases []Phase, stalist []Station, staorder []StationOrder) {
	sort.SliceStable(phases, func(i, j int) bool {
		if phases[i].Time != phases[j].Time {
			if phases[i].Time == NULLVAL {
				return false
			}
			if phases[j].Time == NULLVAL {
				return true
			}
			return phases[i].Time < phases[j].Time
		}
		return false
	})
	sort.SliceStable(phases, func(i, j int) bool { return phases[i].RdID < phases[j].RdID })
	sort.SliceStable(phases, func(i, j int) bool {
		ki := GetStationIndex(stalist, phases[i].PriSta)
		kj := GetStationIndex(stalist, phases[j].PriSta)
		if ki < 0 || kj < 0 {
			return false
		}
		return staorder[ki].Index < staorder[kj].Index
	})
}

// phaseIDWindow is the time window within which a candidate prediction may
// claim an observation during identification.
func phaseIDWindow(cfg *Config, deltim float64) float64 {
	w := cfg.SigmaThreshold * deltim
	if w < 10. {
		w = 10.
	}
	if w > 60. {
		w = 60.
	}
	return w
}

// IdentifyPhases assigns an internal phase name to every observation
// against the trial hypocentre. For each arrival the reported name and
// its configured alternates are tried, the candidate whose prediction
// falls closest to the observed time within the identification window
// wins. First-arriving P and S per reading are flagged. Returns the
// number of time-defining observations.
func IdentifyPhases(ctx *Context, s *Solution, rdindx []Reading, phases []Phase) int {
	for ri := range rdindx {
		for i := rdindx[ri].Start; i < rdindx[ri].Start+rdindx[ri].Npha; i++ {
			p := &phases[i]
			identifyOne(ctx, s, p)
		}
	}
	markFirstArrivals(rdindx, phases)

	ndef := 0
	for i := range phases {
		if phases[i].Timedef {
			ndef++
		}
	}
	ctx.Diag.Printf(2, "    IdentifyPhases: %d time-defining phases\n", ndef)
	return ndef
}

// identifyOne picks the internal name for a single observation.
func identifyOne(ctx *Context, s *Solution, p *Phase) {
	cfg := ctx.Cfg
	if p.Time == NULLVAL {
		// amplitude-only arrivals keep the reported name and never become
		// time defining
		p.Phase = p.ReportedPhase
		p.Timedef = false
		return
	}
	if phaseWithoutResidual(cfg, p.ReportedPhase) {
		p.Phase = p.ReportedPhase
		p.Timedef = false
		return
	}

	candidates, ok := cfg.AllowablePhases[p.ReportedPhase]
	if !ok {
		candidates = []string{p.ReportedPhase}
	}

	window := phaseIDWindow(cfg, p.Deltim)
	best := ""
	bestres := NULLVAL
	saved := *p
	for _, cand := range candidates {
		p.Phase = cand
		if err := GetTravelTimePrediction(ctx, s, p, false, false, ForbidFirstArriving); err != nil {
			continue
		}
		res := math.Abs(p.Time - s.Time - p.Ttime)
		if res < bestres && res <= window {
			bestres = res
			best = cand
		}
	}
	*p = saved
	if best == "" {
		// unknown phase: keep the reported label, drop from defining
		p.Phase = ""
		p.Timedef = false
		return
	}
	p.Phase = best
	p.Timedef = p.Time != NULLVAL
	p.Azimdef = p.Azim != NULLVAL
	p.Slowdef = p.Slow != NULLVAL
}

// markFirstArrivals flags the first-arriving defining P and S in each
// reading.
func markFirstArrivals(rdindx []Reading, phases []Phase) {
	for ri := range rdindx {
		firstP, firstS := -1, -1
		for i := rdindx[ri].Start; i < rdindx[ri].Start+rdindx[ri].Npha; i++ {
			p := &phases[i]
			p.FirstP = false
			p.FirstS = false
			if !p.Timedef || p.Phase == "" {
				continue
			}
			// depth phases are never the first arrival
			if p.Phase[0] == 'p' || p.Phase[0] == 's' {
				continue
			}
			switch lastLag(p.Phase) {
			case 1:
				if firstP < 0 || phases[firstP].Time > p.Time {
					firstP = i
				}
			case 2:
				if firstS < 0 || phases[firstS].Time > p.Time {
					firstS = i
				}
			}
		}
		if firstP >= 0 {
			phases[firstP].FirstP = true
		}
		if firstS >= 0 {
			phases[firstS].FirstS = true
		}
	}
}

// ReIdentifyPhases reruns identification against an updated hypocentre.
// Reports whether any internal phase name changed, which forces the data
// covariance and projection matrices to be rebuilt.
func ReIdentifyPhases(ctx *Context, s *Solution, rdindx []Reading, phases []Phase) bool {
	prev := lo.Map(phases, func(p Phase, _ int) string { return p.Phase })
	IdentifyPhases(ctx, s, rdindx, phases)
	for i := range phases {
		if phases[i].Phase != prev[i] {
			return true
		}
	}
	return false
}

// duplicateWindow is the predicted-time proximity within which two picks
// of the same station and agency are treated as duplicates.
const duplicateWindow = 0.1

// DuplicatePhases detects duplicate picks: same station, same agency and
// predicted times within a narrow window. The later pick is dropped from
// the defining set.
func DuplicatePhases(ctx *Context, s *Solution, phases []Phase) {
	for i := range phases {
		if !phases[i].Timedef {
			continue
		}
		for j := i + 1; j < len(phases); j++ {
			if !phases[j].Timedef {
				continue
			}
			if phases[i].PriSta != phases[j].PriSta || phases[i].Agency != phases[j].Agency {
				continue
			}
			if phases[i].Phase != phases[j].Phase {
				continue
			}
			if math.Abs(phases[i].Ttime-phases[j].Ttime) < duplicateWindow {
				later := j
				if phases[i].Time > phases[j].Time {
					later = i
				}
				phases[later].Timedef = false
				phases[later].Duplicate = true
				ctx.Diag.Printf(3, "    duplicate %s %s dropped\n",
					phases[later].PriSta, phases[later].Phase)
			}
		}
	}
}

// DepthPhaseCheck flags the first-arriving P per reading, makes orphan
// depth phases (no defining first-arriving P in their reading)
// non-defining when updateDefining is set, and reports whether the event
// carries depth-phase depth resolution: at least MinDepthPhases defining
// depth phases reported by at least MinDepthPhaseAgencies agencies.
func DepthPhaseCheck(ctx *Context, s *Solution, rdindx []Reading, phases []Phase, updateDefining bool) bool {
	cfg := ctx.Cfg
	markFirstArrivals(rdindx, phases)

	ndepth := 0
	var agencies []string
	for ri := range rdindx {
		hasFirstP := false
		for i := rdindx[ri].Start; i < rdindx[ri].Start+rdindx[ri].Npha; i++ {
			if phases[i].FirstP {
				hasFirstP = true
			}
		}
		for i := rdindx[ri].Start; i < rdindx[ri].Start+rdindx[ri].Npha; i++ {
			p := &phases[i]
			p.HasDepthPhase = false
			if !isDepthPhase(p.Phase) {
				continue
			}
			if !hasFirstP {
				// orphan depth phase
				if updateDefining && p.Timedef {
					p.Timedef = false
					ctx.Diag.Printf(3, "    orphan depth phase %s %s made non-defining\n",
						p.PriSta, p.Phase)
				}
				continue
			}
			if p.Timedef {
				p.HasDepthPhase = true
				ndepth++
				agencies = append(agencies, p.Agency)
			}
		}
	}
	nagent := len(lo.Uniq(agencies))
	return ndepth >= cfg.MinDepthPhases && nagent >= cfg.MinDepthPhaseAgencies
}

// DepthResolution combines the non-depth-phase resolution criteria: local
// stations, S-P pairs and core reflections.
func DepthResolution(ctx *Context, s *Solution, rdindx []Reading, phases []Phase) bool {
	cfg := ctx.Cfg

	nlocal := 0
	var localStas []string
	for i := range phases {
		if phases[i].Timedef && phases[i].Delta <= cfg.MaxLocalDistDeg {
			localStas = append(localStas, phases[i].PriSta)
		}
	}
	nlocal = len(lo.Uniq(localStas))
	if nlocal >= cfg.MinLocalStations {
		return true
	}

	nsp := 0
	for ri := range rdindx {
		hasP, hasS := false, false
		for i := rdindx[ri].Start; i < rdindx[ri].Start+rdindx[ri].Npha; i++ {
			p := &phases[i]
			if !p.Timedef || p.Delta > cfg.MaxSPDistDeg || p.Phase == "" {
				continue
			}
			if p.Phase[0] == 'p' || p.Phase[0] == 's' {
				continue
			}
			switch lastLag(p.Phase) {
			case 1:
				hasP = true
			case 2:
				hasS = true
			}
		}
		if hasP && hasS {
			nsp++
		}
	}
	if nsp >= cfg.MinSPpairs {
		return true
	}

	ncore := 0
	for i := range phases {
		if phases[i].Timedef && lo.Contains(corePhases, phases[i].Phase) {
			ncore++
		}
	}
	return ncore >= cfg.MinCorePhases
}

// IdentifyPFAKE temporarily identifies unnamed arrivals as depth phases
// so that the final residual pass can report a residual for them. The
// assignments are marked and stripped again by RemovePFAKE.
func IdentifyPFAKE(ctx *Context, s *Solution, phases []Phase) {
	cfg := ctx.Cfg
	for i := range phases {
		p := &phases[i]
		if p.Phase != "" || p.Time == NULLVAL {
			continue
		}
		if phaseWithoutResidual(cfg, p.ReportedPhase) {
			continue
		}
		saved := *p
		best := ""
		bestres := NULLVAL
		for _, cand := range fakeDepthCandidates {
			p.Phase = cand
			if err := GetTravelTimePrediction(ctx, s, p, false, false, ForbidFirstArriving); err != nil {
				continue
			}
			res := math.Abs(p.Time - s.Time - p.Ttime)
			if res < bestres && res <= phaseIDWindow(cfg, p.Deltim) {
				bestres = res
				best = cand
			}
		}
		*p = saved
		if best != "" {
			p.Phase = best
			p.fake = true
		}
	}
}

// RemovePFAKE strips the temporary depth-phase identifications again.
func RemovePFAKE(phases []Phase) {
	for i := range phases {
		if phases[i].fake {
			phases[i].Phase = ""
			phases[i].fake = false
			phases[i].Timedef = false
		}
	}
}

// isDepthPhase reports whether the internal name is a depth phase.
func isDepthPhase(phase string) bool {
	return len(phase) > 1 && (strings.HasPrefix(phase, "p") || strings.HasPrefix(phase, "s"))
}
