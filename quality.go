package seisloc

import (
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// local network radius for the GT5 candidate test, km
const GT5_LOCAL_DIST_KM = 150.

// NetworkQuality is the azimuthal coverage summary of a station network.
type NetworkQuality struct {
	Gap     float64
	Sgap    float64
	Du      float64
	Ndef    int
	Ndefsta int
	Mindist float64
	Maxdist float64
}

// LocationQuality aggregates the coverage metrics for the full network
// and for the local network, plus the ground-truth candidate flag of
// Bondar and McLaughlin (2009).
type LocationQuality struct {
	FullNetwork      NetworkQuality
	LocalNetwork     NetworkQuality
	NumStaWithin10km int
	GT5Candidate     bool
}

// GetLocationQuality computes the quality metrics from the defining
// phases of a converged solution; the count of stations within 10 km
// uses every associated phase.
func GetLocationQuality(cfg *Config, phases []Phase) LocationQuality {
	var q LocationQuality

	defining := lo.Filter(phases, func(p Phase, _ int) bool { return p.Timedef || p.Azimdef || p.Slowdef })
	q.FullNetwork = networkQuality(defining)

	local := lo.Filter(defining, func(p Phase, _ int) bool { return p.Delta*DEG2KM <= GT5_LOCAL_DIST_KM })
	q.LocalNetwork = networkQuality(local)

	stas10 := lo.Filter(phases, func(p Phase, _ int) bool { return p.Delta*DEG2KM <= 10. })
	q.NumStaWithin10km = len(lo.UniqBy(stas10, func(p Phase) string { return p.PriSta }))

	q.GT5Candidate = q.LocalNetwork.Ndefsta >= cfg.GT5MinDefiningStations &&
		q.LocalNetwork.Ndef >= cfg.GT5MinDefiningPhases &&
		q.LocalNetwork.Sgap <= cfg.GT5MaxSecondaryGap &&
		q.LocalNetwork.Du <= cfg.GT5MaxCoverageMetric

	return q
}

// networkQuality computes gap, secondary gap, the coverage distribution
// metric and distance range for a set of defining phases.
func networkQuality(defining []Phase) NetworkQuality {
	q := NetworkQuality{
		Gap:     360.,
		Sgap:    360.,
		Mindist: NULLVAL,
		Maxdist: -NULLVAL,
	}
	q.Ndef = len(defining)
	q.Ndefsta = len(lo.UniqBy(defining, func(p Phase) string { return p.PriSta }))
	if len(defining) == 0 {
		q.Mindist = NULLVAL
		q.Maxdist = NULLVAL
		return q
	}

	esaz := make([]float64, 0, len(defining))
	for i := range defining {
		esaz = append(esaz, defining[i].Esaz)
		if defining[i].Delta < q.Mindist {
			q.Mindist = defining[i].Delta
		}
		if defining[i].Delta > q.Maxdist {
			q.Maxdist = defining[i].Delta
		}
	}
	sort.Float64s(esaz)
	n := len(esaz)
	if n < 2 {
		return q
	}

	gaps := make([]float64, n)
	for i := 1; i < n; i++ {
		gaps[i-1] = esaz[i] - esaz[i-1]
	}
	gaps[n-1] = 360. - esaz[n-1] + esaz[0]

	q.Gap = lo.Max(gaps)
	sgap := 0.
	for i := 0; i < n; i++ {
		two := gaps[i] + gaps[(i+1)%n]
		if two > sgap {
			sgap = two
		}
	}
	q.Sgap = sgap

	// coverage distribution metric: mean absolute deviation of the sorted
	// azimuths from a uniform distribution, normalised to [0, 1]
	dev := make([]float64, n)
	for i := 0; i < n; i++ {
		u := esaz[0] + 360.*float64(i)/float64(n)
		d := esaz[i] - u
		for d > 180. {
			d -= 360.
		}
		for d < -180. {
			d += 360.
		}
		if d < 0. {
			d = -d
		}
		dev[i] = d
	}
	q.Du = stat.Mean(dev, nil) / 180. * 2.

	return q
}
