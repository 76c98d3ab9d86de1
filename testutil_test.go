package seisloc

import (
	"io"
	"math"
)

// test velocity of the homogeneous half-space model backing the synthetic
// travel-time tables
const testVel = 8.0

// analyticTT is the direct-wave travel time of the synthetic model.
func analyticTT(delta, depth float64) float64 {
	x := delta * DEG2KM
	return math.Sqrt(x*x+depth*depth) / testVel
}

// makeTestTable builds a synthetic travel-time table over a regular
// (delta, depth) grid. When depthPhase is set the table carries the extra
// two-leg surface reflection time and a bounce point distance matrix.
func makeTestTable(phase string, depthPhase bool) TTTable {
	deltas := make([]float64, 0, 56)
	for d := 0.; d <= 110.; d += 2. {
		deltas = append(deltas, d)
	}
	depths := make([]float64, 0, 29)
	for h := 0.; h <= 700.; h += 25. {
		depths = append(depths, h)
	}

	tbl := TTTable{
		Phase:    phase,
		IsBounce: depthPhase,
		Deltas:   deltas,
		Depths:   depths,
		TT:       AllocateFloatMatrix(len(deltas), len(depths)),
		Dtdd:     AllocateFloatMatrix(len(deltas), len(depths)),
		Dtdh:     AllocateFloatMatrix(len(deltas), len(depths)),
	}
	if depthPhase {
		tbl.Bpdel = AllocateFloatMatrix(len(deltas), len(depths))
	}
	for i, dd := range deltas {
		for j, h := range depths {
			x := dd * DEG2KM
			r := math.Sqrt(x*x + h*h)
			tbl.TT[i][j] = r / testVel
			if r > DEPSILON {
				tbl.Dtdd[i][j] = DEG2KM * DEG2KM * dd / (testVel * r)
				tbl.Dtdh[i][j] = h / (testVel * r)
			}
			if depthPhase {
				tbl.TT[i][j] += h / (testVel / 2.)
				tbl.Dtdh[i][j] += 2. / testVel
				tbl.Bpdel[i][j] = 0.001 * dd * (h + 1.)
			}
		}
	}
	return tbl
}

// makeTestTTSet assembles the synthetic table set with composite
// first-arriving entries.
func makeTestTTSet() *TTTableSet {
	phases := []string{"firstP", "firstS", "P", "S", "pP"}
	ts := &TTTableSet{
		Tables: make([]TTTable, len(phases)),
		index:  make(map[string]int, len(phases)),
	}
	for i, ph := range phases {
		ts.index[ph] = i
		ts.Tables[i] = makeTestTable(ph, ph == "pP")
	}
	return ts
}

// makeTestVariogram is a simple exponential-ish variogram for the
// correlated error tests.
func makeTestVariogram() *Variogram {
	dist := make([]float64, 0, 41)
	gamma := make([]float64, 0, 41)
	for d := 0.; d <= 4000.; d += 100. {
		dist = append(dist, d)
		gamma = append(gamma, 4.*(1.-math.Exp(-d/1000.)))
	}
	return &Variogram{
		N:      len(dist),
		MaxSep: 4000.,
		Sill:   4.,
		Nugget: 0.,
		Dist:   dist,
		Gamma:  gamma,
	}
}

// makeTestContext builds a context over the synthetic tables with the
// grid search disabled for determinism and speed.
func makeTestContext() *Context {
	cfg := DefaultConfig()
	cfg.DoGridSearch = false
	cfg.DoCorrelatedErrors = false
	aux := &AuxData{
		TT:    makeTestTTSet(),
		Vgram: makeTestVariogram(),
	}
	return NewContext(cfg, aux, &Diagnostics{Level: 0, Out: io.Discard})
}

// makeClusterEvent synthesises an event: stations on rings around the
// true hypocentre with P arrivals consistent with the synthetic model.
// Azimuths and distances are spread so the geometry is well conditioned.
func makeClusterEvent(trueLat, trueLon, trueDepth, trueOT float64, nsta int) *Event {
	e := &Event{
		EvID:     1,
		PrefOrid: 1,
		Hypos: []Hypocenter{{
			HypID:  1,
			Agency: "TEST",
			Time:   trueOT + 2.0,
			Lat:    trueLat + 0.3,
			Lon:    trueLon - 0.2,
			Depth:  trueDepth + 5.,
		}},
	}
	for i := 0; i < nsta; i++ {
		az := float64(i) * 360. / float64(nsta)
		delta := 30. + float64(i%7)*10.
		slat, slon := PointAtDeltaAzimuth(trueLat, trueLon, delta, az)
		d, _, _ := DistAzimuth(trueLat, trueLon, slat, slon)
		e.Phases = append(e.Phases, Phase{
			PhaseID:       i + 1,
			RdID:          i + 1,
			Sta:           staName(i),
			PriSta:        staName(i),
			Agency:        "TEST",
			StaLat:        slat,
			StaLon:        slon,
			StaElev:       0.,
			ReportedPhase: "P",
			Phase:         "P",
			Time:          trueOT + analyticTT(d, trueDepth),
			Azim:          NULLVAL,
			Slow:          NULLVAL,
			Deltim:        1.0,
			Timedef:       true,
		})
	}
	return e
}

func staName(i int) string {
	letters := "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	return "S" + string(letters[i%26]) + string(letters[(i/26)%26])
}
