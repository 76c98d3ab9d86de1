package seisloc

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// AssignCovIndices numbers the defining observations into the row/column
// layout of the data covariance matrix: the time block first, then the
// azimuth block, then the slowness block. Returns the total number of
// defining observations.
func AssignCovIndices(phases []Phase) int {
	k := 0
	for i := range phases {
		if phases[i].Timedef {
			phases[i].CovIndTime = k
			k++
		}
	}
	for i := range phases {
		if phases[i].Azimdef {
			phases[i].CovIndAzim = k
			k++
		}
	}
	for i := range phases {
		if phases[i].Slowdef {
			phases[i].CovIndSlow = k
			k++
		}
	}
	return k
}

// GetDataCovarianceMatrix builds the ndef x ndef data covariance matrix.
// Within a block (time, azimuth, slowness), two observations of the same
// phase name covary by sill - gamma(d) where d is the station separation;
// across phase names and across blocks the off-diagonal is zero. The
// diagonal carries the per-observation prior variance added to the
// modelled variance. The phases must already be sorted into the
// clustered station order so that the matrix is block-diagonal up to
// small leakage.
func GetDataCovarianceMatrix(phases []Phase, stalist []Station, distmatrix [][]float64, vgram *Variogram) [][]float64 {
	ndef := AssignCovIndices(phases)
	if ndef == 0 {
		return nil
	}
	dcov := AllocateFloatMatrix(ndef, ndef)

	type entry struct {
		row   int
		sta   int
		phase string
		prior float64
	}
	entries := make([]entry, 0, ndef)
	for i := range phases {
		p := &phases[i]
		sta := GetStationIndex(stalist, p.PriSta)
		if p.Timedef {
			entries = append(entries, entry{p.CovIndTime, sta, p.Phase, p.Deltim})
		}
	}
	for i := range phases {
		p := &phases[i]
		sta := GetStationIndex(stalist, p.PriSta)
		if p.Azimdef {
			entries = append(entries, entry{p.CovIndAzim, sta, "azim:" + p.Phase, p.Delaz})
		}
	}
	for i := range phases {
		p := &phases[i]
		sta := GetStationIndex(stalist, p.PriSta)
		if p.Slowdef {
			entries = append(entries, entry{p.CovIndSlow, sta, "slow:" + p.Phase, p.Delslo})
		}
	}

	for a := range entries {
		ea := &entries[a]
		dcov[ea.row][ea.row] = ea.prior*ea.prior + vgram.Sill
		for b := a + 1; b < len(entries); b++ {
			eb := &entries[b]
			if ea.phase != eb.phase {
				continue
			}
			if ea.sta < 0 || eb.sta < 0 {
				continue
			}
			c := vgram.Covariance(distmatrix[ea.sta][eb.sta])
			dcov[ea.row][eb.row] = c
			dcov[eb.row][ea.row] = c
		}
	}
	return dcov
}

// ProjectionMatrix derives the whitening operator W from the
// eigendecomposition of the data covariance matrix: the eigenvectors
// whose cumulative eigenvalue contribution reaches pctvar percent are
// retained and W = diag(1/sqrt(lambda)) * Qt over the retained
// components. W has prank meaningful rows in an ndef x ndef allocation so
// that the row/column squeeze-out of demoted observations can operate in
// place. Returns W and the projection rank.
func ProjectionMatrix(dcov [][]float64, ndef int, pctvar float64) (w [][]float64, prank int, err error) {
	sym := mat.NewSymDense(ndef, nil)
	for i := 0; i < ndef; i++ {
		for j := i; j < ndef; j++ {
			sym.SetSym(i, j, dcov[i][j])
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, 0, ErrEigenFailed
	}
	vals := eig.Values(nil)
	var q mat.Dense
	eig.VectorsTo(&q)

	// gonum returns eigenvalues in ascending order; retention walks from
	// the largest down until the cumulative contribution reaches pctvar
	total := 0.
	for _, v := range vals {
		if v > 0. {
			total += v
		}
	}
	target := total * pctvar / 100.

	w = AllocateFloatMatrix(ndef, ndef)
	cum := 0.
	prank = 0
	for c := ndef - 1; c >= 0; c-- {
		if vals[c] <= 0. {
			break
		}
		scale := 1. / math.Sqrt(vals[c])
		for j := 0; j < ndef; j++ {
			w[prank][j] = scale * q.At(j, c)
		}
		cum += vals[c]
		prank++
		if cum >= target {
			break
		}
	}
	if prank == 0 {
		return nil, 0, ErrEigenFailed
	}
	return w, prank, nil
}

// SqueezeMatrix removes row and column k from the top n x n block of a
// matrix in place, shifting the remaining rows and columns up and left.
// Used when an observation is demoted to non-defining mid-iteration and
// the covariance and projection matrices must stay consistent with the
// covariance row indices.
func SqueezeMatrix(m [][]float64, k, n int) {
	for j := k; j < n-1; j++ {
		copy(m[j][:n], m[j+1][:n])
	}
	for i := 0; i < n; i++ {
		copy(m[i][k:n-1], m[i][k+1:n])
	}
}
