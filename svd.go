package seisloc

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// machine epsilon for the singular value threshold
const SVD_EPSILON = 2.220446049250313e-16

// SVDDecompose factorises the ndef x m system matrix into U, singular
// values and V. gonum returns the singular values in descending order,
// which is the ordering the damping and threshold helpers below rely on.
func SVDDecompose(g *mat.Dense) (u *mat.Dense, sv []float64, v *mat.Dense, err error) {
	var svd mat.SVD
	if ok := svd.Factorize(g, mat.SVDThin); !ok {
		return nil, nil, nil, ErrSVDFailed
	}
	sv = svd.Values(nil)
	u = &mat.Dense{}
	v = &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)
	return u, sv, v, nil
}

// SVDThreshold returns the cutoff below which singular values are treated
// as zero.
func SVDThreshold(n, m int, sv []float64) float64 {
	smax := 0.
	for _, s := range sv {
		if s > smax {
			smax = s
		}
	}
	return SVD_EPSILON * smax * math.Sqrt(float64(n+m))
}

// SVDRank counts the singular values above the threshold.
func SVDRank(sv []float64, thres float64) int {
	nr := 0
	for _, s := range sv {
		if s > thres {
			nr++
		}
	}
	return nr
}

// SVDNorm returns the squared matrix norm (sum of the squared singular
// values above the threshold) and the condition number max(sv)/min(sv)
// over the retained spectrum.
func SVDNorm(sv []float64, thres float64) (gnorm, cond float64) {
	smin := math.MaxFloat64
	smax := 0.
	for _, s := range sv {
		if s <= thres {
			continue
		}
		gnorm += s * s
		if s < smin {
			smin = s
		}
		if s > smax {
			smax = s
		}
	}
	if smin < math.MaxFloat64 && smin > 0. {
		cond = smax / smin
	} else {
		cond = NULLVAL
	}
	return gnorm, cond
}

// SVDSolve computes x = V * diag(1/sv) * Ut * d, zeroing contributions
// from singular values at or below the threshold.
func SVDSolve(u *mat.Dense, sv []float64, v *mat.Dense, d []float64, thres float64) ([]float64, error) {
	n, m := u.Dims()
	if len(d) != n {
		return nil, errors.Join(ErrSVDFailed, errors.New("dimension mismatch between U and d"))
	}

	// Ut * d
	utd := make([]float64, m)
	for j := 0; j < m; j++ {
		s := 0.
		for i := 0; i < n; i++ {
			s += u.At(i, j) * d[i]
		}
		if sv[j] > thres {
			utd[j] = s / sv[j]
		}
	}

	// V * (diag(1/sv) Ut d)
	x := make([]float64, m)
	for i := 0; i < m; i++ {
		s := 0.
		for j := 0; j < m; j++ {
			s += v.At(i, j) * utd[j]
		}
		x[i] = s
	}
	return x, nil
}

// SVDModelCovariance computes the m x m model covariance
// C = V * diag(1/sv^2) * Vt from the undamped spectrum. The caller scales
// it to the configured confidence level.
func SVDModelCovariance(sv []float64, v *mat.Dense, thres float64) [4][4]float64 {
	var mcov [4][4]float64
	m := len(sv)
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			s := 0.
			for k := 0; k < m; k++ {
				if sv[k] <= thres {
					continue
				}
				s += v.At(i, k) * v.At(j, k) / (sv[k] * sv[k])
			}
			mcov[i][j] = s
		}
	}
	return mcov
}
