package seisloc

import (
	"math"
)

// number of samples each axis contributes to the bicubic window
const (
	DELTA_SAMPLES = 4
	DEPTH_SAMPLES = 4
	MIN_SAMPLES   = 3
)

// FloatBracket finds the indices ilo, ihi bracketing x in the monotonically
// increasing array xs, so that xs[ilo] <= x <= xs[ihi] with ihi = ilo + 1.
// Values outside the array clamp to the first or last interval.
func FloatBracket(x float64, xs []float64) (ilo, ihi int) {
	n := len(xs)
	if n < 2 {
		return 0, 0
	}
	if x <= xs[0] {
		return 0, 1
	}
	if x >= xs[n-1] {
		return n - 2, n - 1
	}
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if xs[mid] > x {
			hi = mid
		} else {
			lo = mid
		}
	}
	return lo, hi
}

// BilinearInterpolation interpolates grid[i][j] declared over (xs[i], ys[j])
// at the point (x, y). Ellipticity tau grids and the magnitude attenuation
// Q(d,h) tables are coarse; they use bilinear rather than bicubic
// interpolation so that no overshoot is introduced between nodes.
func BilinearInterpolation(x, y float64, xs, ys []float64, grid [][]float64) (float64, error) {
	if len(xs) == 0 || len(ys) == 0 {
		return 0., ErrOutOfRange
	}
	if x < xs[0] || x > xs[len(xs)-1] || y < ys[0] || y > ys[len(ys)-1] {
		return 0., ErrOutOfRange
	}

	ilo, ihi := FloatBracket(x, xs)
	jlo, jhi := FloatBracket(y, ys)

	dx := xs[ihi] - xs[ilo]
	dy := ys[jhi] - ys[jlo]
	tx := 0.
	ty := 0.
	if dx > DEPSILON {
		tx = (x - xs[ilo]) / dx
	}
	if dy > DEPSILON {
		ty = (y - ys[jlo]) / dy
	}

	v := (1.-tx)*(1.-ty)*grid[ilo][jlo] +
		tx*(1.-ty)*grid[ihi][jlo] +
		(1.-tx)*ty*grid[ilo][jhi] +
		tx*ty*grid[ihi][jhi]

	return v, nil
}

// SplineCoeffs computes the second derivatives of a natural cubic spline
// through the n points (x[i], y[i]). d2y receives the coefficients; tmp is
// scratch space of at least n elements, allocated by the caller so that
// the interpolation hot loop stays allocation free.
func SplineCoeffs(x, y, d2y, tmp []float64) {
	n := len(x)
	if n < 2 {
		return
	}
	d2y[0] = 0.
	tmp[0] = 0.
	for i := 1; i < n-1; i++ {
		sig := (x[i] - x[i-1]) / (x[i+1] - x[i-1])
		p := sig*d2y[i-1] + 2.
		d2y[i] = (sig - 1.) / p
		tmp[i] = (y[i+1]-y[i])/(x[i+1]-x[i]) - (y[i]-y[i-1])/(x[i]-x[i-1])
		tmp[i] = (6.*tmp[i]/(x[i+1]-x[i-1]) - sig*tmp[i-1]) / p
	}
	d2y[n-1] = 0.
	for i := n - 2; i >= 0; i-- {
		d2y[i] = d2y[i]*d2y[i+1] + tmp[i]
	}
}

// SplineInterpolation evaluates the natural cubic spline defined by
// (x, y, d2y) at xp. When isderiv is true the first and second derivatives
// at xp are also computed; otherwise dydx and d2ydx are returned as -999.
func SplineInterpolation(xp float64, x, y, d2y []float64, isderiv bool) (yp, dydx, d2ydx float64) {
	n := len(x)
	dydx = -999.
	d2ydx = -999.
	if n < 2 {
		return y[0], dydx, d2ydx
	}

	klo, khi := FloatBracket(xp, x)
	h := x[khi] - x[klo]
	if math.Abs(h) < DEPSILON {
		return y[klo], dydx, d2ydx
	}

	a := (x[khi] - xp) / h
	b := (xp - x[klo]) / h
	yp = a*y[klo] + b*y[khi] +
		((a*a*a-a)*d2y[klo]+(b*b*b-b)*d2y[khi])*h*h/6.

	if isderiv {
		dydx = (y[khi]-y[klo])/h -
			(3.*a*a-1.)*h*d2y[klo]/6. +
			(3.*b*b-1.)*h*d2y[khi]/6.
		d2ydx = a*d2y[klo] + b*d2y[khi]
	}

	return yp, dydx, d2ydx
}
