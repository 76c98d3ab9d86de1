package seisloc

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Variogram is the generic variogram parameterising the spatial
// correlation of model errors between stations: gamma(d) approaches the
// sill as the separation d grows, and cov(d) = sill - gamma(d).
type Variogram struct {
	N      int
	MaxSep float64 // km; gamma is extrapolated to the sill beyond this
	Sill   float64
	Nugget float64
	Dist   []float64
	Gamma  []float64
}

// ReadVariogram loads a generic variogram file: comment lines start
// with '#', the header carries
// "n sill maxsep nugget" and the body lists distance-semivariance pairs
// with distances in increasing order.
func ReadVariogram(filename string) (*Variogram, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, errors.Join(ErrCannotOpenFile, err)
	}
	defer fp.Close()

	v := new(Variogram)
	scanner := bufio.NewScanner(fp)
	gothdr := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !gothdr {
			if _, err := fmt.Sscan(line, &v.N, &v.Sill, &v.MaxSep, &v.Nugget); err != nil {
				return nil, errors.Join(ErrCannotOpenFile, err)
			}
			v.Dist = make([]float64, 0, v.N)
			v.Gamma = make([]float64, 0, v.N)
			gothdr = true
			continue
		}
		var d, g float64
		if _, err := fmt.Sscan(line, &d, &g); err != nil {
			return nil, errors.Join(ErrCannotOpenFile, err)
		}
		v.Dist = append(v.Dist, d)
		v.Gamma = append(v.Gamma, g)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Join(ErrCannotOpenFile, err)
	}
	if len(v.Dist) < 2 {
		return nil, errors.Join(ErrCannotOpenFile, errors.New("variogram has fewer than two samples"))
	}
	v.N = len(v.Dist)
	return v, nil
}

// Value evaluates gamma at the separation d (km) by linear interpolation
// between the tabulated samples. Beyond the maximum tabulated separation
// the semivariance saturates at the sill.
func (v *Variogram) Value(d float64) float64 {
	n := len(v.Dist)
	if d >= v.Dist[n-1] || d >= v.MaxSep {
		return v.Sill
	}
	if d <= v.Dist[0] {
		return v.Gamma[0]
	}
	ilo, ihi := FloatBracket(d, v.Dist)
	h := v.Dist[ihi] - v.Dist[ilo]
	if h < DEPSILON {
		return v.Gamma[ilo]
	}
	t := (d - v.Dist[ilo]) / h
	return (1.-t)*v.Gamma[ilo] + t*v.Gamma[ihi]
}

// Covariance returns the modelled covariance sill - gamma(d) for two
// observations of the same phase at stations separated by d km.
func (v *Variogram) Covariance(d float64) float64 {
	return v.Sill - v.Value(d)
}
