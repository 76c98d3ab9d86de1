package seisloc

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

// ECDepths are the fixed depth nodes of the Kennett and Gudmundsson (1996)
// ellipticity correction tables.
var ECDepths = []float64{0., 100., 200., 300., 500., 700.}

// ECTable holds the tau coefficient grids for one phase block of the
// ellipticity correction table.
type ECTable struct {
	Phase   string
	MinDist float64
	MaxDist float64
	Delta   []float64
	Depth   []float64
	T0      [][]float64 // [ndist][ndepth]
	T1      [][]float64
	T2      [][]float64
}

// ReadEllipticityCorrections loads the ellipticity correction table. Each
// phase block carries "phase ndist mindist maxdist", the distance nodes,
// then the tau0, tau1 and tau2 matrices at the six fixed depth nodes.
func ReadEllipticityCorrections(filename string) ([]ECTable, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, errors.Join(ErrCannotOpenFile, err)
	}
	defer fp.Close()

	fields := make([]string, 0, 1024)
	scanner := bufio.NewScanner(fp)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields = append(fields, strings.Fields(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Join(ErrCannotOpenFile, err)
	}

	var tables []ECTable
	pos := 0
	nextf := func() (float64, error) {
		if pos >= len(fields) {
			return 0., errors.Join(ErrCannotOpenFile,
				fmt.Errorf("truncated ellipticity table %s", filename))
		}
		var v float64
		_, err := fmt.Sscan(fields[pos], &v)
		pos++
		return v, err
	}

	ndep := len(ECDepths)
	for pos < len(fields) {
		ec := ECTable{Phase: fields[pos]}
		pos++
		ndistf, err := nextf()
		if err != nil {
			return nil, err
		}
		if ec.MinDist, err = nextf(); err != nil {
			return nil, err
		}
		if ec.MaxDist, err = nextf(); err != nil {
			return nil, err
		}
		ndist := int(ndistf)
		if ndist < 2 {
			return nil, errors.Join(ErrCannotOpenFile,
				fmt.Errorf("degenerate ellipticity block %s", ec.Phase))
		}
		ec.Delta = make([]float64, ndist)
		ec.Depth = ECDepths
		for i := 0; i < ndist; i++ {
			if ec.Delta[i], err = nextf(); err != nil {
				return nil, err
			}
		}
		ec.T0 = AllocateFloatMatrix(ndist, ndep)
		ec.T1 = AllocateFloatMatrix(ndist, ndep)
		ec.T2 = AllocateFloatMatrix(ndist, ndep)
		for _, m := range [][][]float64{ec.T0, ec.T1, ec.T2} {
			for i := 0; i < ndist; i++ {
				for j := 0; j < ndep; j++ {
					if m[i][j], err = nextf(); err != nil {
						return nil, err
					}
				}
			}
		}
		tables = append(tables, ec)
	}
	return tables, nil
}

// GetEllipticityCorrection calculates the ellipticity correction for a
// phase using the Dziewonski and Gilbert (1976) representation with the
// ak135 tau coefficients of Kennett and Gudmundsson (1996).
//
//	ecolat - epicentre geocentric colatitude [rad]
//	delta  - epicentral distance [deg]
//	depth  - source depth [km]
//	esaz   - event-to-station azimuth [deg]
//
// Returns zero when the phase has no coefficient block or the point is
// outside the tabulated domain.
func GetEllipticityCorrection(ec []ECTable, phase string, ecolat, delta, depth, esaz float64) float64 {
	k := ecPhaseIndex(ec, phase, delta)
	if k < 0 {
		return 0.
	}

	tau0, err0 := BilinearInterpolation(delta, depth, ec[k].Delta, ec[k].Depth, ec[k].T0)
	tau1, err1 := BilinearInterpolation(delta, depth, ec[k].Delta, ec[k].Depth, ec[k].T1)
	tau2, err2 := BilinearInterpolation(delta, depth, ec[k].Delta, ec[k].Depth, ec[k].T2)
	if err0 != nil || err1 != nil || err2 != nil {
		return 0.
	}

	// eqs. (22) and (26) of Dziewonski and Gilbert (1976)
	azim := deg2rad * esaz
	s3 := math.Sqrt(3.) / 2.
	sc0 := 0.25 * (1.0 + 3.0*math.Cos(2.0*ecolat))
	sc1 := s3 * math.Sin(2.0*ecolat)
	sc2 := s3 * math.Sin(ecolat) * math.Sin(ecolat)
	return sc0*tau0 + sc1*math.Cos(azim)*tau1 + sc2*math.Cos(2.*azim)*tau2
}

// ecPhaseIndex maps a phase name onto the coefficient block that covers
// it. Phases without their own block borrow the block of the parent phase
// they asymptote to, per Kennett and Gudmundsson (1996).
func ecPhaseIndex(ec []ECTable, phase string, delta float64) int {
	name := ecPhaseAlias(phase)
	if name == "" {
		return -1
	}
	for k := range ec {
		if ec[k].Phase != name {
			continue
		}
		if delta < ec[k].MinDist || delta > ec[k].MaxDist {
			return -1
		}
		return k
	}
	return -1
}

func ecPhaseAlias(phase string) string {
	switch phase {
	case "Pup", "Pg", "Pb", "p":
		return "Pup"
	case "P", "Pn", "PgPg", "PbPb":
		return "P"
	case "Pdiff", "Pdif":
		return "Pdiff"
	case "pP", "pPg", "pPb", "pPn", "pwP":
		return "pP"
	case "sP", "sPg", "sPb", "sPn":
		return "sP"
	case "Sup", "Sg", "Lg", "Sb", "s":
		return "Sup"
	case "S", "Sn", "SgSg", "SbSb":
		return "S"
	case "Sdiff", "Sdif":
		return "Sdiff"
	case "pS", "pSdiff":
		return "pS"
	case "sS", "sSn", "sSg", "sSdiff":
		return "sS"
	case "PP", "PnPn":
		return "PP"
	case "SS", "SnSn":
		return "SS"
	case "P'P'ab", "P'P'bc", "P'P'df":
		return "P'P'"
	case "S'S'ac", "S'S'df":
		return "S'S'"
	case "PKPab", "PKPbc", "PKPdf", "PKiKP",
		"pPKPab", "pPKPbc", "pPKPdf", "pPKiKP",
		"sPKPab", "sPKPbc", "sPKPdf", "sPKiKP",
		"SKSac", "SKSdf", "SKPab", "SKPbc", "SKPdf", "SKiKP",
		"PKKPab", "PKKPbc", "PKKPdf", "SKKPab", "SKKPbc", "SKKPdf",
		"PcP", "ScP", "ScS", "PcS", "SP", "PS", "PnS",
		"pSKSac", "pSKSdf", "sSKSac", "sSKSdf",
		"PKSab", "PKSbc", "PKSdf", "SKKSac", "SKKSdf":
		return phase
	}
	return ""
}
