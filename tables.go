package seisloc

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PhaseTT is the set of phases for which global travel-time tables are
// loaded, in table-set order. The first two entries are the composite
// first-arriving P and S tables; they are only consulted across crossover
// distances and never rename a phase.
var PhaseTT = []string{
	"firstP", "firstS",
	"P", "Pb", "Pg", "Pn", "Pdiff",
	"S", "Sb", "Sg", "Sn", "Lg", "Sdiff",
	"PcP", "ScS", "PcS", "ScP",
	"PKPab", "PKPbc", "PKPdf", "PKiKP",
	"SKSac", "SKSdf", "SKPab", "SKPbc", "SKPdf", "SKiKP",
	"PP", "SS", "PS", "SP",
	"pP", "pwP", "sP", "pS", "sS",
	"pPb", "pPg", "pPn", "sPb", "sPg", "sPn", "sSn",
	"pPdiff", "sPdiff", "pSdiff", "sSdiff",
	"pPKPab", "pPKPbc", "pPKPdf", "pPKiKP",
	"sPKPab", "sPKPbc", "sPKPdf", "sPKiKP",
	"PKKPab", "PKKPbc", "PKKPdf",
	"SKKPab", "SKKPbc", "SKKPdf",
	"P'P'ab", "P'P'bc", "P'P'df",
}

// LocalPhaseTT is the phase set of a local velocity model table file.
var LocalPhaseTT = []string{
	"firstP", "firstS",
	"Pg", "Pb", "Pn", "P",
	"Sg", "Sb", "Sn", "S", "Lg",
}

// TTTable is the travel-time table for a single phase: times and
// derivative matrices sampled over monotonically increasing distance and
// depth nodes. Negative entries mark nodes where the phase does not
// exist. For depth phases the bounce-point distance matrix is present.
type TTTable struct {
	Phase    string
	IsBounce bool
	Deltas   []float64   // deg
	Depths   []float64   // km
	TT       [][]float64 // [ndel][ndep] seconds
	Dtdd     [][]float64 // s/deg
	Dtdh     [][]float64 // s/km
	Bpdel    [][]float64 // deg, depth phases only
}

// TTTableSet indexes the loaded per-phase tables.
type TTTableSet struct {
	Tables []TTTable
	index  map[string]int
}

// GetPhaseIndex returns the table index for a phase name, or -1 when the
// phase carries no table.
func (ts *TTTableSet) GetPhaseIndex(phase string) int {
	if ts == nil {
		return -1
	}
	if idx, ok := ts.index[phase]; ok {
		return idx
	}
	return -1
}

// Get returns the table for a phase, or nil.
func (ts *TTTableSet) Get(phase string) *TTTable {
	idx := ts.GetPhaseIndex(phase)
	if idx < 0 {
		return nil
	}
	return &ts.Tables[idx]
}

// ReadTTTables loads the per-phase travel-time tables from dirname. Each
// phase is a text file "<model>.<phase>.tab". Missing files for phases in
// the list are tolerated (the phase simply has no table); a missing
// composite first-arriving table is an error as prediction depends on it.
func ReadTTTables(dirname, model string) (*TTTableSet, error) {
	return readTableSet(dirname, model, PhaseTT)
}

// GenerateLocalTTTables loads the local velocity model tables centred on
// the region around (lat, lon). The local table file set is precomputed
// by the host for the region of interest; the locator reloads it whenever
// the epicentre walks further than Config.EpiWalk from the point the
// tables were last built for.
func GenerateLocalTTTables(dirname string, lat, lon float64) (*TTTableSet, error) {
	return readTableSet(dirname, "local", LocalPhaseTT)
}

func readTableSet(dirname, model string, phases []string) (*TTTableSet, error) {
	ts := &TTTableSet{
		Tables: make([]TTTable, len(phases)),
		index:  make(map[string]int, len(phases)),
	}
	for i, phase := range phases {
		ts.index[phase] = i
		filename := filepath.Join(dirname, fmt.Sprintf("%s.%s.tab", model, phase))
		tbl, err := readTTTable(filename, phase)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && i > 1 {
				// phase has no table for this model
				ts.Tables[i] = TTTable{Phase: phase}
				continue
			}
			return nil, err
		}
		ts.Tables[i] = *tbl
	}
	return ts, nil
}

// readTTTable parses one travel-time table file: '#' comment lines, a
// header "ndel ndep isbounce",
// the distance samples, the depth samples, then the tt, dtdd and dtdh
// matrices row by row (one distance per row), and the bounce-point
// distance matrix when isbounce is 1.
func readTTTable(filename, phase string) (*TTTable, error) {
	fp, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, errors.Join(ErrCannotOpenFile, err)
	}
	defer fp.Close()

	fields := make([]string, 0, 64)
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

	pos := 0
	next := func() (float64, error) {
		if pos >= len(fields) {
			return 0., errors.Join(ErrCannotOpenFile,
				fmt.Errorf("truncated travel-time table %s", filename))
		}
		var v float64
		_, err := fmt.Sscan(fields[pos], &v)
		pos++
		return v, err
	}

	ndelf, err := next()
	if err != nil {
		return nil, err
	}
	ndepf, err := next()
	if err != nil {
		return nil, err
	}
	bouncef, err := next()
	if err != nil {
		return nil, err
	}
	ndel := int(ndelf)
	ndep := int(ndepf)
	if ndel < 2 || ndep < 1 {
		return nil, errors.Join(ErrCannotOpenFile,
			fmt.Errorf("degenerate travel-time table %s", filename))
	}

	tbl := &TTTable{
		Phase:    phase,
		IsBounce: bouncef > 0.,
		Deltas:   make([]float64, ndel),
		Depths:   make([]float64, ndep),
		TT:       AllocateFloatMatrix(ndel, ndep),
		Dtdd:     AllocateFloatMatrix(ndel, ndep),
		Dtdh:     AllocateFloatMatrix(ndel, ndep),
	}

	for i := 0; i < ndel; i++ {
		if tbl.Deltas[i], err = next(); err != nil {
			return nil, err
		}
	}
	for j := 0; j < ndep; j++ {
		if tbl.Depths[j], err = next(); err != nil {
			return nil, err
		}
	}
	matrices := [][][]float64{tbl.TT, tbl.Dtdd, tbl.Dtdh}
	if tbl.IsBounce {
		tbl.Bpdel = AllocateFloatMatrix(ndel, ndep)
		matrices = append(matrices, tbl.Bpdel)
	}
	for _, m := range matrices {
		for i := 0; i < ndel; i++ {
			for j := 0; j < ndep; j++ {
				if m[i][j], err = next(); err != nil {
					return nil, err
				}
			}
		}
	}
	return tbl, nil
}
