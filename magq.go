package seisloc

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Magnitude attenuation table kinds. Gutenberg-Richter Q(d,h) is valid for
// amplitudes in micrometres; Veith-Clawson and Murphy-Barker expect
// peak-to-peak amplitudes.
const (
	MAGQ_NONE = iota
	MAGQ_GUTENBERG_RICHTER
	MAGQ_VEITH_CLAWSON
)

// MagQTable is the body-wave magnitude attenuation table Q(delta, depth).
type MagQTable struct {
	Kind     int
	MinDist  float64
	MaxDist  float64
	MinDepth float64
	MaxDepth float64
	Deltas   []float64
	Depths   []float64
	Q        [][]float64 // [ndist][ndepth]
}

// ReadMagnitudeQ loads a magnitude attenuation table. Header:
// "kind ndist ndepth", then the distance nodes, the depth nodes and the
// Q matrix one distance row at a time.
func ReadMagnitudeQ(filename string) (*MagQTable, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, errors.Join(ErrCannotOpenFile, err)
	}
	defer fp.Close()

	fields := make([]string, 0, 256)
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
				fmt.Errorf("truncated magnitude Q table %s", filename))
		}
		var v float64
		_, err := fmt.Sscan(fields[pos], &v)
		pos++
		return v, err
	}

	kindf, err := next()
	if err != nil {
		return nil, err
	}
	ndistf, err := next()
	if err != nil {
		return nil, err
	}
	ndepthf, err := next()
	if err != nil {
		return nil, err
	}
	ndist := int(ndistf)
	ndepth := int(ndepthf)
	if ndist < 2 || ndepth < 2 {
		return nil, errors.Join(ErrCannotOpenFile,
			fmt.Errorf("degenerate magnitude Q table %s", filename))
	}

	q := &MagQTable{
		Kind:   int(kindf),
		Deltas: make([]float64, ndist),
		Depths: make([]float64, ndepth),
		Q:      AllocateFloatMatrix(ndist, ndepth),
	}
	for i := 0; i < ndist; i++ {
		if q.Deltas[i], err = next(); err != nil {
			return nil, err
		}
	}
	for j := 0; j < ndepth; j++ {
		if q.Depths[j], err = next(); err != nil {
			return nil, err
		}
	}
	for i := 0; i < ndist; i++ {
		for j := 0; j < ndepth; j++ {
			if q.Q[i][j], err = next(); err != nil {
				return nil, err
			}
		}
	}
	q.MinDist = q.Deltas[0]
	q.MaxDist = q.Deltas[ndist-1]
	q.MinDepth = q.Depths[0]
	q.MaxDepth = q.Depths[ndepth-1]
	return q, nil
}

// GetMagnitudeQ evaluates the attenuation term at (delta, depth).
// Outside the tabulated domain, or with no table, the term is zero.
func GetMagnitudeQ(q *MagQTable, delta, depth float64) float64 {
	if q == nil || q.Kind == MAGQ_NONE {
		return 0.
	}
	if depth < q.MinDepth || depth > q.MaxDepth ||
		delta < q.MinDist || delta > q.MaxDist {
		return 0.
	}
	v, err := BilinearInterpolation(delta, depth, q.Deltas, q.Depths, q.Q)
	if err != nil {
		return 0.
	}
	// Gutenberg-Richter Q(d,h) is valid for amplitudes in micrometres
	if q.Kind == MAGQ_GUTENBERG_RICHTER {
		v -= 3.
	}
	return v
}
