package seisloc

import (
	"fmt"
	"io"
	"math/rand"
)

// Diagnostics is the trace sink threaded through the per-event context.
// Level 0 is silent; higher levels progressively enable the iteration and
// phase-table traces. A nil writer silences everything regardless of level.
type Diagnostics struct {
	Level int
	Out   io.Writer
}

// Printf writes a trace line when the requested level is enabled.
func (d *Diagnostics) Printf(level int, format string, args ...any) {
	if d == nil || d.Out == nil || d.Level < level {
		return
	}
	fmt.Fprintf(d.Out, format, args...)
}

// Context is the per-event mutable state: the shared immutable Config and
// auxiliary tables, the diagnostics sink, and the seedable PRNG used by the
// neighbourhood algorithm. One Context serves exactly one event; the
// regional tomography backend keeps per-thread state, so a Context must
// not be shared across goroutines.
type Context struct {
	Cfg  *Config
	Aux  *AuxData
	Diag *Diagnostics
	Rng  *rand.Rand

	// local travel-time tables regenerate when the epicentre walks
	// further than Cfg.EpiWalk from where they were last built
	PrevLat float64
	PrevLon float64
}

// AuxData gathers the long-lived read-only tables loaded at startup and
// borrowed by every event.
type AuxData struct {
	TT         *TTTableSet
	LocalTT    *TTTableSet
	LocalTTDir string
	Ellip      []ECTable
	Topo       *TopoGrid
	Vgram      *Variogram
	MagQ       *MagQTable
	DepthGrid  *DefaultDepthGrid
	Stations   []Station
	RSTT       TomographySource
}

// NewContext builds a per-event context. A nil diag silences tracing.
func NewContext(cfg *Config, aux *AuxData, diag *Diagnostics) *Context {
	if diag == nil {
		diag = &Diagnostics{}
	}
	return &Context{
		Cfg:     cfg,
		Aux:     aux,
		Diag:    diag,
		Rng:     rand.New(rand.NewSource(cfg.Iseed)),
		PrevLat: NULLVAL,
		PrevLon: NULLVAL,
	}
}

// TomographySource is the regional travel-time backend (RSTT in the C
// original). The engine ships without a concrete implementation; a nil or
// non-qualifying source simply routes prediction back to the global
// tables. Implementations carry implicit per-thread state and must be
// reset between events.
type TomographySource interface {
	// Predict returns travel time (s), horizontal slowness (s/deg),
	// vertical slowness (s/km), pick error and total error for a
	// crustal phase, or an error when no prediction is available.
	Predict(phase string, evLat, evLon, evDepth, stLat, stLon, stElev float64) (ttime, dtdd, dtdh, pickErr, totalErr float64, err error)
	// Reset clears the per-event great-circle state.
	Reset()
}
