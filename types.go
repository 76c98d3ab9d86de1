package seisloc

// Shared physical constants. Distances are degrees on the sphere unless a
// field name says otherwise, depths are km positive down, times are epoch
// seconds.
const (
	EARTH_RADIUS = 6371.0
	FLATTENING   = 1.0 / 298.257223563
	DEG2KM       = 111.19492664
	NULLVAL      = 9999999.0
	DEPSILON     = 1e-8
	ZERO_TOL     = 1e-30
	CONV_TOL     = 1e-8
	MAX_RDMAG    = 4 // amplitude measurements kept per phase
)

// Depth fix reason codes carried on the final solution. Code 6 is shared
// between "fix to median reported depth" and the missing-default-grid case;
// Solution.IsDefaultDepth disambiguates the two when reporting.
const (
	FIX_DEPTH_FREE = iota
	FIX_DEPTH_BEYOND
	FIX_DEPTH_AGENCY
	FIX_DEPTH_DEPDP
	FIX_DEPTH_SURFACE
	FIX_DEPTH_DEFAULT_GRID
	FIX_DEPTH_MEDIAN
	FIX_DEPTH_GRN
	FIX_DEPTH_ANALYST
)

// Station is one row of the host-supplied station table.
type Station struct {
	Key   string // station code or FDSN quadruple
	Lat   float64
	Lon   float64
	Elev  float64 // metres above sea level
	Depth float64 // sensor depth below surface, metres
}

// Hypocenter is a reported origin from one agency, as delivered by the
// loader. The median of the reported hypocentres seeds the initial trial
// solution.
type Hypocenter struct {
	HypID   int
	Agency  string
	Time    float64 // epoch seconds
	Lat     float64
	Lon     float64
	Depth   float64
	Depdp   float64
	DepdpEr float64
	Sdobs   float64
	Stime   float64
	Sdepth  float64
	Smajax  float64
	Sminax  float64
	Strike  float64
	Azimgap float64
	Sgap    float64
	Mindist float64
	Maxdist float64
	Nass    int
	Ndef    int
	Nsta    int
	Ndefsta int
	Etype   string
	Rank    float64
	Timfix  bool
	Epifix  bool
	Depfix  bool
}

// Amplitude is one amplitude/period measurement attached to a phase.
type Amplitude struct {
	AmpID     int
	Amp       float64 // nanometres
	Period    float64 // seconds
	Logat     float64 // reported log10(A/T), NULLVAL when absent
	Snr       float64
	Comp      byte // Z/N/E or 0 when unknown
	Chan      string
	Magtype   string
	Magnitude float64
	MtypeID   int
	Ampdef    bool
}

// Phase is a single arrival observation. The loader populates the
// reported fields and the station join; the locator owns the internal
// phase name, the predictions and the residuals.
type Phase struct {
	PhaseID int
	RdID    int // reading id: same (station, agency, author) group
	Sta     string
	PriSta  string // primary station key used against the station table
	Deploy  string
	Lcn     string
	Agency  string
	Author  string

	StaLat  float64
	StaLon  float64
	StaElev float64
	StaDep  float64

	ReportedPhase string
	Phase         string // internal phase name assigned by identification
	PrevPhase     string

	Time   float64 // epoch seconds, NULLVAL when not reported
	Azim   float64 // station azimuth measurement, deg
	Slow   float64 // slowness measurement, s/deg
	Deltim float64 // prior time measurement error, s
	Delaz  float64
	Delslo float64
	Snr    float64

	Timedef bool
	Azimdef bool
	Slowdef bool

	prevTimedef bool
	prevAzimdef bool
	prevSlowdef bool

	Delta float64
	Esaz  float64
	Seaz  float64

	Ttime   float64 // predicted travel time, corrections applied
	Dtdd    float64 // horizontal slowness, s/deg
	Dtdh    float64 // vertical slowness, s/km
	D2tdd   float64
	D2tdh   float64
	Bpdel   float64 // depth phase bounce point distance, deg
	TTModel string

	Timeres float64
	Azimres float64
	Slowres float64

	// row indices into the data covariance / projection matrices
	CovIndTime int
	CovIndAzim int
	CovIndSlow int

	FirstP        bool // first-arriving defining P in its reading
	FirstS        bool
	Duplicate     bool
	HasDepthPhase bool
	fake          bool // temporary depth-phase identification for reporting

	Amps []Amplitude
}

// Reading indexes a block of consecutive phases sharing a reading id.
type Reading struct {
	Start int
	Npha  int
}

// NetMagnitude is a network magnitude produced from station magnitudes.
type NetMagnitude struct {
	Magtype     string
	MtypeID     int
	Magnitude   float64
	Uncertainty float64
	Nass        int
	Nsta        int
	Nagency     int
}

// StationMagnitude is one station's (or one reading's) magnitude
// contribution for a magnitude type.
type StationMagnitude struct {
	RdID      int
	Sta       string
	PriSta    string
	Deploy    string
	Lcn       string
	Agency    string
	Magtype   string
	MtypeID   int
	Magnitude float64
	Magdef    bool
}

// MSZH keeps the vertical and horizontal components of a surface-wave
// reading magnitude for reporting.
type MSZH struct {
	RdID int
	MSZ  float64
	MSH  float64
}

// Solution is the working and final hypocentre for one event.
type Solution struct {
	HypID  int
	Agency string

	Time  float64
	Lat   float64
	Lon   float64
	Depth float64

	Timfix bool
	Epifix bool
	Depfix bool

	Converged bool
	Diverging bool

	NumUnknowns    int
	FixedDepthType int
	IsDefaultDepth bool

	NumPhase int
	Nreading int
	Nass     int
	Ndef     int
	Ntimedef int
	Nazimdef int
	Nslowdef int
	Nsta     int
	Ndefsta  int
	Prank    int

	Covar  [4][4]float64
	Error  [4]float64 // uncertainties for t, x, y, z
	Sdobs  float64
	Urms   float64
	Wrms   float64
	Smajax float64
	Sminax float64
	Strike float64

	Azimgap float64
	Sgap    float64
	Mindist float64
	Maxdist float64

	Depdp      float64
	DepdpError float64
	Ndp        int

	Etype string

	Mags    []NetMagnitude
	Nstamag int
	Nnetmag int
}

// NewSolution initialises a Solution with null errors and covariances.
func NewSolution(numPhase int) *Solution {
	s := &Solution{NumPhase: numPhase}
	for i := 0; i < 4; i++ {
		s.Error[i] = NULLVAL
		for j := 0; j < 4; j++ {
			s.Covar[i][j] = NULLVAL
		}
	}
	s.Smajax = NULLVAL
	s.Sminax = NULLVAL
	s.Strike = NULLVAL
	s.Sdobs = NULLVAL
	s.Depdp = NULLVAL
	s.DepdpError = NULLVAL
	return s
}

// Event is the per-event input contract: reported hypocentres and the
// observations already joined with station coordinates, plus the caller
// instructions that drive the option loop.
type Event struct {
	EvID     int
	PrefOrid int
	Etype    string
	Hypos    []Hypocenter
	Phases   []Phase
	Magbloc  string // verbatim magnitude block passed through to the sink

	FixedOT           bool
	FixedEpicenter    bool
	FixedDepth        bool
	FixDepthToUser    bool
	FixDepthToDefault bool
	FixDepthToMedian  bool
	FixDepthToDepdp   bool
	FixDepthToZero    bool
	FixedHypocenter   bool

	OTAgency        string
	EpicenterAgency string
	DepthAgency     string

	StartDepth float64 // analyst depth when FixDepthToUser
}
