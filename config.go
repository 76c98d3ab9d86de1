package seisloc

// Config carries every tunable the locator consults. A single immutable
// value is built at startup (defaults, then any CLI overrides) and shared
// by reference through the per-event Context. There is deliberately no
// global configuration state; process-wide scalars do not survive
// concurrent batch processing.
type Config struct {
	// iteration control
	MinIterations int
	MaxIterations int
	MinNdefPhases int

	// crustal model
	DefaultDepth float64
	Moho         float64
	Conrad       float64

	// inversion behaviour
	DoCorrelatedErrors bool
	AllowDamping       bool
	ConfidenceLevel    float64
	SigmaThreshold     float64

	// depth acceptance
	MaxHypocenterDepth   float64
	MaxShallowDepthError float64
	MaxDeepDepthError    float64

	// depth resolution requirements
	MinDepthPhases        int
	MinDepthPhaseAgencies int
	MinLocalStations      int
	MaxLocalDistDeg       float64
	MinSPpairs            int
	MaxSPDistDeg          float64
	MinCorePhases         int

	// neighbourhood algorithm
	DoGridSearch    bool
	NAsearchRadius  float64 // degrees around the starting epicentre
	NAsearchDepth   float64 // km around the starting depth
	NAsearchOT      float64 // seconds around the starting origin time
	NAlpNorm        float64
	NAiterMax       int
	NAinitialSample int
	NAnextSample    int
	NAcells         int
	Iseed           int64

	// travel-time prediction
	PSurfVel        float64
	SSurfVel        float64
	UseLocalTT      bool
	MaxLocalTTDelta float64
	UseRSTT         bool
	UseRSTTPnSn     bool
	UseRSTTPgLg     bool
	MaxRSTTDistDeg  float64
	EpiWalk         float64 // km the epicentre may move before local tables regenerate

	// magnitudes
	MinNetmagSta        int
	MagMaxTimeResidual  float64
	MagnitudeRangeLimit float64
	MSMaxDepth          float64
	MbMinDistDeg        float64
	MbMaxDistDeg        float64
	MbMinPeriod         float64
	MbMaxPeriod         float64
	MSMinDistDeg        float64
	MSMaxDistDeg        float64
	MSMinPeriod         float64
	MSMaxPeriod         float64
	MSPeriodRange       float64
	MLMaxDistkm         float64
	BBmBMinDistDeg      float64
	BBmBMaxDistDeg      float64

	// location quality
	GT5MinDefiningStations int
	GT5MinDefiningPhases   int
	GT5MaxSecondaryGap     float64
	GT5MaxCoverageMetric   float64

	// phase taxonomy
	MBPhases              []string
	MSPhases              []string
	MLPhases              []string
	PhasesWithoutResidual []string
	AllowablePhases       map[string][]string

	// diagnostics
	WriteNASamples bool
}

// DefaultConfig returns the configuration the locator runs with when the
// host supplies no overrides. Values follow the ISC operational setup.
func DefaultConfig() *Config {
	cfg := &Config{
		MinIterations: 4,
		MaxIterations: 20,
		MinNdefPhases: 4,

		DefaultDepth: 0.,
		Moho:         35.,
		Conrad:       20.,

		DoCorrelatedErrors: true,
		AllowDamping:       true,
		ConfidenceLevel:    90.,
		SigmaThreshold:     6.,

		MaxHypocenterDepth:   700.,
		MaxShallowDepthError: 30.,
		MaxDeepDepthError:    50.,

		MinDepthPhases:        5,
		MinDepthPhaseAgencies: 2,
		MinLocalStations:      1,
		MaxLocalDistDeg:       0.2,
		MinSPpairs:            5,
		MaxSPDistDeg:          3.,
		MinCorePhases:         5,

		DoGridSearch:    true,
		NAsearchRadius:  5.,
		NAsearchDepth:   300.,
		NAsearchOT:      30.,
		NAlpNorm:        1.2,
		NAiterMax:       5,
		NAinitialSample: 700,
		NAnextSample:    100,
		NAcells:         25,
		Iseed:           5590,

		PSurfVel:        5.8,
		SSurfVel:        3.46,
		UseLocalTT:      false,
		MaxLocalTTDelta: 3.,
		UseRSTT:         false,
		UseRSTTPnSn:     true,
		UseRSTTPgLg:     true,
		MaxRSTTDistDeg:  15.,
		EpiWalk:         20.,

		MinNetmagSta:        3,
		MagMaxTimeResidual:  10.,
		MagnitudeRangeLimit: 2.2,
		MSMaxDepth:          60.,
		MbMinDistDeg:        20.,
		MbMaxDistDeg:        105.,
		MbMinPeriod:         0.3,
		MbMaxPeriod:         3.,
		MSMinDistDeg:        20.,
		MSMaxDistDeg:        160.,
		MSMinPeriod:         10.,
		MSMaxPeriod:         60.,
		MSPeriodRange:       5.,
		MLMaxDistkm:         1000.,
		BBmBMinDistDeg:      5.,
		BBmBMaxDistDeg:      105.,

		GT5MinDefiningStations: 10,
		GT5MinDefiningPhases:   10,
		GT5MaxSecondaryGap:     160.,
		GT5MaxCoverageMetric:   0.35,

		WriteNASamples: false,
	}

	cfg.MBPhases = []string{"P", "Pn", "AMB", "IAmb"}
	cfg.MSPhases = []string{"LR", "LRZ", "LRN", "LRE", "AMS", "IAMs_20"}
	cfg.MLPhases = []string{"Sg", "S", "ML", "AML", "IAML"}
	cfg.PhasesWithoutResidual = []string{
		"AMB", "AMS", "AML", "IAmb", "IAMs_20", "IAML",
		"LR", "LRZ", "LRN", "LRE", "L", "MLR", "A", "x",
	}

	// candidate internal names tried for a reported phase during
	// identification; keyed by the reported name
	cfg.AllowablePhases = map[string][]string{
		"P":     {"P", "Pn", "Pg", "Pb", "Pdiff", "PKPdf", "PKPab", "PKPbc", "PKiKP"},
		"Pn":    {"Pn", "P", "Pg", "Pb"},
		"Pg":    {"Pg", "Pb", "Pn", "P"},
		"Pb":    {"Pb", "Pg", "Pn", "P"},
		"S":     {"S", "Sn", "Sg", "Sb", "Lg", "Sdiff", "SKSac", "SKSdf"},
		"Sn":    {"Sn", "S", "Sg", "Sb", "Lg"},
		"Sg":    {"Sg", "Lg", "Sb", "Sn", "S"},
		"Sb":    {"Sb", "Sg", "Lg", "Sn", "S"},
		"Lg":    {"Lg", "Sg", "Sb", "Sn", "S"},
		"pP":    {"pP", "pwP", "pPn", "pPg", "pPb"},
		"sP":    {"sP", "sPn", "sPg", "sPb"},
		"sS":    {"sS", "sSn", "sSg"},
		"pS":    {"pS"},
		"PcP":   {"PcP"},
		"ScS":   {"ScS"},
		"PKP":   {"PKPdf", "PKPab", "PKPbc", "PKiKP"},
		"PKPdf": {"PKPdf", "PKPab", "PKPbc", "PKiKP"},
		"PKPab": {"PKPab", "PKPbc", "PKPdf"},
		"PKPbc": {"PKPbc", "PKPab", "PKPdf"},
		"PKiKP": {"PKiKP", "PKPdf"},
		"Pdiff": {"Pdiff", "PKPdf", "PKiKP"},
		"Sdiff": {"Sdiff", "SKSac", "SKSdf"},
		"SKS":   {"SKSac", "SKSdf", "ScS"},
	}

	return cfg
}
