package seisloc

import (
	"errors"
)

var ErrCannotOpenFile = errors.New("Error Opening Auxiliary Data File")
var ErrCannotAllocate = errors.New("Error Allocating Working Memory")
var ErrInsufficientPhases = errors.New("Insufficient Number Of Defining Phases")
var ErrNoDepthResolution = errors.New("No Resolution For A Free Depth Solution")
var ErrDepthErrorTooLarge = errors.New("Depth Error Exceeds Acceptance Band")
var ErrDivergent = errors.New("Divergent Solution")
var ErrSingularNormalEquations = errors.New("Singular G Matrix")
var ErrIllConditioned = errors.New("Abnormally Ill-Conditioned Problem")
var ErrMaxIterationsReached = errors.New("Maximum Number Of Iterations Reached")
var ErrInvalidStation = errors.New("Phase References Unknown Station")
var ErrNoPrediction = errors.New("No Travel Time Prediction")
var ErrOutOfRange = errors.New("Coordinate Outside Table Domain")
var ErrNoTable = errors.New("Phase Has No Travel Time Table")
var ErrSVDFailed = errors.New("SVD Decomposition Failed")
var ErrEigenFailed = errors.New("Eigendecomposition Failed")
var ErrNASearchFailed = errors.New("Neighbourhood Algorithm Search Failed")
var ErrBadEventFile = errors.New("Error Decoding Event File")
var ErrCreateSolutionTdb = errors.New("Error Creating Solution TileDB Array")
var ErrWriteSolutionTdb = errors.New("Error Writing Solution TileDB Array")
var ErrCreateAttributeTdb = errors.New("Error Creating Attribute for TileDB Array")
var ErrAddFilters = errors.New("Error Adding Filter To FilterList")
var ErrFiltList = errors.New("Error Creating TileDB Filter List")
var ErrNewAttr = errors.New("Error Creating TileDB Attribute")
var ErrNewFilt = errors.New("Error Creating TileDB Filter")
var ErrZstdFilt = errors.New("Error Creating TileDB ZStandard Filter")
