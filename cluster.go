package seisloc

// StationOrder maps a station index to its position in the
// nearest-neighbour ordering produced by the hierarchical clustering.
type StationOrder struct {
	Index int // position in the clustered ordering
	X     int // station index in the station list
}

// GetDistanceMatrix builds the symmetric nsta x nsta matrix of great
// circle station separations in km.
func GetDistanceMatrix(stalist []Station) [][]float64 {
	nsta := len(stalist)
	dm := AllocateFloatMatrix(nsta, nsta)
	for i := 0; i < nsta; i++ {
		for j := i + 1; j < nsta; j++ {
			d := StationSeparation(&stalist[i], &stalist[j])
			dm[i][j] = d
			dm[j][i] = d
		}
	}
	return dm
}

// HierarchicalCluster performs single-linkage agglomerative clustering on
// the station distance matrix and returns the ordering in which nearest
// neighbour stations end up adjacent. Sorting the observations by this
// ordering renders the correlated-error data covariance matrix
// block-diagonal up to small leakage.
func HierarchicalCluster(distmatrix [][]float64) []StationOrder {
	nsta := len(distmatrix)
	staorder := make([]StationOrder, nsta)
	if nsta == 0 {
		return staorder
	}

	// each station starts as its own cluster, kept as an ordered chain
	clusters := make([][]int, nsta)
	for i := range clusters {
		clusters[i] = []int{i}
	}

	// single link distance between two clusters
	linkdist := func(a, b []int) float64 {
		dmin := NULLVAL
		for _, i := range a {
			for _, j := range b {
				if distmatrix[i][j] < dmin {
					dmin = distmatrix[i][j]
				}
			}
		}
		return dmin
	}

	for len(clusters) > 1 {
		ci, cj := 0, 1
		dmin := NULLVAL
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				d := linkdist(clusters[i], clusters[j])
				if d < dmin {
					dmin = d
					ci, cj = i, j
				}
			}
		}
		// merge cj into ci, keeping chain order
		clusters[ci] = append(clusters[ci], clusters[cj]...)
		clusters = append(clusters[:cj], clusters[cj+1:]...)
	}

	for pos, sta := range clusters[0] {
		staorder[sta].Index = pos
		staorder[sta].X = sta
	}
	return staorder
}

// AllocateFloatMatrix allocates an nrow x ncol matrix backed by a single
// contiguous slice.
func AllocateFloatMatrix(nrow, ncol int) [][]float64 {
	if nrow <= 0 || ncol <= 0 {
		return nil
	}
	backing := make([]float64, nrow*ncol)
	m := make([][]float64, nrow)
	for i := range m {
		m[i] = backing[i*ncol : (i+1)*ncol]
	}
	return m
}

// AllocateShortMatrix allocates an nrow x ncol int16 matrix backed by a
// single contiguous slice; used by the topography grid.
func AllocateShortMatrix(nrow, ncol int) [][]int16 {
	if nrow <= 0 || ncol <= 0 {
		return nil
	}
	backing := make([]int16, nrow*ncol)
	m := make([][]int16, nrow)
	for i := range m {
		m[i] = backing[i*ncol : (i+1)*ncol]
	}
	return m
}
