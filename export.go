package seisloc

import (
	"errors"
	"reflect"
	"time"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/soniakeys/meeus/v3/julian"
	stgpsr "github.com/yuin/stagparser"
)

// SolutionExport is the dense row-per-observation layout the final
// solution is serialised into: one row per associated phase carrying the
// assigned name, the prediction and the residuals, with the solution
// itself attached as array metadata. The tags drive the TileDB attribute
// schema.
type SolutionExport struct {
	Sta      []string  `tiledb:"dtype=string,ftype=attr,var" filters:"zstd(level=16)"`
	Phase    []string  `tiledb:"dtype=string,ftype=attr,var" filters:"zstd(level=16)"`
	Reported []string  `tiledb:"dtype=string,ftype=attr,var" filters:"zstd(level=16)"`
	Delta    []float64 `tiledb:"dtype=float64,ftype=attr" filters:"bysh,zstd(level=16)"`
	Esaz     []float64 `tiledb:"dtype=float64,ftype=attr" filters:"bysh,zstd(level=16)"`
	Ttime    []float64 `tiledb:"dtype=float64,ftype=attr" filters:"bysh,zstd(level=16)"`
	Timeres  []float64 `tiledb:"dtype=float64,ftype=attr" filters:"bysh,zstd(level=16)"`
	Azimres  []float64 `tiledb:"dtype=float64,ftype=attr" filters:"bysh,zstd(level=16)"`
	Slowres  []float64 `tiledb:"dtype=float64,ftype=attr" filters:"bysh,zstd(level=16)"`
	Timedef  []uint8   `tiledb:"dtype=uint8,ftype=attr" filters:"zstd(level=16)"`
}

// NewSolutionExport flattens the mutated phase array into the export
// layout.
func NewSolutionExport(phases []Phase) *SolutionExport {
	n := len(phases)
	ex := &SolutionExport{
		Sta:      make([]string, n),
		Phase:    make([]string, n),
		Reported: make([]string, n),
		Delta:    make([]float64, n),
		Esaz:     make([]float64, n),
		Ttime:    make([]float64, n),
		Timeres:  make([]float64, n),
		Azimres:  make([]float64, n),
		Slowres:  make([]float64, n),
		Timedef:  make([]uint8, n),
	}
	for i := range phases {
		p := &phases[i]
		ex.Sta[i] = p.PriSta
		ex.Phase[i] = p.Phase
		ex.Reported[i] = p.ReportedPhase
		ex.Delta[i] = p.Delta
		ex.Esaz[i] = p.Esaz
		ex.Ttime[i] = p.Ttime
		ex.Timeres[i] = p.Timeres
		ex.Azimres[i] = p.Azimres
		ex.Slowres[i] = p.Slowres
		if p.Timedef {
			ex.Timedef[i] = 1
		}
	}
	return ex
}

// ArrayOpen is a helper func for opening a tiledb array.
func ArrayOpen(ctx *tiledb.Context, uri string, mode tiledb.QueryType) (*tiledb.Array, error) {
	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return nil, err
	}
	err = array.Open(mode)
	if err != nil {
		array.Free()
		return nil, err
	}
	return array, nil
}

// AddFilters attaches a sequence of filters to a filter pipeline.
func AddFilters(filter_list *tiledb.FilterList, filter ...*tiledb.Filter) error {
	for _, filt := range filter {
		if err := filter_list.AddFilter(filt); err != nil {
			return errors.Join(ErrAddFilters, err)
		}
	}
	return nil
}

// ZstdFilter initialises a zstandard compression filter.
func ZstdFilter(ctx *tiledb.Context, level int32) (*tiledb.Filter, error) {
	filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_ZSTD)
	if err != nil {
		return nil, errors.Join(ErrZstdFilt, err)
	}
	if err = filt.SetOption(tiledb.TILEDB_COMPRESSION_LEVEL, level); err != nil {
		return nil, errors.Join(ErrZstdFilt, err)
	}
	return filt, nil
}

// createAttr creates a tiledb attribute with the compression pipeline
// declared by the struct tags. Supported dtype values are uint8, float64
// and string; supported filters are zstd(level=n) and bysh (byteshuffle).
// The residual export only needs this subset; the offsets of variable
// length attributes get the usual positive-delta, byteshuffle,
// zstandard treatment.
func createAttr(field_name string, filter_defs []stgpsr.Definition,
	tiledb_defs map[string]stgpsr.Definition, schema *tiledb.ArraySchema,
	ctx *tiledb.Context) error {

	def, status := tiledb_defs["dtype"]
	if !status {
		return errors.Join(ErrCreateAttributeTdb, errors.New("dtype tag not found"))
	}
	dtype, _ := def.Attribute("dtype")

	var tdb_dtype tiledb.Datatype
	switch dtype {
	case "uint8":
		tdb_dtype = tiledb.TILEDB_UINT8
	case "float64":
		tdb_dtype = tiledb.TILEDB_FLOAT64
	case "string":
		tdb_dtype = tiledb.TILEDB_STRING_UTF8
	default:
		return errors.Join(ErrCreateAttributeTdb, errors.New("unsupported dtype tag"))
	}

	attr_filts, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return errors.Join(ErrFiltList, err)
	}
	defer attr_filts.Free()

	for _, filter := range filter_defs {
		switch filter.Name() {
		case "zstd":
			level, ok := filter.Attribute("level")
			if !ok {
				return errors.Join(ErrNewFilt, errors.New("zstd level not defined"))
			}
			filt, err := ZstdFilter(ctx, int32(level.(int64)))
			if err != nil {
				return err
			}
			defer filt.Free()
			if err = attr_filts.AddFilter(filt); err != nil {
				return errors.Join(ErrAddFilters, err)
			}
		case "bysh":
			filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_BYTESHUFFLE)
			if err != nil {
				return errors.Join(ErrNewFilt, err)
			}
			defer filt.Free()
			if err = attr_filts.AddFilter(filt); err != nil {
				return errors.Join(ErrAddFilters, err)
			}
		}
	}

	attr, err := tiledb.NewAttribute(ctx, field_name, tdb_dtype)
	if err != nil {
		return errors.Join(ErrNewAttr, err)
	}
	defer attr.Free()

	_, isvar := tiledb_defs["var"]
	if isvar || tdb_dtype == tiledb.TILEDB_STRING_UTF8 {
		attr.SetCellValNum(tiledb.TILEDB_VAR_NUM)
	}

	if err = attr.SetFilterList(attr_filts); err != nil {
		return errors.Join(ErrCreateAttributeTdb, err)
	}
	if err = schema.AddAttributes(attr); err != nil {
		return errors.Join(ErrCreateAttributeTdb, err)
	}

	if isvar || tdb_dtype == tiledb.TILEDB_STRING_UTF8 {
		offset_filts, err := tiledb.NewFilterList(ctx)
		if err != nil {
			return errors.Join(ErrFiltList, err)
		}
		dd_filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_POSITIVE_DELTA)
		if err != nil {
			return errors.Join(ErrNewFilt, err)
		}
		bysh_filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_BYTESHUFFLE)
		if err != nil {
			return errors.Join(ErrNewFilt, err)
		}
		zstd_filt, err := ZstdFilter(ctx, int32(16))
		if err != nil {
			return err
		}
		if err = AddFilters(offset_filts, dd_filt, bysh_filt, zstd_filt); err != nil {
			return err
		}
		if err = schema.SetOffsetsFilterList(offset_filts); err != nil {
			return errors.Join(ErrCreateAttributeTdb, err)
		}
	}
	return nil
}

// schemaAttrs establishes the tiledb attributes for the export struct by
// walking its tagged fields.
func (ex *SolutionExport) schemaAttrs(schema *tiledb.ArraySchema, ctx *tiledb.Context) error {
	values := reflect.ValueOf(ex).Elem()
	types := values.Type()
	filt_defs, _ := stgpsr.ParseStruct(ex, "filters")
	tdb_defs, _ := stgpsr.ParseStruct(ex, "tiledb")

	for i := 0; i < values.NumField(); i++ {
		name := types.Field(i).Name
		field_filt_defs := filt_defs[name]

		field_tdb_defs := make(map[string]stgpsr.Definition)
		for _, v := range tdb_defs[name] {
			field_tdb_defs[v.Name()] = v
		}

		def, status := field_tdb_defs["ftype"]
		if !status {
			return errors.Join(ErrCreateSolutionTdb, errors.New("ftype tag not found"))
		}
		ftype, _ := def.Attribute("ftype")
		if ftype == "dim" {
			continue
		}

		if err := createAttr(name, field_filt_defs, field_tdb_defs, schema, ctx); err != nil {
			return errors.Join(ErrCreateSolutionTdb, err)
		}
	}
	return nil
}

// solutionArray establishes the dense array schema on disk/object store:
// a single row dimension over the associated phases.
func (ex *SolutionExport) solutionArray(file_uri string, ctx *tiledb.Context, nrows uint64) error {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return errors.Join(ErrCreateSolutionTdb, err)
	}
	defer domain.Free()

	dim, err := tiledb.NewDimension(ctx, "__tiledb_rows", tiledb.TILEDB_UINT64,
		[]uint64{0, nrows - uint64(1)}, nrows)
	if err != nil {
		return errors.Join(ErrCreateSolutionTdb, err)
	}
	defer dim.Free()

	dim_filters, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return errors.Join(ErrFiltList, err)
	}
	defer dim_filters.Free()

	dim_f1, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_POSITIVE_DELTA)
	if err != nil {
		return errors.Join(ErrNewFilt, err)
	}
	defer dim_f1.Free()

	dim_f2, err := ZstdFilter(ctx, int32(16))
	if err != nil {
		return err
	}
	defer dim_f2.Free()

	if err = AddFilters(dim_filters, dim_f1, dim_f2); err != nil {
		return err
	}
	if err = dim.SetFilterList(dim_filters); err != nil {
		return errors.Join(ErrCreateSolutionTdb, err)
	}
	if err = domain.AddDimensions(dim); err != nil {
		return errors.Join(ErrCreateSolutionTdb, err)
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_DENSE)
	if err != nil {
		return errors.Join(ErrCreateSolutionTdb, err)
	}
	defer schema.Free()

	if err = schema.SetDomain(domain); err != nil {
		return errors.Join(ErrCreateSolutionTdb, err)
	}
	if err = schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrCreateSolutionTdb, err)
	}
	if err = schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrCreateSolutionTdb, err)
	}

	if err = ex.schemaAttrs(schema, ctx); err != nil {
		return err
	}

	array, err := tiledb.NewArray(ctx, file_uri)
	if err != nil {
		return errors.Join(ErrCreateSolutionTdb, err)
	}
	defer array.Free()

	if err = array.Create(schema); err != nil {
		return errors.Join(ErrCreateSolutionTdb, err)
	}
	return nil
}

// stringBuffers flattens a string column into the contiguous byte buffer
// and offsets that the variable length string attribute expects.
func stringBuffers(col []string) ([]byte, []uint64) {
	offsets := make([]uint64, len(col))
	total := 0
	for _, s := range col {
		total += len(s)
	}
	data := make([]byte, 0, total)
	off := uint64(0)
	for i, s := range col {
		offsets[i] = off
		data = append(data, s...)
		off += uint64(len(s))
	}
	if len(data) == 0 {
		// tiledb rejects empty data buffers
		data = append(data, ' ')
	}
	return data, offsets
}

// ToTileDB writes the solution export to a dense TileDB array, with the
// final hypocentre, its covariance and the network magnitudes attached as
// JSON array metadata. The origin epoch is also stamped as a Julian date
// for astronomical tooling downstream.
func (ex *SolutionExport) ToTileDB(file_uri string, ctx *tiledb.Context, s *Solution) error {
	nrows := uint64(len(ex.Sta))
	if nrows == 0 {
		return errors.Join(ErrWriteSolutionTdb, errors.New("no phases to export"))
	}
	if err := ex.solutionArray(file_uri, ctx, nrows); err != nil {
		return err
	}

	array, err := ArrayOpen(ctx, file_uri, tiledb.TILEDB_WRITE)
	if err != nil {
		return errors.Join(ErrWriteSolutionTdb, err)
	}
	defer array.Free()
	defer array.Close()

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return errors.Join(ErrWriteSolutionTdb, err)
	}
	defer query.Free()

	if err = query.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrWriteSolutionTdb, err)
	}

	for _, col := range []struct {
		name string
		vals []string
	}{
		{"Sta", ex.Sta}, {"Phase", ex.Phase}, {"Reported", ex.Reported},
	} {
		data, offsets := stringBuffers(col.vals)
		if _, err = query.SetDataBuffer(col.name, data); err != nil {
			return errors.Join(ErrWriteSolutionTdb, err)
		}
		if _, err = query.SetOffsetsBuffer(col.name, offsets); err != nil {
			return errors.Join(ErrWriteSolutionTdb, err)
		}
	}
	for _, col := range []struct {
		name string
		vals []float64
	}{
		{"Delta", ex.Delta}, {"Esaz", ex.Esaz}, {"Ttime", ex.Ttime},
		{"Timeres", ex.Timeres}, {"Azimres", ex.Azimres}, {"Slowres", ex.Slowres},
	} {
		if _, err = query.SetDataBuffer(col.name, col.vals); err != nil {
			return errors.Join(ErrWriteSolutionTdb, err)
		}
	}
	if _, err = query.SetDataBuffer("Timedef", ex.Timedef); err != nil {
		return errors.Join(ErrWriteSolutionTdb, err)
	}

	subarr, err := array.NewSubarray()
	if err != nil {
		return errors.Join(ErrWriteSolutionTdb, err)
	}
	defer subarr.Free()

	rng := tiledb.MakeRange(uint64(0), nrows-uint64(1))
	subarr.AddRangeByName("__tiledb_rows", rng)
	if err = query.SetSubarray(subarr); err != nil {
		return errors.Join(ErrWriteSolutionTdb, err)
	}

	if err = query.Submit(); err != nil {
		return errors.Join(ErrWriteSolutionTdb, err)
	}
	if err = query.Finalize(); err != nil {
		return errors.Join(ErrWriteSolutionTdb, err)
	}

	// hypocentre and magnitudes as array metadata
	md := map[string]any{
		"time":       s.Time,
		"julian_day": julian.TimeToJD(time.Unix(int64(s.Time), 0).UTC()),
		"lat":        s.Lat,
		"lon":        s.Lon,
		"depth":      s.Depth,
		"converged":  s.Converged,
		"ndef":       s.Ndef,
		"sdobs":      s.Sdobs,
		"smajax":     s.Smajax,
		"sminax":     s.Sminax,
		"strike":     s.Strike,
		"covar":      s.Covar,
		"error":      s.Error,
		"depdp":      s.Depdp,
		"magnitudes": s.Mags,
	}
	jsn, err := JsonDumps(md)
	if err != nil {
		return err
	}
	if err = array.PutMetadata("solution", jsn); err != nil {
		return errors.Join(ErrWriteSolutionTdb, err)
	}
	return nil
}
