package seisloc

import (
	"encoding/json"
	"errors"
	"os"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// eventFile is the JSON shape of the per-event input document the loader
// hands to the locator: the reported hypocentres and the observations
// already joined with station coordinates.
type eventFile struct {
	EvID     int          `json:"evid"`
	PrefOrid int          `json:"preforid"`
	Etype    string       `json:"etype"`
	Magbloc  string       `json:"magbloc"`
	Hypos    []Hypocenter `json:"hypocenters"`
	Phases   []Phase      `json:"phases"`

	FixedOT           bool    `json:"fixed_ot"`
	FixedEpicenter    bool    `json:"fixed_epicenter"`
	FixedDepth        bool    `json:"fixed_depth"`
	FixDepthToUser    bool    `json:"fix_depth_to_user"`
	FixDepthToDefault bool    `json:"fix_depth_to_default"`
	FixDepthToMedian  bool    `json:"fix_depth_to_median"`
	FixDepthToDepdp   bool    `json:"fix_depth_to_depdp"`
	FixDepthToZero    bool    `json:"fix_depth_to_zero"`
	FixedHypocenter   bool    `json:"fixed_hypocenter"`
	StartDepth        float64 `json:"start_depth"`
}

// ReadEvent decodes a per-event JSON document. Times, azimuths and
// slownesses that are absent or zero are set to the NULLVAL sentinel; a
// zero Deltim is raised to 1 s so that weighting never divides by zero.
func ReadEvent(filename string) (*Event, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Join(ErrCannotOpenFile, err)
	}
	var ef eventFile
	if err := json.Unmarshal(raw, &ef); err != nil {
		return nil, errors.Join(ErrBadEventFile, err)
	}
	if len(ef.Hypos) == 0 {
		return nil, errors.Join(ErrBadEventFile, errors.New("event carries no hypocentre"))
	}
	if len(ef.Phases) == 0 {
		return nil, errors.Join(ErrBadEventFile, errors.New("event carries no phases"))
	}

	e := &Event{
		EvID:              ef.EvID,
		PrefOrid:          ef.PrefOrid,
		Etype:             ef.Etype,
		Magbloc:           ef.Magbloc,
		Hypos:             ef.Hypos,
		Phases:            ef.Phases,
		FixedOT:           ef.FixedOT,
		FixedEpicenter:    ef.FixedEpicenter,
		FixedDepth:        ef.FixedDepth,
		FixDepthToUser:    ef.FixDepthToUser,
		FixDepthToDefault: ef.FixDepthToDefault,
		FixDepthToMedian:  ef.FixDepthToMedian,
		FixDepthToDepdp:   ef.FixDepthToDepdp,
		FixDepthToZero:    ef.FixDepthToZero,
		FixedHypocenter:   ef.FixedHypocenter,
		StartDepth:        ef.StartDepth,
	}

	rdid := 0
	for i := range e.Phases {
		p := &e.Phases[i]
		if p.PriSta == "" {
			p.PriSta = p.Sta
		}
		if p.Deltim <= 0. {
			p.Deltim = 1.
		}
		if p.Time == 0. {
			p.Time = NULLVAL
		}
		if p.Azim == 0. {
			p.Azim = NULLVAL
		}
		if p.Slow == 0. {
			p.Slow = NULLVAL
		}
		if p.RdID == 0 {
			rdid++
			p.RdID = rdid
		}
		p.Timedef = p.Time != NULLVAL
	}
	return e, nil
}

// WriteJson serialises data to a JSON file. The output location can be
// local or an object store such as s3; IO goes through the TileDB VFS so
// both work transparently.
func WriteJson(file_uri string, config_uri string, data any) (int, error) {
	var config *tiledb.Config
	var err error

	// get a generic config if no path provided
	if config_uri == "" {
		config, err = tiledb.NewConfig()
		if err != nil {
			return 0, err
		}
	} else {
		config, err = tiledb.LoadConfig(config_uri)
		if err != nil {
			return 0, err
		}
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return 0, err
	}
	defer ctx.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		return 0, err
	}
	defer vfs.Free()

	// the vfs api auto checks for a file's existence and removes it if we
	// are wanting to write
	stream, err := vfs.Open(file_uri, tiledb.TILEDB_VFS_WRITE)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	jsn, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return 0, err
	}

	bytes_written, err := stream.Write(jsn)
	if err != nil {
		return 0, err
	}
	return bytes_written, nil
}

// JsonDumps constructs a JSON string of the supplied data.
func JsonDumps(data any) (string, error) {
	jsn, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(jsn), nil
}

// JsonIndentDumps constructs a json string of the supplied data using an
// indentation of four spaces.
func JsonIndentDumps(data any) (string, error) {
	jsn, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return "", err
	}
	return string(jsn), nil
}
