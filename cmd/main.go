package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/alitto/pond"
	"github.com/urfave/cli/v2"

	seisloc "github.com/sixy6e/go-seisloc"
)

// loadAux reads the auxiliary table set once at startup. Travel-time
// tables and the ellipticity corrections are required, and so is the
// variogram when correlated errors are enabled; everything else is
// optional and simply disables the feature that consumes it.
func loadAux(auxdir, model string, cfg *seisloc.Config) (*seisloc.AuxData, error) {
	aux := &seisloc.AuxData{}

	log.Println("Reading travel-time tables")
	tt, err := seisloc.ReadTTTables(filepath.Join(auxdir, "tt"), model)
	if err != nil {
		return nil, err
	}
	aux.TT = tt

	log.Println("Reading ellipticity correction tables")
	ec, err := seisloc.ReadEllipticityCorrections(filepath.Join(auxdir, "elcordir.tbl"))
	if err != nil {
		return nil, err
	}
	aux.Ellip = ec

	topo, err := seisloc.ReadTopoGrid(filepath.Join(auxdir, "etopo5.bin"), 2160, 4320, 5./60.)
	if err != nil {
		log.Println("No topography grid; bounce point corrections disabled")
	} else {
		aux.Topo = topo
	}

	vgram, err := seisloc.ReadVariogram(filepath.Join(auxdir, "variogram.model"))
	if err != nil {
		if cfg.DoCorrelatedErrors {
			return nil, errors.Join(err, errors.New("correlated errors need the generic variogram"))
		}
	} else {
		aux.Vgram = vgram
	}

	magq, err := seisloc.ReadMagnitudeQ(filepath.Join(auxdir, "GRmbQ.tbl"))
	if err != nil {
		log.Println("No magnitude attenuation table; mb Q term disabled")
	} else {
		aux.MagQ = magq
	}

	grid, err := seisloc.ReadDefaultDepthGrid(filepath.Join(auxdir, "default.depth.grid"))
	if err != nil {
		log.Println("No default depth grid; falling back to median depths")
	} else {
		aux.DepthGrid = grid
	}

	if cfg.UseLocalTT {
		aux.LocalTTDir = filepath.Join(auxdir, "localtt")
	}

	return aux, nil
}

// locate_event processes a single event file: load, locate, report and
// write the solution artifacts.
func locate_event(event_uri, outdir_uri, config_uri string, cfg *seisloc.Config, aux *seisloc.AuxData, verbose int) error {
	log.Println("Processing event:", event_uri)

	e, err := seisloc.ReadEvent(event_uri)
	if err != nil {
		return err
	}

	diag := &seisloc.Diagnostics{Level: verbose, Out: os.Stderr}
	ectx := seisloc.NewContext(cfg, aux, diag)

	res := seisloc.Locate(ectx, e)
	if res.Err != nil {
		log.Println("Locator failed:", res.Err)
	} else {
		s := res.Sol
		log.Printf("Final: lat=%.3f lon=%.3f depth=%.1f ndef=%d sdobs=%.3f",
			s.Lat, s.Lon, s.Depth, s.Ndef, s.Sdobs)
		for _, m := range s.Mags {
			log.Printf("  %s=%.2f +/- %.2f nsta=%d",
				m.Magtype, m.Magnitude, m.Uncertainty, m.Nsta)
		}
	}

	dir, file := filepath.Split(event_uri)
	if outdir_uri == "" {
		outdir_uri = dir
	}

	log.Println("Writing solution summary")
	out_uri := filepath.Join(outdir_uri, file+"-solution.json")
	_, err = seisloc.WriteJson(out_uri, config_uri, res.Sol)
	if err != nil {
		return err
	}

	log.Println("Writing residual array")
	var config *tiledb.Config
	if config_uri == "" {
		config, err = tiledb.NewConfig()
	} else {
		config, err = tiledb.LoadConfig(config_uri)
	}
	if err != nil {
		return err
	}
	defer config.Free()

	tctx, err := tiledb.NewContext(config)
	if err != nil {
		return err
	}
	defer tctx.Free()

	ex := seisloc.NewSolutionExport(res.Phases)
	out_uri = filepath.Join(outdir_uri, file+".tiledb")
	if err = ex.ToTileDB(out_uri, tctx, res.Sol); err != nil {
		return err
	}

	log.Println("Finished event:", event_uri)
	return res.Err
}

// locate_trawl submits every event file in a directory to a processing
// pool. Each event gets its own Context; the auxiliary tables are shared
// read-only.
func locate_trawl(uri, auxdir, model, outdir_uri, config_uri string, cfg *seisloc.Config, verbose int) error {
	log.Println("Searching uri:", uri)
	items, err := filepath.Glob(filepath.Join(uri, "*.json"))
	if err != nil {
		return err
	}
	log.Println("Number of events to process:", len(items))

	aux, err := loadAux(auxdir, model, cfg)
	if err != nil {
		return err
	}

	// Create a context that will be cancelled when the user presses Ctrl+C
	// (process receives termination signal).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n := runtime.NumCPU()
	pool := pond.New(n, 0, pond.MinWorkers(n), pond.Context(ctx))
	defer pool.StopAndWait()

	for _, name := range items {
		item_uri := name
		pool.Submit(func() {
			if err := locate_event(item_uri, outdir_uri, config_uri, cfg, aux, verbose); err != nil {
				log.Println(item_uri, err)
			}
		})
	}
	return nil
}

func main() {
	commonFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "aux-dir",
			Usage: "Pathname to the auxiliary data directory (travel-time tables, ellipticity corrections, topography, variogram).",
		},
		&cli.StringFlag{
			Name:  "model",
			Value: "ak135",
			Usage: "Velocity model name used to resolve the travel-time table files.",
		},
		&cli.StringFlag{
			Name:  "config-uri",
			Usage: "URI or pathname to a TileDB config file.",
		},
		&cli.StringFlag{
			Name:  "outdir-uri",
			Usage: "URI or pathname to an output directory.",
		},
		&cli.IntFlag{
			Name:  "verbose",
			Usage: "Diagnostics trace level.",
		},
		&cli.BoolFlag{
			Name:  "no-gridsearch",
			Usage: "Disable the neighbourhood algorithm starting-point search.",
		},
		&cli.BoolFlag{
			Name:  "no-correlated-errors",
			Usage: "Treat the observations as independent; skip the covariance projection.",
		},
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "Random number seed for the neighbourhood algorithm.",
		},
	}

	configure := func(cCtx *cli.Context) *seisloc.Config {
		cfg := seisloc.DefaultConfig()
		if cCtx.Bool("no-gridsearch") {
			cfg.DoGridSearch = false
		}
		if cCtx.Bool("no-correlated-errors") {
			cfg.DoCorrelatedErrors = false
		}
		if cCtx.Int64("seed") != 0 {
			cfg.Iseed = cCtx.Int64("seed")
		}
		return cfg
	}

	app := &cli.App{
		Commands: []*cli.Command{
			&cli.Command{
				Name: "locate",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "event-uri",
						Usage: "URI or pathname to an event JSON file.",
					},
				}, commonFlags...),
				Action: func(cCtx *cli.Context) error {
					cfg := configure(cCtx)
					aux, err := loadAux(cCtx.String("aux-dir"), cCtx.String("model"), cfg)
					if err != nil {
						return err
					}
					return locate_event(cCtx.String("event-uri"),
						cCtx.String("outdir-uri"), cCtx.String("config-uri"),
						cfg, aux, cCtx.Int("verbose"))
				},
			},
			&cli.Command{
				Name: "locate-trawl",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "uri",
						Usage: "URI or pathname to a directory containing event JSON files.",
					},
				}, commonFlags...),
				Action: func(cCtx *cli.Context) error {
					cfg := configure(cCtx)
					return locate_trawl(cCtx.String("uri"), cCtx.String("aux-dir"),
						cCtx.String("model"), cCtx.String("outdir-uri"),
						cCtx.String("config-uri"), cfg, cCtx.Int("verbose"))
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
