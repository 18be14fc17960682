// Command trajectory analyses a tracked cricket delivery: it loads a
// raw track file, runs the estimation pipeline, prints the verdict,
// and optionally persists the run and serves stored runs over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wicket-data/trajectory.report/internal/api"
	"github.com/wicket-data/trajectory.report/internal/ball/pipeline"
	"github.com/wicket-data/trajectory.report/internal/config"
	"github.com/wicket-data/trajectory.report/internal/trackdb"
	"github.com/wicket-data/trajectory.report/internal/units"
	"github.com/wicket-data/trajectory.report/internal/version"
)

var (
	inputPath  = flag.String("input", "", "raw track file to analyse (JSON)")
	configPath = flag.String("config", "", "tuning config file (defaults applied when empty)")
	exportPath = flag.String("export", "", "write the analysed trajectory to this filename")
	dbPath     = flag.String("db", "runs.db", "runs database path (empty disables persistence)")
	listen     = flag.String("listen", ":8080", "listen address for -serve")
	serve      = flag.Bool("serve", false, "serve stored runs over HTTP after analysing")
	speedUnits = flag.String("units", "mps", "speed units for reporting: "+units.GetValidUnitsString())
	showVer    = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("trajectory.report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("invalid -units %q, valid: %s", *speedUnits, units.GetValidUnitsString())
	}
	if *inputPath == "" && !*serve {
		log.Fatal("nothing to do: provide -input to analyse a delivery or -serve to serve stored runs")
	}

	cfg := loadConfig()

	var db *trackdb.DB
	if *dbPath != "" {
		var err error
		db, err = trackdb.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open runs database: %v", err)
		}
		defer db.Close()
	}

	if *inputPath != "" {
		res, err := pipeline.RunFile(cfg, *inputPath)
		if err != nil {
			log.Fatalf("analysis failed: %v", err)
		}
		printSummary(res)

		if db != nil {
			if err := db.SaveRun(res, filepath.Base(*inputPath)); err != nil {
				log.Fatalf("failed to persist run: %v", err)
			}
			log.Printf("persisted run %s to %s", res.RunID, *dbPath)
		}
		if *exportPath != "" {
			if err := pipeline.SetExportDir("."); err != nil {
				log.Fatalf("failed to set export directory: %v", err)
			}
			if err := pipeline.Export(res, *exportPath); err != nil {
				log.Fatalf("failed to export trajectory: %v", err)
			}
		}
	}

	if *serve {
		if db == nil {
			log.Fatal("-serve requires -db")
		}
		serveRuns(db)
	}
}

func loadConfig() *config.TuningConfig {
	if *configPath == "" {
		return config.EmptyTuningConfig()
	}
	cfg, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}
	return cfg
}

func printSummary(res *pipeline.Result) {
	launch := res.Segment.Arcs[0].V0
	speed := units.ConvertSpeed(
		math.Sqrt(launch[0]*launch[0]+launch[1]*launch[1]+launch[2]*launch[2]), *speedUnits)
	d := res.Decision

	fmt.Printf("run:     %s\n", res.RunID)
	fmt.Printf("frames:  %d tracked, %d bounce(s) predicted\n", len(res.WorldStates), len(res.Segment.Bounces()))
	fmt.Printf("speed:   %.1f %s at launch\n", speed, *speedUnits)
	fmt.Printf("impact:  lateral %+.3f m, height %.3f m at t=%.3fs\n",
		d.ImpactPoint[1], d.ImpactHeight, d.ImpactTime)
	fmt.Printf("verdict: %s (margin %+.3f m)\n", d.Verdict, d.Margin)
}

func serveRuns(db *trackdb.DB) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		log.Fatalf("failed to attach admin routes: %v", err)
	}

	apiMux := api.NewServer(db, *speedUnits).ServeMux()
	mux.Handle("/api/", apiMux)
	mux.Handle("/healthz", apiMux)

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	go func() {
		log.Printf("serving stored runs on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
}
