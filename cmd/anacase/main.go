package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cbf-labs/anacase/internal/actuator"
	"github.com/cbf-labs/anacase/internal/api"
	"github.com/cbf-labs/anacase/internal/config"
	"github.com/cbf-labs/anacase/internal/counting"
	"github.com/cbf-labs/anacase/internal/db"
	"github.com/cbf-labs/anacase/internal/metrics"
	"github.com/cbf-labs/anacase/internal/monitoring"
	"github.com/cbf-labs/anacase/internal/overlay"
	"github.com/cbf-labs/anacase/internal/serialmux"
	"github.com/cbf-labs/anacase/internal/station"
	"github.com/cbf-labs/anacase/internal/vision"
	"github.com/cbf-labs/anacase/internal/version"
)

var (
	configPath       = flag.String("config", "", "Path to the station JSON config (defaults when empty)")
	logPath          = flag.String("log", "", "Also write the log to this file")
	listen           = flag.String("listen", ":8080", "Listen address")
	devMode          = flag.Bool("dev", false, "Run against a simulated signal tower")
	fixture          = flag.String("fixture", "", "Replay detections from this JSON-lines file instead of the simulator")
	loopFixture      = flag.Bool("loop", false, "Restart the fixture when it ends")
	disableActuators = flag.Bool("disable-actuators", false, "Never drive the signal tower")
	dbPath           = flag.String("db", "", "Audit journal path (overrides journal_path)")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *logPath != "" {
		f, err := monitoring.TeeToFile(*logPath)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		defer f.Close()
	}

	cfg := config.Defaults()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadStationConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	monitoring.SetLevel(cfg.GetLogLevel())
	stationID := cfg.ResolveStationID()
	log.Printf("%s starting, station %s", version.String(), stationID)

	tower := openTower(cfg)
	defer tower.Close()
	if err := tower.Initialize(); err != nil {
		log.Fatalf("failed to initialize signal tower: %v", err)
	}

	var sink actuator.Sink = actuator.NoopSink{}
	if !*disableActuators && (*devMode || cfg.GetActuator() == config.ActuatorSerial) {
		sink = actuator.NewSerialSink(tower)
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	engine, err := counting.New(engineCfg, sink)
	if err != nil {
		log.Fatalf("failed to build counting engine: %v", err)
	}

	journalPath := cfg.GetJournalPath()
	if *dbPath != "" {
		journalPath = *dbPath
	}
	journal, err := db.NewDB(journalPath)
	if err != nil {
		log.Fatalf("Failed to open audit journal: %v", err)
	}
	defer journal.Close()

	source, err := openSource(engine.Beam())
	if err != nil {
		log.Fatalf("failed to open frame source: %v", err)
	}

	m := metrics.New()
	runner := &station.Runner{
		Engine:    engine,
		Source:    source,
		Interval:  cfg.GetFrameInterval(),
		Metrics:   m,
		StationID: stationID,
		Buttons:   tower,
		Journal:   journal,
		StopOnEOF: *fixture != "" && !*loopFixture,
	}

	server := api.NewServer(engine, journal, overlay.New(stationID))
	server.SetLiveFrames(runner)
	server.SetMetrics(m)
	mux := server.ServeMux()
	tower.AttachAdminRoutes(mux)
	if err := journal.AttachAdminRoutes(mux); err != nil {
		log.Fatalf("failed to attach journal admin routes: %v", err)
	}
	server.AttachDebugRoutes(mux)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tower.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// the driver loop owns the engine; it shuts it down on exit
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		err := runner.Run(ctx)
		switch {
		case errors.Is(err, station.ErrSourceDone):
			log.Print("fixture finished")
		case err != nil:
			log.Printf("station loop stopped: %v", err)
		}
		log.Print("station routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx, *listen, mux); err != nil {
			log.Printf("failed to start server: %v", err)
			stop()
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	if err := sink.AllOff(); err != nil {
		log.Printf("failed to turn actuators off: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// openTower picks the serial link to the signal tower and panel buttons.
func openTower(cfg *config.StationConfig) serialmux.SerialMuxInterface {
	switch {
	case *devMode:
		mux, _ := serialmux.NewMockSerialMux()
		log.Print("dev mode: using simulated signal tower")
		return mux
	case cfg.GetActuator() == config.ActuatorSerial && !*disableActuators:
		mux, err := serialmux.NewRealSerialMux(cfg.GetSerialPort(), cfg.GetSerialOptions())
		if err != nil {
			log.Fatalf("failed to open signal tower port: %v", err)
		}
		return mux
	default:
		return serialmux.NewDisabledSerialMux()
	}
}

func openSource(beam counting.Beam) (vision.Source, error) {
	if *fixture != "" {
		return vision.LoadReplay(*fixture, *loopFixture)
	}
	log.Print("no fixture given: counting a simulated conveyor")
	band := beam.Approach
	if band == 0 {
		band = beam.DeadZone
	}
	return vision.NewSimulator(vision.SimulatorConfig{
		Beam:   beam,
		Width:  overlay.DefaultWidth,
		Height: overlay.DefaultHeight,
		Step:   min(8, band/2),
		Render: true,
	})
}
