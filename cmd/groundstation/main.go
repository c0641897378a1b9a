// Command groundstation connects to the rotating-sensor rig, classifies the
// sweep against the calibration map and serves the radar display, the
// control API and the debug pages over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/api"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/config"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/db"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/display"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/groundstation"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/monitoring"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/version"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/webui"
)

var (
	configPath  = flag.String("config", "", "Path to JSON config file (defaults to "+config.DefaultConfigPath+" if present)")
	host        = flag.String("host", "", "Rig host, overrides the config file")
	listen      = flag.String("listen", "", "HTTP listen address, overrides the config file")
	dbPath      = flag.String("db", "", "Event log database path, overrides the config file")
	serialPath  = flag.String("serial", "", "Read the sensor over this serial device instead of TCP")
	noVideo     = flag.Bool("no-video", false, "Do not connect the video link")
	detector    = flag.String("detector", "", "Object detector: yolo or none")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("groundstation %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg.Override(*host, *listen, *dbPath, *serialPath, *detector)

	monitoring.SetLogger(log.Printf)

	dialer, err := sensorDialer(cfg)
	if err != nil {
		log.Fatalf("sensor link: %v", err)
	}

	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	recorder := db.NewRecorder(database, 256, nil)
	log.Printf("event log %s, session %s", cfg.GetDBPath(), recorder.SessionID())

	scale := scaleFrom(cfg)
	hub := webui.NewHub(scale)

	opts := groundstation.Options{
		SensorDialer:   dialer,
		VideoReconnect: cfg.GetVideoReconnect(),
		DialTimeout:    cfg.GetDialTimeout(),
		MaxFrameSize:   cfg.GetMaxFrameBytes(),
		Scale:          scale,
		Threshold:      cfg.GetMinDistance(),
		Backoff:        cfg.GetReconnectBackoff(),
		DisplayTick:    cfg.GetDisplayTick(),
		Recorder:       recorder,
		Renderers:      []display.Renderer{hub},
	}
	if cfg.GetVideoEnabled() && !*noVideo {
		opts.VideoAddr = cfg.VideoAddr()
		opts.Detector = newDetector(cfg)
		defer opts.Detector.Close()
	}

	station, err := groundstation.New(opts)
	if err != nil {
		log.Fatalf("failed to build station: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	// The station ends on Quit as well as on a signal; either way the rest
	// of the process follows it down. The recorder outlives it.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		log.Printf("connecting to sensor %s", dialer)
		if err := runRecorded(ctx, recorder, station.Run); err != nil {
			log.Printf("station: %v", err)
		}
		log.Printf("station stopped, %d events written, %d dropped", recorder.Written(), recorder.Dropped())
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(station, database).ServeMux()
		station.Sensor().AttachAdminRoutes(mux)
		database.AttachAdminRoutes(mux)
		if err := hub.Attach(mux); err != nil {
			log.Fatalf("failed to mount web UI: %v", err)
		}

		server := &http.Server{
			Addr:              cfg.GetListen(),
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			log.Printf("serving on %s", cfg.GetListen())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
