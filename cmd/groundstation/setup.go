package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/config"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/detect"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/detect/yolo"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/radar"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/sensorlink"
)

// loadConfig reads path, or the default config file when path is empty. A
// missing default file is not an error; every field has a default.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.Load(config.DefaultConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Empty(), nil
	}
	return cfg, err
}

// sensorDialer picks TCP or serial transport for the sensor link.
func sensorDialer(cfg *config.Config) (sensorlink.Dialer, error) {
	switch t := cfg.GetSensorTransport(); t {
	case "tcp":
		return sensorlink.TCPDialer{Addr: cfg.SensorAddr(), Timeout: cfg.GetDialTimeout()}, nil
	case "serial":
		path := cfg.GetSerialPath()
		if path == "" {
			return nil, errors.New("serial transport needs serial_path")
		}
		return sensorlink.SerialDialer{Path: path, Options: cfg.GetSerial()}, nil
	default:
		return nil, fmt.Errorf("unknown sensor transport %q", t)
	}
}

// newDetector builds the configured detector. A YOLO model that cannot be
// loaded disables detection rather than the video feed.
func newDetector(cfg *config.Config) detect.Detector {
	switch cfg.GetDetector() {
	case "none":
		return detect.Nop{}
	case "yolo":
		yc := yolo.DefaultConfig()
		yc.ModelPath = cfg.GetModelPath()
		yc.ConfidenceThresh = float32(cfg.GetConfidenceThreshold())
		yc.NMSThresh = float32(cfg.GetNMSThreshold())
		d, err := yolo.New(yc)
		if err != nil {
			log.Printf("object detection disabled: %v", err)
			return detect.Nop{}
		}
		log.Printf("loaded detector model %s", yc.ModelPath)
		return d
	}
	log.Printf("unknown detector %q, object detection disabled", cfg.GetDetector())
	return detect.Nop{}
}

func scaleFrom(cfg *config.Config) radar.Scale {
	return radar.Scale{MaxRange: cfg.GetMaxRangeMeters(), RenderRadius: cfg.GetRenderRadius()}
}

type eventRecorder interface {
	Run(ctx context.Context) error
}

// runRecorded runs the station until it returns and only then stops the
// recorder, so the link events queued while the station shuts down are
// written by the final flush.
func runRecorded(ctx context.Context, rec eventRecorder, station func(context.Context) error) error {
	recCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(recCtx) }()

	err := station(ctx)
	cancel()
	if rerr := <-done; rerr != nil && !errors.Is(rerr, context.Canceled) {
		log.Printf("recorder: %v", rerr)
	}
	return err
}
