// Package config loads the ground station configuration file. Every field is
// optional; the Get* accessors return the built-in default for a field that
// is absent.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/sensorlink"
)

// DefaultConfigPath is where cmd/groundstation looks when -config is unset.
const DefaultConfigPath = "config/groundstation.defaults.json"

// Config is the on-disk configuration.
type Config struct {
	Host       *string `json:"host,omitempty"`
	SensorPort *int    `json:"sensor_port,omitempty"`
	VideoPort  *int    `json:"video_port,omitempty"`

	// SensorTransport is "tcp" (default) or "serial".
	SensorTransport *string                 `json:"sensor_transport,omitempty"`
	SerialPath      *string                 `json:"serial_path,omitempty"`
	Serial          *sensorlink.PortOptions `json:"serial,omitempty"`

	MinDistance      *float64 `json:"min_distance,omitempty"`
	MaxRangeMeters   *float64 `json:"max_range_meters,omitempty"`
	RenderRadius     *float64 `json:"render_radius,omitempty"`
	ReconnectBackoff *string  `json:"reconnect_backoff,omitempty"` // duration string like "1s"
	DialTimeout      *string  `json:"dial_timeout,omitempty"`
	DisplayTick      *string  `json:"display_tick,omitempty"`

	VideoEnabled   *bool `json:"video_enabled,omitempty"`
	VideoReconnect *bool `json:"video_reconnect,omitempty"`
	MaxFrameBytes  *int  `json:"max_frame_bytes,omitempty"`

	// Detector is "yolo" (default) or "none".
	Detector            *string  `json:"detector,omitempty"`
	ModelPath           *string  `json:"model_path,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	NMSThreshold        *float64 `json:"nms_threshold,omitempty"`

	Listen *string `json:"listen,omitempty"`
	DBPath *string `json:"db_path,omitempty"`
}

func ptrString(v string) *string { return &v }

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads and validates a JSON config file.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *Config) Validate() error {
	for name, p := range map[string]*int{"sensor_port": c.SensorPort, "video_port": c.VideoPort} {
		if p != nil && (*p <= 0 || *p > 65535) {
			return fmt.Errorf("%s must be between 1 and 65535, got %d", name, *p)
		}
	}

	if c.SensorTransport != nil {
		switch *c.SensorTransport {
		case "tcp":
		case "serial":
			if c.SerialPath == nil || *c.SerialPath == "" {
				return fmt.Errorf("serial_path is required when sensor_transport is serial")
			}
		default:
			return fmt.Errorf("sensor_transport must be tcp or serial, got %q", *c.SensorTransport)
		}
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}

	if c.MinDistance != nil && (*c.MinDistance < 0.5 || *c.MinDistance > 10) {
		return fmt.Errorf("min_distance must be between 0.5 and 10, got %f", *c.MinDistance)
	}
	if c.MaxRangeMeters != nil && *c.MaxRangeMeters <= 0 {
		return fmt.Errorf("max_range_meters must be positive, got %f", *c.MaxRangeMeters)
	}
	if c.RenderRadius != nil && *c.RenderRadius <= 0 {
		return fmt.Errorf("render_radius must be positive, got %f", *c.RenderRadius)
	}

	for name, s := range map[string]*string{
		"reconnect_backoff": c.ReconnectBackoff,
		"dial_timeout":      c.DialTimeout,
		"display_tick":      c.DisplayTick,
	} {
		if s == nil || *s == "" {
			continue
		}
		d, err := time.ParseDuration(*s)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *s, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *s)
		}
	}

	if c.MaxFrameBytes != nil && *c.MaxFrameBytes <= 0 {
		return fmt.Errorf("max_frame_bytes must be positive, got %d", *c.MaxFrameBytes)
	}

	if c.Detector != nil && *c.Detector != "yolo" && *c.Detector != "none" {
		return fmt.Errorf("detector must be yolo or none, got %q", *c.Detector)
	}
	for name, v := range map[string]*float64{
		"confidence_threshold": c.ConfidenceThreshold,
		"nms_threshold":        c.NMSThreshold,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}
	return nil
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func (c *Config) GetHost() string {
	if c.Host == nil {
		return "192.168.137.102"
	}
	return *c.Host
}

func (c *Config) GetSensorPort() int {
	if c.SensorPort == nil {
		return 12345
	}
	return *c.SensorPort
}

func (c *Config) GetVideoPort() int {
	if c.VideoPort == nil {
		return 10050
	}
	return *c.VideoPort
}

// SensorAddr is host:sensor_port.
func (c *Config) SensorAddr() string {
	return net.JoinHostPort(c.GetHost(), strconv.Itoa(c.GetSensorPort()))
}

// VideoAddr is host:video_port.
func (c *Config) VideoAddr() string {
	return net.JoinHostPort(c.GetHost(), strconv.Itoa(c.GetVideoPort()))
}

func (c *Config) GetSensorTransport() string {
	if c.SensorTransport == nil {
		return "tcp"
	}
	return *c.SensorTransport
}

func (c *Config) GetSerialPath() string {
	if c.SerialPath == nil {
		return ""
	}
	return *c.SerialPath
}

func (c *Config) GetSerial() sensorlink.PortOptions {
	if c.Serial == nil {
		return sensorlink.PortOptions{}
	}
	return *c.Serial
}

func (c *Config) GetMinDistance() float64 {
	if c.MinDistance == nil {
		return 0.5
	}
	return *c.MinDistance
}

func (c *Config) GetMaxRangeMeters() float64 {
	if c.MaxRangeMeters == nil {
		return 10
	}
	return *c.MaxRangeMeters
}

func (c *Config) GetRenderRadius() float64 {
	if c.RenderRadius == nil {
		return 240
	}
	return *c.RenderRadius
}

func (c *Config) GetReconnectBackoff() time.Duration {
	return durationOr(c.ReconnectBackoff, time.Second)
}

func (c *Config) GetDialTimeout() time.Duration {
	return durationOr(c.DialTimeout, 3*time.Second)
}

func (c *Config) GetDisplayTick() time.Duration {
	return durationOr(c.DisplayTick, 30*time.Millisecond)
}

func (c *Config) GetVideoEnabled() bool {
	if c.VideoEnabled == nil {
		return true
	}
	return *c.VideoEnabled
}

func (c *Config) GetVideoReconnect() bool {
	if c.VideoReconnect == nil {
		return false
	}
	return *c.VideoReconnect
}

func (c *Config) GetMaxFrameBytes() int {
	if c.MaxFrameBytes == nil {
		return 16 << 20
	}
	return *c.MaxFrameBytes
}

func (c *Config) GetDetector() string {
	if c.Detector == nil {
		return "yolo"
	}
	return *c.Detector
}

func (c *Config) GetModelPath() string {
	if c.ModelPath == nil {
		return "models/yolov8n.onnx"
	}
	return *c.ModelPath
}

func (c *Config) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.5
	}
	return *c.ConfidenceThreshold
}

func (c *Config) GetNMSThreshold() float64 {
	if c.NMSThreshold == nil {
		return 0.45
	}
	return *c.NMSThreshold
}

func (c *Config) GetListen() string {
	if c.Listen == nil {
		return ":8080"
	}
	return *c.Listen
}

func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return "groundstation.db"
	}
	return *c.DBPath
}

// Override sets string-valued fields from command-line flags. Empty values
// leave the field alone.
func (c *Config) Override(host, listen, dbPath, serialPath, detector string) {
	if host != "" {
		c.Host = ptrString(host)
	}
	if listen != "" {
		c.Listen = ptrString(listen)
	}
	if dbPath != "" {
		c.DBPath = ptrString(dbPath)
	}
	if serialPath != "" {
		c.SerialPath = ptrString(serialPath)
		c.SensorTransport = ptrString("serial")
	}
	if detector != "" {
		c.Detector = ptrString(detector)
	}
}
