// Package api is the HTTP control surface of the ground station: sweep
// commands, calibration, threshold, status and the event log.
package api

import (
	"bufio"
	"errors"
	"image/color"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/calibration"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/classify"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/db"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/groundstation"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/httputil"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// Station is the part of *groundstation.Station the handlers drive.
type Station interface {
	Start() error
	Stop() error
	Quit() error
	Restart() error
	SetCalibration(active bool)
	ToggleCalibration() bool
	Calibration() groundstation.CalibrationState
	CalibrationProfile() (baselines, live []calibration.Entry)
	SetThreshold(v float64) error
	Status() groundstation.Status
}

type Server struct {
	station Station
	db      *db.DB
}

// NewServer returns a Server. A nil database disables the event routes.
func NewServer(station Station, db *db.DB) *Server {
	return &Server{station: station, db: db}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack passes through so websocket upgrades work behind the middleware.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/api/calibration", s.handleCalibration)
	mux.HandleFunc("/api/calibration/toggle", s.handleCalibrationToggle)
	mux.HandleFunc("/api/calibration/profile.png", s.handleCalibrationProfile)
	mux.HandleFunc("/api/threshold", s.handleThreshold)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/events/intrusions", s.listIntrusions)
	mux.HandleFunc("/api/events/links", s.listLinkEvents)
	mux.HandleFunc("/api/events/commands", s.listCommands)
	return mux
}

type commandRequest struct {
	Command string `json:"command"`
}

type commandResponse struct {
	Command string `json:"command"`
	Sent    bool   `json:"sent"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req commandRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var run func() error
	switch req.Command {
	case "start":
		run = s.station.Start
	case "stop":
		run = s.station.Stop
	case "quit":
		run = s.station.Quit
	case "restart":
		run = s.station.Restart
	default:
		httputil.BadRequest(w, "unknown command "+strconv.Quote(req.Command))
		return
	}

	// Commands are fire-and-forget: the sweep state changes even when the
	// device did not get the bytes, so a send failure is reported, not failed.
	resp := commandResponse{Command: req.Command, Sent: true}
	if err := run(); err != nil {
		resp.Sent = false
		resp.Error = err.Error()
	}
	httputil.WriteJSONOK(w, resp)
}

type calibrationRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req calibrationRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if req.Active == nil {
			httputil.BadRequest(w, "missing field: active")
			return
		}
		s.station.SetCalibration(*req.Active)
	default:
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.station.Calibration())
}

func (s *Server) handleCalibrationToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.station.ToggleCalibration()
	httputil.WriteJSONOK(w, s.station.Calibration())
}

var liveColor = color.RGBA{R: 255, G: 140, A: 255}

func (s *Server) handleCalibrationProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	baselines, live := s.station.CalibrationProfile()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	err := calibration.WriteProfilePNG(w, baselines, calibration.Overlay{
		Label:  "live",
		Color:  liveColor,
		Points: live,
	})
	if err != nil {
		log.Printf("calibration profile: %v", err)
	}
}

type thresholdRequest struct {
	Value *float64 `json:"value"`
}

func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req thresholdRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Value == nil {
		httputil.BadRequest(w, "missing field: value")
		return
	}
	if err := s.station.SetThreshold(*req.Value); err != nil {
		if errors.Is(err, classify.ErrThresholdOutOfRange) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]float64{"threshold": *req.Value})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.station.Status())
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
