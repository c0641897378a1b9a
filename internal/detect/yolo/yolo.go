// Package yolo runs a YOLOv8 ONNX model through OpenCV's DNN module.
package yolo

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/detect"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/monitoring"
)

// Config holds detector configuration.
type Config struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
}

// DefaultConfig returns defaults for YOLOv8n.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

var ErrModelNotFound = errors.New("yolo model not found")

// Detector implements detect.Detector.
type Detector struct {
	net       gocv.Net
	config    Config
	mu        sync.Mutex
	inputSize image.Point
}

var _ detect.Detector = (*Detector)(nil)

// New loads the model at cfg.ModelPath.
func New(cfg Config) (*Detector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Detector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect finds objects in img.
func (d *Detector) Detect(img image.Image) ([]detect.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.New("empty image")
	}

	// The model is trained on RGB; Mats are BGR.
	blob := gocv.BlobFromImage(mat, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dets := d.parseOutput(output, float32(mat.Cols()), float32(mat.Rows()))
	if len(dets) > 0 {
		monitoring.Logf("yolo: %d object(s)", len(dets))
	}
	return dets, nil
}

// parseOutput decodes the [1, 84, N] YOLOv8 tensor: 4 box values
// (cx, cy, w, h) then 80 class scores per candidate.
func (d *Detector) parseOutput(output gocv.Mat, imgW, imgH float32) []detect.Detection {
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil
	}
	cols, rows := sizes[1], sizes[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil
	}

	var (
		boxes       []image.Rectangle
		confidences []float32
		classIDs    []int
	)
	sx := imgW / float32(d.config.InputWidth)
	sy := imgH / float32(d.config.InputHeight)
	for i := 0; i < rows; i++ {
		best, bestID := float32(0), 0
		for c := 4; c < cols; c++ {
			if s := data[c*rows+i]; s > best {
				best, bestID = s, c-4
			}
		}
		if best < d.config.ConfidenceThresh {
			continue
		}
		cx, cy := data[i], data[rows+i]
		w, h := data[2*rows+i], data[3*rows+i]
		boxes = append(boxes, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		confidences = append(confidences, best)
		classIDs = append(classIDs, bestID)
	}
	if len(boxes) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)
	out := make([]detect.Detection, 0, len(indices))
	for _, idx := range indices {
		out = append(out, detect.Detection{
			Box:        boxes[idx],
			ClassID:    classIDs[idx],
			Label:      detect.ClassName(classIDs[idx]),
			Confidence: float64(confidences[idx]),
		})
	}
	return out
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
