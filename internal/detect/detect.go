// Package detect defines the object detector used on video frames.
package detect

import (
	"fmt"
	"image"
	"math"
)

// Detection is one object found in a frame. Box is in image pixel
// coordinates.
type Detection struct {
	Box        image.Rectangle `json:"box"`
	ClassID    int             `json:"class_id"`
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
}

// RoundedConfidence rounds the confidence up to two decimals.
func (d Detection) RoundedConfidence() float64 {
	return math.Ceil(d.Confidence*100) / 100
}

// Caption is the overlay text for the detection.
func (d Detection) Caption() string {
	return fmt.Sprintf("%s %.2f", d.Label, d.RoundedConfidence())
}

// Detector finds objects in a decoded frame. Implementations must be safe
// to call once per frame from a single goroutine.
type Detector interface {
	Detect(img image.Image) ([]Detection, error)
	Close() error
}

// Nop is a Detector that never finds anything. It is used when no model is
// configured.
type Nop struct{}

func (Nop) Detect(image.Image) ([]Detection, error) { return nil, nil }
func (Nop) Close() error                            { return nil }

// Func adapts a function to the Detector interface.
type Func func(img image.Image) ([]Detection, error)

func (f Func) Detect(img image.Image) ([]Detection, error) { return f(img) }
func (Func) Close() error                                    { return nil }

// COCOClasses contains the 80 COCO class names in model output order.
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// ClassName returns the COCO label for id, or "class N" when out of range.
func ClassName(id int) string {
	if id < 0 || id >= len(COCOClasses) {
		return fmt.Sprintf("class %d", id)
	}
	return COCOClasses[id]
}
