package detect

import (
	"image"
	"testing"
)

func TestRoundedConfidence(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.5, 0.5},
		{0.501, 0.51},
		{0.879, 0.88},
		{0.99001, 1},
		{0, 0},
	}
	for _, tt := range tests {
		got := Detection{Confidence: tt.in}.RoundedConfidence()
		if got != tt.want {
			t.Errorf("RoundedConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCaption(t *testing.T) {
	d := Detection{Label: "person", Confidence: 0.873}
	if got := d.Caption(); got != "person 0.88" {
		t.Errorf("Caption() = %q", got)
	}
}

func TestClassName(t *testing.T) {
	if len(COCOClasses) != 80 {
		t.Fatalf("got %d COCO classes, want 80", len(COCOClasses))
	}
	if ClassName(0) != "person" || ClassName(79) != "toothbrush" {
		t.Errorf("unexpected class names %q %q", ClassName(0), ClassName(79))
	}
	if ClassName(80) != "class 80" || ClassName(-1) != "class -1" {
		t.Error("out of range ids should be labelled by number")
	}
}

func TestNopAndFunc(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	dets, err := Nop{}.Detect(img)
	if err != nil || dets != nil {
		t.Errorf("Nop.Detect = %v, %v", dets, err)
	}

	var d Detector = Func(func(image.Image) ([]Detection, error) {
		return []Detection{{Label: "cat"}}, nil
	})
	dets, _ = d.Detect(img)
	if len(dets) != 1 || dets[0].Label != "cat" {
		t.Errorf("Func.Detect = %v", dets)
	}
}
