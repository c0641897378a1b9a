package radar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromDevice(t *testing.T) {
	tests := []struct {
		name       string
		units, cm  float64
		wantAngle  float64
		wantMeters float64
	}{
		{"zero", 0, 0, 0, 0},
		{"one step", 1, 250, 2.8125, 2.5},
		{"half turn", 64, 100, 180, 1},
		{"last step", 127, 30, 357.1875, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FromDevice(tt.units, tt.cm)
			assert.InDelta(t, tt.wantAngle, r.Angle, 1e-9)
			assert.InDelta(t, tt.wantMeters, r.Distance, 1e-9)
		})
	}
}

func TestScaleRender(t *testing.T) {
	s := DefaultScale
	assert.Equal(t, 0.0, s.Render(0))
	assert.InDelta(t, 60.0, s.Render(2.5), 1e-9)
	assert.InDelta(t, 240.0, s.Render(10), 1e-9)
	assert.InDelta(t, 240.0, s.Render(25), 1e-9, "clamped to max range")
	assert.Equal(t, 0.0, Scale{}.Render(5))
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "alarm", Alarm.String())
	assert.Equal(t, "verdict(9)", Verdict(9).String())
	assert.True(t, Caution.IsIntrusion())
	assert.False(t, Calibrated.IsIntrusion())
	assert.Equal(t, "#ff0000", Alarm.Color())
	assert.Equal(t, "connected", Connected.String())
}
