package calibration

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the spread of a calibration map.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	// Coverage is the fraction of the 128 device steps holding a baseline.
	Coverage float64 `json:"coverage"`
}

// DeviceSteps is the number of distinct angles the rig reports per turn.
const DeviceSteps = 128

// Summarize computes statistics over entries.
func Summarize(entries []Entry) Summary {
	if len(entries) == 0 {
		return Summary{}
	}
	xs := make([]float64, len(entries))
	for i, e := range entries {
		xs[i] = e.Baseline
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) == 1 {
		std = 0
	}
	return Summary{
		Count:    len(xs),
		Mean:     mean,
		StdDev:   std,
		Min:      floats.Min(xs),
		Max:      floats.Max(xs),
		Coverage: min(1, float64(len(xs))/DeviceSteps),
	}
}

// Summary computes statistics over the current baselines.
func (s *Store) Summary() Summary {
	return Summarize(s.Snapshot())
}
