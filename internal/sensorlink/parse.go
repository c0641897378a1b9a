package sensorlink

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/radar"
)

var ErrMalformedRecord = errors.New("malformed sensor record")

// ParseRecord parses one "angleUnits,distanceCentimeters" record.
func ParseRecord(record string) (radar.Reading, error) {
	fields := strings.Split(strings.TrimSpace(record), ",")
	if len(fields) != 2 {
		return radar.Reading{}, fmt.Errorf("%w: %d fields in %q", ErrMalformedRecord, len(fields), record)
	}
	var vals [2]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return radar.Reading{}, fmt.Errorf("%w: field %d of %q", ErrMalformedRecord, i, record)
		}
		vals[i] = v
	}
	return radar.FromDevice(vals[0], vals[1]), nil
}

// splitRecords is a bufio.SplitFunc accepting "\n", "\r\n" and a bare "\r"
// as record terminators. Bytes after the last terminator at EOF are a
// record cut off by the disconnect and are dropped.
func splitRecords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if !atEOF {
				// Need one more byte to tell "\r" from "\r\n".
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), nil, errPartialRecord
	}
	return 0, nil, nil
}

var errPartialRecord = errors.New("stream ended mid-record")
