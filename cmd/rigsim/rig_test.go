package main

import (
	"bufio"
	"bytes"
	"context"
	"image/jpeg"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/control"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/framecodec"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/sensorlink"
)

func TestScanCommands(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		want     []control.Command
		wantRest string
	}{
		{"single", "start", []control.Command{control.Start}, ""},
		{"back to back", "stopstartquit", []control.Command{control.Stop, control.Start, control.Quit}, ""},
		{"split token", "startst", []control.Command{control.Start}, "st"},
		{"noise", "\nxxstop\r\n", []control.Command{control.Stop}, ""},
		{"empty", "", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rest := scanCommands([]byte(tt.in))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("commands mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.wantRest, string(rest))
		})
	}
}

func TestRigSweep(t *testing.T) {
	rig := NewRig()
	assert.False(t, rig.Running())
	assert.False(t, rig.Apply(control.Start))
	assert.True(t, rig.Running())

	var intruder int
	for step := 0; step < 128; step++ {
		r, err := sensorlink.ParseRecord(rig.Next())
		require.NoError(t, err)
		assert.InDelta(t, float64(step)*2.8125, r.Angle, 1e-9)
		if r.Distance != 3 {
			intruder++
		}
	}
	assert.Zero(t, intruder, "intruder starts at the wall")

	// Ten turns later the intruder is at its closest.
	for i := 0; i < 8*128; i++ {
		rig.Next()
	}
	var closest float64 = 10
	for step := 0; step < 128; step++ {
		r, err := sensorlink.ParseRecord(rig.Next())
		require.NoError(t, err)
		closest = min(closest, r.Distance)
	}
	assert.InDelta(t, 0.2, closest, 1e-9)

	assert.False(t, rig.Apply(control.Stop))
	assert.False(t, rig.Running())
	assert.True(t, rig.Apply(control.Quit))
}

func TestServeSensor(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	rig := NewRig()

	done := make(chan bool, 1)
	go func() { done <- serveSensor(context.Background(), server, rig, time.Millisecond) }()

	_, err := client.Write([]byte("start"))
	require.NoError(t, err)

	lines := bufio.NewScanner(client)
	for i := 0; i < 3; i++ {
		require.True(t, lines.Scan())
		_, err := sensorlink.ParseRecord(lines.Text())
		require.NoError(t, err)
	}

	// Keep draining so the sender never blocks while quit is written.
	go func() {
		for lines.Scan() {
		}
	}()
	_, err = client.Write([]byte("quit"))
	require.NoError(t, err)

	select {
	case quit := <-done:
		assert.True(t, quit)
	case <-time.After(2 * time.Second):
		t.Fatal("serveSensor did not return on quit")
	}
}

func TestServeVideo(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go serveVideo(ctx, server, NewCamera(), time.Millisecond)

	fr := framecodec.NewReader(client, 0)
	for i := 0; i < 2; i++ {
		payload, err := fr.Next()
		require.NoError(t, err)
		img, err := jpeg.Decode(bytes.NewReader(payload))
		require.NoError(t, err)
		assert.Equal(t, 320, img.Bounds().Dx())
	}
}
