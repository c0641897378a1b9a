package monitoring

import (
	"fmt"
	"sync"
	"testing"
)

func TestSetLogger(t *testing.T) {
	var got []string
	restore := SetLogger(func(format string, v ...any) {
		got = append(got, fmt.Sprintf(format, v...))
	})
	defer restore()

	Logf("hello %d", 1)
	Prefixed("sensor")("dial %s", "refused")

	want := []string{"hello 1", "sensor: dial refused"}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSetLoggerNilMutes(t *testing.T) {
	called := false
	restore := SetLogger(func(string, ...any) { called = true })
	defer restore()

	mute := SetLogger(nil)
	Logf("dropped")
	if called {
		t.Error("no-op logger should not reach the previous logger")
	}

	mute()
	Logf("kept")
	if !called {
		t.Error("restore should reinstall the previous logger")
	}
}

func TestLogfConcurrentSwap(t *testing.T) {
	restore := SetLogger(nil)
	defer restore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			Logf("message")
		}()
		go func() {
			defer wg.Done()
			SetLogger(nil)
		}()
	}
	wg.Wait()
}
