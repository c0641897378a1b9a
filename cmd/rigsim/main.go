// Command rigsim stands in for the rotating-sensor rig during development.
// It serves the sweep as "step,centimeters" records on the sensor port and
// JPEG frames on the video port, and obeys start, stop and quit.
package main

import (
	"bytes"
	"context"
	"flag"
	"image/jpeg"
	"io"
	"log"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/control"
	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/framecodec"
)

var (
	sensorAddr = flag.String("sensor", ":12345", "Sensor listen address")
	videoAddr  = flag.String("video", ":10050", "Video listen address")
	stepEvery  = flag.Duration("step", 15*time.Millisecond, "Delay between sweep steps")
	fps        = flag.Int("fps", 10, "Video frames per second (0 disables video)")
	autostart  = flag.Bool("autostart", false, "Sweep without waiting for start")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rig := NewRig()
	if *autostart {
		rig.Apply(control.Start)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		serve(ctx, *sensorAddr, func(ctx context.Context, conn net.Conn) {
			if serveSensor(ctx, conn, rig, *stepEvery) {
				log.Print("quit received")
				stop()
			}
		})
	}()

	if *fps > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(ctx, *videoAddr, func(ctx context.Context, conn net.Conn) {
				serveVideo(ctx, conn, NewCamera(), time.Second/time.Duration(*fps))
			})
		}()
	}

	wg.Wait()
}

// serve accepts connections on addr until ctx is done, one handler
// goroutine per connection.
func serve(ctx context.Context, addr string, handle func(context.Context, net.Conn)) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		log.Fatalf("listen %s: %v", addr, err)
	}
	log.Printf("listening on %s", ln.Addr())
	context.AfterFunc(ctx, func() { ln.Close() })

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		log.Printf("%s: client %s connected", addr, conn.RemoteAddr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			defer stop()
			handle(ctx, conn)
			log.Printf("%s: client %s gone", addr, conn.RemoteAddr())
		}()
	}
}

// serveSensor streams records while the rig is running and applies the
// commands read from conn. It returns true when quit was received.
func serveSensor(ctx context.Context, conn net.Conn, rig *Rig, every time.Duration) bool {
	quit := make(chan struct{})
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		var pending []byte
		buf := make([]byte, 64)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				var cmds []control.Command
				cmds, pending = scanCommands(append(pending, buf[:n]...))
				for _, c := range cmds {
					log.Printf("command %q", c)
					if rig.Apply(c) {
						close(quit)
						return
					}
				}
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-quit:
			return true
		case <-readDone:
			select {
			case <-quit:
				return true
			default:
				return false
			}
		case <-ticker.C:
			if !rig.Running() {
				continue
			}
			if _, err := io.WriteString(conn, rig.Next()); err != nil {
				return false
			}
		}
	}
}

func serveVideo(ctx context.Context, conn net.Conn, cam *Camera, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	var buf bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			buf.Reset()
			if err := jpeg.Encode(&buf, cam.Next(), &jpeg.Options{Quality: 75}); err != nil {
				log.Printf("encode frame: %v", err)
				continue
			}
			if err := framecodec.WriteFrame(conn, buf.Bytes()); err != nil {
				return
			}
		}
	}
}
