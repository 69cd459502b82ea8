// Command mjpegdemo is a manual test harness for the mjpeg rate controller:
// a plain os.Args dispatch over a handful of subcommands, no cobra, meant to
// be run by a developer at a terminal rather than driven by a test suite.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/lanternops/mjpegrc/internal/config"
	"github.com/lanternops/mjpegrc/internal/logging"
	"github.com/lanternops/mjpegrc/internal/mjpeg"
	"github.com/lanternops/mjpegrc/internal/transport"
	"github.com/lanternops/mjpegrc/internal/workerpool"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: mjpegdemo <simulate|sessions>")
		return
	}

	logging.Init("text", "info", os.Stdout)
	cfg := config.Default()

	if cfg.ServerURL != "" {
		logging.InitShipper(logging.ShipperConfig{
			ServerURL:    cfg.ServerURL,
			AgentID:      cfg.SessionID,
			AuthToken:    cfg.AuthToken,
			AgentVersion: "mjpegdemo",
			MinLevel:     cfg.LogLevel,
		})
		defer logging.StopShipper()
	}

	switch os.Args[1] {
	case "simulate":
		runSimulate(cfg)
	case "sessions":
		runSessions(cfg)
	default:
		fmt.Println("Unknown command:", os.Args[1])
	}
}

// runSimulate drives one Encoder with synthetic frames and a synthetic
// client report stream, printing the operating point as it converges.
func runSimulate(cfg *config.Config) {
	log := logging.L("mjpegdemo")
	clock := mjpeg.NewRealClock()

	var lastReport time.Time
	enc := mjpeg.NewEncoder(mjpeg.Config{
		StartingBitRate: cfg.StartingBitRateBps,
		MinByteRate:     cfg.MinBitRateBps / 8,
		MaxByteRate:     cfg.MaxBitRateBps / 8,
		Clock:           clock,
		Host: mjpeg.Host{
			SourceFPS: func() uint32 { return uint32(cfg.MaxFPS) },
		},
	})

	frame := syntheticFrame(320, 240)
	start := time.Now()

	for i := 0; i < 500; i++ {
		now := clock.NowNano()
		result, err := enc.EncodeFrame(now, frame, mjpeg.Rect{})
		if err != nil {
			log.Error("encode failed", "error", err)
			continue
		}
		if result.Outcome == mjpeg.Done {
			result.Release()
		}

		if time.Since(lastReport) > 500*time.Millisecond {
			stats := enc.RateControl().GetStats()
			log.Info("operating point",
				"elapsed", time.Since(start).Round(time.Millisecond),
				"byte_rate", stats.ByteRate, "quality_id", stats.QualityID,
				"fps", stats.FPS, "in_eval", stats.InEval)
			lastReport = time.Now()

			// Feed back a synthetic, mostly healthy client report so the
			// AIMD loop has something to react to.
			enc.RateControl().ClientStreamReport(mjpeg.ClientStreamReport{
				NumFrames:     uint32(stats.FPS),
				EndFrameDelay: int32(rand.Intn(40) - 10),
			})
		}

		time.Sleep(time.Duration(1000/cfg.MaxFPS) * time.Millisecond)
	}
}

// runSessions fans out several concurrent simulated sessions across a
// workerpool, each with its own Encoder and transport.Client, to exercise
// the concurrency and transport wiring together.
func runSessions(cfg *config.Config) {
	log := logging.L("mjpegdemo")
	pool := workerpool.New(cfg.MaxConcurrentSessions, cfg.SessionQueueSize)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < cfg.MaxConcurrentSessions; i++ {
		sessionID := fmt.Sprintf("demo-session-%02d", i)
		ok := pool.Submit(func() {
			runOneSession(sessionID, cfg)
		})
		if !ok {
			log.Warn("session rejected, pool full", "session", sessionID)
		}
	}

	pool.StopAccepting()
	pool.Drain(ctx)
}

func runOneSession(sessionID string, cfg *config.Config) {
	log := logging.L("mjpegdemo.session")
	clock := mjpeg.NewRealClock()

	enc := mjpeg.NewEncoder(mjpeg.Config{
		StartingBitRate: cfg.StartingBitRateBps,
		MinByteRate:     cfg.MinBitRateBps / 8,
		MaxByteRate:     cfg.MaxBitRateBps / 8,
		Clock:           clock,
	})

	var client *transport.Client
	if cfg.ServerURL != "" {
		client = transport.New(&transport.Config{
			ServerURL: cfg.ServerURL,
			SessionID: sessionID,
			AuthToken: cfg.AuthToken,
		}, func(report transport.ClientReport) {
			enc.RateControl().ClientStreamReport(mjpeg.ClientStreamReport{
				NumFrames:     report.NumFrames,
				NumDrops:      report.NumDrops,
				StartMMTime:   report.StartMMTime,
				EndMMTime:     report.EndMMTime,
				EndFrameDelay: report.EndFrameDelay,
				AudioDelay:    report.AudioDelay,
			})
		})
		go client.Start()
		defer client.Stop()
	}

	frame := syntheticFrame(160, 120)
	for i := 0; i < 30; i++ {
		result, err := enc.EncodeFrame(clock.NowNano(), frame, mjpeg.Rect{})
		if err != nil {
			log.Error("encode failed", "session", sessionID, "error", err)
			continue
		}
		if result.Outcome == mjpeg.Done {
			if client != nil {
				if err := client.SendFrame(result.Data); err != nil {
					log.Warn("send failed", "session", sessionID, "error", err)
				}
			}
			result.Release()
		}
		time.Sleep(40 * time.Millisecond)
	}

	log.Info("session finished", "session", sessionID)
}

func syntheticFrame(width, height int) mjpeg.Frame {
	stride := width * 4
	pixels := make([]byte, stride*height)
	for i := 0; i < len(pixels); i += 4 {
		pixels[i+0] = byte(i % 256)
		pixels[i+1] = byte((i / 7) % 256)
		pixels[i+2] = byte((i / 13) % 256)
		pixels[i+3] = 255
	}
	return mjpeg.Frame{
		Pixels:  pixels,
		Width:   width,
		Height:  height,
		Stride:  stride,
		Format:  mjpeg.PixelFormatRGB32,
		TopDown: true,
	}
}
