// Command gcode-stream is a standalone harness for the host-side
// communications core: it opens a connection to a Smoothie-class
// controller, optionally streams one G-code file or lists the SD
// card, and otherwise just prints reports until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smoothie-ctl/hostcomms/internal/config"
	"github.com/smoothie-ctl/hostcomms/internal/diagnostics"
	"github.com/smoothie-ctl/hostcomms/internal/host"
	"github.com/smoothie-ctl/hostcomms/internal/logging"
	"github.com/smoothie-ctl/hostcomms/internal/protocol"
	"github.com/smoothie-ctl/hostcomms/internal/session"
	"github.com/smoothie-ctl/hostcomms/internal/streaming"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	url := flag.String("url", "", "connection descriptor (serial://<device> or net://<host>[:<port>]); ignored if -config is set")
	reportRate := flag.Duration("report-rate", 5*time.Second, "periodic status-poll interval; only used with -url")
	isCNC := flag.Bool("cnc", false, "suppress temperature polling; only used with -url")
	jobPath := flag.String("job", "", "G-code file to stream; if omitted, just connects and prints reports")
	listSDCard := flag.Bool("list-sdcard", false, "list SD card files and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *url, *reportRate, *isCNC)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gcode-stream: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File, "gcode-stream")
	defer closer.Close()

	var monitor *diagnostics.HostMonitor
	if cfg.Diagnostics.Enabled {
		monitor = diagnostics.NewHostMonitor(logger, cfg.Diagnostics.Interval)
		monitor.Start()
		defer monitor.Stop()
	}

	connectedCh := make(chan struct{}, 1)
	disconnectedCh := make(chan struct{}, 1)
	var reporter *streaming.ProgressReporter

	api := host.Connect(cfg, logger, session.Hooks{
		Connected:    func() { connectedCh <- struct{}{} },
		Disconnected: func() { disconnectedCh <- struct{}{} },
		Display:      func(line string) { fmt.Println(line) },
		UpdateTemperature: func(t protocol.Temperature) {
			logger.Info("temperature", "hotend", t.HotendTemp, "bed", t.BedTemp)
		},
		UpdatePosition: func(p protocol.Position) {
			logger.Debug("position", "x", p.X, "y", p.Y, "z", p.Z)
		},
		UpdateStatus: func(state string, fields map[string][]float64) {
			logger.Debug("status", "state", state)
		},
		AlarmState: func(line string) {
			fmt.Fprintf(os.Stderr, "ALARM: %s\n", line)
		},
		StreamFinished: func(ok bool) {
			if reporter != nil {
				reporter.Stop()
			}
			if ok {
				fmt.Println("stream finished")
			} else {
				fmt.Fprintln(os.Stderr, "stream aborted")
			}
		},
		PausePrompt: func(msg string) { fmt.Println("paused:", msg) },
		ChangeImage: func(path string) { logger.Info("change image", "path", path) },
		SoundAlarm:  func() { fmt.Println("\a") },
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-connectedCh:
	case <-disconnectedCh:
		fmt.Fprintln(os.Stderr, "gcode-stream: connection failed")
		os.Exit(1)
	case <-time.After(10 * time.Second):
		fmt.Fprintln(os.Stderr, "gcode-stream: timed out waiting to connect")
		os.Exit(1)
	}

	switch {
	case *listSDCard:
		runListSDCard(api)
		return
	case *jobPath != "":
		reporter = runStream(api, *jobPath)
	}

	<-sigCh
	logger.Info("shutting down")
	api.Stop()
}

func loadConfig(configPath, url string, reportRate time.Duration, isCNC bool) (*config.Config, error) {
	if configPath != "" {
		return config.LoadConfig(configPath)
	}
	if url == "" {
		return nil, fmt.Errorf("either -config or -url is required")
	}
	cfg, err := config.NewFromURL(url)
	if err != nil {
		return nil, err
	}
	cfg.ReportRate = reportRate
	cfg.IsCNC = isCNC
	return cfg, nil
}

func runListSDCard(api *host.API) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	files, err := api.ListSDCard(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gcode-stream: list sdcard: %v\n", err)
		api.Stop()
		os.Exit(1)
	}
	for _, f := range files {
		fmt.Println(f)
	}
	api.Stop()
}

func runStream(api *host.API, path string) *streaming.ProgressReporter {
	total, err := streaming.CountLines(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gcode-stream: %v\n", err)
		os.Exit(1)
	}
	reporter := streaming.NewProgressReporter(path, int64(total), func(line string) { fmt.Println(line) })
	if err := api.StreamGcode(path, reporter.Update); err != nil {
		fmt.Fprintf(os.Stderr, "gcode-stream: stream: %v\n", err)
		os.Exit(1)
	}
	return reporter
}
