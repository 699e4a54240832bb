package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/downfa11-org/logrotor/pkg/config"
	"github.com/downfa11-org/logrotor/pkg/controller"
	"github.com/downfa11-org/logrotor/pkg/metrics"
	"github.com/downfa11-org/logrotor/pkg/supervisor"
	"github.com/downfa11-org/logrotor/pkg/types"
	"github.com/downfa11-org/logrotor/util"
)

func main() {
	readStdin := flag.Bool("stdin", false, "Read commands from stdin (one per line)")

	// Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		util.Fatal("❌ Failed to load config: %v", err)
	}
	if cfg.LogFile != "" {
		f, err := util.SetLogFile(cfg.LogFile)
		if err != nil {
			util.Fatal("❌ Failed to open log file %s: %v", cfg.LogFile, err)
		}
		defer f.Close()
	}

	fmt.Printf("🚀 Starting logrotor in %s\n", cfg.LogDir)
	fmt.Printf("📊 Exporter: %v | 🧹 Maintenance every %v | 📝 Log level %s\n",
		cfg.EnableExporter, cfg.RetentionCheckInterval(), util.GetLevel())

	var observers []types.Observer
	if cfg.EnableExporter {
		metrics.StartMetricsServer(cfg.ExporterPort)
		observers = append(observers, metrics.Observer{})
	} else {
		fmt.Println("📉 Exporter disabled")
	}
	health := &metrics.Health{}
	metrics.StartHealthServer(cfg.HealthCheckPort, health)

	// Initialization
	sup := supervisor.New(supervisor.Config{
		LogDir:              cfg.LogDir,
		MaintenanceInterval: cfg.RetentionCheckInterval(),
		RotationTimeout:     cfg.RotationTimeout(),
		CompressionTimeout:  cfg.CompressionTimeout(),
		EventBufferSize:     cfg.EventBufferSize,
		SyncWrites:          cfg.SyncWrites,
	}, nil, observers...)

	// Static streams
	for _, sc := range cfg.Streams {
		rc, err := sc.Retention(cfg.DefaultRetention)
		if err != nil {
			util.Fatal("❌ Invalid stream %q: %v", sc.ID, err)
		}
		if _, err := sup.RegisterPath(sc.ID, sc.Dir, rc); err != nil {
			util.Fatal("❌ Failed to register stream %q: %v", sc.ID, err)
		}
	}
	health.SetReady(true)

	stopGauges := make(chan struct{})
	if cfg.EnableExporter {
		go reportStreams(sup, cfg.RetentionCheckInterval(), stopGauges)
	}

	if *readStdin {
		ch := controller.NewCommandHandler(sup, cfg.DefaultRetention)
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				if resp := ch.HandleCommand(scanner.Text()); resp != controller.ExitSignal {
					fmt.Println(resp)
				}
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	util.Info("received %v, shutting down", s)

	health.SetReady(false)
	close(stopGauges)
	if err := sup.Close(); err != nil {
		util.Fatal("❌ Shutdown failed: %v", err)
	}
	fmt.Println("👋 logrotor stopped")
}

// reportStreams exports per-stream footprint gauges until stop is closed.
func reportStreams(sup *supervisor.Supervisor, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	known := map[string]bool{}
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			seen := map[string]bool{}
			for _, id := range sup.Streams() {
				used, err := sup.TotalSpaceUsed(id)
				if err != nil {
					continue
				}
				segs, _ := sup.ListSegments(id)
				metrics.ObserveStream(id, used, len(segs))
				seen[id] = true
			}
			for id := range known {
				if !seen[id] {
					metrics.ForgetStream(id)
				}
			}
			known = seen
		}
	}
}
