package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/downfa11-org/logrotor/pkg/config"
	"github.com/downfa11-org/logrotor/pkg/controller"
	"github.com/downfa11-org/logrotor/pkg/supervisor"
	"github.com/downfa11-org/logrotor/util"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Println("❌ Failed to load config:", err)
		os.Exit(1)
	}
	// keep background logs out of the prompt when a file is configured
	if cfg.LogFile != "" {
		f, err := util.SetLogFile(cfg.LogFile)
		if err != nil {
			fmt.Println("❌ Failed to open log file:", err)
			os.Exit(1)
		}
		defer f.Close()
	}

	sup := supervisor.New(supervisor.Config{
		LogDir:              cfg.LogDir,
		MaintenanceInterval: cfg.RetentionCheckInterval(),
		RotationTimeout:     cfg.RotationTimeout(),
		CompressionTimeout:  cfg.CompressionTimeout(),
		EventBufferSize:     cfg.EventBufferSize,
		SyncWrites:          cfg.SyncWrites,
	}, nil)
	defer sup.Close()

	for _, sc := range cfg.Streams {
		rc, err := sc.Retention(cfg.DefaultRetention)
		if err == nil {
			_, err = sup.RegisterPath(sc.ID, sc.Dir, rc)
		}
		if err != nil {
			fmt.Printf("⚠️ Skipping stream %q: %v\n", sc.ID, err)
		}
	}

	ch := controller.NewCommandHandler(sup, cfg.DefaultRetention)

	fmt.Println("🔹 logrotor console ready. Type HELP for commands.")
	fmt.Println("")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		result := ch.HandleCommand(scanner.Text())
		if result == controller.ExitSignal {
			break
		}
		fmt.Println(result)
	}
}
