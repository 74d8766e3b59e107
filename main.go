// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ffutop/modbus-serial/internal/config"
	"github.com/ffutop/modbus-serial/transport"
	"github.com/ffutop/modbus-serial/transport/local"
	"github.com/ffutop/modbus-serial/transport/rtu"
)

func main() {
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load Configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	slog.Info("Starting Modbus serial slave daemon...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type instance struct {
		name    string
		server  *rtu.Server
		handler transport.Handler
		device  *local.Client
	}

	var instances []*instance
	for _, slaveCfg := range cfg.Slaves {
		acceptIDs, err := config.ParseSlaveIDs(slaveCfg.SlaveIDs)
		if err != nil {
			slog.Error("Invalid slave_ids", "slave", slaveCfg.Name, "err", err)
			continue
		}

		device := local.NewClient(slaveCfg.Persistence)
		instances = append(instances, &instance{
			name:    slaveCfg.Name,
			server:  rtu.NewServer(slaveCfg.Serial, acceptIDs),
			handler: device.Send,
			device:  device,
		})
	}

	if len(instances) == 0 {
		slog.Error("No valid slaves configured. Exiting.")
		os.Exit(1)
	}

	// Start Servers
	var wg sync.WaitGroup
	for _, inst := range instances {
		wg.Add(1)
		go func(inst *instance) {
			defer wg.Done()
			if err := inst.server.Start(ctx, inst.handler); err != nil {
				slog.Error("Slave stopped with error", "name", inst.name, "err", err)
			}
		}(inst)
	}

	// Wait for Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	cancel()
	wg.Wait()

	for _, inst := range instances {
		if err := inst.device.Close(); err != nil {
			slog.Error("Failed to close device storage", "name", inst.name, "err", err)
		}
	}
	slog.Info("Goodbye.")
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
