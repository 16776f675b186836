// Command vnetd is a privileged daemon exposing TUN device creation and
// subnet allocation over a localhost REST API.
package main

import (
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vnetd/vnetd/config"
	"github.com/vnetd/vnetd/daemon"
	"github.com/vnetd/vnetd/device"
	"github.com/vnetd/vnetd/internal"
	"github.com/vnetd/vnetd/netif"
	"github.com/vnetd/vnetd/subnet"
)

type args struct {
	Config   string `arg:"--config" help:"path to YAML config file"`
	Listen   string `arg:"--listen" help:"listen address, overrides the config file"`
	LogPath  string `arg:"--log-path" help:"log file path, overrides the config file"`
	LogLevel string `arg:"--log-level" help:"trace, debug, info, warn or error"`
}

func (args) Description() string {
	return "vnetd manages TUN devices and subnet allocations over a local REST API"
}

func main() {
	var a args
	arg.MustParse(&a)

	cfg, err := config.Load(a.Config)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if a.Listen != "" {
		cfg.Listen = a.Listen
	}
	if a.LogPath != "" {
		cfg.Log.Path = a.LogPath
	}
	if a.LogLevel != "" {
		cfg.Log.Level = a.LogLevel
	}

	level, err := internal.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logWriter := io.Writer(os.Stdout)
	if cfg.Log.Path != "" {
		logWriter = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Log.Path,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
	}
	slog.SetDefault(internal.NewLogger(logWriter, level))

	parent, err := cfg.Parent()
	if err != nil {
		log.Fatalf("Invalid parent range: %v", err)
	}
	if os.Geteuid() != 0 {
		slog.Warn("not running as root, interface operations will likely fail")
	}

	adapter := netif.New()
	devices := device.NewRegistry(adapter)
	subnets := subnet.NewAllocator(adapter, parent)
	if err := subnets.Seed(); err != nil {
		slog.Warn("failed to detect existing subnets", "error", err)
	}

	srv := daemon.NewServer(devices, subnets)
	if err := srv.Start(cfg.Listen); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}

	// Wait for a signal to gracefully shut down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("Shutting down...")
	time.AfterFunc(15*time.Second, func() {
		log.Fatal("Failed to shut down in time, forcing exit.")
	})
	srv.Close()
	if err := devices.Shutdown(); err != nil {
		slog.Error("device teardown incomplete", "error", err)
	}
	if err := subnets.Shutdown(); err != nil {
		slog.Error("subnet teardown incomplete", "error", err)
	}
}
