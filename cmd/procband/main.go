// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/procband/procband/pkg/capture"
	"github.com/procband/procband/pkg/config"
	"github.com/procband/procband/pkg/device"
	"github.com/procband/procband/pkg/export"
	"github.com/procband/procband/pkg/flow"
	"github.com/procband/procband/pkg/privilege"
	"github.com/procband/procband/pkg/proc"
	"github.com/procband/procband/pkg/reactor"
	"github.com/procband/procband/pkg/shutdown"
	"github.com/procband/procband/pkg/stats"
	"github.com/procband/procband/pkg/ui"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// viewModeNames maps the numeric -v argument to config view modes.
var viewModeNames = []string{config.ViewRate, config.ViewTotalKB, config.ViewTotalB, config.ViewTotalMB}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		logLevel    string
		showVersion bool

		delay    float64
		count    int
		viewMode int
		filter   string
		replay   string
		all      bool
		trace    bool
		bughunt  bool
		promisc  bool
		sortRecv bool
		cmdline  bool
	)

	flag.StringVar(&configPath, "config", "", "path to configuration file")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "V", false, "show version and exit")
	flag.Float64Var(&delay, "d", 0, "seconds between refreshes")
	flag.IntVar(&count, "c", 0, "exit after this many refreshes")
	flag.IntVar(&viewMode, "v", -1, "view mode (0=KB/s, 1=total KB, 2=total B, 3=total MB)")
	flag.StringVar(&filter, "f", "", "pcap filter expression")
	flag.StringVar(&replay, "r", "", "replay traffic from a pcap file")
	flag.BoolVar(&all, "a", false, "monitor all devices, including loopback")
	flag.BoolVar(&trace, "t", false, "trace mode: plain line output, no screen control")
	flag.BoolVar(&bughunt, "b", false, "bughunt mode: trace output plus debug logging")
	flag.BoolVar(&promisc, "p", false, "put devices in promiscuous mode")
	flag.BoolVar(&sortRecv, "s", false, "sort by received instead of sent")
	flag.BoolVar(&cmdline, "l", false, "show full command line instead of program name")
	flag.Parse()

	if showVersion {
		fmt.Printf("procband %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if delay > 0 {
		cfg.Refresh.Period = time.Duration(delay * float64(time.Second))
	}
	if count > 0 {
		cfg.Refresh.Limit = count
	}
	if viewMode >= 0 && viewMode < len(viewModeNames) {
		cfg.UI.ViewMode = viewModeNames[viewMode]
	}
	if filter != "" {
		cfg.Capture.Filter = filter
	}
	if replay != "" {
		cfg.Capture.ReplayFile = replay
	}
	if all {
		cfg.Capture.All = true
	}
	if bughunt {
		cfg.UI.TraceMode = true
		if logLevel == "" {
			cfg.LogLevel = "debug"
		}
	}
	if trace {
		cfg.UI.TraceMode = true
	}
	if promisc {
		cfg.Capture.Promiscuous = true
	}
	if sortRecv {
		cfg.UI.SortBySent = false
	}
	if cmdline {
		cfg.UI.ShowCmdline = true
	}
	if args := flag.Args(); len(args) > 0 {
		cfg.Capture.Devices = args
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}

	logger, err := newLogger(cfg.LogLevel, cfg.UI.TraceMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	// Pure replay needs no raw sockets; anything live does. Checking
	// before any session opens gives the operator one clear message
	// instead of a per-device error storm.
	needLive := cfg.Capture.ReplayFile == "" || len(cfg.Capture.Devices) > 0
	if needLive {
		if err := privilege.Check(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	logger.Info("starting procband",
		zap.String("version", version),
		zap.Duration("refresh", cfg.Refresh.Period),
	)

	pipe, err := shutdown.New()
	if err != nil {
		logger.Error("failed to create shutdown pipe", zap.Error(err))
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigCh {
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			pipe.Trigger()
		}
	}()

	st := stats.New()

	var devs []device.Device
	if needLive {
		devs, err = device.Find(cfg.Capture.Devices, cfg.Capture.All)
		if err != nil && cfg.Capture.ReplayFile == "" {
			logger.Error("device discovery failed", zap.Error(err))
			pipe.Close()
			return 1
		}
	}

	collector := flow.NewCollector(device.LocalAddrs(devs), st, logger)
	handlers := collector.Handlers()

	var sessions []capture.Session
	if len(devs) > 0 {
		opts := capture.Options{
			Promiscuous: cfg.Capture.Promiscuous,
			Filter:      cfg.Capture.Filter,
			SnapLen:     cfg.Capture.SnapLen,
		}
		live, err := capture.OpenAll(devs, opts, handlers, logger)
		if err != nil && cfg.Capture.ReplayFile == "" {
			logger.Error("no capture sessions", zap.Error(err))
			pipe.Close()
			return 1
		}
		sessions = live
		st.DevicesSkipped.Add(int64(len(devs) - len(live)))
	}

	if cfg.Capture.ReplayFile != "" {
		rs, err := capture.OpenReplay(cfg.Capture.ReplayFile, handlers)
		if err != nil {
			logger.Error("failed to open replay file", zap.Error(err))
			pipe.Close()
			return 1
		}
		logger.Info("replaying capture file", zap.String("file", cfg.Capture.ReplayFile))
		sessions = append(sessions, rs)
	}

	table := proc.NewTable(logger)
	resolver := proc.NewResolver(logger)

	display := ui.New(cfg.UI, pipe.Trigger, logger)
	if err := display.Init(); err != nil {
		logger.Error("failed to initialize terminal", zap.Error(err))
		pipe.Close()
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager, err := export.NewManager(&cfg.Exporters, st, logger)
	if err != nil {
		display.Teardown()
		logger.Error("failed to create exporters", zap.Error(err))
		pipe.Close()
		return 1
	}
	if manager != nil {
		manager.Start(ctx)
	}

	// Config changes land here and are applied on the loop goroutine
	// at the next refresh.
	reloadCh := make(chan *config.Config, 1)
	var watcher *config.Watcher
	if configPath != "" {
		watcher, err = config.NewWatcher(configPath, logger, func(newCfg *config.Config) {
			select {
			case reloadCh <- newCfg:
			default:
			}
		})
		if err != nil {
			logger.Warn("config watcher unavailable", zap.Error(err))
		}
	}

	var loop *reactor.Loop
	startTime := time.Now()

	hooks := reactor.Hooks{
		OnInput: display.HandleKeys,
		OnRefresh: func(elapsed time.Duration) {
			select {
			case newCfg := <-reloadCh:
				display.Apply(newCfg.UI)
				loop.SetPeriod(newCfg.Refresh.Period)
			default:
			}

			if err := table.Refresh(); err != nil {
				logger.Warn("socket table refresh failed", zap.Error(err))
			}

			rows := collector.Collect(table, elapsed, display.SortBySent())
			for i := range rows {
				if rows[i].PID == 0 {
					rows[i].Name = "unknown"
					continue
				}
				info := resolver.Resolve(rows[i].PID)
				rows[i].Name = info.Name
				rows[i].Cmdline = info.Cmdline
			}
			resolver.Prune(collector.PIDs())

			display.Render(rows, st.Snapshot())
			if manager != nil {
				manager.Export(export.RowMetrics(rows, startTime, time.Now()))
			}
		},
		OnCleanup: func() {
			if watcher != nil {
				watcher.Stop()
			}
			if manager != nil {
				manager.Stop()
			}
			table.Release()
			resolver.Release()
			collector.Release()
			// The terminal goes back to cooked mode last, after
			// everything that might still log or render.
			display.Teardown()
		},
	}

	loop = reactor.New(reactor.Config{
		Period:       cfg.Refresh.Period,
		PollInterval: cfg.Refresh.PollInterval,
		BatchLimit:   cfg.Capture.BatchLimit,
		RefreshLimit: cfg.Refresh.Limit,
	}, pipe, sessions, hooks, st, logger)

	if err := loop.Run(); err != nil {
		if errors.Is(err, reactor.ErrAllSessionsDown) && cfg.Capture.ReplayFile != "" {
			// A fully consumed replay file is a normal end of input.
			logger.Info("replay finished")
			return 0
		}
		logger.Error("capture loop failed", zap.Error(err))
		return 1
	}

	logger.Info("procband stopped", zap.String("stats", st.Snapshot().String()))
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default locations
	defaults := []string{
		"configs/procband.yaml",
		"/etc/procband/procband.yaml",
		"/etc/procband.yaml",
	}
	for _, p := range defaults {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}

	cfg := config.DefaultConfig()
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

func newLogger(level string, trace bool) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	// The interactive screen repaints stdout; chatty stderr logging
	// shreds it. Keep info logs for trace mode and debugging runs.
	if !trace && zapLevel == zapcore.InfoLevel {
		zapLevel = zapcore.WarnLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Encoding:         "console",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	return cfg.Build()
}
