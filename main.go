// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/monitor"
	"github.com/domainwatch/domainwatch/types"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

const version = "v1.2.0"

var banner = `
    ____                        _      _       __      __       __
   / __ \____  ____ ___  ____ _(_)___ | |     / /___ _/ /______/ /_
  / / / / __ \/ __ '__ \/ __ '/ / __ \| | /| / / __ '/ __/ ___/ __ \
 / /_/ / /_/ / / / / / / /_/ / / / / /| |/ |/ / /_/ / /_/ /__/ / / /
/_____/\____/_/ /_/ /_/\__,_/_/_/ /_/ |__/|__/\__,_/\__/\___/_/ /_/

`

var (
	// Colors used to ease the reading of program output
	y = color.New(color.FgHiYellow)
	g = color.New(color.FgHiGreen)
	r = color.New(color.FgHiRed)
	b = color.New(color.FgHiBlue)

	help        = flag.Bool("h", false, "Show the program usage message")
	vers        = flag.Bool("version", false, "Print the version number of this domainwatch binary")
	verbose     = flag.Bool("v", false, "Print debug level log messages")
	list        = flag.Bool("list", false, "List the configured feeds and monitored domains, then exit")
	configPath  = flag.String("config", "config.json", "Path to the JSON configuration file")
	outputDir   = flag.String("dir", "", "Directory that state, reports and caches are written under")
	envFile     = flag.String("env", "", "Path to a .env file holding feed credentials")
	timeoutMins = flag.Int("timeout", 0, "Number of minutes before the run terminates itself")
)

func main() {
	flag.Parse()

	if *help {
		b.Fprint(color.Error, banner)
		flag.PrintDefaults()
		return
	}
	if *vers {
		fmt.Println(version)
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Feed credentials may live in a .env file next to the config
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			r.Fprintf(color.Error, "Failed to load the environment file: %v\n", err)
			os.Exit(1)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		r.Fprintf(color.Error, "%v\n", err)
		os.Exit(1)
	}
	cfg.Log = log
	if *outputDir != "" {
		cfg.Dir = *outputDir
	}
	cfg.SetupDataSources()
	if err := cfg.LoadSettings(settingsPath(cfg)); err != nil {
		r.Fprintf(color.Error, "Failed to parse the settings file: %v\n", err)
		os.Exit(1)
	}

	m, err := monitor.NewMonitor(cfg, log)
	if err != nil {
		r.Fprintf(color.Error, "%v\n", err)
		os.Exit(1)
	}

	if *list {
		listSettings(cfg, m)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *timeoutMins > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*timeoutMins)*time.Minute)
		defer cancel()
	}

	// SIGINT and SIGTERM cancel the run; partial results are persisted
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		r.Fprintln(color.Error, "Terminating the run")
		cancel()
	}()

	b.Fprint(color.Error, banner)
	run, err := m.Run(ctx)
	if err != nil {
		r.Fprintf(color.Error, "%v\n", err)
		os.Exit(1)
	}

	printSummary(run)
}

// settingsPath locates the optional INI overrides next to the config file.
func settingsPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.Filepath), "settings.ini")
}

func listSettings(cfg *config.Config, m *monitor.Monitor) {
	g.Fprintln(color.Output, "Monitored domains:")
	for _, d := range cfg.MonitoredDomains {
		fmt.Println("  " + d)
	}
	g.Fprintln(color.Output, "Configured feeds:")
	for _, name := range m.ConfiguredSources() {
		fmt.Println("  " + name)
	}
}

func printSummary(run *types.RunReport) {
	if run.Cancelled {
		y.Fprintln(color.Error, "The run was cancelled before completion")
	}
	g.Fprintf(color.Error, "\nNew lookalikes: %d\n", run.NewLookalikes)
	g.Fprintf(color.Error, "Became active: %d\n", run.BecameActive)
	g.Fprintf(color.Error, "MX changes: %d\n", run.MXChanges)
	if run.Actionable > 0 {
		r.Fprintf(color.Error, "Actionable findings: %d\n", run.Actionable)
	} else {
		g.Fprintln(color.Error, "No actionable findings")
	}
}
