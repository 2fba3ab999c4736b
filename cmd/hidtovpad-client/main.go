// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Command hidtovpad-client sobe o núcleo da sessão contra um host
// HIDtoVPAD real: parseia flags, carrega o side-config opcional, monta os
// loggers e entrega o controle ao Supervisor de longa duração.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/config"
	"github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/diagnostics"
	"github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/dscp"
	"github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/logging"
	"github.com/LAGonauta/HIDtoVPADNetworkClientCli/internal/session"
)

const (
	minPollingRate = 20
	maxPollingRate = 1000
	defaultRate    = 250
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("hidtovpad-client", flag.ContinueOnError)
	pollingRate := fs.Int("polling-rate", defaultRate, "controller sampling rate in Hz (20-1000)")
	configPath := fs.String("config", "", "optional path to a YAML side-config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: hidtovpad-client [--polling-rate N] [--config path] <ip>")
		return 2
	}
	wiiuIP := fs.Arg(0)
	if net.ParseIP(wiiuIP) == nil {
		fmt.Fprintf(os.Stderr, "invalid ip literal %q\n", wiiuIP)
		return 2
	}
	if *pollingRate < minPollingRate || *pollingRate > maxPollingRate {
		fmt.Fprintf(os.Stderr, "--polling-rate must be between %d and %d, got %d\n", minPollingRate, maxPollingRate, *pollingRate)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		return 1
	}

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()

	sessionID := strconv.FormatInt(time.Now().Unix(), 10)
	sessionLogger, sessionCloser, sessionPath, err := logging.NewSessionLogger(
		logger, cfg.Logging.SessionLogDir, "hidtovpad-client", sessionID)
	if err != nil {
		logger.Warn("failed to open session log, continuing with base logger", "error", err)
		sessionLogger, sessionCloser, sessionPath = logger, io.NopCloser(strings.NewReader("")), ""
	}
	defer sessionCloser.Close()

	backend := noopInputBackend{}

	supervisor, err := session.NewSupervisor(wiiuIP, *pollingRate, backend, sessionLogger)
	if err != nil {
		sessionLogger.Error("failed to construct session", "error", err)
		return 1
	}

	if codepoint, err := dscp.Parse(cfg.DSCP.Name); err != nil {
		sessionLogger.Warn("ignoring invalid dscp config", "error", err)
	} else {
		supervisor.SetDSCP(codepoint)
	}

	stopDiagnostics := startDiagnostics(cfg, supervisor, sessionLogger)
	defer stopDiagnostics()

	// A goroutine do sinal só loga e chama Shutdown (store de Exiting mais
	// o fechamento do canal de parada do Supervisor). Uma segunda goroutine espera uma linha no stdin, para um operador em
	// terminal também conseguir encerrar de forma limpa sem sinal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		sessionLogger.Info("shutdown requested, finishing in-flight work")
		supervisor.Shutdown()
	}()
	go waitForStdinClose(sessionLogger, supervisor)

	sessionLogger.Info("starting session",
		"wiiu_ip", wiiuIP, "polling_rate_hz", *pollingRate, "session_log", sessionPath)
	supervisor.Run()
	sessionLogger.Info("session exited cleanly")

	if sessionPath != "" {
		logging.RemoveSessionLog(cfg.Logging.SessionLogDir, "hidtovpad-client", sessionID)
	}
	return 0
}

// waitForStdinClose bloqueia em uma linha do stdin e, quando ela chega (ou
// o stdin fecha), pede o shutdown gracioso.
func waitForStdinClose(logger *slog.Logger, supervisor *session.Supervisor) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	logger.Info("stdin closed, requesting shutdown")
	supervisor.Shutdown()
}

// startDiagnostics liga o subsistema de diagnostics quando o side-config o
// habilita; é no-op (e a função de parada retornada é no-op) quando
// diagnostics.enabled é false ou ausente.
func startDiagnostics(cfg *config.SideConfig, supervisor *session.Supervisor, logger *slog.Logger) func() {
	if !cfg.Diagnostics.Enabled {
		return func() {}
	}

	monitor := diagnostics.NewSystemMonitor(logger)
	monitor.Start()

	compression, err := diagnostics.ParseCompression(cfg.Diagnostics.Compression)
	if err != nil {
		logger.Error("diagnostics disabled: bad compression config", "error", err)
		monitor.Stop()
		return func() {}
	}

	writer, err := diagnostics.NewSnapshotWriter(cfg.Diagnostics.OutputDir, compression)
	if err != nil {
		logger.Error("diagnostics disabled: cannot create snapshot writer", "error", err)
		monitor.Stop()
		return func() {}
	}

	var uploader *diagnostics.S3Uploader
	if cfg.Diagnostics.S3.Bucket != "" {
		uploader, err = diagnostics.NewS3Uploader(context.Background(),
			cfg.Diagnostics.S3.Bucket, cfg.Diagnostics.S3.Prefix, cfg.Diagnostics.S3.Region,
			cfg.Diagnostics.S3.AccessKeyID, cfg.Diagnostics.S3.SecretAccessKey)
		if err != nil {
			logger.Warn("diagnostics: s3 upload disabled", "error", err)
			uploader = nil
		}
	}

	collector := diagnostics.NewCollector(supervisor, monitor, nil)
	scheduler, err := diagnostics.NewSnapshotScheduler(cfg.Diagnostics.Schedule, collector, writer, uploader, logger)
	if err != nil {
		logger.Error("diagnostics disabled: bad schedule", "error", err)
		monitor.Stop()
		return func() {}
	}
	scheduler.Start()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		scheduler.Stop(ctx)
		monitor.Stop()
	}
}
