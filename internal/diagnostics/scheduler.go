// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package diagnostics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// SnapshotScheduler dirige a coleta e gravação periódica de Snapshots em
// uma expressão cron: um único job registrado (tirar um snapshot), com o
// logger do cron redirecionado para o slog do cliente.
type SnapshotScheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	collect *Collector
	writer  *SnapshotWriter
	upload  *S3Uploader // nil se uploads não estão configurados
}

// NewSnapshotScheduler registra um job cron que tira um snapshot via
// collect, grava via writer e opcionalmente envia via upload (nil
// desabilita o upload).
func NewSnapshotScheduler(schedule string, collect *Collector, writer *SnapshotWriter, upload *S3Uploader, logger *slog.Logger) (*SnapshotScheduler, error) {
	logger = logger.With("component", "diagnostics.scheduler")
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	s := &SnapshotScheduler{cron: c, logger: logger, collect: collect, writer: writer, upload: upload}

	if _, err := c.AddFunc(schedule, s.takeSnapshot); err != nil {
		return nil, fmt.Errorf("diagnostics: registering snapshot schedule %q: %w", schedule, err)
	}

	return s, nil
}

// Start começa a rodar o schedule.
func (s *SnapshotScheduler) Start() {
	s.logger.Info("diagnostics scheduler started")
	s.cron.Start()
}

// Stop para o schedule e espera qualquer job em andamento, limitado por
// ctx.
func (s *SnapshotScheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.logger.Info("diagnostics scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("diagnostics scheduler stop timed out")
	}
}

func (s *SnapshotScheduler) takeSnapshot() {
	snap := s.collect.Collect()

	path, err := s.writer.Write(snap)
	if err != nil {
		s.logger.Warn("failed to write snapshot", "error", err)
		return
	}
	s.logger.Debug("wrote snapshot", "path", path)

	if s.upload == nil {
		return
	}
	// Best-effort: um upload de snapshot perdido não vale um retry.
	if err := s.upload.Upload(context.Background(), path); err != nil {
		s.logger.Warn("failed to upload snapshot", "path", path, "error", err)
	}
}
