// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package diagnostics

import "time"

func unixNow() int64 { return time.Now().Unix() }

// SessionSource é a fatia de *session.Supervisor que o subsistema de
// diagnostics lê. Uma interface estreita em vez do tipo concreto mantém
// este pacote testável sem subir uma sessão de verdade.
type SessionSource interface {
	LifecycleString() string
	ReconnectCount() uint64
	ControllerCount() int
	EffectivePollingRate() int
}

// Snapshot é uma amostra pontual de saúde da sessão mais carga do host —
// a unidade que este subsistema grava em disco e opcionalmente envia a S3.
type Snapshot struct {
	TimestampUnix          int64       `json:"timestamp_unix"`
	Lifecycle              string      `json:"lifecycle"`
	ControllerCount        int         `json:"controller_count"`
	EffectivePollingRateHz int         `json:"effective_polling_rate_hz"`
	ReconnectCount         uint64      `json:"reconnect_count"`
	System                 SystemStats `json:"system"`
}

// Collector monta Snapshots a partir de um SessionSource e um
// SystemMonitor.
type Collector struct {
	source  SessionSource
	monitor *SystemMonitor
	now     func() int64
}

// NewCollector monta um Collector. now permite aos testes injetar um
// relógio determinístico; passe nil em produção para usar o relógio real.
func NewCollector(source SessionSource, monitor *SystemMonitor, now func() int64) *Collector {
	if now == nil {
		now = unixNow
	}
	return &Collector{source: source, monitor: monitor, now: now}
}

// Collect monta um Snapshot do estado atual de source e monitor.
func (c *Collector) Collect() Snapshot {
	return Snapshot{
		TimestampUnix:          c.now(),
		Lifecycle:              c.source.LifecycleString(),
		ControllerCount:        c.source.ControllerCount(),
		EffectivePollingRateHz: c.source.EffectivePollingRate(),
		ReconnectCount:         c.source.ReconnectCount(),
		System:                 c.monitor.Stats(),
	}
}
