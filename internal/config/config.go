// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config carrega o side-config YAML opcional do cliente: os
// ajustes que a linha de comando não cobre (marcação DSCP, destinos de
// log e o subsistema de diagnostics). Tudo é opcional — arquivo ausente,
// ou bloco ausente dentro dele, cai nos defaults que reproduzem o
// comportamento básico do cliente sem mudança alguma.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SideConfig é o formato completo do arquivo de configuração opcional.
type SideConfig struct {
	Logging     LoggingConfig     `yaml:"logging"`
	DSCP        DSCPConfig        `yaml:"dscp"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// LoggingConfig controla logging.NewLogger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`

	// SessionLogDir, se preenchido, pede a logging.NewSessionLogger um
	// arquivo de log dedicado por execução sob este diretório (removido
	// em saída limpa).
	SessionLogDir string `yaml:"session_log_dir"`
}

// DSCPConfig controla a marcação DSCP dos sockets de controle e de saída.
// Name vazio (default) desabilita a marcação por completo.
type DSCPConfig struct {
	Name string `yaml:"name"`
}

// DiagnosticsConfig controla o subsistema opcional de diagnostics.
// Enabled default é false: sem bloco diagnostics no arquivo, o subsistema
// nunca sobe e não compete com as garantias de tempo do núcleo da sessão.
type DiagnosticsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Schedule    string `yaml:"schedule"`    // expressão cron, ex. "@every 1m"
	OutputDir   string `yaml:"output_dir"`  // diretório onde os snapshots são gravados
	Compression string `yaml:"compression"` // "gzip" (default) ou "zstd"
	S3          S3     `yaml:"s3"`          // destino de upload opcional
}

// S3 é o destino opcional de upload dos snapshots rotacionados. Bucket
// vazio desabilita o upload mesmo com Diagnostics.Enabled true.
// AccessKeyID/SecretAccessKey são opcionais: deixe ambos vazios para usar
// a cadeia default de credenciais AWS (ambiente, shared config, IMDS).
type S3 struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// defaultDiagnosticsSchedule usa o atalho "@every" do cron, já que um job
// de snapshot não tem semântica de calendário para honrar.
const defaultDiagnosticsSchedule = "@every 1m"

// Load lê e valida path. Path inexistente não é erro: retorna o SideConfig
// de defaults (tudo opcional, desabilitado), honrando o contrato "sem
// arquivo de config ⇒ só o comportamento básico".
func Load(path string) (*SideConfig, error) {
	if path == "" {
		return defaults(), nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading side config: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing side config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating side config: %w", err)
	}
	return cfg, nil
}

func defaults() *SideConfig {
	return &SideConfig{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Diagnostics: DiagnosticsConfig{
			Schedule:    defaultDiagnosticsSchedule,
			Compression: "gzip",
		},
	}
}

func (c *SideConfig) validate() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Diagnostics.Enabled {
		if c.Diagnostics.Schedule == "" {
			c.Diagnostics.Schedule = defaultDiagnosticsSchedule
		}
		if c.Diagnostics.OutputDir == "" {
			return fmt.Errorf("diagnostics.output_dir is required when diagnostics.enabled is true")
		}
		switch c.Diagnostics.Compression {
		case "":
			c.Diagnostics.Compression = "gzip"
		case "gzip", "zstd":
		default:
			return fmt.Errorf("diagnostics.compression must be %q or %q, got %q", "gzip", "zstd", c.Diagnostics.Compression)
		}
		if c.Diagnostics.S3.Bucket != "" && c.Diagnostics.S3.Region == "" {
			return fmt.Errorf("diagnostics.s3.region is required when diagnostics.s3.bucket is set")
		}
	}

	return nil
}
