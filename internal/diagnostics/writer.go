// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package diagnostics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// Compression seleciona o formato de arquivo do SnapshotWriter.
type Compression int

const (
	CompressionGzip Compression = iota
	CompressionZstd
)

// ParseCompression mapeia a string de config ("gzip"/"zstd") para uma
// Compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "gzip":
		return CompressionGzip, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("diagnostics: unknown compression %q", name)
	}
}

func (c Compression) extension() string {
	if c == CompressionZstd {
		return ".json.zst"
	}
	return ".json.gz"
}

// maxRetainedSnapshots limita o crescimento do disco local: só esta
// quantidade de arquivos rotacionados é mantida, os mais antigos são
// apagados primeiro.
const maxRetainedSnapshots = 48

// SnapshotWriter serializa Snapshots em arquivos comprimidos sob dir —
// gzip paralelo (pgzip) por default, zstd como alternativa configurável.
type SnapshotWriter struct {
	dir         string
	compression Compression
}

// NewSnapshotWriter cria um SnapshotWriter enraizado em dir, criando o
// diretório se necessário.
func NewSnapshotWriter(dir string, compression Compression) (*SnapshotWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("diagnostics: creating snapshot dir %s: %w", dir, err)
	}
	return &SnapshotWriter{dir: dir, compression: compression}, nil
}

// Write serializa snap em JSON, comprime e grava em um arquivo com
// timestamp no nome sob dir. Retorna o path gravado e rotaciona o que
// exceder maxRetainedSnapshots.
func (w *SnapshotWriter) Write(snap Snapshot) (string, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("diagnostics: marshaling snapshot: %w", err)
	}

	name := fmt.Sprintf("snapshot-%d%s", snap.TimestampUnix, w.compression.extension())
	path := filepath.Join(w.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("diagnostics: creating snapshot file: %w", err)
	}
	defer f.Close()

	if err := w.compress(f, payload); err != nil {
		return "", fmt.Errorf("diagnostics: compressing snapshot: %w", err)
	}

	w.rotate()
	return path, nil
}

func (w *SnapshotWriter) compress(f *os.File, payload []byte) error {
	if w.compression == CompressionZstd {
		enc, err := zstd.NewWriter(f)
		if err != nil {
			return err
		}
		if _, err := enc.Write(payload); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	}

	gz := pgzip.NewWriter(f)
	if _, err := gz.Write(payload); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

// rotate apaga os snapshots mais antigos além de maxRetainedSnapshots.
// Falhas são ignoradas: uma rotação perdida é só um arquivo a mais no
// disco, nunca motivo para derrubar o subsistema.
func (w *SnapshotWriter) rotate() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if len(names) <= maxRetainedSnapshots {
		return
	}
	for _, name := range names[:len(names)-maxRetainedSnapshots] {
		_ = os.Remove(filepath.Join(w.dir, name))
	}
}
