// Package store persists generated essays.
package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/abdhe/essay-forge/pkg/dispatch"
)

// JSONLWriter appends results to a file, one JSON object per line.
type JSONLWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// NewJSONLWriter opens path for appending, creating parent directories.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("jsonl: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonl: open %s: %w", path, err)
	}
	buf := bufio.NewWriter(f)
	return &JSONLWriter{file: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Save appends results and flushes them to disk.
func (w *JSONLWriter) Save(_ context.Context, results []dispatch.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, r := range results {
		if err := w.enc.Encode(r); err != nil {
			return fmt.Errorf("jsonl: encode: %w", err)
		}
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("jsonl: flush: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("jsonl: flush: %w", err)
	}
	return w.file.Close()
}
