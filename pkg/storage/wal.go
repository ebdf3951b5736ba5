package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// WAL is an append-only line journal. The API records every submission it
// receives, accepted or not.
type WAL interface {
	Append(line string) error
}

type NopWAL struct{}

func NewNopWAL() *NopWAL                { return &NopWAL{} }
func (w *NopWAL) Append(_ string) error { return nil }

type FileWAL struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileWAL(path string) (*FileWAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWAL{f: f}, nil
}

func (w *FileWAL) Append(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintln(w.f, line); err != nil {
		return fmt.Errorf("append journal line: %w", err)
	}
	return nil
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// AppendJSON writes v as one JSON line.
func AppendJSON(w WAL, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.Append(string(b))
}

var _ WAL = (*NopWAL)(nil)
var _ WAL = (*FileWAL)(nil)
