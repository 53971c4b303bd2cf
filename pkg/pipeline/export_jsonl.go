package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/oisp-sensor/core/pkg/event"
)

// JSONLExporter appends one newline-terminated JSON object per event to a
// local file, for offline inspection or tailing into another collector.
type JSONLExporter struct {
	Path string

	mu   sync.Mutex
	file *os.File
}

func (e *JSONLExporter) Name() string { return "export.jsonl" }

func (e *JSONLExporter) open() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file != nil {
		return nil
	}
	f, err := os.OpenFile(e.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("export.jsonl: open %s: %w", e.Path, err)
	}
	e.file = f
	return nil
}

func (e *JSONLExporter) Export(ctx context.Context, ev event.Event) error {
	if e.file == nil {
		if err := e.open(); err != nil {
			return err
		}
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("export.jsonl: marshal event: %w", err)
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.file.Write(line)
	return err
}

func (e *JSONLExporter) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return nil
	}
	if err := e.file.Sync(); err != nil {
		return err
	}
	return e.file.Close()
}
