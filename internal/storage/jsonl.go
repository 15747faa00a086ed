package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"launchpad/internal/model"
)

// JSONLStorage appends raw log records and typed events to two JSONL files. An empty
// path disables that stream.
type JSONLStorage struct {
	logsPath   string
	eventsPath string
	mu         sync.Mutex
}

func NewJSONLStorage(logsPath, eventsPath string) *JSONLStorage {
	return &JSONLStorage{logsPath: logsPath, eventsPath: eventsPath}
}

// PutLogBatch appends a batch of log records as JSON lines.
func (s *JSONLStorage) PutLogBatch(_ context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 || s.logsPath == "" {
		return nil
	}
	items := make([]interface{}, len(logs))
	for i := range logs {
		items[i] = logs[i]
	}
	return s.appendLines(s.logsPath, items)
}

// PutTypedEvents appends decoded events as JSON lines.
func (s *JSONLStorage) PutTypedEvents(_ context.Context, events []model.TypedEvent) error {
	if len(events) == 0 || s.eventsPath == "" {
		return nil
	}
	items := make([]interface{}, len(events))
	for i := range events {
		items[i] = events[i]
	}
	return s.appendLines(s.eventsPath, items)
}

func (s *JSONLStorage) appendLines(path string, items []interface{}) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
