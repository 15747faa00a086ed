package feereport

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"launchpad/internal/model"
)

// StateStore persists the cursor of the last aggregated event.
type StateStore interface {
	Load(ctx context.Context) (model.ReportCursor, bool, error)
	Save(ctx context.Context, cursor model.ReportCursor) error
}

// FileStateStore stores state in a local JSON file.
type FileStateStore struct {
	Path string
}

type stateRecord struct {
	model.ReportCursor
	UpdatedAt string `json:"updated_at"`
}

func (s *FileStateStore) Load(ctx context.Context) (model.ReportCursor, bool, error) {
	if s == nil || s.Path == "" {
		return model.ReportCursor{}, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.ReportCursor{}, false, nil
		}
		return model.ReportCursor{}, false, fmt.Errorf("read state: %w", err)
	}

	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.ReportCursor{}, false, fmt.Errorf("parse state: %w", err)
	}
	return rec.ReportCursor, true, nil
}

func (s *FileStateStore) Save(ctx context.Context, cursor model.ReportCursor) error {
	if s == nil || s.Path == "" {
		return nil
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	data, err := json.Marshal(stateRecord{
		ReportCursor: cursor,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

// StateBackend is the named-state surface of the Postgres and SQLite stores.
type StateBackend interface {
	LoadState(ctx context.Context, name string) (model.ReportCursor, bool, error)
	SaveState(ctx context.Context, name string, cursor model.ReportCursor) error
}

// DBStateStore keeps state in the indexer_state table under Name.
type DBStateStore struct {
	Backend StateBackend
	Name    string
}

func (s *DBStateStore) Load(ctx context.Context) (model.ReportCursor, bool, error) {
	if s == nil || s.Backend == nil {
		return model.ReportCursor{}, false, nil
	}
	return s.Backend.LoadState(ctx, s.Name)
}

func (s *DBStateStore) Save(ctx context.Context, cursor model.ReportCursor) error {
	if s == nil || s.Backend == nil {
		return nil
	}
	return s.Backend.SaveState(ctx, s.Name, cursor)
}
