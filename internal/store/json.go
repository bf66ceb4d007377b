package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/galois26/event-feed/internal/model"
)

// JSONFile keeps the collection as one array-of-objects document.
type JSONFile struct {
	path string
}

func NewJSONFile(path string) *JSONFile {
	if path == "" {
		path = "data/events.json"
	}
	return &JSONFile{path: path}
}

func (j *JSONFile) Name() string { return "json:" + j.path }

// Load returns an empty collection when the file does not exist yet.
func (j *JSONFile) Load(_ context.Context) ([]model.Event, error) {
	b, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return []model.Event{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read collection: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return []model.Event{}, nil
	}
	var events []model.Event
	if err := json.Unmarshal(b, &events); err != nil {
		return nil, fmt.Errorf("decode collection %s: %w", j.path, err)
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

// Save writes to a temp file in the same directory and renames it over the
// collection so readers never see a partial document.
func (j *JSONFile) Save(_ context.Context, events []model.Event) error {
	if err := checkUnique(events); err != nil {
		return err
	}
	if events == nil {
		events = []model.Event{}
	}
	b, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	return writeAtomic(j.path, b)
}

func writeAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		return err
	}
	return os.Rename(name, path)
}
