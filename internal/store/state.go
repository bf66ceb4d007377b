package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// RunSummary is the last outcome of one operation.
type RunSummary struct {
	RunID      string         `json:"run_id"`
	FinishedAt string         `json:"finished_at"`
	Counts     map[string]int `json:"counts"`
	Errors     int            `json:"errors"`
}

// RunState keeps the last summary per operation between runs.
type RunState struct {
	LastRun map[string]RunSummary `json:"last_run"`
}

// LoadRunState returns an empty state when the file does not exist.
func LoadRunState(path string) (RunState, error) {
	s := RunState{LastRun: map[string]RunSummary{}}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return RunState{LastRun: map[string]RunSummary{}}, fmt.Errorf("decode run state: %w", err)
	}
	if s.LastRun == nil {
		s.LastRun = map[string]RunSummary{}
	}
	return s, nil
}

func SaveRunState(path string, s RunState) error {
	b, err := json.MarshalIndent(s, "", " ")
	if err != nil {
		return err
	}
	return writeAtomic(path, b)
}
