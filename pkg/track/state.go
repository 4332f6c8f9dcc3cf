package track

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StateVersion is the on-disk format version. A state file with any other
// version is discarded and replaced with a fresh one.
const StateVersion = 1

// CounterState is the persisted local view of interactions recorded on
// this client and not yet confirmed as part of a server snapshot.
// Counters maps component name to the local delta; ActionInteractions
// keeps the same deltas keyed by action.
type CounterState struct {
	Version            int              `json:"version"`
	Counters           map[string]int64 `json:"counters"`
	ActionInteractions map[string]int64 `json:"actionInteractions"`
	LastIncrementAt    time.Time        `json:"lastIncrementAt"`
}

func newCounterState() *CounterState {
	return &CounterState{
		Version:            StateVersion,
		Counters:           make(map[string]int64),
		ActionInteractions: make(map[string]int64),
	}
}

// LocalTotal sums every per-component delta.
func (s *CounterState) LocalTotal() int64 {
	var total int64
	for _, n := range s.Counters {
		total += n
	}
	return total
}

// StateStore persists CounterState as a JSON file.
type StateStore struct {
	path string
}

// NewStateStore creates a store writing to path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Load reads the persisted state. A missing, unreadable or
// version-mismatched file yields a fresh empty state rather than an
// error; local counters are best-effort by design and must never block
// the client.
func (ss *StateStore) Load() *CounterState {
	raw, err := os.ReadFile(ss.path)
	if err != nil {
		return newCounterState()
	}

	var state CounterState
	if err := json.Unmarshal(raw, &state); err != nil || state.Version != StateVersion {
		return newCounterState()
	}
	if state.Counters == nil {
		state.Counters = make(map[string]int64)
	}
	if state.ActionInteractions == nil {
		state.ActionInteractions = make(map[string]int64)
	}
	return &state
}

// Save writes the state atomically via a temp file rename.
func (ss *StateStore) Save(state *CounterState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode counter state: %w", err)
	}

	dir := filepath.Dir(ss.path)
	tmp, err := os.CreateTemp(dir, ".counters-*.json")
	if err != nil {
		return fmt.Errorf("failed to create state file: %w", err)
	}

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), ss.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
