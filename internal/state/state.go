package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Phase names recorded as a workflow progresses. The update workflow persists
// each transition so an interrupted run can be detected on the next start.
const (
	PhaseStarted   = "started"
	PhaseStopped   = "stopped"
	PhaseSynced    = "synced"
	PhaseRestarted = "restarted"
	PhaseDone      = "done"
	PhaseFailed    = "failed"
)

// RunRecord records the outcome (or progress) of one workflow invocation.
type RunRecord struct {
	Workflow          string    `json:"workflow"`
	Phase             string    `json:"phase"`
	ServiceWasRunning bool      `json:"service_was_running"`
	Head              string    `json:"head,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at,omitempty"`
	Error             string    `json:"error,omitempty"`
}

var mu sync.Mutex

const stateFileName = "blogctl_state.json"

var overrideDir string

// SetDir overrides the state directory. An empty value restores the default
// search order.
func SetDir(dir string) {
	mu.Lock()
	defer mu.Unlock()
	overrideDir = dir
}

func stateFilePath() string {
	if overrideDir != "" {
		return filepath.Join(overrideDir, stateFileName)
	}
	if dir := os.Getenv("BLOGCTL_STATE_DIR"); dir != "" {
		return filepath.Join(dir, stateFileName)
	}
	// Prefer a persistent location under /var/lib/blogctl when possible; fall back to the
	// current working dir to avoid relying on ephemeral temp directories.
	defaultDir := "/var/lib/blogctl"
	if err := os.MkdirAll(defaultDir, 0o755); err == nil {
		return filepath.Join(defaultDir, stateFileName)
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, stateFileName)
	}
	return filepath.Join(os.TempDir(), stateFileName)
}

// loadAllUnlocked reads the state file WITHOUT acquiring the package mutex.
func loadAllUnlocked() (map[string]RunRecord, error) {
	p := stateFilePath()
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]RunRecord), nil
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	out := make(map[string]RunRecord)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return out, nil
}

// saveAllUnlocked writes the state file WITHOUT acquiring the package mutex.
func saveAllUnlocked(m map[string]RunRecord) error {
	p := stateFilePath()
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("mkdir state dir: %w", err)
	}
	if err := os.WriteFile(p, b, 0o640); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// SaveRunRecord persists a run record keyed by workflow name. Holds the
// package mutex for the entire read-modify-write cycle to avoid lost updates.
func SaveRunRecord(r RunRecord) error {
	mu.Lock()
	defer mu.Unlock()
	m, err := loadAllUnlocked()
	if err != nil {
		return err
	}
	m[r.Workflow] = r
	return saveAllUnlocked(m)
}

// GetRunRecord looks up the last record for a workflow.
func GetRunRecord(workflow string) (RunRecord, bool, error) {
	mu.Lock()
	defer mu.Unlock()
	m, err := loadAllUnlocked()
	if err != nil {
		return RunRecord{}, false, err
	}
	r, ok := m[workflow]
	return r, ok, nil
}

// RemoveRunRecord removes the record for a workflow. Protected by the package mutex.
func RemoveRunRecord(workflow string) error {
	mu.Lock()
	defer mu.Unlock()
	m, err := loadAllUnlocked()
	if err != nil {
		return err
	}
	delete(m, workflow)
	return saveAllUnlocked(m)
}

// GetAllRunRecords returns all persisted run records.
func GetAllRunRecords() (map[string]RunRecord, error) {
	mu.Lock()
	defer mu.Unlock()
	return loadAllUnlocked()
}
