package remote

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pagetrace/pagetrace/types"
)

const (
	// LaunchRecordFilename is the persisted launch record inside a run dir.
	LaunchRecordFilename = "launch.json"

	// EnvLaunchID lets an external process supply the launch id when no
	// record file is reachable. Read only at the finalization boundary.
	EnvLaunchID = "PAGETRACE_LAUNCH_ID"
)

// LaunchRecord is the piece of state intentionally shared across process
// boundaries: it lets a later process finish a remote launch started by an
// earlier one. It is written once at launch start and consumed, not deleted,
// at finalize; reading it multiple times is safe.
type LaunchRecord struct {
	LaunchID string `json:"launch_id"`
	Endpoint string `json:"endpoint"`
	Project  string `json:"project"`
}

// LaunchRecordPath returns the record location for an execution.
func LaunchRecordPath(reportsDir, executionID string) string {
	return filepath.Join(reportsDir, executionID, LaunchRecordFilename)
}

// Save writes the record atomically (write to a temp file in the same
// directory, then rename) so a concurrently-starting finalize process never
// observes a partial write.
func (r LaunchRecord) Save(path string) error {
	if r.LaunchID == "" {
		return fmt.Errorf("launch record requires a launch id")
	}

	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal launch record: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, LaunchRecordFilename+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move launch record into place: %w", err)
	}
	return nil
}

// LoadLaunchRecord reads a persisted record from disk.
func LoadLaunchRecord(path string) (*LaunchRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read launch record %s: %w", path, err)
	}

	var rec LaunchRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse launch record %s: %w", path, err)
	}
	if rec.LaunchID == "" {
		return nil, fmt.Errorf("launch record %s carries no launch id", path)
	}
	return &rec, nil
}

// RecoverLaunchRecord locates a launch record for the given execution:
// first the record file in the run directory, then the environment variable
// as the last-resort cross-process channel. Returns nil when nothing is
// recoverable.
func RecoverLaunchRecord(reportsDir, executionID, fallbackEndpoint, fallbackProject string) *LaunchRecord {
	if executionID != "" && types.ValidateExecutionID(executionID) == nil {
		if rec, err := LoadLaunchRecord(LaunchRecordPath(reportsDir, executionID)); err == nil {
			return rec
		}
	}

	if id := os.Getenv(EnvLaunchID); id != "" {
		return &LaunchRecord{
			LaunchID: id,
			Endpoint: fallbackEndpoint,
			Project:  fallbackProject,
		}
	}
	return nil
}
