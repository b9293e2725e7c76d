package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/tiroq/voxbox/internal/media"
	"github.com/tiroq/voxbox/internal/statemachine"
)

// StatusFile is the name of the status snapshot inside the cache directory.
const StatusFile = "status.json"

// StatusSnapshot is the daemon's view of the controller at a point in time.
type StatusSnapshot struct {
	State             statemachine.State `json:"state"`              // Current controller state
	Handle            media.Kind         `json:"handle"`             // Active handle kind
	RecordingPath     string             `json:"recording_path"`     // Fixed recording file
	RecordingExists   bool               `json:"recording_exists"`   // File present and non-empty
	ResetEnabled      bool               `json:"reset_enabled"`      // Whether reset would do anything
	LastAction        string             `json:"last_action"`        // Last intent handled
	LastError         string             `json:"last_error"`         // Error from the last attempt
	SessionID         string             `json:"session_id"`         // Daemon run identifier
	Backend           string             `json:"backend"`            // Media gateway name
	PermissionGranted bool               `json:"permission_granted"` // Capture allowed
	Terminated        bool               `json:"terminated"`         // Session ended by permission denial
	PID               int                `json:"pid"`                // Daemon process
	Version           string             `json:"version"`            // Daemon build
	Timestamp         time.Time          `json:"timestamp"`          // Snapshot time
}

// WriteStatus persists the snapshot to <dir>/status.json using atomic write
func WriteStatus(dir string, status *StatusSnapshot) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return atomicWriteJSON(filepath.Join(dir, StatusFile), status)
}

// ReadStatus loads the snapshot from <dir>/status.json
func ReadStatus(dir string) (*StatusSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, StatusFile))
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RemoveStatus deletes the snapshot so clients do not mistake a stopped
// daemon for a running one.
func RemoveStatus(dir string) error {
	err := os.Remove(filepath.Join(dir, StatusFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// atomicWriteJSON writes data to a file atomically using temp file + rename
func atomicWriteJSON(path string, data interface{}) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}

	// Sync to disk before rename
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil

	return os.Rename(tmpPath, path)
}
