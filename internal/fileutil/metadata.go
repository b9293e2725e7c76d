// Package fileutil manages the on-disk recording: its sidecar metadata and
// removal on reset.
package fileutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RecordingMetadata is the sidecar written next to a finalized recording.
type RecordingMetadata struct {
	Version         string    `json:"version"`
	SessionID       string    `json:"session_id"`
	StartedAt       time.Time `json:"started_at"`
	StoppedAt       time.Time `json:"stopped_at"`
	Duration        string    `json:"duration"`
	DurationMs      int64     `json:"duration_ms"`
	RecorderBackend string    `json:"recorder_backend"`
	OutputFile      string    `json:"output_file"`
	SizeBytes       int64     `json:"size_bytes"`
}

// NewMetadata fills in the derived duration fields and the file size.
func NewMetadata(version, sessionID, backend, path string, started, stopped time.Time) *RecordingMetadata {
	d := stopped.Sub(started)
	if d < 0 {
		d = 0
	}
	meta := &RecordingMetadata{
		Version:         version,
		SessionID:       sessionID,
		StartedAt:       started.UTC(),
		StoppedAt:       stopped.UTC(),
		Duration:        d.Round(time.Millisecond).String(),
		DurationMs:      d.Milliseconds(),
		RecorderBackend: backend,
		OutputFile:      path,
	}
	if info, err := os.Stat(path); err == nil {
		meta.SizeBytes = info.Size()
	}
	return meta
}

// WriteMetadata atomically writes the <basepath>.meta.json sidecar for
// recordingPath.
func WriteMetadata(recordingPath string, meta *RecordingMetadata) error {
	metaPath := MetadataPath(recordingPath)
	dir := filepath.Dir(metaPath)

	tmpFile, err := os.CreateTemp(dir, "meta-*.tmp")
	if err != nil {
		return fmt.Errorf("create metadata temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync metadata: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close metadata temp: %w", err)
	}
	success = true

	if err := os.Rename(tmpPath, metaPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads the sidecar for recordingPath. A missing sidecar yields
// an error wrapping os.ErrNotExist.
func ReadMetadata(recordingPath string) (*RecordingMetadata, error) {
	data, err := os.ReadFile(MetadataPath(recordingPath))
	if err != nil {
		return nil, err
	}
	var meta RecordingMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &meta, nil
}

// MetadataPath returns <basepath>.meta.json for a recording file path.
func MetadataPath(recordingPath string) string {
	ext := filepath.Ext(recordingPath)
	base := recordingPath[:len(recordingPath)-len(ext)]
	return base + ".meta.json"
}

// RecordingExists reports whether a non-empty recording is present at path.
func RecordingExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// DiscardRecording removes the recording and its sidecar. Files that are
// already gone are not an error.
func DiscardRecording(path string) error {
	var errs []error
	for _, p := range []string{path, MetadataPath(path)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
