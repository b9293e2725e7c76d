package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tiroq/voxbox/testutil"
)

func TestWriteMetadata_Basic(t *testing.T) {
	dir := t.TempDir()
	recPath := filepath.Join(dir, "recording.wav")
	if err := os.WriteFile(recPath, []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}

	meta := &RecordingMetadata{
		Version:         "1.2.3",
		SessionID:       "abc123",
		StartedAt:       time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC),
		StoppedAt:       time.Date(2026, 1, 15, 14, 30, 5, 0, time.UTC),
		Duration:        "5s",
		DurationMs:      5000,
		RecorderBackend: "exec",
		OutputFile:      recPath,
	}

	if err := WriteMetadata(recPath, meta); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	var got RecordingMetadata
	testutil.ReadJSONFile(t, filepath.Join(dir, "recording.meta.json"), &got)
	if got.SessionID != "abc123" {
		t.Errorf("session_id = %q, want %q", got.SessionID, "abc123")
	}
	if got.DurationMs != 5000 {
		t.Errorf("duration_ms = %d, want 5000", got.DurationMs)
	}
	if got.RecorderBackend != "exec" {
		t.Errorf("recorder_backend = %q", got.RecorderBackend)
	}
}

func TestWriteMetadata_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	recPath := filepath.Join(dir, "recording.wav")

	if err := WriteMetadata(recPath, &RecordingMetadata{Version: "dev"}); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestReadMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	recPath := filepath.Join(dir, "recording.wav")
	if err := os.WriteFile(recPath, []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	meta := NewMetadata("dev", "s1", "fake", recPath, start, start.Add(1500*time.Millisecond))

	if err := WriteMetadata(recPath, meta); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	got, err := ReadMetadata(recPath)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if got.DurationMs != 1500 || got.Duration != "1.5s" {
		t.Errorf("duration = %q / %d", got.Duration, got.DurationMs)
	}
	if got.SizeBytes != 10 {
		t.Errorf("size_bytes = %d, want 10", got.SizeBytes)
	}
}

func TestReadMetadataMissing(t *testing.T) {
	_, err := ReadMetadata(filepath.Join(t.TempDir(), "recording.wav"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("want os.ErrNotExist, got %v", err)
	}
}

func TestNewMetadataClampsNegativeDuration(t *testing.T) {
	now := time.Now()
	meta := NewMetadata("dev", "", "fake", "/nonexistent.wav", now, now.Add(-time.Second))
	if meta.DurationMs != 0 {
		t.Errorf("duration_ms = %d, want 0", meta.DurationMs)
	}
	if meta.SizeBytes != 0 {
		t.Errorf("size_bytes = %d, want 0", meta.SizeBytes)
	}
}

func TestMetadataPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/cache/recording.wav", "/cache/recording.meta.json"},
		{"/cache/take.m4a", "/cache/take.meta.json"},
		{"/cache/noext", "/cache/noext.meta.json"},
	}
	for _, tt := range tests {
		if got := MetadataPath(tt.input); got != tt.want {
			t.Errorf("MetadataPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRecordingExists(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "full.wav")
	empty := filepath.Join(dir, "empty.wav")
	_ = os.WriteFile(full, []byte("RIFF"), 0644)
	_ = os.WriteFile(empty, nil, 0644)

	if !RecordingExists(full) {
		t.Error("non-empty file should exist")
	}
	if RecordingExists(empty) {
		t.Error("empty file should not count as a recording")
	}
	if RecordingExists(filepath.Join(dir, "missing.wav")) {
		t.Error("missing file reported as existing")
	}
	if RecordingExists(dir) {
		t.Error("directory reported as recording")
	}
}

func TestDiscardRecording(t *testing.T) {
	dir := t.TempDir()
	recPath := filepath.Join(dir, "recording.wav")
	_ = os.WriteFile(recPath, []byte("RIFF"), 0644)
	if err := WriteMetadata(recPath, &RecordingMetadata{Version: "dev"}); err != nil {
		t.Fatal(err)
	}

	if err := DiscardRecording(recPath); err != nil {
		t.Fatalf("DiscardRecording: %v", err)
	}
	if _, err := os.Stat(recPath); !os.IsNotExist(err) {
		t.Error("recording still present")
	}
	if _, err := os.Stat(MetadataPath(recPath)); !os.IsNotExist(err) {
		t.Error("sidecar still present")
	}

	// Second call is a no-op.
	if err := DiscardRecording(recPath); err != nil {
		t.Errorf("DiscardRecording on missing file: %v", err)
	}
}
