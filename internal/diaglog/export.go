package diaglog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"
)

// Version is stamped into export headers. The binaries set it from
// internal/version before exporting.
var Version = "dev"

// DiagBundle is the first line of an export file.
type DiagBundle struct {
	ExportedAt    string   `json:"exported_at"`
	VoxboxVersion string   `json:"voxbox_version"`
	GoVersion     string   `json:"go_version"`
	OS            string   `json:"os"`
	Arch          string   `json:"arch"`
	Sources       []string `json:"sources"`
	Sessions      []string `json:"sessions,omitempty"`
	EntryCount    int      `json:"entry_count"`
}

// Export writes dest/voxbox-diag-<ts>.ndjson: a DiagBundle header followed by
// every entry of logPath.old and then logPath, oldest first. Lines that are
// not JSON objects are dropped and all entries are redacted again, so a
// bundle is safe to attach to a bug report. It returns the bundle path and
// the number of entries.
//
// A missing logPath is reported as os.ErrNotExist; a missing .old is not.
func Export(logPath, dest string) (string, int, error) {
	bundle := DiagBundle{
		ExportedAt:    time.Now().UTC().Format(time.RFC3339),
		VoxboxVersion: Version,
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}

	var entries []map[string]interface{}
	for _, src := range []string{logPath + ".old", logPath} {
		got, err := readEntries(src)
		if errors.Is(err, os.ErrNotExist) && src != logPath {
			continue
		}
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("log file not found at %s: %w", logPath, os.ErrNotExist)
		}
		if err != nil {
			return "", 0, fmt.Errorf("log file %s unreadable: %w", src, err)
		}
		bundle.Sources = append(bundle.Sources, src)
		entries = append(entries, got...)
	}
	bundle.EntryCount = len(entries)
	bundle.Sessions = sessions(entries)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(bundle); err != nil {
		return "", 0, err
	}
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return "", 0, err
		}
	}

	outPath := filepath.Join(dest, "voxbox-diag-"+time.Now().UTC().Format("20060102T150405")+".ndjson")
	if err := os.WriteFile(outPath, buf.Bytes(), 0644); err != nil {
		return "", 0, fmt.Errorf("output file could not be created: %w", err)
	}
	return outPath, len(entries), nil
}

// readEntries decodes the JSON object lines of path and redacts them.
func readEntries(path string) ([]map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []map[string]interface{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), DefaultMaxSize)
	for scanner.Scan() {
		var m map[string]interface{}
		if json.Unmarshal(scanner.Bytes(), &m) != nil || m == nil {
			continue
		}
		out = append(out, Redact(m).(map[string]interface{}))
	}
	return out, scanner.Err()
}

func sessions(entries []map[string]interface{}) []string {
	seen := map[string]bool{}
	var ids []string
	for _, e := range entries {
		id, _ := e["session_id"].(string)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
