package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func seedLogFile(t *testing.T, path string, prefix string, n int) {
	t.Helper()
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "{\"ts\":\"2026-01-01T00:00:00Z\",\"component\":\"controller\",\"event\":\"%s%d\",\"session_id\":\"s-%s\"}\n", prefix, i, prefix)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
}

// readBundle returns the decoded header and entry lines of an export.
func readBundle(t *testing.T, p string) (DiagBundle, []map[string]interface{}) {
	t.Helper()
	f, err := os.Open(p)
	if err != nil {
		t.Fatalf("open %s: %v", p, err)
	}
	defer f.Close()

	var header DiagBundle
	var entries []map[string]interface{}
	s := bufio.NewScanner(f)
	for i := 0; s.Scan(); i++ {
		if i == 0 {
			if err := json.Unmarshal(s.Bytes(), &header); err != nil {
				t.Fatalf("header: %v", err)
			}
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal(s.Bytes(), &m); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		entries = append(entries, m)
	}
	return header, entries
}

func TestExportWritesBundleHeader(t *testing.T) {
	src := filepath.Join(t.TempDir(), "debug.log")
	seedLogFile(t, src, "e", 10)

	path, n, err := Export(src, t.TempDir())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 10 {
		t.Errorf("entries: want 10, got %d", n)
	}
	if !strings.HasPrefix(filepath.Base(path), "voxbox-diag-") {
		t.Errorf("unexpected export name %q", filepath.Base(path))
	}

	header, entries := readBundle(t, path)
	if header.EntryCount != 10 || len(entries) != 10 {
		t.Errorf("entry_count = %d, lines = %d", header.EntryCount, len(entries))
	}
	if header.GoVersion == "" || header.OS == "" {
		t.Errorf("header missing runtime info: %+v", header)
	}
	if len(header.Sources) != 1 || header.Sources[0] != src {
		t.Errorf("sources = %v", header.Sources)
	}
	if len(header.Sessions) != 1 || header.Sessions[0] != "s-e" {
		t.Errorf("sessions = %v", header.Sessions)
	}
	if entries[3]["event"] != "e3" {
		t.Errorf("entries out of order: %v", entries[3])
	}
}

func TestExportIncludesRotatedGenerationFirst(t *testing.T) {
	src := filepath.Join(t.TempDir(), "debug.log")
	seedLogFile(t, src+".old", "old", 2)
	seedLogFile(t, src, "new", 3)

	path, n, err := Export(src, t.TempDir())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 5 {
		t.Fatalf("entries = %d, want 5", n)
	}

	header, entries := readBundle(t, path)
	if len(header.Sources) != 2 || header.Sources[0] != src+".old" {
		t.Errorf("sources = %v", header.Sources)
	}
	if entries[0]["event"] != "old0" || entries[2]["event"] != "new0" {
		t.Errorf("order: %v, %v", entries[0]["event"], entries[2]["event"])
	}
	if len(header.Sessions) != 2 {
		t.Errorf("sessions = %v", header.Sessions)
	}
}

func TestExportRedactsEntries(t *testing.T) {
	src := filepath.Join(t.TempDir(), "debug.log")
	line := `{"event":"client_connect","payload":{"remote_addr":"127.0.0.1:5555","clients":1}}` + "\n"
	if err := os.WriteFile(src, []byte(line), 0644); err != nil {
		t.Fatal(err)
	}

	path, _, err := Export(src, t.TempDir())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	_, entries := readBundle(t, path)
	payload := entries[0]["payload"].(map[string]interface{})
	if payload["remote_addr"] != "[REDACTED]" {
		t.Errorf("remote_addr = %v", payload["remote_addr"])
	}
	if payload["clients"] != float64(1) {
		t.Errorf("clients = %v", payload["clients"])
	}
}

func TestExportSkipsGarbageLines(t *testing.T) {
	src := filepath.Join(t.TempDir(), "mixed.ndjson")
	content := "{\"event\":\"a\"}\n\nnot json\n[1,2]\nnull\n{\"event\":\"b\"}\n{\"event\":\n"
	if err := os.WriteFile(src, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, n, err := Export(src, t.TempDir())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 2 {
		t.Errorf("entries = %d, want 2", n)
	}
}

func TestExportMissingFile(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "voxbox-debug.log")
	// A rotated generation alone is not enough.
	seedLogFile(t, missing+".old", "old", 1)

	_, _, err := Export(missing, t.TempDir())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("want os.ErrNotExist, got %v", err)
	}
}
