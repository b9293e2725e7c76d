package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/tiroq/voxbox/internal/config"
	"github.com/tiroq/voxbox/internal/ipc"
	"github.com/tiroq/voxbox/internal/media"
	"github.com/tiroq/voxbox/internal/statemachine"
	"github.com/tiroq/voxbox/internal/statusws"
	"github.com/tiroq/voxbox/testutil"
)

func testDeps(t *testing.T) (*Dependencies, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.CacheDir = t.TempDir()
	cfg.StatusAddr = ""
	out := &bytes.Buffer{}
	return &Dependencies{
		Config: cfg,
		Out:    out,
		Now:    func() time.Time { return time.Date(2026, 1, 2, 10, 0, 5, 0, time.UTC) },
	}, out
}

func execute(t *testing.T, deps *Dependencies, args ...string) error {
	t.Helper()
	cmd := NewRootCmd(deps)
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	return cmd.Execute()
}

func TestSendCommands(t *testing.T) {
	tests := []struct {
		args []string
		want ipc.Command
	}{
		{[]string{"press"}, ipc.CmdPrimary},
		{[]string{"reset"}, ipc.CmdReset},
		{[]string{"quit"}, ipc.CmdQuit},
	}

	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			deps, out := testDeps(t)
			testutil.AssertNoError(t, execute(t, deps, tt.args...), "execute")

			got, err := ipc.ReadCommand(deps.Config.CacheDir)
			testutil.AssertNoError(t, err, "read command")
			testutil.AssertEqual(t, tt.want, got, "command file")
			if !strings.Contains(out.String(), "not running") {
				t.Errorf("expected a not-running warning, got %q", out.String())
			}
			if !strings.Contains(out.String(), "Sent "+string(tt.want)) {
				t.Errorf("output = %q", out.String())
			}
		})
	}
}

func TestPressOverWebsocket(t *testing.T) {
	s := statusws.New("127.0.0.1:0")
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		_ = s.Close()
		ts.Close()
	})

	deps, _ := testDeps(t)
	deps.Config.StatusAddr = ts.Listener.Addr().String()
	testutil.AssertNoError(t, execute(t, deps, "press"), "press")

	select {
	case intent := <-s.Intents():
		testutil.AssertEqual(t, statemachine.IntentPrimary, intent, "intent")
	case <-time.After(2 * time.Second):
		t.Fatal("intent not delivered over the websocket")
	}
	if _, err := os.Stat(filepath.Join(deps.Config.CacheDir, ipc.CommandFile)); !os.IsNotExist(err) {
		t.Error("cmd.txt should not be written when the websocket is up")
	}
}

func TestPressFallsBackToFile(t *testing.T) {
	deps, _ := testDeps(t)
	// Nothing listens here.
	deps.Config.StatusAddr = "127.0.0.1:1"
	testutil.AssertNoError(t, execute(t, deps, "press"), "press")

	got, err := ipc.ReadCommand(deps.Config.CacheDir)
	testutil.AssertNoError(t, err, "read command")
	testutil.AssertEqual(t, ipc.CmdPrimary, got, "command")
}

func TestSendRejectsArgs(t *testing.T) {
	deps, _ := testDeps(t)
	if err := execute(t, deps, "press", "extra"); err == nil {
		t.Error("expected an error for extra arguments")
	}
}

func TestStatusNoDaemon(t *testing.T) {
	deps, out := testDeps(t)
	testutil.AssertNoError(t, execute(t, deps, "status"), "status")
	if !strings.Contains(out.String(), "no status file") {
		t.Errorf("output = %q", out.String())
	}
}

func TestStatusRendersSnapshot(t *testing.T) {
	deps, out := testDeps(t)
	snap := &ipc.StatusSnapshot{
		State:             statemachine.StateRecorded,
		Handle:            media.KindNone,
		RecordingPath:     "/tmp/rec.wav",
		RecordingExists:   true,
		ResetEnabled:      true,
		LastAction:        "primary",
		Backend:           "exec",
		PermissionGranted: true,
		PID:               4242,
		Timestamp:         time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
	}
	testutil.AssertNoError(t, ipc.WriteStatus(deps.Config.CacheDir, snap), "write status")

	testutil.AssertNoError(t, execute(t, deps, "status"), "status")
	for _, want := range []string{"Recorded", "/tmp/rec.wav", "granted", "PID 4242", "stale"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestStatusJSON(t *testing.T) {
	deps, out := testDeps(t)
	snap := &ipc.StatusSnapshot{State: statemachine.StatePlaying, Handle: media.KindPlayer}
	testutil.AssertNoError(t, ipc.WriteStatus(deps.Config.CacheDir, snap), "write status")

	testutil.AssertNoError(t, execute(t, deps, "status", "--json"), "status --json")

	var got ipc.StatusSnapshot
	testutil.AssertNoError(t, json.Unmarshal(out.Bytes(), &got), "decode output")
	testutil.AssertEqual(t, statemachine.StatePlaying, got.State, "state")
	testutil.AssertEqual(t, media.KindPlayer, got.Handle, "handle")
}

func TestDoctor(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	deps, out := testDeps(t)
	deps.Config.Capture.Command = []string{"sh", "-c", "true"}
	deps.Config.Playback.Command = []string{"voxbox-no-such-player", config.PathPlaceholder}

	testutil.AssertNoError(t, execute(t, deps, "doctor"), "doctor")
	s := out.String()
	for _, want := range []string{"Capture command", "voxbox-no-such-player not found", "Some prerequisites are missing", "voxbox-core"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
	if _, err := os.Stat(filepath.Join(deps.Config.CacheDir, ".voxbox-doctor")); !os.IsNotExist(err) {
		t.Error("doctor left its probe file behind")
	}
}

func TestDoctorAllGood(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	deps, out := testDeps(t)
	deps.Config.Capture.Command = []string{"sh"}
	deps.Config.Playback.Command = []string{"sh"}

	testutil.AssertNoError(t, execute(t, deps, "doctor"), "doctor")
	if !strings.Contains(out.String(), "All prerequisites met") {
		t.Errorf("output = %q", out.String())
	}
}

func TestExportDiag(t *testing.T) {
	deps, out := testDeps(t)
	logPath := filepath.Join(t.TempDir(), "debug.log")
	line := `{"ts":"2026-01-02T10:00:00Z","component":"controller","event":"transition"}` + "\n"
	testutil.AssertNoError(t, os.WriteFile(logPath, []byte(line+line), 0644), "write log")
	dest := t.TempDir()

	testutil.AssertNoError(t, execute(t, deps, "export-diag", "--log", logPath, "--dest", dest), "export-diag")

	matches, _ := filepath.Glob(filepath.Join(dest, "voxbox-diag-*.ndjson"))
	testutil.AssertEqual(t, 1, len(matches), "bundle count")
	if !strings.Contains(out.String(), "(2 lines)") {
		t.Errorf("output = %q", out.String())
	}
}

func TestExportDiagMissingLog(t *testing.T) {
	deps, _ := testDeps(t)
	err := execute(t, deps, "export-diag", "--log", filepath.Join(t.TempDir(), "absent.log"))
	testutil.AssertErrorContains(t, err, "VOXBOX_DEBUG", "missing log")
}

func TestWatchDisabled(t *testing.T) {
	deps, _ := testDeps(t)
	deps.Config.StatusAddr = ""
	testutil.AssertErrorContains(t, execute(t, deps, "watch"), "disabled", "watch")
}

func TestWatchStreamsEvents(t *testing.T) {
	s := statusws.New("127.0.0.1:0")
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		_ = s.Close()
		ts.Close()
	})
	s.Publish(statusws.StateEvent{State: statemachine.StateRecording, Handle: media.KindRecorder, Timestamp: time.Now()})

	deps, _ := testDeps(t)
	capture := testutil.NewLogCapture()
	deps.Out = capture

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, deps, "ws"+strings.TrimPrefix(ts.URL, "http")+statusws.Path)
	}()

	testutil.WaitForCondition(t, func() bool { return capture.Contains("Recording") }, 2*time.Second, "snapshot line")
	s.Publish(statusws.StateEvent{State: statemachine.StateRecorded, Error: "boom", Timestamp: time.Now()})
	testutil.WaitForCondition(t, func() bool { return capture.Contains("Recorded (boom)") }, 2*time.Second, "error line")

	cancel()
	select {
	case err := <-done:
		testutil.AssertNoError(t, err, "watch")
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}

func TestVersion(t *testing.T) {
	deps, out := testDeps(t)
	testutil.AssertNoError(t, execute(t, deps, "version"), "version")
	if !strings.HasPrefix(out.String(), "voxbox-ctl") {
		t.Errorf("output = %q", out.String())
	}
}

func TestLoadsConfigFlag(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "cache")
	path := filepath.Join(dir, "voxbox.toml")
	body := "cache_dir = " + `"` + filepath.ToSlash(cache) + `"` + "\n"
	testutil.AssertNoError(t, os.WriteFile(path, []byte(body), 0644), "write config")
	t.Setenv("VOXBOX_CACHE_DIR", "")
	t.Setenv("VOXBOX_STATUS_ADDR", "")

	out := &bytes.Buffer{}
	deps := &Dependencies{Out: out}
	testutil.AssertNoError(t, execute(t, deps, "--config", path, "press"), "press")
	testutil.AssertEqual(t, cache, deps.Config.CacheDir, "cache dir")

	got, err := ipc.ReadCommand(cache)
	testutil.AssertNoError(t, err, "read command")
	testutil.AssertEqual(t, ipc.CmdPrimary, got, "command")
}
