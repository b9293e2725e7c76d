package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tiroq/voxbox/internal/media"
)

// FakeGateway is an in-memory media.Gateway. It writes a small stub file on
// EndCapture, tracks open handles and lets tests inject a failure into any
// of the four calls.
type FakeGateway struct {
	mu sync.Mutex

	// Injected failures, returned by the next matching call. Each is
	// consumed once unless Sticky is set.
	BeginCaptureErr  error
	EndCaptureErr    error
	BeginPlaybackErr error
	EndPlaybackErr   error
	Sticky           bool

	// PermissionErr is returned by CheckPermission.
	PermissionErr error

	// SkipWrite leaves the recording file untouched on EndCapture.
	SkipWrite bool

	// PartialWrite makes a failing BeginCapture leave a truncated file
	// behind, like a recorder that dies during startup.
	PartialWrite bool

	// OnCall, when set, runs at the start of every gateway call.
	OnCall func(op string)

	open  map[*fakeHandle]struct{}
	calls map[string]int
}

// NewFakeGateway creates a gateway with no injected failures.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		open:  make(map[*fakeHandle]struct{}),
		calls: make(map[string]int),
	}
}

type fakeHandle struct {
	kind    media.Kind
	path    string
	started time.Time
}

func (h *fakeHandle) Kind() media.Kind     { return h.kind }
func (h *fakeHandle) Path() string         { return h.path }
func (h *fakeHandle) StartedAt() time.Time { return h.started }

// Name implements media.Gateway.
func (g *FakeGateway) Name() string { return "fake" }

// CheckPermission implements media.PermissionChecker.
func (g *FakeGateway) CheckPermission() error {
	g.record("CheckPermission")
	return g.PermissionErr
}

func (g *FakeGateway) BeginCapture(path string) (media.Handle, error) {
	g.record("BeginCapture")
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.take(&g.BeginCaptureErr); err != nil {
		if g.PartialWrite {
			_ = os.MkdirAll(filepath.Dir(path), 0755)
			_ = os.WriteFile(path, []byte("RI"), 0644)
		}
		return nil, err
	}
	return g.openHandle(media.KindRecorder, path), nil
}

func (g *FakeGateway) EndCapture(mh media.Handle) error {
	g.record("EndCapture")
	g.mu.Lock()
	defer g.mu.Unlock()
	h, err := g.closeHandle(mh, media.KindRecorder)
	if err != nil {
		return err
	}
	if err := g.take(&g.EndCaptureErr); err != nil {
		return err
	}
	if g.SkipWrite {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0755); err != nil {
		return fmt.Errorf("%w: %v", media.ErrWriteFailed, err)
	}
	if err := os.WriteFile(h.path, []byte("RIFF"), 0644); err != nil {
		return fmt.Errorf("%w: %v", media.ErrWriteFailed, err)
	}
	return nil
}

func (g *FakeGateway) BeginPlayback(path string) (media.Handle, error) {
	g.record("BeginPlayback")
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.take(&g.BeginPlaybackErr); err != nil {
		return nil, err
	}
	return g.openHandle(media.KindPlayer, path), nil
}

func (g *FakeGateway) EndPlayback(mh media.Handle) error {
	g.record("EndPlayback")
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.closeHandle(mh, media.KindPlayer); err != nil {
		return err
	}
	return g.take(&g.EndPlaybackErr)
}

// OpenHandles returns the number of handles begun but not yet ended.
func (g *FakeGateway) OpenHandles() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.open)
}

// Calls returns how many times op (e.g. "BeginCapture") was invoked.
func (g *FakeGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// Fail sets the injected error for op. It is safe to call while the
// gateway is in use from another goroutine.
func (g *FakeGateway) Fail(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch op {
	case "BeginCapture":
		g.BeginCaptureErr = err
	case "EndCapture":
		g.EndCaptureErr = err
	case "BeginPlayback":
		g.BeginPlaybackErr = err
	case "EndPlayback":
		g.EndPlaybackErr = err
	default:
		panic("testutil: unknown gateway op " + op)
	}
}

func (g *FakeGateway) record(op string) {
	g.mu.Lock()
	g.calls[op]++
	hook := g.OnCall
	g.mu.Unlock()
	if hook != nil {
		hook(op)
	}
}

func (g *FakeGateway) take(slot *error) error {
	err := *slot
	if err != nil && !g.Sticky {
		*slot = nil
	}
	return err
}

func (g *FakeGateway) openHandle(kind media.Kind, path string) *fakeHandle {
	h := &fakeHandle{kind: kind, path: path, started: time.Now()}
	g.open[h] = struct{}{}
	return h
}

// closeHandle releases h; resources are released even if the call then fails.
func (g *FakeGateway) closeHandle(mh media.Handle, kind media.Kind) (*fakeHandle, error) {
	h, ok := mh.(*fakeHandle)
	if !ok || h.kind != kind {
		return nil, media.ErrWrongHandle
	}
	if _, open := g.open[h]; !open {
		return nil, fmt.Errorf("handle for %s already released", h.path)
	}
	delete(g.open, h)
	return h, nil
}
