// Package statemachine drives the record/playback cycle. The Controller owns
// the current State and the single active media handle, and moves between
// states only after the underlying gateway call has succeeded.
package statemachine

import (
	"fmt"
	"time"

	"github.com/tiroq/voxbox/internal/diaglog"
	"github.com/tiroq/voxbox/internal/fileutil"
	"github.com/tiroq/voxbox/internal/media"
)

// State is the user-visible position in the record/playback cycle.
type State string

const (
	StateBeforeRecording State = "before_recording" // Nothing recorded yet (or discarded)
	StateRecording       State = "recording"        // Microphone capture in progress
	StateRecorded        State = "recorded"         // A recording exists and is idle
	StatePlaying         State = "playing"          // The recording is being played back
)

// Valid reports whether s is one of the four known states.
func (s State) Valid() bool {
	switch s {
	case StateBeforeRecording, StateRecording, StateRecorded, StatePlaying:
		return true
	}
	return false
}

// ResetEnabled reports whether a reset would do anything in s. UIs use it to
// enable or disable their reset control.
func (s State) ResetEnabled() bool {
	return s == StateRecorded || s == StatePlaying
}

// Intent is a user or platform event delivered to the controller.
type Intent string

const (
	IntentPrimary          Intent = "primary"           // Main record/stop/play button
	IntentReset            Intent = "reset"             // Discard the recording
	IntentPermissionDenied Intent = "permission_denied" // Capture permission refused at startup
)

// Transition records one attempt to change state. Err is nil for successful
// transitions; for failed ones To equals the state the controller fell back to.
type Transition struct {
	From      State
	To        State
	Intent    Intent
	At        time.Time
	SessionID string
	Handle    media.Handle // handle opened or released by this transition, if any
	Err       error
}

// Controller is the recording state machine. It is not safe for concurrent
// use; all intents must be delivered from one goroutine.
type Controller struct {
	gateway   media.Gateway
	path      string
	state     State
	handle    activeHandle
	sessionID string

	permissionKnown bool
	terminated      bool
	done            chan struct{}
	inTransition    bool

	stateObservers      []func(State)
	transitionObservers []func(Transition)

	logger  *diaglog.Logger
	discard func(path string) error
	now     func() time.Time
}

// NewController creates a controller in StateBeforeRecording that records to
// and plays from path.
func NewController(gw media.Gateway, path string) *Controller {
	return &Controller{
		gateway: gw,
		path:    path,
		state:   StateBeforeRecording,
		handle:  noHandle{},
		done:    make(chan struct{}),
		logger:  diaglog.NewNoOp(),
		discard: fileutil.DiscardRecording,
		now:     time.Now,
	}
}

// SetLogger injects the diagnostic logger.
func (c *Controller) SetLogger(l *diaglog.Logger) {
	if l == nil {
		l = diaglog.NewNoOp()
	}
	c.logger = l
}

// SetSessionID tags every transition with id.
func (c *Controller) SetSessionID(id string) {
	c.sessionID = id
}

// SessionID returns the session identifier set with SetSessionID.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// OnStateChanged registers fn to be called whenever the state changes: after
// every successful transition, and after a failed stop that fell back to an
// earlier state.
func (c *Controller) OnStateChanged(fn func(State)) {
	c.stateObservers = append(c.stateObservers, fn)
}

// OnTransition registers fn to be called after every transition attempt,
// successful or not.
func (c *Controller) OnTransition(fn func(Transition)) {
	c.transitionObservers = append(c.transitionObservers, fn)
}

// CurrentState returns the current state.
func (c *Controller) CurrentState() State {
	return c.state
}

// HandleKind returns the kind of the active handle.
func (c *Controller) HandleKind() media.Kind {
	return c.handle.kind()
}

// RecordingPath returns the fixed recording file path.
func (c *Controller) RecordingPath() string {
	return c.path
}

// Backend returns the gateway name.
func (c *Controller) Backend() string {
	return c.gateway.Name()
}

// Terminated reports whether the session has ended.
func (c *Controller) Terminated() bool {
	return c.terminated
}

// PermissionGranted reports whether a positive permission result was
// delivered.
func (c *Controller) PermissionGranted() bool {
	return c.permissionKnown && !c.terminated
}

// Done is closed when the session terminates.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// OnPermissionResult delivers the outcome of the startup permission request.
// A denial terminates the session and returns media.ErrPermissionDenied.
func (c *Controller) OnPermissionResult(granted bool) error {
	if c.terminated {
		return ErrSessionTerminated
	}
	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentController,
		Event:     diaglog.EventPermissionResult,
		SessionID: c.sessionID,
		Payload:   map[string]interface{}{"granted": granted},
	})
	if !granted {
		return c.HandleAction(IntentPermissionDenied)
	}
	c.permissionKnown = true
	return nil
}

// HandleAction applies intent to the state machine.
func (c *Controller) HandleAction(intent Intent) error {
	if c.terminated {
		return ErrSessionTerminated
	}
	if c.inTransition {
		return ErrTransitionInProgress
	}
	c.inTransition = true
	defer func() { c.inTransition = false }()

	switch intent {
	case IntentPrimary:
		return c.primary()
	case IntentReset:
		return c.reset()
	case IntentPermissionDenied:
		return c.terminate()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownIntent, intent)
	}
}

// Shutdown releases any active handle before the process exits. An active
// capture is finalized into StateRecorded; active playback is stopped.
func (c *Controller) Shutdown() error {
	if c.terminated {
		return nil
	}
	switch c.state {
	case StateRecording, StatePlaying:
		return c.HandleAction(IntentPrimary)
	}
	return nil
}

func (c *Controller) primary() error {
	switch c.state {
	case StateBeforeRecording:
		return c.startRecording()
	case StateRecording:
		return c.stopRecording()
	case StateRecorded:
		return c.startPlaying()
	case StatePlaying:
		return c.stopPlaying(IntentPrimary, StateRecorded)
	}
	return fmt.Errorf("invalid state %q", c.state)
}

func (c *Controller) reset() error {
	switch c.state {
	case StateRecorded:
		c.discardRecording()
		c.commit(IntentReset, StateBeforeRecording, noHandle{}, nil)
		return nil
	case StatePlaying:
		return c.stopPlaying(IntentReset, StateBeforeRecording)
	default:
		// Nothing to discard yet.
		return nil
	}
}

func (c *Controller) terminate() error {
	from := c.state
	switch h := c.handle.(type) {
	case recorderHandle:
		c.logStopError("end_capture", c.gateway.EndCapture(h.h))
		c.discardRecording()
		c.state = StateBeforeRecording
	case playerHandle:
		c.logStopError("end_playback", c.gateway.EndPlayback(h.h))
		c.state = StateRecorded
	}
	c.handle = noHandle{}
	c.terminated = true
	close(c.done)
	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentController,
		Event:     diaglog.EventSessionTerminated,
		SessionID: c.sessionID,
		Reason:    "permission_denied",
	})
	c.notifyTransition(Transition{
		From: from, To: c.state, Intent: IntentPermissionDenied,
		At: c.now(), SessionID: c.sessionID, Err: media.ErrPermissionDenied,
	})
	return media.ErrPermissionDenied
}

func (c *Controller) startRecording() error {
	if !c.permissionKnown {
		return c.fail(IntentPrimary, StateBeforeRecording, nil, ErrPermissionPending)
	}
	h, err := c.gateway.BeginCapture(c.path)
	if err != nil {
		// A capture that died during startup may have left a partial file.
		c.discardRecording()
		return c.fail(IntentPrimary, StateBeforeRecording, nil, err)
	}
	c.commit(IntentPrimary, StateRecording, recorderHandle{h: h}, h)
	return nil
}

func (c *Controller) stopRecording() error {
	rh, ok := c.handle.(recorderHandle)
	if !ok {
		return fmt.Errorf("recording without a recorder handle (have %s)", c.handle.kind())
	}
	c.handle = noHandle{}
	if err := c.gateway.EndCapture(rh.h); err != nil {
		// The file cannot be trusted; fall back to having no recording.
		c.discardRecording()
		return c.fail(IntentPrimary, StateBeforeRecording, rh.h, err)
	}
	c.commit(IntentPrimary, StateRecorded, noHandle{}, rh.h)
	return nil
}

func (c *Controller) startPlaying() error {
	h, err := c.gateway.BeginPlayback(c.path)
	if err != nil {
		return c.fail(IntentPrimary, StateRecorded, nil, err)
	}
	c.commit(IntentPrimary, StatePlaying, playerHandle{h: h}, h)
	return nil
}

func (c *Controller) stopPlaying(intent Intent, target State) error {
	ph, ok := c.handle.(playerHandle)
	if !ok {
		return fmt.Errorf("playing without a player handle (have %s)", c.handle.kind())
	}
	c.handle = noHandle{}
	if err := c.gateway.EndPlayback(ph.h); err != nil {
		// The player is gone either way and the recording is intact.
		return c.fail(intent, StateRecorded, ph.h, err)
	}
	if target == StateBeforeRecording {
		c.discardRecording()
	}
	c.commit(intent, target, noHandle{}, ph.h)
	return nil
}

// logStopError records a stop failure that cannot change the outcome, such
// as one during session termination.
func (c *Controller) logStopError(op string, err error) {
	if err == nil {
		return
	}
	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentController,
		Event:     diaglog.EventTransitionFailed,
		SessionID: c.sessionID,
		Reason:    string(IntentPermissionDenied),
		Payload:   map[string]interface{}{"op": op, "stop_error": err.Error()},
	})
}

func (c *Controller) discardRecording() {
	if err := c.discard(c.path); err != nil {
		c.logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentController,
			Event:     diaglog.EventDiscardFailed,
			SessionID: c.sessionID,
			Payload:   map[string]interface{}{"path": c.path, "error": err.Error()},
		})
	}
}

// commit moves to the target state with its handle and notifies observers.
func (c *Controller) commit(intent Intent, to State, h activeHandle, touched media.Handle) {
	from := c.state
	c.state = to
	c.handle = h
	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentController,
		Event:     diaglog.EventTransition,
		SessionID: c.sessionID,
		Reason:    string(intent),
		Payload: map[string]interface{}{
			"from":   string(from),
			"to":     string(to),
			"handle": string(h.kind()),
		},
	})
	c.notifyTransition(Transition{
		From: from, To: to, Intent: intent, At: c.now(),
		SessionID: c.sessionID, Handle: touched,
	})
	for _, fn := range c.stateObservers {
		fn(to)
	}
}

// fail settles on fallback with no handle and reports err.
func (c *Controller) fail(intent Intent, fallback State, touched media.Handle, err error) error {
	from := c.state
	c.state = fallback
	c.handle = noHandle{}
	terr := &TransitionError{From: from, Intent: intent, State: fallback, Err: err}
	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentController,
		Event:     diaglog.EventTransitionFailed,
		SessionID: c.sessionID,
		Reason:    string(intent),
		Payload: map[string]interface{}{
			"from":  string(from),
			"to":    string(fallback),
			"error": err.Error(),
		},
	})
	c.notifyTransition(Transition{
		From: from, To: fallback, Intent: intent, At: c.now(),
		SessionID: c.sessionID, Handle: touched, Err: terr,
	})
	if from != fallback {
		for _, fn := range c.stateObservers {
			fn(fallback)
		}
	}
	return terr
}

func (c *Controller) notifyTransition(t Transition) {
	for _, fn := range c.transitionObservers {
		fn(t)
	}
}
