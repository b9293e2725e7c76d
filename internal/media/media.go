// Package media abstracts the platform's capture and playback primitives
// behind a small gateway interface. Implementations own the codec and
// container; callers only pass a file path and get an opaque handle back.
package media

import (
	"time"
)

// Kind identifies what an active handle controls.
type Kind string

const (
	KindNone     Kind = "none"
	KindRecorder Kind = "recorder"
	KindPlayer   Kind = "player"
)

// Handle is an open capture or playback session returned by a gateway.
type Handle interface {
	Kind() Kind
	Path() string
	StartedAt() time.Time
}

// Capturer records audio into a file.
type Capturer interface {
	// BeginCapture opens a recorder on path and starts capturing. The file
	// is overwritten if it exists.
	BeginCapture(path string) (Handle, error)
	// EndCapture stops capturing and releases the recorder. Resources are
	// released even when an error is returned.
	EndCapture(h Handle) error
}

// Player plays an audio file back.
type Player interface {
	// BeginPlayback opens a player on path and starts playback.
	BeginPlayback(path string) (Handle, error)
	// EndPlayback stops playback and releases the player. Resources are
	// released even when an error is returned.
	EndPlayback(h Handle) error
}

// Gateway is the full set of primitives the recording controller drives.
type Gateway interface {
	Capturer
	Player
	Name() string
}

// PermissionChecker is implemented by capture backends that can tell
// whether the process is allowed to use the microphone.
type PermissionChecker interface {
	CheckPermission() error
}

type combined struct {
	Capturer
	Player
	name string
}

func (c combined) Name() string { return c.name }

// CheckPermission delegates to the capture side when it supports it.
func (c combined) CheckPermission() error {
	if pc, ok := c.Capturer.(PermissionChecker); ok {
		return pc.CheckPermission()
	}
	return nil
}

// Combine builds a Gateway from independently chosen capture and playback
// backends.
func Combine(name string, c Capturer, p Player) Gateway {
	return combined{Capturer: c, Player: p, name: name}
}

// CheckPermission reports whether gw may capture audio. Gateways that do not
// implement PermissionChecker are assumed to be allowed.
func CheckPermission(gw Gateway) error {
	if pc, ok := gw.(PermissionChecker); ok {
		return pc.CheckPermission()
	}
	return nil
}
