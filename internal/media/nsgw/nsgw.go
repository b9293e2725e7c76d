// Package nsgw plays recordings through AppKit's NSSound. It only provides
// the playback half of a gateway; pair it with a capture backend using
// media.Combine.
package nsgw

import (
	"errors"
	"time"

	"github.com/tiroq/voxbox/internal/media"
)

// ErrUnsupported is returned by New on platforms without AppKit.
var ErrUnsupported = errors.New("nssound playback is only available on macOS")

// Name is the backend name used in configuration.
const Name = "nssound"

type soundHandle struct {
	path    string
	started time.Time
	sound   player
}

func (h *soundHandle) Kind() media.Kind     { return media.KindPlayer }
func (h *soundHandle) Path() string         { return h.path }
func (h *soundHandle) StartedAt() time.Time { return h.started }

// player is the subset of NSSound the gateway drives.
type player interface {
	Play() bool
	Stop() bool
	IsPlaying() bool
}

var _ media.Player = (*Player)(nil)
