//go:build darwin

package nsgw

import (
	"fmt"
	"time"

	"github.com/progrium/darwinkit/macos/appkit"

	"github.com/tiroq/voxbox/internal/fileutil"
	"github.com/tiroq/voxbox/internal/media"
)

// Player plays files with NSSound.
type Player struct {
	open func(path string) (player, bool)
}

// New returns an NSSound-backed player.
func New() (*Player, error) {
	return &Player{open: openSound}, nil
}

func openSound(path string) (player, bool) {
	s := appkit.SoundClass.Alloc().InitWithContentsOfFileByReference(path, true)
	if s.Ptr() == nil {
		return nil, false
	}
	return s, true
}

// BeginPlayback loads path into an NSSound and starts it.
func (p *Player) BeginPlayback(path string) (media.Handle, error) {
	if !fileutil.RecordingExists(path) {
		return nil, fmt.Errorf("%w: %s", media.ErrFileMissingOrCorrupt, path)
	}
	s, ok := p.open(path)
	if !ok {
		return nil, fmt.Errorf("%w: NSSound cannot decode %s", media.ErrFileMissingOrCorrupt, path)
	}
	if !s.Play() {
		return nil, fmt.Errorf("%w: NSSound refused to play", media.ErrPlaybackStartFailed)
	}
	return &soundHandle{path: path, started: time.Now(), sound: s}, nil
}

// EndPlayback stops the sound if it is still playing.
func (p *Player) EndPlayback(mh media.Handle) error {
	h, ok := mh.(*soundHandle)
	if !ok {
		return media.ErrWrongHandle
	}
	if !h.sound.IsPlaying() {
		return nil
	}
	if !h.sound.Stop() {
		return fmt.Errorf("%w: NSSound stop returned false", media.ErrPlaybackStopFailed)
	}
	return nil
}
