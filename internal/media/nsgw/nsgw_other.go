//go:build !darwin

package nsgw

import "github.com/tiroq/voxbox/internal/media"

// Player is unavailable off macOS; New always fails.
type Player struct{}

// New returns ErrUnsupported.
func New() (*Player, error) {
	return nil, ErrUnsupported
}

func (p *Player) BeginPlayback(path string) (media.Handle, error) {
	return nil, ErrUnsupported
}

func (p *Player) EndPlayback(h media.Handle) error {
	return ErrUnsupported
}
