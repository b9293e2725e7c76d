package statemachine

import "github.com/tiroq/voxbox/internal/media"

// activeHandle is the single resource slot owned by the controller. Exactly
// one variant is held at a time, so a recorder and a player can never coexist.
type activeHandle interface {
	kind() media.Kind
}

type noHandle struct{}

type recorderHandle struct {
	h media.Handle
}

type playerHandle struct {
	h media.Handle
}

func (noHandle) kind() media.Kind       { return media.KindNone }
func (recorderHandle) kind() media.Kind { return media.KindRecorder }
func (playerHandle) kind() media.Kind   { return media.KindPlayer }
