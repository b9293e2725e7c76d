package media

import "errors"

// Failure classes reported by gateways. Backends wrap one of these so callers
// can classify a failure with errors.Is.
var (
	// ErrPermissionDenied means the process may not use the microphone.
	// It is fatal for the session.
	ErrPermissionDenied = errors.New("capture permission denied")

	ErrDeviceUnavailable    = errors.New("capture device unavailable")
	ErrCaptureStartFailed   = errors.New("capture start failed")
	ErrWriteFailed          = errors.New("recording write failed")
	ErrFileMissingOrCorrupt = errors.New("recording file missing or corrupt")
	ErrPlaybackStartFailed  = errors.New("playback start failed")
	ErrPlaybackStopFailed   = errors.New("playback stop failed")

	// ErrWrongHandle is returned when a handle of the other kind, or one from
	// a different backend, is passed to an End call.
	ErrWrongHandle = errors.New("handle does not belong to this backend")
)
