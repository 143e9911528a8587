package audio

import "errors"

var (
	// ErrDeviceUnavailable is returned when a capture or playback device
	// cannot be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrDeviceClosed is returned from reads and writes after the device
	// handle was closed. It is fatal to the session.
	ErrDeviceClosed = errors.New("audio device closed")

	// ErrOverflow is returned when the capture device dropped samples because
	// the reader fell behind. Callers should retry the read.
	ErrOverflow = errors.New("audio capture overflow")
)
