// Package miniaudio provides malgo-backed capture and playback devices for
// the streaming pipeline. Capture produces fixed-size linear16 frames at the
// engine uplink rate, playback consumes frames at the engine downlink rate.
package miniaudio

import (
	"fmt"

	"github.com/gen2brain/malgo"

	"github.com/atempo-ai/atempo-core/core/audio"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	capture  *CaptureDevice
	playback *PlaybackDevice
}

// NewClient initializes the shared malgo context and opens both devices.
// Failure to open either device is reported as [audio.ErrDeviceUnavailable].
func NewClient(frameSamples int) (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: malgo context init failed: %v", audio.ErrDeviceUnavailable, err)
	}

	client := Client{audioContext: audioCtx}

	if client.capture, err = newCaptureDevice(audioCtx, frameSamples); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to open capture device: %w", err)
	}

	if client.playback, err = newPlaybackDevice(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to open playback device: %w", err)
	}

	return &client, nil
}

func (c *Client) Capture() *CaptureDevice   { return c.capture }
func (c *Client) Playback() *PlaybackDevice { return c.playback }

// Close tears down both devices and the context. Safe to call more than once
// and from a different goroutine than the one reading or writing frames.
func (c *Client) Close() error {
	if c.capture != nil {
		_ = c.capture.Close()
	}
	if c.playback != nil {
		_ = c.playback.Close()
	}
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
	return nil
}
