// Package portaudio is an alternative device backend built on PortAudio.
// It exposes the same pull-style frame contract as the miniaudio backend.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/atempo-ai/atempo-core/core/audio"
)

type Client struct {
	capture  *CaptureStream
	playback *PlaybackStream

	closeOnce sync.Once
}

func NewClient(frameSamples int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize PortAudio: %v", audio.ErrDeviceUnavailable, err)
	}

	capture, err := newCaptureStream(frameSamples)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	playback, err := newPlaybackStream(frameSamples)
	if err != nil {
		_ = capture.Close()
		portaudio.Terminate()
		return nil, err
	}

	return &Client{capture: capture, playback: playback}, nil
}

func (c *Client) Capture() *CaptureStream   { return c.capture }
func (c *Client) Playback() *PlaybackStream { return c.playback }

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		_ = c.capture.Close()
		_ = c.playback.Close()
		portaudio.Terminate()
	})
	return nil
}

type CaptureStream struct {
	stream   *portaudio.Stream
	in       []int16
	encoding audio.EncodingInfo

	mu     sync.Mutex
	closed bool
}

func newCaptureStream(frameSamples int) (*CaptureStream, error) {
	encoding := audio.CaptureEncodingInfo()
	in := make([]int16, frameSamples)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(encoding.SampleRate), frameSamples, in)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open capture stream: %v", audio.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: failed to start capture stream: %v", audio.ErrDeviceUnavailable, err)
	}

	return &CaptureStream{stream: stream, in: in, encoding: encoding}, nil
}

// ReadFrame blocks until one frame of samples is captured. Buffer overflows
// inside PortAudio surface as [audio.ErrOverflow] so the caller retries.
func (s *CaptureStream) ReadFrame(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return audio.Frame{}, audio.ErrDeviceClosed
	}
	stream := s.stream
	s.mu.Unlock()

	if err := stream.Read(); err != nil {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return audio.Frame{}, audio.ErrDeviceClosed
		}
		if err == portaudio.InputOverflowed {
			return audio.Frame{}, fmt.Errorf("%w: %v", audio.ErrOverflow, err)
		}
		return audio.Frame{}, fmt.Errorf("%w: %v", audio.ErrDeviceClosed, err)
	}

	buf := bytes.Buffer{}
	_ = binary.Write(&buf, binary.LittleEndian, s.in)
	return audio.NewFrame(buf.Bytes(), s.encoding), nil
}

func (s *CaptureStream) EncodingInfo() audio.EncodingInfo { return s.encoding }

func (s *CaptureStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stream.Abort()
	return s.stream.Close()
}

type PlaybackStream struct {
	stream   *portaudio.Stream
	out      []int16
	samples  int
	leftover []byte
	encoding audio.EncodingInfo

	mu     sync.Mutex
	closed bool
}

func newPlaybackStream(frameSamples int) (*PlaybackStream, error) {
	encoding := audio.PlaybackEncodingInfo()
	out := make([]int16, frameSamples)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(encoding.SampleRate), frameSamples, out)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open playback stream: %v", audio.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: failed to start playback stream: %v", audio.ErrDeviceUnavailable, err)
	}

	return &PlaybackStream{stream: stream, out: out, samples: frameSamples, encoding: encoding}, nil
}

// WriteFrame plays the frame, blocking until PortAudio consumed it. The
// blocking write is what paces the playback activity to real time.
func (s *PlaybackStream) WriteFrame(ctx context.Context, frame audio.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrDeviceClosed
	}

	chunkSize := s.samples * 2
	pending := append(s.leftover, frame.Data...)
	for len(pending) >= chunkSize {
		_ = binary.Read(bytes.NewReader(pending[:chunkSize]), binary.LittleEndian, s.out)
		pending = pending[chunkSize:]
		if err := s.stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
			return fmt.Errorf("failed to write to playback stream: %w", err)
		}
	}
	s.leftover = append(s.leftover[:0], pending...)
	return nil
}

func (s *PlaybackStream) EncodingInfo() audio.EncodingInfo { return s.encoding }

func (s *PlaybackStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.leftover = nil
	_ = s.stream.Abort()
	return s.stream.Close()
}
