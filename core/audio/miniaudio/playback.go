package miniaudio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/atempo-ai/atempo-core/core/audio"
)

// maxBufferedPlayback caps how much audio sits between WriteFrame and the
// device callback. Keeping this small keeps interruptions tight: frames past
// this point cannot be unplayed, everything before it stays in the playback
// queue where a drain can discard it.
const maxBufferedPlayback = 200 * time.Millisecond

type PlaybackDevice struct {
	device *malgo.Device
	config malgo.DeviceConfig

	encoding  audio.EncodingInfo
	maxBuffer int

	mu            sync.Mutex
	leftoverAudio []byte
	closed        bool

	updateSignal chan struct{}
}

func newPlaybackDevice(audioContext *malgo.AllocatedContext) (*PlaybackDevice, error) {
	encoding := audio.PlaybackEncodingInfo()
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	d := PlaybackDevice{
		encoding:     encoding,
		maxBuffer:    audioBytes(maxBufferedPlayback, encoding),
		updateSignal: make(chan struct{}, 1),
	}

	d.config = malgo.DefaultDeviceConfig(malgo.Playback)
	d.config.SampleRate = uint32(encoding.SampleRate)
	d.config.Playback.Format = format
	d.config.Playback.Channels = uint32(channels)
	d.config.Alsa.NoMMap = 1
	d.config.PeriodSizeInFrames = uint32(encoding.SampleRate / 20) // ~50ms of audio
	d.config.Periods = 4

	var err error
	if d.device, err = malgo.InitDevice(
		audioContext.Context,
		d.config,
		malgo.DeviceCallbacks{Data: d.processAudio(bytesPerFrame)},
	); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize playback device: %v", audio.ErrDeviceUnavailable, err)
	}

	if err := d.device.Start(); err != nil {
		d.device.Uninit()
		return nil, fmt.Errorf("%w: failed to start playback device: %v", audio.ErrDeviceUnavailable, err)
	}

	return &d, nil
}

// WriteFrame appends the frame to the device buffer. It blocks while the
// buffer already holds more than maxBufferedPlayback worth of audio, pacing
// the playback activity to real time. After Close it returns
// [audio.ErrDeviceClosed].
func (d *PlaybackDevice) WriteFrame(ctx context.Context, frame audio.Frame) error {
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return audio.ErrDeviceClosed
		}
		if len(d.leftoverAudio) <= d.maxBuffer {
			d.leftoverAudio = append(d.leftoverAudio, frame.Data...)
			d.mu.Unlock()
			return nil
		}
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.updateSignal:
		}
	}
}

func (d *PlaybackDevice) EncodingInfo() audio.EncodingInfo { return d.encoding }

// Close is idempotent and unblocks a writer waiting for buffer space.
func (d *PlaybackDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.leftoverAudio = nil
	device := d.device
	d.device = nil
	d.mu.Unlock()
	d.signalUpdate()

	if device != nil {
		if device.IsStarted() {
			_ = device.Stop()
		}
		device.Uninit()
	}
	return nil
}

func (d *PlaybackDevice) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		d.mu.Lock()
		written := copy(pOutput[:need], d.leftoverAudio)
		if written == len(d.leftoverAudio) {
			d.leftoverAudio = nil
		} else {
			d.leftoverAudio = d.leftoverAudio[written:]
		}
		d.mu.Unlock()

		// Underruns get format-correct silence for the rest of the period.
		silence := d.encoding.SilenceValue()
		for i := written; i < need; i++ {
			pOutput[i] = silence
		}

		if written > 0 {
			d.signalUpdate()
		}
	}
}

func (d *PlaybackDevice) signalUpdate() {
	select {
	case d.updateSignal <- struct{}{}:
	default:
	}
}

func audioBytes(duration time.Duration, encoding audio.EncodingInfo) int {
	return int(float64(duration) / float64(time.Second) * float64(encoding.SampleRate) * float64(encoding.Format.ByteSize()))
}
