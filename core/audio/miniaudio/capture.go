package miniaudio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/atempo-ai/atempo-core/core/audio"
)

// captureChannelDepth bounds how many device callbacks can be pending before
// samples are dropped. Dropped callbacks surface as [audio.ErrOverflow] on the
// next read so the caller can observe and retry.
const captureChannelDepth = 8

type CaptureDevice struct {
	device *malgo.Device
	config malgo.DeviceConfig

	encoding audio.EncodingInfo

	frames    chan []byte
	overflows atomic.Int64

	mu     sync.Mutex
	closed chan struct{}
}

func newCaptureDevice(audioContext *malgo.AllocatedContext, frameSamples int) (*CaptureDevice, error) {
	encoding := audio.CaptureEncodingInfo()
	channels := 1
	format := malgo.FormatS16

	d := CaptureDevice{
		encoding: encoding,
		frames:   make(chan []byte, captureChannelDepth),
		closed:   make(chan struct{}),
	}

	d.config = malgo.DefaultDeviceConfig(malgo.Capture)
	d.config.SampleRate = uint32(encoding.SampleRate)
	d.config.Capture.Format = format
	d.config.Capture.Channels = uint32(channels)
	d.config.Alsa.NoMMap = 1
	d.config.PerformanceProfile = malgo.LowLatency
	d.config.PeriodSizeInFrames = uint32(frameSamples)
	d.config.Periods = 3

	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	var err error
	d.device, err = malgo.InitDevice(audioContext.Context, d.config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			chunk := make([]byte, n)
			copy(chunk, pInput[:n])
			select {
			case d.frames <- chunk:
			default:
				d.overflows.Add(1)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize capture device: %v", audio.ErrDeviceUnavailable, err)
	}

	if err := d.device.Start(); err != nil {
		d.device.Uninit()
		return nil, fmt.Errorf("%w: failed to start capture device: %v", audio.ErrDeviceUnavailable, err)
	}

	return &d, nil
}

// ReadFrame blocks until the device produced one frame. Dropped device
// callbacks are reported as [audio.ErrOverflow] exactly once per drop window;
// the caller retries. After Close it returns [audio.ErrDeviceClosed].
func (d *CaptureDevice) ReadFrame(ctx context.Context) (audio.Frame, error) {
	if n := d.overflows.Swap(0); n > 0 {
		return audio.Frame{}, fmt.Errorf("%w: %d frames dropped", audio.ErrOverflow, n)
	}

	select {
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	case <-d.closed:
		return audio.Frame{}, audio.ErrDeviceClosed
	case chunk := <-d.frames:
		return audio.NewFrame(chunk, d.encoding), nil
	}
}

func (d *CaptureDevice) EncodingInfo() audio.EncodingInfo { return d.encoding }

// Close is idempotent and may be called from a different goroutine than the
// reader; a blocked ReadFrame observes the close and returns.
func (d *CaptureDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	select {
	case <-d.closed:
		return nil
	default:
	}
	close(d.closed)

	if d.device != nil {
		if d.device.IsStarted() {
			_ = d.device.Stop()
		}
		d.device.Uninit()
		d.device = nil
	}
	return nil
}
