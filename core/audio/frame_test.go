package audio

import (
	"testing"
	"time"
)

func TestFrameDuration(t *testing.T) {
	// 1024 16-bit samples at 16 kHz is 64 ms.
	frame := NewFrame(make([]byte, 2048), CaptureEncodingInfo())
	if got := frame.Duration(); got != 64*time.Millisecond {
		t.Errorf("expected 64ms, got %v", got)
	}

	if got := (Frame{}).Duration(); got != 0 {
		t.Errorf("expected zero duration for a zero frame, got %v", got)
	}
}

func TestEncodingRates(t *testing.T) {
	if rate := CaptureEncodingInfo().SampleRate; rate != 16000 {
		t.Errorf("unexpected capture rate %d", rate)
	}
	if rate := PlaybackEncodingInfo().SampleRate; rate != 24000 {
		t.Errorf("unexpected playback rate %d", rate)
	}
}

func TestSilenceValuePerFormat(t *testing.T) {
	cases := []struct {
		format encodingFormat
		want   byte
	}{
		{EncodingLinear16, 0x00},
		{EncodingMulaw, 0xFF},
		{EncodingALaw, 0x55},
	}
	for _, c := range cases {
		info := EncodingInfo{SampleRate: 8000, Format: c.format}
		if got := info.SilenceValue(); got != c.want {
			t.Errorf("%s: expected silence byte %#x, got %#x", c.format.Name(), c.want, got)
		}
	}
}
