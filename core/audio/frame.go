package audio

import "time"

// Frame is one fixed-size unit of raw audio samples plus its encoding tag.
// A frame is immutable once produced; ownership transfers to whichever queue
// currently holds it and the frame is discarded after it is played or sent.
type Frame struct {
	Data     []byte
	Encoding EncodingInfo
}

func NewFrame(data []byte, encoding EncodingInfo) Frame {
	return Frame{Data: data, Encoding: encoding}
}

func (f Frame) IsZero() bool {
	return len(f.Data) == 0
}

// Duration reports the playback time of the frame at its encoding.
func (f Frame) Duration() time.Duration {
	if f.Encoding.IsZero() {
		return 0
	}

	samples := len(f.Data) / f.Encoding.Format.ByteSize()
	return time.Duration(float64(samples) / float64(f.Encoding.SampleRate) * float64(time.Second))
}
