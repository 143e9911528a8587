package orchestration

import (
	"context"
	"time"

	"github.com/atempo-ai/atempo-core/core/audio"
	"github.com/atempo-ai/atempo-core/core/events"
	"github.com/atempo-ai/atempo-core/core/session"
	"github.com/atempo-ai/atempo-core/core/tools"
)

// AudioSource reads fixed-size frames from a capture device. ReadFrame blocks
// until a frame is available; [audio.ErrOverflow] is retryable, anything else
// is fatal to the session. Close is idempotent and safe to call from another
// goroutine to force a blocked read to return.
type AudioSource interface {
	ReadFrame(ctx context.Context) (audio.Frame, error)
	Close() error
}

// AudioSink writes fixed-size frames to a playback device, blocking to pace
// playback. Close follows the same rules as AudioSource.
type AudioSink interface {
	WriteFrame(ctx context.Context, frame audio.Frame) error
	Close() error
}

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

type OrchestratorOption func(*Orchestrator)

// WithAudioSource sets the capture device for the session.
func WithAudioSource(source AudioSource) OrchestratorOption {
	return func(o *Orchestrator) { o.source = source }
}

// WithAudioSink sets the playback device for the session.
func WithAudioSink(sink AudioSink) OrchestratorOption {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithSessionDialer sets how the conversational engine session is
// established.
func WithSessionDialer(dialer session.Dialer) OrchestratorOption {
	return func(o *Orchestrator) { o.dialer = dialer }
}

// WithToolRegistry sets the tools the dispatcher may invoke.
func WithToolRegistry(registry *tools.Registry) OrchestratorOption {
	return func(o *Orchestrator) { o.registry = registry }
}

// WithToolTimeout bounds each handler invocation so a hung calendar call
// cannot stall the pipeline.
func WithToolTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.toolTimeout = timeout }
}

// WithCaptureQueueSize overrides the bounded capture queue depth.
func WithCaptureQueueSize(size int) OrchestratorOption {
	return func(o *Orchestrator) {
		if size > 0 {
			o.captureQueueSize = size
		}
	}
}

// WithStatusCallback subscribes the front end to status transitions.
func WithStatusCallback(onStatus func(Status)) OrchestratorOption {
	return func(o *Orchestrator) { o.onStatus = onStatus }
}

// WithEventCallback subscribes a listener to pipeline events (tool calls,
// interruptions, session lifecycle).
func WithEventCallback(onEvent func(events.Event)) OrchestratorOption {
	return func(o *Orchestrator) {
		if onEvent != nil {
			o.emit = onEvent
		}
	}
}
