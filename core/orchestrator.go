// Package orchestration coordinates one live voice conversation: microphone
// capture, the bidirectional engine session, buffered playback and tool-call
// dispatch run as four concurrent activities owned by a single Orchestrator.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/atempo-ai/atempo-core/core/audio"
	"github.com/atempo-ai/atempo-core/core/events"
	"github.com/atempo-ai/atempo-core/core/session"
	"github.com/atempo-ai/atempo-core/core/tools"
)

// State is the orchestrator lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateActive       State = "active"
	StateInterrupting State = "interrupting"
	StateStopping     State = "stopping"
	StateStopped      State = "stopped"
)

// defaultCaptureQueueSize paces capture to the network send rate; with ~64ms
// frames, five queued frames keep roughly a third of a second of slack.
const defaultCaptureQueueSize = 5

type Orchestrator struct {
	source           AudioSource
	sink             AudioSink
	dialer           session.Dialer
	registry         *tools.Registry
	toolTimeout      time.Duration
	captureQueueSize int
	onStatus         func(Status)
	emit             eventEmitter

	status *statusSignal

	mu            sync.Mutex
	state         State
	channel       session.Channel
	captureQueue  *frameQueue
	playbackQueue *frameQueue
	dispatcher    *toolDispatcher
	cancel        context.CancelFunc

	stopping atomic.Bool
	stopOnce sync.Once
	doneOnce sync.Once
	done     chan struct{}

	errMu sync.Mutex
	err   error
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		state:            StateIdle,
		captureQueueSize: defaultCaptureQueueSize,
		emit:             noopEventEmitter,
		done:             make(chan struct{}),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.status = newStatusSignal(o.onStatus)
	return o
}

// Start establishes the engine session and launches the pipeline activities.
// It returns once the session is live or with the connect failure. A Stop
// issued while the dial is in flight wins: the session is discarded and the
// orchestrator settles stopped without ever going active. Contract:
// call Start at most once per orchestrator instance; a stopped orchestrator
// is not restarted, a new conversation gets a new instance with fresh queues.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "start session")
	defer span.End()

	o.mu.Lock()
	if o.state != StateIdle {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started (state %s)", state)
	}
	o.state = StateConnecting
	o.mu.Unlock()

	if o.dialer == nil || o.source == nil || o.sink == nil {
		o.failStart(fmt.Errorf("orchestrator misconfigured: dialer, audio source and audio sink are required"))
		return o.Err()
	}

	channel, err := o.dialer.Dial(ctx)
	if err != nil {
		err = fmt.Errorf("failed to establish session: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.failStart(err)
		return err
	}

	o.mu.Lock()
	// A Stop issued while the dial was in flight already consumed the
	// teardown path with nothing to tear down. Honor it here: discard the
	// fresh session instead of going active with no way left to stop.
	if o.stopping.Load() {
		o.state = StateStopped
		o.mu.Unlock()
		_ = channel.Close()
		span.AddEvent("stopped while connecting")
		o.status.set(StatusIdle)
		o.emit(events.NewSessionEnded(""))
		logger.InfoContext(ctx, "session discarded, stop requested while connecting")
		o.doneOnce.Do(func() { close(o.done) })
		return nil
	}
	pipelineCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.channel = channel
	o.captureQueue = newFrameQueue(o.captureQueueSize)
	o.playbackQueue = newFrameQueue(0)
	o.dispatcher = newToolDispatcher(o.registry, o.toolTimeout, o.emit)
	o.cancel = cancel
	o.state = StateActive
	o.mu.Unlock()

	o.status.set(StatusListening)
	o.emit(events.NewSessionEstablished(""))
	logger.InfoContext(ctx, "session active")

	group, groupCtx := errgroup.WithContext(pipelineCtx)
	group.Go(o.activity(groupCtx, o.captureLoop))
	group.Go(o.activity(groupCtx, o.sendLoop))
	group.Go(o.activity(groupCtx, o.receiveLoop))
	group.Go(o.activity(groupCtx, o.playbackLoop))

	go func() {
		select {
		case <-ctx.Done():
			o.signalStop()
		case <-o.done:
		}
	}()

	go o.finalize(group)

	return nil
}

// activity wraps one pipeline loop. The first fatal error wins: it is
// recorded, surfaced as an error status and triggers forced teardown so
// sibling activities blocked in OS calls are released.
func (o *Orchestrator) activity(ctx context.Context, loop func(context.Context) error) func() error {
	return func() error {
		err := loop(ctx)
		if err != nil && !o.stopping.Load() {
			o.recordErr(err)
			o.status.setError(err.Error())
			o.signalStop()
		}
		return err
	}
}

// finalize waits for every activity to exit, then settles the terminal state.
func (o *Orchestrator) finalize(group *errgroup.Group) {
	_ = group.Wait()
	o.signalStop()

	o.mu.Lock()
	o.state = StateStopped
	o.mu.Unlock()

	errMessage := ""
	if err := o.Err(); err != nil {
		errMessage = err.Error()
	} else {
		o.status.set(StatusIdle)
	}
	o.emit(events.NewSessionEnded(errMessage))
	logger.Info("session stopped", "error", errMessage)

	o.doneOnce.Do(func() { close(o.done) })
}

// Stop tears the session down and blocks until every activity exited.
// Calling Stop again, or stopping an orchestrator that never started, is
// safe and returns immediately.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.state == StateIdle {
		o.state = StateStopped
		o.mu.Unlock()
		o.doneOnce.Do(func() { close(o.done) })
		return
	}
	o.mu.Unlock()

	o.signalStop()
	<-o.done
}

// signalStop requests teardown: every suspension point observes the
// cancellation, and closing queues, devices and the session channel is the
// forced fallback for blocking OS calls that cannot observe it.
func (o *Orchestrator) signalStop() {
	o.stopOnce.Do(func() {
		o.stopping.Store(true)

		o.mu.Lock()
		if o.state != StateStopped {
			o.state = StateStopping
		}
		channel := o.channel
		captureQueue := o.captureQueue
		playbackQueue := o.playbackQueue
		cancel := o.cancel
		o.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if captureQueue != nil {
			captureQueue.Close()
		}
		if playbackQueue != nil {
			playbackQueue.Close()
		}
		if channel != nil {
			_ = channel.Close()
		}
		if o.source != nil {
			_ = o.source.Close()
		}
		if o.sink != nil {
			_ = o.sink.Close()
		}
	})
}

// Done is closed once the orchestrator reached its terminal state.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Status() Status { return o.status.get() }

// Err reports the fatal session error, nil after a clean stop.
func (o *Orchestrator) Err() error {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	return o.err
}

func (o *Orchestrator) failStart(err error) {
	o.recordErr(err)
	o.status.setError(err.Error())
	o.mu.Lock()
	o.state = StateStopped
	o.mu.Unlock()
	o.doneOnce.Do(func() { close(o.done) })
}

func (o *Orchestrator) recordErr(err error) {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	if o.err == nil {
		o.err = err
	}
}

// captureLoop reads device frames into the bounded capture queue. The queue's
// backpressure is what paces capture to the network send rate.
func (o *Orchestrator) captureLoop(ctx context.Context) error {
	for {
		frame, err := o.source.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, audio.ErrOverflow) {
				logger.Debug("capture overflow", "error", err)
				continue
			}
			if isShutdown(ctx, err) || o.stopping.Load() {
				return nil
			}
			return fmt.Errorf("capture device failed: %w", err)
		}

		if err := o.captureQueue.Put(ctx, frame); err != nil {
			return nil
		}
	}
}

// sendLoop forwards captured frames to the engine. Send failures are not
// fatal here: the transport reports them by closing the inbound stream, which
// the receive loop owns.
func (o *Orchestrator) sendLoop(ctx context.Context) error {
	for {
		frame, err := o.captureQueue.Get(ctx)
		if err != nil {
			return nil
		}

		if err := o.channel.SendAudio(frame); err != nil {
			if errors.Is(err, session.ErrClosed) || o.stopping.Load() {
				return nil
			}
			logger.Warn("failed to send audio frame", "error", err)
		}
	}
}

// receiveLoop consumes the single inbound event stream in arrival order.
func (o *Orchestrator) receiveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-o.channel.Receive():
			if !ok {
				if err := o.channel.Err(); err != nil && !o.stopping.Load() {
					return fmt.Errorf("session protocol failed: %w", err)
				}
				// Engine closed the conversation cleanly.
				go o.Stop()
				return nil
			}
			o.handleInbound(ctx, event)
		}
	}
}

// handleInbound routes one inbound event. The interruption drain is the
// entire Interrupting transition: it completes before any later audio chunk
// of the same receive iteration is enqueued, so no stale audio plays.
func (o *Orchestrator) handleInbound(ctx context.Context, event session.InboundEvent) {
	switch event.Kind {
	case session.KindInterrupted:
		o.setState(StateInterrupting)
		dropped := o.playbackQueue.Drain()
		o.setState(StateActive)
		span := trace.SpanFromContext(ctx)
		span.AddEvent("interruption handled", trace.WithAttributes(attribute.Int("playback.dropped_frames", dropped)))
		o.emit(events.NewInterruptionHandled(dropped))
		if o.status.get().Kind == StatusSpeaking {
			o.status.set(StatusListening)
		}
		logger.Debug("interruption handled", "dropped_frames", dropped)

	case session.KindAudioChunk:
		if err := o.playbackQueue.Put(ctx, event.Audio); err != nil {
			return
		}
		o.status.set(StatusSpeaking)

	case session.KindToolCallBatch:
		o.status.set(StatusProcessing)
		results := o.dispatcher.Dispatch(ctx, event.ToolCalls)
		if err := o.channel.SendToolResults(results); err != nil {
			// The closing inbound stream surfaces the transport failure.
			logger.Warn("failed to send tool results", "error", err)
		}
		o.status.set(StatusListening)
	}
}

// playbackLoop feeds queued reply audio to the sink, dropping back to the
// listening status once the queue runs dry.
func (o *Orchestrator) playbackLoop(ctx context.Context) error {
	for {
		frame, err := o.playbackQueue.Get(ctx)
		if err != nil {
			return nil
		}

		if err := o.sink.WriteFrame(ctx, frame); err != nil {
			if isShutdown(ctx, err) || o.stopping.Load() {
				return nil
			}
			return fmt.Errorf("playback device failed: %w", err)
		}

		if o.playbackQueue.Len() == 0 && o.status.get().Kind == StatusSpeaking {
			o.status.set(StatusListening)
		}
	}
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateActive || o.state == StateInterrupting {
		o.state = state
	}
}

func isShutdown(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrQueueClosed)
}
