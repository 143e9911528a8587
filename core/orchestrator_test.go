package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atempo-ai/atempo-core/core/audio"
	"github.com/atempo-ai/atempo-core/core/events"
	"github.com/atempo-ai/atempo-core/core/session"
)

type scriptedChannel struct {
	inbound   chan session.InboundEvent
	audioSent chan audio.Frame
	results   chan []session.ToolCallResult

	// sendGate, when non-nil, makes SendAudio block for one token per frame,
	// simulating transport backpressure.
	sendGate chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

func newScriptedChannel() *scriptedChannel {
	return &scriptedChannel{
		inbound:   make(chan session.InboundEvent, 32),
		audioSent: make(chan audio.Frame, 128),
		results:   make(chan []session.ToolCallResult, 8),
		done:      make(chan struct{}),
	}
}

func (c *scriptedChannel) SendAudio(frame audio.Frame) error {
	if c.sendGate != nil {
		select {
		case <-c.sendGate:
		case <-c.done:
			return session.ErrClosed
		}
	}
	select {
	case c.audioSent <- frame:
	default:
	}
	return nil
}

func (c *scriptedChannel) SendToolResults(results []session.ToolCallResult) error {
	c.results <- results
	return nil
}

func (c *scriptedChannel) Receive() <-chan session.InboundEvent { return c.inbound }

func (c *scriptedChannel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *scriptedChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.inbound)
		close(c.done)
	})
	return nil
}

// failWith simulates the transport failing: the inbound stream closes with a
// recorded error, exactly how the websocket client reports its read loop
// going down.
func (c *scriptedChannel) failWith(err error) {
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
	c.closeOnce.Do(func() {
		close(c.inbound)
		close(c.done)
	})
}

type fakeDialer struct {
	channel session.Channel
	err     error
}

func (d fakeDialer) Dial(context.Context) (session.Channel, error) { return d.channel, d.err }

// gatedDialer holds the dial open until released, so tests can interleave
// Stop with a connect still in flight.
type gatedDialer struct {
	channel session.Channel
	dialing chan struct{}
	release chan struct{}
}

func newGatedDialer(channel session.Channel) *gatedDialer {
	return &gatedDialer{
		channel: channel,
		dialing: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (d *gatedDialer) Dial(context.Context) (session.Channel, error) {
	close(d.dialing)
	<-d.release
	return d.channel, nil
}

type fakeSource struct {
	frames    chan audio.Frame
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{frames: make(chan audio.Frame, 32), closed: make(chan struct{})}
}

func (s *fakeSource) ReadFrame(ctx context.Context) (audio.Frame, error) {
	select {
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	case <-s.closed:
		return audio.Frame{}, audio.ErrDeviceClosed
	case frame := <-s.frames:
		return frame, nil
	}
}

func (s *fakeSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type fakeSink struct {
	written   chan audio.Frame
	gate      chan struct{} // when non-nil every write waits for one token
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSink(gated bool) *fakeSink {
	sink := &fakeSink{written: make(chan audio.Frame, 128), closed: make(chan struct{})}
	if gated {
		sink.gate = make(chan struct{})
	}
	return sink
}

func (s *fakeSink) WriteFrame(ctx context.Context, frame audio.Frame) error {
	if s.gate != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return audio.ErrDeviceClosed
		case <-s.gate:
		}
	}
	select {
	case s.written <- frame:
	default:
	}
	return nil
}

func (s *fakeSink) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *statusRecorder) kinds() []StatusKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]StatusKind, len(r.statuses))
	for i, status := range r.statuses {
		kinds[i] = status.Kind
	}
	return kinds
}

func waitStopped(t *testing.T, o *Orchestrator) {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not reach its terminal state in time")
	}
}

func TestOrchestratorInterruptionDrainsPendingPlayback(t *testing.T) {
	channel := newScriptedChannel()
	sink := newFakeSink(true)

	dropped := make(chan int, 1)
	o := NewOrchestrator(
		WithAudioSource(newFakeSource()),
		WithAudioSink(sink),
		WithSessionDialer(fakeDialer{channel: channel}),
		WithEventCallback(func(event events.Event) {
			if handled, ok := event.(events.InterruptionHandled); ok {
				dropped <- handled.DroppedFrames
			}
		}),
	)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("failed to start orchestrator: %v", err)
	}
	defer o.Stop()

	// First chunk occupies the sink, which holds its write until gated.
	channel.inbound <- session.NewAudioChunkEvent(testFrame(1))
	for tag := byte(2); tag <= 6; tag++ {
		channel.inbound <- session.NewAudioChunkEvent(testFrame(tag))
	}
	// Let the receive loop enqueue everything behind the blocked write.
	time.Sleep(50 * time.Millisecond)

	channel.inbound <- session.NewInterruptedEvent()

	select {
	case n := <-dropped:
		if n != 5 {
			t.Errorf("expected 5 drained frames, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("interruption was not handled in time")
	}
}

func TestOrchestratorToolBatchRoundTrip(t *testing.T) {
	channel := newScriptedChannel()
	recorder := &statusRecorder{}

	o := NewOrchestrator(
		WithAudioSource(newFakeSource()),
		WithAudioSink(newFakeSink(false)),
		WithSessionDialer(fakeDialer{channel: channel}),
		WithToolRegistry(newTestRegistry(t)),
		WithStatusCallback(recorder.record),
	)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("failed to start orchestrator: %v", err)
	}
	defer o.Stop()

	channel.inbound <- session.NewToolCallBatchEvent([]session.ToolCallRequest{
		{ID: "call-1", Name: "echo", Arguments: map[string]any{"text": "booked"}},
		{ID: "call-2", Name: "missing", Arguments: map[string]any{}},
	})

	select {
	case results := <-channel.results:
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		if results[0].ID != "call-1" || results[0].Value != "booked" {
			t.Errorf("unexpected first result: %+v", results[0])
		}
		if results[1].ID != "call-2" || !results[1].Failed() {
			t.Errorf("expected the unknown tool to fail, got %+v", results[1])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tool results were not sent back in time")
	}

	var sawProcessing bool
	for _, kind := range recorder.kinds() {
		if kind == StatusProcessing {
			sawProcessing = true
		}
	}
	if !sawProcessing {
		t.Error("expected a processing status during the tool batch")
	}
}

func TestOrchestratorStatusFollowsPlayback(t *testing.T) {
	channel := newScriptedChannel()
	sink := newFakeSink(false)
	recorder := &statusRecorder{}

	o := NewOrchestrator(
		WithAudioSource(newFakeSource()),
		WithAudioSink(sink),
		WithSessionDialer(fakeDialer{channel: channel}),
		WithStatusCallback(recorder.record),
	)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("failed to start orchestrator: %v", err)
	}
	defer o.Stop()

	channel.inbound <- session.NewAudioChunkEvent(testFrame(1))

	select {
	case <-sink.written:
	case <-time.After(2 * time.Second):
		t.Fatal("frame never reached the sink")
	}

	deadline := time.After(2 * time.Second)
	for {
		kinds := recorder.kinds()
		if len(kinds) >= 1 && kinds[0] == StatusListening && containsKind(kinds, StatusSpeaking) {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("expected listening then speaking statuses, got %v", kinds)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func containsKind(kinds []StatusKind, want StatusKind) bool {
	for _, kind := range kinds {
		if kind == want {
			return true
		}
	}
	return false
}

func TestOrchestratorStopIsIdempotentAndBounded(t *testing.T) {
	channel := newScriptedChannel()
	source := newFakeSource()

	o := NewOrchestrator(
		WithAudioSource(source),
		WithAudioSink(newFakeSink(false)),
		WithSessionDialer(fakeDialer{channel: channel}),
	)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("failed to start orchestrator: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		o.Stop()
		o.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not complete in time")
	}
	waitStopped(t, o)

	if state := o.State(); state != StateStopped {
		t.Errorf("expected stopped state, got %s", state)
	}
	if err := o.Err(); err != nil {
		t.Errorf("expected a clean stop, got %v", err)
	}
}

func TestOrchestratorStopDuringConnectingDiscardsSession(t *testing.T) {
	channel := newScriptedChannel()
	dialer := newGatedDialer(channel)

	o := NewOrchestrator(
		WithAudioSource(newFakeSource()),
		WithAudioSink(newFakeSink(false)),
		WithSessionDialer(dialer),
	)

	startErr := make(chan error, 1)
	go func() { startErr <- o.Start(context.Background()) }()
	<-dialer.dialing

	stopped := make(chan struct{})
	go func() {
		o.Stop()
		close(stopped)
	}()

	// Give Stop time to run its teardown against the not-yet-dialed session,
	// then let the dial complete.
	time.Sleep(20 * time.Millisecond)
	close(dialer.release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop hung after the dial completed post-stop")
	}
	if err := <-startErr; err != nil {
		t.Fatalf("start returned %v", err)
	}
	if state := o.State(); state != StateStopped {
		t.Errorf("expected stopped state, got %s", state)
	}
	if err := o.Err(); err != nil {
		t.Errorf("expected a clean stop, got %v", err)
	}
	select {
	case <-channel.done:
	default:
		t.Error("expected the freshly dialed channel to be closed")
	}
}

func TestOrchestratorStopWhileCaptureBackpressured(t *testing.T) {
	channel := newScriptedChannel()
	channel.sendGate = make(chan struct{})
	source := newFakeSource()
	for i := 0; i < 16; i++ {
		source.frames <- testFrame(byte(i))
	}

	o := NewOrchestrator(
		WithAudioSource(source),
		WithAudioSink(newFakeSink(false)),
		WithSessionDialer(fakeDialer{channel: channel}),
		WithCaptureQueueSize(2),
	)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("failed to start orchestrator: %v", err)
	}

	// With the transport gated the send loop never drains the capture queue,
	// so the capture loop ends up suspended on a full queue.
	time.Sleep(50 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		o.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not complete while capture was backpressured")
	}
	if state := o.State(); state != StateStopped {
		t.Errorf("expected stopped state, got %s", state)
	}
	if err := o.Err(); err != nil {
		t.Errorf("expected a clean stop, got %v", err)
	}
}

func TestOrchestratorStopWithoutStart(t *testing.T) {
	o := NewOrchestrator()
	done := make(chan struct{})
	go func() {
		o.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop on an unstarted orchestrator blocked")
	}
	if state := o.State(); state != StateStopped {
		t.Errorf("expected stopped state, got %s", state)
	}
}

func TestOrchestratorChannelFailureIsFatal(t *testing.T) {
	channel := newScriptedChannel()
	recorder := &statusRecorder{}

	o := NewOrchestrator(
		WithAudioSource(newFakeSource()),
		WithAudioSink(newFakeSink(false)),
		WithSessionDialer(fakeDialer{channel: channel}),
		WithStatusCallback(recorder.record),
	)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("failed to start orchestrator: %v", err)
	}

	channel.failWith(fmt.Errorf("connection reset"))
	waitStopped(t, o)

	if err := o.Err(); err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected the protocol failure to surface, got %v", err)
	}
	kinds := recorder.kinds()
	if len(kinds) == 0 || kinds[len(kinds)-1] != StatusError {
		t.Errorf("expected the final status to be error, got %v", kinds)
	}
}

func TestOrchestratorDialFailure(t *testing.T) {
	o := NewOrchestrator(
		WithAudioSource(newFakeSource()),
		WithAudioSink(newFakeSink(false)),
		WithSessionDialer(fakeDialer{err: fmt.Errorf("handshake rejected")}),
	)

	err := o.Start(context.Background())
	if err == nil {
		t.Fatal("expected start to fail when the dialer fails")
	}
	if state := o.State(); state != StateStopped {
		t.Errorf("expected stopped state after dial failure, got %s", state)
	}
	if status := o.Status(); status.Kind != StatusError {
		t.Errorf("expected error status after dial failure, got %+v", status)
	}
}

func TestOrchestratorCleanEngineCloseStops(t *testing.T) {
	channel := newScriptedChannel()

	o := NewOrchestrator(
		WithAudioSource(newFakeSource()),
		WithAudioSink(newFakeSink(false)),
		WithSessionDialer(fakeDialer{channel: channel}),
	)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("failed to start orchestrator: %v", err)
	}

	_ = channel.Close()
	waitStopped(t, o)

	if err := o.Err(); err != nil {
		t.Errorf("expected a clean stop on engine close, got %v", err)
	}
}
