package session

import "github.com/atempo-ai/atempo-core/core/audio"

// EventKind tags the active variant of an InboundEvent.
type EventKind string

const (
	// KindAudioChunk carries one chunk of synthesized reply audio.
	KindAudioChunk EventKind = "audio_chunk"
	// KindInterrupted signals that the user spoke over an in-progress reply;
	// queued but unplayed reply audio must be discarded.
	KindInterrupted EventKind = "interrupted"
	// KindToolCallBatch carries one batch of tool-call requests.
	KindToolCallBatch EventKind = "tool_call_batch"
)

// InboundEvent is a tagged union produced by a Channel and consumed exactly
// once by the orchestrator. Exactly one variant is active per event.
type InboundEvent struct {
	Kind EventKind

	// Audio is set when Kind is KindAudioChunk.
	Audio audio.Frame
	// ToolCalls is set when Kind is KindToolCallBatch.
	ToolCalls []ToolCallRequest
}

func NewAudioChunkEvent(frame audio.Frame) InboundEvent {
	return InboundEvent{Kind: KindAudioChunk, Audio: frame}
}

func NewInterruptedEvent() InboundEvent {
	return InboundEvent{Kind: KindInterrupted}
}

func NewToolCallBatchEvent(calls []ToolCallRequest) InboundEvent {
	return InboundEvent{Kind: KindToolCallBatch, ToolCalls: calls}
}

// ToolCallRequest asks for one named tool invocation. The ID is engine
// assigned and correlates the eventual result. Immutable.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolCallResult answers exactly one request; ID must match the originating
// request. Either Value or Error is set, never both.
type ToolCallResult struct {
	ID    string
	Name  string
	Value string
	Error string
}

// Ok wraps a successful tool return value.
func Ok(req ToolCallRequest, value string) ToolCallResult {
	return ToolCallResult{ID: req.ID, Name: req.Name, Value: value}
}

// Err wraps a tool failure as data; the engine explains it conversationally.
func Err(req ToolCallRequest, message string) ToolCallResult {
	return ToolCallResult{ID: req.ID, Name: req.Name, Error: message}
}

func (r ToolCallResult) Failed() bool { return r.Error != "" }
