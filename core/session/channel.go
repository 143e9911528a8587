// Package session defines the conduit to the remote conversational engine.
//
// A Channel is the sole connection for one conversation: outbound audio frames
// and tool results go in, a single ordered stream of inbound events comes out.
// A channel is never reconnected; a failed channel means the session is over
// and a new conversation starts with a fresh channel and fresh queues.
package session

import (
	"context"
	"errors"

	"github.com/atempo-ai/atempo-core/core/audio"
)

var (
	// ErrClosed is returned by sends after the channel terminated.
	ErrClosed = errors.New("session channel closed")
)

// Channel is the bidirectional connection to the conversational engine.
type Channel interface {
	// SendAudio enqueues one outbound audio frame. It never blocks the caller
	// beyond transient transport backpressure; a transport failure is reported
	// asynchronously by the event stream closing. Safe for concurrent callers.
	SendAudio(frame audio.Frame) error

	// SendToolResults sends one batch of tool results. The batch must contain
	// exactly one result per request of the triggering ToolCallBatch or the
	// engine considers the turn incomplete. Safe for concurrent callers.
	SendToolResults(results []ToolCallResult) error

	// Receive returns the inbound event stream. The stream has exactly one
	// consumer, preserves engine arrival order, and is closed permanently on
	// any protocol failure; Err reports the cause afterwards.
	Receive() <-chan InboundEvent

	// Err reports why the event stream closed. It returns nil before the
	// stream closed and after a clean shutdown.
	Err() error

	// Close terminates the channel. Idempotent.
	Close() error
}

// Dialer establishes a live Channel for one conversation.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}
