// Package gemini implements the session channel over the Gemini Live
// BidiGenerateContent websocket. One client carries one conversation;
// a protocol failure closes the event stream and the caller starts over
// with a fresh dial.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/codes"

	"github.com/atempo-ai/atempo-core/core/audio"
	"github.com/atempo-ai/atempo-core/core/session"
)

const (
	defaultHost  = "generativelanguage.googleapis.com"
	defaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

	bidiPath = "/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"

	// eventChannelDepth absorbs decode bursts so the websocket reader is not
	// stalled by a momentarily slow consumer.
	eventChannelDepth = 32
)

type Config struct {
	// APIKey authenticates the connection. Empty falls back to GEMINI_API_KEY.
	APIKey string
	// Model names the Live model; empty uses the default native-audio model.
	Model string
	// Host overrides the endpoint host, used by tests.
	Host string
	// SystemInstruction primes the conversation.
	SystemInstruction string
	// Declarations advertises the callable tools.
	Declarations []FunctionDeclaration
}

type Dialer struct {
	config Config
}

func NewDialer(config Config) *Dialer {
	return &Dialer{config: config}
}

// Dial opens the websocket, sends the setup message and starts the read loop.
func (d *Dialer) Dial(ctx context.Context) (session.Channel, error) {
	ctx, span := tracer.Start(ctx, "dial live session")
	defer span.End()

	apiKey := d.config.APIKey
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("GEMINI_API_KEY"); !ok {
			return nil, fmt.Errorf("gemini api key not found")
		}
	}

	model := d.config.Model
	if model == "" {
		model = defaultModel
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	host := d.config.Host
	if host == "" {
		host = defaultHost
	}

	queryParams := url.Values{}
	queryParams.Set("key", apiKey)
	liveURL := url.URL{Scheme: "wss", Host: host, Path: bidiPath, RawQuery: queryParams.Encode()}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, liveURL.String(), http.Header{})
	if err != nil {
		err = fmt.Errorf("failed to open socket connection to gemini: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	c := &Client{
		id:     uuid.NewString(),
		conn:   conn,
		events: make(chan session.InboundEvent, eventChannelDepth),
		closed: make(chan struct{}),
	}

	setupMsg := clientMessage{Setup: &setup{
		Model:            model,
		GenerationConfig: &generationConfig{ResponseModalities: []string{"AUDIO"}},
	}}
	if d.config.SystemInstruction != "" {
		setupMsg.Setup.SystemInstruction = &content{Parts: []part{{Text: d.config.SystemInstruction}}}
	}
	if len(d.config.Declarations) > 0 {
		setupMsg.Setup.Tools = []tool{{FunctionDeclarations: d.config.Declarations}}
	}

	if err := c.writeJSON(setupMsg); err != nil {
		_ = conn.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to send session setup: %w", err)
	}

	logger.InfoContext(ctx, "live session established", "session_id", c.id, "model", model)
	go c.readAndProcessMessages()

	return c, nil
}

// Client is a live session channel. The outbound path is serialized with a
// write mutex so concurrent senders cannot interleave one message.
type Client struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex

	events chan session.InboundEvent

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *Client) SendAudio(frame audio.Frame) error {
	mimeType := fmt.Sprintf("audio/pcm;rate=%d", frame.Encoding.SampleRate)
	return c.writeJSON(clientMessage{RealtimeInput: &realtimeInput{
		MediaChunks: []blob{{MimeType: mimeType, Data: frame.Data}},
	}})
}

func (c *Client) SendToolResults(results []session.ToolCallResult) error {
	responses := make([]functionResponse, 0, len(results))
	for _, result := range results {
		payload := map[string]any{"result": result.Value}
		if result.Failed() {
			payload = map[string]any{"error": result.Error}
		}
		responses = append(responses, functionResponse{
			ID:       result.ID,
			Name:     result.Name,
			Response: payload,
		})
	}

	return c.writeJSON(clientMessage{ToolResponse: &toolResponse{FunctionResponses: responses}})
}

func (c *Client) Receive() <-chan session.InboundEvent { return c.events }

func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	return nil
}

func (c *Client) writeJSON(msg clientMessage) error {
	select {
	case <-c.closed:
		return session.ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to live session: %w", err)
	}
	return nil
}

// readAndProcessMessages is the single websocket reader. It decodes server
// messages into inbound events, preserving arrival order, and closes the
// event stream on the first failure.
func (c *Client) readAndProcessMessages() {
	defer close(c.events)

	for {
		var msg serverMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.closed:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					c.setErr(fmt.Errorf("live session read failed: %w", err))
					logger.Error("live session read failed", "session_id", c.id, "error", err)
				}
			}
			return
		}

		for _, event := range decodeServerMessage(msg) {
			select {
			case c.events <- event:
			case <-c.closed:
				return
			}
		}
	}
}

// decodeServerMessage flattens one server message into inbound events.
// An interruption always precedes any audio carried by the same message so
// the consumer drains before enqueueing newer chunks.
func decodeServerMessage(msg serverMessage) []session.InboundEvent {
	var events []session.InboundEvent

	if msg.ServerContent != nil {
		if msg.ServerContent.Interrupted {
			events = append(events, session.NewInterruptedEvent())
		}
		if msg.ServerContent.ModelTurn != nil {
			for _, p := range msg.ServerContent.ModelTurn.Parts {
				if p.InlineData == nil || len(p.InlineData.Data) == 0 {
					continue
				}
				frame := audio.NewFrame(p.InlineData.Data, audio.PlaybackEncodingInfo())
				events = append(events, session.NewAudioChunkEvent(frame))
			}
		}
	}

	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		calls := make([]session.ToolCallRequest, 0, len(msg.ToolCall.FunctionCalls))
		for _, fc := range msg.ToolCall.FunctionCalls {
			id := fc.ID
			if id == "" {
				id = uuid.NewString()
			}
			calls = append(calls, session.ToolCallRequest{ID: id, Name: fc.Name, Arguments: fc.Args})
		}
		events = append(events, session.NewToolCallBatchEvent(calls))
	}

	if msg.ToolCallCancellation != nil {
		// The engine withdraws calls it no longer wants answered. Results for
		// cancelled ids are tolerated, so no pipeline action is needed.
		logger.Debug("tool call cancellation received", "ids", msg.ToolCallCancellation.IDs)
	}

	return events
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}
