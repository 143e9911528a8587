package events

import "encoding/json"

const (
	// KindToolCallStarted identifies a calendar tool invocation being picked up.
	KindToolCallStarted Kind = "tool_call.started"
	// KindToolCallCompleted identifies a tool invocation returning a result.
	KindToolCallCompleted Kind = "tool_call.completed"
	// KindToolCallFailed identifies a tool invocation ending in an error result.
	KindToolCallFailed Kind = "tool_call.failed"
)

// ToolCallStarted reports that the dispatcher picked up one engine tool
// request. CallID is the engine-assigned request id; Arguments carries the
// raw JSON payload the engine sent.
type ToolCallStarted struct {
	base
	CallID    string
	Name      string
	Arguments json.RawMessage
}

func NewToolCallStarted(callID, name string, arguments json.RawMessage) ToolCallStarted {
	return ToolCallStarted{base: newBase(KindToolCallStarted), CallID: callID, Name: name, Arguments: arguments}
}

// ToolCallCompleted carries the result string reported back to the engine.
type ToolCallCompleted struct {
	base
	CallID string
	Name   string
	Result string
}

func NewToolCallCompleted(callID, name, result string) ToolCallCompleted {
	return ToolCallCompleted{base: newBase(KindToolCallCompleted), CallID: callID, Name: name, Result: result}
}

// ToolCallFailed carries the error message reported back to the engine. A
// failed tool call never terminates the session.
type ToolCallFailed struct {
	base
	CallID string
	Name   string
	Error  string
}

func NewToolCallFailed(callID, name, message string) ToolCallFailed {
	return ToolCallFailed{base: newBase(KindToolCallFailed), CallID: callID, Name: name, Error: message}
}
