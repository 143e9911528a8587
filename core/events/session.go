package events

const (
	// KindSessionEstablished identifies a live session coming up.
	KindSessionEstablished Kind = "session.established"
	// KindSessionEnded identifies the session reaching its terminal state.
	KindSessionEnded Kind = "session.ended"
	// KindInterruptionHandled identifies a completed playback drain.
	KindInterruptionHandled Kind = "session.interruption_handled"
)

// SessionEstablished marks a successful connection to the engine.
type SessionEstablished struct {
	base
	SessionModel string
}

func NewSessionEstablished(model string) SessionEstablished {
	return SessionEstablished{base: newBase(KindSessionEstablished), SessionModel: model}
}

// SessionEnded marks teardown completion. Err is empty on a clean stop.
type SessionEnded struct {
	base
	Err string
}

func NewSessionEnded(err string) SessionEnded {
	return SessionEnded{base: newBase(KindSessionEnded), Err: err}
}

// InterruptionHandled reports how many queued reply frames were discarded
// because the user spoke over the assistant.
type InterruptionHandled struct {
	base
	DroppedFrames int
}

func NewInterruptionHandled(droppedFrames int) InterruptionHandled {
	return InterruptionHandled{base: newBase(KindInterruptionHandled), DroppedFrames: droppedFrames}
}
