package orchestration

import "sync"

// StatusKind is the coarse conversation state surfaced to front ends.
type StatusKind string

const (
	StatusIdle       StatusKind = "idle"
	StatusListening  StatusKind = "listening"
	StatusSpeaking   StatusKind = "speaking"
	StatusProcessing StatusKind = "processing"
	StatusError      StatusKind = "error"
)

// Status is one emitted status value. Message is set only for StatusError.
type Status struct {
	Kind    StatusKind
	Message string
}

// statusSignal deduplicates transitions and fans the current value out to the
// configured callback. Emissions are serialized so a front end observes
// transitions in the order the pipeline produced them.
type statusSignal struct {
	mu       sync.Mutex
	current  Status
	onStatus func(Status)
}

func newStatusSignal(onStatus func(Status)) *statusSignal {
	if onStatus == nil {
		onStatus = func(Status) {}
	}
	return &statusSignal{current: Status{Kind: StatusIdle}, onStatus: onStatus}
}

func (s *statusSignal) set(kind StatusKind) {
	s.emit(Status{Kind: kind})
}

func (s *statusSignal) setError(message string) {
	s.emit(Status{Kind: StatusError, Message: message})
}

func (s *statusSignal) emit(status Status) {
	s.mu.Lock()
	if s.current == status {
		s.mu.Unlock()
		return
	}
	// An error status is terminal for the session; later transitions from the
	// winding-down pipeline must not mask it.
	if s.current.Kind == StatusError {
		s.mu.Unlock()
		return
	}
	s.current = status
	onStatus := s.onStatus
	s.mu.Unlock()

	onStatus(status)
}

func (s *statusSignal) get() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
