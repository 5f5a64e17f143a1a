package stream

import "fmt"

// Machine validates an event sequence against the stream grammar. The zero value
// expects a connected event first.
type Machine struct {
	state        EventType
	lastID       int64
	lastProgress float64
}

var transitions = map[EventType][]EventType{
	0:              {EventConnected},
	EventConnected: {EventProgress, EventComplete, EventError},
	EventProgress:  {EventProgress, EventComplete, EventError},
	EventComplete:  {EventEnd},
	EventError:     {EventEnd},
}

// Next validates ev and advances the machine. An invalid event leaves the
// machine unchanged.
func (m *Machine) Next(ev Event) error {
	if m.state == EventEnd {
		return ErrStreamClosed
	}
	if !m.allowed(ev.Type) {
		return fmt.Errorf("%w: %s after %s", ErrInvalidTransition, ev.Type, m.stateName())
	}
	if ev.ID <= m.lastID {
		return fmt.Errorf("%w: %d after %d", ErrNonIncreasingID, ev.ID, m.lastID)
	}

	if ev.Type == EventProgress {
		p, ok := progressOf(ev.Data)
		if !ok || p < 0 || p > 1 || p < m.lastProgress {
			return fmt.Errorf("%w: got %v after %v", ErrInvalidProgress, ev.Data, m.lastProgress)
		}
		m.lastProgress = p
	}

	m.state = ev.Type
	m.lastID = ev.ID
	return nil
}

// State returns the last accepted event type, or 0 before any event.
func (m *Machine) State() EventType {
	return m.state
}

// Terminal reports whether complete or error has been accepted.
func (m *Machine) Terminal() bool {
	return m.state == EventComplete || m.state == EventError || m.state == EventEnd
}

// Closed reports whether end has been accepted.
func (m *Machine) Closed() bool {
	return m.state == EventEnd
}

func (m *Machine) allowed(next EventType) bool {
	for _, t := range transitions[m.state] {
		if t == next {
			return true
		}
	}
	return false
}

func (m *Machine) stateName() string {
	if m.state == 0 {
		return "start"
	}
	return m.state.String()
}

func progressOf(data any) (float64, bool) {
	switch d := data.(type) {
	case ProgressData:
		return d.Progress, true
	case *ProgressData:
		if d == nil {
			return 0, false
		}
		return d.Progress, true
	default:
		return 0, false
	}
}
