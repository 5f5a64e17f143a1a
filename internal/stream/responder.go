package stream

import (
	"time"

	"tool_gateway/internal/utils"
)

// Responder drives one stream: it assigns ids, validates every event against
// the grammar and remembers the first write failure. After a write failure it
// keeps advancing the grammar but stops writing, so callers can run the call to
// completion regardless of the client.
type Responder struct {
	emitter   Emitter
	machine   Machine
	requestID string
	nextID    int64
	writeErr  error
	logger    *utils.Logger
}

// NewResponder creates a responder for one request.
func NewResponder(emitter Emitter, requestID string) *Responder {
	return &Responder{
		emitter:   emitter,
		requestID: requestID,
		logger:    utils.NewLogger("stream"),
	}
}

// Connected opens the stream.
func (r *Responder) Connected(tool string, data ConnectedData) {
	data.RequestID = r.requestID
	data.Tool = tool
	if data.Timestamp.IsZero() {
		data.Timestamp = time.Now().UTC()
	}
	r.send(EventConnected, data)
}

// Progress reports a milestone. Out-of-order fractions are dropped.
func (r *Responder) Progress(message string, fraction float64) {
	r.send(EventProgress, ProgressData{Message: message, Progress: fraction})
}

// ProgressWith reports a milestone with extra payload.
func (r *Responder) ProgressWith(data ProgressData) {
	r.send(EventProgress, data)
}

// Complete sends the successful result.
func (r *Responder) Complete(data CompleteData) {
	data.RequestID = r.requestID
	r.send(EventComplete, data)
}

// Fail sends the error event.
func (r *Responder) Fail(data ErrorData) {
	data.RequestID = r.requestID
	r.send(EventError, data)
}

// Close guarantees the stream ends with end. If neither complete nor error was
// sent, an internal error is sent first. Close is safe to call more than once.
func (r *Responder) Close() {
	if r.machine.Closed() {
		return
	}
	if r.machine.State() == 0 {
		r.Connected("", ConnectedData{})
	}
	if !r.machine.Terminal() {
		r.Fail(ErrorData{Type: "internal_error", Message: "stream ended without a result"})
	}
	r.send(EventEnd, EndData{RequestID: r.requestID})
}

// WriteErr returns the first error writing to the client, if any.
func (r *Responder) WriteErr() error {
	return r.writeErr
}

// Machine exposes the grammar state.
func (r *Responder) Machine() *Machine {
	return &r.machine
}

func (r *Responder) send(typ EventType, data any) {
	ev := Event{ID: r.nextID + 1, Type: typ, Data: data}
	if err := r.machine.Next(ev); err != nil {
		r.logger.Error("dropping invalid stream event", "request_id", r.requestID, "event", typ.String(), "error", err)
		return
	}
	r.nextID = ev.ID

	if r.writeErr != nil {
		return
	}
	if err := r.emitter.Emit(ev); err != nil {
		r.writeErr = err
		r.logger.Warn("stream write failed, client likely gone", "request_id", r.requestID, "event", typ.String(), "error", err)
	}
}
