package events

import "sync"

// Recorder keeps every event in memory. Tests use it as the Emitter.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(topic string, payload any) {
	r.mu.Lock()
	r.events = append(r.events, Event{Topic: topic, Payload: payload})
	r.mu.Unlock()
}

// Events returns a copy of the events on topic, or all events if topic is "".
func (r *Recorder) Events(topic string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if topic == "" || ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

// Progress returns the transfer progress payloads on topic, in order.
func (r *Recorder) Progress(topic string) []TransferProgress {
	var out []TransferProgress
	for _, ev := range r.Events(topic) {
		if p, ok := ev.Payload.(TransferProgress); ok {
			out = append(out, p)
		}
	}
	return out
}

// ShellOutput concatenates the data events for one session.
func (r *Recorder) ShellOutput(sessionID string) string {
	var out string
	for _, ev := range r.Events(TopicShellData) {
		if d, ok := ev.Payload.(ShellData); ok && d.SessionID == sessionID {
			out += d.Data
		}
	}
	return out
}

// Closed reports whether a closed event was seen for sessionID.
func (r *Recorder) Closed(sessionID string) bool {
	for _, ev := range r.Events(TopicShellClosed) {
		if c, ok := ev.Payload.(ShellClosed); ok && c.SessionID == sessionID {
			return true
		}
	}
	return false
}
