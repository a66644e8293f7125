package shell

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Session is one live interactive shell.
type Session struct {
	ID        string
	HostID    string
	CreatedAt time.Time

	handle     *Handle
	transport  io.Closer
	scrollback *Scrollback

	alive     atomic.Bool
	closeOnce sync.Once
	done      chan struct{} // closed when the read loop exits
}

func newSession(id, hostID string, ch Channel, transport io.Closer, scrollbackBytes int) *Session {
	s := &Session{
		ID:         id,
		HostID:     hostID,
		CreatedAt:  time.Now(),
		handle:     newHandle(ch),
		transport:  transport,
		scrollback: NewScrollback(scrollbackBytes),
		done:       make(chan struct{}),
	}
	s.alive.Store(true)
	return s
}

// Alive reports whether the session still accepts input. It never blocks.
func (s *Session) Alive() bool { return s.alive.Load() }

// Done is closed once the read loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Info is a point-in-time view of a session for listings.
type Info struct {
	ID              string    `json:"session_id"`
	HostID          string    `json:"host_id"`
	Alive           bool      `json:"alive"`
	CreatedAt       time.Time `json:"created_at"`
	ScrollbackBytes int       `json:"scrollback_bytes"`
}

func (s *Session) Info() Info {
	return Info{
		ID:              s.ID,
		HostID:          s.HostID,
		Alive:           s.Alive(),
		CreatedAt:       s.CreatedAt,
		ScrollbackBytes: s.scrollback.Len(),
	}
}
