package shell

import "context"

// Handle guards a session's Channel with a one-slot lock that supports
// non-blocking and deadline-bounded acquisition. Channel and Take may only
// be called while holding the lock.
type Handle struct {
	sem chan struct{}
	ch  Channel
}

func newHandle(ch Channel) *Handle {
	return &Handle{sem: make(chan struct{}, 1), ch: ch}
}

// TryAcquire takes the lock if it is free.
func (h *Handle) TryAcquire() bool {
	select {
	case h.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire waits for the lock until ctx is done.
func (h *Handle) Acquire(ctx context.Context) error {
	select {
	case h.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) Release() { <-h.sem }

// Channel returns the guarded channel, nil once taken.
func (h *Handle) Channel() Channel { return h.ch }

// Take removes and returns the channel.
func (h *Handle) Take() Channel {
	ch := h.ch
	h.ch = nil
	return ch
}
