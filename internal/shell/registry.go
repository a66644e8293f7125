package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/litianfu1997/openssh/internal/apperr"
	"github.com/litianfu1997/openssh/internal/config"
	"github.com/litianfu1997/openssh/internal/events"
	"github.com/litianfu1997/openssh/internal/hosts"
	"github.com/litianfu1997/openssh/internal/logging"
	"golang.org/x/sync/errgroup"
)

const (
	MaxResizeCols = 500
	MaxResizeRows = 500
)

// HostResolver looks up connection profiles with secrets decrypted.
type HostResolver interface {
	Get(ctx context.Context, id string) (*hosts.Profile, error)
}

// Opener establishes a transport and an interactive shell channel on it.
// Closing the returned io.Closer tears the transport down.
type Opener interface {
	Open(ctx context.Context, p *hosts.Profile) (Channel, io.Closer, error)
}

// Lifecycle event kinds reported to an Observer.
const (
	EventConnected    = "session_connected"
	EventDisconnected = "session_disconnected"
	EventClosed       = "session_closed"
	EventFailed       = "session_failed"
)

// LifecycleEvent describes a session state change.
type LifecycleEvent struct {
	Kind      string
	SessionID string
	HostID    string
	Detail    string
	Duration  time.Duration
}

// Observer is told about session lifecycle changes. It runs synchronously
// on the goroutine that caused the change.
type Observer func(LifecycleEvent)

type Options struct {
	InputLockTimeout time.Duration
	PollInterval     time.Duration
	LockRetry        time.Duration
	ErrorBackoff     time.Duration
	MaxErrors        int
	ScrollbackBytes  int
}

func DefaultOptions() Options {
	return Options{
		InputLockTimeout: 5 * time.Second,
		PollInterval:     100 * time.Millisecond,
		LockRetry:        10 * time.Millisecond,
		ErrorBackoff:     50 * time.Millisecond,
		MaxErrors:        10,
		ScrollbackBytes:  defaultScrollbackSize,
	}
}

func OptionsFromConfig(s config.Settings) Options {
	o := DefaultOptions()
	o.InputLockTimeout = s.InputLockTimeout
	o.PollInterval = s.ShellPollInterval
	o.LockRetry = s.ShellLockRetry
	o.MaxErrors = s.ShellMaxErrors
	o.ScrollbackBytes = s.ScrollbackBytes
	return o
}

// Registry owns the live shell sessions.
type Registry struct {
	hosts    HostResolver
	opener   Opener
	emitter  events.Emitter
	opts     Options
	observer Observer

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(resolver HostResolver, opener Opener, emitter events.Emitter, opts Options) *Registry {
	if emitter == nil {
		emitter = events.Discard
	}
	return &Registry{
		hosts:    resolver,
		opener:   opener,
		emitter:  emitter,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// SetObserver installs fn as the lifecycle observer. Call before use.
func (r *Registry) SetObserver(fn Observer) { r.observer = fn }

func (r *Registry) notify(ev LifecycleEvent) {
	if r.observer != nil {
		r.observer(ev)
	}
}

// Connect opens a shell for hostID under sessionID and starts streaming its
// output. An existing session with the same id is shut down and replaced the
// way Disconnect would, so no shell-closed event is emitted for it.
func (r *Registry) Connect(ctx context.Context, sessionID, hostID string) error {
	if sessionID == "" {
		return apperr.New(apperr.Invalid, "connect", "session id is required")
	}
	profile, err := r.hosts.Get(ctx, hostID)
	if err != nil {
		return err
	}

	start := time.Now()
	ch, transport, err := r.opener.Open(ctx, profile)
	if err != nil {
		log.Printf("[shell] connect %s to %s failed: %v", logging.Sanitize(sessionID), profile.Addr(), err)
		r.notify(LifecycleEvent{Kind: EventFailed, SessionID: sessionID, HostID: hostID, Detail: err.Error()})
		return err
	}

	sess := newSession(sessionID, hostID, ch, transport, r.opts.ScrollbackBytes)
	r.mu.Lock()
	old := r.sessions[sessionID]
	r.sessions[sessionID] = sess
	r.mu.Unlock()

	if old != nil {
		log.Printf("[shell] session %s replaced by new connection", logging.Sanitize(sessionID))
		r.shutdown(old, EventDisconnected, "replaced")
	}

	go r.readLoop(sess)

	if t, ok := r.hosts.(interface {
		TouchLastConnected(ctx context.Context, id string)
	}); ok {
		t.TouchLastConnected(ctx, hostID)
	}
	log.Printf("[shell] session %s connected to %s in %s", logging.Sanitize(sessionID), profile.Addr(), time.Since(start).Round(time.Millisecond))
	r.notify(LifecycleEvent{Kind: EventConnected, SessionID: sessionID, HostID: hostID, Detail: profile.Addr()})
	return nil
}

// SendInput writes data to the session's shell. The channel lock is waited
// for at most InputLockTimeout.
func (r *Registry) SendInput(ctx context.Context, sessionID string, data []byte) error {
	const op = "send_input"
	sess := r.get(sessionID)
	if sess == nil {
		return apperr.New(apperr.NotFound, op, "session %q not found", sessionID)
	}
	if !sess.Alive() {
		return apperr.New(apperr.Closed, op, "session %q is closed", sessionID)
	}

	ch, release, err := r.lockChannel(ctx, sess, op)
	if err != nil {
		return err
	}
	defer release()
	if ch == nil || !sess.Alive() {
		return apperr.New(apperr.Closed, op, "session %q is closed", sessionID)
	}
	if _, err := ch.Write(data); err != nil {
		sess.alive.Store(false)
		log.Printf("[shell] write to session %s failed, marking closed: %v", logging.Sanitize(sessionID), err)
		return &apperr.Error{Kind: apperr.Closed, Op: op, Err: fmt.Errorf("write failed: %w", err)}
	}
	return nil
}

// Resize changes the PTY window. A session whose channel is already gone is
// left alone.
func (r *Registry) Resize(ctx context.Context, sessionID string, cols, rows int) error {
	const op = "resize"
	if cols < 1 || rows < 1 || cols > MaxResizeCols || rows > MaxResizeRows {
		return apperr.New(apperr.Invalid, op, "invalid size %dx%d", cols, rows)
	}
	sess := r.get(sessionID)
	if sess == nil {
		return apperr.New(apperr.NotFound, op, "session %q not found", sessionID)
	}
	if !sess.Alive() {
		return apperr.New(apperr.Closed, op, "session %q is closed", sessionID)
	}

	ch, release, err := r.lockChannel(ctx, sess, op)
	if err != nil {
		return err
	}
	defer release()
	if ch == nil {
		return nil
	}
	if err := ch.WindowChange(cols, rows); err != nil {
		log.Printf("[shell] resize session %s to %dx%d: %v", logging.Sanitize(sessionID), cols, rows, err)
	}
	return nil
}

// Disconnect shuts the session down. Unknown ids are not an error.
func (r *Registry) Disconnect(sessionID string) error {
	r.mu.Lock()
	sess := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if sess != nil {
		r.shutdown(sess, EventDisconnected, "disconnect requested")
	}
	return nil
}

// CloseAll disconnects every session in parallel.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, s := range all {
		g.Go(func() error {
			r.shutdown(s, EventDisconnected, "shutdown")
			return nil
		})
	}
	g.Wait()
	if len(all) > 0 {
		log.Printf("[shell] closed %d sessions", len(all))
	}
}

// Get returns the registered session, if any.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	s := r.get(sessionID)
	return s, s != nil
}

func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Scrollback returns the buffered recent output of a session.
func (r *Registry) Scrollback(sessionID string) ([]byte, error) {
	sess := r.get(sessionID)
	if sess == nil {
		return nil, apperr.New(apperr.NotFound, "scrollback", "session %q not found", sessionID)
	}
	return sess.scrollback.Snapshot(), nil
}

func (r *Registry) get(sessionID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

// lockChannel acquires the session handle within InputLockTimeout.
func (r *Registry) lockChannel(ctx context.Context, sess *Session, op string) (Channel, func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, r.opts.InputLockTimeout)
	defer cancel()
	if err := sess.handle.Acquire(lockCtx); err != nil {
		if ctx.Err() != nil {
			return nil, nil, apperr.Wrap(apperr.Cancelled, op, ctx.Err())
		}
		return nil, nil, apperr.New(apperr.LockTimeout, op, "session %q busy: channel lock not acquired within %s", sess.ID, r.opts.InputLockTimeout)
	}
	return sess.handle.Channel(), sess.handle.Release, nil
}

// shutdown marks sess dead, takes its channel and closes it with the
// transport. Only the first caller for a session does the work.
func (r *Registry) shutdown(sess *Session, kind, reason string) {
	sess.closeOnce.Do(func() {
		sess.alive.Store(false)

		var ch Channel
		lockCtx, cancel := context.WithTimeout(context.Background(), r.opts.InputLockTimeout)
		if err := sess.handle.Acquire(lockCtx); err == nil {
			ch = sess.handle.Take()
			sess.handle.Release()
		} else {
			log.Printf("[shell] session %s: channel lock not acquired during shutdown, closing transport only", logging.Sanitize(sess.ID))
		}
		cancel()

		if ch != nil {
			if err := ch.Close(); err != nil {
				log.Printf("[shell] close channel for session %s: %v", logging.Sanitize(sess.ID), err)
			}
		}
		if sess.transport != nil {
			if err := sess.transport.Close(); err != nil && !errors.Is(err, io.EOF) {
				log.Printf("[shell] close transport for session %s: %v", logging.Sanitize(sess.ID), err)
			}
		}
		sess.scrollback.Close()

		lifetime := time.Since(sess.CreatedAt)
		log.Printf("[shell] session %s closed (%s) after %s", logging.Sanitize(sess.ID), reason, lifetime.Round(time.Second))
		r.notify(LifecycleEvent{Kind: kind, SessionID: sess.ID, HostID: sess.HostID, Detail: reason, Duration: lifetime})
	})
}
