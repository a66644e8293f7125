package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/litianfu1997/openssh/internal/events"
	"github.com/litianfu1997/openssh/internal/hosts"
	"github.com/litianfu1997/openssh/internal/sshtest"
)

type fakeChannel struct {
	msgs chan Message

	mu       sync.Mutex
	written  bytes.Buffer
	resizes  []string
	writeErr error
	closed   atomic.Bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{msgs: make(chan Message, 32)}
}

func (f *fakeChannel) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.written.Write(p)
}

func (f *fakeChannel) WindowChange(cols, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes = append(f.resizes, fmt.Sprintf("%dx%d", cols, rows))
	return nil
}

func (f *fakeChannel) Messages() <-chan Message { return f.msgs }

func (f *fakeChannel) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeChannel) Written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String()
}

type fakeTransport struct{ closed atomic.Bool }

func (t *fakeTransport) Close() error {
	t.closed.Store(true)
	return nil
}

type fakeOpener struct {
	ch        *fakeChannel
	transport *fakeTransport
	err       error
}

func (o *fakeOpener) Open(context.Context, *hosts.Profile) (Channel, io.Closer, error) {
	if o.err != nil {
		return nil, nil, o.err
	}
	return o.ch, o.transport, nil
}

func fastOptions() Options {
	return Options{
		InputLockTimeout: 200 * time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		LockRetry:        time.Millisecond,
		ErrorBackoff:     time.Millisecond,
		MaxErrors:        3,
		ScrollbackBytes:  1024,
	}
}

var testHosts = sshtest.Resolver{"h1": {ID: "h1", Host: "fake", Port: 22, Username: "u", Password: "p"}}

func newFakeRegistry(t *testing.T) (*Registry, *fakeOpener, *events.Recorder) {
	t.Helper()
	op := &fakeOpener{ch: newFakeChannel(), transport: &fakeTransport{}}
	rec := &events.Recorder{}
	r := NewRegistry(testHosts, op, rec, fastOptions())
	t.Cleanup(r.CloseAll)
	return r, op, rec
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
