package shell

import (
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/litianfu1997/openssh/internal/events"
	"github.com/litianfu1997/openssh/internal/logging"
)

// readLoop streams a session's output as events until the session dies.
//
// The handle is held only long enough to look up the channel, never across
// the wait for inbound data, so SendInput and Resize interleave freely. A
// timed-out wait is not an error. EOF alone does not end the session; an
// explicit close or MaxErrors consecutive read errors do.
func (r *Registry) readLoop(sess *Session) {
	defer close(sess.done)

	timer := time.NewTimer(r.opts.PollInterval)
	defer timer.Stop()

	var pending []byte
	errCount := 0
	for {
		if !sess.Alive() {
			// A failed write marks the session dead without tearing it down.
			// Release the transport; the entry stays until Disconnect.
			r.shutdown(sess, EventClosed, "marked dead")
			return
		}

		if !sess.handle.TryAcquire() {
			time.Sleep(r.opts.LockRetry)
			continue
		}
		ch := sess.handle.Channel()
		sess.handle.Release()
		if ch == nil {
			return
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.opts.PollInterval)

		var (
			msg Message
			ok  bool
		)
		select {
		case msg, ok = <-ch.Messages():
		case <-timer.C:
			continue
		}
		if !ok {
			msg = Message{Kind: MsgClose}
		}

		switch msg.Kind {
		case MsgData:
			errCount = 0
			sess.scrollback.Write(msg.Data)
			var text string
			text, pending = decodeUTF8(pending, msg.Data)
			if text != "" {
				r.emitter.Emit(events.TopicShellData, events.ShellData{SessionID: sess.ID, Data: text})
			}

		case MsgEOF:

		case MsgError:
			errCount++
			log.Printf("[shell] read error on session %s (%d/%d): %v", logging.Sanitize(sess.ID), errCount, r.opts.MaxErrors, msg.Err)
			if errCount >= r.opts.MaxErrors {
				r.closeFromLoop(sess, "too many read errors")
				return
			}
			time.Sleep(r.opts.ErrorBackoff)

		case MsgClose:
			r.closeFromLoop(sess, "remote closed")
			return
		}
	}
}

// closeFromLoop handles a closure the loop detected itself: the session is
// marked dead, announced, removed if still registered, and torn down.
func (r *Registry) closeFromLoop(sess *Session, reason string) {
	if !sess.alive.CompareAndSwap(true, false) {
		return
	}
	r.emitter.Emit(events.TopicShellClosed, events.ShellClosed{SessionID: sess.ID})

	r.mu.Lock()
	if r.sessions[sess.ID] == sess {
		delete(r.sessions, sess.ID)
	}
	r.mu.Unlock()

	r.shutdown(sess, EventClosed, reason)
}

// decodeUTF8 joins a carried-over partial rune with data and splits off any
// incomplete trailing rune for the next call. Invalid bytes become U+FFFD.
func decodeUTF8(pending, data []byte) (string, []byte) {
	buf := data
	if len(pending) > 0 {
		buf = append(pending, data...)
	}
	cut := len(buf)
	for i := len(buf) - 1; i >= 0 && i >= len(buf)-utf8.UTFMax+1; i-- {
		if utf8.RuneStart(buf[i]) {
			if !utf8.FullRune(buf[i:]) {
				cut = i
			}
			break
		}
	}
	var rest []byte
	if cut < len(buf) {
		rest = append([]byte(nil), buf[cut:]...)
	}
	return strings.ToValidUTF8(string(buf[:cut]), "\uFFFD"), rest
}
