package shell

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"
)

// MessageKind classifies inbound channel traffic.
type MessageKind int

const (
	MsgData MessageKind = iota
	MsgEOF
	MsgClose
	MsgError
)

// Message is one inbound event from a channel.
type Message struct {
	Kind MessageKind
	Data []byte
	Err  error
}

// Channel is a live interactive shell stream. Messages is closed after the
// final MsgClose.
type Channel interface {
	Write(p []byte) (int, error)
	WindowChange(cols, rows int) error
	Messages() <-chan Message
	Close() error
}

const (
	ptyTerm = "xterm"

	DefaultCols = 80
	DefaultRows = 24

	readBufSize = 32 * 1024
)

// sshChannel adapts an ssh.Session running a PTY shell to Channel.
type sshChannel struct {
	sess  *ssh.Session
	stdin io.WriteCloser

	msgs      chan Message
	closed    chan struct{}
	closeOnce sync.Once
}

func openShell(client *ssh.Client, cols, rows int) (*sshChannel, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty(ptyTerm, rows, cols, modes); err != nil {
		sess.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	c := &sshChannel{
		sess:   sess,
		stdin:  stdin,
		msgs:   make(chan Message, 64),
		closed: make(chan struct{}),
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go c.pump(stdout, true, &wg)
	go c.pump(stderr, false, &wg)
	go func() {
		wg.Wait()
		sess.Wait()
		c.send(Message{Kind: MsgClose})
		close(c.msgs)
	}()
	return c, nil
}

func (c *sshChannel) pump(r io.Reader, reportEOF bool, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, readBufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !c.send(Message{Kind: MsgData, Data: data}) {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if reportEOF {
					c.send(Message{Kind: MsgEOF})
				}
			} else {
				c.send(Message{Kind: MsgError, Err: err})
			}
			return
		}
	}
}

// send delivers m unless the channel was closed locally.
func (c *sshChannel) send(m Message) bool {
	select {
	case c.msgs <- m:
		return true
	case <-c.closed:
		return false
	}
}

func (c *sshChannel) Write(p []byte) (int, error) { return c.stdin.Write(p) }

func (c *sshChannel) WindowChange(cols, rows int) error {
	return c.sess.WindowChange(rows, cols)
}

func (c *sshChannel) Messages() <-chan Message { return c.msgs }

func (c *sshChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.sess.Close()
		if errors.Is(err, io.EOF) {
			err = nil
		}
	})
	return err
}
