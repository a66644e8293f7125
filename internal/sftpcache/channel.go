package sftpcache

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/litianfu1997/openssh/internal/sshconn"
	"github.com/pkg/sftp"
)

// Channel is one cached SFTP connection. Every request serialises on the
// channel's lock and holds it only for that request.
type Channel struct {
	SessionID string
	HostID    string
	CreatedAt time.Time

	mu       sync.Mutex
	client   *sftp.Client
	conn     *sshconn.Client
	lastUsed atomic.Int64
	closed   atomic.Bool
	// open counts files handed out by Open and Create and not yet closed.
	open atomic.Int32
}

func newChannel(sessionID, hostID string, client *sftp.Client, conn *sshconn.Client) *Channel {
	c := &Channel{
		SessionID: sessionID,
		HostID:    hostID,
		CreatedAt: time.Now(),
		client:    client,
		conn:      conn,
	}
	c.touch()
	return c
}

func (c *Channel) touch() { c.lastUsed.Store(time.Now().UnixNano()) }

// LastUsed is the time of the most recent request.
func (c *Channel) LastUsed() time.Time { return time.Unix(0, c.lastUsed.Load()) }

// OpenFiles is the number of files currently open on the channel. The idle
// sweeper leaves a channel with open files alone, however long it has been
// since the last read or write.
func (c *Channel) OpenFiles() int { return int(c.open.Load()) }

// usable reports whether the channel can still serve requests.
func (c *Channel) usable() bool {
	if c.closed.Load() {
		return false
	}
	select {
	case <-c.conn.Done():
		return false
	default:
		return true
	}
}

// do runs fn with exclusive use of the SFTP client.
func (c *Channel) do(fn func(*sftp.Client) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	return fn(c.client)
}

func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	c.client.Close()
	c.mu.Unlock()
	return c.conn.Close()
}

// File is a remote file whose every read and write takes the channel lock.
type File struct {
	ch     *Channel
	f      *sftp.File
	closed atomic.Bool
}

func (c *Channel) newFile(f *sftp.File) *File {
	c.open.Add(1)
	return &File{ch: c, f: f}
}

func (f *File) Read(p []byte) (int, error) {
	f.ch.mu.Lock()
	defer f.ch.mu.Unlock()
	f.ch.touch()
	return f.f.Read(p)
}

func (f *File) Write(p []byte) (int, error) {
	f.ch.mu.Lock()
	defer f.ch.mu.Unlock()
	f.ch.touch()
	return f.f.Write(p)
}

func (f *File) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	defer f.ch.open.Add(-1)
	f.ch.mu.Lock()
	defer f.ch.mu.Unlock()
	return f.f.Close()
}

// Create truncates or creates path for writing.
func (c *Channel) Create(path string) (io.WriteCloser, error) {
	var f *sftp.File
	err := c.do(func(cl *sftp.Client) (err error) {
		f, err = cl.Create(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.newFile(f), nil
}

// Open opens path for reading.
func (c *Channel) Open(path string) (io.ReadCloser, error) {
	var f *sftp.File
	err := c.do(func(cl *sftp.Client) (err error) {
		f, err = cl.Open(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.newFile(f), nil
}

func (c *Channel) Stat(path string) (os.FileInfo, error) {
	var fi os.FileInfo
	err := c.do(func(cl *sftp.Client) (err error) {
		fi, err = cl.Stat(path)
		return err
	})
	return fi, err
}
