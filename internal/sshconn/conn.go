package sshconn

import (
	"net"
	"sync/atomic"
	"time"
)

// activityConn records when bytes last arrived from the server.
type activityConn struct {
	net.Conn
	lastRead atomic.Int64
}

func newActivityConn(c net.Conn) *activityConn {
	ac := &activityConn{Conn: c}
	ac.lastRead.Store(time.Now().UnixNano())
	return ac
}

func (c *activityConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.lastRead.Store(time.Now().UnixNano())
	}
	return n, err
}

func (c *activityConn) idleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastRead.Load()))
}
