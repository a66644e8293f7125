// Package sshconn dials authenticated SSH transports for shell and SFTP
// sessions and keeps them alive.
//
// A Client sends keepalive@openssh.com every KeepaliveInterval and closes
// itself after KeepaliveMaxMissed consecutive unanswered heartbeats, or when
// nothing has been read from the server for InactivityTimeout.
package sshconn

import (
	"context"
	"errors"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/litianfu1997/openssh/internal/apperr"
	"github.com/litianfu1997/openssh/internal/config"
	"github.com/litianfu1997/openssh/internal/hosts"
	"golang.org/x/crypto/ssh"
)

const keepaliveRequest = "keepalive@openssh.com"

var errKeepaliveTimeout = errors.New("keepalive reply timed out")

// Options controls dialing and liveness detection. Zero durations disable
// the corresponding check.
type Options struct {
	ConnectTimeout     time.Duration
	KeepaliveInterval  time.Duration
	KeepaliveMaxMissed int
	InactivityTimeout  time.Duration
	HostKeyCallback    ssh.HostKeyCallback
}

// OptionsFromConfig builds Options from settings, including the host-key policy.
func OptionsFromConfig(s config.Settings) (Options, error) {
	cb, err := HostKeyCallback(s.HostKeyPolicy, s.KnownHostsPath)
	if err != nil {
		return Options{}, err
	}
	return Options{
		ConnectTimeout:     s.ConnectTimeout,
		KeepaliveInterval:  s.KeepaliveInterval,
		KeepaliveMaxMissed: s.KeepaliveMaxMissed,
		InactivityTimeout:  s.InactivityTimeout,
		HostKeyCallback:    cb,
	}, nil
}

// Client is a live SSH transport.
type Client struct {
	client *ssh.Client
	conn   *activityConn
	addr   string
	opts   Options

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the profile's host and authenticates. Missing or rejected
// credentials yield apperr.AuthError; anything else apperr.ConnectError.
func Dial(ctx context.Context, p *hosts.Profile, opts Options) (*Client, error) {
	auth, err := AuthMethods(p)
	if err != nil {
		return nil, err
	}
	hostKey := opts.HostKeyCallback
	if hostKey == nil {
		hostKey = insecureHostKey
	}
	var fingerprint string
	cfg := &ssh.ClientConfig{
		User: p.Username,
		Auth: auth,
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			fingerprint = ssh.FingerprintSHA256(key)
			return hostKey(hostname, remote, key)
		},
		Timeout: opts.ConnectTimeout,
	}

	addr := p.Addr()
	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, apperr.Wrap(apperr.ConnectError, "dial "+addr, err)
	}

	// The handshake has no context of its own.
	stop := context.AfterFunc(ctx, func() { netConn.Close() })
	if opts.ConnectTimeout > 0 {
		netConn.SetDeadline(time.Now().Add(opts.ConnectTimeout))
	}
	conn := newActivityConn(netConn)
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	stopped := stop()
	if err != nil {
		netConn.Close()
		if isAuthFailure(err) {
			return nil, apperr.New(apperr.AuthError, "authenticate "+addr, "Authentication failed: %v", err)
		}
		if !stopped {
			err = errors.Join(ctx.Err(), err)
		}
		return nil, apperr.Wrap(apperr.ConnectError, "ssh handshake with "+addr, err)
	}
	if !stopped {
		sshConn.Close()
		return nil, apperr.Wrap(apperr.ConnectError, "ssh handshake with "+addr, ctx.Err())
	}
	netConn.SetDeadline(time.Time{})

	c := &Client{
		client: ssh.NewClient(sshConn, chans, reqs),
		conn:   conn,
		addr:   addr,
		opts:   opts,
		done:   make(chan struct{}),
	}
	go func() {
		c.client.Wait()
		c.Close()
	}()
	if opts.KeepaliveInterval > 0 {
		go c.keepalive()
	}

	log.Printf("[sshconn] connected to %s as %s (host key %s)", addr, p.Username, fingerprint)
	return c, nil
}

// Test dials and immediately closes, reporting whether the profile works.
func Test(ctx context.Context, p *hosts.Profile, opts Options) error {
	c, err := Dial(ctx, p, opts)
	if err != nil {
		return err
	}
	return c.Close()
}

// SSH returns the underlying client for opening channels.
func (c *Client) SSH() *ssh.Client { return c.client }

func (c *Client) Addr() string { return c.addr }

// Done is closed once the transport is gone, whoever closed it.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close shuts the transport down. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.client.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}

func (c *Client) keepalive() {
	ticker := time.NewTicker(c.opts.KeepaliveInterval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		if c.opts.InactivityTimeout > 0 {
			if idle := c.conn.idleFor(); idle > c.opts.InactivityTimeout {
				log.Printf("[sshconn] %s inactive for %s, closing", c.addr, idle.Round(time.Second))
				c.Close()
				return
			}
		}

		if err := c.ping(); err != nil {
			missed++
			log.Printf("[sshconn] keepalive to %s failed (%d/%d): %v", c.addr, missed, c.opts.KeepaliveMaxMissed, err)
			if missed >= max(1, c.opts.KeepaliveMaxMissed) {
				log.Printf("[sshconn] %s missed %d keepalives, closing", c.addr, missed)
				c.Close()
				return
			}
			continue
		}
		missed = 0
	}
}

// ping sends one heartbeat and waits at most one interval for the reply.
// A negative reply still proves the peer is alive.
func (c *Client) ping() error {
	errc := make(chan error, 1)
	go func() {
		_, _, err := c.client.SendRequest(keepaliveRequest, true, nil)
		errc <- err
	}()
	timer := time.NewTimer(c.opts.KeepaliveInterval)
	defer timer.Stop()
	select {
	case err := <-errc:
		return err
	case <-timer.C:
		return errKeepaliveTimeout
	case <-c.done:
		return net.ErrClosed
	}
}

func isAuthFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods remain")
}

// AuthMethods selects password or key authentication from p.AuthType.
func AuthMethods(p *hosts.Profile) ([]ssh.AuthMethod, error) {
	const op = "authenticate"
	if p.AuthType == hosts.AuthKey {
		if p.PrivateKey == "" {
			return nil, apperr.New(apperr.AuthError, op, "Private key is required for key authentication")
		}
		var (
			signer ssh.Signer
			err    error
		)
		if p.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(p.PrivateKey), []byte(p.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(p.PrivateKey))
		}
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				return nil, apperr.New(apperr.AuthError, op, "Private key is encrypted and no passphrase was given")
			}
			return nil, apperr.New(apperr.AuthError, op, "Failed to decode private key: %v", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	if p.Password == "" {
		return nil, apperr.New(apperr.AuthError, op, "Password is required for password authentication")
	}
	password := p.Password
	return []ssh.AuthMethod{
		ssh.Password(password),
		ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = password
			}
			return answers, nil
		}),
	}, nil
}
