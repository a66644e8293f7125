// Package sshtest runs an in-process SSH server for tests.
//
// The server accepts one user with either a password or a generated key. A
// shell request starts a line echo: every input line comes back prefixed
// with "echo:", "flood" streams FloodLines numbered lines, and "exit" closes
// the channel. window-change requests are reported as "resize:COLSxROWS".
// The "sftp" subsystem is served by pkg/sftp rooted at Server.Root.
package sshtest

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const (
	User     = "tester"
	Password = "correct-horse"
	Banner   = "Welcome to sshtest\r\n"

	FloodLines = 2000
)

type Server struct {
	Host string
	Port int
	Root string

	HostKey ssh.PublicKey

	// ClientKeyPEM is authorized for User. EncryptedKeyPEM is the same key
	// type sealed with KeyPassphrase and is authorized too.
	ClientKeyPEM    []byte
	EncryptedKeyPEM []byte
	KeyPassphrase   string

	listener net.Listener
	config   *ssh.ServerConfig

	mu       sync.Mutex
	conns    map[*ssh.ServerConn]struct{}
	channels map[ssh.Channel]struct{}

	keepalives atomic.Int64
	wg         sync.WaitGroup
}

// NewServer starts a server on 127.0.0.1 and stops it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	hostPEM, _, err := GenerateKeyPair("")
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := ssh.ParsePrivateKey(hostPEM)
	if err != nil {
		t.Fatalf("parse host key: %v", err)
	}
	clientPEM, clientPub, err := GenerateKeyPair("")
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	const passphrase = "open sesame"
	encPEM, encPub, err := GenerateKeyPair(passphrase)
	if err != nil {
		t.Fatalf("generate encrypted client key: %v", err)
	}

	s := &Server{
		Root:            t.TempDir(),
		HostKey:         hostSigner.PublicKey(),
		ClientKeyPEM:    clientPEM,
		EncryptedKeyPEM: encPEM,
		KeyPassphrase:   passphrase,
		conns:           make(map[*ssh.ServerConn]struct{}),
		channels:        make(map[ssh.Channel]struct{}),
	}

	authorized := map[string]bool{
		ssh.FingerprintSHA256(clientPub): true,
		ssh.FingerprintSHA256(encPub):    true,
	}
	s.config = &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == User && string(pass) == Password {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if c.User() == User && authorized[ssh.FingerprintSHA256(key)] {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key")
		},
	}
	s.config.AddHostKey(hostSigner)

	s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := s.listener.Addr().(*net.TCPAddr)
	s.Host, s.Port = addr.IP.String(), addr.Port

	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ActiveConns is the number of SSH connections currently open.
func (s *Server) ActiveConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Keepalives counts keepalive@openssh.com requests received.
func (s *Server) Keepalives() int64 { return s.keepalives.Load() }

// CloseChannels closes every open session channel from the server side,
// leaving the transport connections up.
func (s *Server) CloseChannels() {
	s.mu.Lock()
	chans := make([]ssh.Channel, 0, len(s.channels))
	for ch := range s.channels {
		chans = append(chans, ch)
	}
	s.mu.Unlock()
	for _, ch := range chans {
		ch.Close()
	}
}

// Close stops accepting and drops every connection.
func (s *Server) Close() {
	s.listener.Close()
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(netConn)
		}()
	}
}

func (s *Server) handleConn(netConn net.Conn) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		netConn.Close()
		return
	}
	s.mu.Lock()
	s.conns[sshConn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, sshConn)
		s.mu.Unlock()
		sshConn.Close()
	}()

	go func() {
		for req := range reqs {
			if req.Type == "keepalive@openssh.com" {
				s.keepalives.Add(1)
			}
			if req.WantReply {
				req.Reply(req.Type == "keepalive@openssh.com", nil)
			}
		}
	}()

	var wg sync.WaitGroup
	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		s.mu.Lock()
		s.channels[ch] = struct{}{}
		s.mu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleSession(ch, requests)
			s.mu.Lock()
			delete(s.channels, ch)
			s.mu.Unlock()
		}()
	}
	wg.Wait()
}

func (s *Server) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()

	var hasPTY bool
	for req := range requests {
		switch req.Type {
		case "pty-req":
			hasPTY = true
			req.Reply(true, nil)

		case "window-change":
			if len(req.Payload) >= 8 {
				cols := binary.BigEndian.Uint32(req.Payload[0:4])
				rows := binary.BigEndian.Uint32(req.Payload[4:8])
				fmt.Fprintf(ch, "resize:%dx%d\n", cols, rows)
			}
			if req.WantReply {
				req.Reply(true, nil)
			}

		case "shell":
			req.Reply(true, nil)
			ch.Write([]byte(Banner))
			fmt.Fprintf(ch, "PTY:%t\n", hasPTY)
			go echo(ch)

		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			go func() {
				server, err := sftp.NewServer(ch, sftp.WithServerWorkingDirectory(s.Root))
				if err != nil {
					ch.Close()
					return
				}
				server.Serve()
				server.Close()
				ch.Close()
			}()

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func echo(ch ssh.Channel) {
	scanner := bufio.NewScanner(ch)
	for scanner.Scan() {
		line := scanner.Text()
		switch line {
		case "exit":
			ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
			ch.Close()
			return
		case "flood":
			for i := 0; i < FloodLines; i++ {
				if _, err := fmt.Fprintf(ch, "flood-%04d\n", i); err != nil {
					return
				}
			}
		default:
			if _, err := fmt.Fprintf(ch, "echo:%s\n", line); err != nil {
				return
			}
		}
	}
}
