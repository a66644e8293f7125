// Package sftpcache keeps one SFTP connection per session id, created on
// first use and reused by every file operation on that session.
//
// Each session id is bound to the host it was connected to. When a cached
// connection has died, the next operation re-resolves the host (and its
// credentials) through that binding and reconnects. A binding lives until
// Disconnect or until the idle sweeper evicts the session for inactivity.
package sftpcache

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/litianfu1997/openssh/internal/apperr"
	"github.com/litianfu1997/openssh/internal/config"
	"github.com/litianfu1997/openssh/internal/hosts"
	"github.com/litianfu1997/openssh/internal/logging"
	"github.com/litianfu1997/openssh/internal/sshconn"
	"github.com/pkg/sftp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// HostResolver looks up connection profiles with secrets decrypted.
type HostResolver interface {
	Get(ctx context.Context, id string) (*hosts.Profile, error)
}

type Options struct {
	SSH             sshconn.Options
	PreviewMaxBytes int64
	IdleTimeout     time.Duration
}

func OptionsFromConfig(s config.Settings, ssh sshconn.Options) Options {
	return Options{SSH: ssh, PreviewMaxBytes: s.PreviewMaxBytes, IdleTimeout: s.SFTPIdleTimeout}
}

// Cache is the SFTP connection cache.
type Cache struct {
	hosts HostResolver
	opts  Options

	mu       sync.RWMutex
	channels map[string]*Channel
	bindings map[string]string // session id -> host id

	group singleflight.Group
}

func New(resolver HostResolver, opts Options) *Cache {
	if opts.PreviewMaxBytes <= 0 {
		opts.PreviewMaxBytes = 2 * 1024 * 1024
	}
	return &Cache{
		hosts:    resolver,
		opts:     opts,
		channels: make(map[string]*Channel),
		bindings: make(map[string]string),
	}
}

// Connect binds sessionID to hostID and makes sure a live channel exists.
// A live channel already bound to the same host is reused.
func (c *Cache) Connect(ctx context.Context, sessionID, hostID string) error {
	if sessionID == "" {
		return apperr.New(apperr.Invalid, "connect_transfer_session", "session id is required")
	}
	c.mu.Lock()
	if prev, ok := c.bindings[sessionID]; ok && prev != hostID {
		if ch := c.channels[sessionID]; ch != nil {
			delete(c.channels, sessionID)
			go ch.Close()
		}
	}
	c.bindings[sessionID] = hostID
	c.mu.Unlock()

	_, err := c.Channel(ctx, sessionID)
	if err != nil {
		c.mu.Lock()
		if c.bindings[sessionID] == hostID && c.channels[sessionID] == nil {
			delete(c.bindings, sessionID)
		}
		c.mu.Unlock()
	}
	return err
}

// Channel returns the live channel for sessionID, reconnecting through the
// session's host binding if the cached one is gone.
func (c *Cache) Channel(ctx context.Context, sessionID string) (*Channel, error) {
	c.mu.RLock()
	ch := c.channels[sessionID]
	hostID, bound := c.bindings[sessionID]
	c.mu.RUnlock()

	if ch != nil && ch.usable() {
		return ch, nil
	}
	if !bound {
		return nil, apperr.New(apperr.NotFound, "sftp", "transfer session %q not found", sessionID)
	}

	v, err, _ := c.group.Do(sessionID, func() (any, error) {
		c.mu.RLock()
		cur := c.channels[sessionID]
		c.mu.RUnlock()
		if cur != nil && cur.usable() {
			return cur, nil
		}
		return c.open(ctx, sessionID, hostID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Channel), nil
}

func (c *Cache) open(ctx context.Context, sessionID, hostID string) (*Channel, error) {
	start := time.Now()
	p, err := c.hosts.Get(ctx, hostID)
	if err != nil {
		return nil, err
	}
	conn, err := sshconn.Dial(ctx, p, c.opts.SSH)
	if err != nil {
		return nil, err
	}
	client, err := sftp.NewClient(conn.SSH())
	if err != nil {
		conn.Close()
		return nil, apperr.Wrap(apperr.ConnectError, "start sftp subsystem on "+p.Addr(), err)
	}
	ch := newChannel(sessionID, hostID, client, conn)

	c.mu.Lock()
	old := c.channels[sessionID]
	c.channels[sessionID] = ch
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}

	log.Printf("[sftp] session %s connected to %s in %s", logging.Sanitize(sessionID), p.Addr(), time.Since(start).Round(time.Millisecond))
	return ch, nil
}

// Disconnect closes the session's channel and forgets its host binding.
// Unknown ids are not an error.
func (c *Cache) Disconnect(sessionID string) error {
	c.mu.Lock()
	ch := c.channels[sessionID]
	delete(c.channels, sessionID)
	delete(c.bindings, sessionID)
	c.mu.Unlock()

	if ch == nil {
		return nil
	}
	log.Printf("[sftp] session %s disconnected", logging.Sanitize(sessionID))
	return ch.Close()
}

// EvictIdle sweeps the cache. Channels whose transport has died are dropped
// but keep their host binding, so the next operation reconnects. Live channels
// unused for longer than IdleTimeout are closed and lose their binding, unless
// a file is still open on them. It returns the number of channels removed.
func (c *Cache) EvictIdle(now time.Time) int {
	var dead, idle []*Channel
	c.mu.Lock()
	for id, ch := range c.channels {
		switch {
		case !ch.usable():
			dead = append(dead, ch)
			delete(c.channels, id)
		case ch.OpenFiles() > 0:
		case c.opts.IdleTimeout > 0 && now.Sub(ch.LastUsed()) > c.opts.IdleTimeout:
			idle = append(idle, ch)
			delete(c.channels, id)
			delete(c.bindings, id)
		}
	}
	c.mu.Unlock()

	for _, ch := range dead {
		log.Printf("[sftp] dropping dead channel for session %s, binding kept", logging.Sanitize(ch.SessionID))
		ch.Close()
	}
	for _, ch := range idle {
		log.Printf("[sftp] evicting session %s (idle since %s)", logging.Sanitize(ch.SessionID), ch.LastUsed().Format(time.RFC3339))
		ch.Close()
	}
	return len(dead) + len(idle)
}

// CloseAll closes every channel and clears all bindings.
func (c *Cache) CloseAll() {
	c.mu.Lock()
	all := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		all = append(all, ch)
	}
	c.channels = make(map[string]*Channel)
	c.bindings = make(map[string]string)
	c.mu.Unlock()

	var g errgroup.Group
	for _, ch := range all {
		g.Go(ch.Close)
	}
	g.Wait()
}

// SessionInfo describes a cached session.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	HostID    string    `json:"host_id"`
	Connected bool      `json:"connected"`
	LastUsed  time.Time `json:"last_used,omitempty"`
}

func (c *Cache) Sessions() []SessionInfo {
	c.mu.RLock()
	out := make([]SessionInfo, 0, len(c.bindings))
	for sid, hid := range c.bindings {
		info := SessionInfo{SessionID: sid, HostID: hid}
		if ch := c.channels[sid]; ch != nil {
			info.Connected = ch.usable()
			info.LastUsed = ch.LastUsed()
		}
		out = append(out, info)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// HostFor returns the host a session is bound to.
func (c *Cache) HostFor(sessionID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.bindings[sessionID]
	return h, ok
}

func (c *Cache) run(ctx context.Context, op, sessionID, p string, fn func(*sftp.Client) error) error {
	ch, err := c.Channel(ctx, sessionID)
	if err != nil {
		return err
	}
	start := time.Now()
	err = ch.do(fn)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		log.Printf("[sftp] SLOW %s %s on session %s took %s", op, logging.Sanitize(p), logging.Sanitize(sessionID), elapsed)
	}
	if err != nil {
		return classifyErr(op, p, err)
	}
	return nil
}

// classifyErr maps SFTP status errors onto error kinds.
func classifyErr(op, p string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	var kind apperr.Kind = apperr.IoError
	if errors.Is(err, os.ErrNotExist) {
		kind = apperr.NotFound
	}
	return &apperr.Error{Kind: kind, Op: op + " " + p, Err: err}
}

func (c *Cache) ListDir(ctx context.Context, sessionID, dir string) ([]FileEntry, error) {
	var entries []FileEntry
	err := c.run(ctx, "list_dir", sessionID, dir, func(cl *sftp.Client) error {
		infos, err := cl.ReadDir(dir)
		if err != nil {
			return err
		}
		entries = make([]FileEntry, 0, len(infos))
		for _, fi := range infos {
			entries = append(entries, entryFromInfo(fi.Name(), fi))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

// Canonicalize resolves p to an absolute remote path.
func (c *Cache) Canonicalize(ctx context.Context, sessionID, p string) (string, error) {
	var out string
	err := c.run(ctx, "canonicalize", sessionID, p, func(cl *sftp.Client) (err error) {
		out, err = cl.RealPath(p)
		return err
	})
	return out, err
}

func (c *Cache) Stat(ctx context.Context, sessionID, p string) (FileEntry, error) {
	var e FileEntry
	err := c.run(ctx, "stat", sessionID, p, func(cl *sftp.Client) error {
		fi, err := cl.Stat(p)
		if err != nil {
			return err
		}
		e = entryFromInfo(baseName(p), fi)
		return nil
	})
	return e, err
}

func (c *Cache) Rename(ctx context.Context, sessionID, oldPath, newPath string) error {
	return c.run(ctx, "rename", sessionID, oldPath, func(cl *sftp.Client) error {
		return cl.Rename(oldPath, newPath)
	})
}

// Move renames oldPath to newPath, or into newPath when it is an existing
// directory.
func (c *Cache) Move(ctx context.Context, sessionID, oldPath, newPath string) error {
	return c.run(ctx, "move", sessionID, oldPath, func(cl *sftp.Client) error {
		dst := newPath
		if fi, err := cl.Stat(newPath); err == nil && fi.IsDir() {
			dst = path.Join(newPath, path.Base(oldPath))
		}
		return cl.Rename(oldPath, dst)
	})
}

// Delete removes a file, or an empty directory.
func (c *Cache) Delete(ctx context.Context, sessionID, p string) error {
	return c.run(ctx, "delete", sessionID, p, func(cl *sftp.Client) error {
		err := cl.Remove(p)
		if err == nil {
			return nil
		}
		if derr := cl.RemoveDirectory(p); derr == nil {
			return nil
		}
		return err
	})
}

func (c *Cache) Mkdir(ctx context.Context, sessionID, p string) error {
	return c.run(ctx, "mkdir", sessionID, p, func(cl *sftp.Client) error {
		return cl.Mkdir(p)
	})
}

func (c *Cache) readCapped(ctx context.Context, op, sessionID, p string) ([]byte, error) {
	var data []byte
	limit := c.opts.PreviewMaxBytes
	err := c.run(ctx, op, sessionID, p, func(cl *sftp.Client) error {
		fi, err := cl.Stat(p)
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return apperr.New(apperr.Invalid, op, "%s is a directory", p)
		}
		if fi.Size() > limit {
			return tooLarge(op, p, fi.Size(), limit)
		}
		f, err := cl.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		data, err = io.ReadAll(io.LimitReader(f, limit+1))
		if err != nil {
			return err
		}
		if int64(len(data)) > limit {
			return tooLarge(op, p, int64(len(data)), limit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func tooLarge(op, p string, size, limit int64) error {
	return apperr.New(apperr.Invalid, op, "%s is too large for preview (%s, max %s)",
		p, units.HumanSize(float64(size)), units.HumanSize(float64(limit)))
}

// ReadSmallFile returns a size-capped file classified as image, text or
// neither.
func (c *Cache) ReadSmallFile(ctx context.Context, sessionID, p string) (Preview, error) {
	data, err := c.readCapped(ctx, "read_small_file", sessionID, p)
	if err != nil {
		return Preview{}, err
	}
	return buildPreview(p, data), nil
}

// ReadTextFile returns a size-capped file that must be text.
func (c *Cache) ReadTextFile(ctx context.Context, sessionID, p string) (string, error) {
	data, err := c.readCapped(ctx, "read_text_file", sessionID, p)
	if err != nil {
		return "", err
	}
	if !looksLikeText(data) {
		return "", apperr.New(apperr.Invalid, "read_text_file", "%s is not a text file", p)
	}
	return string(data), nil
}

// WriteSmallFile replaces p with content.
func (c *Cache) WriteSmallFile(ctx context.Context, sessionID, p string, content []byte) error {
	return c.run(ctx, "write_small_file", sessionID, p, func(cl *sftp.Client) error {
		f, err := cl.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
		if err != nil {
			return err
		}
		if _, err := f.Write(content); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
}

