// Package transfer moves files between the local disk and a remote SFTP
// session in fixed-size chunks.
//
// Every transfer is registered under a caller-chosen id for exactly as long
// as it runs. Before each chunk the loop reads the transfer's ControlFlag:
// Paused makes it poll without moving data, Cancelled makes it stop without
// a further progress event. Pause, Resume and Cancel only write the flag, so
// they never wait on the SFTP channel.
package transfer

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/litianfu1997/openssh/internal/apperr"
	"github.com/litianfu1997/openssh/internal/config"
	"github.com/litianfu1997/openssh/internal/events"
	"github.com/litianfu1997/openssh/internal/logging"
	"github.com/litianfu1997/openssh/internal/sftpcache"
)

// RemoteFS is the slice of an SFTP channel a transfer needs.
type RemoteFS interface {
	Create(path string) (io.WriteCloser, error)
	Open(path string) (io.ReadCloser, error)
	Stat(path string) (os.FileInfo, error)
}

// Source resolves the SFTP channel for a session, connecting if needed.
type Source interface {
	RemoteFS(ctx context.Context, sessionID string) (RemoteFS, error)
}

type cacheSource struct{ c *sftpcache.Cache }

func (s cacheSource) RemoteFS(ctx context.Context, sessionID string) (RemoteFS, error) {
	ch, err := s.c.Channel(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// FromCache uses the channels cached in c.
func FromCache(c *sftpcache.Cache) Source { return cacheSource{c} }

const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

type Options struct {
	UploadChunk   int
	DownloadChunk int
	PausePoll     time.Duration
}

func DefaultOptions() Options {
	return Options{UploadChunk: 64 * 1024, DownloadChunk: 128 * 1024, PausePoll: 200 * time.Millisecond}
}

func OptionsFromConfig(s config.Settings) Options {
	return Options{
		UploadChunk:   s.UploadChunkBytes,
		DownloadChunk: s.DownloadChunkBytes,
		PausePoll:     s.PausePollInterval,
	}
}

// Result describes a finished transfer, successful or not.
type Result struct {
	TransferID string
	SessionID  string
	Direction  string
	LocalPath  string
	RemotePath string
	Bytes      int64
	TotalBytes int64
	Duration   time.Duration
	Err        error
}

// Observer is told about every transfer that ran.
type Observer func(Result)

type Engine struct {
	src    Source
	events events.Emitter
	opts   Options
	flags  *Flags

	observer Observer
}

func New(src Source, emitter events.Emitter, opts Options) *Engine {
	def := DefaultOptions()
	if opts.UploadChunk <= 0 {
		opts.UploadChunk = def.UploadChunk
	}
	if opts.DownloadChunk <= 0 {
		opts.DownloadChunk = def.DownloadChunk
	}
	if opts.PausePoll <= 0 {
		opts.PausePoll = def.PausePoll
	}
	if emitter == nil {
		emitter = events.Discard
	}
	return &Engine{src: src, events: emitter, opts: opts, flags: NewFlags()}
}

// SetObserver installs fn. Call it before the first transfer starts.
func (e *Engine) SetObserver(fn Observer) { e.observer = fn }

func (e *Engine) Pause(transferID string) bool  { return e.flags.Set(transferID, Paused) }
func (e *Engine) Resume(transferID string) bool { return e.flags.Set(transferID, Running) }
func (e *Engine) Cancel(transferID string) bool { return e.flags.Set(transferID, Cancelled) }

// Active lists the transfers in flight.
func (e *Engine) Active() []Status { return e.flags.Snapshot() }

// Upload copies localPath to remotePath. A remotePath ending in "/" names a
// directory and the local base name is appended.
func (e *Engine) Upload(ctx context.Context, sessionID, transferID, localPath, remotePath string) (int64, error) {
	if strings.HasSuffix(remotePath, "/") {
		remotePath += filepath.Base(localPath)
	}
	t := &job{
		e:         e,
		direction: DirectionUpload,
		topic:     events.TopicUploadProgress,
		chunk:     e.opts.UploadChunk,
		progress: events.TransferProgress{
			TransferID: transferID,
			SessionID:  sessionID,
			RemotePath: remotePath,
		},
		localPath: localPath,
	}
	return t.run(ctx, func(fs RemoteFS) (io.Reader, io.Writer, func(ok bool) error, error) {
		src, err := os.Open(localPath)
		if err != nil {
			return nil, nil, nil, ioErr("open "+localPath, err)
		}
		if fi, err := src.Stat(); err == nil {
			t.progress.TotalBytes = fi.Size()
		}
		dst, err := fs.Create(remotePath)
		if err != nil {
			src.Close()
			return nil, nil, nil, ioErr("create "+remotePath, err)
		}
		finish := func(bool) error {
			src.Close()
			if err := dst.Close(); err != nil {
				return ioErr("close "+remotePath, err)
			}
			return nil
		}
		return src, dst, finish, nil
	})
}

// Download copies remotePath to localPath. The local file is removed if the
// transfer is cancelled or fails.
func (e *Engine) Download(ctx context.Context, sessionID, transferID, remotePath, localPath string) (int64, error) {
	t := &job{
		e:         e,
		direction: DirectionDownload,
		topic:     events.TopicDownloadProgress,
		chunk:     e.opts.DownloadChunk,
		progress: events.TransferProgress{
			TransferID: transferID,
			SessionID:  sessionID,
			RemotePath: remotePath,
		},
		localPath: localPath,
	}
	return t.run(ctx, func(fs RemoteFS) (io.Reader, io.Writer, func(ok bool) error, error) {
		// Size is best effort; an unknown total is reported as 0.
		if fi, err := fs.Stat(remotePath); err == nil {
			t.progress.TotalBytes = fi.Size()
		}
		src, err := fs.Open(remotePath)
		if err != nil {
			return nil, nil, nil, ioErr("open "+remotePath, err)
		}
		dst, err := os.Create(localPath)
		if err != nil {
			src.Close()
			return nil, nil, nil, ioErr("create "+localPath, err)
		}
		finish := func(ok bool) error {
			src.Close()
			err := dst.Close()
			if !ok {
				os.Remove(localPath)
				return nil
			}
			if err != nil {
				os.Remove(localPath)
				return ioErr("close "+localPath, err)
			}
			return nil
		}
		return src, dst, finish, nil
	})
}

// opener prepares both ends of a transfer. finish is called exactly once
// with whether the copy succeeded.
type opener func(fs RemoteFS) (src io.Reader, dst io.Writer, finish func(ok bool) error, err error)

type job struct {
	e         *Engine
	direction string
	topic     string
	chunk     int
	progress  events.TransferProgress
	localPath string
}

func (t *job) run(ctx context.Context, open opener) (int64, error) {
	id := t.progress.TransferID
	if id == "" {
		return 0, apperr.New(apperr.Invalid, t.direction, "transfer id is required")
	}
	flag, err := t.e.flags.Register(id)
	if err != nil {
		return 0, err
	}
	defer t.e.flags.Remove(id, flag)

	start := time.Now()
	err = t.transfer(ctx, flag, open)
	t.report(start, err)
	return t.progress.BytesTransferred, err
}

func (t *job) transfer(ctx context.Context, flag *ControlFlag, open opener) error {
	fs, err := t.e.src.RemoteFS(ctx, t.progress.SessionID)
	if err != nil {
		return err
	}
	src, dst, finish, err := open(fs)
	if err != nil {
		return err
	}
	err = t.pump(ctx, flag, src, dst)
	if ferr := finish(err == nil); err == nil {
		err = ferr
	}
	return err
}

// pump moves one chunk per iteration, checking flag first.
func (t *job) pump(ctx context.Context, flag *ControlFlag, src io.Reader, dst io.Writer) error {
	buf := make([]byte, t.chunk)
	start := time.Now()
	for {
		switch flag.Load() {
		case Cancelled:
			return t.cancelled()
		case Paused:
			if err := t.sleep(ctx); err != nil {
				return err
			}
			continue
		}
		if ctx.Err() != nil {
			return t.cancelled()
		}

		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return t.writeErr(err)
			}
			t.progress.BytesTransferred += int64(n)
			secs := max(1, int64(time.Since(start)/time.Second))
			t.progress.Speed = t.progress.BytesTransferred / secs
			t.e.events.Emit(t.topic, t.progress)
		}
		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF), errors.Is(rerr, io.ErrUnexpectedEOF):
			return nil
		default:
			return t.readErr(rerr)
		}
	}
}

func (t *job) sleep(ctx context.Context) error {
	timer := time.NewTimer(t.e.opts.PausePoll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return t.cancelled()
	case <-timer.C:
		return nil
	}
}

func (t *job) cancelled() error {
	return apperr.New(apperr.Cancelled, t.direction, "transfer %s cancelled", t.progress.TransferID)
}

func (t *job) readErr(err error) error {
	if t.direction == DirectionUpload {
		return ioErr("read "+t.localPath, err)
	}
	return ioErr("read "+t.progress.RemotePath, err)
}

func (t *job) writeErr(err error) error {
	if t.direction == DirectionUpload {
		return ioErr("write "+t.progress.RemotePath, err)
	}
	return ioErr("write "+t.localPath, err)
}

func (t *job) report(start time.Time, err error) {
	p := t.progress
	elapsed := time.Since(start)
	switch {
	case err == nil:
		log.Printf("[transfer] %s %s of %s (local %s) done: %s in %s", t.direction, p.TransferID,
			logging.Sanitize(p.RemotePath), logging.Sanitize(t.localPath),
			units.HumanSize(float64(p.BytesTransferred)), elapsed.Round(time.Millisecond))
	case errors.Is(err, apperr.Cancelled):
		log.Printf("[transfer] %s %s cancelled after %s", t.direction, p.TransferID, units.HumanSize(float64(p.BytesTransferred)))
	default:
		log.Printf("[transfer] %s %s failed after %s: %v", t.direction, p.TransferID, units.HumanSize(float64(p.BytesTransferred)), err)
	}
	if t.e.observer != nil {
		t.e.observer(Result{
			TransferID: p.TransferID,
			SessionID:  p.SessionID,
			Direction:  t.direction,
			LocalPath:  t.localPath,
			RemotePath: p.RemotePath,
			Bytes:      p.BytesTransferred,
			TotalBytes: p.TotalBytes,
			Duration:   elapsed,
			Err:        err,
		})
	}
}

// ioErr classifies a local or remote failure, keeping kinds already set.
func ioErr(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	kind := apperr.IoError
	if errors.Is(err, os.ErrNotExist) {
		kind = apperr.NotFound
	}
	return &apperr.Error{Kind: kind, Op: op, Err: err}
}
