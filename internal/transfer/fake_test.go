package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/litianfu1997/openssh/internal/events"
)

// memFS is an in-memory RemoteFS.
type memFS struct {
	mu    sync.Mutex
	files map[string][]byte

	// readFailAt makes reads of any file fail once that many bytes were read.
	readFailAt int
}

func newMemFS() *memFS { return &memFS{files: make(map[string][]byte)} }

func (m *memFS) put(p string, data []byte) {
	m.mu.Lock()
	m.files[p] = data
	m.mu.Unlock()
}

func (m *memFS) get(p string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[p]
	return b, ok
}

func (m *memFS) Create(p string) (io.WriteCloser, error) {
	m.put(p, nil)
	return &memWriter{fs: m, path: p}, nil
}

func (m *memFS) Open(p string) (io.ReadCloser, error) {
	data, ok := m.get(p)
	if !ok {
		return nil, os.ErrNotExist
	}
	var r io.Reader = bytes.NewReader(data)
	if m.readFailAt > 0 {
		r = io.MultiReader(io.LimitReader(r, int64(m.readFailAt)), errReader{})
	}
	return io.NopCloser(r), nil
}

func (m *memFS) Stat(p string) (os.FileInfo, error) {
	data, ok := m.get(p)
	if !ok {
		return nil, os.ErrNotExist
	}
	return memInfo{name: path.Base(p), size: int64(len(data))}, nil
}

type memWriter struct {
	fs   *memFS
	path string
}

func (w *memWriter) Write(p []byte) (int, error) {
	w.fs.mu.Lock()
	w.fs.files[w.path] = append(w.fs.files[w.path], p...)
	w.fs.mu.Unlock()
	return len(p), nil
}

func (w *memWriter) Close() error { return nil }

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection lost") }

type memInfo struct {
	name string
	size int64
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) Mode() os.FileMode  { return 0644 }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return false }
func (i memInfo) Sys() any           { return nil }

// staticSource serves one RemoteFS for every session, or err.
type staticSource struct {
	fs  RemoteFS
	err error
}

func (s staticSource) RemoteFS(context.Context, string) (RemoteFS, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.fs, nil
}

// hookEmitter records events and calls onProgress with the running count of
// progress events, inline on the transfer goroutine.
type hookEmitter struct {
	rec        events.Recorder
	mu         sync.Mutex
	count      int
	onProgress func(n int)
}

func (h *hookEmitter) Emit(topic string, payload any) {
	h.rec.Emit(topic, payload)
	h.mu.Lock()
	h.count++
	n := h.count
	h.mu.Unlock()
	if h.onProgress != nil {
		h.onProgress(n)
	}
}

func (h *hookEmitter) seen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func fastOptions() Options {
	return Options{UploadChunk: 64 * 1024, DownloadChunk: 128 * 1024, PausePoll: 5 * time.Millisecond}
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*31 + i/251)
	}
	return b
}
