package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	s := Defaults()

	if s.KeepaliveInterval != 30*time.Second {
		t.Errorf("KeepaliveInterval = %v, want 30s", s.KeepaliveInterval)
	}
	if s.KeepaliveMaxMissed != 3 {
		t.Errorf("KeepaliveMaxMissed = %d, want 3", s.KeepaliveMaxMissed)
	}
	if s.InactivityTimeout != 10*time.Minute {
		t.Errorf("InactivityTimeout = %v, want 10m", s.InactivityTimeout)
	}
	if s.UploadChunkBytes != 64*1024 || s.DownloadChunkBytes != 128*1024 {
		t.Errorf("chunk sizes = %d/%d", s.UploadChunkBytes, s.DownloadChunkBytes)
	}
	if s.PreviewMaxBytes != 2*1024*1024 {
		t.Errorf("PreviewMaxBytes = %d", s.PreviewMaxBytes)
	}
	if s.HostKeyPolicy != "insecure" {
		t.Errorf("HostKeyPolicy = %q", s.HostKeyPolicy)
	}
	if s.DatabasePath != filepath.Join(s.DataPath, "openssh.db") {
		t.Errorf("DatabasePath = %q, DataPath = %q", s.DatabasePath, s.DataPath)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPENSSH_DATA_PATH", dir)
	t.Setenv("OPENSSH_INPUT_LOCK_TIMEOUT", "250ms")
	t.Setenv("OPENSSH_HOST_KEY_POLICY", "known_hosts")

	old := Cfg
	t.Cleanup(func() { Cfg = old })

	Load()

	if Cfg.DataPath != dir {
		t.Errorf("DataPath = %q, want %q", Cfg.DataPath, dir)
	}
	if Cfg.LogPath != filepath.Join(dir, "openssh.log") {
		t.Errorf("LogPath = %q", Cfg.LogPath)
	}
	if Cfg.InputLockTimeout != 250*time.Millisecond {
		t.Errorf("InputLockTimeout = %v", Cfg.InputLockTimeout)
	}
	if Cfg.HostKeyPolicy != "known_hosts" {
		t.Errorf("HostKeyPolicy = %q", Cfg.HostKeyPolicy)
	}
}
