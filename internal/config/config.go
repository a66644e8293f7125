package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	DataPath     string `envconfig:"DATA_PATH" default:""`
	DatabasePath string `envconfig:"DATABASE_PATH" default:""`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:"127.0.0.1:7070"`
	APIToken     string `envconfig:"API_TOKEN" default:""`

	// Transport
	ConnectTimeout     time.Duration `envconfig:"CONNECT_TIMEOUT" default:"20s"`
	KeepaliveInterval  time.Duration `envconfig:"KEEPALIVE_INTERVAL" default:"30s"`
	KeepaliveMaxMissed int           `envconfig:"KEEPALIVE_MAX_MISSED" default:"3"`
	InactivityTimeout  time.Duration `envconfig:"INACTIVITY_TIMEOUT" default:"10m"`
	HostKeyPolicy      string        `envconfig:"HOST_KEY_POLICY" default:"insecure"`
	KnownHostsPath     string        `envconfig:"KNOWN_HOSTS_PATH" default:""`

	// Shell sessions
	InputLockTimeout  time.Duration `envconfig:"INPUT_LOCK_TIMEOUT" default:"5s"`
	ShellPollInterval time.Duration `envconfig:"SHELL_POLL_INTERVAL" default:"100ms"`
	ShellLockRetry    time.Duration `envconfig:"SHELL_LOCK_RETRY" default:"10ms"`
	ShellMaxErrors    int           `envconfig:"SHELL_MAX_ERRORS" default:"10"`
	ScrollbackBytes   int           `envconfig:"SCROLLBACK_BYTES" default:"1048576"`

	// Transfers
	UploadChunkBytes   int           `envconfig:"UPLOAD_CHUNK_BYTES" default:"65536"`
	DownloadChunkBytes int           `envconfig:"DOWNLOAD_CHUNK_BYTES" default:"131072"`
	PausePollInterval  time.Duration `envconfig:"PAUSE_POLL_INTERVAL" default:"200ms"`

	// SFTP
	PreviewMaxBytes int64         `envconfig:"PREVIEW_MAX_BYTES" default:"2097152"`
	SFTPIdleTimeout time.Duration `envconfig:"SFTP_IDLE_TIMEOUT" default:"30m"`

	AuditRetentionDays int `envconfig:"AUDIT_RETENTION_DAYS" default:"90"`
}

const envPrefix = "OPENSSH"

var Cfg Settings

func Load() {
	if err := envconfig.Process(envPrefix, &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	Cfg.resolvePaths()
}

// Defaults returns the settings an empty environment would produce, with
// paths resolved. Tests use it instead of Load.
func Defaults() Settings {
	var s Settings
	// Process only fails on malformed values, and the defaults are well formed.
	_ = envconfig.Process(envPrefix+"_DEFAULTS_ONLY", &s)
	s.resolvePaths()
	return s
}

func (s *Settings) resolvePaths() {
	home, _ := os.UserHomeDir()
	if s.DataPath == "" {
		if home != "" {
			s.DataPath = filepath.Join(home, ".openssh-engine")
		} else {
			s.DataPath = "./data"
		}
	}
	if s.DatabasePath == "" {
		s.DatabasePath = filepath.Join(s.DataPath, "openssh.db")
	}
	if s.LogPath == "" {
		s.LogPath = filepath.Join(s.DataPath, "openssh.log")
	}
	if s.KnownHostsPath == "" && home != "" {
		s.KnownHostsPath = filepath.Join(home, ".ssh", "known_hosts")
	}
}
