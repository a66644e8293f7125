package database

import "time"

// Host is a stored connection profile. Password, PrivateKey and Passphrase
// hold vault-sealed values, never plaintext written by this program.
type Host struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	Name          string     `gorm:"not null" json:"name"`
	Host          string     `gorm:"not null" json:"host"`
	Port          int        `gorm:"not null;default:22" json:"port"`
	Username      string     `gorm:"not null" json:"username"`
	AuthType      string     `gorm:"not null;default:password" json:"auth_type"`
	Password      string     `json:"-"`
	PrivateKey    string     `json:"-"`
	Passphrase    string     `json:"-"`
	IdentityFile  string     `json:"identity_file"`
	GroupName     string     `gorm:"index" json:"group_name"`
	Tags          string     `gorm:"type:text;default:'[]'" json:"-"` // JSON array of strings
	Description   string     `json:"description"`
	LastConnected *time.Time `json:"last_connected"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AuditLog records session and transfer lifecycle events.
type AuditLog struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  string    `gorm:"index" json:"session_id"`
	HostID     string    `gorm:"index" json:"host_id"`
	HostName   string    `json:"host_name"`
	EventType  string    `gorm:"index;not null" json:"event_type"`
	Details    string    `json:"details"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `gorm:"index;autoCreateTime" json:"created_at"`
}
