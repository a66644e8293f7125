// Package hosts stores connection profiles. Secrets are sealed by the vault
// on write and opened on read, so callers only ever see plaintext profiles.
package hosts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/litianfu1997/openssh/internal/apperr"
	"github.com/litianfu1997/openssh/internal/crypto"
	"github.com/litianfu1997/openssh/internal/database"
	"gorm.io/gorm"
)

const (
	AuthPassword = "password"
	AuthKey      = "key"

	DefaultPort = 22
)

// Profile is a decrypted host configuration.
type Profile struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Host          string     `json:"host"`
	Port          int        `json:"port"`
	Username      string     `json:"username"`
	AuthType      string     `json:"auth_type"`
	Password      string     `json:"password,omitempty"`
	PrivateKey    string     `json:"private_key,omitempty"`
	Passphrase    string     `json:"passphrase,omitempty"`
	IdentityFile  string     `json:"identity_file,omitempty"`
	GroupName     string     `json:"group_name,omitempty"`
	Tags          []string   `json:"tags"`
	Description   string     `json:"description,omitempty"`
	LastConnected *time.Time `json:"last_connected,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Addr returns host:port.
func (p *Profile) Addr() string {
	port := p.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("%s:%d", p.Host, port)
}

// Redacted returns a copy with secrets masked, for API responses.
func (p Profile) Redacted() Profile {
	p.Password = crypto.Mask(p.Password)
	p.PrivateKey = crypto.Mask(p.PrivateKey)
	p.Passphrase = crypto.Mask(p.Passphrase)
	return p
}

// Validate normalises defaults and rejects incomplete profiles.
func (p *Profile) Validate() error {
	p.Host = strings.TrimSpace(p.Host)
	p.Username = strings.TrimSpace(p.Username)
	if p.Host == "" {
		return apperr.New(apperr.Invalid, "validate host", "host is required")
	}
	if p.Username == "" {
		return apperr.New(apperr.Invalid, "validate host", "username is required")
	}
	if p.Port == 0 {
		p.Port = DefaultPort
	}
	if p.Port < 1 || p.Port > 65535 {
		return apperr.New(apperr.Invalid, "validate host", "port %d out of range", p.Port)
	}
	switch p.AuthType {
	case "":
		p.AuthType = AuthPassword
	case AuthPassword, AuthKey:
	default:
		return apperr.New(apperr.Invalid, "validate host", "unknown auth_type %q", p.AuthType)
	}
	if p.Name == "" {
		p.Name = p.Username + "@" + p.Host
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return nil
}

// Store is the host configuration store.
type Store struct {
	db    *gorm.DB
	vault *crypto.Vault
}

func NewStore(db *gorm.DB, vault *crypto.Vault) *Store {
	return &Store{db: db, vault: vault}
}

// Get returns the profile with secrets decrypted.
func (s *Store) Get(ctx context.Context, id string) (*Profile, error) {
	var row database.Host
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "get host", "host %q not found", id)
		}
		return nil, apperr.Wrap(apperr.IoError, "get host", err)
	}
	return s.toProfile(&row), nil
}

func (s *Store) List(ctx context.Context) ([]Profile, error) {
	var rows []database.Host
	if err := s.db.WithContext(ctx).Order("group_name, name").Find(&rows).Error; err != nil {
		return nil, apperr.Wrap(apperr.IoError, "list hosts", err)
	}
	out := make([]Profile, 0, len(rows))
	for i := range rows {
		out = append(out, *s.toProfile(&rows[i]))
	}
	return out, nil
}

// Save inserts or updates p. An empty ID is assigned a new UUID, written
// back into p.
func (s *Store) Save(ctx context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	db := s.db.WithContext(ctx)

	var row database.Host
	isNew := p.ID == ""
	if isNew {
		p.ID = uuid.New().String()
	} else if err := db.First(&row, "id = ?", p.ID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Wrap(apperr.IoError, "save host", err)
		}
		isNew = true
	}

	password, err := s.vault.Seal(p.Password)
	if err != nil {
		return apperr.Wrap(apperr.IoError, "seal password", err)
	}
	privateKey, err := s.vault.Seal(p.PrivateKey)
	if err != nil {
		return apperr.Wrap(apperr.IoError, "seal private key", err)
	}
	passphrase, err := s.vault.Seal(p.Passphrase)
	if err != nil {
		return apperr.Wrap(apperr.IoError, "seal passphrase", err)
	}
	tags, _ := json.Marshal(p.Tags)

	row.ID = p.ID
	row.Name = p.Name
	row.Host = p.Host
	row.Port = p.Port
	row.Username = p.Username
	row.AuthType = p.AuthType
	row.Password = password
	row.PrivateKey = privateKey
	row.Passphrase = passphrase
	row.IdentityFile = p.IdentityFile
	row.GroupName = p.GroupName
	row.Tags = string(tags)
	row.Description = p.Description

	if isNew {
		err = db.Create(&row).Error
	} else {
		err = db.Save(&row).Error
	}
	if err != nil {
		return apperr.Wrap(apperr.IoError, "save host", err)
	}
	p.CreatedAt, p.UpdatedAt = row.CreatedAt, row.UpdatedAt
	log.Printf("[hosts] saved host %s (%s)", p.ID, p.Addr())
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&database.Host{}, "id = ?", id)
	if res.Error != nil {
		return apperr.Wrap(apperr.IoError, "delete host", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "delete host", "host %q not found", id)
	}
	return nil
}

// Name returns the display name of host id without decrypting anything, or
// id itself if the host is gone.
func (s *Store) Name(ctx context.Context, id string) string {
	var names []string
	if err := s.db.WithContext(ctx).Model(&database.Host{}).Where("id = ?", id).
		Pluck("name", &names).Error; err != nil || len(names) == 0 || names[0] == "" {
		return id
	}
	return names[0]
}

// TouchLastConnected records a successful connection.
func (s *Store) TouchLastConnected(ctx context.Context, id string) {
	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&database.Host{}).Where("id = ?", id).
		UpdateColumn("last_connected", now).Error; err != nil {
		log.Printf("[hosts] update last_connected for %s: %v", id, err)
	}
}

func (s *Store) toProfile(row *database.Host) *Profile {
	p := &Profile{
		ID:            row.ID,
		Name:          row.Name,
		Host:          row.Host,
		Port:          row.Port,
		Username:      row.Username,
		AuthType:      row.AuthType,
		IdentityFile:  row.IdentityFile,
		GroupName:     row.GroupName,
		Description:   row.Description,
		LastConnected: row.LastConnected,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	p.Password = s.open(row.ID, "password", row.Password)
	p.PrivateKey = s.open(row.ID, "private_key", row.PrivateKey)
	p.Passphrase = s.open(row.ID, "passphrase", row.Passphrase)
	if err := json.Unmarshal([]byte(row.Tags), &p.Tags); err != nil || p.Tags == nil {
		p.Tags = []string{}
	}
	return p
}

// open yields "" for a secret that cannot be decrypted, which later surfaces
// as a missing-credential auth error instead of failing the whole read.
func (s *Store) open(id, field, stored string) string {
	plain, ok := s.vault.Open(stored)
	if !ok {
		log.Printf("[hosts] cannot decrypt %s for host %s", field, id)
		return ""
	}
	return plain
}
