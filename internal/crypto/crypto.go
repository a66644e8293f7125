// Package crypto is the credential vault: secrets are sealed with AES-256-GCM
// under a single key that is generated on first use and persisted in the
// settings table.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/litianfu1997/openssh/internal/database"
	"gorm.io/gorm"
)

const (
	keySetting       = "encryption_key"
	legacyKeySetting = "fernet_key"

	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

// EncryptedData is the stored form of one secret. All fields are hex.
type EncryptedData struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv"`
	AuthTag   string `json:"authTag"`
}

// Vault seals and opens secrets for one database.
type Vault struct {
	db *gorm.DB

	mu  sync.Mutex
	key []byte
}

func NewVault(db *gorm.DB) *Vault {
	return &Vault{db: db}
}

func (v *Vault) loadKey() ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.key != nil {
		return v.key, nil
	}

	stored, err := database.GetSetting(v.db, keySetting)
	switch {
	case err == nil:
		key, err := hex.DecodeString(stored)
		if err != nil || len(key) != keySize {
			return nil, fmt.Errorf("stored encryption key is malformed")
		}
		v.key = key
	case errors.Is(err, gorm.ErrRecordNotFound):
		key := make([]byte, keySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate encryption key: %w", err)
		}
		if err := database.SetSetting(v.db, keySetting, hex.EncodeToString(key)); err != nil {
			return nil, fmt.Errorf("save encryption key: %w", err)
		}
		v.key = key
	default:
		return nil, fmt.Errorf("load encryption key: %w", err)
	}
	return v.key, nil
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	key, err := v.loadKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with a fresh nonce. An empty plaintext yields nil
// so that empty secrets are never stored.
func (v *Vault) Encrypt(plaintext string) (*EncryptedData, error) {
	if plaintext == "" {
		return nil, nil
	}
	aead, err := v.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return &EncryptedData{
		Encrypted: hex.EncodeToString(ct),
		IV:        hex.EncodeToString(nonce),
		AuthTag:   hex.EncodeToString(tag),
	}, nil
}

// Decrypt opens data. It reports false for malformed fields or a tag mismatch.
func (v *Vault) Decrypt(data *EncryptedData) (string, bool) {
	if data == nil {
		return "", false
	}
	ct, err1 := hex.DecodeString(data.Encrypted)
	nonce, err2 := hex.DecodeString(data.IV)
	tag, err3 := hex.DecodeString(data.AuthTag)
	if err1 != nil || err2 != nil || err3 != nil || len(nonce) != nonceSize || len(tag) != tagSize {
		return "", false
	}
	aead, err := v.gcm()
	if err != nil {
		return "", false
	}
	plain, err := aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", false
	}
	return string(plain), true
}

// Seal returns the column value for plaintext: the JSON envelope, or "" for
// an empty secret.
func (v *Vault) Seal(plaintext string) (string, error) {
	data, err := v.Encrypt(plaintext)
	if err != nil || data == nil {
		return "", err
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Open reverses Seal. Values written before encryption was introduced are
// accepted as they are: legacy fernet tokens are decrypted with the old key,
// anything else is returned verbatim. It reports false only when a value is
// recognisably encrypted but cannot be opened.
func (v *Vault) Open(stored string) (string, bool) {
	if stored == "" {
		return "", true
	}
	if strings.HasPrefix(stored, "{") {
		var data EncryptedData
		if err := json.Unmarshal([]byte(stored), &data); err == nil && data.Encrypted != "" {
			return v.Decrypt(&data)
		}
	}
	if plain, ok := v.openLegacy(stored); ok {
		return plain, true
	}
	return stored, true
}

func (v *Vault) openLegacy(token string) (string, bool) {
	keyStr, err := database.GetSetting(v.db, legacyKeySetting)
	if err != nil {
		return "", false
	}
	key, err := fernet.DecodeKey(keyStr)
	if err != nil {
		return "", false
	}
	msg := fernet.VerifyAndDecrypt([]byte(token), 0*time.Second, []*fernet.Key{key})
	if msg == nil {
		return "", false
	}
	return string(msg), true
}

// Mask hides all but the last four characters of a secret.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) > 4 {
		return "****" + value[len(value)-4:]
	}
	return "****"
}
