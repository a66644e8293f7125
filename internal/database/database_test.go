package database

import (
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	return db
}

func TestHostDefaults(t *testing.T) {
	db := setupTestDB(t)

	h := Host{ID: "h1", Name: "web", Host: "10.0.0.5", Username: "root"}
	if err := db.Create(&h).Error; err != nil {
		t.Fatalf("create host: %v", err)
	}

	var loaded Host
	if err := db.First(&loaded, "id = ?", "h1").Error; err != nil {
		t.Fatalf("load host: %v", err)
	}
	if loaded.Port != 22 {
		t.Errorf("Port default = %d, want 22", loaded.Port)
	}
	if loaded.AuthType != "password" {
		t.Errorf("AuthType default = %q, want password", loaded.AuthType)
	}
	if loaded.Tags != "[]" {
		t.Errorf("Tags default = %q, want []", loaded.Tags)
	}
}

func TestSettings(t *testing.T) {
	db := setupTestDB(t)

	if _, err := GetSetting(db, "missing"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("GetSetting(missing) err = %v, want ErrRecordNotFound", err)
	}
	if err := SetSetting(db, "k", "v1"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := SetSetting(db, "k", "v2"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	got, err := GetSetting(db, "k")
	if err != nil || got != "v2" {
		t.Fatalf("GetSetting = %q, %v; want v2", got, err)
	}
	if err := DeleteSetting(db, "k"); err != nil {
		t.Fatalf("DeleteSetting: %v", err)
	}
	if _, err := GetSetting(db, "k"); err == nil {
		t.Error("setting still present after delete")
	}
}

func TestInitCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "engine.db")
	if err := Init(path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() {
		Close()
		DB = nil
	})
	if err := SetSetting(DB, "marker", "1"); err != nil {
		t.Fatalf("SetSetting on Init db: %v", err)
	}
}
