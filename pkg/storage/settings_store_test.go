package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dougsko/sdrgain/pkg/rxdata"
)

func newTestStore(t *testing.T) *SettingsStore {
	t.Helper()
	store, err := NewSettingsStore(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewSettingsStore(t *testing.T) {
	tempDir := t.TempDir()

	t.Run("Nested Directory", func(t *testing.T) {
		dbPath := filepath.Join(tempDir, "nested", "dir", "settings.db")
		store, err := NewSettingsStore(dbPath)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		defer store.Close()

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("Expected database file to be created")
		}
	})

	t.Run("Empty Path", func(t *testing.T) {
		if _, err := NewSettingsStore(""); err == nil {
			t.Error("Expected error for empty path")
		}
	})

	t.Run("Reopen Keeps Data", func(t *testing.T) {
		dbPath := filepath.Join(tempDir, "reopen.db")
		store, err := NewSettingsStore(dbPath)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if err := store.SaveFrequency(433_920); err != nil {
			t.Fatalf("SaveFrequency failed: %v", err)
		}
		store.Close()

		store, err = NewSettingsStore(dbPath)
		if err != nil {
			t.Fatalf("Expected no error on reopen, got: %v", err)
		}
		defer store.Close()

		khz, ok, err := store.LastFrequency()
		if err != nil || !ok || khz != 433_920 {
			t.Errorf("Expected (433920, true, nil), got (%d, %t, %v)", khz, ok, err)
		}
	})
}

func TestLastFrequency(t *testing.T) {
	store := newTestStore(t)

	t.Run("Nothing Saved", func(t *testing.T) {
		_, ok, err := store.LastFrequency()
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if ok {
			t.Error("Expected no saved frequency")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		store.SaveFrequency(145_000)
		store.SaveFrequency(146_520)

		khz, ok, err := store.LastFrequency()
		if err != nil || !ok {
			t.Fatalf("Expected saved frequency, got ok=%t err=%v", ok, err)
		}
		if khz != 146_520 {
			t.Errorf("Expected 146520, got %d", khz)
		}
	})

	t.Run("Out Of Range Value Ignored", func(t *testing.T) {
		if _, err := store.db.Exec("UPDATE settings SET value = '9000000' WHERE key = ?", keyLastFrequency); err != nil {
			t.Fatalf("Failed to corrupt setting: %v", err)
		}
		_, ok, err := store.LastFrequency()
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if ok {
			t.Error("Expected out of range value to be ignored")
		}
	})
}

func TestPresets(t *testing.T) {
	store := newTestStore(t)

	t.Run("Save And Get", func(t *testing.T) {
		if err := store.SavePreset("70cm", 433_920); err != nil {
			t.Fatalf("SavePreset failed: %v", err)
		}
		p, err := store.GetPreset("70cm")
		if err != nil {
			t.Fatalf("GetPreset failed: %v", err)
		}
		if p.Name != "70cm" || p.FrequencyKHz != 433_920 {
			t.Errorf("Expected 70cm at 433920, got %s at %d", p.Name, p.FrequencyKHz)
		}
		if p.UpdatedAt.IsZero() {
			t.Error("Expected updated_at to be set")
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		store.SavePreset("2m", 145_000)
		store.SavePreset("2m", 144_800)
		p, err := store.GetPreset("2m")
		if err != nil {
			t.Fatalf("GetPreset failed: %v", err)
		}
		if p.FrequencyKHz != 144_800 {
			t.Errorf("Expected 144800, got %d", p.FrequencyKHz)
		}
	})

	t.Run("List Ordered By Frequency", func(t *testing.T) {
		presets, err := store.ListPresets()
		if err != nil {
			t.Fatalf("ListPresets failed: %v", err)
		}
		if len(presets) != 2 {
			t.Fatalf("Expected 2 presets, got %d", len(presets))
		}
		if presets[0].Name != "2m" || presets[1].Name != "70cm" {
			t.Errorf("Expected [2m 70cm], got [%s %s]", presets[0].Name, presets[1].Name)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		if err := store.SavePreset("23cm", 2_000_000); !errors.Is(err, rxdata.ErrFrequencyOutOfRange) {
			t.Errorf("Expected ErrFrequencyOutOfRange, got %v", err)
		}
		if err := store.SavePreset("  ", 145_000); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Expected ErrInvalidName, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.DeletePreset("2m"); err != nil {
			t.Fatalf("DeletePreset failed: %v", err)
		}
		if _, err := store.GetPreset("2m"); !errors.Is(err, ErrPresetNotFound) {
			t.Errorf("Expected ErrPresetNotFound, got %v", err)
		}
		if err := store.DeletePreset("2m"); !errors.Is(err, ErrPresetNotFound) {
			t.Errorf("Expected ErrPresetNotFound on second delete, got %v", err)
		}
	})
}
