package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dougsko/sdrgain/pkg/logging"
	"github.com/dougsko/sdrgain/pkg/rxdata"
	_ "github.com/mattn/go-sqlite3"
)

const keyLastFrequency = "last_frequency_khz"

var (
	ErrPresetNotFound = errors.New("preset not found")
	ErrInvalidName    = errors.New("invalid preset name")
)

// Preset is a named frequency
type Preset struct {
	Name         string    `json:"name"`
	FrequencyKHz uint32    `json:"frequency_khz"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SettingsStore keeps daemon settings that survive a restart: the last
// tuned frequency and the frequency presets. Measurements are not stored.
type SettingsStore struct {
	db     *sql.DB
	dbPath string
}

// NewSettingsStore opens or creates the SQLite database at dbPath
func NewSettingsStore(dbPath string) (*SettingsStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=10000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SettingsStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logging.Infof("storage", "Settings store initialized: %s", dbPath)
	return store, nil
}

func (s *SettingsStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS presets (
		name TEXT PRIMARY KEY,
		frequency_khz INTEGER NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveFrequency remembers khz as the frequency to restore on start
func (s *SettingsStore) SaveFrequency(khz uint32) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, keyLastFrequency, strconv.FormatUint(uint64(khz), 10))
	if err != nil {
		return fmt.Errorf("failed to save frequency: %w", err)
	}
	return nil
}

// LastFrequency returns the saved frequency. ok is false when nothing was
// saved yet or the saved value is no longer in the accepted range.
func (s *SettingsStore) LastFrequency() (khz uint32, ok bool, err error) {
	var value string
	err = s.db.QueryRow("SELECT value FROM settings WHERE key = ?", keyLastFrequency).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load frequency: %w", err)
	}

	khz, err = rxdata.ParseFrequency(value)
	if err != nil {
		logging.Warnf("storage", "Ignoring saved frequency: %v", err)
		return 0, false, nil
	}
	return khz, true, nil
}

func validName(name string) error {
	if strings.TrimSpace(name) == "" || len(name) > 64 {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// SavePreset creates or replaces a preset
func (s *SettingsStore) SavePreset(name string, khz uint32) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := rxdata.ValidateFrequency(khz); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		INSERT INTO presets (name, frequency_khz) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET frequency_khz = excluded.frequency_khz, updated_at = CURRENT_TIMESTAMP
	`, name, khz)
	if err != nil {
		return fmt.Errorf("failed to save preset: %w", err)
	}
	return nil
}

// GetPreset looks a preset up by name
func (s *SettingsStore) GetPreset(name string) (*Preset, error) {
	var p Preset
	err := s.db.QueryRow(
		"SELECT name, frequency_khz, updated_at FROM presets WHERE name = ?", name,
	).Scan(&p.Name, &p.FrequencyKHz, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPresetNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preset: %w", err)
	}
	return &p, nil
}

// ListPresets returns all presets ordered by frequency
func (s *SettingsStore) ListPresets() ([]Preset, error) {
	rows, err := s.db.Query("SELECT name, frequency_khz, updated_at FROM presets ORDER BY frequency_khz, name")
	if err != nil {
		return nil, fmt.Errorf("failed to query presets: %w", err)
	}
	defer rows.Close()

	presets := []Preset{}
	for rows.Next() {
		var p Preset
		if err := rows.Scan(&p.Name, &p.FrequencyKHz, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan preset: %w", err)
		}
		presets = append(presets, p)
	}
	return presets, rows.Err()
}

// DeletePreset removes a preset
func (s *SettingsStore) DeletePreset(name string) error {
	result, err := s.db.Exec("DELETE FROM presets WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete preset: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrPresetNotFound, name)
	}
	return nil
}

// Close closes the database connection
func (s *SettingsStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
