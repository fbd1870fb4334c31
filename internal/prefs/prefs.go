package prefs

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Well-known keys.
const (
	keyDeviceID        = "device_id"
	keyTheme           = "theme"
	keyActiveAudioChat = "active_audio_chat"
)

// Set stores a value under key, overwriting any previous value.
func (db *DB) Set(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO entries (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// Get retrieves the value for key. Returns "" and no error when absent.
func (db *DB) Get(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM entries WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Delete removes the entry for key. Absent keys are not an error.
func (db *DB) Delete(key string) error {
	_, err := db.Exec(`DELETE FROM entries WHERE key = ?`, key)
	return err
}

// DeviceID returns the stable device identifier, minting and persisting one
// on first call.
func (db *DB) DeviceID() (string, error) {
	id, err := db.Get(keyDeviceID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = uuid.New().String()
	if err := db.Set(keyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

// Theme returns the stored theme preference, or "" when unset.
func (db *DB) Theme() (string, error) {
	return db.Get(keyTheme)
}

// SetTheme stores the theme preference.
func (db *DB) SetTheme(theme string) error {
	return db.Set(keyTheme, theme)
}

// ActiveAudioChat returns the last-known conversation with active audio
// playback, or "" when none.
func (db *DB) ActiveAudioChat() (string, error) {
	return db.Get(keyActiveAudioChat)
}

// SetActiveAudioChat stores the active-audio conversation identifier. An
// empty id clears the entry.
func (db *DB) SetActiveAudioChat(chatID string) error {
	if chatID == "" {
		return db.Delete(keyActiveAudioChat)
	}
	return db.Set(keyActiveAudioChat, chatID)
}
