package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// JSONB represents a JSONB field for PostgreSQL
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Transcript is the journal record of one successfully transcribed voice message.
type Transcript struct {
	ID             string    `json:"id" db:"id"`
	ChatID         int64     `json:"chat_id" db:"chat_id"`
	ChatType       string    `json:"chat_type" db:"chat_type"`
	MessageID      int64     `json:"message_id" db:"message_id"`
	FileUniqueID   string    `json:"file_unique_id" db:"file_unique_id"`
	Text           string    `json:"text" db:"text"`
	AudioDuration  float64   `json:"audio_duration" db:"audio_duration"`
	ProcessingTime float64   `json:"processing_time" db:"processing_time"`
	ArchiveKey     *string   `json:"archive_key,omitempty" db:"archive_key"`
	Meta           JSONB     `json:"meta" db:"meta"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// CachedTranscript is what the transcription cache keeps per voice file.
type CachedTranscript struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Language string  `json:"language,omitempty"`
}

// SetArchiveKey records where the raw voice message was archived.
func (t *Transcript) SetArchiveKey(key string) {
	if key == "" {
		t.ArchiveKey = nil
		return
	}
	t.ArchiveKey = &key
}
