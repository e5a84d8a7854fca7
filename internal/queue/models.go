package queue

import "time"

// TranscriptEvent is published after a voice message has been answered.
type TranscriptEvent struct {
	TranscriptID   string    `json:"transcript_id"`
	ChatID         int64     `json:"chat_id"`
	ChatType       string    `json:"chat_type"`
	MessageID      int64     `json:"message_id"`
	FileUniqueID   string    `json:"file_unique_id"`
	Text           string    `json:"text"`
	AudioDuration  float64   `json:"audio_duration"`
	ProcessingTime float64   `json:"processing_time"`
	Cached         bool      `json:"cached"`
	CreatedAt      time.Time `json:"created_at"`
}
