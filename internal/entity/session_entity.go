package entity

import (
	"time"
)

// Session status values. Expired and Closed are terminal.
const (
	SessionStatusActive  = "ACTIVE"
	SessionStatusExpired = "EXPIRED"
	SessionStatusClosed  = "CLOSED"
)

// Turn states. Transcribing and StreamingQuestion are transient in-flight
// markers; a persisted session is always AwaitingChunk.
const (
	TurnStateAwaitingChunk     = "AWAITING_CHUNK"
	TurnStateTranscribing      = "TRANSCRIBING"
	TurnStateStreamingQuestion = "STREAMING_QUESTION"
)

// Speaker roles for conversation history entries.
const (
	SpeakerCandidate   = "candidate"
	SpeakerInterviewer = "interviewer"
)

type HistoryEntry struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Session is one interview interaction. All mutation goes through the
// session service; the Version field rejects racing writers at the store.
type Session struct {
	Id           string         `json:"id"`
	CallerId     string         `json:"caller_id"`
	Language     string         `json:"language"`
	Status       string         `json:"status"`
	TurnState    string         `json:"turn_state"`
	LastChunk    int            `json:"last_chunk"` // number of the last accepted chunk, 0 when none
	Buffer       string         `json:"transcript_buffer"`
	History      []HistoryEntry `json:"conversation_history"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActiveAt time.Time      `json:"last_active_at"`
	Version      int64          `json:"version"`
}

func NewSession(id, callerId, language string) *Session {
	now := time.Now()
	return &Session{
		Id:           id,
		CallerId:     callerId,
		Language:     language,
		Status:       SessionStatusActive,
		TurnState:    TurnStateAwaitingChunk,
		History:      make([]HistoryEntry, 0),
		CreatedAt:    now,
		LastActiveAt: now,
		Version:      1,
	}
}

func (s *Session) Terminal() bool {
	return s.Status == SessionStatusExpired || s.Status == SessionStatusClosed
}
