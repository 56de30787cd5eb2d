package dto

type StartSessionRequest struct {
	Language string `json:"language" validate:"omitempty,alpha,max=8"`
}

type StartSessionResponse struct {
	SessionId string `json:"session_id"`
}

// StreamRequest carries both phases of a turn. stream_type decides whether
// this is an audio chunk submission or a question request; the final flag is
// the authoritative turn-completion signal for chunks.
type StreamRequest struct {
	SessionId   string `json:"session_id" validate:"required,uuid4"`
	StreamType  string `json:"stream_type" validate:"required,oneof=chunk question"`
	AudioData   string `json:"audio_data,omitempty"`
	ChunkNumber int    `json:"chunk_number,omitempty" validate:"omitempty,min=1"`
	Final       bool   `json:"final,omitempty"`
}

type SubmitChunkResponse struct {
	TranscriptDelta string `json:"transcript_delta"`
	TurnComplete    bool   `json:"turn_complete"`
}

type EndSessionRequest struct {
	SessionId string `json:"session_id" validate:"required,uuid4"`
}

// StreamEvent is one SSE frame of a question stream.
// Type is "text", "audio", "error" or "end"; audio content is base64 PCM.
type StreamEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

const (
	StreamEventText  = "text"
	StreamEventAudio = "audio"
	StreamEventError = "error"
	StreamEventEnd   = "end"
)

const (
	StreamTypeChunk    = "chunk"
	StreamTypeQuestion = "question"
)

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}
