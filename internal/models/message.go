package models

import "time"

// MessageType distinguishes the two inbound payload shapes.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeAudio MessageType = "audio"
)

// Message is one inbound turn plus its generated reply. The transcript and
// reply fields are filled in memory as pipeline stages complete; the row is
// persisted once, at commit time.
type Message struct {
	ID            string      `json:"id"`
	SessionID     string      `json:"session_id"`
	Direction     string      `json:"direction"`
	Type          MessageType `json:"type"`
	Text          string      `json:"text,omitempty"`
	AudioRef      string      `json:"audio_ref,omitempty"`
	Transcript    string      `json:"transcript,omitempty"`
	ReplyText     string      `json:"reply_text,omitempty"`
	ReplyAudioRef string      `json:"reply_audio_ref,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

const DirectionIncoming = "incoming"
