package models

import "time"

// ModelType identifies which pipeline stage a ModelCall audits.
type ModelType string

const (
	ModelTypeASR ModelType = "ASR"
	ModelTypeLLM ModelType = "LLM"
	ModelTypeTTS ModelType = "TTS"
)

// ModelCall records one ASR/LLM/TTS invocation. A row is appended for every
// stage attempted, including stub and failed attempts; rows are never mutated.
type ModelCall struct {
	ID              string    `json:"id"`
	MessageID       string    `json:"message_id"`
	ModelType       ModelType `json:"model_type"`
	ModelID         string    `json:"model_id"`
	DurationMS      int64     `json:"duration_ms"`
	ResponseSnippet string    `json:"response_snippet,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
