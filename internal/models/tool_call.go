package models

import "time"

// ToolStatus is set once, before the tool-call row is first durably written.
type ToolStatus string

const (
	ToolStatusAccepted ToolStatus = "accepted"
	ToolStatusFailed   ToolStatus = "failed"
)

// IntakePayload is the structured body accepted by the internal CRM intake
// endpoint and echoed into the tool-call audit row.
type IntakePayload struct {
	SessionID   string         `json:"session_id"`
	CustomerID  string         `json:"customer_id,omitempty"`
	LLMResponse string         `json:"llm_response,omitempty"`
	Scenario    string         `json:"scenario"`
	Record      *CRMDetails    `json:"record,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// ToolCall audits one CRM intake attempt.
type ToolCall struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Payload   IntakePayload `json:"payload"`
	Status    ToolStatus    `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}
