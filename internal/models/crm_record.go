package models

import "time"

// CRMStatus tracks a business record through back-office processing.
type CRMStatus string

const (
	CRMStatusPending CRMStatus = "pending"
	CRMStatusDone    CRMStatus = "done"
	CRMStatusFailed  CRMStatus = "failed"
)

// CRMDetails is the structured record attached to a CRM intake. Fields are
// optional at the type level; scenario-specific requirements are enforced at
// the intake boundary.
type CRMDetails struct {
	Name      string `json:"name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	Query     string `json:"query,omitempty"`
	Intent    string `json:"intent,omitempty"`
	Priority  string `json:"priority,omitempty"`
}

// CRMRecord is a business follow-up record derived from a conversation.
// Status advances via out-of-scope back-office processing.
type CRMRecord struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	CustomerID string     `json:"customer_id,omitempty"`
	Scenario   string     `json:"scenario"`
	Record     CRMDetails `json:"record"`
	Status     CRMStatus  `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}
