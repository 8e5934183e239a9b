package models

import "time"

// Session is one customer interaction context. Rows are immutable once
// created and are never deleted by this service.
type Session struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Language   string    `json:"language"`
	Channel    string    `json:"channel"`
	Persona    string    `json:"persona,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
