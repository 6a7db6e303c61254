package models

import "time"

// ContactStatus is the admin-facing state of a contact thread.
// The set is open: unknown values are stored and returned as-is.
type ContactStatus string

const (
	StatusNew       ContactStatus = "new"
	StatusResponded ContactStatus = "responded"
	StatusArchived  ContactStatus = "archived"
)

// AdminSender is the From value of responses written by the admin panel.
const AdminSender = "Admin"

// Contact is a conversation thread started by one external email address.
// Email, Message and the response bodies are encrypted at rest.
type Contact struct {
	ID          string        `json:"id" example:"5f0c6f6e-3c1b-4f3e-9d8e-2f0b8a1c7d10"`
	Name        string        `json:"name" example:"Jane"`
	Email       string        `json:"email" example:"jane@example.com"`
	Message     string        `json:"message" example:"Hi"`
	Subject     string        `json:"subject,omitempty"`
	Status      ContactStatus `json:"status" example:"new"`
	CreatedAt   time.Time     `json:"createdAt"`
	LastUpdated time.Time     `json:"lastUpdated,omitempty"`
	MessageID   string        `json:"messageId,omitempty"`
	Responses   []Response    `json:"responses"`
}

// Response is one inbound or outbound message inside a contact thread.
type Response struct {
	ID             string    `json:"id"`
	From           string    `json:"from" example:"Admin"`
	Content        string    `json:"content"`
	DisplayContent string    `json:"displayContent,omitempty"`
	RawHTML        string    `json:"rawHtml,omitempty"`
	IsHTML         bool      `json:"isHtml"`
	Timestamp      time.Time `json:"timestamp"`
	MessageID      string    `json:"messageId,omitempty"`
}

// ContactDocument is the persisted collection. Version increases by one on
// every successful save and is used for optimistic concurrency.
type ContactDocument struct {
	Version  int64     `json:"version"`
	Contacts []Contact `json:"contacts"`
}

// Clone returns a deep copy so callers can mutate without aliasing the
// responses slices of the original.
func (c Contact) Clone() Contact {
	out := c
	if c.Responses != nil {
		out.Responses = make([]Response, len(c.Responses))
		copy(out.Responses, c.Responses)
	}
	return out
}

// FieldEncryptionStatus reports, per stored field, whether it is encrypted.
type FieldEncryptionStatus struct {
	ContactID        string `json:"contactId"`
	Name             string `json:"name"`
	EmailEncrypted   bool   `json:"emailEncrypted"`
	MessageEncrypted bool   `json:"messageEncrypted"`
	Responses        int    `json:"responses"`
	PlainResponses   int    `json:"plainResponses"`
}

// DiagnosticsReport summarises the state of the contact store.
type DiagnosticsReport struct {
	Contacts        int                     `json:"contacts"`
	Responses       int                     `json:"responses"`
	PlaintextFields int                     `json:"plaintextFields"`
	Version         int64                   `json:"version"`
	Details         []FieldEncryptionStatus `json:"details"`
}
