package models

import (
	"strings"
	"time"
)

// InboundEmail is a message read from the mailbox, already normalized at the
// parsing boundary: From is a single lower-cased address and all message ids
// are stored without angle brackets.
type InboundEmail struct {
	From       string    `json:"from"`
	FromName   string    `json:"fromName,omitempty"`
	Subject    string    `json:"subject"`
	Text       string    `json:"text"`
	HTML       string    `json:"html,omitempty"`
	MessageID  string    `json:"messageId"`
	InReplyTo  []string  `json:"inReplyTo,omitempty"`
	References []string  `json:"references,omitempty"`
	Date       time.Time `json:"date"`
}

// IsReply reports whether the message carries reply-correlation headers.
func (e InboundEmail) IsReply() bool {
	return len(e.InReplyTo) > 0 || len(e.References) > 0
}

// CorrelationIDs returns the candidate parent message ids in priority order:
// In-Reply-To first, then References from the most recent to the root.
func (e InboundEmail) CorrelationIDs() []string {
	ids := make([]string, 0, len(e.InReplyTo)+len(e.References))
	ids = append(ids, e.InReplyTo...)
	for i := len(e.References) - 1; i >= 0; i-- {
		ids = append(ids, e.References[i])
	}
	return ids
}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" becomes "jo***@example.com".
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
