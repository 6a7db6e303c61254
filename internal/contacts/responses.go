package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"otmsite/internal/emails"
	"otmsite/internal/models"
)

// UpdateContactStatus sets the status of a thread. A non-empty responseText is
// appended as an Admin response with a fresh message id and emailed to the
// contact; a send failure is reported on the Result only.
func (s *Service) UpdateContactStatus(ctx context.Context, id string, status models.ContactStatus, responseText string) (*Result, error) {
	if strings.TrimSpace(string(status)) == "" {
		return nil, fmt.Errorf("%w: status is required", ErrInvalidInput)
	}
	responseText = strings.TrimSpace(responseText)

	var (
		stored    models.Contact
		messageID string
	)
	_, err := s.mutate(ctx, func(doc *models.ContactDocument) error {
		i := indexByID(doc, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		now := s.now()
		c := &doc.Contacts[i]
		c.Status = status
		c.LastUpdated = now

		messageID = ""
		if responseText != "" {
			messageID = s.messageID("admin-response")
			c.Responses = append(c.Responses, models.Response{
				ID:        s.newID(),
				From:      models.AdminSender,
				Content:   s.codec.Encrypt(responseText),
				Timestamp: now,
				MessageID: messageID,
			})
		}
		stored = c.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Contact: s.plain(stored)}
	s.logger.Info().
		Str("contact_id", id).
		Str("status", string(status)).
		Bool("with_response", responseText != "").
		Msg("Contact status updated")

	if responseText != "" {
		result.NotificationError = s.notify(ctx, func(ctx context.Context) error {
			return s.notifier.SendContactResponse(ctx, result.Contact, responseText, messageID)
		})
	}
	return result, nil
}

// AddEmailResponse files an inbound email into its thread. Threads are
// matched first by In-Reply-To/References against stored message ids, then by
// sender address. An email that matches nothing starts a new thread and nil
// is returned. A message id already present in the store is not added twice.
func (s *Service) AddEmailResponse(ctx context.Context, email models.InboundEmail) (*models.Contact, error) {
	from := emails.NormalizeAddress(email.From)
	if from == "" {
		return nil, fmt.Errorf("%w: sender address is required", ErrInvalidInput)
	}
	messageID := emails.CleanMessageID(email.MessageID)
	content := email.Text
	if strings.TrimSpace(content) == "" && email.HTML != "" {
		content = emails.HTMLToText(email.HTML)
		if email.IsReply() {
			content = emails.StripQuotedReply(content)
		}
	}

	var (
		stored    models.Contact
		matchedBy string
	)
	_, err := s.mutate(ctx, func(doc *models.ContactDocument) error {
		if i := findMessage(doc, messageID); i >= 0 {
			stored, matchedBy = doc.Contacts[i].Clone(), "duplicate"
			return errNoChange
		}

		i := correlateByHeaders(doc, email.CorrelationIDs())
		matchedBy = "headers"
		if i < 0 {
			i = s.oldestByEmail(doc, from, true)
			matchedBy = "sender"
		}
		if i < 0 {
			matchedBy = ""
			return errNoChange
		}

		timestamp := email.Date
		if timestamp.IsZero() {
			timestamp = s.now()
		}
		c := &doc.Contacts[i]
		c.Responses = append(c.Responses, models.Response{
			ID:             s.newID(),
			From:           from,
			Content:        s.codec.Encrypt(content),
			DisplayContent: s.codec.Encrypt(content),
			RawHTML:        s.codec.Encrypt(email.HTML),
			IsHTML:         email.HTML != "",
			Timestamp:      timestamp,
			MessageID:      messageID,
		})
		c.Status = models.StatusResponded
		c.LastUpdated = s.now()
		stored = c.Clone()
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return nil, err
	}

	switch matchedBy {
	case "duplicate":
		s.logger.Info().
			Str("contact_id", stored.ID).
			Str("message_id", messageID).
			Msg("Inbound email already stored, skipping")
		c := s.plain(stored)
		return &c, nil
	case "":
		s.logger.Info().Str("from", models.RedactEmail(from)).Msg("No thread matches inbound email, creating contact")
		subject := email.Subject
		if subject == "" {
			subject = "No Subject"
		}
		_, err := s.AddContact(ctx, NewContact{
			Name:      emails.LocalPart(from),
			Email:     from,
			Message:   subject + "\n\n" + content,
			Subject:   email.Subject,
			MessageID: messageID,
		})
		return nil, err
	}

	s.logger.Info().
		Str("contact_id", stored.ID).
		Str("matched_by", matchedBy).
		Str("from", models.RedactEmail(from)).
		Msg("Inbound email added to thread")
	c := s.plain(stored)
	return &c, nil
}

// findMessage returns the index of the contact already holding messageID.
func findMessage(doc *models.ContactDocument, messageID string) int {
	if messageID == "" {
		return -1
	}
	for i, c := range doc.Contacts {
		if hasMessageID(c, messageID) {
			return i
		}
	}
	return -1
}

// correlateByHeaders tries each candidate id in priority order.
func correlateByHeaders(doc *models.ContactDocument, ids []string) int {
	for _, id := range ids {
		if i := findMessage(doc, id); i >= 0 {
			return i
		}
	}
	return -1
}

func hasMessageID(c models.Contact, id string) bool {
	if emails.SameMessageID(c.MessageID, id) {
		return true
	}
	for _, r := range c.Responses {
		if emails.SameMessageID(r.MessageID, id) {
			return true
		}
	}
	return false
}
