package contacts

import (
	"context"
	"fmt"
	"strings"

	"otmsite/internal/emails"
	"otmsite/internal/models"
)

// NewContact is an inbound message that starts or continues a thread.
type NewContact struct {
	Name      string
	Email     string
	Message   string
	Subject   string
	MessageID string
}

// AddContact stores an inbound message. When an active thread with the same
// address exists the message is appended to it and the thread goes back to
// "new"; otherwise a thread is created. The admin notice and the sender's
// auto-response are attempted afterwards and never fail the call.
func (s *Service) AddContact(ctx context.Context, in NewContact) (*Result, error) {
	if !nonEmpty(in.Email, in.Message) {
		return nil, fmt.Errorf("%w: email and message are required", ErrInvalidInput)
	}
	address := emails.NormalizeAddress(in.Email)
	messageID := emails.CleanMessageID(in.MessageID)

	var (
		stored  models.Contact
		created bool
	)
	_, err := s.mutate(ctx, func(doc *models.ContactDocument) error {
		now := s.now()

		if i := s.oldestByEmail(doc, address, false); i >= 0 {
			id := messageID
			if id == "" {
				id = s.messageID("new-message")
			}
			c := &doc.Contacts[i]
			c.Responses = append(c.Responses, models.Response{
				ID:        s.newID(),
				From:      address,
				Content:   s.codec.Encrypt(in.Message),
				Timestamp: now,
				MessageID: id,
			})
			c.Status = models.StatusNew
			c.LastUpdated = now
			stored, created = c.Clone(), false
			return nil
		}

		id := messageID
		if id == "" {
			id = s.messageID("contact")
		}
		c := models.Contact{
			ID:          s.newID(),
			Name:        strings.TrimSpace(in.Name),
			Email:       s.codec.Encrypt(address),
			Message:     s.codec.Encrypt(in.Message),
			Subject:     strings.TrimSpace(in.Subject),
			Status:      models.StatusNew,
			CreatedAt:   now,
			LastUpdated: now,
			MessageID:   id,
			Responses:   []models.Response{},
		}
		doc.Contacts = append(doc.Contacts, c)
		stored, created = c.Clone(), true
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Contact: s.plain(stored), Created: created}

	s.logger.Info().
		Str("contact_id", stored.ID).
		Str("email", models.RedactEmail(address)).
		Bool("created", created).
		Msg("Contact message stored")

	// The notice describes this message, not the thread's first one.
	notice := result.Contact
	notice.Message = in.Message
	if notice.Name == "" {
		notice.Name = strings.TrimSpace(in.Name)
	}
	result.NotificationError = s.notify(ctx,
		func(ctx context.Context) error { return s.notifier.SendContactNotification(ctx, notice) },
		func(ctx context.Context) error { return s.notifier.SendContactAutoResponse(ctx, notice) },
	)
	return result, nil
}
