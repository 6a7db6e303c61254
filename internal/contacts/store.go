package contacts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"otmsite/internal/emails"
	"otmsite/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when an operation names an unknown contact id.
	ErrNotFound = errors.New("contact not found")
	// ErrVersionConflict is returned by a Repository when the stored document
	// changed since it was loaded.
	ErrVersionConflict = errors.New("contact document version conflict")
	// ErrInvalidInput is returned for missing required fields.
	ErrInvalidInput = errors.New("invalid input")

	// errNoChange aborts a mutation without saving.
	errNoChange = errors.New("no change")
)

// maxSaveAttempts bounds the read-modify-write retries on version conflicts.
const maxSaveAttempts = 3

// Repository persists the whole contact document. Save must fail with
// ErrVersionConflict when doc.Version no longer matches the stored version,
// and must increment doc.Version on success.
type Repository interface {
	Load(ctx context.Context) (*models.ContactDocument, error)
	Save(ctx context.Context, doc *models.ContactDocument) error
}

// Codec encrypts individual fields at rest.
type Codec interface {
	Encrypt(plaintext string) string
	Decrypt(value string) string
	IsEncrypted(value string) bool
}

// Notifier sends the outbound emails triggered by store operations. Contacts
// passed to it carry plaintext values.
type Notifier interface {
	SendContactNotification(ctx context.Context, contact models.Contact) error
	SendContactAutoResponse(ctx context.Context, contact models.Contact) error
	SendContactResponse(ctx context.Context, contact models.Contact, responseText, messageID string) error
}

// Result is returned by mutations that may send email. NotificationError is
// informational: the store write already succeeded.
type Result struct {
	Contact           models.Contact
	Created           bool
	NotificationError error
}

// Service is the contact-thread store.
type Service struct {
	repo     Repository
	codec    Codec
	notifier Notifier
	domain   string
	logger   zerolog.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a contact store. notifier may be nil, in which case no
// email is sent. domain is the right-hand side of generated message ids.
func NewService(repo Repository, codec Codec, notifier Notifier, domain string, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		codec:    codec,
		notifier: notifier,
		domain:   domain,
		logger:   logger.With().Str("component", "contacts").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// mutate runs fn inside a load/save cycle and retries the whole cycle when the
// document moved underneath it. fn may return errNoChange to skip the save.
func (s *Service) mutate(ctx context.Context, fn func(doc *models.ContactDocument) error) (*models.ContactDocument, error) {
	for attempt := 1; ; attempt++ {
		doc, err := s.repo.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load contacts: %w", err)
		}

		if err := fn(doc); err != nil {
			if errors.Is(err, errNoChange) {
				return doc, errNoChange
			}
			return nil, err
		}

		err = s.repo.Save(ctx, doc)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt >= maxSaveAttempts {
			return nil, fmt.Errorf("failed to save contacts: %w", err)
		}
		s.logger.Warn().Int("attempt", attempt).Msg("Contact document changed during update, retrying")
	}
}

func (s *Service) messageID(kind string) string {
	return fmt.Sprintf("%s-%s@%s", kind, s.newID(), s.domain)
}

// emailOf returns the decrypted, normalized address of a stored contact.
func (s *Service) emailOf(c models.Contact) string {
	return emails.NormalizeAddress(s.codec.Decrypt(c.Email))
}

// plain returns a copy of c with every encrypted field decrypted.
func (s *Service) plain(c models.Contact) models.Contact {
	out := c.Clone()
	out.Email = s.codec.Decrypt(c.Email)
	out.Message = s.codec.Decrypt(c.Message)
	if out.Responses == nil {
		out.Responses = []models.Response{}
	}
	for i, r := range out.Responses {
		r.Content = s.codec.Decrypt(r.Content)
		r.DisplayContent = s.codec.Decrypt(r.DisplayContent)
		r.RawHTML = s.codec.Decrypt(r.RawHTML)
		if r.DisplayContent == "" {
			r.DisplayContent = r.Content
		}
		out.Responses[i] = r
	}
	return out
}

func (s *Service) notify(ctx context.Context, sends ...func(context.Context) error) error {
	if s.notifier == nil {
		return nil
	}
	var errs []error
	for _, send := range sends {
		if err := send(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to send notification")
	}
	return err
}

func indexByID(doc *models.ContactDocument, id string) int {
	for i := range doc.Contacts {
		if doc.Contacts[i].ID == id {
			return i
		}
	}
	return -1
}

// oldestByEmail returns the index of the earliest created contact whose
// address equals email, or -1.
func (s *Service) oldestByEmail(doc *models.ContactDocument, email string, includeArchived bool) int {
	found := -1
	for i, c := range doc.Contacts {
		if !includeArchived && c.Status == models.StatusArchived {
			continue
		}
		if s.emailOf(c) != email {
			continue
		}
		if found < 0 || c.CreatedAt.Before(doc.Contacts[found].CreatedAt) {
			found = i
		}
	}
	return found
}

// GetContacts merges duplicate threads, then returns every contact decrypted,
// most recently created first.
func (s *Service) GetContacts(ctx context.Context) ([]models.Contact, error) {
	if _, err := s.MergeByEmail(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Merge before listing contacts failed")
	}

	doc, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}

	out := make([]models.Contact, 0, len(doc.Contacts))
	for _, c := range doc.Contacts {
		out = append(out, s.plain(c))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetContact returns one decrypted contact.
func (s *Service) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	doc, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	i := indexByID(doc, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c := s.plain(doc.Contacts[i])
	return &c, nil
}

// DeleteContact removes a thread.
func (s *Service) DeleteContact(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, func(doc *models.ContactDocument) error {
		i := indexByID(doc, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		doc.Contacts = append(doc.Contacts[:i], doc.Contacts[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("contact_id", id).Msg("Contact deleted")
	return nil
}

// DeleteResponses clears the message history of a thread, keeping the thread.
func (s *Service) DeleteResponses(ctx context.Context, id string) (*models.Contact, error) {
	var updated models.Contact
	_, err := s.mutate(ctx, func(doc *models.ContactDocument) error {
		i := indexByID(doc, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		doc.Contacts[i].Responses = []models.Response{}
		doc.Contacts[i].LastUpdated = s.now()
		updated = doc.Contacts[i].Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("contact_id", id).Msg("Contact messages deleted")
	c := s.plain(updated)
	return &c, nil
}

// Diagnose reports, per contact, which stored fields are encrypted.
func (s *Service) Diagnose(ctx context.Context) (*models.DiagnosticsReport, error) {
	doc, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}

	report := &models.DiagnosticsReport{
		Contacts: len(doc.Contacts),
		Version:  doc.Version,
		Details:  make([]models.FieldEncryptionStatus, 0, len(doc.Contacts)),
	}
	for _, c := range doc.Contacts {
		status := models.FieldEncryptionStatus{
			ContactID:        c.ID,
			Name:             c.Name,
			EmailEncrypted:   s.codec.IsEncrypted(c.Email),
			MessageEncrypted: s.codec.IsEncrypted(c.Message),
			Responses:        len(c.Responses),
		}
		if !status.EmailEncrypted && c.Email != "" {
			report.PlaintextFields++
		}
		if !status.MessageEncrypted && c.Message != "" {
			report.PlaintextFields++
		}
		for _, r := range c.Responses {
			if r.Content != "" && !s.codec.IsEncrypted(r.Content) {
				status.PlainResponses++
				report.PlaintextFields++
			}
		}
		report.Responses += len(c.Responses)
		report.Details = append(report.Details, status)
	}
	return report, nil
}

// EncryptPlaintextFields encrypts any stored field still held in plaintext and
// returns the number of contacts that changed.
func (s *Service) EncryptPlaintextFields(ctx context.Context) (int, error) {
	changed := 0
	_, err := s.mutate(ctx, func(doc *models.ContactDocument) error {
		changed = 0
		for i := range doc.Contacts {
			if s.encryptContact(&doc.Contacts[i]) {
				changed++
			}
		}
		if changed == 0 {
			return errNoChange
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return 0, err
	}
	if changed > 0 {
		s.logger.Info().Int("contacts", changed).Msg("Encrypted plaintext contact fields")
	}
	return changed, nil
}

func (s *Service) encryptContact(c *models.Contact) bool {
	changed := false
	enc := func(field *string) {
		if *field != "" && !s.codec.IsEncrypted(*field) {
			*field = s.codec.Encrypt(*field)
			changed = true
		}
	}
	enc(&c.Email)
	enc(&c.Message)
	for i := range c.Responses {
		enc(&c.Responses[i].Content)
		enc(&c.Responses[i].DisplayContent)
		enc(&c.Responses[i].RawHTML)
	}
	return changed
}

func nonEmpty(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}
