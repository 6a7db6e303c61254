package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"otmsite/internal/config"
	"otmsite/internal/models"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/google/uuid"
	"github.com/osteele/liquid"
	"github.com/rs/zerolog"
)

// EmailService renders and sends the contact notifications
type EmailService struct {
	sender      Sender
	fromName    string
	fromAddress string
	adminEmail  string
	domain      string
	templates   map[string]*liquid.Template
	logger      zerolog.Logger
	now         func() time.Time
}

// NewEmailService creates a new email service instance
func NewEmailService(sender Sender, cfg *config.Config, logger zerolog.Logger) (*EmailService, error) {
	engine := liquid.NewEngine()
	engine.RegisterFilter("nl2br", func(s string) string {
		return strings.ReplaceAll(s, "\n", "<br>\n")
	})
	templates := make(map[string]*liquid.Template, len(bodyTemplates))
	for name, src := range bodyTemplates {
		tpl, err := engine.ParseString(src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		templates[name] = tpl
	}

	fromName := cfg.EmailFromName
	if fromName == "" {
		fromName = "OTM Education"
	}

	return &EmailService{
		sender:      sender,
		fromName:    fromName,
		fromAddress: cfg.EmailUser,
		adminEmail:  cfg.AdminEmail,
		domain:      cfg.MessageIDDomain,
		templates:   templates,
		logger:      logger.With().Str("component", "email").Logger(),
		now:         time.Now,
	}, nil
}

// NewSender picks the transport named by EMAIL_PROVIDER. SMTP is the default.
func NewSender(ctx context.Context, cfg *config.Config) (Sender, error) {
	switch cfg.EmailProvider {
	case "sendgrid":
		return NewSendGridSender(cfg.SendGridAPIKey), nil
	case "ses":
		awsCfg, err := cfg.AWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		return NewSESSender(sesv2.NewFromConfig(awsCfg)), nil
	default:
		return NewSMTPSender(cfg.EmailHost, cfg.SMTPPort, cfg.EmailUser, cfg.EmailPassword, cfg.SMTPSecure), nil
	}
}

// SendContactNotification tells the admin about a new submission. The
// Message-ID is the contact's own id so admin replies thread back to it.
func (es *EmailService) SendContactNotification(ctx context.Context, contact models.Contact) error {
	messageID := contact.MessageID
	if messageID == "" {
		messageID = es.generateMessageID()
	}
	return es.send(ctx, "notification", &OutboundMessage{
		To:        es.adminEmail,
		Subject:   "New Contact Form Submission",
		MessageID: messageID,
	}, contactBindings(contact, ""))
}

// SendContactAutoResponse thanks the sender and references their thread.
func (es *EmailService) SendContactAutoResponse(ctx context.Context, contact models.Contact) error {
	return es.send(ctx, "auto_response", &OutboundMessage{
		To:         contact.Email,
		ToName:     contact.Name,
		Subject:    "Thank you for contacting " + es.fromName,
		MessageID:  es.generateMessageID(),
		References: contact.MessageID,
	}, contactBindings(contact, ""))
}

// SendContactResponse sends an admin reply. messageID is the id stored on the
// response so the contact's answer can be correlated.
func (es *EmailService) SendContactResponse(ctx context.Context, contact models.Contact, responseText, messageID string) error {
	if messageID == "" {
		messageID = es.generateMessageID()
	}
	subject := contact.Subject
	if subject == "" {
		subject = "Your message to " + es.fromName
	}
	return es.send(ctx, "response", &OutboundMessage{
		To:         contact.Email,
		ToName:     contact.Name,
		Subject:    "Re: " + subject,
		MessageID:  messageID,
		InReplyTo:  contact.MessageID,
		References: contact.MessageID,
	}, contactBindings(contact, responseText))
}

// SendTestEmail verifies the outbound configuration by mailing the admin.
func (es *EmailService) SendTestEmail(ctx context.Context) error {
	return es.send(ctx, "test", &OutboundMessage{
		To:        es.adminEmail,
		Subject:   "Test Email - " + es.fromName,
		MessageID: es.generateMessageID(),
	}, map[string]any{})
}

func (es *EmailService) send(ctx context.Context, kind string, msg *OutboundMessage, bindings map[string]any) error {
	if es.sender == nil || es.fromAddress == "" {
		return ErrNotConfigured
	}
	if msg.To == "" {
		return fmt.Errorf("%s email has no recipient", kind)
	}

	bindings["site"] = es.fromName
	text, err := es.render(kind+"_text", bindings)
	if err != nil {
		return err
	}
	html, err := es.render(kind+"_html", bindings)
	if err != nil {
		return err
	}

	msg.FromName = es.fromName
	msg.FromAddress = es.fromAddress
	msg.Text = text
	msg.HTML = html

	if err := es.sender.Send(ctx, msg); err != nil {
		es.logger.Error().
			Err(err).
			Str("kind", kind).
			Str("to", models.RedactEmail(msg.To)).
			Msg("Failed to send email")
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}

	es.logger.Info().
		Str("kind", kind).
		Str("to", models.RedactEmail(msg.To)).
		Str("message_id", msg.MessageID).
		Msg("Email sent")
	return nil
}

func (es *EmailService) render(name string, bindings map[string]any) (string, error) {
	tpl, ok := es.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	out, err := tpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return out, nil
}

func (es *EmailService) generateMessageID() string {
	return fmt.Sprintf("%d.%s@%s", es.now().UnixMilli(), uuid.NewString(), es.domain)
}

func contactBindings(contact models.Contact, response string) map[string]any {
	return map[string]any{
		"name":      contact.Name,
		"email":     contact.Email,
		"message":   contact.Message,
		"timestamp": contact.CreatedAt.UTC().Format(time.RFC3339),
		"response":  response,
	}
}
