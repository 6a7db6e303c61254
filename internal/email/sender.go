package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// ErrNotConfigured is returned when no outbound transport is configured.
var ErrNotConfigured = errors.New("email service not configured")

// OutboundMessage is a fully rendered email. Message ids are stored without
// angle brackets; transports add them.
type OutboundMessage struct {
	FromName    string
	FromAddress string
	To          string
	ToName      string
	Subject     string
	Text        string
	HTML        string
	MessageID   string
	InReplyTo   string
	References  string
}

// Sender delivers an OutboundMessage.
type Sender interface {
	Send(ctx context.Context, msg *OutboundMessage) error
}

// SendGridSender sends through the SendGrid v3 API.
type SendGridSender struct {
	apiKey string
}

// NewSendGridSender creates a SendGrid transport.
func NewSendGridSender(apiKey string) *SendGridSender {
	return &SendGridSender{apiKey: apiKey}
}

// Send delivers msg, carrying the threading headers as custom headers.
func (s *SendGridSender) Send(ctx context.Context, msg *OutboundMessage) error {
	if s.apiKey == "" {
		return fmt.Errorf("SendGrid API key not configured: %w", ErrNotConfigured)
	}

	from := sgmail.NewEmail(msg.FromName, msg.FromAddress)
	to := sgmail.NewEmail(msg.ToName, msg.To)
	message := sgmail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)
	for key, value := range threadingHeaders(msg) {
		message.SetHeader(key, value)
	}

	client := sendgrid.NewSendClient(s.apiKey)
	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}

	return nil
}

func threadingHeaders(msg *OutboundMessage) map[string]string {
	headers := make(map[string]string, 3)
	if msg.MessageID != "" {
		headers["Message-ID"] = "<" + msg.MessageID + ">"
	}
	if msg.InReplyTo != "" {
		headers["In-Reply-To"] = "<" + msg.InReplyTo + ">"
	}
	if msg.References != "" {
		headers["References"] = "<" + msg.References + ">"
	}
	return headers
}

// SMTPSender sends multipart/alternative messages over SMTP.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	// ImplicitTLS dials with TLS; otherwise STARTTLS is used when offered.
	ImplicitTLS bool
	Timeout     time.Duration
	now         func() time.Time
}

// NewSMTPSender creates an SMTP transport.
func NewSMTPSender(host string, port int, username, password string, implicitTLS bool) *SMTPSender {
	return &SMTPSender{
		Host:        host,
		Port:        port,
		Username:    username,
		Password:    password,
		ImplicitTLS: implicitTLS,
		Timeout:     30 * time.Second,
		now:         time.Now,
	}
}

// Send composes msg and delivers it.
func (s *SMTPSender) Send(ctx context.Context, msg *OutboundMessage) error {
	if s.Username == "" || s.Password == "" {
		return fmt.Errorf("EMAIL_USER and EMAIL_PASSWORD must be set: %w", ErrNotConfigured)
	}

	body, err := compose(msg, s.now())
	if err != nil {
		return err
	}

	client, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("AUTH"); ok {
		auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}

	if err := client.Mail(msg.FromAddress); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("SMTP RCPT TO: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := writer.Write(body); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}

func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	dialer := &net.Dialer{Timeout: s.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial to %s: %w", addr, err)
	}
	deadline := time.Now().Add(s.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	tlsConfig := &tls.Config{ServerName: s.Host}
	if s.ImplicitTLS {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("creating SMTP client: %w", err)
	}

	if !s.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("SMTP STARTTLS: %w", err)
			}
		}
	}
	return client, nil
}

// compose renders msg as a multipart/alternative RFC 5322 message.
func compose(msg *OutboundMessage, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Name: msg.FromName, Address: msg.FromAddress}})
	h.SetAddressList("To", []*mail.Address{{Name: msg.ToName, Address: msg.To}})
	h.SetSubject(msg.Subject)
	if msg.MessageID != "" {
		h.SetMessageID(msg.MessageID)
	}
	if msg.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{msg.InReplyTo})
	}
	if msg.References != "" {
		h.SetMsgIDList("References", []string{msg.References})
	}

	var buf bytes.Buffer
	w, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", msg.Text},
		{"text/html", msg.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		var ph mail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		ph.Set("Content-Transfer-Encoding", "quoted-printable")
		pw, err := w.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("creating %s part: %w", p.contentType, err)
		}
		if _, err := io.WriteString(pw, p.body); err != nil {
			return nil, fmt.Errorf("writing %s part: %w", p.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return nil, fmt.Errorf("closing %s part: %w", p.contentType, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message: %w", err)
	}
	return buf.Bytes(), nil
}
