package emails

import (
	"errors"
	"strings"
	"testing"

	"otmsite/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawMessage(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParseMessage_PlainReply(t *testing.T) {
	raw := rawMessage(
		"From: Jane Doe <Jane.Doe@Example.com>",
		"To: contact@otmeducation.com",
		"Subject: Re: Your message to OTM Education",
		"Message-ID: <reply-1@mail.example.com>",
		"In-Reply-To: <contact-123@otmeducation.com>",
		"References: <root@otmeducation.com> <contact-123@otmeducation.com>",
		"Date: Thu, 08 May 2025 08:48:00 +0000",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Thanks!",
		"",
		"On Thu, May 8, 2025 at 8:46 AM OTM wrote:",
		"> Hello",
	)

	email, err := ParseMessage(raw)
	require.NoError(t, err)

	assert.Equal(t, "jane.doe@example.com", email.From)
	assert.Equal(t, "Jane Doe", email.FromName)
	assert.Equal(t, "Re: Your message to OTM Education", email.Subject)
	assert.Equal(t, "reply-1@mail.example.com", email.MessageID)
	assert.Equal(t, []string{"contact-123@otmeducation.com"}, email.InReplyTo)
	assert.Equal(t, []string{"root@otmeducation.com", "contact-123@otmeducation.com"}, email.References)
	assert.Equal(t, 2025, email.Date.Year())
	assert.Contains(t, email.Text, "Thanks!")
	assert.Empty(t, email.HTML)
	assert.True(t, email.IsReply())
}

func TestParseMessage_MultipartAlternative(t *testing.T) {
	raw := rawMessage(
		"From: bob@example.com",
		"Subject: Question",
		"Message-ID: <q-1@example.com>",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Plain body",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Html body</p>",
		"--b1--",
		"",
	)

	email, err := ParseMessage(raw)
	require.NoError(t, err)

	assert.Equal(t, "bob@example.com", email.From)
	assert.Equal(t, "Plain body", strings.TrimSpace(email.Text))
	assert.Equal(t, "<p>Html body</p>", strings.TrimSpace(email.HTML))
	assert.False(t, email.IsReply())
}

func TestParseMessage_HTMLOnly(t *testing.T) {
	raw := rawMessage(
		"From: <bob@example.com>",
		"Subject: Html",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<div>Hi <b>there</b></div>",
	)

	email, err := ParseMessage(raw)
	require.NoError(t, err)

	assert.Empty(t, email.Text)
	assert.Contains(t, email.HTML, "<b>there</b>")
}

func TestParseMessage_NoSender(t *testing.T) {
	raw := rawMessage(
		"Subject: orphan",
		"",
		"body",
	)

	_, err := ParseMessage(raw)
	assert.True(t, errors.Is(err, ErrNoSender))
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"bare", "jane@example.com", "jane@example.com"},
		{"mixed case", "Jane@Example.COM", "jane@example.com"},
		{"display name", "Jane Doe <jane@example.com>", "jane@example.com"},
		{"angle only", "<jane@example.com>", "jane@example.com"},
		{"padded", "  jane@example.com ", "jane@example.com"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeAddress(tt.raw))
		})
	}
}

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		raw   string
		valid bool
	}{
		{"jane@example.com", true},
		{"Jane <jane@example.com>", true},
		{" jane@example.com ", true},
		{"jane", false},
		{"jane@", false},
		{"", false},
		{"a@b.com, c@d.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidAddress(tt.raw))
		})
	}
}

func TestMessageIDHelpers(t *testing.T) {
	assert.Equal(t, "abc@x", CleanMessageID(" <abc@x> "))
	assert.Equal(t, "abc@x", CleanMessageID("abc@x"))
	assert.True(t, SameMessageID("<abc@X.com>", "abc@x.com"))
	assert.False(t, SameMessageID("", ""))
	assert.False(t, SameMessageID("a@x", "b@x"))
	assert.Equal(t, "jane", LocalPart("jane@example.com"))
	assert.Equal(t, "noat", LocalPart("noat"))
}

func TestParseMBOX(t *testing.T) {
	mbox := strings.Join([]string{
		"From jane@example.com Thu May  8 08:48:00 2025",
		"From: jane@example.com",
		"Subject: first",
		"Message-ID: <m1@example.com>",
		"",
		"first body",
		">From the archive",
		"",
		"From bob@example.com Thu May  8 09:00:00 2025",
		"From: bob@example.com",
		"Subject: second",
		"Message-ID: <m2@example.com>",
		"",
		"second body",
		"",
		"From nobody Thu May  8 09:10:00 2025",
		"Subject: no sender",
		"",
		"ignored",
		"",
	}, "\n")

	var got []*models.InboundEmail
	parsed, failed, err := ParseMBOX(strings.NewReader(mbox), func(email *models.InboundEmail) error {
		got = append(got, email)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, parsed)
	assert.Equal(t, 1, failed)
	require.Len(t, got, 2)
	assert.Equal(t, "m1@example.com", got[0].MessageID)
	assert.Contains(t, got[0].Text, "From the archive")
	assert.Equal(t, "bob@example.com", got[1].From)
}

func TestParseMBOX_CallbackErrorStops(t *testing.T) {
	mbox := "From a\nFrom: a@example.com\n\nx\nFrom b\nFrom: b@example.com\n\ny\n"
	stop := errors.New("stop")

	calls := 0
	_, _, err := ParseMBOX(strings.NewReader(mbox), func(*models.InboundEmail) error {
		calls++
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
