package emails

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"otmsite/internal/models"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/cases"
)

// ErrNoSender is returned when a message has no usable From address.
var ErrNoSender = errors.New("message has no sender address")

var (
	angleAddress = regexp.MustCompile(`<([^<>]+)>`)
	msgIDToken   = regexp.MustCompile(`<[^<>]+>|[^\s<>,]+`)
	addressFold  = cases.Fold()
)

// ParseMessage parses a raw RFC 5322 message into an InboundEmail. The sender
// is normalized to a single address and message ids lose their angle brackets.
func ParseMessage(raw []byte) (*models.InboundEmail, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read email message: %w", err)
	}
	defer func() { _ = mr.Close() }()

	email := &models.InboundEmail{}
	header := mr.Header

	from, name := senderAddress(header)
	if from == "" {
		return nil, ErrNoSender
	}
	email.From = from
	email.FromName = name

	if subject, err := header.Subject(); err == nil {
		email.Subject = subject
	} else {
		email.Subject = header.Get("Subject")
	}

	if id, err := header.MessageID(); err == nil && id != "" {
		email.MessageID = id
	} else {
		email.MessageID = CleanMessageID(header.Get("Message-Id"))
	}

	email.InReplyTo = messageIDList(header, "In-Reply-To")
	email.References = messageIDList(header, "References")

	if date, err := header.Date(); err == nil && !date.IsZero() {
		email.Date = date
	} else {
		email.Date = time.Now()
	}

	text, htmlBody := readBodies(mr)
	email.Text = text
	email.HTML = htmlBody

	return email, nil
}

// readBodies returns the first text/plain and text/html inline parts.
func readBodies(mr *mail.Reader) (string, string) {
	var text, htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			break
		}
		if part == nil {
			continue
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if contentType == "" {
			contentType = "text/plain"
		}
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && text == "":
			text = string(body)
		case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
			htmlBody = string(body)
		}
	}
	return text, htmlBody
}

func senderAddress(header mail.Header) (string, string) {
	if list, err := header.AddressList("From"); err == nil && len(list) > 0 {
		return NormalizeAddress(list[0].Address), list[0].Name
	}
	return NormalizeAddress(header.Get("From")), ""
}

func messageIDList(header mail.Header, key string) []string {
	if ids, err := header.MsgIDList(key); err == nil && len(ids) > 0 {
		return ids
	}
	raw := header.Get(key)
	if raw == "" {
		return nil
	}
	var ids []string
	for _, tok := range msgIDToken.FindAllString(raw, -1) {
		if id := CleanMessageID(tok); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// NormalizeAddress reduces a From value to one case-folded address. It
// accepts a bare address, "Name <addr>", or an address in angle brackets.
func NormalizeAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(raw); err == nil {
		return addressFold.String(strings.TrimSpace(addr.Address))
	}
	if m := angleAddress.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	return addressFold.String(strings.TrimSpace(raw))
}

// IsValidAddress reports whether raw parses as a single mailbox address.
func IsValidAddress(raw string) bool {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	return err == nil && strings.Contains(addr.Address, "@")
}

// LocalPart returns the portion of an address before '@'.
func LocalPart(address string) string {
	if i := strings.IndexByte(address, '@'); i > 0 {
		return address[:i]
	}
	return address
}

// CleanMessageID removes surrounding whitespace and angle brackets.
func CleanMessageID(msgID string) string {
	msgID = strings.TrimSpace(msgID)
	msgID = strings.TrimPrefix(msgID, "<")
	msgID = strings.TrimSuffix(msgID, ">")
	return strings.TrimSpace(msgID)
}

// SameMessageID compares two ids with brackets and case of the domain ignored.
func SameMessageID(a, b string) bool {
	a, b = CleanMessageID(a), CleanMessageID(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

// MBOXCallback receives each message of an mbox file. Returning an error stops the scan.
type MBOXCallback func(email *models.InboundEmail) error

// ParseMBOX streams an mbox archive, handing every parsable message to fn.
// Messages that fail to parse are counted and skipped.
func ParseMBOX(r io.Reader, fn MBOXCallback) (parsed int, failed int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var current bytes.Buffer
	emit := func() error {
		if current.Len() == 0 {
			return nil
		}
		defer current.Reset()
		email, perr := ParseMessage(current.Bytes())
		if perr != nil {
			failed++
			return nil
		}
		parsed++
		return fn(email)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "From ") {
			if err := emit(); err != nil {
				return parsed, failed, err
			}
			continue
		}
		// mboxrd escaping
		if strings.HasPrefix(line, ">From ") {
			line = line[1:]
		}
		current.WriteString(line)
		current.WriteString("\r\n")
	}
	if err := scanner.Err(); err != nil {
		return parsed, failed, fmt.Errorf("error reading MBOX: %w", err)
	}
	if err := emit(); err != nil {
		return parsed, failed, err
	}
	return parsed, failed, nil
}
