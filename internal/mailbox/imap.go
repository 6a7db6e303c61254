package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"otmsite/internal/config"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// RawMessage is one fetched RFC 5322 message.
type RawMessage struct {
	UID  uint32
	Body []byte
}

// Session is an authenticated connection with the inbox selected.
type Session interface {
	UnseenUIDs(ctx context.Context) ([]uint32, error)
	Fetch(ctx context.Context, uids []uint32) ([]RawMessage, error)
	MarkSeen(ctx context.Context, uids ...uint32) error
	Close() error
}

// Dialer opens a new Session. Every poll cycle dials afresh.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// IMAPDialer connects to an IMAP server with go-imap.
type IMAPDialer struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS selects implicit TLS; otherwise the connection is upgraded with STARTTLS.
	TLS bool
	// DialTimeout bounds the TCP connect. The whole session is also bounded
	// by the deadline of the context passed to Dial.
	DialTimeout time.Duration
}

// Dial connects, logs in and selects INBOX.
func (d *IMAPDialer) Dial(ctx context.Context) (Session, error) {
	addr := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))

	timeout := d.DialTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// A hung server must not outlive the poll cycle.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	var client *imapclient.Client
	if d.TLS {
		client = imapclient.New(tls.Client(conn, &tls.Config{ServerName: d.Host}), nil)
	} else {
		client, err = imapclient.NewStartTLS(conn, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: d.Host},
		})
		if err != nil {
			stop()
			_ = conn.Close()
			return nil, fmt.Errorf("starting TLS with %s: %w", addr, err)
		}
	}

	if err := client.Login(d.Username, d.Password).Wait(); err != nil {
		stop()
		_ = client.Close()
		return nil, fmt.Errorf("authentication failed for %s: %w", d.Username, err)
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		stop()
		_ = client.Logout().Wait()
		_ = client.Close()
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	return &imapSession{client: client, stop: stop}, nil
}

type imapSession struct {
	client *imapclient.Client
	stop   func() bool
}

func (s *imapSession) UnseenUIDs(_ context.Context) ([]uint32, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen messages: %w", err)
	}

	uids := data.AllUIDs()
	out := make([]uint32, len(uids))
	for i, uid := range uids {
		out[i] = uint32(uid)
	}
	return out, nil
}

func (s *imapSession) Fetch(_ context.Context, uids []uint32) ([]RawMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	// Peek leaves \Seen untouched until the message has been stored.
	section := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := s.client.Fetch(uidSet(uids), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer fetchCmd.Close()

	var messages []RawMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		body := buf.FindBodySection(section)
		if body == nil {
			continue
		}
		messages = append(messages, RawMessage{UID: uint32(buf.UID), Body: body})
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching messages: %w", err)
	}
	return messages, nil
}

func (s *imapSession) MarkSeen(_ context.Context, uids ...uint32) error {
	if len(uids) == 0 {
		return nil
	}
	storeCmd := s.client.Store(uidSet(uids), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking messages seen: %w", err)
	}
	return nil
}

func (s *imapSession) Close() error {
	defer s.stop()
	_ = s.client.Logout().Wait()
	return s.client.Close()
}

func uidSet(uids []uint32) imap.UIDSet {
	set := make([]imap.UID, len(uids))
	for i, uid := range uids {
		set[i] = imap.UID(uid)
	}
	return imap.UIDSetNum(set...)
}

// NewIMAPDialerFromConfig builds the dialer for the configured inbox.
func NewIMAPDialerFromConfig(cfg *config.Config) (*IMAPDialer, error) {
	if !cfg.MailboxConfigured() {
		return nil, ErrNotConfigured
	}
	return &IMAPDialer{
		Host:        cfg.EmailHost,
		Port:        cfg.IMAPPort,
		Username:    cfg.EmailUser,
		Password:    cfg.EmailPassword,
		TLS:         cfg.IMAPTLS,
		DialTimeout: 30 * time.Second,
	}, nil
}
