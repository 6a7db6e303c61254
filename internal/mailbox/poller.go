package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"otmsite/internal/emails"
	"otmsite/internal/models"

	"github.com/rs/zerolog"
)

var (
	// ErrPollInProgress is returned when a poll is requested while another runs.
	ErrPollInProgress = errors.New("a mailbox poll is already in progress")
	// ErrNotConfigured is returned when no mailbox credentials are set.
	ErrNotConfigured = errors.New("mailbox is not configured")
)

// State is the poller's position in its cycle.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateBoxOpen    State = "box_open"
	StateSearching  State = "searching"
	StateFetching   State = "fetching"
	StateStopped    State = "stopped"
)

// Ingester receives parsed inbound mail.
type Ingester interface {
	AddEmailResponse(ctx context.Context, email models.InboundEmail) (*models.Contact, error)
}

// PollResult counts what one cycle did with the unseen messages it found.
type PollResult struct {
	Found     int `json:"found"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Options configures a Poller.
type Options struct {
	// OwnAddress is the mailbox's own address; mail from it is not ingested.
	OwnAddress string
	Interval   time.Duration
	// Timeout bounds a whole cycle, from dial to the last mark-seen.
	Timeout time.Duration
}

// Poller periodically reads unseen mail and hands it to an Ingester.
type Poller struct {
	dialer  Dialer
	ingest  Ingester
	own     string
	timeout time.Duration
	logger  zerolog.Logger
	parse   func([]byte) (*models.InboundEmail, error)

	mu       sync.Mutex
	interval time.Duration
	phase    State
	running  bool
	stopped  bool
	stop     chan struct{}

	inFlight atomic.Bool
}

// NewPoller creates a stopped poller. Call Start to begin polling.
func NewPoller(dialer Dialer, ingest Ingester, opts Options, logger zerolog.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Poller{
		dialer:   dialer,
		ingest:   ingest,
		own:      emails.NormalizeAddress(opts.OwnAddress),
		timeout:  opts.Timeout,
		interval: opts.Interval,
		logger:   logger.With().Str("component", "mailbox_poller").Logger(),
		parse:    emails.ParseMessage,
		phase:    StateIdle,
	}
}

// Start polls immediately and then on every interval tick until Stop is
// called or ctx is cancelled. Calling Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopped = false
	p.stop = make(chan struct{})

	p.logger.Info().Dur("interval", p.interval).Msg("Starting mailbox poller")
	go p.loop(ctx, p.interval, p.stop)
}

// Stop clears the schedule. A poll already in flight finishes on its own.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	close(p.stop)
	p.running = false
	p.stopped = true
	p.logger.Info().Msg("Mailbox poller stopped")
}

// Restart stops the poller and starts it again with a new interval. A
// non-positive interval keeps the current one.
func (p *Poller) Restart(ctx context.Context, interval time.Duration) {
	p.Stop()
	if interval > 0 {
		p.mu.Lock()
		p.interval = interval
		p.mu.Unlock()
	}
	p.Start(ctx)
}

// State returns the current cycle phase, or StateStopped after Stop.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return StateStopped
	}
	return p.phase
}

// Interval returns the current polling interval.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Running reports whether the schedule is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) loop(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.runCycle(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			p.Stop()
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

func (p *Poller) runCycle(ctx context.Context) {
	result, err := p.PollOnce(ctx)
	switch {
	case errors.Is(err, ErrPollInProgress):
		p.logger.Debug().Msg("Previous poll still running, skipping tick")
	case err != nil:
		p.logger.Error().Err(err).Msg("Mailbox poll failed")
	case result.Found > 0:
		p.logger.Info().
			Int("found", result.Found).
			Int("processed", result.Processed).
			Int("skipped", result.Skipped).
			Int("failed", result.Failed).
			Msg("Mailbox poll complete")
	}
}

// PollOnce runs a single cycle: connect, search unseen mail, fetch it and
// hand each message to the Ingester. A message is marked seen only after it
// has been stored, when it is the mailbox's own mail, or when it cannot be
// parsed. Messages that fail to store stay unseen for the next cycle.
func (p *Poller) PollOnce(ctx context.Context) (*PollResult, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return nil, ErrPollInProgress
	}
	defer p.inFlight.Store(false)
	defer p.setPhase(StateIdle)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.setPhase(StateConnecting)
	session, err := p.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open mailbox: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("Closing mailbox session")
		}
	}()
	p.setPhase(StateBoxOpen)

	p.setPhase(StateSearching)
	uids, err := session.UnseenUIDs(ctx)
	if err != nil {
		return nil, err
	}
	result := &PollResult{Found: len(uids)}
	if len(uids) == 0 {
		return result, nil
	}

	p.setPhase(StateFetching)
	messages, err := session.Fetch(ctx, uids)
	if err != nil && len(messages) == 0 {
		return result, err
	}
	if err != nil {
		p.logger.Warn().Err(err).Int("fetched", len(messages)).Msg("Fetch ended early, processing partial batch")
	}

	for _, msg := range messages {
		seen := false
		switch p.handle(ctx, msg) {
		case outcomeProcessed:
			result.Processed++
			seen = true
		case outcomeSkipped:
			result.Skipped++
			seen = true
		case outcomeUnparseable:
			result.Failed++
			seen = true
		default:
			result.Failed++
		}
		if !seen {
			continue
		}
		if err := session.MarkSeen(ctx, msg.UID); err != nil {
			p.logger.Warn().Err(err).Uint32("uid", msg.UID).Msg("Failed to mark message seen")
		}
	}
	result.Failed += len(uids) - len(messages)

	return result, nil
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	// outcomeUnparseable never succeeds on retry, so the message is marked seen.
	outcomeUnparseable
	outcomeFailed
)

func (p *Poller) handle(ctx context.Context, msg RawMessage) outcome {
	email, err := p.parse(msg.Body)
	if err != nil {
		p.logger.Warn().Err(err).Uint32("uid", msg.UID).Msg("Failed to parse message, skipping")
		return outcomeUnparseable
	}

	if p.own != "" && email.From == p.own {
		p.logger.Debug().Uint32("uid", msg.UID).Msg("Skipping message sent from own address")
		return outcomeSkipped
	}

	emails.PrepareBody(email)

	if _, err := p.ingest.AddEmailResponse(ctx, *email); err != nil {
		p.logger.Error().
			Err(err).
			Uint32("uid", msg.UID).
			Str("from", models.RedactEmail(email.From)).
			Msg("Failed to store inbound email, leaving unseen")
		return outcomeFailed
	}
	return outcomeProcessed
}

func (p *Poller) setPhase(s State) {
	p.mu.Lock()
	p.phase = s
	p.mu.Unlock()
}
