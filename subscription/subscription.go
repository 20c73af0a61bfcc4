// Package subscription manages the marketing email list.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/fitcheckr/fitcheckr/store"
	"github.com/rs/zerolog"
)

// ErrInvalidEmail is returned for addresses that are not local@domain.tld shaped.
var ErrInvalidEmail = errors.New("invalid email address")

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether email is local@domain.tld shaped.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// Mailer sends one email.
type Mailer interface {
	SendEmail(ctx context.Context, toName, toEmail, subject, textContent, htmlContent string) error
}

// Outcome describes a successful Subscribe call.
type Outcome struct {
	Existing bool
	Total    int
}

// Snapshot is the full subscriber list at one point in time.
type Snapshot struct {
	Emails      []string
	LastUpdated *time.Time
}

// Service appends addresses to the list stored under one key.
type Service struct {
	store  store.ListStore
	key    string
	mailer Mailer
	logger zerolog.Logger

	// mu serializes read-modify-write within this process only.
	mu sync.Mutex
}

// NewService returns a Service. mailer may be nil.
func NewService(s store.ListStore, key string, mailer Mailer, logger zerolog.Logger) *Service {
	return &Service{store: s, key: key, mailer: mailer, logger: logger}
}

// StorageType names the backing store.
func (s *Service) StorageType() string {
	return s.store.Kind()
}

// Subscribe adds email to the list unless it is already there.
func (s *Service) Subscribe(ctx context.Context, email string) (Outcome, error) {
	if !ValidEmail(email) {
		return Outcome{}, ErrInvalidEmail
	}

	out, err := s.add(ctx, email)
	if err != nil || out.Existing {
		return out, err
	}

	s.logger.Debug().Str("email", email).Int("total", out.Total).Msg("new subscriber")
	// Sent after the list lock is released so a slow mail provider does not stall other
	// subscribers.
	s.sendWelcome(ctx, email)
	return out, nil
}

// add performs the read-modify-write under mu.
func (s *Service) add(ctx context.Context, email string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, _, err := s.store.Get(ctx, s.key)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to read subscribers: %w", err)
	}
	if slices.Contains(current, email) {
		return Outcome{Existing: true, Total: len(current)}, nil
	}

	updated := append(slices.Clip(current), email)
	if err := s.store.Set(ctx, s.key, updated); err != nil {
		return Outcome{}, fmt.Errorf("failed to save subscribers: %w", err)
	}
	return Outcome{Total: len(updated)}, nil
}

func (s *Service) sendWelcome(ctx context.Context, email string) {
	if s.mailer == nil {
		return
	}
	err := s.mailer.SendEmail(ctx, "", email,
		"You're on the FitCheckr list",
		"Thanks for subscribing to FitCheckr. We'll let you know when new try-on features launch.",
		"<p>Thanks for subscribing to <strong>FitCheckr</strong>. We'll let you know when new try-on features launch.</p>")
	if err != nil {
		// The subscription is already stored; a failed welcome mail does not undo it.
		s.logger.Warn().Err(err).Msg("failed to send welcome email")
	}
}

// Count returns the number of subscribers.
func (s *Service) Count(ctx context.Context) (int, error) {
	current, _, err := s.store.Get(ctx, s.key)
	if err != nil {
		return 0, fmt.Errorf("failed to read subscribers: %w", err)
	}
	return len(current), nil
}

// List returns every subscriber in insertion order.
func (s *Service) List(ctx context.Context) (Snapshot, error) {
	current, _, err := s.store.Get(ctx, s.key)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read subscribers: %w", err)
	}
	snap := Snapshot{Emails: current}
	if snap.Emails == nil {
		snap.Emails = []string{}
	}
	if ts, ok := s.store.(store.Timestamped); ok {
		updated, found, err := ts.LastUpdated(ctx, s.key)
		if err == nil && found {
			snap.LastUpdated = &updated
		}
	}
	return snap, nil
}
