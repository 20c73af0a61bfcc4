package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fitcheckr/fitcheckr/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const key = "fitcheckr:subscribers"

type fakeMailer struct {
	sent []string
	err  error
}

func (m *fakeMailer) SendEmail(_ context.Context, _, toEmail, _, _, _ string) error {
	m.sent = append(m.sent, toEmail)
	return m.err
}

type failingStore struct {
	store.ListStore
	getErr error
	setErr error
}

func (f failingStore) Get(ctx context.Context, k string) ([]string, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.ListStore.Get(ctx, k)
}

func (f failingStore) Set(ctx context.Context, k string, v []string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.ListStore.Set(ctx, k, v)
}

func TestValidEmail(t *testing.T) {
	tests := map[string]bool{
		"user@example.com":      true,
		"first.last@shop.co.uk": true,
		"not-an-email":          false,
		"missing@tld":           false,
		"@example.com":          false,
		"space in@example.com":  false,
		"":                      false,
	}
	for email, want := range tests {
		assert.Equal(t, want, ValidEmail(email), email)
	}
}

func TestSubscribe_Idempotent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	mailer := &fakeMailer{}
	svc := NewService(mem, key, mailer, zerolog.Nop())

	first, err := svc.Subscribe(ctx, "user@example.com")
	require.NoError(t, err)
	assert.False(t, first.Existing)
	assert.Equal(t, 1, first.Total)

	second, err := svc.Subscribe(ctx, "user@example.com")
	require.NoError(t, err)
	assert.True(t, second.Existing)
	assert.Equal(t, 1, second.Total)

	stored, _, err := mem.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"user@example.com"}, stored)
	assert.Equal(t, []string{"user@example.com"}, mailer.sent)
}

func TestSubscribe_InvalidLeavesListUntouched(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Set(ctx, key, []string{"a@example.com"}))
	svc := NewService(mem, key, nil, zerolog.Nop())

	_, err := svc.Subscribe(ctx, "not-an-email")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	stored, _, err := mem.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com"}, stored)
}

func TestSubscribe_StoreFailures(t *testing.T) {
	ctx := context.Background()

	readFail := NewService(failingStore{ListStore: store.NewMemoryStore(), getErr: errors.New("down")}, key, nil, zerolog.Nop())
	_, err := readFail.Subscribe(ctx, "a@example.com")
	assert.ErrorContains(t, err, "failed to read subscribers")

	writeFail := NewService(failingStore{ListStore: store.NewMemoryStore(), setErr: errors.New("down")}, key, nil, zerolog.Nop())
	_, err = writeFail.Subscribe(ctx, "a@example.com")
	assert.ErrorContains(t, err, "failed to save subscribers")
}

func TestSubscribe_MailFailureStillSubscribes(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemoryStore(), key, &fakeMailer{err: errors.New("sendgrid down")}, zerolog.Nop())

	out, err := svc.Subscribe(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Total)
}

type blockingMailer struct {
	started chan string
	release chan struct{}
}

func (m *blockingMailer) SendEmail(ctx context.Context, _, toEmail, _, _, _ string) error {
	m.started <- toEmail
	select {
	case <-m.release:
	case <-ctx.Done():
	}
	return nil
}

func TestSubscribe_SlowMailDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	mailer := &blockingMailer{started: make(chan string, 4), release: make(chan struct{})}
	svc := NewService(store.NewMemoryStore(), key, mailer, zerolog.Nop())

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Subscribe(ctx, "a@example.com")
		firstDone <- err
	}()
	require.Equal(t, "a@example.com", <-mailer.started)

	again := make(chan Outcome, 1)
	go func() {
		out, err := svc.Subscribe(ctx, "a@example.com")
		assert.NoError(t, err)
		again <- out
	}()

	select {
	case out := <-again:
		assert.True(t, out.Existing)
		assert.Equal(t, 1, out.Total)
	case <-time.After(2 * time.Second):
		t.Fatal("re-subscribe waited on another subscriber's welcome email")
	}

	close(mailer.release)
	require.NoError(t, <-firstDone)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemoryStore(), key, nil, zerolog.Nop())

	snap, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Emails)
	assert.Nil(t, snap.LastUpdated)

	for _, email := range []string{"b@example.com", "a@example.com"} {
		_, err := svc.Subscribe(ctx, email)
		require.NoError(t, err)
	}

	snap, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b@example.com", "a@example.com"}, snap.Emails)
	assert.NotNil(t, snap.LastUpdated)

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "memory", svc.StorageType())
}
