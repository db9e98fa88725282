package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (m *memStore) Insert(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("insert failed")
	}
	m.events = append(m.events, *e)
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRecorderDrainsOnClose(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, discard(), 10)

	uid := "user-1"
	r.Record(Event{UserID: &uid, Action: ActionMFAVerify, Outcome: OutcomeRejected, Reason: "invalid_code", IPAddress: "203.0.113.1"})
	r.Record(Event{Action: ActionSignup, Outcome: OutcomeSuccess, Email: "a@x.com"})
	r.Close()

	require.Len(t, store.events, 2)
	first := store.events[0]
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())
	assert.Equal(t, "203.0.113.1", first.IPAddress)
	assert.Equal(t, ActionSignup, store.events[1].Action)
}

func TestRecorderSurvivesStoreErrors(t *testing.T) {
	store := &memStore{fail: true}
	r := NewRecorder(store, discard(), 10)
	r.Record(Event{Action: ActionLogin, Outcome: OutcomeFailed})
	r.Close()
	assert.Empty(t, store.events)
}

func TestCloseIsIdempotent(t *testing.T) {
	r := NewRecorder(&memStore{}, discard(), 1)
	r.Close()
	assert.NotPanics(t, r.Close)
}
