// Package audit records security relevant authentication events.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/delordemm1/siteauth/internal/database"
	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Actions recorded by the auth flows.
const (
	ActionSignup            = "signup"
	ActionSignupVerify      = "signup.verify"
	ActionLogin             = "login"
	ActionLogout            = "logout"
	ActionMFAVerify         = "mfa.verify"
	ActionMFABackup         = "mfa.verify_backup"
	ActionMFAEnable         = "mfa.enable"
	ActionMFADisable        = "mfa.disable"
	ActionDeviceTrust       = "device.trust"
	ActionDeviceRevoke      = "device.revoke"
	ActionSessionRevoke     = "session.revoke"
	ActionSessionRevokeRest = "session.revoke_others"
	ActionPasswordReset     = "password.reset"
	ActionOAuthCallback     = "oauth.callback"
	ActionMagicLink         = "magic_link"
)

type Event struct {
	ID        string    `db:"id"`
	UserID    *string   `db:"user_id"`
	SiteID    *string   `db:"site_id"`
	Email     string    `db:"email"`
	Action    string    `db:"action"`
	Outcome   Outcome   `db:"outcome"`
	Reason    string    `db:"reason"`
	IPAddress string    `db:"ip_address"`
	UserAgent string    `db:"user_agent"`
	CreatedAt time.Time `db:"created_at"`
}

// Store persists events.
type Store interface {
	Insert(ctx context.Context, e *Event) error
}

type pgStore struct {
	db   database.DBTX
	psql squirrel.StatementBuilderType
}

func NewStore(db database.DBTX) Store {
	return &pgStore{db: db, psql: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

func (s *pgStore) Insert(ctx context.Context, e *Event) error {
	sql, args, err := s.psql.Insert("auth_audit_events").
		Columns("id", "user_id", "site_id", "email", "action", "outcome", "reason", "ip_address", "user_agent", "created_at").
		Values(e.ID, e.UserID, e.SiteID, e.Email, e.Action, string(e.Outcome), e.Reason, e.IPAddress, e.UserAgent, e.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, sql, args...)
	return err
}

// Recorder writes events from a single background goroutine. Record never
// blocks: when the queue is full the event is dropped and logged.
type Recorder struct {
	store  Store
	logger *slog.Logger
	queue  chan Event
	wg     sync.WaitGroup
	once   sync.Once
}

func NewRecorder(store Store, logger *slog.Logger, size int) *Recorder {
	if size <= 0 {
		size = 1000
	}
	r := &Recorder{
		store:  store,
		logger: logger,
		queue:  make(chan Event, size),
	}
	r.wg.Add(1)
	go r.process()
	return r
}

func (r *Recorder) Record(e Event) {
	if e.ID == "" {
		if id, err := uuid.NewV7(); err == nil {
			e.ID = id.String()
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	select {
	case r.queue <- e:
	default:
		r.logger.Warn("audit queue full, event dropped", "action", e.Action, "outcome", e.Outcome)
	}
}

func (r *Recorder) process() {
	defer r.wg.Done()
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.store.Insert(ctx, &e); err != nil {
			r.logger.Error("audit insert failed", "action", e.Action, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queue to drain.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.queue) })
	r.wg.Wait()
}
