package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"leech-bot/internal/domain"
)

// mockStore reproduce en memoria la semántica atómica de los repos Pg.
type mockStore struct {
	mu     sync.Mutex
	users  map[int64]domain.UserRecord
	tokens map[string]domain.VerificationToken
	err    error

	purgeConsumedBefore time.Time
	purgeIssuedBefore   time.Time
}

func newMockStore() *mockStore {
	return &mockStore{
		users:  make(map[int64]domain.UserRecord),
		tokens: make(map[string]domain.VerificationToken),
	}
}

func (m *mockStore) user(id int64) domain.UserRecord {
	rec, ok := m.users[id]
	if !ok {
		rec = domain.UserRecord{UserID: id, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
		m.users[id] = rec
	}
	return rec
}

func (m *mockStore) Get(_ context.Context, userID int64) (domain.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.UserRecord{}, m.err
	}
	rec, ok := m.users[userID]
	if !ok {
		return domain.UserRecord{}, pgx.ErrNoRows
	}
	return rec, nil
}

func (m *mockStore) GetOrCreate(_ context.Context, userID int64) (domain.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.UserRecord{}, m.err
	}
	return m.user(userID), nil
}

func (m *mockStore) ConsumeAttempt(_ context.Context, userID int64, freeLimit int) (domain.UserRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.UserRecord{}, false, m.err
	}
	rec := m.user(userID)
	if !rec.IsVerified && rec.FreeAttemptsUsed >= freeLimit {
		return rec, false, nil
	}
	rec.TotalAttempts++
	if !rec.IsVerified {
		rec.FreeAttemptsUsed++
	}
	m.users[userID] = rec
	return rec, true, nil
}

func (m *mockStore) Aggregate(_ context.Context) (domain.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Stats{}, m.err
	}
	var s domain.Stats
	for _, u := range m.users {
		s.TotalUsers++
		if u.IsVerified {
			s.VerifiedUsers++
		}
		s.TotalAttempts += u.TotalAttempts
	}
	return s, nil
}

func (m *mockStore) Supersede(_ context.Context, token domain.VerificationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.user(token.UserID)
	for digest, tok := range m.tokens {
		if tok.UserID == token.UserID && !tok.Consumed() {
			delete(m.tokens, digest)
		}
	}
	m.tokens[token.Digest] = token
	return nil
}

func (m *mockStore) Resolve(_ context.Context, digest string, now time.Time, timeout time.Duration) (domain.VerificationToken, domain.ResolveOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.VerificationToken{}, "", m.err
	}
	tok, ok := m.tokens[digest]
	if !ok {
		return domain.VerificationToken{}, domain.ResolveNotFound, nil
	}
	if tok.Consumed() {
		return tok, domain.ResolveAlreadyConsumed, nil
	}
	if tok.Expired(now, timeout) {
		return tok, domain.ResolveExpired, nil
	}
	consumedAt := now
	tok.ConsumedAt = &consumedAt
	m.tokens[digest] = tok

	rec := m.user(tok.UserID)
	rec.IsVerified = true
	verifiedAt := now
	rec.VerifiedAt = &verifiedAt
	m.users[tok.UserID] = rec
	return tok, domain.ResolveSuccess, nil
}

func (m *mockStore) PurgeStale(_ context.Context, consumedBefore, issuedBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.purgeConsumedBefore = consumedBefore
	m.purgeIssuedBefore = issuedBefore
	var n int64
	for digest, tok := range m.tokens {
		if (tok.Consumed() && tok.ConsumedAt.Before(consumedBefore)) || tok.IssuedAt.Before(issuedBefore) {
			delete(m.tokens, digest)
			n++
		}
	}
	return n, nil
}

func (m *mockStore) setUser(rec domain.UserRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[rec.UserID] = rec
}

func (m *mockStore) getUser(id int64) domain.UserRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

func (m *mockStore) tokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

type mockShortener struct {
	lastURL string
	short   string
	err     error
}

func (m *mockShortener) Shorten(_ context.Context, longURL string) (string, error) {
	m.lastURL = longURL
	if m.err != nil {
		return "", m.err
	}
	return m.short, nil
}

type denyLimiter struct {
	retryAfter time.Duration
}

func (d denyLimiter) Allow(context.Context, int64) (bool, time.Duration, error) {
	return false, d.retryAfter, nil
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, int64) (bool, time.Duration, error) {
	return true, 0, errors.New("redis down")
}

type recordingScheduler struct {
	mu     sync.Mutex
	events []domain.ForwardEvent
}

func (r *recordingScheduler) Dispatch(ev domain.ForwardEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingScheduler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type mockForwarder struct {
	mu    sync.Mutex
	calls []domain.ForwardEvent
	err   error
	block bool
}

func (m *mockForwarder) Forward(ctx context.Context, ev domain.ForwardEvent) error {
	m.mu.Lock()
	m.calls = append(m.calls, ev)
	block, err := m.block, m.err
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (m *mockForwarder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockReporter struct {
	mu     sync.Mutex
	causes []error
	err    error
}

func (m *mockReporter) ReportForwardFailure(_ context.Context, _ domain.ForwardEvent, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.causes = append(m.causes, cause)
	return m.err
}

func (m *mockReporter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.causes)
}

var errStoreDown = errors.New("connection refused")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
