package bot

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5"

	"leech-bot/internal/domain"
	"leech-bot/internal/service"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []tgbotapi.MessageConfig
	forwards []tgbotapi.ForwardConfig
	requests []tgbotapi.Chattable
	nextID   int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	switch v := c.(type) {
	case tgbotapi.MessageConfig:
		f.messages = append(f.messages, v)
	case tgbotapi.ForwardConfig:
		f.forwards = append(f.forwards, v)
	}
	return tgbotapi.Message{MessageID: 1000 + f.nextID}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		t.Fatalf("no message sent")
	}
	return f.messages[len(f.messages)-1]
}

// fakeStore implementa los dos repositorios con la misma semántica que Postgres.
type fakeStore struct {
	mu     sync.Mutex
	users  map[int64]domain.UserRecord
	tokens map[string]domain.VerificationToken
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[int64]domain.UserRecord{}, tokens: map[string]domain.VerificationToken{}}
}

func (s *fakeStore) Get(_ context.Context, id int64) (domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.UserRecord{}, s.err
	}
	rec, ok := s.users[id]
	if !ok {
		return domain.UserRecord{}, pgx.ErrNoRows
	}
	return rec, nil
}

func (s *fakeStore) GetOrCreate(_ context.Context, id int64) (domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.UserRecord{}, s.err
	}
	rec, ok := s.users[id]
	if !ok {
		rec = domain.UserRecord{UserID: id, CreatedAt: time.Now().UTC()}
		s.users[id] = rec
	}
	return rec, nil
}

func (s *fakeStore) ConsumeAttempt(ctx context.Context, id int64, limit int) (domain.UserRecord, bool, error) {
	rec, err := s.GetOrCreate(ctx, id)
	if err != nil {
		return domain.UserRecord{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !rec.IsVerified && rec.FreeAttemptsUsed >= limit {
		return rec, false, nil
	}
	rec.TotalAttempts++
	if !rec.IsVerified {
		rec.FreeAttemptsUsed++
	}
	s.users[id] = rec
	return rec, true, nil
}

func (s *fakeStore) Aggregate(context.Context) (domain.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st domain.Stats
	for _, u := range s.users {
		st.TotalUsers++
		if u.IsVerified {
			st.VerifiedUsers++
		}
		st.TotalAttempts += u.TotalAttempts
	}
	return st, nil
}

func (s *fakeStore) Supersede(_ context.Context, tok domain.VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.tokens {
		if v.UserID == tok.UserID && !v.Consumed() {
			delete(s.tokens, k)
		}
	}
	s.tokens[tok.Digest] = tok
	return nil
}

func (s *fakeStore) Resolve(_ context.Context, digest string, now time.Time, timeout time.Duration) (domain.VerificationToken, domain.ResolveOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[digest]
	switch {
	case !ok:
		return domain.VerificationToken{}, domain.ResolveNotFound, nil
	case tok.Consumed():
		return tok, domain.ResolveAlreadyConsumed, nil
	case tok.Expired(now, timeout):
		return tok, domain.ResolveExpired, nil
	}
	tok.ConsumedAt = &now
	s.tokens[digest] = tok
	rec := s.users[tok.UserID]
	rec.UserID = tok.UserID
	rec.IsVerified = true
	rec.VerifiedAt = &now
	s.users[tok.UserID] = rec
	return tok, domain.ResolveSuccess, nil
}

func (s *fakeStore) PurgeStale(context.Context, time.Time, time.Time) (int64, error) {
	return 0, nil
}

type stubShortener struct {
	err error
}

func (s stubShortener) Shorten(_ context.Context, longURL string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://sho.rt/" + strings.TrimPrefix(longURL, "https://"), nil
}

type recordingForwarder struct {
	mu     sync.Mutex
	events []domain.ForwardEvent
	err    error
}

func (r *recordingForwarder) Forward(_ context.Context, ev domain.ForwardEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

const ownerID = 999

type harness struct {
	handler    *Handler
	sender     *fakeSender
	store      *fakeStore
	forwarder  *recordingForwarder
	dispatcher *service.ForwardDispatcher
	nextUpdate int
}

func newHarness(shortener service.Shortener) *harness {
	store := newFakeStore()
	sender := &fakeSender{}
	fwd := &recordingForwarder{}
	dispatcher := service.NewForwardDispatcher(nil, fwd, nil, -100123, true, time.Second)
	links := service.CallbackLinks{BotUsername: "LeechBot"}
	issuer := service.NewTokenIssuer(nil, store, shortener, nil, links, time.Hour)
	deps := Deps{
		Gate:       service.NewAttemptGate(nil, store, issuer, dispatcher, 3),
		Resolver:   service.NewVerificationResolver(nil, store, time.Hour),
		Stats:      service.NewStatsAggregator(store),
		Dispatcher: dispatcher,
		Shortener:  shortener,
		Deduper:    service.NewMemoryUpdateDeduper(),
	}
	settings := Settings{
		BotUsername:     "LeechBot",
		OwnerID:         ownerID,
		BackupChannelID: -100123,
		AutoForward:     true,
		Tutorial:        "https://youtube.com/watch?v=howto",
	}
	return &harness{
		handler:    NewHandler(nil, sender, deps, settings),
		sender:     sender,
		store:      store,
		forwarder:  fwd,
		dispatcher: dispatcher,
	}
}

func (h *harness) send(userID int64, text string) {
	h.nextUpdate++
	msg := &tgbotapi.Message{
		MessageID: h.nextUpdate,
		From:      &tgbotapi.User{ID: userID, FirstName: "Ana", UserName: "ana"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmdLen := len(strings.Fields(text)[0])
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}}
	}
	h.handler.HandleUpdate(context.Background(), tgbotapi.Update{UpdateID: h.nextUpdate, Message: msg})
}

var tokenInText = regexp.MustCompile(`verify_([0-9a-f]{32})`)

func TestHandler_LeechFlow(t *testing.T) {
	h := newHarness(nil)

	for i := 1; i <= 3; i++ {
		h.send(42, "https://terabox.com/s/file"+string(rune('0'+i)))
		if text := h.sender.last(t).Text; !strings.Contains(text, "Leech Attempt #") {
			t.Fatalf("attempt %d: unexpected reply %q", i, text)
		}
	}
	if !strings.Contains(h.sender.last(t).Text, "Remaining Free Attempts: 0") {
		t.Fatalf("expected remaining counter in %q", h.sender.last(t).Text)
	}

	h.send(42, "/leech https://terabox.com/s/file4")
	denied := h.sender.last(t)
	if !strings.Contains(denied.Text, "Verification Required") {
		t.Fatalf("expected verification prompt, got %q", denied.Text)
	}
	kb, ok := denied.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 2 {
		t.Fatalf("expected verify + tutorial buttons, got %#v", denied.ReplyMarkup)
	}
	m := tokenInText.FindStringSubmatch(denied.Text)
	if m == nil {
		t.Fatalf("verification link not found in %q", denied.Text)
	}

	h.send(42, "/start verify_"+m[1])
	if text := h.sender.last(t).Text; !strings.Contains(text, "Verification Successful") {
		t.Fatalf("expected verified reply, got %q", text)
	}

	h.send(42, "/start verify_"+m[1])
	if text := h.sender.last(t).Text; text != msgTokenUsed {
		t.Fatalf("expected already-used reply, got %q", text)
	}

	h.send(42, "https://terabox.com/s/file5")
	if text := h.sender.last(t).Text; !strings.Contains(text, "Leech Attempt #4") {
		t.Fatalf("verified user must be allowed, got %q", text)
	}

	h.dispatcher.Wait()
	h.forwarder.mu.Lock()
	defer h.forwarder.mu.Unlock()
	if len(h.forwarder.events) != 4 {
		t.Fatalf("expected 4 forwards, got %d", len(h.forwarder.events))
	}
	if h.forwarder.events[3].Artifact.Link != "https://terabox.com/s/file5" {
		t.Fatalf("unexpected artifact %+v", h.forwarder.events[3].Artifact)
	}
}

func TestHandler_ShortenedVerificationLink(t *testing.T) {
	h := newHarness(stubShortener{})
	h.store.users[7] = domain.UserRecord{UserID: 7, FreeAttemptsUsed: 3}

	h.send(7, "/leech")
	text := h.sender.last(t).Text
	if !strings.Contains(text, "https://sho.rt/t.me/LeechBot?start=verify_") {
		t.Fatalf("expected shortened link, got %q", text)
	}
}

func TestHandler_InvalidStartToken(t *testing.T) {
	h := newHarness(nil)
	h.send(42, "/start verify_nope")
	if text := h.sender.last(t).Text; text != msgTokenInvalid {
		t.Fatalf("expected invalid token reply, got %q", text)
	}
}

func TestHandler_StorageFailure(t *testing.T) {
	h := newHarness(nil)
	h.store.err = errors.New("db down")
	h.send(42, "https://terabox.com/s/x")
	if text := h.sender.last(t).Text; text != msgTryAgain {
		t.Fatalf("expected generic retry message, got %q", text)
	}
}

func TestHandler_Stats(t *testing.T) {
	h := newHarness(nil)

	h.send(42, "/stats")
	userText := h.sender.last(t).Text
	if !strings.Contains(userText, "Your Stats") || strings.Contains(userText, "Bot Stats") {
		t.Fatalf("unexpected user stats %q", userText)
	}

	h.send(ownerID, "/stats")
	ownerText := h.sender.last(t).Text
	if !strings.Contains(ownerText, "Bot Stats (Admin Only)") || !strings.Contains(ownerText, "Total Users: 2") {
		t.Fatalf("owner must see bot stats, got %q", ownerText)
	}
}

func TestHandler_OwnerCommands(t *testing.T) {
	t.Run("non owner rejected", func(t *testing.T) {
		h := newHarness(nil)
		h.send(42, "/testforward")
		if text := h.sender.last(t).Text; text != msgOwnerOnly {
			t.Fatalf("expected owner-only reply, got %q", text)
		}
		h.send(42, "/testapi")
		if text := h.sender.last(t).Text; text != msgOwnerOnly {
			t.Fatalf("expected owner-only reply, got %q", text)
		}
	})

	t.Run("testforward", func(t *testing.T) {
		h := newHarness(nil)
		h.send(ownerID, "/testforward")
		if text := h.sender.last(t).Text; !strings.Contains(text, "Auto-forward test successful") {
			t.Fatalf("unexpected reply %q", text)
		}
		if len(h.forwarder.events) != 1 || h.forwarder.events[0].DestinationChannelID != -100123 {
			t.Fatalf("expected one forward to the backup channel, got %+v", h.forwarder.events)
		}
	})

	t.Run("testforward failure", func(t *testing.T) {
		h := newHarness(nil)
		h.forwarder.err = errors.New("chat not found")
		h.send(ownerID, "/testforward")
		if text := h.sender.last(t).Text; !strings.Contains(text, "chat not found") {
			t.Fatalf("expected failure reason, got %q", text)
		}
	})

	t.Run("testapi", func(t *testing.T) {
		h := newHarness(stubShortener{})
		h.send(ownerID, "/testapi")
		if text := h.sender.last(t).Text; !strings.Contains(text, "https://sho.rt/t.me/LeechBot") {
			t.Fatalf("unexpected reply %q", text)
		}
	})

	t.Run("testapi unconfigured", func(t *testing.T) {
		h := newHarness(nil)
		h.send(ownerID, "/testapi")
		if text := h.sender.last(t).Text; !strings.Contains(text, "not configured") {
			t.Fatalf("unexpected reply %q", text)
		}
	})
}

func TestHandler_DuplicateUpdateIgnored(t *testing.T) {
	h := newHarness(nil)
	upd := tgbotapi.Update{
		UpdateID: 77,
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: 42, FirstName: "Ana"},
			Chat:      &tgbotapi.Chat{ID: 42},
			Text:      "https://terabox.com/s/dup",
		},
	}
	h.handler.HandleUpdate(context.Background(), upd)
	h.handler.HandleUpdate(context.Background(), upd)

	if got := h.store.users[42].FreeAttemptsUsed; got != 1 {
		t.Fatalf("redelivered update must count once, got %d", got)
	}
}

func TestHandler_CallbackAnswered(t *testing.T) {
	h := newHarness(nil)
	h.handler.HandleUpdate(context.Background(), tgbotapi.Update{
		UpdateID:      5,
		CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb-1", From: &tgbotapi.User{ID: 42}},
	})
	if len(h.sender.requests) != 1 {
		t.Fatalf("expected callback answer")
	}
	cb, ok := h.sender.requests[0].(tgbotapi.CallbackConfig)
	if !ok || cb.CallbackQueryID != "cb-1" {
		t.Fatalf("unexpected request %#v", h.sender.requests[0])
	}
}

func TestHandler_NotifyVerified(t *testing.T) {
	h := newHarness(nil)
	h.handler.NotifyVerified(context.Background(), 42)
	msg := h.sender.last(t)
	if msg.ChatID != 42 || msg.Text != msgVerified {
		t.Fatalf("unexpected notification %+v", msg)
	}
}

type chanSource struct {
	ch      chan tgbotapi.Update
	stopped bool
}

func (c *chanSource) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.ch
}

func (c *chanSource) StopReceivingUpdates() {
	c.stopped = true
}

func TestHandler_RunStopsOnCancel(t *testing.T) {
	h := newHarness(nil)
	src := &chanSource{ch: make(chan tgbotapi.Update, 1)}
	src.ch <- tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: 42},
			Chat:      &tgbotapi.Chat{ID: 42},
			Text:      "https://terabox.com/s/run",
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.handler.Run(ctx, src) }()

	deadline := time.After(2 * time.Second)
	for {
		h.sender.mu.Lock()
		n := len(h.sender.messages)
		h.sender.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("update was not handled")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
	if !src.stopped {
		t.Fatalf("expected polling to be stopped")
	}
}

func TestHumanDuration(t *testing.T) {
	cases := map[time.Duration]string{
		time.Hour:        "1 hour",
		2 * time.Hour:    "2 hours",
		10 * time.Minute: "10 minutes",
		90 * time.Second: "1m30s",
	}
	for d, want := range cases {
		if got := humanDuration(d); got != want {
			t.Fatalf("%v: got %q, want %q", d, got, want)
		}
	}
}

func TestRateLimitedMessage(t *testing.T) {
	if got := rateLimitedMessage(4*time.Minute + 30*time.Second); !strings.Contains(got, "try again in 5 minutes") {
		t.Fatalf("expected wait rounded up to minutes, got %q", got)
	}
	if got := rateLimitedMessage(0); !strings.Contains(got, "a few minutes") {
		t.Fatalf("expected generic wait without retry hint, got %q", got)
	}
}
