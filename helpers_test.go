package credguard

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/credguard/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testSigningKey = "0123456789abcdef0123456789abcdef"
	testPassword   = "Correct-Horse-42"
	testLinkBase   = "https://app.test/t/"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memUsers struct {
	mu      sync.Mutex
	byID    map[string]UserRecord
	byEmail map[string]string
	nextID  int

	// raceDuplicate makes CreateUser and UpdateEmail report a unique
	// violation as if another writer won.
	raceDuplicate bool
	calls         int
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]UserRecord{}, byEmail: map[string]string{}}
}

func (m *memUsers) put(email, hash string) UserRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u := UserRecord{ID: fmt.Sprintf("u%d", m.nextID), Email: email, PasswordHash: hash}
	m.byID[u.ID] = u
	m.byEmail[email] = u.ID
	return u
}

func (m *memUsers) get(id string) UserRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memUsers) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	id, ok := m.byEmail[email]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return m.byID[id], nil
}

func (m *memUsers) GetUserByID(_ context.Context, id string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	u, ok := m.byID[id]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) CreateUser(_ context.Context, email, hash string) (UserRecord, error) {
	m.mu.Lock()
	m.calls++
	_, taken := m.byEmail[email]
	race := m.raceDuplicate
	m.mu.Unlock()
	if taken || race {
		return UserRecord{}, fmt.Errorf("insert: %w", ErrProviderDuplicateIdentifier)
	}
	return m.put(email, hash), nil
}

func (m *memUsers) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	u, ok := m.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	m.byID[id] = u
	return nil
}

func (m *memUsers) UpdateEmail(_ context.Context, id, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if _, taken := m.byEmail[email]; taken || m.raceDuplicate {
		return ErrProviderDuplicateIdentifier
	}
	u, ok := m.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(m.byEmail, u.Email)
	u.Email = email
	m.byID[id] = u
	m.byEmail[email] = id
	return nil
}

func (m *memUsers) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	_, ok := m.byEmail[email]
	return ok, nil
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (r *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	r.mu.Lock()
	r.sent = append(r.sent, sentMail{To: to, Subject: subject, Body: body})
	r.mu.Unlock()
	return nil
}

func (r *recordingMailer) to(addr string) []sentMail {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentMail
	for _, m := range r.sent {
		if m.To == addr {
			out = append(out, m)
		}
	}
	return out
}

func (r *recordingMailer) withSubject(subject string) []sentMail {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentMail
	for _, m := range r.sent {
		if m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, ev AuditEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) ofType(eventType string) []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for _, ev := range s.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	users  *memUsers
	mailer *recordingMailer
	audit  *recordingSink
	clock  *testClock
	hasher *password.Hasher
}

func testPasswordConfig() PasswordConfig {
	return PasswordConfig{
		Memory:         8 * 1024,
		Time:           1,
		Parallelism:    1,
		SaltLength:     16,
		KeyLength:      32,
		Concurrency:    4,
		UpgradeOnLogin: true,
	}
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Access.PrivateKey = testSigningKey
	cfg.Access.Leeway = 0
	cfg.Password = testPasswordConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	cfg.Mail.DropIfFull = false
	cfg.Mail.LinkBaseURL = testLinkBase
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// newTestEnv builds an engine over miniredis. mutate may be nil.
func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, rdb := newTestRedis(t)
	env := &testEnv{
		mr:     mr,
		rdb:    rdb,
		users:  newMemUsers(),
		mailer: &recordingMailer{},
		audit:  &recordingSink{},
		clock:  newTestClock(),
	}

	h, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	env.hasher = h

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(env.users).
		WithMailer(env.mailer).
		WithAuditSink(env.audit).
		WithClock(env.clock).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	env.engine = engine
	t.Cleanup(engine.Close)
	return env
}

// seed stores a user with an argon2id hash of plaintext.
func (e *testEnv) seed(t *testing.T, email, plaintext string) UserRecord {
	t.Helper()
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return e.users.put(email, hash)
}

// advance moves the engine clock and Redis TTLs together.
func (e *testEnv) advance(d time.Duration) {
	e.clock.Advance(d)
	e.mr.FastForward(d)
}

// flush drains the mail and audit queues. The engine is unusable afterwards.
func (e *testEnv) flush() {
	e.engine.Close()
}

var linkToken = regexp.MustCompile(regexp.QuoteMeta(testLinkBase) + `([A-Za-z0-9_-]+)`)

func tokenFromMail(t *testing.T, m sentMail) string {
	t.Helper()
	match := linkToken.FindStringSubmatch(m.Body)
	if match == nil {
		t.Fatalf("no token link in mail %q", strings.TrimSpace(m.Body))
	}
	return match[1]
}

// waitTo polls until at least n messages reached addr.
func (r *recordingMailer) waitTo(t *testing.T, addr string, n int) []sentMail {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got := r.to(addr)
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d mails to %s, got %d", n, addr, len(got))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
