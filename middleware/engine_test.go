package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/credguard"
)

type memUsers struct {
	mu   sync.Mutex
	byID map[string]credguard.UserRecord
}

func (m *memUsers) find(match func(credguard.UserRecord) bool) (credguard.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if match(u) {
			return u, nil
		}
	}
	return credguard.UserRecord{}, credguard.ErrUserNotFound
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (credguard.UserRecord, error) {
	return m.find(func(u credguard.UserRecord) bool { return u.Email == email })
}

func (m *memUsers) GetUserByID(_ context.Context, id string) (credguard.UserRecord, error) {
	return m.find(func(u credguard.UserRecord) bool { return u.ID == id })
}

func (m *memUsers) CreateUser(ctx context.Context, email, hash string) (credguard.UserRecord, error) {
	if _, err := m.GetUserByEmail(ctx, email); err == nil {
		return credguard.UserRecord{}, credguard.ErrProviderDuplicateIdentifier
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u := credguard.UserRecord{ID: "user-1", Email: email, PasswordHash: hash, CreatedAt: time.Now()}
	m.byID[u.ID] = u
	return u, nil
}

func (m *memUsers) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	u.PasswordHash = hash
	m.byID[id] = u
	return nil
}

func (m *memUsers) UpdateEmail(_ context.Context, id, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	u.Email = email
	m.byID[id] = u
	return nil
}

func (m *memUsers) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.GetUserByEmail(ctx, email)
	return err == nil, nil
}

func TestGuardWithEngineRejectsLoggedOutToken(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := credguard.DefaultConfig()
	cfg.Access.PrivateKey = "0123456789abcdef0123456789abcdef"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := credguard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(&memUsers{byID: map[string]credguard.UserRecord{}}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	res, err := engine.Register(ctx, "guard@example.com", "Correct-Horse-42")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	h := Guard(engine)(okHandler(t, res.UserID))
	call := func() int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+res.AccessToken)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := call(); code != http.StatusNoContent {
		t.Fatalf("expected fresh token accepted, got %d", code)
	}
	if err := engine.Logout(ctx, res.AccessToken, res.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if code := call(); code != http.StatusUnauthorized {
		t.Fatalf("expected blacklisted token rejected, got %d", code)
	}
}
