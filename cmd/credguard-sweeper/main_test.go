package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLoadSettingsAppliesEnv(t *testing.T) {
	t.Setenv("CREDGUARD_CONFIG", "")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("JWT_SIGNING_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("METRICS_ADDR", "")
	t.Setenv("SENTRY_DSN", "")

	s, err := loadSettings()
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if s.cfg.Redis.Addr != "redis.internal:6380" {
		t.Fatalf("redis addr not applied: %q", s.cfg.Redis.Addr)
	}
	if !s.cfg.Sweep.Enabled || s.cfg.Audit.Enabled {
		t.Fatalf("unexpected sweep/audit flags: %+v %+v", s.cfg.Sweep, s.cfg.Audit)
	}
	if s.metricsAddr != ":9464" || s.databaseURL != "postgres://x" {
		t.Fatalf("unexpected settings: %+v", s)
	}
}

func TestLoadSettingsRequiresSigningKey(t *testing.T) {
	t.Setenv("CREDGUARD_CONFIG", "")
	t.Setenv("JWT_SIGNING_KEY", "short")
	if _, err := loadSettings(); err == nil {
		t.Fatalf("expected validation error for short key")
	}
}

func TestHealthHandler(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	rec := httptest.NewRecorder()
	healthHandler(rdb)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	mr.SetError("down")
	rec = httptest.NewRecorder()
	healthHandler(rdb)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
