package credguard

import (
	"context"
	"errors"
	"testing"
)

func TestEmailChangeFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	u := env.seed(t, "alice@example.com", testPassword)
	env.seed(t, "taken@example.com", testPassword)

	if err := env.engine.RequestEmailChange(ctx, u.ID, "nope"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	if err := env.engine.RequestEmailChange(ctx, u.ID, "Taken@Example.com"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := env.engine.RequestEmailChange(ctx, "ghost", "ghost@example.com"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown user, got %v", err)
	}

	if err := env.engine.RequestEmailChange(ctx, u.ID, "alice.new@example.com"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	mails := env.mailer.waitTo(t, "alice.new@example.com", 1)
	token := tokenFromMail(t, mails[0])

	if err := env.engine.ConfirmEmailChange(ctx, token); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if got := env.users.get(u.ID).Email; got != "alice.new@example.com" {
		t.Fatalf("email not updated, got %q", got)
	}
	if err := env.engine.ConfirmEmailChange(ctx, token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected used token to be unauthorized, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice.new@example.com", testPassword); err != nil {
		t.Fatalf("login with new address failed: %v", err)
	}

	env.flush()
	old := env.mailer.to("alice@example.com")
	if len(old) != 1 || old[0].Subject != "Your email address was changed" {
		t.Fatalf("expected change notice to the old address, got %+v", old)
	}
}

func TestEmailChangeConflictAtConfirm(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	u := env.seed(t, "alice@example.com", testPassword)

	if err := env.engine.RequestEmailChange(ctx, u.ID, "contested@example.com"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	token := tokenFromMail(t, env.mailer.waitTo(t, "contested@example.com", 1)[0])

	env.seed(t, "contested@example.com", testPassword)

	if err := env.engine.ConfirmEmailChange(ctx, token); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict at confirm, got %v", err)
	}
	if got := env.users.get(u.ID).Email; got != "alice@example.com" {
		t.Fatalf("email must be unchanged, got %q", got)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricEmailChangeConflict]; got != 1 {
		t.Fatalf("expected one conflict, got %d", got)
	}
}

func TestEmailChangeProviderDuplicateReleasesToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	u := env.seed(t, "alice@example.com", testPassword)

	if err := env.engine.RequestEmailChange(ctx, u.ID, "racy@example.com"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	token := tokenFromMail(t, env.mailer.waitTo(t, "racy@example.com", 1)[0])

	env.users.mu.Lock()
	env.users.raceDuplicate = true
	env.users.mu.Unlock()
	if err := env.engine.ConfirmEmailChange(ctx, token); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict from provider, got %v", err)
	}

	env.users.mu.Lock()
	env.users.raceDuplicate = false
	env.users.mu.Unlock()
	if err := env.engine.ConfirmEmailChange(ctx, token); err != nil {
		t.Fatalf("released token must be redeemable, got %v", err)
	}
}

func TestEmailChangeRateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.EmailChange.MaxTokensPerHour = 10 })
	ctx := context.Background()
	u := env.seed(t, "alice@example.com", testPassword)

	for i := 0; i < 5; i++ {
		if err := env.engine.RequestEmailChange(ctx, u.ID, "next@example.com"); err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
	}
	if err := env.engine.RequestEmailChange(ctx, u.ID, "next@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
}

func TestEmailChangeIssuanceCap(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	u := env.seed(t, "alice@example.com", testPassword)

	for i := 0; i < 3; i++ {
		if err := env.engine.RequestEmailChange(ctx, u.ID, "next@example.com"); err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
	}
	if err := env.engine.RequestEmailChange(ctx, u.ID, "next@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected issuance cap, got %v", err)
	}
}
