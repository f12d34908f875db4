package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func validClaims(now time.Time) AccessClaims {
	return AccessClaims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{
		ID:        "jti-1",
		Issuer:    "credguard",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(now),
	}}
}

func TestCreateAndParseAccess(t *testing.T) {
	_, priv := newEdKeys(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "credguard",
		Now:           func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	access, err := m.CreateAccess("user-1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if access.JTI == "" {
		t.Fatal("expected jti")
	}
	if !access.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", access.ExpiresAt)
	}

	claims, err := m.ParseAccess(access.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UID != "user-1" || claims.JTI() != access.JTI {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if got := claims.Remaining(now.Add(5 * time.Minute)); got != 10*time.Minute {
		t.Fatalf("expected 10m remaining, got %v", got)
	}
	if got := claims.Remaining(now.Add(time.Hour)); got != 0 {
		t.Fatalf("expected 0 remaining after expiry, got %v", got)
	}

	second, err := m.CreateAccess("user-1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if second.JTI == access.JTI {
		t.Fatal("expected a fresh jti per token")
	}
}

func TestParseAccessUsesInjectedClock(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    key,
		Now:           func() time.Time { return clock },
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	access, err := m.CreateAccess("u")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	clock = now.Add(2 * time.Minute)
	if _, err := m.ParseAccess(access.Token); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestNewManagerRejectsShortHMACKey(t *testing.T) {
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short hs256 key to be rejected")
	}
}

func TestParseAccessRejectsMissingJTI(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: key})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := validClaims(time.Now())
	claims.ID = ""
	claims.Issuer = ""
	claims.Audience = nil
	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := m.ParseAccess(tok); !errors.Is(err, ErrMissingJTI) {
		t.Fatalf("expected ErrMissingJTI, got %v", err)
	}
}

func TestParseAccessRejectsMissingExpiry(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: key})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{UID: "u", RegisteredClaims: gjwt.RegisteredClaims{ID: "j"}}
	tok, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(key)
	if _, err := m.ParseAccess(tok); err == nil {
		t.Fatal("expected token without exp to be rejected")
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, validClaims(time.Now()))
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "credguard",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	access, err := m.CreateAccess("u")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(access.Token); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	now := time.Now()
	sign := func(c AccessClaims) string {
		s, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
		return s
	}

	wrongIssuer := validClaims(now)
	wrongIssuer.Issuer = "other"
	if _, err := m.ParseAccess(sign(wrongIssuer)); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := validClaims(now)
	wrongAudience.Audience = gjwt.ClaimStrings{"other-api"}
	if _, err := m.ParseAccess(sign(wrongAudience)); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	withinLeeway := validClaims(now)
	withinLeeway.ExpiresAt = gjwt.NewNumericDate(now.Add(-15 * time.Second))
	withinLeeway.IssuedAt = gjwt.NewNumericDate(now.Add(-time.Minute))
	if _, err := m.ParseAccess(sign(withinLeeway)); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	expired := validClaims(now)
	expired.ExpiresAt = gjwt.NewNumericDate(now.Add(-2 * time.Minute))
	expired.IssuedAt = gjwt.NewNumericDate(now.Add(-3 * time.Minute))
	if _, err := m.ParseAccess(sign(expired)); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseAccessUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys: map[string][]byte{
			"k1": pub1,
		},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := validClaims(time.Now())
	claims.Issuer = ""
	claims.Audience = nil
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	tok2 := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok2.Header["kid"] = "k1"
	good, _ := tok2.SignedString(priv1)
	if _, err := m.ParseAccess(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.ParseAccess(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}
