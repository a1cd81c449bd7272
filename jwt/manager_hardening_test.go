package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newHSManager(t *testing.T, leeway time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    testSecret,
		Leeway:        leeway,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	m := newHSManager(t, 5*time.Second)
	now := time.Unix(1_700_000_000, 0)

	token, claims, err := m.Issue("u-42", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if claims.Subject != "u-42" || claims.Type != TokenType {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.ExpiresAt.Time.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", claims.ExpiresAt.Time)
	}

	got, err := m.Verify(token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.UserID() != "u-42" {
		t.Fatalf("unexpected subject %q", got.UserID())
	}
}

func TestIssueIsDeterministic(t *testing.T) {
	m := newHSManager(t, 0)
	now := time.Unix(1_700_000_000, 0)

	a, _, err := m.Issue("u-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	b, _, err := m.Issue("u-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if a != b {
		t.Fatal("same key, user and instant must yield the same token")
	}
}

func TestVerifyLeewayAppliesToExpiryOnly(t *testing.T) {
	m := newHSManager(t, 5*time.Second)
	now := time.Unix(1_700_000_000, 0)
	token, claims, err := m.Issue("u-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	exp := claims.ExpiresAt.Time

	if _, err := m.Verify(token, exp.Add(4*time.Second)); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	_, err = m.Verify(token, exp.Add(6*time.Second))
	if !errors.Is(err, ErrInvalid) || !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected expired token rejected as invalid, got %v", err)
	}

	// Leeway never rescues a bad signature.
	tampered := token[:len(token)-2] + flip(token[len(token)-2:])
	if _, err := m.Verify(tampered, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected tampered signature rejected, got %v", err)
	}
}

func flip(s string) string {
	if strings.HasPrefix(s, "A") {
		return "B" + s[1:]
	}
	return "A" + s[1:]
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	now := time.Now()
	claims := AccessClaims{Type: TokenType, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u-1",
		IssuedAt:  gjwt.NewNumericDate(now),
		ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Verify(token, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
}

func TestVerifyRejectsWrongType(t *testing.T) {
	m := newHSManager(t, 0)
	now := time.Now()
	claims := AccessClaims{Type: "refresh", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u-1",
		IssuedAt:  gjwt.NewNumericDate(now),
		ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
	}}
	token, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)

	if _, err := m.Verify(token, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected wrong typ to be rejected, got %v", err)
	}
}

func TestVerifyRequiresExpiry(t *testing.T) {
	m := newHSManager(t, 0)
	now := time.Now()
	claims := AccessClaims{Type: TokenType, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:  "u-1",
		IssuedAt: gjwt.NewNumericDate(now),
	}}
	token, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)

	if _, err := m.Verify(token, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected token without exp to be rejected, got %v", err)
	}
}

func TestVerifyIssuerAudience(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "gosession",
		Audience:      "chat",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	now := time.Now()

	access, _, err := m.Issue("u", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(access, now); err != nil {
		t.Fatalf("expected valid token to verify: %v", err)
	}

	base := gjwt.RegisteredClaims{
		Subject:   "u",
		ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(now),
	}

	wrongIssuer := AccessClaims{Type: TokenType, RegisteredClaims: base}
	wrongIssuer.Issuer = "other"
	wrongIssuer.Audience = gjwt.ClaimStrings{"chat"}
	badIssuer, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongIssuer).SignedString(priv)
	if _, err := m.Verify(badIssuer, now); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := AccessClaims{Type: TokenType, RegisteredClaims: base}
	wrongAudience.Issuer = "gosession"
	wrongAudience.Audience = gjwt.ClaimStrings{"other-api"}
	badAudience, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongAudience).SignedString(priv)
	if _, err := m.Verify(badAudience, now); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
}

func TestVerifyUnknownKidFails(t *testing.T) {
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
	now := time.Now()

	claims := AccessClaims{Type: TokenType, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u-1",
		IssuedAt:  gjwt.NewNumericDate(now),
		ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Verify(token, now); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	good, _, err := m.Issue("u-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(good, now); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.Verify(good, now); err == nil {
		t.Fatal("expected verify failure with mismatched key set")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := map[string]Config{
		"zero ttl":     {SigningMethod: MethodHS256, PrivateKey: testSecret},
		"short secret": {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		"huge leeway":  {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: testSecret, Leeway: time.Hour},
		"no method":    {AccessTTL: time.Minute, PrivateKey: testSecret},
		"ed no key":    {AccessTTL: time.Minute, SigningMethod: MethodEd25519},
	}
	for name, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected config error", name)
		}
	}
}
