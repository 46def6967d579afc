package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	svc := NewTokenService("test-secret", 2*time.Hour)

	token, err := svc.Issue("GAR_1700000000000_ABCDEFGHI", TypeGarage, "owner@example.com", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Sub != "GAR_1700000000000_ABCDEFGHI" {
		t.Errorf("Sub = %q", claims.Sub)
	}
	if claims.Type != TypeGarage {
		t.Errorf("Type = %q", claims.Type)
	}
	if claims.Email != "owner@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}
	if claims.SessionID == "" {
		t.Error("SessionID is empty")
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) < time.Hour {
		t.Error("expiry not roughly TTL in the future")
	}
}

func TestVerifyExpired(t *testing.T) {
	svc := NewTokenService("test-secret", 2*time.Hour)

	token, err := svc.IssueWithTTL("ADMIN_1_X", TypeAdmin, "a@b.c", "admin", -time.Minute)
	if err != nil {
		t.Fatalf("IssueWithTTL: %v", err)
	}

	_, err = svc.Verify(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
	if !IsExpiry(err) {
		t.Error("IsExpiry should report true for ErrTokenExpired")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-one", time.Hour)
	verifier := NewTokenService("secret-two", time.Hour)

	token, err := issuer.Issue("ADMIN_1_X", TypeAdmin, "a@b.c", "admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("err = %v, want ErrTokenMalformed", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	for _, tok := range []string{"", "not-a-jwt", "aa.bb.cc"} {
		if _, err := svc.Verify(tok); !errors.Is(err, ErrTokenMalformed) {
			t.Errorf("Verify(%q) err = %v, want ErrTokenMalformed", tok, err)
		}
	}
}

func TestSessionIDsDiffer(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	t1, _ := svc.Issue("A", TypeAdmin, "a@b.c", "admin")
	t2, _ := svc.Issue("A", TypeAdmin, "a@b.c", "admin")

	c1, err1 := svc.Verify(t1)
	c2, err2 := svc.Verify(t2)
	if err1 != nil || err2 != nil {
		t.Fatalf("verify: %v %v", err1, err2)
	}
	if c1.SessionID == c2.SessionID {
		t.Error("two issued tokens share a session id")
	}
}
