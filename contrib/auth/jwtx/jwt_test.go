package jwtx

import (
	"errors"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error when config is nil")
	}

	if _, err := New(&Config{SecretKey: ""}); err == nil {
		t.Error("expected error when secret key is empty")
	}

	j, err := New(&Config{SecretKey: "secret"})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if j == nil {
		t.Error("expected JWT instance")
	}
}

func TestMustNewPanicsOnInvalidConfig(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic when config is invalid")
		}
	}()
	MustNew(&Config{SecretKey: ""})
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	j := MustNew(&Config{SecretKey: "secret", Issuer: "collabd", Expire: time.Hour})

	token, err := j.Issue(42, true)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := j.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != 42 || !claims.Admin {
		t.Errorf("claims = %+v, want UserID=42 Admin=true", claims)
	}
	if claims.Issuer != "collabd" {
		t.Errorf("issuer = %q, want collabd", claims.Issuer)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := MustNew(&Config{SecretKey: "secret-a", Expire: time.Hour})
	verifier := MustNew(&Config{SecretKey: "secret-b", Expire: time.Hour})

	token, err := issuer.Issue(7, false)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Error("expected verification to fail with a different secret")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	j := MustNew(&Config{SecretKey: "secret", Expire: -time.Minute})

	token, err := j.Issue(7, false)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := j.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}
