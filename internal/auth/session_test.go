package auth

import (
	"context"
	"testing"
	"time"
)

func newTestManager(clock func() time.Time) *SessionManager {
	return NewSessionManager(SessionManagerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "awards-auth",
		Audience:      "awards-api",
		TokenTTL:      time.Hour,
		Clock:         clock,
	})
}

func TestSessionTokenRoundTrip(t *testing.T) {
	issuedAt := time.Unix(1700000000, 0).UTC()
	manager := newTestManager(func() time.Time { return issuedAt })

	token, expiresIn, err := manager.IssueSessionToken(context.Background(), "user-1", "foo", "https://cdn.example/foo.png", []string{RoleAdmin})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if expiresIn != 3600 {
		t.Fatalf("expected 3600s expiry, got %d", expiresIn)
	}

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject: %q", claims.Subject)
	}
	if claims.Username != "foo" {
		t.Fatalf("unexpected username: %q", claims.Username)
	}
	if !claims.HasRole(RoleAdmin) {
		t.Fatalf("expected admin role")
	}
	if claims.HasRole("operator") {
		t.Fatalf("unexpected role match")
	}
}

func TestSessionTokenRejectsExpired(t *testing.T) {
	issuedAt := time.Unix(1700000000, 0).UTC()
	manager := newTestManager(func() time.Time { return issuedAt })

	token, _, err := manager.IssueSessionToken(context.Background(), "user-1", "", "", nil)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	lateManager := newTestManager(func() time.Time { return issuedAt.Add(2 * time.Hour) })
	if _, err := lateManager.ValidateToken(token); err == nil {
		t.Fatalf("expected expired token to fail validation")
	}
}

func TestSessionTokenRejectsWrongAudience(t *testing.T) {
	issuedAt := time.Unix(1700000000, 0).UTC()
	manager := newTestManager(func() time.Time { return issuedAt })

	token, _, err := manager.IssueSessionToken(context.Background(), "user-1", "", "", nil)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	other := NewSessionManager(SessionManagerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "awards-auth",
		Audience:      "another-api",
		Clock:         func() time.Time { return issuedAt },
	})
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatalf("expected audience mismatch to fail validation")
	}
}

func TestIssueSessionTokenRequiresSubject(t *testing.T) {
	manager := newTestManager(nil)
	if _, _, err := manager.IssueSessionToken(context.Background(), "", "", "", nil); err == nil {
		t.Fatalf("expected error without subject")
	}
}
