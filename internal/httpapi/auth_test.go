package httpapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.User
	updates int
}

func (s *userStoreStub) GetUserByLogin(_ context.Context, login string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[login]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, login string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[login]
	user.Password = password
	s.users[login] = user
	s.updates++
	return nil
}

func newStubWithBcryptUser(t *testing.T, login string, password string, role domain.Role) *userStoreStub {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &userStoreStub{users: map[string]domain.User{
		login: {ID: 7, Login: login, Password: string(hash), Role: role, CreatedAt: time.Now().UTC()},
	}}
}

func TestLoginIssuesParseableToken(t *testing.T) {
	users := newStubWithBcryptUser(t, "cashier", "secret-pass", domain.RoleCashier)
	auth := NewAuthManager("test-secret-test-secret-test-secret!", time.Hour, users, nil)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Login: "cashier", Password: "secret-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "cashier" || resp.UserID != 7 {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Login != "cashier" || actor.Role != domain.RoleCashier || actor.UserID != 7 {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	users := newStubWithBcryptUser(t, "cashier", "secret-pass", domain.RoleCashier)
	auth := NewAuthManager("test-secret-test-secret-test-secret!", time.Hour, users, nil)

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Login: "cashier", Password: "wrong"}); err == nil {
		t.Fatalf("expected wrong password to be rejected")
	}
	if _, err := auth.Login(context.Background(), domain.LoginRequest{Login: "nobody", Password: "x"}); err == nil {
		t.Fatalf("expected unknown login to be rejected")
	}
}

func TestBcryptVerifierRejectsPlaintextStored(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.User{
		"legacy": {ID: 1, Login: "legacy", Password: "plain123", Role: domain.RoleClient},
	}}
	auth := NewAuthManager("test-secret-test-secret-test-secret!", time.Hour, users, BcryptVerifier{})

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Login: "legacy", Password: "plain123"}); err == nil {
		t.Fatalf("bcrypt verifier must reject plaintext stored passwords")
	}
}

func TestPlaintextVerifierUpgradesOnLogin(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.User{
		"legacy": {ID: 1, Login: "legacy", Password: "plain123", Role: domain.RoleClient},
	}}
	auth := NewAuthManager("test-secret-test-secret-test-secret!", time.Hour, users, PlaintextVerifier{})

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Login: "legacy", Password: "plain123"}); err != nil {
		t.Fatalf("legacy login failed: %v", err)
	}

	users.mu.Lock()
	stored := users.users["legacy"].Password
	updates := users.updates
	users.mu.Unlock()

	if updates != 1 {
		t.Fatalf("expected one password rehash, got %d", updates)
	}
	if !isPasswordHash(stored) {
		t.Fatalf("expected stored password to be rehashed, got %q", stored)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte("plain123")) != nil {
		t.Fatalf("rehashed password does not verify")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := NewAuthManager("test-secret-test-secret-test-secret!", time.Hour, nil, nil)
	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}

	other := NewAuthManager("another-secret-another-secret-anoth", time.Hour, nil, nil)
	users := newStubWithBcryptUser(t, "cashier", "secret-pass", domain.RoleCashier)
	signedBy := NewAuthManager("test-secret-test-secret-test-secret!", time.Hour, users, nil)
	resp, err := signedBy.Login(context.Background(), domain.LoginRequest{Login: "cashier", Password: "secret-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}
