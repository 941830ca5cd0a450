package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/askstack/askstack-backend/internal/domain"
	"github.com/askstack/askstack-backend/internal/platform/apierr"
	"github.com/askstack/askstack-backend/internal/platform/dbctx"
	"github.com/askstack/askstack-backend/internal/platform/logger"
)

type stubUserRepo struct {
	byEmail map[string]*domain.User
}

func (s *stubUserRepo) Create(dbc dbctx.Context, user *domain.User) (*domain.User, error) {
	if s.byEmail == nil {
		s.byEmail = map[string]*domain.User{}
	}
	s.byEmail[user.Email] = user
	return user, nil
}

func (s *stubUserRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.User, error) {
	for _, u := range s.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (s *stubUserRepo) GetByEmail(dbc dbctx.Context, email string) (*domain.User, error) {
	return s.byEmail[email], nil
}

func newAuthFixture(t *testing.T) (AuthService, *stubUserRepo) {
	t.Helper()
	users := &stubUserRepo{}
	svc, err := NewAuthService(logger.NewNop(), users, AuthConfig{
		Secret:   "test-secret",
		Issuer:   "askstack",
		TokenTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return svc, users
}

func TestRegisterAndParseToken(t *testing.T) {
	svc, users := newAuthFixture(t)

	user, token, err := svc.Register(context.Background(), "  Dev@Example.COM ", "correct horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "dev@example.com" {
		t.Fatalf("email = %q, want normalized", user.Email)
	}
	if users.byEmail["dev@example.com"] == nil {
		t.Fatal("user not persisted")
	}
	if user.PasswordHash == "correct horse" || user.PasswordHash == "" {
		t.Fatal("password stored unhashed")
	}

	gotID, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if gotID != user.ID {
		t.Fatalf("subject = %s, want %s", gotID, user.ID)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc, _ := newAuthFixture(t)

	if _, _, err := svc.Register(context.Background(), "not-an-email", "long enough pw"); err == nil {
		t.Fatal("accepted invalid email")
	} else if ae := apierr.From(err); ae == nil || ae.Code != "invalid_email" {
		t.Fatalf("err = %v", err)
	}

	if _, _, err := svc.Register(context.Background(), "dev@example.com", "short"); err == nil {
		t.Fatal("accepted weak password")
	} else if ae := apierr.From(err); ae == nil || ae.Code != "weak_password" {
		t.Fatalf("err = %v", err)
	}
}

func TestRegisterConflictOnDuplicateEmail(t *testing.T) {
	svc, _ := newAuthFixture(t)

	if _, _, err := svc.Register(context.Background(), "dev@example.com", "correct horse"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, _, err := svc.Register(context.Background(), "DEV@example.com", "another password")
	if err == nil {
		t.Fatal("duplicate email accepted")
	}
	ae := apierr.From(err)
	if ae == nil || ae.Status != 409 || ae.Code != "email_taken" {
		t.Fatalf("err = %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newAuthFixture(t)
	registered, _, err := svc.Register(context.Background(), "dev@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	user, token, err := svc.Login(context.Background(), "dev@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.ID != registered.ID || token == "" {
		t.Fatalf("login result = %v / %q", user.ID, token)
	}

	_, _, err = svc.Login(context.Background(), "dev@example.com", "wrong password")
	if ae := apierr.From(err); ae == nil || ae.Status != 401 {
		t.Fatalf("err = %v, want 401", err)
	}
	_, _, err = svc.Login(context.Background(), "ghost@example.com", "correct horse")
	if ae := apierr.From(err); ae == nil || ae.Status != 401 {
		t.Fatalf("err = %v, want 401", err)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	svc, _ := newAuthFixture(t)

	for _, tok := range []string{"", "not.a.jwt", strings.Repeat("x", 64)} {
		if _, err := svc.ParseToken(tok); err == nil {
			t.Fatalf("token %q accepted", tok)
		}
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	svc, _ := newAuthFixture(t)
	other, err := NewAuthService(logger.NewNop(), &stubUserRepo{}, AuthConfig{
		Secret:   "different-secret",
		Issuer:   "askstack",
		TokenTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	_, token, err := other.Register(context.Background(), "dev@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.ParseToken(token); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
}
