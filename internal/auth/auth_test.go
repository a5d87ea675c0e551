package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"hearth/internal/auth"
	"hearth/internal/db"
	"hearth/internal/domain"
	"hearth/internal/migrate"
	"hearth/internal/repo"
)

func newService(t *testing.T) auth.Service {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	ctx := context.Background()
	h := domain.Household{ID: "hh-1", Name: "home", CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z"}
	if err := r.InsertHousehold(ctx, h); err != nil {
		t.Fatalf("seed household: %v", err)
	}
	return auth.Service{
		Repo:   r,
		Secret: "test-secret",
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, "alice", "hunter2", "home")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.HouseholdID != "hh-1" {
		t.Fatalf("expected household hh-1, got %s", u.HouseholdID)
	}
	if u.PasswordHash == "hunter2" {
		t.Fatal("password stored in the clear")
	}
	token, logged, err := svc.Login(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" || logged.Username != "alice" {
		t.Fatalf("unexpected login result: token=%q user=%+v", token, logged)
	}
	ident, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ident.Username != "alice" || ident.HouseholdID != "hh-1" {
		t.Fatalf("unexpected identity: %+v", ident)
	}
}

func TestRegisterUnknownHousehold(t *testing.T) {
	svc := newService(t)
	_, err := svc.Register(context.Background(), "alice", "hunter2", "nowhere")
	if err == nil {
		t.Fatal("expected error for unknown household")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "alice", "hunter2", "home"); err != nil {
		t.Fatal(err)
	}
	_, _, err := svc.Login(ctx, "alice", "wrong")
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	_, _, err = svc.Login(ctx, "nobody", "hunter2")
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("unknown user should look like bad credentials, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := newService(t)
	if _, err := svc.Verify("not-a-token"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	svc := newService(t)
	other := svc
	other.Secret = "other-secret"
	token, err := other.Mint("alice", "hh-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Verify(token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected invalid token for foreign secret, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	svc := newService(t)
	svc.TokenTTL = 30 * time.Minute
	minted := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return minted }
	token, err := svc.Mint("alice", "hh-1")
	if err != nil {
		t.Fatal(err)
	}
	svc.Now = func() time.Time { return minted.Add(time.Hour) }
	if _, err := svc.Verify(token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected expired token rejection, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := auth.BearerToken("Bearer abc"); !ok || tok != "abc" {
		t.Fatalf("expected abc, got %q ok=%v", tok, ok)
	}
	if _, ok := auth.BearerToken("Basic abc"); ok {
		t.Fatal("basic scheme should not parse")
	}
	if _, ok := auth.BearerToken(""); ok {
		t.Fatal("empty header should not parse")
	}
}
