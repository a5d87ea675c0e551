// Package auth issues and verifies the bearer tokens that gate every
// connection. Tokens are HS256 JWTs carrying the username as subject and
// the household id as a private claim; passwords are bcrypt-hashed at rest.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"hearth/internal/domain"
	"hearth/internal/repo"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Identity is the result of verifying a token.
type Identity struct {
	Username    string
	HouseholdID string
}

type Service struct {
	Repo     repo.Repo
	Secret   string
	TokenTTL time.Duration
	Now      func() time.Time
}

type claims struct {
	jwt.RegisteredClaims
	HouseholdID string `json:"household_id"`
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) ttl() time.Duration {
	if s.TokenTTL > 0 {
		return s.TokenTTL
	}
	return 30 * time.Minute
}

// Register creates a user in an existing household.
func (s Service) Register(ctx context.Context, username, password, householdName string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, errors.New("username required")
	}
	if password == "" {
		return domain.User{}, errors.New("password required")
	}
	h, err := s.Repo.GetHouseholdByName(ctx, householdName)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, fmt.Errorf("household %s not found", householdName)
		}
		return domain.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	now := s.now().UTC().Format(time.RFC3339)
	u := domain.User{
		Username:     username,
		HouseholdID:  h.ID,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Login checks credentials and mints a token.
func (s Service) Login(ctx context.Context, username, password string) (string, domain.User, error) {
	u, err := s.Repo.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", domain.User{}, ErrInvalidCredentials
		}
		return "", domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", domain.User{}, ErrInvalidCredentials
	}
	token, err := s.Mint(u.Username, u.HouseholdID)
	if err != nil {
		return "", domain.User{}, err
	}
	return token, u, nil
}

// Mint signs a token for an already-verified identity.
func (s Service) Mint(username, householdID string) (string, error) {
	if strings.TrimSpace(s.Secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl())),
		},
		HouseholdID: householdID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(s.Secret))
}

// Verify parses a bearer token and returns the identity it carries.
func (s Service) Verify(token string) (Identity, error) {
	if strings.TrimSpace(s.Secret) == "" {
		return Identity{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	c := &claims{}
	parsed, err := parser.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		return []byte(s.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if c.Subject == "" || c.HouseholdID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{Username: c.Subject, HouseholdID: c.HouseholdID}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
