// Package auth is the local identity provider: it checks credentials against
// a bcrypt user directory and issues HS256 tokens whose claims carry the
// numeric user id, the email (as subject) and the role.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"exam-service/internal/domain"
)

type Claims struct {
	User int64       `json:"user"`
	Role domain.Role `json:"role,omitempty"`
	Name string      `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Email is carried in the subject claim.
func (c *Claims) Email() string { return c.Subject }

// Student converts the claims to the identity recorded on a result.
func (c *Claims) Student() domain.Student {
	return domain.Student{ID: strconv.FormatInt(c.User, 10), Name: c.Name, Email: c.Subject}
}

// Session is what a successful login hands back to the client.
type Session struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Account is one user known to the directory.
type Account struct {
	ID           int64
	Email        string
	Name         string
	Role         domain.Role
	PasswordHash []byte
}

type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	users  map[string]Account
	now    func() time.Time
}

func NewService(secret, issuer string, ttl time.Duration, accounts []Account) *Service {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	users := make(map[string]Account, len(accounts))
	for _, a := range accounts {
		users[strings.ToLower(a.Email)] = a
	}
	return &Service{secret: []byte(secret), issuer: issuer, ttl: ttl, users: users, now: time.Now}
}

// Login checks the credentials and issues a signed token.
func (s *Service) Login(_ context.Context, login, password string) (Session, error) {
	acct, ok := s.users[strings.ToLower(strings.TrimSpace(login))]
	if !ok {
		return Session{}, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		return Session{}, domain.ErrInvalidCredentials
	}
	return s.Issue(acct)
}

// Issue signs a token for acct without checking a password.
func (s *Service) Issue(acct Account) (Session, error) {
	now := s.now().UTC().Truncate(time.Second)
	exp := now.Add(s.ttl)
	claims := &Claims{
		User: acct.ID,
		Role: acct.Role,
		Name: acct.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.Email,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: token, IssuedAt: now, ExpiresAt: exp}, nil
}

// Verify checks signature, issuer and expiry. It is the only way claims may
// be trusted for access control.
func (s *Service) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: token carries no known role", domain.ErrUnauthorized)
	}
	return claims, nil
}

// Decode reads the claims of any three-part token without verifying the
// signature. The result is a display hint only.
func Decode(token string) (*Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, errors.New("invalid token")
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return claims, nil
}
