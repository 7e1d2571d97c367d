package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/edusystems/school_management/internal/models"
)

const (
	Issuer   = "school-management-system"
	Audience = "school-app"

	typeRefresh = "refresh"
)

var (
	ErrMalformedToken   = errors.New("token: malformed token")
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrExpired          = errors.New("token: expired")
	ErrInvalidClaims    = errors.New("token: invalid claims")
	ErrNotRefreshToken  = errors.New("token: not a refresh token")
	ErrTokenRevoked     = errors.New("token: revoked")
)

// Claims is the payload carried by both access and refresh tokens.
// TokenType is set to "refresh" on refresh tokens only.
type Claims struct {
	Role         models.Role `json:"role"`
	TokenVersion uint        `json:"tokenVersion"`
	TokenType    string      `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// PrincipalID parses the subject back into a credential ID.
func (c *Claims) PrincipalID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalidClaims, c.Subject)
	}
	return uint(id), nil
}

// Service signs and verifies HS256 tokens. Access and refresh tokens use
// distinct secrets so compromise of one does not compromise the other.
// Verification is a pure claims check: the tokenVersion match against the
// credential store is layered on top by the caller.
type Service struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// Now is overridable so expiry tests can move the clock.
	Now func() time.Time
}

func NewService(accessSecret, refreshSecret []byte) *Service {
	return &Service{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Now:           time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) IssueAccessToken(cred *models.Credential) (string, error) {
	now := s.now()
	claims := Claims{
		Role:         cred.Role,
		TokenVersion: cred.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(cred.ID), 10),
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.AccessTTL)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.AccessSecret)
}

func (s *Service) IssueRefreshToken(cred *models.Credential) (string, error) {
	now := s.now()
	claims := Claims{
		Role:         cred.Role,
		TokenVersion: cred.TokenVersion,
		TokenType:    typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(cred.ID), 10),
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.RefreshTTL)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.RefreshSecret)
}

func (s *Service) VerifyAccessToken(raw string) (*Claims, error) {
	return s.verify(raw, s.AccessSecret)
}

func (s *Service) VerifyRefreshToken(raw string) (*Claims, error) {
	claims, err := s.verify(raw, s.RefreshSecret)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != typeRefresh {
		return nil, ErrNotRefreshToken
	}
	return claims, nil
}

func (s *Service) verify(raw string, secret []byte) (*Claims, error) {
	var claims Claims
	t, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, mapError(err)
	}
	if !t.Valid {
		return nil, ErrInvalidClaims
	}
	return &claims, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
}
