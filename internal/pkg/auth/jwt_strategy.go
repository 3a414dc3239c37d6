package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/polkiloo/orderpay/internal/domain/model"
)

var ErrInvalidToken = errors.New("invalid auth token")

type principalClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTStrategy implements token handling with HS256 signed JWTs.
type JWTStrategy struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTStrategy builds JWTStrategy with provided secret and options.
func NewJWTStrategy(secret string, opts Options) *JWTStrategy {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTStrategy{secret: []byte(secret), ttl: ttl}
}

// IssueToken generates a signed token for the principal.
func (s *JWTStrategy) IssueToken(p model.Principal) (string, error) {
	if p.ID == "" {
		return "", fmt.Errorf("principal id is required")
	}
	now := time.Now()
	claims := principalClaims{
		Email: p.Email,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken validates the token and returns the principal it carries.
func (s *JWTStrategy) ParseToken(token string) (model.Principal, error) {
	var claims principalClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return model.Principal{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return model.Principal{}, ErrInvalidToken
	}
	return model.Principal{ID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

func (s *JWTStrategy) Name() string {
	return "jwt"
}
