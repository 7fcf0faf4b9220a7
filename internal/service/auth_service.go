package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"guesswho/internal/model"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService issues and validates caller tokens scoped to one external instance
type AuthService struct {
	jwtSecret []byte
	ttl       time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(secret string, ttl time.Duration) *AuthService {
	if secret == "" {
		secret = "super-secret-key-change-in-production"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		jwtSecret: []byte(secret),
		ttl:       ttl,
	}
}

// IssueToken creates a token for a roster identity inside an external instance
func (s *AuthService) IssueToken(req model.TokenRequest) (*model.TokenResponse, error) {
	if strings.TrimSpace(req.ExternalInstanceID) == "" || strings.TrimSpace(req.ExternalUserID) == "" {
		return nil, fmt.Errorf("%w: externalInstanceId and externalUserId are required", ErrValidation)
	}

	now := time.Now()
	claims := &model.CallerClaims{
		ExternalInstanceID: req.ExternalInstanceID,
		ExternalUserID:     req.ExternalUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   req.ExternalUserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}
	return &model.TokenResponse{Token: tokenString}, nil
}

// ValidateToken validates a caller JWT and returns claims
func (s *AuthService) ValidateToken(tokenString string) (*model.CallerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.CallerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.CallerClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
