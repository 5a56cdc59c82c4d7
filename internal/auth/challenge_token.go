package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mereside/opsgate/internal/models"
)

// ChallengeClaims are the claims of a challenge token: a short-lived
// token minted after the credential step that binds a client to its
// in-flight login attempt for the OTP, resend and back calls.
type ChallengeClaims struct {
	AttemptID string `json:"attempt_id"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// ChallengeTokenManager mints and validates challenge tokens.
type ChallengeTokenManager struct {
	secret string
	expiry time.Duration
}

// NewChallengeTokenManager creates a new ChallengeTokenManager.
func NewChallengeTokenManager(secret string, expiry time.Duration) *ChallengeTokenManager {
	return &ChallengeTokenManager{
		secret: secret,
		expiry: expiry,
	}
}

// Generate creates a token bound to one attempt ID and email.
func (tm *ChallengeTokenManager) Generate(attemptID, email string) (string, error) {
	now := time.Now()
	claims := &ChallengeClaims{
		AttemptID: attemptID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge token: %w", err)
	}

	return tokenString, nil
}

// Validate parses the token and returns its claims. Expired, malformed
// or wrongly-signed tokens all map to ErrUnauthorized.
func (tm *ChallengeTokenManager) Validate(tokenString string) (*ChallengeClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ChallengeClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(tm.secret), nil
	})
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	claims, ok := token.Claims.(*ChallengeClaims)
	if !ok || !token.Valid || claims.AttemptID == "" {
		return nil, models.ErrUnauthorized
	}

	return claims, nil
}
