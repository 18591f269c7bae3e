package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token claims understood by the gateway.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	NodeID string `json:"nodeId,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier checks a token's signature and expiry and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// JWTVerifier handles HS256 token creation and validation.
type JWTVerifier struct {
	secretKey []byte
	ttl       time.Duration
}

// NewJWTVerifier creates a verifier for the given shared secret. Tokens it
// mints expire after ttl.
func NewJWTVerifier(secretKey string, ttl time.Duration) *JWTVerifier {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTVerifier{
		secretKey: []byte(secretKey),
		ttl:       ttl,
	}
}

// GenerateToken signs a token carrying the given identity claims.
func (j *JWTVerifier) GenerateToken(claims Claims) (string, time.Time, error) {
	if claims.UserID == "" && claims.NodeID == "" && claims.Subject == "" {
		return "", time.Time{}, errors.New("token needs a userId, nodeId or subject")
	}

	now := time.Now()
	expiresAt := now.Add(j.ttl)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Verify validates a token and returns its claims. A "Bearer " prefix is ignored.
func (j *JWTVerifier) Verify(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, errors.New("token cannot be empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("token is not valid")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return claims, nil
}
