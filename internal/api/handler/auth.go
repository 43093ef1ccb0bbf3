package handler

import (
	"arbiter/backend/internal/apperr"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer     = "arbiter-backend"
	userIDKey       = "user_id"
	defaultTokenTTL = 72 * time.Hour
)

// Authenticator issues and verifies HS256 tokens whose subject is the
// acting user id.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// GenerateToken signs a token for userID. A zero ttl means 72 hours.
func (a *Authenticator) GenerateToken(userID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", apperr.Invalid("user_id", "is required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// VerifyToken validates tokenString and returns its subject.
func (a *Authenticator) VerifyToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", fmt.Errorf("auth: parse token: %w: %w", apperr.ErrUnauthorized, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject: %w", apperr.ErrUnauthorized)
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// acting user id on the context. Browsers cannot set headers on websocket
// upgrades, so the case events route also accepts a "token" query parameter.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		userID, err := a.VerifyToken(tokenString)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if c.FullPath() == caseEventsRoute {
			if q := c.Query("token"); q != "" {
				return q, nil
			}
		}
		return "", fmt.Errorf("authorization token missing: %w", apperr.ErrUnauthorized)
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", fmt.Errorf("malformed authorization header: %w", apperr.ErrUnauthorized)
	}
	return strings.TrimSpace(header[len(prefix):]), nil
}

// actingUser returns the user id stored by Middleware.
func actingUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
