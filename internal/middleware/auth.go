package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"autodrive/internal/config"
	"autodrive/internal/domain"
)

const actorContextKey = "actor"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role domain.ActorRole
}

// Claims are the JWT claims carried by a bearer token. UserID is accepted
// when the subject is empty.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// NewToken signs an HS256 token for the given actor.
func NewToken(secret string, actor Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates a token and returns its actor.
func ParseToken(secret, tokenString string) (Actor, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Actor{}, ErrExpiredToken
		}
		return Actor{}, ErrInvalidToken
	}
	if !token.Valid {
		return Actor{}, ErrInvalidToken
	}

	id := claims.Subject
	if id == "" {
		id = claims.UserID
	}
	role := domain.ActorRole(claims.Role)
	if id == "" || !role.Valid() {
		return Actor{}, ErrInvalidToken
	}
	return Actor{ID: id, Role: role}, nil
}

// AuthMiddleware resolves the caller from the Authorization header. A
// present but invalid token is always rejected; a missing token is rejected
// only when cfg.Required is set.
func AuthMiddleware(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if cfg.Required {
				abortUnauthorized(c, ErrMissingToken)
				return
			}
			c.Next()
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			abortUnauthorized(c, ErrInvalidToken)
			return
		}

		actor, err := ParseToken(cfg.JWTSecret, tokenString)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		c.Set(actorContextKey, actor)
		c.Next()
	}
}

// ActorFrom returns the authenticated caller, if any.
func ActorFrom(c *gin.Context) (Actor, bool) {
	v, ok := c.Get(actorContextKey)
	if !ok {
		return Actor{}, false
	}
	actor, ok := v.(Actor)
	return actor, ok
}

func abortUnauthorized(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
}
