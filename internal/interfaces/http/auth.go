package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/garyjia/deed-approval/internal/domain/entity"
)

const actorContextKey = "actor"

// Claims are the bearer token claims identifying the caller
type Claims struct {
	UserID     string `json:"actorId"`
	Role       string `json:"role"`
	OnBehalfOf string `json:"onBehalfOf,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens issued elsewhere
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator creates an Authenticator. An empty issuer accepts any issuer.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// ValidateToken parses and verifies a token and returns its claims
func (a *Authenticator) ValidateToken(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no actor id")
	}
	if !entity.Role(claims.Role).IsValid() {
		return nil, fmt.Errorf("token has unknown role %q", claims.Role)
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token and stores the actor
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			abortUnauthenticated(c, "missing bearer token")
			return
		}

		claims, err := a.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			abortUnauthenticated(c, "invalid token")
			return
		}

		c.Set(actorContextKey, entity.Actor{
			ID:         claims.UserID,
			Role:       entity.Role(claims.Role),
			OnBehalfOf: claims.OnBehalfOf,
			Client: entity.ClientContext{
				IPAddress: c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
			},
		})
		c.Next()
	}
}

// actorFrom returns the actor stored by the auth middleware
func actorFrom(c *gin.Context) entity.Actor {
	v, _ := c.Get(actorContextKey)
	actor, _ := v.(entity.Actor)
	return actor
}

func abortUnauthenticated(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
		Success: false,
		Error:   &ErrorBody{Kind: "unauthenticated", Reason: reason},
	})
}
