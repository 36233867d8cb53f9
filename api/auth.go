package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const callerKey = "caller"

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticate accepts HS256 bearer tokens minted by the auth service and
// stores the caller they name on the request.
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := parseBearer(c.GetHeader("Authorization"), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

func parseBearer(header string, secret []byte) (domain.Caller, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return domain.Caller{}, errors.New("missing bearer token")
	}

	var cl claims
	_, err := jwt.ParseWithClaims(raw, &cl, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return domain.Caller{}, fmt.Errorf("invalid token: %w", err)
	}
	if cl.Subject == "" {
		return domain.Caller{}, errors.New("invalid token: no subject")
	}
	return domain.Caller{UserID: cl.Subject, Role: cl.Role}, nil
}

// RequireAdmin must run after Authenticate.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !callerFrom(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": domain.ErrForbidden.Error()})
			return
		}
		c.Next()
	}
}

func callerFrom(c *gin.Context) domain.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(domain.Caller); ok {
			return caller
		}
	}
	return domain.Caller{}
}
