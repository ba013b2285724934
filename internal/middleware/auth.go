package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/apierror"
	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ClaimsKey = "claims"
)

// DeviceClaims are the claims of a terminal's access token. Terminals are
// provisioned with a long-lived token instead of logging in.
type DeviceClaims struct {
	TerminalID string `json:"terminal_id"`
	BusinessID string `json:"business_id"`
	jwt.RegisteredClaims
}

// IssueDeviceToken signs an HS256 token for terminalID valid for ttl.
func IssueDeviceToken(secret, terminalID, businessID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := DeviceClaims{
		TerminalID: terminalID,
		BusinessID: businessID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   terminalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// JWTAuth validates the Bearer token on every protected route.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New(dto.CodeUnauthorized, "authentication required"))
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		claims := &DeviceClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})

		if err != nil || !token.Valid || claims.TerminalID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New(dto.CodeUnauthorized, "invalid or expired token"))
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// GetClaims returns the device claims set by JWTAuth, or nil.
func GetClaims(c *gin.Context) *DeviceClaims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*DeviceClaims)
	return claims
}

// RequireBusiness rejects tokens issued for another business. An empty
// businessID accepts any token.
func RequireBusiness(businessID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if businessID == "" {
			c.Next()
			return
		}
		claims := GetClaims(c)
		if claims == nil || claims.BusinessID != businessID {
			c.AbortWithStatusJSON(http.StatusForbidden, apierror.New(dto.CodeUnauthorized, "token not valid for this business"))
			return
		}
		c.Next()
	}
}
