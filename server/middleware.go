package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vitwit/checkout/logger"
)

const buyerKey = "buyer"

// BuyerIdentity reads an optional HS256 bearer token carrying an "email"
// claim. A missing header means an anonymous buyer; a bad token is rejected.
func BuyerIdentity(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || len(secret) == 0 {
			c.Next()
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			Unauthorized(c, "Invalid token claims")
			c.Abort()
			return
		}
		email, _ := claims["email"].(string)
		if email == "" {
			Unauthorized(c, "Missing required claim: email")
			c.Abort()
			return
		}

		c.Set(buyerKey, email)
		c.Next()
	}
}

// RequireBuyer rejects anonymous requests.
func RequireBuyer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Buyer(c) == "" {
			Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Buyer returns the authenticated buyer email, empty when anonymous.
func Buyer(c *gin.Context) string {
	return c.GetString(buyerKey)
}

// RequestLogger logs every request at debug level and failures at warn.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]any{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}
		if c.Writer.Status() >= 500 {
			log.Warn("request failed", fields)
			return
		}
		log.Debug("request", fields)
	}
}
