package localserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"teamtasks/internal/model"
)

const userContextKey = "user"

// SignToken issues a bearer token for the given user. The client presents
// it on every request; there is no login flow here.
func SignToken(secret string, user model.User, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"userId":   user.ID,
		"nickname": user.Nickname,
		"image":    user.Image,
		"exp":      time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// bearerAuth rejects requests without a valid bearer token and stashes the
// caller's user snapshot in the request context.
func bearerAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header is missing"})
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token is expired or invalid"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}

		user := model.User{Nickname: "unknown"}
		if id, ok := claims["userId"].(float64); ok {
			user.ID = int64(id)
		}
		if nick, ok := claims["nickname"].(string); ok && nick != "" {
			user.Nickname = nick
		}
		if image, ok := claims["image"].(string); ok {
			user.Image = image
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) model.User {
	if v, ok := c.Get(userContextKey); ok {
		if u, ok := v.(model.User); ok {
			return u
		}
	}
	return model.User{Nickname: "unknown"}
}
