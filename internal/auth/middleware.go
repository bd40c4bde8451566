package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

// Middleware 校验 REST 请求的 access token（先 cookie 后 Bearer），不查询数据库。
func Middleware(a *Authority) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := FirstToken(c.Request, FromCookie(AccessCookie), FromBearer())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "access token not found", "code": "NO_TOKEN"})
			return
		}
		userID, err := a.VerifyAccessToken(tok)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "access token expired", "code": "TOKEN_EXPIRED"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid access token", "code": "INVALID_TOKEN"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func GetUserID(c *gin.Context) uint {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok2 := v.(uint); ok2 {
			return id
		}
	}
	return 0
}
