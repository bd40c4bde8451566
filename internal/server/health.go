package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Health 检查数据库，以及已配置时的 Redis。
func Health(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		checks := gin.H{}
		ok := true
		if sqlDB, err := db.DB(); err != nil {
			checks["database"] = "down: " + err.Error()
			ok = false
		} else if err := sqlDB.PingContext(ctx); err != nil {
			checks["database"] = "down: " + err.Error()
			ok = false
		} else {
			checks["database"] = "ok"
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "down: " + err.Error()
				ok = false
			} else {
				checks["redis"] = "ok"
			}
		}

		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "checks": checks})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
	}
}
