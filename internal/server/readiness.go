package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetReadiness reports whether the process can serve traffic: the
// database answers and the schema has been applied.
func (s *Server) GetReadiness(c *gin.Context) {
	ctx := c.Request.Context()

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"checks": gin.H{"database": err.Error()},
		})
		return
	}

	var count int64
	if err := s.db.WithContext(ctx).Table("organizations").Count(&count).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"checks": gin.H{"schema": err.Error()},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
