package ui

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// requestLogger logs method, path, status and latency of every request
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("[API] %s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
