package utils

import (
	"github.com/gin-gonic/gin"
)

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	body := gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	}
	withRequestID(c, body)
	c.JSON(status, body)
}

// JSONError sends a structured error response
func JSONError(c *gin.Context, status int, err error, message string) {
	body := gin.H{
		"status":  status,
		"message": message,
		"error":   err.Error(),
	}
	withRequestID(c, body)
	c.JSON(status, body)
}

// withRequestID echoes the correlation ID so clients can quote it in reports
func withRequestID(c *gin.Context, body gin.H) {
	if id := c.GetString(RequestIDKey); id != "" {
		body[RequestIDKey] = id
	}
}
