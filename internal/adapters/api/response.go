package api

import (
	"github.com/gin-gonic/gin"
)

// Bid endpoints answer with {status, data}
const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusError   = "error"
)

// JSONResponse sends the {success, data, message} envelope
func JSONResponse(c *gin.Context, status int, data any, message string) {
	body := gin.H{
		"success": true,
		"data":    data,
	}
	if message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}

// JSONError sends the {success: false, error, message} envelope.
// extra is merged into the body for fields such as resetTime or errors.
func JSONError(c *gin.Context, status int, code, message string, extra gin.H) {
	body := gin.H{
		"success": false,
		"error":   code,
		"message": message,
	}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}

func bidSuccess(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"status": statusSuccess, "data": data})
}

// bidFailure keeps the error envelope fields and adds the bid status marker
func bidFailure(c *gin.Context, status int, code, message string, extra gin.H) {
	state := statusFail
	if status >= 500 {
		state = statusError
	}
	body := gin.H{
		"status":  state,
		"success": false,
		"error":   code,
		"message": message,
		"data":    nil,
	}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}
