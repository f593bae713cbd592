package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nvoropaev/concord/apperr"
)

// writeError maps a service error to an HTTP response. Muted errors carry
// the remaining sanction time in seconds so the client can show a countdown.
func writeError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	switch code {
	case apperr.CodeInvalidArgument, apperr.CodeInvalidReference:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperr.CodeNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.CodeConflict:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case apperr.CodeUnauthorized:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case apperr.CodeBanned:
		c.JSON(http.StatusForbidden, gin.H{"error": "banned"})
	case apperr.CodeMuted:
		c.JSON(http.StatusForbidden, gin.H{
			"error":     "muted",
			"remaining": int64(apperr.RemainingOf(err).Seconds()),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
