package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

var ErrPreviewMode = errors.New("links cannot be modified in preview mode")

// RejectInPreview закрывает изменяющие эндпоинты, когда включён preview mode
func RejectInPreview(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if enabled {
			abortWithError(c, http.StatusForbidden, "preview_mode", ErrPreviewMode.Error())
			return
		}
		c.Next()
	}
}
