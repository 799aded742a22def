package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/gin-gonic/gin"
)

const (
	APIKeyHeader   = "X-API-Key"
	apiKeyQuery    = "api_key"
	apiKeyNameAttr = "api_key_name"
)

// APIKeyAuth пропускает только запросы с ключом из списка
type APIKeyAuth struct {
	keys map[string]string // API key -> имя клиента
}

func NewAPIKeyAuth(keys map[string]string) *APIKeyAuth {
	return &APIKeyAuth{keys: keys}
}

// Middleware возвращает gin handler; ключ ищется в X-API-Key,
// в query параметре api_key и в Authorization: Bearer
func (a *APIKeyAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := extractAPIKey(c)
		if key == "" {
			abortWithError(c, http.StatusUnauthorized, "missing_api_key",
				"API key required: use the X-API-Key header, the api_key query parameter or Authorization: Bearer")
			return
		}

		name, ok := a.lookup(key)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
			return
		}

		c.Set(apiKeyNameAttr, name)
		c.Next()
	}
}

// lookup сравнивает ключ со всеми известными за постоянное время
func (a *APIKeyAuth) lookup(key string) (string, bool) {
	var (
		found bool
		name  string
	)
	for valid, n := range a.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			found = true
			name = n
		}
	}
	return name, found
}

func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader(APIKeyHeader); key != "" {
		return key
	}
	if key := c.Query(apiKeyQuery); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// APIKeyName возвращает имя клиента, прошедшего аутентификацию
func APIKeyName(c *gin.Context) (string, bool) {
	name, ok := c.Get(apiKeyNameAttr)
	if !ok {
		return "", false
	}
	s, ok := name.(string)
	return s, ok
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Error:   code,
		Message: message,
	})
}
