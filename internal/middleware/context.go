package middleware

import "github.com/gin-gonic/gin"

const (
	userIDKey = "user_id"
	emailKey  = "email"
	roleKey   = "role"
)

// GetUserID extracts the authenticated user ID from the context
func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func GetUserEmail(c *gin.Context) string {
	return c.GetString(emailKey)
}

func GetRole(c *gin.Context) string {
	return c.GetString(roleKey)
}
