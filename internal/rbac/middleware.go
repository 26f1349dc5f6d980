package rbac

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-call-agent/internal/auth"
)

// RequireIdentity rejects requests that reached the handler chain without an
// authenticated caller.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := auth.IdentityFrom(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// admin passes every check except for hidden roles' endpoints, which only
// the hidden role itself may call when listed.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	onlyHidden := len(allowed) > 0
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
		if !IsHiddenRole(r) {
			onlyHidden = false
		}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if IsAdmin(role) && !onlyHidden {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// AccountScope returns the account filter for the caller: nil when the
// caller may read every account.
func AccountScope(id auth.Identity) *int64 {
	if SeesAllAccounts(id.Role) {
		return nil
	}
	account := id.AccountID
	return &account
}
