// Package ginauth adapts the auth filter to gin routers.
package ginauth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/StricklySoft/bookings-auth/pkg/auth"
	sserr "github.com/StricklySoft/bookings-auth/pkg/errors"
)

// ContextKey is the gin context key the identity is stored under, in
// addition to the request context.
const ContextKey = "auth.identity"

// Middleware runs filter on every request. Rejected credentials are
// answered by the filter's unauthenticated handler and the chain is
// aborted; anonymous requests continue without an identity.
func Middleware(filter *auth.Filter) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := filter.Authenticate(c.Request.Context(), c.GetHeader(auth.HeaderAuthorization))
		if err != nil {
			filter.Reject(c.Writer, c.Request, err)
			c.Abort()
			return
		}
		if identity != nil {
			c.Request = c.Request.WithContext(auth.ContextWithIdentity(c.Request.Context(), identity))
			c.Set(ContextKey, identity)
		}
		c.Next()
	}
}

// RequireIdentity aborts anonymous requests with 401.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := IdentityFrom(c); !ok {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    sserr.CodeAuthentication.String(),
				"message": "authentication required",
			})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity published by [Middleware].
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	if v, ok := c.Get(ContextKey); ok {
		if identity, ok := v.(auth.Identity); ok {
			return identity, true
		}
	}
	return auth.IdentityFromContext(c.Request.Context())
}
