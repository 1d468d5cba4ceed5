package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	VisitorCookie    = "visitor_id"
	ContextVisitorID = "visitor_id"
)

// Visitor makes sure every caller has a visitor id cookie. The booking form
// state is kept per visitor. secure marks the cookie HTTPS only.
func Visitor(ttl time.Duration, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(VisitorCookie)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.New().String()
		}

		// refresh on every request so the cookie outlives the form it points to
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(VisitorCookie, id, int(ttl.Seconds()), "/", "", secure, true)
		c.Set(ContextVisitorID, id)
		c.Next()
	}
}
