package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes tags the request's New Relic transaction with the
// caller and the trip being acted on. It must run after nrgin.Middleware
// and AuthMiddleware.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		if actor, ok := ActorFrom(c); ok {
			txn.AddAttribute("actor.id", actor.ID)
			txn.AddAttribute("actor.role", string(actor.Role))
		}
		if id := c.Param("id"); id != "" {
			txn.AddAttribute("resource.id", id)
		}

		c.Next()

		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
