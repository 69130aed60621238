package api

import (
	"github.com/gin-gonic/gin"

	"github.com/davidahmann/proofofchoice/internal/decisions"
)

const callerKey = "proof.caller"

func setCaller(c *gin.Context, caller decisions.Caller) {
	c.Set(callerKey, caller)
}

// callerFrom returns the authenticated caller stored by RequireAuth.
func callerFrom(c *gin.Context) decisions.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(decisions.Caller); ok {
			return caller
		}
	}
	return decisions.Caller{IP: c.ClientIP()}
}
