package http

import (
	"github.com/gin-gonic/gin"
)

// Module represents a bounded context that can register its HTTP routes.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router groups.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared dependencies for module route registration.
type RouterContext struct {
	// Engine is the root Gin engine.
	Engine *gin.Engine
	// V1 is the public read-only /api/v1 route group.
	V1 *gin.RouterGroup
	// Operator is the /api/v1 group behind operator authentication. It is nil
	// when no JWT secret is configured, and write routes stay unregistered.
	Operator *gin.RouterGroup
}
