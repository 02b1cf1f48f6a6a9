package router

import (
	"github.com/dumbtokens/launch-watcher/internal/module/token"
)

type Router struct {
	TokenRouter *token.TokenRouter
}

func NewRouter(
	tokenRouter *token.TokenRouter,
) *Router {
	return &Router{
		TokenRouter: tokenRouter,
	}
}

// Register routes
func (r *Router) Register() {
	// Register routes of modules
	r.TokenRouter.RegisterTokenRoutes()
	r.TokenRouter.RegisterHealthRoutes()
}
