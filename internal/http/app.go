// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"leadpipe/platform/config"
	"leadpipe/platform/logger"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the fully initialized application dependencies.
// This is populated by the serve command and passed to the router.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	// Health is used for readiness checks (store ping). Optional.
	Health HealthChecker
	// Modules contains all HTTP-facing modules.
	Modules []Module
}
