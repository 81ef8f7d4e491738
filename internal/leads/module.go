// Package leads wires the lead read surface into the HTTP server.
package leads

import (
	apphttp "leadpipe/internal/http"
	"leadpipe/internal/leads/handler"
	"leadpipe/internal/leads/service"
	"leadpipe/platform/logger"
	"leadpipe/platform/validator"
)

// Module is the leads module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

var _ apphttp.Module = (*Module)(nil)

// NewModule creates the leads module on top of store.
func NewModule(store service.Store, val *validator.Validator, log *logger.Logger, opts ...service.Option) *Module {
	svc := service.New(store, log, opts...)
	return &Module{handler: handler.New(svc, val)}
}

func (m *Module) Name() string { return "leads" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1)
	if ctx.Operator != nil {
		m.handler.RegisterOperatorRoutes(ctx.Operator)
	}
}
