// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jonboulle/clockwork"

	"github.com/joeblew999/plat-climate/internal/content"
	"github.com/joeblew999/plat-climate/internal/humastar"
	"github.com/joeblew999/plat-climate/internal/layer"
	"github.com/joeblew999/plat-climate/internal/mapdata"
	"github.com/joeblew999/plat-climate/internal/observability"
	"github.com/joeblew999/plat-climate/internal/service"
	"github.com/joeblew999/plat-climate/internal/templates"
)

// Version is reported by the health and info endpoints.
const Version = "1.0.0"

// Services holds the service dependencies for API handlers.
type Services struct {
	Resolver *layer.Resolver
	Styles   *service.StyleService
	MapData  *mapdata.Service
	Content  *content.Store
	Bus      *service.EventBus
	Metrics  *observability.Metrics
	Renderer *templates.Renderer
	Clock    clockwork.Clock
	Logger   *slog.Logger

	// AdminPassword guards mutating routes. Empty disables them.
	AdminPassword string
	// BaseURL prefixes tile URL templates in map documents.
	BaseURL  string
	DataDir  string
	DBDriver string
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	humastar.Handler
	svc  *Services
	maps *mapRegistry
}

func NewAPIHandler(svc *Services) *APIHandler {
	if svc.Logger == nil {
		svc.Logger = slog.Default()
	}
	if svc.Clock == nil {
		svc.Clock = clockwork.NewRealClock()
	}
	if svc.Renderer == nil {
		svc.Renderer = templates.Default()
	}
	return &APIHandler{
		Handler: humastar.Handler{Renderer: svc.Renderer},
		svc:     svc,
		maps:    newMapRegistry(),
	}
}

// RegisterRoutes registers every route of the climate API.
func RegisterRoutes(api huma.API, svc *Services) *APIHandler {
	h := NewAPIHandler(svc)
	huma.AutoRegister(api, h)
	return h
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"dataDir" doc:"Layer store root"`
	DBDriver string   `json:"dbDriver" doc:"Content store driver"`
	Admin    bool     `json:"admin" doc:"Whether mutating routes are enabled"`
	Features []string `json:"features" doc:"Available features"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

// RegisterHealth registers health and info routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/api/health", h.GetHealth, huma.OperationTags("health"))
	huma.Get(api, "/api/info", h.GetInfo, huma.OperationTags("health"))
}

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-climate",
		Version:  Version,
		DataDir:  h.svc.DataDir,
		DBDriver: h.svc.DBDriver,
		Admin:    h.svc.AdminPassword != "",
		Features: []string{"map-layers", "map-data", "map-tiles", "maps", "stories", "references", "events"},
	}}, nil
}

// internalError logs err and hides it from the client.
func (h *APIHandler) internalError(msg string, err error) error {
	h.svc.Logger.Error(msg, "error", err)
	return huma.Error500InternalServerError(msg)
}

// contentError maps content store errors to HTTP errors.
func (h *APIHandler) contentError(msg string, err error) error {
	switch {
	case errors.Is(err, content.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, content.ErrInvalidBlock):
		return huma.Error400BadRequest(err.Error())
	}
	return h.internalError(msg, err)
}

func (h *APIHandler) publish(resource, action, id string) {
	h.svc.Bus.Publish(resource, action, id)
}
