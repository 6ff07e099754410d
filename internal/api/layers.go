package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-climate/internal/layer"
	"github.com/joeblew999/plat-climate/internal/service"
)

type LayerIDInput struct {
	LayerID string `path:"layerId" doc:"Layer ID" example:"clusters-slr-severe-combined"`
}

type LayerOutput struct {
	Body layer.Metadata
}

type LayersOutput struct {
	Body []layer.Metadata
}

type StyleOutput struct {
	Body layer.StyleConfig
}

// RegisterLayers registers layer metadata and style routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/map-layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Get(api, "/api/map-layers/{layerId}", h.GetLayer, huma.OperationTags("layers"))
	huma.Get(api, "/api/map-layers/{layerId}/style", h.GetLayerStyle, huma.OperationTags("layers"))
	huma.Put(api, "/api/map-layers/{layerId}/style", h.PutLayerStyle, huma.OperationTags("layers"), h.admin(api))
	huma.Delete(api, "/api/map-layers/{layerId}/style", h.DeleteLayerStyle, huma.OperationTags("layers"), h.admin(api))
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*LayersOutput, error) {
	layers, err := h.svc.Resolver.List(ctx)
	if err != nil {
		return nil, h.internalError("list layers", err)
	}
	if layers == nil {
		layers = []layer.Metadata{}
	}
	return &LayersOutput{Body: layers}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *LayerIDInput) (*LayerOutput, error) {
	md, ok, err := h.svc.Resolver.Get(ctx, input.LayerID)
	if err != nil {
		return nil, h.internalError("get layer", err)
	}
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &LayerOutput{Body: md}, nil
}

func (h *APIHandler) GetLayerStyle(ctx context.Context, input *LayerIDInput) (*StyleOutput, error) {
	cfg, err := h.svc.Styles.Style(ctx, input.LayerID)
	if err != nil {
		return nil, h.internalError("get style", err)
	}
	return &StyleOutput{Body: cfg}, nil
}

func (h *APIHandler) PutLayerStyle(ctx context.Context, input *struct {
	LayerIDInput
	Body layer.StyleConfig
}) (*StyleOutput, error) {
	if err := input.Body.Validate(); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	cfg, err := h.svc.Styles.Put(ctx, input.LayerID, input.Body)
	if err != nil {
		return nil, h.internalError("save style", err)
	}
	return &StyleOutput{Body: cfg}, nil
}

func (h *APIHandler) DeleteLayerStyle(ctx context.Context, input *LayerIDInput) (*struct {
	Status int
}, error) {
	err := h.svc.Styles.Delete(ctx, input.LayerID)
	if errors.Is(err, service.ErrNotFound) {
		return nil, huma.Error404NotFound("no style saved for layer")
	}
	if err != nil {
		return nil, h.internalError("delete style", err)
	}
	return &struct{ Status int }{Status: http.StatusNoContent}, nil
}
