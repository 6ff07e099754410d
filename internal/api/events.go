package api

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-climate/internal/citation"
	"github.com/joeblew999/plat-climate/internal/humastar"
	"github.com/joeblew999/plat-climate/internal/service"
)

// ReferenceItem is the data of the "reference-item" fragment.
type ReferenceItem struct {
	ID   string
	Text string
}

// RegisterEvents registers the admin UI event stream.
func (h *APIHandler) RegisterEvents(api huma.API) {
	huma.Get(api, "/api/events", h.Events, huma.OperationTags("events"))
}

// Events streams bus events as Datastar SSE. Every event is dispatched as a
// "resource-changed" custom event; reference changes also re-render
// #reference-list. A failed re-render is reported in the "error" signal.
func (h *APIHandler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		ch := h.svc.Bus.Subscribe()
		defer h.svc.Bus.Unsubscribe(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Resource == service.ResourceReferences {
					h.patchReferences(ctx, sse)
				}
				sse.DispatchCustomEvent("resource-changed", map[string]any{
					"resource": ev.Resource,
					"action":   ev.Action,
					"id":       ev.ID,
				})
			}
		}
	}), nil
}

func (h *APIHandler) patchReferences(ctx context.Context, sse humastar.SSE) {
	html, err := h.referenceList(ctx)
	if err != nil {
		h.svc.Logger.Warn("render reference list for event stream", "error", err)
		sse.Error("reference list unavailable")
		return
	}
	sse.Patch(html, "#reference-list")
	sse.Signals(map[string]any{"error": ""})
}

func (h *APIHandler) referenceList(ctx context.Context) (string, error) {
	refs, err := h.svc.Content.ListReferences(ctx)
	if err != nil {
		return "", fmt.Errorf("list references: %w", err)
	}
	items := make([]any, len(refs))
	for i, ref := range refs {
		items[i] = ReferenceItem{ID: ref.ID, Text: citation.Entry(i+1, ref)}
	}
	return h.RenderList("reference-item", items, "No references yet")
}
