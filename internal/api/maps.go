package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-climate/internal/compose"
	"github.com/joeblew999/plat-climate/internal/content"
	"github.com/joeblew999/plat-climate/internal/mapsession"
)

// mapState is the server-held state of one map instance: its data cache,
// its engine and the document the engine draws on.
type mapState struct {
	lang   string
	engine *compose.Engine
	doc    *compose.Document
}

type mapRegistry struct {
	mu   sync.Mutex
	maps map[string]*mapState
}

func newMapRegistry() *mapRegistry {
	return &mapRegistry{maps: make(map[string]*mapState)}
}

// get returns the state of id, creating it with mk when absent or when lang
// changed.
func (r *mapRegistry) get(id, lang string, mk func() *mapState) (*mapState, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.maps[id]
	if !ok || st.lang != lang {
		st = mk()
		r.maps[id] = st
	}
	return st, len(r.maps)
}

func (r *mapRegistry) drop(id string) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.maps[id]
	delete(r.maps, id)
	return ok, len(r.maps)
}

type MapIDInput struct {
	MapID string `path:"mapId" doc:"Client-chosen map instance id" example:"story-map-1"`
}

// LayerToggle is the UI state of one layer.
type LayerToggle struct {
	ID      string   `json:"id" doc:"Layer ID"`
	Visible bool     `json:"visible" doc:"Whether the layer is shown"`
	Opacity *float64 `json:"opacity,omitempty" minimum:"0" maximum:"1" doc:"Layer opacity, default 1"`
}

type MapLayersRequest struct {
	Layers  []LayerToggle `json:"layers" doc:"Desired layer states"`
	AutoFit bool          `json:"autoFit,omitempty" doc:"Fit the view to the visible layers"`
	Lang    string        `json:"lang,omitempty" enum:"en,de" doc:"Popup language, default en"`
}

type MapLayersBody struct {
	Ops     []compose.Op `json:"ops" doc:"Reconciliation steps applied"`
	Unknown []string     `json:"unknown" doc:"Requested ids that resolve to no layer"`
	View    compose.View `json:"view" doc:"Resulting map description"`
}

// RegisterMaps registers the map composition routes.
func (h *APIHandler) RegisterMaps(api huma.API) {
	huma.Post(api, "/api/maps/{mapId}/layers", h.UpdateMapLayers, huma.OperationTags("maps"))
	huma.Delete(api, "/api/maps/{mapId}", h.DeleteMap, huma.OperationTags("maps"))
}

func (h *APIHandler) setMapGauge(n int) {
	if h.svc.Metrics != nil {
		h.svc.Metrics.MapSessions.Set(float64(n))
	}
}

func (h *APIHandler) newMapState(lang string) *mapState {
	session := mapsession.New(mapsession.ServiceSource{Service: h.svc.MapData}, h.svc.Clock, h.svc.Logger)
	doc := compose.NewDocument()
	engine := compose.NewEngine(session, doc, compose.Options{
		Lang:    lang,
		BaseURL: h.svc.BaseURL,
		Logger:  h.svc.Logger,
	})
	return &mapState{lang: lang, engine: engine, doc: doc}
}

func (h *APIHandler) UpdateMapLayers(ctx context.Context, input *struct {
	MapIDInput
	Body MapLayersRequest
}) (*struct{ Body MapLayersBody }, error) {
	lang := input.Body.Lang
	if lang == "" {
		lang = content.LangEN
	}

	known, err := h.svc.Resolver.ByID(ctx)
	if err != nil {
		return nil, h.internalError("resolve layers", err)
	}
	desired := make([]compose.LayerState, 0, len(input.Body.Layers))
	unknown := []string{}
	for _, t := range input.Body.Layers {
		md, ok := known[t.ID]
		if !ok {
			unknown = append(unknown, t.ID)
			continue
		}
		opacity := 1.0
		if t.Opacity != nil {
			opacity = *t.Opacity
		}
		desired = append(desired, compose.LayerState{ID: t.ID, Visible: t.Visible, Opacity: opacity, Metadata: md})
	}

	st, n := h.maps.get(input.MapID, lang, func() *mapState { return h.newMapState(lang) })
	h.setMapGauge(n)

	ops, err := st.engine.Update(ctx, desired)
	if err != nil {
		return nil, h.internalError("update map", err)
	}
	if input.Body.AutoFit && len(ops) > 0 {
		st.engine.AutoFit()
	}
	if ops == nil {
		ops = []compose.Op{}
	}
	return &struct{ Body MapLayersBody }{Body: MapLayersBody{
		Ops:     ops,
		Unknown: unknown,
		View:    st.doc.Snapshot(),
	}}, nil
}

func (h *APIHandler) DeleteMap(ctx context.Context, input *MapIDInput) (*struct{ Status int }, error) {
	ok, n := h.maps.drop(input.MapID)
	h.setMapGauge(n)
	if !ok {
		return nil, huma.Error404NotFound("map not found")
	}
	return &struct{ Status int }{Status: http.StatusNoContent}, nil
}
