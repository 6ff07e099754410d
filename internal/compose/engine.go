package compose

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/plat-climate/internal/geotiff"
	"github.com/joeblew999/plat-climate/internal/layer"
)

// Fetcher supplies layer data. *mapsession.Session implements it.
type Fetcher interface {
	FetchVector(ctx context.Context, id string) (*geojson.FeatureCollection, bool)
	FetchRaster(ctx context.Context, id string) (*geotiff.Raster, bool)
	ResolveVectorTileLayerName(ctx context.Context, id string) string
}

// Options configures an Engine.
type Options struct {
	// AutoFit fits the viewport to the visible layers after every pass that
	// changed something.
	AutoFit bool
	// Lang selects number formatting and wording in popups.
	Lang string
	// BaseURL prefixes tile URL templates.
	BaseURL string
	Logger  *slog.Logger
}

// Engine owns the rendered layers of one map.
type Engine struct {
	fetch  Fetcher
	r      Renderer
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	loaded map[string]LoadedLayer
}

// NewEngine creates an engine drawing on r.
func NewEngine(fetch Fetcher, r Renderer, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		fetch:  fetch,
		r:      r,
		opts:   opts,
		logger: logger,
		loaded: make(map[string]LoadedLayer),
	}
}

// Update runs one reconciliation pass and returns the ops it applied.
// Applying the same desired list twice makes the second pass a no-op.
func (e *Engine) Update(ctx context.Context, desired []LayerState) ([]Op, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ops := Diff(desired, e.loaded)
	if len(ops) == 0 {
		return ops, nil
	}
	if err := e.apply(ctx, ops); err != nil {
		return ops, err
	}
	if e.opts.AutoFit {
		e.autoFit()
	}
	return ops, nil
}

// Apply executes ops computed by Diff against the engine's current state.
func (e *Engine) Apply(ctx context.Context, ops []Op) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply(ctx, ops)
}

func (e *Engine) apply(ctx context.Context, ops []Op) error {
	var builds []Op
	for _, op := range ops {
		switch op.Kind {
		case OpRemove:
			e.teardown(op.ID)
		case OpSetOpacity:
			ll, ok := e.loaded[op.ID]
			if !ok {
				builds = append(builds, op)
				continue
			}
			o := clampOpacity(op.State.Opacity)
			if !e.r.SetOpacity(op.ID, o) {
				builds = append(builds, op)
				continue
			}
			ll.Opacity = o
			ll.Layer.Opacity = o
			e.loaded[op.ID] = ll
		case OpAdd, OpRestyle:
			builds = append(builds, op)
		}
	}
	if len(builds) == 0 {
		return nil
	}

	type built struct {
		rl    *RenderLayer
		group Group
		ok    bool
	}
	results := make([]built, len(builds))
	g, gctx := errgroup.WithContext(ctx)
	for i, op := range builds {
		g.Go(func() error {
			rl, group, ok := e.build(gctx, *op.State)
			results[i] = built{rl, group, ok}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, op := range builds {
		// The old render goes before the new one is added so an id is never
		// drawn twice.
		e.teardown(op.ID)
		res := results[i]
		if !res.ok {
			continue
		}
		e.r.Add(res.group, res.rl)
		e.loaded[op.ID] = LoadedLayer{
			Layer:           res.rl,
			Group:           res.group,
			Opacity:         res.rl.Opacity,
			Visible:         true,
			IsRasterOverlay: res.rl.Kind == RenderRasterOverlay,
			Style:           op.State.Metadata.Style,
			key:             renderKey(op.State.Metadata),
		}
	}
	return nil
}

func (e *Engine) teardown(id string) {
	ll, ok := e.loaded[id]
	if !ok {
		return
	}
	e.r.Remove(ll.Group, id)
	delete(e.loaded, id)
}

// build fetches the layer's data and constructs its render handle. ok is
// false when the data is unavailable; the layer is then left out.
func (e *Engine) build(ctx context.Context, st LayerState) (*RenderLayer, Group, bool) {
	md := st.Metadata
	rl := &RenderLayer{
		ID:      md.ID,
		ZIndex:  md.ZIndex,
		Opacity: clampOpacity(st.Opacity),
		Bounds:  md.Bounds,
	}
	id := url.PathEscape(md.ID)

	switch {
	case md.DataType == layer.Raster && md.Format.IsTileArchive():
		rl.Kind = RenderRasterTiles
		rl.TileURL = e.opts.BaseURL + "/api/map-tiles/" + id + "/{z}/{x}/{y}.png"
		return rl, GroupBase, true

	case md.DataType == layer.Raster:
		r, ok := e.fetch.FetchRaster(ctx, md.ID)
		if !ok {
			return nil, "", false
		}
		img, err := PNGDataURL(ColorizeRaster(r, md))
		if err != nil {
			e.logger.Warn("render raster overlay", "layer", md.ID, "error", err)
			return nil, "", false
		}
		rl.Kind = RenderRasterOverlay
		rl.Image = img
		if b, ok := rasterBounds(r); ok {
			rl.Bounds = b
		}
		return rl, GroupRaster, true

	case md.Format.IsTileArchive():
		name := e.fetch.ResolveVectorTileLayerName(ctx, md.ID)
		style := VectorStyle(md, rl.Opacity)
		rl.Kind = RenderVectorTiles
		rl.TileURL = e.opts.BaseURL + "/api/map-data/vector/" + id + "/{z}/{x}/{y}"
		rl.Styles = map[string]PathStyle{name: style, md.ID: style}
		return rl, GroupVector, true

	default:
		fc, ok := e.fetch.FetchVector(ctx, md.ID)
		if !ok {
			return nil, "", false
		}
		rl.Kind = RenderGeoJSON
		rl.Features = fc
		rl.Styles = map[string]PathStyle{md.ID: VectorStyle(md, 1)}
		rl.Popups = make([]string, len(fc.Features))
		for i, f := range fc.Features {
			html, err := PopupHTML(md.Name, f.Properties, e.opts.Lang)
			if err != nil {
				e.logger.Warn("render popup", "layer", md.ID, "error", err)
				continue
			}
			rl.Popups[i] = html
		}
		if b, ok := featureBounds(fc); ok {
			rl.Bounds = b
		}
		return rl, GroupVector, true
	}
}

// VectorStyle derives the path style of a vector layer from its color scale
// and style override. Opacities are scaled by opacity.
func VectorStyle(md layer.Metadata, opacity float64) PathStyle {
	s := PathStyle{
		Color:       "#3388ff",
		Weight:      1,
		Opacity:     1,
		FillColor:   "#3388ff",
		FillOpacity: 0.6,
		Fill:        true,
	}
	if n := len(md.ColorScale); n > 0 {
		s.FillColor = md.ColorScale[n/2]
		s.Color = md.ColorScale[n-1]
	}
	if md.Style != nil && md.Style.Vector != nil {
		v := md.Style.Vector
		if v.FillColor != "" {
			s.FillColor = v.FillColor
		}
		if v.BorderColor != "" {
			s.Color = v.BorderColor
		}
		if v.BorderWidth > 0 {
			s.Weight = v.BorderWidth
		}
		if v.FillOpacity != nil {
			s.FillOpacity = *v.FillOpacity
		}
		if v.BorderOpacity != nil {
			s.Opacity = *v.BorderOpacity
		}
		s.DashArray = v.DashArray
	}
	s.Opacity *= opacity
	s.FillOpacity *= opacity
	return s
}

// Loaded returns a copy of the loaded layers.
func (e *Engine) Loaded() map[string]LoadedLayer {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]LoadedLayer, len(e.loaded))
	for id, ll := range e.loaded {
		out[id] = ll
	}
	return out
}

// AutoFit fits the renderer to the union of the loaded layers' bounds.
func (e *Engine) AutoFit() (layer.Bounds, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoFit()
}

func (e *Engine) autoFit() (layer.Bounds, bool) {
	bs := make([]layer.Bounds, 0, len(e.loaded))
	for _, ll := range e.loaded {
		bs = append(bs, ll.Layer.Bounds)
	}
	b, ok := UnionBounds(bs)
	if ok {
		e.r.FitBounds(b)
	}
	return b, ok
}
