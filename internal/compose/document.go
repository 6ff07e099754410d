package compose

import (
	"sort"
	"sync"

	"github.com/joeblew999/plat-climate/internal/layer"
)

// Group is a layer group of the map. Groups keep their relative order
// whatever the per-layer z-index.
type Group string

const (
	GroupBase   Group = "base"
	GroupRaster Group = "raster"
	GroupVector Group = "vector"
)

// groupOrder is the draw order of groups, bottom first.
var groupOrder = []Group{GroupBase, GroupRaster, GroupVector}

// RenderKind is how the frontend draws a layer.
type RenderKind string

const (
	RenderRasterOverlay RenderKind = "rasterOverlay"
	RenderRasterTiles   RenderKind = "rasterTiles"
	RenderVectorTiles   RenderKind = "vectorTiles"
	RenderGeoJSON       RenderKind = "geojson"
)

// PathStyle is a Leaflet path style.
type PathStyle struct {
	Color       string  `json:"color"`
	Weight      float64 `json:"weight"`
	Opacity     float64 `json:"opacity"`
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
	DashArray   string  `json:"dashArray,omitempty"`
	Fill        bool    `json:"fill"`
}

// RenderLayer is the render handle of one layer.
type RenderLayer struct {
	ID      string       `json:"id"`
	Kind    RenderKind   `json:"kind"`
	ZIndex  int          `json:"zIndex"`
	Opacity float64      `json:"opacity"`
	Bounds  layer.Bounds `json:"bounds"`

	// TileURL is the z/x/y template for tiled layers.
	TileURL string `json:"tileUrl,omitempty"`
	// Image is a PNG data URL for raster overlays.
	Image string `json:"image,omitempty"`
	// Styles are keyed by vector tile layer name, and by the layer id as a
	// fallback.
	Styles map[string]PathStyle `json:"styles,omitempty"`
	// Features holds GeoJSON for whole-file vector layers; Popups is aligned
	// with its features.
	Features any      `json:"features,omitempty"`
	Popups   []string `json:"popups,omitempty"`
}

// Renderer is the drawing surface the engine applies ops to.
type Renderer interface {
	Add(g Group, l *RenderLayer)
	Remove(g Group, id string)
	// SetOpacity changes opacity in place. It returns false when the
	// renderer cannot, in which case the engine rebuilds the layer.
	SetOpacity(id string, opacity float64) bool
	FitBounds(b layer.Bounds)
}

// Document is a Renderer producing the JSON map description consumed by the
// web frontend.
type Document struct {
	mu     sync.Mutex
	groups map[Group]map[string]*RenderLayer
	fit    *layer.Bounds
}

// NewDocument creates an empty map description.
func NewDocument() *Document {
	return &Document{groups: make(map[Group]map[string]*RenderLayer)}
}

func (d *Document) Add(g Group, l *RenderLayer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.groups[g] == nil {
		d.groups[g] = make(map[string]*RenderLayer)
	}
	d.groups[g][l.ID] = l
}

func (d *Document) Remove(g Group, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.groups[g], id)
}

func (d *Document) SetOpacity(id string, opacity float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, layers := range d.groups {
		if l, ok := layers[id]; ok {
			if l.Kind == RenderVectorTiles {
				// per-sublayer styles carry their own opacities
				return false
			}
			l.Opacity = opacity
			return true
		}
	}
	return false
}

func (d *Document) FitBounds(b layer.Bounds) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fit = &b
}

// GroupView is one group of a snapshot.
type GroupView struct {
	Name   Group          `json:"name"`
	Layers []*RenderLayer `json:"layers"`
}

// View is a snapshot of the document.
type View struct {
	Groups []GroupView   `json:"groups"`
	Fit    *layer.Bounds `json:"fitBounds,omitempty"`
}

// Snapshot returns the groups in draw order with layers sorted by z-index.
func (d *Document) Snapshot() View {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := View{Groups: make([]GroupView, 0, len(groupOrder)), Fit: d.fit}
	for _, g := range groupOrder {
		gv := GroupView{Name: g, Layers: make([]*RenderLayer, 0, len(d.groups[g]))}
		for _, l := range d.groups[g] {
			gv.Layers = append(gv.Layers, l)
		}
		sort.Slice(gv.Layers, func(i, j int) bool {
			if gv.Layers[i].ZIndex != gv.Layers[j].ZIndex {
				return gv.Layers[i].ZIndex < gv.Layers[j].ZIndex
			}
			return gv.Layers[i].ID < gv.Layers[j].ID
		})
		v.Groups = append(v.Groups, gv)
	}
	return v
}

// Len returns the number of rendered layers.
func (d *Document) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, layers := range d.groups {
		n += len(layers)
	}
	return n
}
