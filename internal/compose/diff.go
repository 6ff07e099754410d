// Package compose reconciles the desired layer list of one map against what
// is currently rendered, and computes how rasters and features are drawn.
package compose

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/joeblew999/plat-climate/internal/layer"
)

// LayerState is the desired state of one layer, as toggled by the UI.
type LayerState struct {
	ID       string         `json:"id" doc:"Layer id"`
	Visible  bool           `json:"visible" doc:"Whether the layer should be drawn"`
	Opacity  float64        `json:"opacity" minimum:"0" maximum:"1" doc:"Layer opacity (0-1)"`
	Metadata layer.Metadata `json:"metadata" doc:"Resolved layer metadata"`
}

// OpKind names a reconciliation step.
type OpKind string

const (
	OpAdd        OpKind = "add"
	OpRemove     OpKind = "remove"
	OpRestyle    OpKind = "restyle"
	OpSetOpacity OpKind = "setOpacity"
)

// Op is one step of a reconciliation pass. State is set for every kind but
// OpRemove.
type Op struct {
	Kind  OpKind      `json:"kind"`
	ID    string      `json:"id"`
	State *LayerState `json:"-"`
}

// LoadedLayer is what the engine knows about a rendered layer.
type LoadedLayer struct {
	Layer           *RenderLayer
	Group           Group
	Opacity         float64
	Visible         bool
	IsRasterOverlay bool
	Style           *layer.StyleConfig

	key string
}

// opacityEpsilon absorbs float noise from sliders.
const opacityEpsilon = 1e-6

// Diff computes the steps that turn loaded into desired. It is pure: loaded
// is not modified. Removals come first (by id), then restyles, opacity
// updates, and finally adds ordered by z-index. When desired lists an id more
// than once the first entry wins.
func Diff(desired []LayerState, loaded map[string]LoadedLayer) []Op {
	want := make(map[string]*LayerState, len(desired))
	for i := range desired {
		st := &desired[i]
		if !st.Visible {
			continue
		}
		if _, dup := want[st.ID]; dup {
			continue
		}
		want[st.ID] = st
	}

	var removes, restyles, opacities, adds []Op
	for id := range loaded {
		if _, ok := want[id]; !ok {
			removes = append(removes, Op{Kind: OpRemove, ID: id})
		}
	}
	for id, st := range want {
		ll, ok := loaded[id]
		switch {
		case !ok:
			adds = append(adds, Op{Kind: OpAdd, ID: id, State: st})
		case ll.key != renderKey(st.Metadata):
			restyles = append(restyles, Op{Kind: OpRestyle, ID: id, State: st})
		case math.Abs(ll.Opacity-clampOpacity(st.Opacity)) > opacityEpsilon:
			opacities = append(opacities, Op{Kind: OpSetOpacity, ID: id, State: st})
		}
	}

	sort.Slice(removes, func(i, j int) bool { return removes[i].ID < removes[j].ID })
	byZ := func(ops []Op) {
		sort.Slice(ops, func(i, j int) bool {
			zi, zj := ops[i].State.Metadata.ZIndex, ops[j].State.Metadata.ZIndex
			if zi != zj {
				return zi < zj
			}
			return ops[i].ID < ops[j].ID
		})
	}
	byZ(restyles)
	byZ(opacities)
	byZ(adds)

	ops := make([]Op, 0, len(removes)+len(restyles)+len(opacities)+len(adds))
	ops = append(ops, removes...)
	ops = append(ops, restyles...)
	ops = append(ops, opacities...)
	return append(ops, adds...)
}

// renderKey fingerprints everything that forces a layer to be rebuilt.
// Opacity is excluded: it can change in place.
func renderKey(md layer.Metadata) string {
	b, _ := json.Marshal(struct {
		Style      *layer.StyleConfig
		ColorScale []string
		ValueRange [2]float64
		ZIndex     int
		DataType   layer.DataType
		Format     layer.Format
	}{md.Style, md.ColorScale, md.ValueRange, md.ZIndex, md.DataType, md.Format})
	return string(b)
}

func clampOpacity(o float64) float64 {
	if math.IsNaN(o) {
		return 1
	}
	return math.Max(0, math.Min(1, o))
}
