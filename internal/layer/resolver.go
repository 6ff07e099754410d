package layer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Store lists layer files and reads sidecars. Missing files must be reported
// with an error wrapping fs.ErrNotExist.
type Store interface {
	List(ctx context.Context) ([]Entry, error)
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

// StyleSource returns the persisted style override for a layer, or an empty
// StyleConfig when none exists.
type StyleSource interface {
	Style(ctx context.Context, id string) (StyleConfig, error)
}

// StyleFailureFunc is notified when a style fetch fails.
type StyleFailureFunc func(id string, err error)

// Resolver turns a store listing into layer metadata.
type Resolver struct {
	store     Store
	styles    StyleSource
	logger    *slog.Logger
	onFailure StyleFailureFunc
}

// NewResolver creates a resolver. styles may be nil to skip style overrides.
func NewResolver(store Store, styles StyleSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, styles: styles, logger: logger}
}

// OnStyleFailure registers a callback for swallowed style fetch errors.
func (r *Resolver) OnStyleFailure(fn StyleFailureFunc) {
	r.onFailure = fn
}

// Resolve derives metadata for one listing entry. manifest may be nil.
func Resolve(e Entry, manifest *Manifest) Metadata {
	cat := GuessCategory(e.Name)
	dt, format := InferType(e.Name, cat)
	id := IDFromFilename(e.Name)

	md := Metadata{
		ID:         id,
		Name:       DisplayName(id),
		DataType:   dt,
		Format:     format,
		Category:   cat,
		Bounds:     DefaultBounds,
		ColorScale: DefaultColorScale(cat),
		ValueRange: [2]float64{0, 1},
		File:       e.Name,
		Size:       e.Size,
		UpdatedAt:  e.UpdatedAt,
	}
	md.ZIndex = DefaultZIndex(md.Name, md.DataType)

	if manifest != nil {
		nameBefore := md.Name
		manifest.applyTo(&md)
		if manifest.ZIndex == nil && md.Name != nameBefore {
			md.ZIndex = DefaultZIndex(md.Name, md.DataType)
		}
		if len(manifest.ColorScale) == 0 && manifest.Category != "" {
			md.ColorScale = DefaultColorScale(md.Category)
		}
	}
	return md
}

// List resolves every layer in the store. Style overrides are fetched
// concurrently and best-effort: failures are logged and the layer keeps its
// defaults. The result is sorted by z-index, then id. When two files resolve
// to the same id the first one listed wins.
func (r *Resolver) List(ctx context.Context) ([]Metadata, error) {
	layers, err := r.resolveAll(ctx)
	if err != nil {
		return nil, err
	}

	if r.styles != nil {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(8)
		for i := range layers {
			g.Go(func() error {
				r.applyStyle(gctx, &layers[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	sort.SliceStable(layers, func(i, j int) bool {
		if layers[i].ZIndex != layers[j].ZIndex {
			return layers[i].ZIndex < layers[j].ZIndex
		}
		return layers[i].ID < layers[j].ID
	})
	return layers, nil
}

// ByID lists every layer once and indexes the result by id.
func (r *Resolver) ByID(ctx context.Context) (map[string]Metadata, error) {
	layers, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Metadata, len(layers))
	for _, md := range layers {
		out[md.ID] = md
	}
	return out, nil
}

// Get resolves a single layer by id. Only that layer's style override is
// fetched.
func (r *Resolver) Get(ctx context.Context, id string) (Metadata, bool, error) {
	md, ok, err := r.Find(ctx, id)
	if err != nil || !ok {
		return md, ok, err
	}
	if r.styles != nil {
		r.applyStyle(ctx, &md)
	}
	return md, true, nil
}

// Find resolves a layer by id from the store and manifests alone, without
// a style fetch. Payload lookups use it.
func (r *Resolver) Find(ctx context.Context, id string) (Metadata, bool, error) {
	layers, err := r.resolveAll(ctx)
	if err != nil {
		return Metadata{}, false, err
	}
	for _, md := range layers {
		if md.ID == id {
			return md, true, nil
		}
	}
	return Metadata{}, false, nil
}

func (r *Resolver) resolveAll(ctx context.Context) ([]Metadata, error) {
	entries, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list layer store: %w", err)
	}

	seen := make(map[string]bool, len(entries))
	layers := make([]Metadata, 0, len(entries))
	for _, e := range entries {
		md := Resolve(e, r.manifest(ctx, e.Name))
		if seen[md.ID] {
			r.logger.Debug("duplicate layer id skipped", "layer", md.ID, "file", e.Name)
			continue
		}
		seen[md.ID] = true
		layers = append(layers, md)
	}
	return layers, nil
}

func (r *Resolver) manifest(ctx context.Context, name string) *Manifest {
	data, err := r.store.ReadFile(ctx, name+ManifestSuffix)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("read layer manifest", "file", name, "error", err)
		}
		return nil
	}
	m, err := ParseManifest(data)
	if err != nil {
		r.logger.Warn("invalid layer manifest ignored", "file", name, "error", err)
		return nil
	}
	return m
}

func (r *Resolver) applyStyle(ctx context.Context, md *Metadata) {
	style, err := r.styles.Style(ctx, md.ID)
	if err != nil {
		r.logger.Warn("style fetch failed, keeping defaults", "layer", md.ID, "error", err)
		if r.onFailure != nil {
			r.onFailure(md.ID, err)
		}
		return
	}
	if style.IsEmpty() {
		return
	}
	if err := style.Validate(); err != nil {
		r.logger.Warn("invalid style override discarded", "layer", md.ID, "error", err)
		return
	}
	md.Apply(&style)
}
