// Package mapsession fetches and memoizes layer data for one map instance.
//
// A Session is created per map and discarded with it. Entries are filled on
// first access and never evicted or invalidated; a new Session is the only
// way to see changed layer data.
package mapsession

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-climate/internal/geotiff"
)

// Kind tags what a cache entry holds.
type Kind string

const (
	KindRaster      Kind = "raster"
	KindVector      Kind = "vector"
	KindDerivedName Kind = "derivedName"
)

// layerNameSuffix keys resolved vector tile layer names apart from the
// geometry of the same id.
const layerNameSuffix = "_layername"

// Entry is one memoized fetch result.
type Entry struct {
	Data      any // *geojson.FeatureCollection, *geotiff.Raster or string
	Timestamp time.Time
	Kind      Kind
}

// Source fetches raw layer payloads.
type Source interface {
	VectorGeoJSON(ctx context.Context, id string) ([]byte, error)
	COG(ctx context.Context, id string) ([]byte, error)
	VectorTile(ctx context.Context, id string, z, x, y int) ([]byte, error)
}

// Session is the data cache of one map instance. It is safe for concurrent
// use; two concurrent misses for one id both fetch and the later write wins.
type Session struct {
	src    Source
	clock  clockwork.Clock
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]Entry
}

// New creates an empty session reading from src.
func New(src Source, clock clockwork.Clock, logger *slog.Logger) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		src:     src,
		clock:   clock,
		logger:  logger,
		entries: make(map[string]Entry),
	}
}

// Len returns the number of cached entries.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entry returns the cached entry under key.
func (s *Session) Entry(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *Session) store(key string, kind Kind, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = Entry{Data: data, Timestamp: s.clock.Now(), Kind: kind}
}

// FetchVector returns the layer's FeatureCollection. ok is false when the
// fetch or parse failed; the failure is logged and not cached.
func (s *Session) FetchVector(ctx context.Context, id string) (*geojson.FeatureCollection, bool) {
	if e, ok := s.Entry(id); ok {
		if fc, ok := e.Data.(*geojson.FeatureCollection); ok {
			return fc, true
		}
	}
	body, err := s.src.VectorGeoJSON(ctx, id)
	if err != nil {
		s.logger.Warn("fetch vector layer", "layer", id, "error", err)
		return nil, false
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		s.logger.Warn("parse vector layer", "layer", id, "error", err)
		return nil, false
	}
	s.store(id, KindVector, fc)
	return fc, true
}

// FetchRaster returns the layer's decoded COG.
func (s *Session) FetchRaster(ctx context.Context, id string) (*geotiff.Raster, bool) {
	if e, ok := s.Entry(id); ok {
		if r, ok := e.Data.(*geotiff.Raster); ok {
			return r, true
		}
	}
	data, err := s.src.COG(ctx, id)
	if err != nil {
		s.logger.Warn("fetch raster layer", "layer", id, "error", err)
		return nil, false
	}
	r, err := geotiff.Parse(data)
	if err != nil {
		s.logger.Warn("parse raster layer", "layer", id, "error", err)
		return nil, false
	}
	s.store(id, KindRaster, r)
	return r, true
}

// ResolveVectorTileLayerName returns the layer name the tiling tool wrote
// into the vector tiles of id. It reads
// properties.metadata.json.vector_layers[0].id from the layer's GeoJSON
// payload, then probes the 0/0/0 tile, and finally falls back to id itself.
// Only resolved names are cached.
func (s *Session) ResolveVectorTileLayerName(ctx context.Context, id string) string {
	key := id + layerNameSuffix
	if e, ok := s.Entry(key); ok {
		if name, ok := e.Data.(string); ok {
			return name
		}
	}

	if fc, ok := s.FetchVector(ctx, id); ok {
		if name, ok := metadataLayerName(fc); ok {
			s.store(key, KindDerivedName, name)
			return name
		}
	}
	if name, ok := s.probeTile(ctx, id); ok {
		s.store(key, KindDerivedName, name)
		return name
	}
	s.logger.Warn("vector tile layer name unresolved, styling by layer id", "layer", id)
	return id
}

func (s *Session) probeTile(ctx context.Context, id string) (string, bool) {
	data, err := s.src.VectorTile(ctx, id, 0, 0, 0)
	if err != nil || len(data) == 0 {
		return "", false
	}
	var layers mvt.Layers
	if len(data) > 1 && data[0] == 0x1f && data[1] == 0x8b {
		layers, err = mvt.UnmarshalGzipped(data)
	} else {
		layers, err = mvt.Unmarshal(data)
	}
	if err != nil {
		s.logger.Warn("decode probe tile", "layer", id, "error", err)
		return "", false
	}
	for _, l := range layers {
		if l.Name != "" {
			return l.Name, true
		}
	}
	return "", false
}

// metadataLayerName digs properties.metadata.json.vector_layers[0].id out of
// a collection. The "json" member may be an object or an encoded string.
func metadataLayerName(fc *geojson.FeatureCollection) (string, bool) {
	props, _ := fc.ExtraMembers["properties"].(map[string]any)
	md, _ := props["metadata"].(map[string]any)
	var tilejson map[string]any
	switch v := md["json"].(type) {
	case map[string]any:
		tilejson = v
	case string:
		if err := json.Unmarshal([]byte(v), &tilejson); err != nil {
			return "", false
		}
	}
	layers, _ := tilejson["vector_layers"].([]any)
	if len(layers) == 0 {
		return "", false
	}
	first, _ := layers[0].(map[string]any)
	name, _ := first["id"].(string)
	return name, name != ""
}
