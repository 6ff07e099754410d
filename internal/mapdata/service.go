// Package mapdata serves layer payloads to the map: whole-file GeoJSON with
// filename fallbacks and reprojection, vector and raster tiles from tile
// archives, and raw COG bytes.
package mapdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-climate/internal/layer"
	"github.com/joeblew999/plat-climate/internal/reproject"
)

// Cache-Control values for whole-file vector responses.
const (
	CacheHit   = "public, max-age=3600"
	CacheEmpty = "public, max-age=300"
)

var (
	// ErrNotFound is returned when no store object backs a layer.
	ErrNotFound = errors.New("layer data not found")
	// ErrInvalidTile is returned for coordinates outside the tile pyramid.
	ErrInvalidTile = errors.New("invalid tile coordinates")
	// ErrNoTile is returned when the archive has no tile at the coordinates.
	ErrNoTile = errors.New("no tile")
)

// Store is the layer object store.
type Store interface {
	layer.Store
	Exists(name string) bool
	Path(name string) (string, error)
}

// LookupFunc resolves a layer id through manifests and the cluster grammar.
type LookupFunc func(ctx context.Context, id string) (layer.Metadata, bool, error)

// Recorder receives request outcomes. observability.Metrics implements it.
type Recorder interface {
	LayerRequest(kind, outcome string)
	CacheLookup(hit bool)
	ReprojectionFailures(n int)
}

type nopRecorder struct{}

func (nopRecorder) LayerRequest(string, string) {}
func (nopRecorder) CacheLookup(bool)            {}
func (nopRecorder) ReprojectionFailures(int)    {}

// Options configures a Service.
type Options struct {
	TTL           time.Duration
	CacheMaxBytes int64
	Lookup        LookupFunc
	Recorder      Recorder
	Logger        *slog.Logger
}

// Service resolves layer ids to payloads.
type Service struct {
	store    Store
	cache    *cache
	archives *archivePool
	lookup   LookupFunc
	rec      Recorder
	logger   *slog.Logger
}

// New creates a map data service over store.
func New(store Store, opts Options) (*Service, error) {
	c, err := newCache(opts.CacheMaxBytes, opts.TTL)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Service{
		store:    store,
		cache:    c,
		archives: newArchivePool(),
		lookup:   opts.Lookup,
		rec:      opts.Recorder,
		logger:   opts.Logger,
	}, nil
}

// VectorResult is a whole-file vector response.
type VectorResult struct {
	Body         []byte
	CacheControl string
	// File is the store object served, empty for a synthetic collection.
	File string
}

// Synthetic reports whether the body was generated rather than read.
func (r VectorResult) Synthetic() bool {
	return r.File == ""
}

// VectorGeoJSON returns the layer as a WGS84 FeatureCollection. Missing data
// is never an error: the result is then an empty collection, carrying the
// tile archive metadata when the layer is archive-backed.
func (s *Service) VectorGeoJSON(ctx context.Context, id string) (VectorResult, error) {
	if p, ok := s.cache.get("vector", id); ok {
		s.rec.CacheLookup(true)
		s.rec.LayerRequest("vector", "hit")
		return VectorResult{Body: p.body, CacheControl: CacheHit, File: p.file}, nil
	}
	s.rec.CacheLookup(false)

	names := Candidates(id)
	if md, ok := s.resolve(ctx, id); ok && md.Format == layer.FormatGeoJSON {
		names = append(names, md.File)
	}
	for _, name := range names {
		body, ok := s.loadGeoJSON(ctx, id, name)
		if !ok {
			continue
		}
		s.cache.set("vector", id, payload{body: body, file: name})
		s.rec.LayerRequest("vector", "file")
		return VectorResult{Body: body, CacheControl: CacheHit, File: name}, nil
	}
	if err := ctx.Err(); err != nil {
		return VectorResult{}, err
	}

	fc := geojson.NewFeatureCollection()
	outcome := "empty"
	if md, ok := s.archiveMetadata(ctx, id); ok {
		fc.ExtraMembers = geojson.Properties{"properties": map[string]any{"metadata": md}}
		outcome = "archive-metadata"
	}
	body, err := json.Marshal(fc)
	if err != nil {
		return VectorResult{}, fmt.Errorf("encode empty collection: %w", err)
	}
	s.rec.LayerRequest("vector", outcome)
	return VectorResult{Body: body, CacheControl: CacheEmpty}, nil
}

// loadGeoJSON reads, parses and reprojects one candidate. Misses and parse
// failures are logged and skipped.
func (s *Service) loadGeoJSON(ctx context.Context, id, name string) ([]byte, bool) {
	data, err := s.store.ReadFile(ctx, name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("read vector candidate", "layer", id, "file", name, "error", err)
		}
		return nil, false
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		s.logger.Warn("vector file is not a FeatureCollection", "layer", id, "file", name, "error", err)
		s.rec.LayerRequest("vector", "parse-error")
		return nil, false
	}
	if failures := reproject.FeatureCollection(fc); failures > 0 {
		s.logger.Warn("points left untransformed", "layer", id, "file", name, "count", failures)
		s.rec.ReprojectionFailures(failures)
	}
	body, err := json.Marshal(fc)
	if err != nil {
		s.logger.Warn("encode vector layer", "layer", id, "error", err)
		return nil, false
	}
	return body, true
}

// COG returns the raw bytes of a raster layer.
func (s *Service) COG(ctx context.Context, id string) ([]byte, error) {
	if p, ok := s.cache.get("cog", id); ok {
		s.rec.CacheLookup(true)
		s.rec.LayerRequest("cog", "hit")
		return p.body, nil
	}
	s.rec.CacheLookup(false)

	names := cogNames(id)
	if md, ok := s.resolve(ctx, id); ok && md.Format == layer.FormatCOG {
		names = append(names, md.File)
	}
	for _, name := range names {
		data, err := s.store.ReadFile(ctx, name)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("read raster candidate", "layer", id, "file", name, "error", err)
			}
			continue
		}
		s.cache.set("cog", id, payload{body: data, file: name})
		s.rec.LayerRequest("cog", "file")
		return data, nil
	}
	s.rec.LayerRequest("cog", "missing")
	return nil, fmt.Errorf("cog %s: %w", id, ErrNotFound)
}

// Invalidate drops cached payloads and open archives. The file watcher calls
// it when the store changes.
func (s *Service) Invalidate() {
	s.cache.clear()
	s.archives.closeAll()
}

// Close releases the cache and archives.
func (s *Service) Close() {
	s.archives.closeAll()
	s.cache.close()
}

func (s *Service) resolve(ctx context.Context, id string) (layer.Metadata, bool) {
	if s.lookup == nil {
		return layer.Metadata{}, false
	}
	md, ok, err := s.lookup(ctx, id)
	if err != nil {
		s.logger.Warn("resolve layer", "layer", id, "error", err)
		return layer.Metadata{}, false
	}
	return md, ok
}
