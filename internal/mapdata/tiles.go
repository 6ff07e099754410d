package mapdata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-climate/internal/mbtiles"
	"github.com/joeblew999/plat-climate/internal/pmtiles"
)

// MaxZoom is the deepest zoom level accepted for tile requests.
const MaxZoom = 24

// Content types for tile responses.
const (
	ContentTypeMVT = "application/vnd.mapbox-vector-tile"
	ContentTypePNG = "image/png"
)

// Tile is one decoded tile.
type Tile struct {
	Data        []byte
	ContentType string
}

// ValidateTile checks z/x/y against the XYZ pyramid.
func ValidateTile(z, x, y int) error {
	if z < 0 || z > MaxZoom || x < 0 || y < 0 {
		return fmt.Errorf("%w: %d/%d/%d", ErrInvalidTile, z, x, y)
	}
	if !maptile.New(uint32(x), uint32(y), maptile.Zoom(z)).Valid() {
		return fmt.Errorf("%w: %d/%d/%d", ErrInvalidTile, z, x, y)
	}
	return nil
}

// VectorTile returns the decompressed MVT at z/x/y.
func (s *Service) VectorTile(ctx context.Context, id string, z, x, y int) (Tile, error) {
	return s.tile(ctx, "tile", id, z, x, y, false)
}

// RasterTile returns the PNG (or JPEG/WebP) tile at z/x/y.
func (s *Service) RasterTile(ctx context.Context, id string, z, x, y int) (Tile, error) {
	return s.tile(ctx, "raster-tile", id, z, x, y, true)
}

func (s *Service) tile(ctx context.Context, kind, id string, z, x, y int, raster bool) (Tile, error) {
	if err := ValidateTile(z, x, y); err != nil {
		s.rec.LayerRequest(kind, "invalid")
		return Tile{}, err
	}
	a, err := s.openArchive(ctx, id)
	if err != nil {
		s.rec.LayerRequest(kind, "missing")
		return Tile{}, err
	}
	t, err := a.tile(ctx, uint8(z), uint32(x), uint32(y))
	if err != nil {
		if errors.Is(err, ErrNoTile) {
			s.rec.LayerRequest(kind, "missing")
		} else {
			s.rec.LayerRequest(kind, "error")
		}
		return Tile{}, err
	}
	if raster != (t.ContentType != ContentTypeMVT) {
		s.rec.LayerRequest(kind, "missing")
		return Tile{}, fmt.Errorf("%w: %s holds %s tiles", ErrNoTile, id, t.ContentType)
	}
	s.rec.LayerRequest(kind, "file")
	return t, nil
}

// archiveMetadata returns the tile archive metadata for id as a JSON-ready
// object. MBTiles rows are returned with the "json" row decoded; PMTiles
// metadata is wrapped as {"json": ...} so both expose json.vector_layers.
func (s *Service) archiveMetadata(ctx context.Context, id string) (map[string]any, bool) {
	a, err := s.openArchive(ctx, id)
	if err != nil {
		return nil, false
	}
	md, err := a.metadata(ctx)
	if err != nil {
		s.logger.Warn("read archive metadata", "layer", id, "error", err)
		return nil, false
	}
	return md, true
}

func (s *Service) openArchive(ctx context.Context, id string) (archive, error) {
	names := archiveNames(id)
	if md, ok := s.resolve(ctx, id); ok && md.Format.IsTileArchive() {
		names = append(names, md.File)
	}
	for _, name := range names {
		if !s.store.Exists(name) {
			continue
		}
		path, err := s.store.Path(name)
		if err != nil {
			continue
		}
		a, err := s.archives.open(path)
		if err != nil {
			s.logger.Warn("open tile archive", "layer", id, "file", name, "error", err)
			continue
		}
		return a, nil
	}
	return nil, fmt.Errorf("archive %s: %w", id, ErrNoTile)
}

type archive interface {
	tile(ctx context.Context, z uint8, x, y uint32) (Tile, error)
	metadata(ctx context.Context) (map[string]any, error)
	close() error
}

// archivePool keeps archives open between requests, keyed by path.
type archivePool struct {
	mu     sync.Mutex
	byPath map[string]archive
}

func newArchivePool() *archivePool {
	return &archivePool{byPath: make(map[string]archive)}
}

func (p *archivePool) open(path string) (archive, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.byPath[path]; ok {
		return a, nil
	}

	var (
		a   archive
		err error
	)
	switch {
	case strings.HasSuffix(path, ".mbtiles"):
		var m *mbtiles.Archive
		if m, err = mbtiles.Open(path); err == nil {
			a = &mbArchive{a: m}
		}
	case strings.HasSuffix(path, ".pmtiles"):
		var r *pmtiles.Reader
		if r, err = pmtiles.Open(path); err == nil {
			a = &pmArchive{r: r}
		}
	default:
		err = fmt.Errorf("%s is not a tile archive", path)
	}
	if err != nil {
		return nil, err
	}
	p.byPath[path] = a
	return a, nil
}

func (p *archivePool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for path, a := range p.byPath {
		_ = a.close()
		delete(p.byPath, path)
	}
}

type mbArchive struct {
	a *mbtiles.Archive
}

func (m *mbArchive) tile(ctx context.Context, z uint8, x, y uint32) (Tile, error) {
	data, err := m.a.Tile(ctx, z, x, y)
	if errors.Is(err, mbtiles.ErrTileNotFound) {
		return Tile{}, ErrNoTile
	}
	if err != nil {
		return Tile{}, err
	}
	format, err := m.a.Format(ctx)
	if err != nil {
		return Tile{}, err
	}
	ct := ContentTypeMVT
	switch strings.ToLower(format) {
	case "png":
		ct = ContentTypePNG
	case "jpg", "jpeg":
		ct = "image/jpeg"
	case "webp":
		ct = "image/webp"
	}
	if ct == ContentTypeMVT {
		if data, err = gunzip(data); err != nil {
			return Tile{}, fmt.Errorf("decompress tile: %w", err)
		}
	}
	return Tile{Data: data, ContentType: ct}, nil
}

func (m *mbArchive) metadata(ctx context.Context) (map[string]any, error) {
	return m.a.MetadataJSON(ctx)
}

func (m *mbArchive) close() error {
	return m.a.Close()
}

type pmArchive struct {
	r *pmtiles.Reader
}

func (p *pmArchive) tile(_ context.Context, z uint8, x, y uint32) (Tile, error) {
	data, err := p.r.Tile(z, x, y)
	if errors.Is(err, pmtiles.ErrTileNotFound) {
		return Tile{}, ErrNoTile
	}
	if err != nil {
		return Tile{}, err
	}
	h := p.r.Header()
	if data, err = pmtiles.Decompress(data, h.TileCompression); err != nil {
		return Tile{}, fmt.Errorf("decompress tile: %w", err)
	}
	return Tile{Data: data, ContentType: h.TileType.ContentType()}, nil
}

func (p *pmArchive) metadata(context.Context) (map[string]any, error) {
	md, err := p.r.Metadata()
	if err != nil {
		return nil, err
	}
	return map[string]any{"json": md}, nil
}

func (p *pmArchive) close() error {
	return p.r.Close()
}

// gunzip inflates gzip data and passes anything else through.
func gunzip(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
