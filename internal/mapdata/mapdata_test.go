package mapdata

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-climate/internal/layer"
	"github.com/joeblew999/plat-climate/internal/service"
)

type countingRecorder struct {
	requests map[string]int
	hits     int
	misses   int
	failures int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{requests: make(map[string]int)}
}

func (r *countingRecorder) LayerRequest(kind, outcome string) { r.requests[kind+"/"+outcome]++ }
func (r *countingRecorder) ReprojectionFailures(n int)        { r.failures += n }
func (r *countingRecorder) CacheLookup(hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func newTestService(t *testing.T, files map[string][]byte, opts Options) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	for name, data := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
	store, err := service.NewLayerStore(root, "")
	require.NoError(t, err)
	if opts.TTL == 0 {
		opts.TTL = time.Minute
	}
	svc, err := New(store, opts)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc, root
}

const pointCollection = `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[12.5,41.9]}}]}`

func TestCandidates(t *testing.T) {
	assert.Equal(t, []string{
		"flood-risk.geojson",
		"flood-risk_optimized.geojson",
		"flood-risk.json",
		"flood_risk.geojson",
		"flood_risk_optimized.geojson",
		"flood_risk.json",
	}, Candidates("flood-risk"))

	names := Candidates("clusters-slr-severe")
	assert.Equal(t, "clusters_SLR-3-Severe_COMBINED_optimized.geojson", names[len(names)-2])
	assert.Equal(t, "clusters_SLR-3-Severe_COMBINED.geojson", names[len(names)-1])

	names = Candidates("clusters-slr-moderate-gdp")
	assert.Contains(t, names, "clusters_SLR-2-Moderate_GDP_optimized.geojson")

	names = Candidates("clusters-slr-extreme")
	assert.Len(t, names, 6, "unknown scenario adds no cluster names")
}

func TestVectorGeoJSONClusterFallback(t *testing.T) {
	rec := newCountingRecorder()
	svc, _ := newTestService(t, map[string][]byte{
		"clusters_SLR-3-Severe_COMBINED_optimized.geojson": []byte(pointCollection),
	}, Options{Recorder: rec})

	res, err := svc.VectorGeoJSON(context.Background(), "clusters-slr-severe")
	require.NoError(t, err)
	assert.Equal(t, "clusters_SLR-3-Severe_COMBINED_optimized.geojson", res.File)
	assert.Equal(t, CacheHit, res.CacheControl)
	assert.False(t, res.Synthetic())
	assert.Contains(t, string(res.Body), `"name":"a"`)

	again, err := svc.VectorGeoJSON(context.Background(), "clusters-slr-severe")
	require.NoError(t, err)
	assert.Equal(t, res.Body, again.Body)
	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 1, rec.requests["vector/file"])
	assert.Equal(t, 1, rec.requests["vector/hit"])
}

func TestVectorGeoJSONPrefersExactName(t *testing.T) {
	svc, _ := newTestService(t, map[string][]byte{
		"coast.geojson":           []byte(pointCollection),
		"coast_optimized.geojson": []byte(`{"type":"FeatureCollection","features":[]}`),
	}, Options{})

	res, err := svc.VectorGeoJSON(context.Background(), "coast")
	require.NoError(t, err)
	assert.Equal(t, "coast.geojson", res.File)
}

func TestVectorGeoJSONReprojectsMercator(t *testing.T) {
	svc, _ := newTestService(t, map[string][]byte{
		"ports.geojson": []byte(`{"type":"FeatureCollection",
			"crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::3857"}},
			"features":[{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1391493.63, 6981548.57]}}]}`),
	}, Options{})

	res, err := svc.VectorGeoJSON(context.Background(), "ports")
	require.NoError(t, err)

	var out struct {
		CRS      any `json:"crs"`
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(res.Body, &out))
	assert.Nil(t, out.CRS)
	require.Len(t, out.Features, 1)
	assert.InDelta(t, 12.5, out.Features[0].Geometry.Coordinates[0], 1e-4)
	assert.InDelta(t, 53.0, out.Features[0].Geometry.Coordinates[1], 1e-1)
}

func TestVectorGeoJSONSkipsUnparseable(t *testing.T) {
	rec := newCountingRecorder()
	svc, _ := newTestService(t, map[string][]byte{
		"roads.geojson":           []byte("not json"),
		"roads_optimized.geojson": []byte(pointCollection),
	}, Options{Recorder: rec})

	res, err := svc.VectorGeoJSON(context.Background(), "roads")
	require.NoError(t, err)
	assert.Equal(t, "roads_optimized.geojson", res.File)
	assert.Equal(t, 1, rec.requests["vector/parse-error"])
}

func TestVectorGeoJSONMissingIsEmptyCollection(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})

	res, err := svc.VectorGeoJSON(context.Background(), "nothing-here")
	require.NoError(t, err)
	assert.True(t, res.Synthetic())
	assert.Equal(t, CacheEmpty, res.CacheControl)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(res.Body))
}

func TestVectorGeoJSONUsesLookupFile(t *testing.T) {
	lookup := func(_ context.Context, id string) (layer.Metadata, bool, error) {
		if id != "renamed" {
			return layer.Metadata{}, false, nil
		}
		return layer.Metadata{ID: id, File: "deep/dir/source.geojson", Format: layer.FormatGeoJSON}, true, nil
	}
	svc, _ := newTestService(t, map[string][]byte{
		"deep/dir/source.geojson": []byte(pointCollection),
	}, Options{Lookup: lookup})

	res, err := svc.VectorGeoJSON(context.Background(), "renamed")
	require.NoError(t, err)
	assert.Equal(t, "deep/dir/source.geojson", res.File)
}

func TestVectorGeoJSONArchiveMetadata(t *testing.T) {
	svc, root := newTestService(t, nil, Options{})
	writeMBTiles(t, filepath.Join(root, "buildings.mbtiles"), map[string]string{
		"format": "pbf",
		"json":   `{"vector_layers":[{"id":"buildings_layer"}]}`,
	}, nil)

	res, err := svc.VectorGeoJSON(context.Background(), "buildings")
	require.NoError(t, err)
	assert.True(t, res.Synthetic())

	var out struct {
		Properties struct {
			Metadata struct {
				JSON struct {
					VectorLayers []struct {
						ID string `json:"id"`
					} `json:"vector_layers"`
				} `json:"json"`
			} `json:"metadata"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(res.Body, &out))
	require.Len(t, out.Properties.Metadata.JSON.VectorLayers, 1)
	assert.Equal(t, "buildings_layer", out.Properties.Metadata.JSON.VectorLayers[0].ID)
}

func TestVectorGeoJSONCancelled(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.VectorGeoJSON(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvalidateDropsCachedPayload(t *testing.T) {
	svc, root := newTestService(t, map[string][]byte{
		"rivers.geojson": []byte(pointCollection),
	}, Options{})
	ctx := context.Background()

	first, err := svc.VectorGeoJSON(ctx, "rivers")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "rivers.geojson"),
		[]byte(`{"type":"FeatureCollection","features":[]}`), 0o644))
	cached, err := svc.VectorGeoJSON(ctx, "rivers")
	require.NoError(t, err)
	assert.Equal(t, first.Body, cached.Body)

	svc.Invalidate()
	fresh, err := svc.VectorGeoJSON(ctx, "rivers")
	require.NoError(t, err)
	assert.NotEqual(t, first.Body, fresh.Body)
}

func TestCOG(t *testing.T) {
	svc, _ := newTestService(t, map[string][]byte{
		"elevation.tif": []byte("II*\x00raster"),
	}, Options{})

	data, err := svc.COG(context.Background(), "elevation")
	require.NoError(t, err)
	assert.Equal(t, []byte("II*\x00raster"), data)

	_, err = svc.COG(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateTile(t *testing.T) {
	assert.NoError(t, ValidateTile(0, 0, 0))
	assert.NoError(t, ValidateTile(3, 7, 7))
	assert.ErrorIs(t, ValidateTile(3, 8, 0), ErrInvalidTile)
	assert.ErrorIs(t, ValidateTile(-1, 0, 0), ErrInvalidTile)
	assert.ErrorIs(t, ValidateTile(MaxZoom+1, 0, 0), ErrInvalidTile)
	assert.ErrorIs(t, ValidateTile(2, 0, -1), ErrInvalidTile)
}

func TestVectorTileFromMBTiles(t *testing.T) {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write([]byte("mvt-bytes"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	svc, root := newTestService(t, nil, Options{})
	writeMBTiles(t, filepath.Join(root, "roads.mbtiles"), map[string]string{"format": "pbf"},
		map[[3]uint32][]byte{{1, 1, 0}: gz.Bytes()})

	ctx := context.Background()
	tl, err := svc.VectorTile(ctx, "roads", 1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("mvt-bytes"), tl.Data)
	assert.Equal(t, ContentTypeMVT, tl.ContentType)

	_, err = svc.VectorTile(ctx, "roads", 1, 0, 0)
	assert.ErrorIs(t, err, ErrNoTile)

	_, err = svc.VectorTile(ctx, "roads", 1, 5, 0)
	assert.ErrorIs(t, err, ErrInvalidTile)

	_, err = svc.VectorTile(ctx, "missing", 0, 0, 0)
	assert.ErrorIs(t, err, ErrNoTile)

	_, err = svc.RasterTile(ctx, "roads", 1, 1, 0)
	assert.ErrorIs(t, err, ErrNoTile, "vector archive has no raster tiles")
}

func TestRasterTileFromMBTiles(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	svc, root := newTestService(t, nil, Options{})
	writeMBTiles(t, filepath.Join(root, "hillshade.mbtiles"), map[string]string{"format": "png"},
		map[[3]uint32][]byte{{0, 0, 0}: png})

	tl, err := svc.RasterTile(context.Background(), "hillshade", 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, png, tl.Data)
	assert.Equal(t, ContentTypePNG, tl.ContentType)
}

func writeMBTiles(t *testing.T, path string, metadata map[string]string, tiles map[[3]uint32][]byte) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range []string{
		`CREATE TABLE metadata (name TEXT, value TEXT)`,
		`CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	for k, v := range metadata {
		_, err := db.Exec(`INSERT INTO metadata (name, value) VALUES (?, ?)`, k, v)
		require.NoError(t, err)
	}
	for zxy, data := range tiles {
		row := (uint32(1) << zxy[0]) - 1 - zxy[2]
		_, err := db.Exec(`INSERT INTO tiles VALUES (?, ?, ?, ?)`, zxy[0], zxy[1], row, data)
		require.NoError(t, err)
	}
}
