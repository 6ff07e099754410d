package pmtiles

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tile struct {
	z    uint8
	x, y uint32
	data []byte
}

// buildArchive lays out header, root directory, metadata and tile data the
// way tippecanoe does.
func buildArchive(t *testing.T, metadata map[string]any, tiles []tile) []byte {
	t.Helper()

	var data bytes.Buffer
	entries := make([]EntryV3, 0, len(tiles))
	for _, tl := range tiles {
		entries = append(entries, EntryV3{
			TileID:    ZxyToID(tl.z, tl.x, tl.y),
			Offset:    uint64(data.Len()),
			Length:    uint32(len(tl.data)),
			RunLength: 1,
		})
		data.Write(tl.data)
	}

	root, err := SerializeEntries(entries, Gzip)
	require.NoError(t, err)
	meta, err := SerializeMetadata(metadata, Gzip)
	require.NoError(t, err)

	h := HeaderV3{
		RootOffset:          HeaderV3LenBytes,
		RootLength:          uint64(len(root)),
		MetadataOffset:      HeaderV3LenBytes + uint64(len(root)),
		MetadataLength:      uint64(len(meta)),
		TileDataOffset:      HeaderV3LenBytes + uint64(len(root)) + uint64(len(meta)),
		TileDataLength:      uint64(data.Len()),
		AddressedTilesCount: uint64(len(tiles)),
		TileEntriesCount:    uint64(len(tiles)),
		TileContentsCount:   uint64(len(tiles)),
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     NoCompression,
		TileType:            Mvt,
		MinZoom:             0,
		MaxZoom:             2,
		MinLonE7:            -250000000,
		MinLatE7:            340000000,
		MaxLonE7:            450000000,
		MaxLatE7:            720000000,
	}

	var out bytes.Buffer
	out.Write(SerializeHeader(h))
	out.Write(root)
	out.Write(meta)
	out.Write(data.Bytes())
	return out.Bytes()
}

func TestZxyToID(t *testing.T) {
	assert.Equal(t, uint64(0), ZxyToID(0, 0, 0))
	assert.Equal(t, uint64(1), ZxyToID(1, 0, 0))
	assert.Equal(t, uint64(2), ZxyToID(1, 0, 1))
	assert.Equal(t, uint64(3), ZxyToID(1, 1, 1))
	assert.Equal(t, uint64(4), ZxyToID(1, 1, 0))
	assert.Equal(t, uint64(5), ZxyToID(2, 0, 0))
}

func TestHeaderRoundTrip(t *testing.T) {
	h := HeaderV3{SpecVersion: 3, RootOffset: 127, RootLength: 10, TileType: Png, MaxZoom: 9, MinLonE7: -1, CenterLatE7: 515000000}
	got, err := DeserializeHeader(SerializeHeader(h))
	require.NoError(t, err)
	assert.Equal(t, h, got)

	_, err = DeserializeHeader([]byte("short"))
	assert.Error(t, err)
	bad := SerializeHeader(h)
	copy(bad, "MBTiles")
	_, err = DeserializeHeader(bad)
	assert.Error(t, err)
}

func TestEntriesRoundTrip(t *testing.T) {
	entries := []EntryV3{
		{TileID: 0, Offset: 0, Length: 10, RunLength: 1},
		{TileID: 1, Offset: 10, Length: 5, RunLength: 2},
		{TileID: 7, Offset: 100, Length: 3, RunLength: 1},
	}
	for _, c := range []Compression{NoCompression, Gzip} {
		raw, err := SerializeEntries(entries, c)
		require.NoError(t, err)
		got, err := DeserializeEntries(raw, c)
		require.NoError(t, err)
		assert.Equal(t, entries, got)
	}

	_, err := SerializeEntries(entries, Brotli)
	assert.Error(t, err)
}

func TestFindTile(t *testing.T) {
	entries := []EntryV3{
		{TileID: 0, RunLength: 1},
		{TileID: 2, RunLength: 3},
		{TileID: 10, RunLength: 0},
	}
	e, ok := FindTile(entries, 3)
	assert.True(t, ok)
	assert.Equal(t, uint64(2), e.TileID)

	_, ok = FindTile(entries, 1)
	assert.False(t, ok)
	_, ok = FindTile(entries, 5)
	assert.False(t, ok)

	e, ok = FindTile(entries, 40)
	assert.True(t, ok, "leaf pointer covers everything after it")
	assert.Equal(t, uint32(0), e.RunLength)
}

func TestReader(t *testing.T) {
	archive := buildArchive(t,
		map[string]any{"name": "nuts", "vector_layers": []any{map[string]any{"id": "nuts_l3"}}},
		[]tile{
			{0, 0, 0, []byte("world")},
			{1, 0, 1, []byte("south-west")},
			{2, 2, 1, []byte("europe")},
		})

	path := filepath.Join(t.TempDir(), "nuts.pmtiles")
	require.NoError(t, os.WriteFile(path, archive, 0o644))

	rd, err := Open(path)
	require.NoError(t, err)
	defer rd.Close()

	assert.Equal(t, Mvt, rd.Header().TileType)
	assert.Equal(t, [4]float64{-25, 34, 45, 72}, rd.Header().Bounds())

	md, err := rd.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "nuts", md["name"])

	got, err := rd.Tile(2, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("europe"), got)

	got, err = rd.Tile(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), got)

	_, err = rd.Tile(1, 1, 1)
	assert.ErrorIs(t, err, ErrTileNotFound)
	_, err = rd.Tile(9, 0, 0)
	assert.ErrorIs(t, err, ErrTileNotFound)
}

func TestTileTypeContentType(t *testing.T) {
	assert.Equal(t, "application/vnd.mapbox-vector-tile", Mvt.ContentType())
	assert.Equal(t, "image/png", Png.ContentType())
	assert.Equal(t, "application/octet-stream", UnknownTileType.ContentType())
}
