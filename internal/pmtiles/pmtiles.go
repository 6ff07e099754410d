// Package pmtiles reads PMTiles v3 archives: the header, the directory tree
// and the JSON metadata, enough to serve single z/x/y tiles from disk.
//
// The binary layout follows github.com/protomaps/go-pmtiles (BSD-3-Clause).
// Spec: https://github.com/protomaps/PMTiles/blob/main/spec/v3/spec.md
package pmtiles

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Compression is the compression algorithm applied to tiles or directories.
type Compression uint8

const (
	UnknownCompression Compression = 0
	NoCompression      Compression = 1
	Gzip               Compression = 2
	Brotli             Compression = 3
	Zstd               Compression = 4
)

// TileType is the format of individual tile contents.
type TileType uint8

const (
	UnknownTileType TileType = 0
	Mvt             TileType = 1
	Png             TileType = 2
	Jpeg            TileType = 3
	Webp            TileType = 4
	Avif            TileType = 5
)

// ContentType returns the HTTP media type of tiles of this type.
func (t TileType) ContentType() string {
	switch t {
	case Mvt:
		return "application/vnd.mapbox-vector-tile"
	case Png:
		return "image/png"
	case Jpeg:
		return "image/jpeg"
	case Webp:
		return "image/webp"
	case Avif:
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}

// HeaderV3LenBytes is the fixed-size binary header.
const HeaderV3LenBytes = 127

// HeaderV3 is the binary header of a PMTiles v3 archive.
type HeaderV3 struct {
	SpecVersion         uint8
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression Compression
	TileCompression     Compression
	TileType            TileType
	MinZoom             uint8
	MaxZoom             uint8
	MinLonE7            int32
	MinLatE7            int32
	MaxLonE7            int32
	MaxLatE7            int32
	CenterZoom          uint8
	CenterLonE7         int32
	CenterLatE7         int32
}

// Bounds returns minLon, minLat, maxLon, maxLat in degrees.
func (h HeaderV3) Bounds() [4]float64 {
	return [4]float64{
		float64(h.MinLonE7) / 1e7,
		float64(h.MinLatE7) / 1e7,
		float64(h.MaxLonE7) / 1e7,
		float64(h.MaxLatE7) / 1e7,
	}
}

// EntryV3 is an entry in a PMTiles v3 directory. RunLength 0 marks a pointer
// to a leaf directory.
type EntryV3 struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

// ZxyToID converts (Z,X,Y) tile coordinates to a Hilbert TileID.
func ZxyToID(z uint8, x uint32, y uint32) uint64 {
	var acc uint64 = (1<<(z*2) - 1) / 3
	n := uint32(z - 1)
	for s := uint32(1 << n); s > 0; s >>= 1 {
		rx := s & x
		ry := s & y
		acc += uint64((3*rx)^ry) << n
		x, y = rotate(s, x, y, rx, ry)
		n--
	}
	return acc
}

func rotate(n uint32, x uint32, y uint32, rx uint32, ry uint32) (uint32, uint32) {
	if ry == 0 {
		if rx != 0 {
			x = n - 1 - x
			y = n - 1 - y
		}
		return y, x
	}
	return x, y
}

// SerializeHeader converts a header to bytes.
func SerializeHeader(header HeaderV3) []byte {
	b := make([]byte, HeaderV3LenBytes)
	copy(b[0:7], "PMTiles")

	b[7] = 3
	le := binary.LittleEndian
	le.PutUint64(b[8:], header.RootOffset)
	le.PutUint64(b[16:], header.RootLength)
	le.PutUint64(b[24:], header.MetadataOffset)
	le.PutUint64(b[32:], header.MetadataLength)
	le.PutUint64(b[40:], header.LeafDirectoryOffset)
	le.PutUint64(b[48:], header.LeafDirectoryLength)
	le.PutUint64(b[56:], header.TileDataOffset)
	le.PutUint64(b[64:], header.TileDataLength)
	le.PutUint64(b[72:], header.AddressedTilesCount)
	le.PutUint64(b[80:], header.TileEntriesCount)
	le.PutUint64(b[88:], header.TileContentsCount)
	if header.Clustered {
		b[96] = 0x1
	}
	b[97] = uint8(header.InternalCompression)
	b[98] = uint8(header.TileCompression)
	b[99] = uint8(header.TileType)
	b[100] = header.MinZoom
	b[101] = header.MaxZoom
	le.PutUint32(b[102:], uint32(header.MinLonE7))
	le.PutUint32(b[106:], uint32(header.MinLatE7))
	le.PutUint32(b[110:], uint32(header.MaxLonE7))
	le.PutUint32(b[114:], uint32(header.MaxLatE7))
	b[118] = header.CenterZoom
	le.PutUint32(b[119:], uint32(header.CenterLonE7))
	le.PutUint32(b[123:], uint32(header.CenterLatE7))
	return b
}

// DeserializeHeader parses a binary header.
func DeserializeHeader(d []byte) (HeaderV3, error) {
	h := HeaderV3{}
	if len(d) < HeaderV3LenBytes {
		return h, errors.New("buffer too small for header")
	}
	if string(d[0:7]) != "PMTiles" {
		return h, errors.New("magic number not detected")
	}

	le := binary.LittleEndian
	h.SpecVersion = d[7]
	h.RootOffset = le.Uint64(d[8:])
	h.RootLength = le.Uint64(d[16:])
	h.MetadataOffset = le.Uint64(d[24:])
	h.MetadataLength = le.Uint64(d[32:])
	h.LeafDirectoryOffset = le.Uint64(d[40:])
	h.LeafDirectoryLength = le.Uint64(d[48:])
	h.TileDataOffset = le.Uint64(d[56:])
	h.TileDataLength = le.Uint64(d[64:])
	h.AddressedTilesCount = le.Uint64(d[72:])
	h.TileEntriesCount = le.Uint64(d[80:])
	h.TileContentsCount = le.Uint64(d[88:])
	h.Clustered = d[96] == 0x1
	h.InternalCompression = Compression(d[97])
	h.TileCompression = Compression(d[98])
	h.TileType = TileType(d[99])
	h.MinZoom = d[100]
	h.MaxZoom = d[101]
	h.MinLonE7 = int32(le.Uint32(d[102:]))
	h.MinLatE7 = int32(le.Uint32(d[106:]))
	h.MaxLonE7 = int32(le.Uint32(d[110:]))
	h.MaxLatE7 = int32(le.Uint32(d[114:]))
	h.CenterZoom = d[118]
	h.CenterLonE7 = int32(le.Uint32(d[119:]))
	h.CenterLatE7 = int32(le.Uint32(d[123:]))

	if h.SpecVersion != 3 {
		return h, fmt.Errorf("unsupported pmtiles version %d", h.SpecVersion)
	}
	return h, nil
}

// SerializeMetadata converts metadata JSON to compressed bytes.
func SerializeMetadata(metadata map[string]any, compression Compression) ([]byte, error) {
	jsonBytes, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return compress(jsonBytes, compression)
}

// DeserializeMetadata decompresses and decodes the metadata section.
func DeserializeMetadata(d []byte, compression Compression) (map[string]any, error) {
	raw, err := Decompress(d, compression)
	if err != nil {
		return nil, fmt.Errorf("decompress metadata: %w", err)
	}
	var md map[string]any
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return md, nil
}

// SerializeEntries converts directory entries to compressed bytes.
func SerializeEntries(entries []EntryV3, compression Compression) ([]byte, error) {
	var b bytes.Buffer
	tmp := make([]byte, binary.MaxVarintLen64)
	put := func(v uint64) {
		n := binary.PutUvarint(tmp, v)
		b.Write(tmp[:n])
	}

	put(uint64(len(entries)))
	lastID := uint64(0)
	for _, entry := range entries {
		put(entry.TileID - lastID)
		lastID = entry.TileID
	}
	for _, entry := range entries {
		put(uint64(entry.RunLength))
	}
	for _, entry := range entries {
		put(uint64(entry.Length))
	}
	for i, entry := range entries {
		if i > 0 && entry.Offset == entries[i-1].Offset+uint64(entries[i-1].Length) {
			put(0)
		} else {
			put(entry.Offset + 1)
		}
	}
	return compress(b.Bytes(), compression)
}

// DeserializeEntries decodes a directory.
func DeserializeEntries(d []byte, compression Compression) ([]EntryV3, error) {
	raw, err := Decompress(d, compression)
	if err != nil {
		return nil, fmt.Errorf("decompress directory: %w", err)
	}
	r := bytes.NewReader(raw)

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("read entry count: %w", err)
	}
	if count > uint64(len(raw)) {
		return nil, fmt.Errorf("directory claims %d entries in %d bytes", count, len(raw))
	}
	entries := make([]EntryV3, count)

	lastID := uint64(0)
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("read tile id: %w", err)
		}
		lastID += v
		entries[i].TileID = lastID
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("read run length: %w", err)
		}
		entries[i].RunLength = uint32(v)
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("read length: %w", err)
		}
		entries[i].Length = uint32(v)
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("read offset: %w", err)
		}
		if v == 0 && i > 0 {
			entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
		} else {
			entries[i].Offset = v - 1
		}
	}
	return entries, nil
}

// FindTile looks up tileID in a sorted directory. A hit with RunLength 0 is
// a leaf directory pointer.
func FindTile(entries []EntryV3, tileID uint64) (EntryV3, bool) {
	lo, hi := 0, len(entries)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch c := entries[mid].TileID; {
		case tileID > c:
			lo = mid + 1
		case tileID < c:
			hi = mid - 1
		default:
			return entries[mid], true
		}
	}
	// entries[hi] is the last entry starting before tileID.
	if hi >= 0 {
		e := entries[hi]
		if e.RunLength == 0 {
			return e, true
		}
		if tileID-e.TileID < uint64(e.RunLength) {
			return e, true
		}
	}
	return EntryV3{}, false
}

func compress(d []byte, compression Compression) ([]byte, error) {
	switch compression {
	case NoCompression:
		return d, nil
	case Gzip:
		var b bytes.Buffer
		w, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(d); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	default:
		return nil, fmt.Errorf("compression %d not supported", compression)
	}
}

// Decompress undoes compression for directories, metadata or tiles.
func Decompress(d []byte, compression Compression) ([]byte, error) {
	switch compression {
	case NoCompression, UnknownCompression:
		return d, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(d))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("compression %d not supported", compression)
	}
}
