// Package geotiff decodes the first band of single-image GeoTIFF and
// Cloud-Optimized GeoTIFF files into a value grid with its georeferencing.
//
// Supported: classic TIFF in either byte order, strips or tiles, no
// compression or deflate, horizontal differencing predictor, 8/16/32/64-bit
// integer and floating point samples, GDAL no-data, model tiepoint + pixel
// scale georeferencing, EPSG codes from the GeoKey directory.
package geotiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// TIFF tags read by the decoder.
const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPlanarConfiguration = 284
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagGeoKeyDirectory     = 34735
	tagGDALNoData          = 42113
)

const (
	compressionNone         = 1
	compressionDeflate      = 8
	compressionAdobeDeflate = 32946

	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3

	keyGeographicType = 2048
	keyProjectedType  = 3072
	userDefined       = 32767
)

// ErrUnsupported marks valid TIFF features the decoder does not handle.
var ErrUnsupported = errors.New("unsupported tiff")

// Raster is a decoded first band.
type Raster struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Values []float64  `json:"-"`
	NoData *float64   `json:"noData,omitempty"`
	Bounds [4]float64 `json:"bounds"` // minX, minY, maxX, maxY in EPSG units
	EPSG   int        `json:"epsg,omitempty"`

	// Georeferenced is false when the file carries no tiepoint/scale.
	Georeferenced bool `json:"georeferenced"`
}

// Value returns the pixel at col,row. ok is false outside the grid and for
// NaN or no-data pixels.
func (r *Raster) Value(col, row int) (float64, bool) {
	if col < 0 || row < 0 || col >= r.Width || row >= r.Height {
		return 0, false
	}
	v := r.Values[row*r.Width+col]
	if math.IsNaN(v) || r.IsNoData(v) {
		return 0, false
	}
	return v, true
}

// IsNoData reports whether v equals the declared no-data value.
func (r *Raster) IsNoData(v float64) bool {
	return r.NoData != nil && v == *r.NoData
}

// Range returns the minimum and maximum valid values. ok is false when the
// raster holds no valid pixel.
func (r *Raster) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range r.Values {
		if math.IsNaN(v) || r.IsNoData(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		ok = true
	}
	return lo, hi, ok
}

type field struct {
	typ   uint16
	count uint32
	raw   []byte
}

type decoder struct {
	data   []byte
	order  binary.ByteOrder
	fields map[uint16]field
}

// maxPixels bounds both the image and a single tile.
const maxPixels = 1 << 28

// Parse decodes data as a GeoTIFF.
func Parse(data []byte) (*Raster, error) {
	d := &decoder{data: data, fields: make(map[uint16]field)}
	if err := d.readHeader(); err != nil {
		return nil, err
	}

	width := int(d.scalar(tagImageWidth, 0))
	height := int(d.scalar(tagImageLength, 0))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if int64(width)*int64(height) > maxPixels {
		return nil, fmt.Errorf("%w: image %dx%d too large", ErrUnsupported, width, height)
	}

	spp := int(d.scalar(tagSamplesPerPixel, 1))
	if spp < 1 {
		spp = 1
	}
	if spp > 1 && d.scalar(tagPlanarConfiguration, 1) != 1 {
		return nil, fmt.Errorf("%w: planar configuration", ErrUnsupported)
	}
	bits := int(d.scalar(tagBitsPerSample, 1))
	format := int(d.scalar(tagSampleFormat, sampleUint))
	if err := checkSampleType(bits, format); err != nil {
		return nil, err
	}
	comp := d.scalar(tagCompression, compressionNone)
	if comp != compressionNone && comp != compressionDeflate && comp != compressionAdobeDeflate {
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, comp)
	}
	predictor := d.scalar(tagPredictor, 1)
	if predictor != 1 && predictor != 2 {
		return nil, fmt.Errorf("%w: predictor %d", ErrUnsupported, predictor)
	}
	if predictor == 2 && format == sampleFloat {
		return nil, fmt.Errorf("%w: differencing predictor on float samples", ErrUnsupported)
	}

	r := &Raster{Width: width, Height: height, Values: make([]float64, width*height)}
	for i := range r.Values {
		r.Values[i] = math.NaN()
	}

	l := layout{bits: bits, format: format, spp: spp, comp: comp, predictor: predictor}
	var err error
	if _, tiled := d.fields[tagTileWidth]; tiled {
		err = d.readTiles(r, l)
	} else {
		err = d.readStrips(r, l)
	}
	if err != nil {
		return nil, err
	}

	d.readGeo(r)
	return r, nil
}

func checkSampleType(bits, format int) error {
	switch format {
	case sampleUint, sampleInt:
		if bits == 8 || bits == 16 || bits == 32 || bits == 64 {
			return nil
		}
	case sampleFloat:
		if bits == 32 || bits == 64 {
			return nil
		}
	}
	return fmt.Errorf("%w: %d-bit samples of format %d", ErrUnsupported, bits, format)
}

func (d *decoder) readHeader() error {
	if len(d.data) < 8 {
		return errors.New("tiff header truncated")
	}
	switch string(d.data[0:2]) {
	case "II":
		d.order = binary.LittleEndian
	case "MM":
		d.order = binary.BigEndian
	default:
		return errors.New("not a tiff file")
	}
	switch magic := d.order.Uint16(d.data[2:4]); magic {
	case 42:
	case 43:
		return fmt.Errorf("%w: BigTIFF", ErrUnsupported)
	default:
		return fmt.Errorf("bad tiff magic %d", magic)
	}

	off := int(d.order.Uint32(d.data[4:8]))
	if off+2 > len(d.data) {
		return errors.New("ifd offset out of range")
	}
	n := int(d.order.Uint16(d.data[off:]))
	off += 2
	if off+n*12 > len(d.data) {
		return errors.New("ifd truncated")
	}
	for i := 0; i < n; i++ {
		e := d.data[off+i*12 : off+i*12+12]
		tag := d.order.Uint16(e[0:])
		typ := d.order.Uint16(e[2:])
		count := d.order.Uint32(e[4:])
		size := typeSize(typ)
		if size == 0 {
			continue
		}
		total := int(count) * size
		var raw []byte
		if total <= 4 {
			raw = e[8 : 8+total]
		} else {
			vo := int(d.order.Uint32(e[8:]))
			if vo < 0 || vo+total > len(d.data) {
				return fmt.Errorf("tag %d value out of range", tag)
			}
			raw = d.data[vo : vo+total]
		}
		d.fields[tag] = field{typ: typ, count: count, raw: raw}
	}
	return nil
}

func typeSize(typ uint16) int {
	switch typ {
	case 1, 2, 6, 7:
		return 1
	case 3, 8:
		return 2
	case 4, 9, 11:
		return 4
	case 5, 10, 12, 16:
		return 8
	}
	return 0
}

func (d *decoder) uints(tag uint16) []uint64 {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}
	out := make([]uint64, f.count)
	for i := range out {
		switch f.typ {
		case 1, 7:
			out[i] = uint64(f.raw[i])
		case 3:
			out[i] = uint64(d.order.Uint16(f.raw[i*2:]))
		case 4:
			out[i] = uint64(d.order.Uint32(f.raw[i*4:]))
		case 16:
			out[i] = d.order.Uint64(f.raw[i*8:])
		}
	}
	return out
}

func (d *decoder) scalar(tag uint16, def uint64) uint64 {
	if v := d.uints(tag); len(v) > 0 {
		return v[0]
	}
	return def
}

func (d *decoder) floats(tag uint16) []float64 {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}
	out := make([]float64, f.count)
	for i := range out {
		switch f.typ {
		case 11:
			out[i] = float64(math.Float32frombits(d.order.Uint32(f.raw[i*4:])))
		case 12:
			out[i] = math.Float64frombits(d.order.Uint64(f.raw[i*8:]))
		default:
			return nil
		}
	}
	return out
}

func (d *decoder) ascii(tag uint16) string {
	f, ok := d.fields[tag]
	if !ok || f.typ != 2 {
		return ""
	}
	return strings.TrimRight(string(f.raw), "\x00 ")
}

type layout struct {
	bits, format, spp int
	comp, predictor   uint64
}

func (l layout) bytesPerPixel() int {
	return l.spp * l.bits / 8
}

func (d *decoder) chunk(offset, length uint64, l layout, want int) ([]byte, error) {
	size := uint64(len(d.data))
	if offset > size || length > size-offset {
		return nil, fmt.Errorf("chunk at %d+%d out of range", offset, length)
	}
	if want < 0 {
		return nil, fmt.Errorf("invalid chunk size %d", want)
	}
	raw := d.data[offset : offset+length]
	if l.comp == compressionNone {
		if len(raw) < want {
			return nil, fmt.Errorf("chunk has %d bytes, need %d", len(raw), want)
		}
		return raw, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("inflate chunk: %w", err)
	}
	defer zr.Close()
	out := make([]byte, want)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("inflate chunk: %w", err)
	}
	return out, nil
}

// place decodes a chunk of chunkW x chunkH pixels and copies the part that
// falls inside the image at (x0, y0).
func (d *decoder) place(r *Raster, l layout, buf []byte, chunkW, chunkH, x0, y0 int) {
	bpp := l.bytesPerPixel()
	bps := l.bits / 8
	rowSamples := make([]uint64, chunkW*l.spp)
	for row := 0; row < chunkH; row++ {
		y := y0 + row
		if y >= r.Height {
			break
		}
		base := row * chunkW * bpp
		for i := range rowSamples {
			rowSamples[i] = d.sampleBits(buf[base+i*bps:], l.bits)
		}
		if l.predictor == 2 {
			mask := uint64(1)<<uint(l.bits) - 1
			if l.bits == 64 {
				mask = math.MaxUint64
			}
			for i := l.spp; i < len(rowSamples); i++ {
				rowSamples[i] = (rowSamples[i] + rowSamples[i-l.spp]) & mask
			}
		}
		for col := 0; col < chunkW; col++ {
			x := x0 + col
			if x >= r.Width {
				break
			}
			r.Values[y*r.Width+x] = toFloat(rowSamples[col*l.spp], l.bits, l.format)
		}
	}
}

func (d *decoder) sampleBits(b []byte, bits int) uint64 {
	switch bits {
	case 8:
		return uint64(b[0])
	case 16:
		return uint64(d.order.Uint16(b))
	case 32:
		return uint64(d.order.Uint32(b))
	default:
		return d.order.Uint64(b)
	}
}

func toFloat(v uint64, bits, format int) float64 {
	switch format {
	case sampleFloat:
		if bits == 32 {
			return float64(math.Float32frombits(uint32(v)))
		}
		return math.Float64frombits(v)
	case sampleInt:
		switch bits {
		case 8:
			return float64(int8(v))
		case 16:
			return float64(int16(v))
		case 32:
			return float64(int32(v))
		default:
			return float64(int64(v))
		}
	default:
		return float64(v)
	}
}

func (d *decoder) readStrips(r *Raster, l layout) error {
	offsets := d.uints(tagStripOffsets)
	counts := d.uints(tagStripByteCounts)
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return errors.New("strip offsets and byte counts missing or mismatched")
	}
	rowsPerStrip := int(d.scalar(tagRowsPerStrip, uint64(r.Height)))
	if rowsPerStrip <= 0 || rowsPerStrip > r.Height {
		rowsPerStrip = r.Height
	}
	for i := range offsets {
		y0 := i * rowsPerStrip
		if y0 >= r.Height {
			break
		}
		rows := min(rowsPerStrip, r.Height-y0)
		buf, err := d.chunk(offsets[i], counts[i], l, rows*r.Width*l.bytesPerPixel())
		if err != nil {
			return fmt.Errorf("strip %d: %w", i, err)
		}
		d.place(r, l, buf, r.Width, rows, 0, y0)
	}
	return nil
}

func (d *decoder) readTiles(r *Raster, l layout) error {
	tw := int(d.scalar(tagTileWidth, 0))
	th := int(d.scalar(tagTileLength, 0))
	if tw <= 0 || th <= 0 {
		return errors.New("invalid tile size")
	}
	if int64(tw)*int64(th) > maxPixels {
		return fmt.Errorf("%w: tile %dx%d too large", ErrUnsupported, tw, th)
	}
	offsets := d.uints(tagTileOffsets)
	counts := d.uints(tagTileByteCounts)
	across := (r.Width + tw - 1) / tw
	down := (r.Height + th - 1) / th
	if len(offsets) < across*down || len(counts) < across*down {
		return fmt.Errorf("expected %d tiles, have %d offsets", across*down, len(offsets))
	}
	for i := 0; i < across*down; i++ {
		if counts[i] == 0 {
			continue
		}
		buf, err := d.chunk(offsets[i], counts[i], l, tw*th*l.bytesPerPixel())
		if err != nil {
			return fmt.Errorf("tile %d: %w", i, err)
		}
		d.place(r, l, buf, tw, th, (i%across)*tw, (i/across)*th)
	}
	return nil
}

func (d *decoder) readGeo(r *Raster) {
	if s := d.ascii(tagGDALNoData); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			r.NoData = &v
		}
	}

	scale := d.floats(tagModelPixelScale)
	tie := d.floats(tagModelTiepoint)
	if len(scale) >= 2 && len(tie) >= 6 {
		minX := tie[3] - tie[0]*scale[0]
		maxY := tie[4] + tie[1]*scale[1]
		r.Bounds = [4]float64{
			minX,
			maxY - float64(r.Height)*scale[1],
			minX + float64(r.Width)*scale[0],
			maxY,
		}
		r.Georeferenced = true
	}

	keys := d.uints(tagGeoKeyDirectory)
	if len(keys) < 4 {
		return
	}
	n := int(keys[3])
	var geographic, projected int
	for i := 0; i < n && 4+i*4+3 < len(keys); i++ {
		k := keys[4+i*4 : 4+i*4+4]
		if k[1] != 0 {
			continue
		}
		switch k[0] {
		case keyGeographicType:
			geographic = int(k[3])
		case keyProjectedType:
			projected = int(k[3])
		}
	}
	switch {
	case projected != 0 && projected != userDefined:
		r.EPSG = projected
	case geographic != 0 && geographic != userDefined:
		r.EPSG = geographic
	}
}
