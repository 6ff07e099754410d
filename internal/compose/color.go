package compose

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strconv"

	"github.com/joeblew999/plat-climate/internal/geotiff"
	"github.com/joeblew999/plat-climate/internal/layer"
)

// Transparent is the color of pixels without signal.
var Transparent = color.NRGBA{}

// riskStop is one knot of the risk gradient.
type riskStop struct {
	t     float64
	c     color.NRGBA
	alpha float64
}

// riskStops run transparent to orange over the bottom third, orange to red
// over the middle third and red to dark red over the top third, with opacity
// ramping so low risk stays faint and high risk dominates.
var riskStops = []riskStop{
	{0, color.NRGBA{R: 255, G: 165}, 0},
	{1.0 / 3, color.NRGBA{R: 255, G: 165}, 0.5},
	{2.0 / 3, color.NRGBA{R: 255}, 0.75},
	{1, color.NRGBA{R: 139}, 0.95},
}

// normalize maps v into [0,1] over [lo,hi]. A degenerate range puts every
// value at or above lo at the top.
func normalize(v, lo, hi float64) float64 {
	if hi <= lo {
		if v >= lo {
			return 1
		}
		return 0
	}
	return math.Max(0, math.Min(1, (v-lo)/(hi-lo)))
}

// noSignal reports whether v is missing, NaN or exactly zero. Zero is
// treated as missing data, not as zero risk.
func noSignal(v *float64) bool {
	return v == nil || math.IsNaN(*v) || *v == 0
}

// RiskColor colors a risk value with the three-segment gradient.
func RiskColor(v *float64, lo, hi float64) color.NRGBA {
	if noSignal(v) {
		return Transparent
	}
	t := normalize(*v, lo, hi)
	for i := 1; i < len(riskStops); i++ {
		a, b := riskStops[i-1], riskStops[i]
		if t > b.t && i < len(riskStops)-1 {
			continue
		}
		f := (t - a.t) / (b.t - a.t)
		return color.NRGBA{
			R: lerp8(a.c.R, b.c.R, f),
			G: lerp8(a.c.G, b.c.G, f),
			B: lerp8(a.c.B, b.c.B, f),
			A: uint8(math.Round(255 * (a.alpha + (b.alpha-a.alpha)*f))),
		}
	}
	return Transparent
}

func lerp8(a, b uint8, f float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*f))
}

// StopsColor picks the color stop floor(t*(n-1)) for v.
func StopsColor(v *float64, lo, hi float64, stops []color.NRGBA) color.NRGBA {
	if noSignal(v) || len(stops) == 0 {
		return Transparent
	}
	t := normalize(*v, lo, hi)
	return stops[int(math.Floor(t*float64(len(stops)-1)))]
}

// ParseHex parses #rgb, #rrggbb and #rrggbbaa colors.
func ParseHex(s string) (color.NRGBA, error) {
	if len(s) == 0 || s[0] != '#' {
		return color.NRGBA{}, fmt.Errorf("color %q: missing #", s)
	}
	h := s[1:]
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.NRGBA{}, fmt.Errorf("color %q: bad length", s)
	}
	n, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(n >> 24), G: uint8(n >> 16), B: uint8(n >> 8), A: uint8(n)}, nil
}

// parseStops parses a color scale, skipping malformed entries.
func parseStops(scale []string) []color.NRGBA {
	stops := make([]color.NRGBA, 0, len(scale))
	for _, s := range scale {
		if c, err := ParseHex(s); err == nil {
			stops = append(stops, c)
		}
	}
	return stops
}

// ColorizeRaster renders r with the layer's color scale and value range.
// Risk layers use the risk gradient. When the value range is degenerate the
// raster's own range is used.
func ColorizeRaster(r *geotiff.Raster, md layer.Metadata) *image.NRGBA {
	lo, hi := md.ValueRange[0], md.ValueRange[1]
	if lo == hi {
		if rlo, rhi, ok := r.Range(); ok {
			lo, hi = rlo, rhi
		}
	}
	risk := md.Category == layer.CategoryRisk
	stops := parseStops(md.ColorScale)

	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	for row := 0; row < r.Height; row++ {
		for col := 0; col < r.Width; col++ {
			var vp *float64
			if v, ok := r.Value(col, row); ok {
				vp = &v
			}
			if risk {
				img.SetNRGBA(col, row, RiskColor(vp, lo, hi))
			} else {
				img.SetNRGBA(col, row, StopsColor(vp, lo, hi, stops))
			}
		}
	}
	return img
}

// PNGDataURL encodes img as a data: URL.
func PNGDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
