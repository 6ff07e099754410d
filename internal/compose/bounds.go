package compose

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-climate/internal/geotiff"
	"github.com/joeblew999/plat-climate/internal/layer"
	"github.com/joeblew999/plat-climate/internal/reproject"
)

// UnionBounds takes the min and max of each edge across the valid boxes.
// ok is false when none is valid.
func UnionBounds(bs []layer.Bounds) (layer.Bounds, bool) {
	out := layer.Bounds{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	ok := false
	for _, b := range bs {
		if !b.Valid() {
			continue
		}
		out[0] = math.Min(out[0], b[0])
		out[1] = math.Min(out[1], b[1])
		out[2] = math.Max(out[2], b[2])
		out[3] = math.Max(out[3], b[3])
		ok = true
	}
	if !ok {
		return layer.Bounds{}, false
	}
	return out, true
}

// featureBounds is the extent of every geometry in fc.
func featureBounds(fc *geojson.FeatureCollection) (layer.Bounds, bool) {
	var b orb.Bound
	ok := false
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		if !ok {
			b, ok = f.Geometry.Bound(), true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	if !ok {
		return layer.Bounds{}, false
	}
	lb := layer.FromBound(b)
	return lb, lb.Valid()
}

// rasterBounds returns the geographic extent of a georeferenced raster.
func rasterBounds(r *geotiff.Raster) (layer.Bounds, bool) {
	if !r.Georeferenced {
		return layer.Bounds{}, false
	}
	crs := reproject.WGS84
	if r.EPSG != 0 {
		crs = reproject.ParseCRS(fmt.Sprintf("EPSG:%d", r.EPSG))
	}
	lo, err := reproject.ToWGS84(crs, orb.Point{r.Bounds[0], r.Bounds[1]})
	if err != nil {
		return layer.Bounds{}, false
	}
	hi, err := reproject.ToWGS84(crs, orb.Point{r.Bounds[2], r.Bounds[3]})
	if err != nil {
		return layer.Bounds{}, false
	}
	b := layer.Bounds{
		math.Min(lo[0], hi[0]), math.Min(lo[1], hi[1]),
		math.Max(lo[0], hi[0]), math.Max(lo[1], hi[1]),
	}
	return b, b.Valid()
}
