// Package reproject converts layer geometry to geographic WGS84 longitude and
// latitude. It knows Web Mercator, WGS84 itself and the ETRS89 Lambert
// azimuthal equal-area grid used for European statistics (EPSG:3035), which
// goes through PROJ.
package reproject

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

// CRS is an EPSG code. Unknown is zero.
type CRS int

const (
	Unknown     CRS = 0
	WGS84       CRS = 4326
	WebMercator CRS = 3857
	LAEAEurope  CRS = 3035
)

// ErrOutOfDomain is returned for coordinates the projection cannot invert.
var ErrOutOfDomain = errors.New("coordinate outside projection domain")

var epsgCode = regexp.MustCompile(`(?i)EPSG:{1,2}(\d+)$`)

// ParseCRS maps a GeoJSON crs name ("EPSG:3857",
// "urn:ogc:def:crs:EPSG::3035", "urn:ogc:def:crs:OGC:1.3:CRS84") to a CRS.
// Aliases of Web Mercator collapse onto 3857.
func ParseCRS(name string) CRS {
	name = strings.TrimSpace(name)
	if strings.HasSuffix(strings.ToUpper(name), "CRS84") {
		return WGS84
	}
	m := epsgCode.FindStringSubmatch(name)
	if m == nil {
		return Unknown
	}
	code, _ := strconv.Atoi(m[1])
	switch code {
	case 3857, 900913, 3785, 102100, 102113:
		return WebMercator
	case 4326, 4258:
		return WGS84
	case 3035:
		return LAEAEurope
	}
	return CRS(code)
}

// Supported reports whether points in c can be converted.
func (c CRS) Supported() bool {
	return c == WGS84 || c == WebMercator || c == LAEAEurope
}

func (c CRS) String() string {
	if c == Unknown {
		return "unknown"
	}
	return fmt.Sprintf("EPSG:%d", int(c))
}

// Geographic reports whether p already lies in the lon/lat domain.
func Geographic(p orb.Point) bool {
	return p[0] >= -180 && p[0] <= 180 && p[1] >= -90 && p[1] <= 90
}

// ToWGS84 converts one point from c to lon/lat.
func ToWGS84(c CRS, p orb.Point) (orb.Point, error) {
	if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
		return p, ErrOutOfDomain
	}
	var out orb.Point
	switch c {
	case WGS84:
		out = p
	case WebMercator:
		if math.Abs(p[0]) > mercatorExtent*1.0001 || math.Abs(p[1]) > mercatorExtent*1.0001 {
			return p, ErrOutOfDomain
		}
		out = project.Mercator.ToWGS84(p)
	case LAEAEurope:
		var err error
		if out, err = laeaInverse(p); err != nil {
			return p, err
		}
	default:
		return p, fmt.Errorf("%s: no transform", c)
	}
	if !Geographic(out) {
		return p, ErrOutOfDomain
	}
	return out, nil
}

// mercatorExtent is half the Web Mercator world width in meters.
const mercatorExtent = 20037508.342789244

// Transformer converts points from a source CRS. Points that already look
// geographic pass through untouched, and a point that fails to convert is
// kept as is. With an unknown source, out-of-range points are treated as Web
// Mercator.
type Transformer struct {
	From     CRS
	Failures int
}

// Point converts p.
func (t *Transformer) Point(p orb.Point) orb.Point {
	if Geographic(p) {
		return p
	}
	from := t.From
	if from == Unknown || from == WGS84 || !from.Supported() {
		from = WebMercator
	}
	out, err := ToWGS84(from, p)
	if err != nil {
		t.Failures++
		return p
	}
	return out
}

// Geometry converts every point of g in place.
func (t *Transformer) Geometry(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	return project.Geometry(g, t.Point)
}

// CRSOf reads the legacy "crs" member of a FeatureCollection.
func CRSOf(fc *geojson.FeatureCollection) CRS {
	crs, ok := fc.ExtraMembers["crs"].(map[string]any)
	if !ok {
		return Unknown
	}
	props, ok := crs["properties"].(map[string]any)
	if !ok {
		return Unknown
	}
	name, _ := props["name"].(string)
	return ParseCRS(name)
}

// FeatureCollection converts fc to WGS84 in place, drops the crs member and
// recomputes the bbox if one was present. It returns how many points could
// not be converted.
func FeatureCollection(fc *geojson.FeatureCollection) int {
	t := &Transformer{From: CRSOf(fc)}
	for _, f := range fc.Features {
		f.Geometry = t.Geometry(f.Geometry)
		if len(f.BBox) == 4 && f.Geometry != nil {
			f.BBox = geojson.NewBBox(f.Geometry.Bound())
		}
	}
	delete(fc.ExtraMembers, "crs")
	if len(fc.BBox) == 4 {
		if b, ok := Bound(fc); ok {
			fc.BBox = geojson.NewBBox(b)
		}
	}
	return t.Failures
}

// Bound returns the union of all feature bounds.
func Bound(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			b = f.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, found
}
