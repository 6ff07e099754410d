package reproject

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-proj/v10"
)

func laeaForward(t *testing.T, ll orb.Point) orb.Point {
	t.Helper()
	pj, err := laeaPJ()
	require.NoError(t, err)
	laeaMu.Lock()
	defer laeaMu.Unlock()
	c, err := pj.Inverse(proj.NewCoord(ll[0], ll[1], 0, 0))
	require.NoError(t, err)
	return orb.Point{c.X(), c.Y()}
}

func TestParseCRS(t *testing.T) {
	tests := map[string]CRS{
		"EPSG:3857":                     WebMercator,
		"EPSG:900913":                   WebMercator,
		"urn:ogc:def:crs:EPSG::3857":    WebMercator,
		"urn:ogc:def:crs:EPSG::4326":    WGS84,
		"urn:ogc:def:crs:OGC:1.3:CRS84": WGS84,
		"urn:ogc:def:crs:EPSG::3035":    LAEAEurope,
		"EPSG:25832":                    CRS(25832),
		"something else":                Unknown,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseCRS(name), name)
	}
	assert.False(t, CRS(25832).Supported())
	assert.Equal(t, "EPSG:3035", LAEAEurope.String())
}

func TestLAEAForwardMatchesEPSGExample(t *testing.T) {
	// EPSG Guidance Note 7-2 worked example.
	en := laeaForward(t, orb.Point{5, 50})
	assert.InDelta(t, 3962799.45, en[0], 0.05)
	assert.InDelta(t, 2999718.85, en[1], 0.05)
}

func TestLAEAInverse(t *testing.T) {
	ll, err := ToWGS84(LAEAEurope, orb.Point{3962799.45, 2999718.85})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, ll[0], 1e-6)
	assert.InDelta(t, 50.0, ll[1], 1e-6)

	for _, p := range []orb.Point{{-9.1, 38.7}, {24.9, 60.2}, {10, 52}, {28.9, 41.0}} {
		back, err := laeaInverse(laeaForward(t, p))
		require.NoError(t, err)
		assert.InDelta(t, p[0], back[0], 1e-7)
		assert.InDelta(t, p[1], back[1], 1e-7)
	}

	_, err = ToWGS84(LAEAEurope, orb.Point{1e9, 1e9})
	assert.ErrorIs(t, err, ErrOutOfDomain)
}

func TestTransformerLAEAFailureKeepsPair(t *testing.T) {
	tr := &Transformer{From: LAEAEurope}
	got := tr.Point(orb.Point{4321000, 3210000})
	assert.InDelta(t, 10.0, got[0], 1e-6)
	assert.InDelta(t, 52.0, got[1], 1e-6)

	bad := orb.Point{1e9, -1e9}
	assert.Equal(t, bad, tr.Point(bad))
	assert.Equal(t, 1, tr.Failures)
}

func TestWebMercator(t *testing.T) {
	m := project.Mercator.ToWGS84
	merc := project.WGS84.ToMercator(orb.Point{13.4, 52.5})

	ll, err := ToWGS84(WebMercator, merc)
	require.NoError(t, err)
	assert.InDelta(t, 13.4, ll[0], 1e-9)
	assert.InDelta(t, 52.5, ll[1], 1e-9)
	assert.Equal(t, m(merc), ll)

	_, err = ToWGS84(WebMercator, orb.Point{4e7, 0})
	assert.ErrorIs(t, err, ErrOutOfDomain)
}

func TestTransformerPoint(t *testing.T) {
	tr := &Transformer{From: Unknown}

	assert.Equal(t, orb.Point{12, 48}, tr.Point(orb.Point{12, 48}), "geographic passes through")

	merc := project.WGS84.ToMercator(orb.Point{2.35, 48.85})
	got := tr.Point(merc)
	assert.InDelta(t, 2.35, got[0], 1e-9)
	assert.InDelta(t, 48.85, got[1], 1e-9)

	bad := orb.Point{9e7, 9e7}
	assert.Equal(t, bad, tr.Point(bad), "failed pair returned unchanged")
	assert.Equal(t, 1, tr.Failures)
}

func TestTransformerSmallProjectedCoordinatesPassThrough(t *testing.T) {
	tr := &Transformer{From: WebMercator}
	assert.Equal(t, orb.Point{150, 80}, tr.Point(orb.Point{150, 80}))
}

func TestFeatureCollection(t *testing.T) {
	raw := []byte(`{
		"type": "FeatureCollection",
		"crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3035"}},
		"features": [
			{"type": "Feature", "properties": {"cluster_id": 7},
			 "geometry": {"type": "Polygon", "coordinates": [[[3962799.45, 2999718.85], [3962899.45, 2999718.85], [3962899.45, 2999818.85], [3962799.45, 2999718.85]]]}},
			{"type": "Feature", "properties": {},
			 "geometry": {"type": "Point", "coordinates": [1e12, 1e12]}},
			{"type": "Feature", "properties": {}, "geometry": null}
		]
	}`)
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	require.NoError(t, err)
	assert.Equal(t, LAEAEurope, CRSOf(fc))

	failures := FeatureCollection(fc)
	assert.Equal(t, 1, failures)
	assert.NotContains(t, fc.ExtraMembers, "crs")

	ring := fc.Features[0].Geometry.(orb.Polygon)[0]
	assert.InDelta(t, 5.0, ring[0][0], 1e-6)
	assert.InDelta(t, 50.0, ring[0][1], 1e-6)
	assert.Equal(t, orb.Point{1e12, 1e12}, fc.Features[1].Geometry.(orb.Point))

	b, ok := Bound(fc)
	require.True(t, ok)
	assert.InDelta(t, 5.0, b.Min[0], 1e-6)
}
