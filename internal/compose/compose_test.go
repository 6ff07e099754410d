package compose

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-climate/internal/geotiff"
	"github.com/joeblew999/plat-climate/internal/layer"
)

func loadedFor(states ...LayerState) map[string]LoadedLayer {
	out := make(map[string]LoadedLayer, len(states))
	for _, st := range states {
		out[st.ID] = LoadedLayer{Opacity: st.Opacity, Visible: true, key: renderKey(st.Metadata)}
	}
	return out
}

func TestDiff(t *testing.T) {
	a, b, c := vectorState("a", 300), vectorState("b", 100), vectorState("c", 200)

	ops := Diff([]LayerState{a, b, c}, nil)
	require.Len(t, ops, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{ops[0].ID, ops[1].ID, ops[2].ID})
	for _, op := range ops {
		assert.Equal(t, OpAdd, op.Kind)
	}

	loaded := loadedFor(a, b, c)
	assert.Empty(t, Diff([]LayerState{a, b, c}, loaded), "no change")

	hiddenA := a
	hiddenA.Visible = false
	dimB := b
	dimB.Opacity = 0.3
	styledC := c
	styledC.Metadata.ColorScale = []string{"#000000"}
	d := vectorState("d", 50)

	ops = Diff([]LayerState{hiddenA, dimB, styledC, d}, loaded)
	require.Len(t, ops, 4)
	assert.Equal(t, Op{Kind: OpRemove, ID: "a"}, ops[0])
	assert.Equal(t, OpRestyle, ops[1].Kind)
	assert.Equal(t, "c", ops[1].ID)
	assert.Equal(t, OpSetOpacity, ops[2].Kind)
	assert.Equal(t, "b", ops[2].ID)
	assert.Equal(t, OpAdd, ops[3].Kind)
	assert.Equal(t, "d", ops[3].ID)

	assert.Len(t, loaded, 3, "loaded is not modified")
}

func TestDiffRemovalsSortedAndDuplicatesIgnored(t *testing.T) {
	loaded := loadedFor(vectorState("z", 1), vectorState("m", 1), vectorState("a", 1))
	ops := Diff(nil, loaded)
	require.Len(t, ops, 3)
	assert.Equal(t, []string{"a", "m", "z"}, []string{ops[0].ID, ops[1].ID, ops[2].ID})

	x := vectorState("x", 1)
	ops = Diff([]LayerState{x, x}, nil)
	assert.Len(t, ops, 1)
}

func ptr(v float64) *float64 { return &v }

func TestRiskColor(t *testing.T) {
	assert.Equal(t, Transparent, RiskColor(ptr(0), 0, 1))
	assert.Equal(t, Transparent, RiskColor(nil, 0, 1))
	assert.Equal(t, Transparent, RiskColor(ptr(math.NaN()), 0, 1))

	low := RiskColor(ptr(0.2), 0, 1)
	mid := RiskColor(ptr(0.5), 0, 1)
	high := RiskColor(ptr(1), 0, 1)

	lowBound := uint8(math.Round(255 * 0.5))
	highBound := uint8(math.Round(255 * 0.75))
	assert.Less(t, low.A, lowBound)
	assert.Greater(t, mid.A, lowBound)
	assert.Less(t, mid.A, highBound)
	assert.Equal(t, uint8(255), mid.R)
	assert.Less(t, mid.G, uint8(165), "between orange and red")
	assert.Greater(t, mid.G, uint8(0))

	assert.Equal(t, color.NRGBA{R: 139, A: 242}, high)
	assert.Equal(t, high, RiskColor(ptr(7), 0, 1), "clamped")
}

func TestStopsColor(t *testing.T) {
	stops := parseStops([]string{"#000000", "#808080", "#ffffff", "bogus"})
	require.Len(t, stops, 3)

	assert.Equal(t, stops[0], StopsColor(ptr(0.1), 0, 10, stops))
	assert.Equal(t, stops[0], StopsColor(ptr(4.9), 0, 10, stops))
	assert.Equal(t, stops[1], StopsColor(ptr(5), 0, 10, stops))
	assert.Equal(t, stops[2], StopsColor(ptr(10), 0, 10, stops))
	assert.Equal(t, Transparent, StopsColor(ptr(0), 0, 10, stops))
	assert.Equal(t, Transparent, StopsColor(ptr(3), 0, 10, nil))
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#f80")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, G: 136, A: 255}, c)

	c, err = ParseHex("#11223344")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0x11, G: 0x22, B: 0x33, A: 0x44}, c)

	_, err = ParseHex("red")
	assert.Error(t, err)
	_, err = ParseHex("#12345")
	assert.Error(t, err)
}

func TestColorizeRaster(t *testing.T) {
	nodata := -9999.0
	r := &geotiff.Raster{Width: 3, Height: 1, Values: []float64{0, 5, -9999}, NoData: &nodata}
	md := layer.Metadata{ColorScale: []string{"#000000", "#ffffff"}}

	img := ColorizeRaster(r, md)
	assert.Equal(t, Transparent, img.NRGBAAt(0, 0), "zero is no signal")
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, img.NRGBAAt(1, 0), "degenerate range uses the raster's")
	assert.Equal(t, Transparent, img.NRGBAAt(2, 0))

	url, err := PNGDataURL(img)
	require.NoError(t, err)
	assert.Contains(t, url, "data:image/png;base64,")
}

func TestFormatProperties(t *testing.T) {
	props := map[string]any{
		"area_square_meters": 2500000.0,
		"population":         1234567.0,
		"riskScore":          0.256,
		"slr_scenario":       "severe",
		"coastal":            true,
		"pixel_count":        42.0,
		"risk_density":       0.1,
		"cluster_id":         7.0,
		"empty":              nil,
	}
	got := FormatProperties(props, "en")
	assert.Equal(t, []Property{
		{Key: "area_square_meters", Label: "Area", Value: "2.5 km²"},
		{Key: "coastal", Label: "Coastal", Value: "Yes"},
		{Key: "population", Label: "Population", Value: "1,234,567"},
		{Key: "riskScore", Label: "Risk Score", Value: "0.26"},
		{Key: "slr_scenario", Label: "SLR Scenario", Value: "severe"},
	}, got)

	de := FormatProperties(map[string]any{"area_square_meters": 2500000.0, "population": 1234567.0}, "de")
	assert.Equal(t, "2,5 km²", de[0].Value)
	assert.Equal(t, "1.234.567", de[1].Value)
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "GDP Per Capita", Humanize("gdp_per_capita"))
	assert.Equal(t, "Exposed Population", Humanize("exposedPopulation"))
	assert.Equal(t, "Flood Depth 2050", Humanize("flood-depth-2050"))
}

func TestPopupHTML(t *testing.T) {
	html, err := PopupHTML("Coastal Risk", map[string]any{"cluster_id": 12.0, "name": "<b>Kiel</b>"}, "en")
	require.NoError(t, err)
	assert.Contains(t, html, "<h4>Cluster 12</h4>")
	assert.Contains(t, html, "&lt;b&gt;Kiel&lt;/b&gt;")
	assert.NotContains(t, html, "Cluster Id")

	html, err = PopupHTML("Coastal Risk", nil, "en")
	require.NoError(t, err)
	assert.Contains(t, html, "<h4>Coastal Risk</h4>")
	assert.NotContains(t, html, "<table>")
}
