package layer

import (
	"path"
	"regexp"
	"strings"
)

// clusterFile matches clusters_SLR-<n>-<Scenario>_<Indicator>... file names
// produced by the geospatial analysis tool.
var clusterFile = regexp.MustCompile(`^clusters_SLR-(\d+)-([A-Za-z]+)_([A-Za-z]+)`)

// ParseClusterID returns clusters-slr-<scenario>-<indicator> for clustered
// scenario outputs. ok is false when the name does not follow the grammar.
func ParseClusterID(filename string) (id string, ok bool) {
	m := clusterFile.FindStringSubmatch(path.Base(filename))
	if m == nil {
		return "", false
	}
	return "clusters-slr-" + strings.ToLower(m[2]) + "-" + strings.ToLower(m[3]), true
}

// IDFromFilename derives the stable layer id for a stored file: the cluster
// grammar when it matches, otherwise the base name without its extension.
func IDFromFilename(filename string) string {
	if id, ok := ParseClusterID(filename); ok {
		return id
	}
	base := path.Base(filename)
	return strings.TrimSuffix(base, path.Ext(base))
}

// GuessCategory picks the layer family from a file name or id.
func GuessCategory(name string) Category {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "cluster"):
		return CategoryClusters
	case strings.Contains(n, "slr"), strings.Contains(n, "sea-level"), strings.Contains(n, "sea_level"):
		return CategorySeaLevelRise
	case strings.Contains(n, "risk"):
		return CategoryRisk
	case strings.Contains(n, "hazard"):
		return CategoryHazard
	case strings.Contains(n, "exposition"), strings.Contains(n, "exposure"):
		return CategoryExposition
	case strings.Contains(n, "relevance"):
		return CategoryRelevance
	default:
		return CategoryUnknown
	}
}

// InferType maps a file extension to data type and format. Unknown
// extensions fall back to the category: clusters and sea-level-rise outputs
// are vector, everything else raster.
func InferType(filename string, cat Category) (DataType, Format) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".cog", ".tif", ".tiff":
		return Raster, FormatCOG
	case ".mbtiles":
		return Vector, FormatMBTiles
	case ".pmtiles":
		return Vector, FormatPMTiles
	case ".geojson", ".json":
		return Vector, FormatGeoJSON
	}
	if cat == CategoryClusters || cat == CategorySeaLevelRise {
		return Vector, FormatGeoJSON
	}
	return Raster, FormatCOG
}

// Z-index ladder. Boundaries must never occlude risk overlays, so the order
// below is fixed.
const (
	ZBoundary      = 100
	ZExposition    = 200
	ZRelevance     = 300
	ZHazard        = 400
	ZRisk          = 500
	ZCluster       = 600
	ZDefaultRaster = 50
	ZDefaultVector = 150
)

// DefaultZIndex assigns draw order by keyword in the human-readable name.
// Checks run from the top rung down so "risk clusters" is a cluster layer.
func DefaultZIndex(name string, dt DataType) int {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "cluster"):
		return ZCluster
	case strings.Contains(n, "risk"):
		return ZRisk
	case strings.Contains(n, "hazard"):
		return ZHazard
	case strings.Contains(n, "relevance"):
		return ZRelevance
	case strings.Contains(n, "exposition"), strings.Contains(n, "exposure"):
		return ZExposition
	case strings.Contains(n, "boundar"), strings.Contains(n, "administrative"), strings.Contains(n, "nuts"):
		return ZBoundary
	}
	if dt == Vector {
		return ZDefaultVector
	}
	return ZDefaultRaster
}

var colorScales = map[Category][]string{
	CategoryRisk:         {"#ffffb2", "#fecc5c", "#fd8d3c", "#f03b20", "#bd0026"},
	CategoryHazard:       {"#f7fbff", "#c6dbef", "#6baed6", "#2171b5", "#08306b"},
	CategoryExposition:   {"#fff5eb", "#fdd0a2", "#fd8d3c", "#d94801", "#7f2704"},
	CategoryRelevance:    {"#f7fcf5", "#c7e9c0", "#74c476", "#238b45", "#00441b"},
	CategoryClusters:     {"#fee5d9", "#fcae91", "#fb6a4a", "#de2d26", "#a50f15"},
	CategorySeaLevelRise: {"#f7fbff", "#9ecae1", "#4292c6", "#08519c", "#08306b"},
}

var defaultColorScale = []string{"#440154", "#3b528b", "#21918c", "#5ec962", "#fde725"}

// DefaultColorScale returns a copy of the category's color stops.
func DefaultColorScale(cat Category) []string {
	scale, ok := colorScales[cat]
	if !ok {
		scale = defaultColorScale
	}
	return append([]string(nil), scale...)
}

// acronyms are kept upper case when ids are turned into display names.
var acronyms = map[string]string{
	"slr":  "SLR",
	"nuts": "NUTS",
	"cog":  "COG",
}

// DisplayName turns an id such as "clusters-slr-severe-combined" into
// "Clusters SLR Severe Combined".
func DisplayName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '.'
	})
	for i, w := range words {
		lw := strings.ToLower(w)
		if a, ok := acronyms[lw]; ok {
			words[i] = a
			continue
		}
		words[i] = strings.ToUpper(lw[:1]) + lw[1:]
	}
	return strings.Join(words, " ")
}
