package layer

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseClusterID(t *testing.T) {
	tests := []struct {
		file string
		id   string
		ok   bool
	}{
		{"clusters_SLR-3-Severe_COMBINED_optimized.geojson", "clusters-slr-severe-combined", true},
		{"clusters_SLR-0-Current_GDP.geojson", "clusters-slr-current-gdp", true},
		{"sub/dir/clusters_SLR-2-Moderate_POP_v2.geojson", "clusters-slr-moderate-pop", true},
		{"clusters-slr-severe.geojson", "", false},
		{"coastal_risk.cog", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			id, ok := ParseClusterID(tt.file)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestIDFromFilename(t *testing.T) {
	assert.Equal(t, "clusters-slr-severe-combined", IDFromFilename("clusters_SLR-3-Severe_COMBINED_optimized.geojson"))
	assert.Equal(t, "flood_hazard", IDFromFilename("flood_hazard.cog"))
	assert.Equal(t, "nuts-l3", IDFromFilename("boundaries/nuts-l3.mbtiles"))
	assert.Equal(t, "README", IDFromFilename("README"))
}

func TestGuessCategory(t *testing.T) {
	assert.Equal(t, CategoryClusters, GuessCategory("clusters_SLR-3-Severe_COMBINED.geojson"))
	assert.Equal(t, CategorySeaLevelRise, GuessCategory("slr_2100.cog"))
	assert.Equal(t, CategoryRisk, GuessCategory("Coastal_Risk.cog"))
	assert.Equal(t, CategoryHazard, GuessCategory("flood-hazard.cog"))
	assert.Equal(t, CategoryExposition, GuessCategory("population_exposure.cog"))
	assert.Equal(t, CategoryRelevance, GuessCategory("relevance_index.cog"))
	assert.Equal(t, CategoryUnknown, GuessCategory("terrain.cog"))
}

func TestInferType(t *testing.T) {
	tests := []struct {
		file   string
		cat    Category
		dt     DataType
		format Format
	}{
		{"risk.cog", CategoryRisk, Raster, FormatCOG},
		{"risk.TIF", CategoryRisk, Raster, FormatCOG},
		{"nuts.mbtiles", CategoryUnknown, Vector, FormatMBTiles},
		{"nuts.pmtiles", CategoryUnknown, Vector, FormatPMTiles},
		{"cl.geojson", CategoryClusters, Vector, FormatGeoJSON},
		{"clusters-export", CategoryClusters, Vector, FormatGeoJSON},
		{"slr-export", CategorySeaLevelRise, Vector, FormatGeoJSON},
		{"hazard-export", CategoryHazard, Raster, FormatCOG},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			dt, format := InferType(tt.file, tt.cat)
			assert.Equal(t, tt.dt, dt)
			assert.Equal(t, tt.format, format)
		})
	}
}

func TestDefaultZIndexOrdering(t *testing.T) {
	names := []string{"risk clusters", "coastal risk", "NUTS boundaries", "flood hazard"}
	sort.SliceStable(names, func(i, j int) bool {
		return DefaultZIndex(names[i], Vector) < DefaultZIndex(names[j], Vector)
	})
	assert.Equal(t, []string{"NUTS boundaries", "flood hazard", "coastal risk", "risk clusters"}, names)
}

func TestDefaultZIndexLadder(t *testing.T) {
	assert.Equal(t, ZBoundary, DefaultZIndex("Administrative areas", Vector))
	assert.Equal(t, ZExposition, DefaultZIndex("Population exposition", Raster))
	assert.Equal(t, ZRelevance, DefaultZIndex("Relevance", Raster))
	assert.Equal(t, ZHazard, DefaultZIndex("Flood Hazard", Raster))
	assert.Equal(t, ZRisk, DefaultZIndex("Coastal Risk", Raster))
	assert.Equal(t, ZCluster, DefaultZIndex("Clusters SLR Severe Combined", Vector))
	assert.Equal(t, ZDefaultRaster, DefaultZIndex("Terrain", Raster))
	assert.Equal(t, ZDefaultVector, DefaultZIndex("Roads", Vector))
	assert.Greater(t, ZDefaultVector, ZDefaultRaster)
}

func TestDefaultColorScaleIsCopy(t *testing.T) {
	a := DefaultColorScale(CategoryRisk)
	a[0] = "#000000"
	assert.NotEqual(t, "#000000", DefaultColorScale(CategoryRisk)[0])
	assert.Len(t, DefaultColorScale(CategoryUnknown), 5)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Clusters SLR Severe Combined", DisplayName("clusters-slr-severe-combined"))
	assert.Equal(t, "NUTS Boundaries L3", DisplayName("nuts_boundaries_l3"))
	assert.Equal(t, "Flood Hazard", DisplayName("flood_hazard"))
}
