// Package layer describes map layers: their metadata, style overrides, and the
// resolver that derives both from the layer store listing.
package layer

import (
	"time"

	"github.com/paulmach/orb"
)

// DataType distinguishes raster imagery from vector geometry.
type DataType string

const (
	Raster DataType = "raster"
	Vector DataType = "vector"
)

// Format is the storage format of a layer file.
type Format string

const (
	FormatCOG     Format = "cog"
	FormatMBTiles Format = "mbtiles"
	FormatPMTiles Format = "pmtiles"
	FormatGeoJSON Format = "geojson"
)

// IsTileArchive reports whether the format is a z/x/y tile pyramid.
func (f Format) IsTileArchive() bool {
	return f == FormatMBTiles || f == FormatPMTiles
}

// Category is the coarse layer family guessed from the file name. It only
// selects defaults (color scale); it is never persisted.
type Category string

const (
	CategoryRisk         Category = "risk"
	CategoryHazard       Category = "hazard"
	CategoryExposition   Category = "exposition"
	CategoryRelevance    Category = "relevance"
	CategoryClusters     Category = "clusters"
	CategorySeaLevelRise Category = "sea-level-rise"
	CategoryUnknown      Category = "unknown"
)

// Bounds is an axis-aligned box: minLon, minLat, maxLon, maxLat.
type Bounds [4]float64

// DefaultBounds covers the European study area and is used when neither a
// manifest nor the archive supplies an extent.
var DefaultBounds = Bounds{-25, 34, 45, 72}

// Valid reports whether the box is well formed.
func (b Bounds) Valid() bool {
	return b[0] <= b[2] && b[1] <= b[3] &&
		b[0] >= -180 && b[2] <= 180 && b[1] >= -90 && b[3] <= 90
}

// Bound converts to an orb.Bound.
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}
}

// FromBound converts an orb.Bound back to Bounds.
func FromBound(ob orb.Bound) Bounds {
	return Bounds{ob.Min[0], ob.Min[1], ob.Max[0], ob.Max[1]}
}

// Metadata is the resolved description of one layer.
type Metadata struct {
	ID         string       `json:"id" doc:"Stable layer identifier" example:"clusters-slr-severe-combined"`
	Name       string       `json:"name" doc:"Display name" example:"Clusters SLR Severe Combined"`
	DataType   DataType     `json:"dataType" enum:"raster,vector" doc:"Raster imagery or vector geometry"`
	Format     Format       `json:"format" enum:"cog,mbtiles,pmtiles,geojson" doc:"Storage format"`
	Category   Category     `json:"category" doc:"Layer family guessed from the file name"`
	Bounds     Bounds       `json:"bounds" doc:"minLon, minLat, maxLon, maxLat"`
	ColorScale []string     `json:"colorScale" doc:"Ordered color stops"`
	ValueRange [2]float64   `json:"valueRange" doc:"Minimum and maximum data value"`
	ZIndex     int          `json:"zIndex" doc:"Draw order, higher renders on top"`
	Style      *StyleConfig `json:"styleConfig,omitempty" doc:"Per-layer style override"`
	File       string       `json:"file" doc:"Backing file in the layer store"`
	Size       int64        `json:"size" doc:"File size in bytes"`
	UpdatedAt  time.Time    `json:"updatedAt" doc:"Last modification time of the backing file"`
}

// Entry is one object in the layer store listing.
type Entry struct {
	Name      string    // path relative to the store root, forward slashes
	Size      int64     // bytes
	CreatedAt time.Time // zero when the store cannot tell
	UpdatedAt time.Time
}
