package layer

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ManifestSuffix is appended to a layer file name to find its sidecar.
const ManifestSuffix = ".layer.yaml"

// Manifest is the optional metadata sidecar uploaded next to a layer file.
// Every field it sets wins over what the resolver infers from the file name.
//
//	id: coastal-risk-2050
//	name: Coastal risk 2050
//	dataType: raster
//	format: cog
//	bounds: [5.5, 47.2, 15.1, 55.1]
//	valueRange: [0, 1]
//	zIndex: 500
type Manifest struct {
	ID         string    `yaml:"id"`
	Name       string    `yaml:"name"`
	Category   Category  `yaml:"category"`
	DataType   DataType  `yaml:"dataType"`
	Format     Format    `yaml:"format"`
	Bounds     []float64 `yaml:"bounds"`
	ColorScale []string  `yaml:"colorScale"`
	ValueRange []float64 `yaml:"valueRange"`
	ZIndex     *int      `yaml:"zIndex"`
}

// ParseManifest decodes and sanity-checks a sidecar.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.DataType != "" && m.DataType != Raster && m.DataType != Vector {
		return nil, fmt.Errorf("manifest dataType %q unknown", m.DataType)
	}
	switch m.Format {
	case "", FormatCOG, FormatMBTiles, FormatPMTiles, FormatGeoJSON:
	default:
		return nil, fmt.Errorf("manifest format %q unknown", m.Format)
	}
	if len(m.Bounds) != 0 {
		if len(m.Bounds) != 4 {
			return nil, fmt.Errorf("manifest bounds need 4 values, got %d", len(m.Bounds))
		}
		if !(Bounds{m.Bounds[0], m.Bounds[1], m.Bounds[2], m.Bounds[3]}).Valid() {
			return nil, fmt.Errorf("manifest bounds %v are not a valid box", m.Bounds)
		}
	}
	if len(m.ValueRange) != 0 && len(m.ValueRange) != 2 {
		return nil, fmt.Errorf("manifest valueRange needs 2 values, got %d", len(m.ValueRange))
	}
	return &m, nil
}

func (m *Manifest) applyTo(md *Metadata) {
	if m.ID != "" {
		md.ID = m.ID
	}
	if m.Name != "" {
		md.Name = m.Name
	}
	if m.Category != "" {
		md.Category = m.Category
	}
	if m.DataType != "" {
		md.DataType = m.DataType
	}
	if m.Format != "" {
		md.Format = m.Format
	}
	if len(m.Bounds) == 4 {
		md.Bounds = Bounds{m.Bounds[0], m.Bounds[1], m.Bounds[2], m.Bounds[3]}
	}
	if len(m.ColorScale) > 0 {
		md.ColorScale = append([]string(nil), m.ColorScale...)
	}
	if len(m.ValueRange) == 2 {
		md.ValueRange = orderedRange(m.ValueRange[0], m.ValueRange[1])
	}
	if m.ZIndex != nil {
		md.ZIndex = *m.ZIndex
	}
}

func orderedRange(lo, hi float64) [2]float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	return [2]float64{lo, hi}
}
