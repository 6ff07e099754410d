package layer

import (
	"fmt"
	"regexp"
)

// StyleConfig is a per-layer style override. Exactly one of Raster or Vector
// is expected; an override with neither is empty and gets discarded.
type StyleConfig struct {
	Raster *RasterStyle `json:"raster,omitempty" doc:"Raster color scheme override"`
	Vector *VectorStyle `json:"vector,omitempty" doc:"Vector fill and border override"`
}

// RasterStyle overrides how raster values are colored.
type RasterStyle struct {
	ColorScheme []string  `json:"colorScheme,omitempty" doc:"Ordered color stops" example:"[\"#ffffb2\",\"#bd0026\"]"`
	ValueRange  []float64 `json:"valueRange,omitempty" minItems:"2" maxItems:"2" doc:"Minimum and maximum value"`
}

// VectorStyle overrides how vector features are drawn.
type VectorStyle struct {
	FillColor     string   `json:"fillColor,omitempty" doc:"Fill color (CSS hex)" example:"#3388ff"`
	FillOpacity   *float64 `json:"fillOpacity,omitempty" minimum:"0" maximum:"1" doc:"Fill opacity (0-1)"`
	BorderColor   string   `json:"borderColor,omitempty" doc:"Border color (CSS hex)" example:"#2266cc"`
	BorderWidth   float64  `json:"borderWidth,omitempty" minimum:"0" maximum:"20" doc:"Border width in pixels"`
	BorderOpacity *float64 `json:"borderOpacity,omitempty" minimum:"0" maximum:"1" doc:"Border opacity (0-1)"`
	DashArray     string   `json:"dashArray,omitempty" doc:"SVG dash pattern" example:"4 2"`
}

var (
	hexColor  = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	dashArray = regexp.MustCompile(`^\d+(\.\d+)?([ ,]+\d+(\.\d+)?)*$`)
)

// IsEmpty reports whether the override carries nothing to apply.
func (s *StyleConfig) IsEmpty() bool {
	if s == nil {
		return true
	}
	rasterEmpty := s.Raster == nil || (len(s.Raster.ColorScheme) == 0 && len(s.Raster.ValueRange) == 0)
	vectorEmpty := s.Vector == nil || *s.Vector == VectorStyle{}
	return rasterEmpty && vectorEmpty
}

// Validate checks colors, ranges and dash patterns.
func (s *StyleConfig) Validate() error {
	if s == nil {
		return nil
	}
	if r := s.Raster; r != nil {
		for _, c := range r.ColorScheme {
			if !hexColor.MatchString(c) {
				return fmt.Errorf("raster color %q is not a hex color", c)
			}
		}
		if len(r.ValueRange) != 0 {
			if len(r.ValueRange) != 2 {
				return fmt.Errorf("raster value range needs 2 values, got %d", len(r.ValueRange))
			}
			if r.ValueRange[0] > r.ValueRange[1] {
				return fmt.Errorf("raster value range %v is reversed", r.ValueRange)
			}
		}
	}
	if v := s.Vector; v != nil {
		for _, c := range []string{v.FillColor, v.BorderColor} {
			if c != "" && !hexColor.MatchString(c) {
				return fmt.Errorf("vector color %q is not a hex color", c)
			}
		}
		for _, o := range []*float64{v.FillOpacity, v.BorderOpacity} {
			if o != nil && (*o < 0 || *o > 1) {
				return fmt.Errorf("opacity %v outside [0,1]", *o)
			}
		}
		if v.BorderWidth < 0 {
			return fmt.Errorf("border width %v is negative", v.BorderWidth)
		}
		if v.DashArray != "" && !dashArray.MatchString(v.DashArray) {
			return fmt.Errorf("dash array %q is malformed", v.DashArray)
		}
	}
	return nil
}

// Apply folds the override into the metadata defaults. Only raster color
// scheme and value range live on Metadata; vector styles are read by the
// renderer from Metadata.Style.
func (m *Metadata) Apply(s *StyleConfig) {
	if s.IsEmpty() {
		return
	}
	m.Style = s
	if r := s.Raster; r != nil {
		if len(r.ColorScheme) > 0 {
			m.ColorScale = append([]string(nil), r.ColorScheme...)
		}
		if len(r.ValueRange) == 2 {
			m.ValueRange = [2]float64{r.ValueRange[0], r.ValueRange[1]}
		}
	}
}
