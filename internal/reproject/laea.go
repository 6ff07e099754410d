package reproject

import (
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-proj/v10"
)

// laeaPJ converts between EPSG:3035 and EPSG:4326, normalized so both sides
// take x/y axis order (easting/northing, lon/lat).
var laeaPJ = sync.OnceValues(func() (*proj.PJ, error) {
	pj, err := proj.NewCRSToCRS("EPSG:3035", "EPSG:4326", nil)
	if err != nil {
		return nil, fmt.Errorf("create EPSG:3035 transform: %w", err)
	}
	return pj.NormalizeForVisualization()
})

// laeaMu serializes calls on laeaPJ.
var laeaMu sync.Mutex

// laeaInverse converts EPSG:3035 easting/northing to lon/lat.
func laeaInverse(en orb.Point) (orb.Point, error) {
	pj, err := laeaPJ()
	if err != nil {
		return en, err
	}
	laeaMu.Lock()
	c, err := pj.Forward(proj.NewCoord(en[0], en[1], 0, 0))
	laeaMu.Unlock()
	if err != nil {
		return en, fmt.Errorf("%w: %w", ErrOutOfDomain, err)
	}
	return orb.Point{c.X(), c.Y()}, nil
}
