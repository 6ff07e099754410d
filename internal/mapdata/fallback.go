package mapdata

import (
	"regexp"
	"strings"
)

// scenarioNumbers maps sea-level-rise scenario names to the number the
// analysis tool writes into cluster file names.
var scenarioNumbers = map[string]string{
	"current":      "0",
	"conservative": "1",
	"moderate":     "2",
	"severe":       "3",
}

// defaultIndicator is used when a cluster id names only the scenario.
const defaultIndicator = "COMBINED"

var clusterID = regexp.MustCompile(`^clusters-slr-([a-z]+)(?:-([a-z]+))?$`)

// Candidates returns the store names tried, in order, for a vector layer id:
// the id itself as .geojson, _optimized.geojson and .json, the same with
// dashes turned into underscores, then the cluster file names for
// clusters-slr-<scenario>[-<indicator>] ids.
func Candidates(id string) []string {
	var names []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	forms := func(base string) {
		add(base + ".geojson")
		add(base + "_optimized.geojson")
		add(base + ".json")
	}

	forms(id)
	forms(strings.ReplaceAll(id, "-", "_"))

	if base, ok := clusterBase(id); ok {
		add(base + "_optimized.geojson")
		add(base + ".geojson")
	}
	return names
}

// clusterBase builds clusters_SLR-<n>-<Scenario>_<INDICATOR> for a cluster id.
func clusterBase(id string) (string, bool) {
	m := clusterID.FindStringSubmatch(strings.ToLower(id))
	if m == nil {
		return "", false
	}
	n, ok := scenarioNumbers[m[1]]
	if !ok {
		return "", false
	}
	indicator := defaultIndicator
	if m[2] != "" {
		indicator = strings.ToUpper(m[2])
	}
	scenario := strings.ToUpper(m[1][:1]) + m[1][1:]
	return "clusters_SLR-" + n + "-" + scenario + "_" + indicator, true
}

// archiveNames returns the tile archive names tried for id.
func archiveNames(id string) []string {
	return []string{id + ".mbtiles", id + ".pmtiles"}
}

// cogNames returns the raster file names tried for id.
func cogNames(id string) []string {
	return []string{id + ".cog", id + ".tif", id + ".tiff"}
}
