package export

import (
	"strconv"
	"strings"

	"github.com/dataplus22/geochip/internal/coords"
)

// ParseChipName extracts the (lat, lon) embedded in a chip file name of the
// form {dataset}_image_{lat}_{lon}.tif. Sharpened variants and files for
// other datasets do not match.
func ParseChipName(dataset, name string) (lat, lon float64, ok bool) {
	prefix := dataset + "_image_"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".tif") {
		return 0, 0, false
	}

	body := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".tif")
	parts := strings.SplitN(body, "_", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// FilterResumed removes coordinates whose chip already exists among the
// given file names. Matching is exact float64 equality against the values
// parsed from the names: a coordinate differing in the last decimal is NOT
// deduplicated. This mirrors the established filename-based resume behavior
// and is a known limitation, not something to quietly loosen.
func FilterResumed(list []coords.Coordinate, dataset string, existing []string) (remaining []coords.Coordinate, skipped int) {
	type key struct{ lat, lon float64 }

	present := make(map[key]bool, len(existing))
	for _, name := range existing {
		if lat, lon, ok := ParseChipName(dataset, name); ok {
			present[key{lat: lat, lon: lon}] = true
		}
	}

	remaining = make([]coords.Coordinate, 0, len(list))
	for _, c := range list {
		if present[key{lat: c.Lat, lon: c.Lon}] {
			skipped++
			continue
		}
		remaining = append(remaining, c)
	}
	return remaining, skipped
}
