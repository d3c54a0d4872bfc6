package export

import (
	"testing"

	"github.com/dataplus22/geochip/internal/coords"
)

func TestParseChipName(t *testing.T) {
	tests := []struct {
		dataset string
		name    string
		lat     float64
		lon     float64
		ok      bool
	}{
		{"sentinel", "sentinel_image_35.5_-78.9.tif", 35.5, -78.9, true},
		{"gwl_fcs30", "gwl_fcs30_image_-12.25_130.8.tif", -12.25, 130.8, true},
		{"sentinel", "landsat_image_35.5_-78.9.tif", 0, 0, false},
		{"sentinel", "sharpened_sentinel_image_35.5_-78.9.tif", 0, 0, false},
		{"sentinel", "sentinel_image_35.5_-78.9.png", 0, 0, false},
		{"sentinel", "sentinel_image_borked.tif", 0, 0, false},
		{"sentinel", "results.txt", 0, 0, false},
	}

	for _, tt := range tests {
		lat, lon, ok := ParseChipName(tt.dataset, tt.name)
		if ok != tt.ok {
			t.Errorf("ParseChipName(%s, %s) ok = %v, want %v", tt.dataset, tt.name, ok, tt.ok)
			continue
		}
		if ok && (lat != tt.lat || lon != tt.lon) {
			t.Errorf("ParseChipName(%s, %s) = (%v, %v), want (%v, %v)",
				tt.dataset, tt.name, lat, lon, tt.lat, tt.lon)
		}
	}
}

func TestFilterResumedExactMatch(t *testing.T) {
	existing := []string{"sentinel_image_35.5_-78.9.tif"}

	list := []coords.Coordinate{
		{Lon: -78.9, Lat: 35.5},     // matches, excluded
		{Lon: -78.9, Lat: 35.50001}, // near miss, kept (exact-match semantics)
		{Lon: -78.8, Lat: 35.5},     // different lon, kept
	}

	remaining, skipped := FilterResumed(list, "sentinel", existing)
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(remaining) != 2 {
		t.Fatalf("remaining = %d, want 2", len(remaining))
	}
	if remaining[0].Lat != 35.50001 {
		t.Errorf("remaining[0] = %+v", remaining[0])
	}
}

func TestFilterResumedIgnoresForeignFiles(t *testing.T) {
	existing := []string{
		"landsat_image_35.5_-78.9.tif", // other dataset
		"run_abc.json",                 // run manifest
		"notes.txt",
	}

	list := []coords.Coordinate{{Lon: -78.9, Lat: 35.5}}
	remaining, skipped := FilterResumed(list, "sentinel", existing)
	if skipped != 0 || len(remaining) != 1 {
		t.Errorf("remaining = %d, skipped = %d; want 1, 0", len(remaining), skipped)
	}
}

func TestFilterResumedEmpty(t *testing.T) {
	remaining, skipped := FilterResumed(nil, "sentinel", []string{"sentinel_image_1_2.tif"})
	if len(remaining) != 0 || skipped != 0 {
		t.Errorf("remaining = %d, skipped = %d", len(remaining), skipped)
	}
}
