package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dataplus22/geochip/internal/storage"
)

// ResultsFile is the append-only per-run summary log.
const ResultsFile = "results.txt"

// Summary describes one completed run.
type Summary struct {
	RunID     string    `json:"run_id"`
	Dataset   string    `json:"dataset"`
	BandGroup string    `json:"band_group"`
	InputFile string    `json:"input_file"`
	Sharpened bool      `json:"sharpened"`
	StartedAt time.Time `json:"started_at"`

	// Requested is the number of coordinates in the input file; Resumed is
	// how many the resume filter excluded before dispatch.
	Requested int `json:"requested"`
	Resumed   int `json:"resumed"`

	Counts Counts `json:"counts"`

	// FilesPresent counts the chips actually in the store after the run.
	FilesPresent int           `json:"files_present"`
	Duration     time.Duration `json:"duration"`
}

// NewSummary starts a summary with a fresh run id.
func NewSummary(params Params, inputFile string, requested int) *Summary {
	return &Summary{
		RunID:     uuid.NewString(),
		Dataset:   params.Dataset,
		BandGroup: params.BandGroup,
		InputFile: inputFile,
		Sharpened: params.Sharpened,
		StartedAt: time.Now().UTC(),
		Requested: requested,
	}
}

// Expected is the number of files a fully successful run would produce:
// one per requested coordinate, two when sharpening is on.
func (s *Summary) Expected() int {
	if s.Sharpened {
		return 2 * s.Requested
	}
	return s.Requested
}

// Line renders the human-readable summary appended to the results log.
func (s *Summary) Line() string {
	secs := s.Duration.Seconds()
	return fmt.Sprintf(
		"Export complete! It took %.2f s (%.2f min) to download %d images out of %d requested from %s using the %s dataset",
		secs, secs/60, s.FilesPresent, s.Expected(), s.InputFile, s.Dataset,
	)
}

// CountChips counts the .tif files present in the store.
func CountChips(ctx context.Context, store storage.ChipStore) (int, error) {
	names, err := store.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, name := range names {
		if strings.HasSuffix(name, ".tif") {
			n++
		}
	}
	return n, nil
}

// AppendResults appends one summary line to the results log. The single
// write keeps concurrent runs from interleaving within a line.
func AppendResults(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open results file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append results line: %w", err)
	}
	return nil
}

// WriteManifest records the run parameters and outcome as JSON next to the
// chips, one file per run.
func WriteManifest(ctx context.Context, store storage.ChipStore, s *Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run manifest: %w", err)
	}
	name := fmt.Sprintf("run_%s.json", s.RunID)
	if err := store.Write(ctx, name, data); err != nil {
		return fmt.Errorf("write run manifest: %w", err)
	}
	return nil
}
