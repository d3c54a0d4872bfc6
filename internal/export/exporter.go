package export

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dataplus22/geochip/internal/imagery"
	"github.com/dataplus22/geochip/internal/logging"
	"github.com/dataplus22/geochip/internal/metrics"
	"github.com/dataplus22/geochip/internal/retry"
	"github.com/dataplus22/geochip/internal/storage"
)

// Exporter executes export tasks against the remote imagery service and
// persists the resulting chips. All per-task errors terminate in the
// returned Outcome; nothing escapes to sibling tasks.
type Exporter struct {
	client  imagery.Client
	fetcher imagery.Fetcher
	store   storage.ChipStore

	// queryPolicy wraps remote query calls (band names, URL acquisition);
	// downloadPolicy wraps chip downloads. Same schedule, applied
	// independently at each call site.
	queryPolicy    retry.Policy
	downloadPolicy retry.Policy

	metrics *metrics.Metrics
}

// NewExporter wires an exporter. metrics may be nil.
func NewExporter(client imagery.Client, fetcher imagery.Fetcher, store storage.ChipStore, policy retry.Policy, m *metrics.Metrics) *Exporter {
	return &Exporter{
		client:         client,
		fetcher:        fetcher,
		store:          store,
		queryPolicy:    policy,
		downloadPolicy: policy,
		metrics:        m,
	}
}

// Export runs one task to completion.
func (e *Exporter) Export(ctx context.Context, task Task) Outcome {
	log := logging.TaskLogger(task.Dataset, task.Coordinate.Lat, task.Coordinate.Lon)

	e.metrics.AddInFlight(1)
	defer e.metrics.AddInFlight(-1)

	// Resolve which bands the filtered composite actually carries.
	queryStart := time.Now()
	var bands []string
	err := e.queryPolicy.Do(ctx, "band names", func() error {
		var qerr error
		bands, qerr = e.client.BandNames(ctx, task.Query)
		return qerr
	})
	e.metrics.ObserveQueryDuration(task.Dataset, time.Since(queryStart).Seconds())
	if err != nil {
		log.Error("band name query failed", "error", err)
		e.metrics.IncFailed(task.Dataset, task.BandGroup)
		return Outcome{Task: task, Status: StatusFailed, Err: fmt.Errorf("query bands: %w", err)}
	}

	if !task.Raw() {
		if missing := missingBands(task.Bands, bands); len(missing) > 0 {
			log.Info("image missing required bands, skipping",
				"missing", strings.Join(missing, ","),
				"found", strings.Join(bands, ","),
			)
			e.metrics.IncSkipped(task.Dataset, task.BandGroup)
			return Outcome{Task: task, Status: StatusSkipped, MissingBands: missing}
		}
	}

	if err := e.fetchChip(ctx, task, e.renderSpec(task), task.FileName); err != nil {
		log.Error("chip export failed", "chip", task.FileName, "error", err)
		e.metrics.IncFailed(task.Dataset, task.BandGroup)
		return Outcome{Task: task, Status: StatusFailed, Err: err}
	}
	log.Info("done", "chip", task.FileName, "uri", e.store.URI(task.FileName))

	// Pan-sharpened variant: best effort, never fails the primary export.
	if task.PanBand != "" && slices.Contains(bands, task.PanBand) {
		if err := e.fetchChip(ctx, task, e.sharpenedSpec(task), task.SharpenedFileName); err != nil {
			log.Error("pan-sharpened export failed", "chip", task.SharpenedFileName, "error", err)
		} else {
			log.Info("done", "chip", task.SharpenedFileName, "uri", e.store.URI(task.SharpenedFileName))
		}
	}

	e.metrics.IncDownloaded(task.Dataset, task.BandGroup)
	return Outcome{Task: task, Status: StatusDownloaded}
}

// fetchChip acquires a download URL, fetches the raster bytes and persists
// them, retrying the two network steps independently.
func (e *Exporter) fetchChip(ctx context.Context, task Task, spec imagery.RenderSpec, name string) error {
	var url string
	err := e.queryPolicy.Do(ctx, "download url", func() error {
		var qerr error
		url, qerr = e.client.DownloadURL(ctx, task.Query, spec)
		return qerr
	})
	if err != nil {
		return fmt.Errorf("acquire download url: %w", err)
	}

	downloadStart := time.Now()
	var data []byte
	err = e.downloadPolicy.Do(ctx, "download", func() error {
		var derr error
		data, derr = e.fetcher.Fetch(ctx, url)
		return derr
	})
	e.metrics.ObserveDownloadDuration(task.Dataset, time.Since(downloadStart).Seconds())
	if err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}
	e.metrics.ObserveChipBytes(task.Dataset, float64(len(data)))

	if err := e.store.Write(ctx, name, data); err != nil {
		return fmt.Errorf("persist %s: %w", name, err)
	}
	return nil
}

// renderSpec builds the primary render: raw for classification datasets,
// a global min/max stretch over the selected bands otherwise.
func (e *Exporter) renderSpec(task Task) imagery.RenderSpec {
	spec := imagery.RenderSpec{
		Name:   strings.TrimSuffix(task.FileName, ".tif"),
		Format: imagery.FormatGeoTIFF,
		CRS:    imagery.DefaultCRS,
		Width:  task.Width,
		Height: task.Height,
	}
	if task.Raw() {
		return spec
	}
	spec.Bands = task.Bands
	spec.Visualize = true
	spec.Min = task.Config.Min
	spec.Max = task.Config.Max
	return spec
}

// sharpenedSpec renders the band selection with the panchromatic band
// swapped in as the HSV value channel. No stretch is applied; the service
// returns the recomposed RGB.
func (e *Exporter) sharpenedSpec(task Task) imagery.RenderSpec {
	return imagery.RenderSpec{
		Name:    strings.TrimSuffix(task.SharpenedFileName, ".tif"),
		Bands:   task.Bands,
		PanBand: task.PanBand,
		Format:  imagery.FormatGeoTIFF,
		CRS:     imagery.DefaultCRS,
		Width:   task.Width,
		Height:  task.Height,
	}
}

// missingBands returns the requested bands absent from available.
func missingBands(requested, available []string) []string {
	var missing []string
	for _, b := range requested {
		if !slices.Contains(available, b) {
			missing = append(missing, b)
		}
	}
	return missing
}
