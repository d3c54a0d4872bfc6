package export

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dataplus22/geochip/internal/catalog"
	"github.com/dataplus22/geochip/internal/coords"
	"github.com/dataplus22/geochip/internal/imagery"
	"github.com/dataplus22/geochip/internal/retry"
	"github.com/dataplus22/geochip/internal/storage"
)

// fakeClient scripts the remote imagery service.
type fakeClient struct {
	mu        sync.Mutex
	bands     []string
	bandFails int // fail this many BandNames calls before succeeding
	urlFails  int // fail this many DownloadURL calls before succeeding
	bandCalls int
	urlCalls  int
	specs     []imagery.RenderSpec
}

func (c *fakeClient) BandNames(ctx context.Context, q imagery.ImageQuery) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bandCalls++
	if c.bandFails > 0 {
		c.bandFails--
		return nil, errors.New("compute backlog")
	}
	return c.bands, nil
}

func (c *fakeClient) DownloadURL(ctx context.Context, q imagery.ImageQuery, spec imagery.RenderSpec) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urlCalls++
	if c.urlFails > 0 {
		c.urlFails--
		return "", errors.New("export queue full")
	}
	c.specs = append(c.specs, spec)
	return "http://dl.test/" + spec.Name + ".tif", nil
}

// fakeFetcher scripts chip downloads.
type fakeFetcher struct {
	mu       sync.Mutex
	failures int // fail this many Fetch calls before succeeding
	calls    int
	failFor  string // when set, only URLs containing this substring fail
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 && (f.failFor == "" || strings.Contains(url, f.failFor)) {
		f.failures--
		return nil, &imagery.StatusError{StatusCode: 503, Body: "try later"}
	}
	return []byte("tif-bytes:" + url), nil
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 10, InitialDelay: time.Millisecond, Multiplier: 1.1}
}

func newTestExporter(t *testing.T, client *fakeClient, fetcher *fakeFetcher) (*Exporter, storage.ChipStore) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir() + "/chips")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return NewExporter(client, fetcher, store, fastRetry(), nil), store
}

func buildTask(t *testing.T, dataset, group string, sharpened bool, c coords.Coordinate) Task {
	t.Helper()
	params := testParams(dataset, group)
	params.Sharpened = sharpened
	task, err := NewBuilder(catalog.Default(), params).Build(c)
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func TestExportDownloads(t *testing.T) {
	client := &fakeClient{bands: []string{"B2", "B3", "B4", "B8"}}
	exp, store := newTestExporter(t, client, &fakeFetcher{})

	task := buildTask(t, "sentinel", "RGB", false, coords.Coordinate{Lon: -78.9, Lat: 35.5})
	o := exp.Export(context.Background(), task)

	if o.Status != StatusDownloaded {
		t.Fatalf("status = %s, err = %v", o.Status, o.Err)
	}
	ok, err := store.Exists(context.Background(), "sentinel_image_35.5_-78.9.tif")
	if err != nil || !ok {
		t.Errorf("chip not written: %v, %v", ok, err)
	}

	// Visualized render with the dataset's global stretch.
	if len(client.specs) != 1 {
		t.Fatalf("specs = %d", len(client.specs))
	}
	spec := client.specs[0]
	if !spec.Visualize || spec.Min != 0 || spec.Max != 4500 {
		t.Errorf("spec = %+v", spec)
	}
}

func TestExportMissingBandsSkips(t *testing.T) {
	// B2 absent from the filtered composite.
	client := &fakeClient{bands: []string{"B3", "B4"}}
	exp, store := newTestExporter(t, client, &fakeFetcher{})

	task := buildTask(t, "sentinel", "RGB", false, coords.Coordinate{Lon: -78.9, Lat: 35.5})
	o := exp.Export(context.Background(), task)

	if o.Status != StatusSkipped {
		t.Fatalf("status = %s, want skipped", o.Status)
	}
	if len(o.MissingBands) != 1 || o.MissingBands[0] != "B2" {
		t.Errorf("missing bands = %v", o.MissingBands)
	}
	if o.Err != nil {
		t.Errorf("skip should carry no error, got %v", o.Err)
	}

	names, err := store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("no file should be written, found %v", names)
	}

	// A sibling task with all bands present still completes.
	client.bands = []string{"B2", "B3", "B4"}
	sibling := buildTask(t, "sentinel", "RGB", false, coords.Coordinate{Lon: -78.8, Lat: 35.6})
	if o := exp.Export(context.Background(), sibling); o.Status != StatusDownloaded {
		t.Errorf("sibling status = %s, err = %v", o.Status, o.Err)
	}
}

func TestExportRawDatasetSkipsBandCheck(t *testing.T) {
	// The classification product reports a band name the catalog never
	// mentions; raw export must not care.
	client := &fakeClient{bands: []string{"b1"}}
	exp, store := newTestExporter(t, client, &fakeFetcher{})

	task := buildTask(t, "gwl_fcs30", "RGB", false, coords.Coordinate{Lon: 130.8, Lat: -12.25})
	o := exp.Export(context.Background(), task)

	if o.Status != StatusDownloaded {
		t.Fatalf("status = %s, err = %v", o.Status, o.Err)
	}
	spec := client.specs[0]
	if spec.Visualize || spec.Bands != nil {
		t.Errorf("raw export should not visualize or select bands: %+v", spec)
	}
	ok, _ := store.Exists(context.Background(), "gwl_fcs30_image_-12.25_130.8.tif")
	if !ok {
		t.Error("raw chip not written")
	}
}

func TestExportDownloadRetriesThenSucceeds(t *testing.T) {
	client := &fakeClient{bands: []string{"B2", "B3", "B4"}}
	fetcher := &fakeFetcher{failures: 9}
	exp, store := newTestExporter(t, client, fetcher)

	task := buildTask(t, "sentinel", "RGB", false, coords.Coordinate{Lon: 1, Lat: 2})
	o := exp.Export(context.Background(), task)

	if o.Status != StatusDownloaded {
		t.Fatalf("status = %s, err = %v; success on the 10th attempt is still a success", o.Status, o.Err)
	}
	if fetcher.calls != 10 {
		t.Errorf("fetch calls = %d, want 10", fetcher.calls)
	}
	ok, _ := store.Exists(context.Background(), task.FileName)
	if !ok {
		t.Error("chip not written after retries")
	}
}

func TestExportDownloadExhaustsRetries(t *testing.T) {
	client := &fakeClient{bands: []string{"B2", "B3", "B4"}}
	fetcher := &fakeFetcher{failures: 10}
	exp, store := newTestExporter(t, client, fetcher)

	task := buildTask(t, "sentinel", "RGB", false, coords.Coordinate{Lon: 1, Lat: 2})
	o := exp.Export(context.Background(), task)

	if o.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", o.Status)
	}
	if o.Err == nil {
		t.Error("failed outcome should carry the error")
	}
	if fetcher.calls != 10 {
		t.Errorf("fetch calls = %d, want 10", fetcher.calls)
	}
	names, _ := store.List(context.Background())
	if len(names) != 0 {
		t.Errorf("no file should be written, found %v", names)
	}
}

func TestExportQueryFailure(t *testing.T) {
	client := &fakeClient{bands: []string{"B2"}, bandFails: 100}
	exp, _ := newTestExporter(t, client, &fakeFetcher{})

	task := buildTask(t, "sentinel", "RGB", false, coords.Coordinate{Lon: 1, Lat: 2})
	o := exp.Export(context.Background(), task)

	if o.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", o.Status)
	}
	if client.bandCalls != 10 {
		t.Errorf("band calls = %d, want 10", client.bandCalls)
	}
}

func TestExportSharpened(t *testing.T) {
	client := &fakeClient{bands: []string{"B2", "B3", "B4", "B8"}}
	exp, store := newTestExporter(t, client, &fakeFetcher{})

	task := buildTask(t, "landsat", "RGB", true, coords.Coordinate{Lon: 1, Lat: 2})
	o := exp.Export(context.Background(), task)

	if o.Status != StatusDownloaded {
		t.Fatalf("status = %s, err = %v", o.Status, o.Err)
	}

	ctx := context.Background()
	for _, name := range []string{"landsat_image_2_1.tif", "sharpened_landsat_image_2_1.tif"} {
		ok, _ := store.Exists(ctx, name)
		if !ok {
			t.Errorf("%s not written", name)
		}
	}

	// Second spec carries the pan band.
	if len(client.specs) != 2 {
		t.Fatalf("specs = %d, want 2", len(client.specs))
	}
	if client.specs[1].PanBand != "B8" {
		t.Errorf("sharpened spec = %+v", client.specs[1])
	}
}

func TestExportSharpenedPanBandAbsent(t *testing.T) {
	// Pan band missing from the composite: primary export only, no error.
	client := &fakeClient{bands: []string{"B2", "B3", "B4"}}
	exp, store := newTestExporter(t, client, &fakeFetcher{})

	task := buildTask(t, "landsat", "RGB", true, coords.Coordinate{Lon: 1, Lat: 2})
	o := exp.Export(context.Background(), task)

	if o.Status != StatusDownloaded {
		t.Fatalf("status = %s, err = %v", o.Status, o.Err)
	}
	names, _ := store.List(context.Background())
	if len(names) != 1 {
		t.Errorf("want primary chip only, got %v", names)
	}
}

func TestExportSharpenedFailureDoesNotFailPrimary(t *testing.T) {
	client := &fakeClient{bands: []string{"B2", "B3", "B4", "B8"}}
	fetcher := &fakeFetcher{failures: 100, failFor: "sharpened"}
	exp, store := newTestExporter(t, client, fetcher)

	task := buildTask(t, "landsat", "RGB", true, coords.Coordinate{Lon: 1, Lat: 2})
	o := exp.Export(context.Background(), task)

	if o.Status != StatusDownloaded {
		t.Fatalf("status = %s, err = %v; sharpening failure must not fail the task", o.Status, o.Err)
	}
	ok, _ := store.Exists(context.Background(), "landsat_image_2_1.tif")
	if !ok {
		t.Error("primary chip missing")
	}
	ok, _ = store.Exists(context.Background(), "sharpened_landsat_image_2_1.tif")
	if ok {
		t.Error("sharpened chip should not exist")
	}
}
