package export

import (
	"context"
	"testing"
	"time"

	"github.com/dataplus22/geochip/internal/catalog"
	"github.com/dataplus22/geochip/internal/coords"
)

func buildTasks(t *testing.T, dataset, group string, list []coords.Coordinate) []Task {
	t.Helper()
	tasks, err := NewBuilder(catalog.Default(), testParams(dataset, group)).BuildAll(list)
	if err != nil {
		t.Fatal(err)
	}
	return tasks
}

func TestRunnerSerial(t *testing.T) {
	client := &fakeClient{bands: []string{"R", "G", "B", "N"}}
	exp, store := newTestExporter(t, client, &fakeFetcher{})

	tasks := buildTasks(t, "naip", "RGB", []coords.Coordinate{
		{Lon: -78.9, Lat: 35.5},
		{Lon: -78.8, Lat: 35.6},
		{Lon: -78.7, Lat: 35.7},
	})

	runner := &Runner{Exporter: exp, Parallel: false, Pacing: time.Millisecond}
	counts := runner.Run(context.Background(), tasks)

	if counts.Downloaded != 3 || counts.Failed != 0 || counts.Skipped != 0 {
		t.Fatalf("counts = %+v", counts)
	}

	n, err := CountChips(context.Background(), store)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("chips on disk = %d, want 3", n)
	}
}

func TestRunnerParallelIsolatesFailures(t *testing.T) {
	// The middle coordinate's composite lacks a band; the others download.
	client := &fakeClient{bands: []string{"R", "G", "B"}}
	exp, store := newTestExporter(t, client, &fakeFetcher{})

	good := buildTasks(t, "naip", "RGB", []coords.Coordinate{
		{Lon: 1, Lat: 1},
		{Lon: 2, Lat: 2},
	})
	bad := buildTasks(t, "naip", "NIR", []coords.Coordinate{{Lon: 3, Lat: 3}})
	tasks := []Task{good[0], bad[0], good[1]}

	runner := &Runner{Exporter: exp, Parallel: true, Workers: 4}
	counts := runner.Run(context.Background(), tasks)

	if counts.Downloaded != 2 {
		t.Errorf("downloaded = %d, want 2", counts.Downloaded)
	}
	if counts.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", counts.Skipped)
	}
	if counts.Failed != 0 {
		t.Errorf("failed = %d, want 0", counts.Failed)
	}

	n, _ := CountChips(context.Background(), store)
	if n != 2 {
		t.Errorf("chips on disk = %d, want 2", n)
	}
}

func TestRunnerParallelManyTasks(t *testing.T) {
	client := &fakeClient{bands: []string{"R", "G", "B", "N"}}
	exp, store := newTestExporter(t, client, &fakeFetcher{})

	var list []coords.Coordinate
	for i := 0; i < 40; i++ {
		list = append(list, coords.Coordinate{Lon: float64(i), Lat: float64(i) / 2})
	}
	tasks := buildTasks(t, "naip", "RGB", list)

	runner := &Runner{Exporter: exp, Parallel: true, Workers: 8}
	counts := runner.Run(context.Background(), tasks)

	if counts.Downloaded != 40 {
		t.Fatalf("downloaded = %d, want 40", counts.Downloaded)
	}
	n, _ := CountChips(context.Background(), store)
	if n != 40 {
		t.Errorf("chips on disk = %d, want 40", n)
	}
}

func TestRunnerCancelledContext(t *testing.T) {
	client := &fakeClient{bands: []string{"R", "G", "B", "N"}}
	exp, _ := newTestExporter(t, client, &fakeFetcher{})

	tasks := buildTasks(t, "naip", "RGB", []coords.Coordinate{
		{Lon: 1, Lat: 1},
		{Lon: 2, Lat: 2},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &Runner{Exporter: exp, Parallel: false, Pacing: time.Millisecond}
	counts := runner.Run(ctx, tasks)

	if counts.Downloaded != 0 {
		t.Errorf("downloaded = %d, want 0 after cancellation", counts.Downloaded)
	}
}
