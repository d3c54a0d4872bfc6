// Package export turns coordinates into downloaded chips: it builds the
// per-coordinate export tasks, runs them across a worker pool or serially,
// filters out already-downloaded coordinates, and summarizes the run.
package export

import (
	"fmt"

	"github.com/dataplus22/geochip/internal/catalog"
	"github.com/dataplus22/geochip/internal/coords"
	"github.com/dataplus22/geochip/internal/geo"
	"github.com/dataplus22/geochip/internal/imagery"
)

// Task is the per-coordinate unit of work. It is created at dispatch time,
// owned exclusively by the worker executing it, and discarded afterwards.
type Task struct {
	Coordinate coords.Coordinate
	Dataset    string
	Config     catalog.Dataset
	BandGroup  string

	// Resolution is the effective ground resolution in meters per pixel.
	Resolution float64

	// Box frames the chip around the coordinate.
	Box geo.Box

	// Query describes the filtered, composited image to the remote service.
	Query imagery.ImageQuery

	// Bands are the requested band identifiers. Nil for raw exports.
	Bands []string

	// PanBand is set when pan-sharpening was requested and the dataset
	// defines a panchromatic band.
	PanBand string

	Width  int
	Height int

	// FileName is the primary output name; SharpenedFileName is set only
	// when a pan-sharpened variant may be produced.
	FileName          string
	SharpenedFileName string
}

// Raw reports whether the task exports the image without band selection or
// visualization stretch.
func (t Task) Raw() bool {
	return t.Config.RawExport
}

// Status is the terminal state of a task.
type Status int

const (
	// StatusDownloaded means the primary chip was written.
	StatusDownloaded Status = iota

	// StatusSkipped means the filtered image lacked required bands; no
	// file was written and no error is raised.
	StatusSkipped

	// StatusFailed means retries were exhausted; logged, never propagated
	// to sibling tasks.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDownloaded:
		return "downloaded"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of executing one task.
type Outcome struct {
	Task   Task
	Status Status

	// Err is set for StatusFailed.
	Err error

	// MissingBands lists the requested bands absent from the filtered
	// image, for StatusSkipped.
	MissingBands []string
}

// FileName returns the output name for a coordinate:
// {dataset}_image_{lat}_{lon}.tif.
func FileName(dataset string, c coords.Coordinate) string {
	return fmt.Sprintf("%s_image_%s.tif", dataset, c.Key())
}
