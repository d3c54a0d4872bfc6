package export

import (
	"github.com/dataplus22/geochip/internal/catalog"
	"github.com/dataplus22/geochip/internal/coords"
	"github.com/dataplus22/geochip/internal/geo"
	"github.com/dataplus22/geochip/internal/imagery"
)

// CloudCoverMax is the maximum scene cloud cover percentage admitted into
// composites, for datasets that expose a cloud metric.
const CloudCoverMax = 25.0

// Params are the run-wide export parameters shared by all tasks.
type Params struct {
	Dataset   string
	BandGroup string
	StartDate string
	EndDate   string
	Height    int
	Width     int
	Sharpened bool
}

// Builder assembles export tasks from coordinates.
type Builder struct {
	catalog *catalog.Catalog
	params  Params
}

// NewBuilder creates a task builder for one run.
func NewBuilder(cat *catalog.Catalog, params Params) *Builder {
	return &Builder{catalog: cat, params: params}
}

// Build resolves the dataset configuration, effective resolution, bounding
// box and remote query for one coordinate. It fails with UnknownDatasetError
// or UnknownBandGroupError, both of which are setup errors when they occur
// before dispatch.
func (b *Builder) Build(c coords.Coordinate) (Task, error) {
	ds, err := b.catalog.Lookup(b.params.Dataset)
	if err != nil {
		return Task{}, err
	}

	res, err := b.catalog.EffectiveResolution(b.params.Dataset, b.params.BandGroup)
	if err != nil {
		return Task{}, err
	}

	// The box is sized by chip height, matching the upstream convention.
	box := geo.BoundingBox(c.Lat, c.Lon, b.params.Height, res)

	query := imagery.ImageQuery{
		Collection: ds.Collection,
		Region: imagery.Region{
			XMin: box.XMin,
			XMax: box.XMax,
			YMin: box.YMin,
			YMax: box.YMax,
		},
		StartDate: b.params.StartDate,
		EndDate:   b.params.EndDate,
		Reducer:   imagery.ReducerMedian,
	}
	if ds.CloudProperty != "" {
		query.Cloud = &imagery.CloudFilter{
			Property:   ds.CloudProperty,
			MaxPercent: CloudCoverMax,
		}
	}

	task := Task{
		Coordinate: c,
		Dataset:    b.params.Dataset,
		Config:     ds,
		BandGroup:  b.params.BandGroup,
		Resolution: res,
		Box:        box,
		Query:      query,
		Width:      b.params.Width,
		Height:     b.params.Height,
		FileName:   FileName(b.params.Dataset, c),
	}

	if !ds.RawExport {
		bands, err := b.catalog.Bands(b.params.Dataset, b.params.BandGroup)
		if err != nil {
			return Task{}, err
		}
		task.Bands = bands
	}

	if b.params.Sharpened && ds.Panchromatic != "" {
		task.PanBand = ds.Panchromatic
		task.SharpenedFileName = "sharpened_" + task.FileName
	}

	return task, nil
}

// BuildAll builds tasks for every coordinate. The first resolution error
// aborts, since dataset and band group are run-wide.
func (b *Builder) BuildAll(list []coords.Coordinate) ([]Task, error) {
	tasks := make([]Task, 0, len(list))
	for _, c := range list {
		task, err := b.Build(c)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
