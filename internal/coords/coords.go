// Package coords reads the coordinate lists that drive an export run.
package coords

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Coordinate is a single point of interest. Column order in the input file
// is longitude first, matching the upstream survey exports.
type Coordinate struct {
	Lon float64
	Lat float64
}

// Key returns the coordinate formatted the way output filenames embed it.
func (c Coordinate) Key() string {
	return fmt.Sprintf("%v_%v", c.Lat, c.Lon)
}

// ReadFile loads coordinates from a CSV file. The header row is skipped and
// the remaining rows are parsed as (longitude, latitude) pairs. A missing
// file is a setup error for the whole run.
func ReadFile(path string) ([]Coordinate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open coordinates file %s: %w", path, err)
	}
	defer f.Close()

	list, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("parse coordinates file %s: %w", path, err)
	}
	return list, nil
}

// Read parses coordinates from CSV content, skipping the header row.
func Read(r io.Reader) ([]Coordinate, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	// Header row
	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var list []Coordinate
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line++

		if len(record) < 2 {
			return nil, fmt.Errorf("row %d: expected 2 columns, got %d", line, len(record))
		}

		lon, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse longitude %q: %w", line, record[0], err)
		}
		lat, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse latitude %q: %w", line, record[1], err)
		}

		list = append(list, Coordinate{Lon: lon, Lat: lat})
	}

	return list, nil
}
