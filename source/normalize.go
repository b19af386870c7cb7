package source

import (
	"math"
	"time"

	"github.com/calacademy-research/expedition-clustering/cluster"
)

// MinYear is the oldest plausible collecting year. Earlier dates in the
// database are data-entry artifacts, as are dates in the future.
const MinYear = 1800

// DropStats counts rows excluded by Normalize, keyed by the first check
// each row failed.
type DropStats struct {
	Duplicate         int
	MissingCoordinate int
	CoordinateRange   int
	MissingDate       int
	DateRange         int
}

// Total is the number of rows dropped overall.
func (s DropStats) Total() int {
	return s.Duplicate + s.MissingCoordinate + s.CoordinateRange + s.MissingDate + s.DateRange
}

// Normalize validates rows for clustering. Duplicate collecting events
// collapse to their first occurrence, and rows without usable coordinates
// or a plausible start date are dropped. It returns the surviving rows in
// input order, the core records aligned index-for-index with them, and the
// drop counts.
func Normalize(rows []Row) ([]Row, []cluster.Record, DropStats) {
	var stats DropStats
	kept := make([]Row, 0, len(rows))
	records := make([]cluster.Record, 0, len(rows))
	seen := make(map[int64]struct{}, len(rows))
	today := time.Now().UTC()

	for _, row := range rows {
		if _, dup := seen[row.CollectingEventID]; dup {
			stats.Duplicate++
			continue
		}
		// The event id is claimed even when the row fails validation, so
		// later duplicates of a bad row do not sneak in.
		seen[row.CollectingEventID] = struct{}{}

		if !row.Latitude.Valid || !row.Longitude.Valid ||
			math.IsNaN(row.Latitude.Float64) || math.IsNaN(row.Longitude.Float64) {
			stats.MissingCoordinate++
			continue
		}
		lat, lon := row.Latitude.Float64, row.Longitude.Float64
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			stats.CoordinateRange++
			continue
		}

		if !row.StartDate.Valid {
			stats.MissingDate++
			continue
		}
		date := row.StartDate.Time
		if date.Year() < MinYear || date.After(today) {
			stats.DateRange++
			continue
		}

		kept = append(kept, row)
		records = append(records, cluster.Record{
			ID:   row.CollectingEventID,
			Lat:  lat,
			Lon:  lon,
			Date: date,
		})
	}
	return kept, records, stats
}
