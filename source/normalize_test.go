package source

import (
	"database/sql"
	"math"
	"testing"
	"time"
)

func makeRow(id int64, lat, lon float64, date time.Time) Row {
	return Row{
		CollectingEventID:  id,
		CollectionObjectID: id,
		Latitude:           sql.NullFloat64{Float64: lat, Valid: true},
		Longitude:          sql.NullFloat64{Float64: lon, Valid: true},
		StartDate:          sql.NullTime{Time: date, Valid: true},
	}
}

func TestNormalizeKeepsValidRows(t *testing.T) {
	date := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []Row{
		makeRow(1, 37.77, -122.42, date),
		makeRow(2, -0.5, -90.5, date),
	}

	kept, records, stats := Normalize(rows)
	if len(kept) != 2 {
		t.Fatalf("Expected 2 kept rows, got %d", len(kept))
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if stats.Total() != 0 {
		t.Errorf("Expected no drops, got %d", stats.Total())
	}

	for i := range kept {
		if records[i].ID != kept[i].CollectingEventID {
			t.Errorf("Expected record %d id to be %d, got %d", i, kept[i].CollectingEventID, records[i].ID)
		}
		if records[i].Lat != kept[i].Latitude.Float64 {
			t.Errorf("Expected record %d lat to be %v, got %v", i, kept[i].Latitude.Float64, records[i].Lat)
		}
		if !records[i].Date.Equal(date) {
			t.Errorf("Expected record %d date to be %v, got %v", i, date, records[i].Date)
		}
	}
}

func TestNormalizeDropsDuplicateEvents(t *testing.T) {
	date := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []Row{
		makeRow(1, 10, 20, date),
		makeRow(1, 11, 21, date),
		makeRow(2, 12, 22, date),
	}

	kept, _, stats := Normalize(rows)
	if len(kept) != 2 {
		t.Fatalf("Expected 2 kept rows, got %d", len(kept))
	}
	if stats.Duplicate != 1 {
		t.Errorf("Expected 1 duplicate drop, got %d", stats.Duplicate)
	}
	// First occurrence wins.
	if kept[0].Latitude.Float64 != 10 {
		t.Errorf("Expected first occurrence to survive, got lat %v", kept[0].Latitude.Float64)
	}
}

func TestNormalizeDuplicateOfBadRowStillDropped(t *testing.T) {
	date := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	bad := makeRow(7, 10, 20, date)
	bad.Latitude = sql.NullFloat64{}

	rows := []Row{bad, makeRow(7, 10, 20, date)}
	kept, _, stats := Normalize(rows)
	if len(kept) != 0 {
		t.Fatalf("Expected no kept rows, got %d", len(kept))
	}
	if stats.MissingCoordinate != 1 || stats.Duplicate != 1 {
		t.Errorf("Expected 1 missing-coordinate and 1 duplicate drop, got %+v", stats)
	}
}

func TestNormalizeValidation(t *testing.T) {
	date := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)

	missingLat := makeRow(1, 0, 0, date)
	missingLat.Latitude = sql.NullFloat64{}
	nanLon := makeRow(2, 0, math.NaN(), date)
	badLat := makeRow(3, 95, 0, date)
	badLon := makeRow(4, 0, -181, date)
	missingDate := makeRow(5, 0, 0, date)
	missingDate.StartDate = sql.NullTime{}
	tooOld := makeRow(6, 0, 0, time.Date(1799, 12, 31, 0, 0, 0, 0, time.UTC))
	future := makeRow(7, 0, 0, time.Now().UTC().AddDate(1, 0, 0))
	valid := makeRow(8, 0, 0, time.Date(1800, 1, 1, 0, 0, 0, 0, time.UTC))

	rows := []Row{missingLat, nanLon, badLat, badLon, missingDate, tooOld, future, valid}
	kept, _, stats := Normalize(rows)

	if len(kept) != 1 || kept[0].CollectingEventID != 8 {
		t.Fatalf("Expected only the valid row to survive, got %d rows", len(kept))
	}
	if stats.MissingCoordinate != 2 {
		t.Errorf("Expected 2 missing-coordinate drops, got %d", stats.MissingCoordinate)
	}
	if stats.CoordinateRange != 2 {
		t.Errorf("Expected 2 coordinate-range drops, got %d", stats.CoordinateRange)
	}
	if stats.MissingDate != 1 {
		t.Errorf("Expected 1 missing-date drop, got %d", stats.MissingDate)
	}
	if stats.DateRange != 2 {
		t.Errorf("Expected 2 date-range drops, got %d", stats.DateRange)
	}
	if stats.Total() != 7 {
		t.Errorf("Expected 7 total drops, got %d", stats.Total())
	}
}

func TestNormalizeBoundaryCoordinates(t *testing.T) {
	date := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []Row{
		makeRow(1, 90, 180, date),
		makeRow(2, -90, -180, date),
	}

	kept, _, stats := Normalize(rows)
	if len(kept) != 2 {
		t.Errorf("Expected boundary coordinates to be kept, got %d of 2", len(kept))
	}
	if stats.CoordinateRange != 0 {
		t.Errorf("Expected no range drops, got %d", stats.CoordinateRange)
	}
}
