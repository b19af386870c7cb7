package source

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/calacademy-research/expedition-clustering/cluster"
)

// Portal exports write dates two ways: ISO strings in startDate, or a year
// in startDate with month and day in ce_startDate and ce_startDate1.
type dateLayout int

const (
	layoutISO dateLayout = iota
	layoutComponents
)

// ReadPortalCSV loads specimen rows from a collections-portal CSV export
// (PortalData.csv). Specimens without a numeric catalogNumber get a
// synthetic negative id from their row position; each specimen counts as
// its own collecting event. limit > 0 caps the number of rows read.
func ReadPortalCSV(path string, limit int) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %v", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %v", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var raw [][]string
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		raw = append(raw, rec)
		if limit > 0 && len(raw) >= limit {
			break
		}
	}

	layout := detectDateLayout(raw, func(rec []string) string { return field(rec, "startDate") })

	rows := make([]Row, 0, len(raw))
	for i, rec := range raw {
		row := Row{
			LocalityName: field(rec, "localityName"),
			NamedPlace:   field(rec, "Town"),
			Remarks:      field(rec, "remarks"),
		}

		if id, err := strconv.ParseFloat(field(rec, "catalogNumber"), 64); err == nil {
			row.CollectionObjectID = int64(id)
		} else {
			row.CollectionObjectID = -int64(i + 1)
		}
		// Portal exports carry no event table; each specimen is its own event.
		row.CollectingEventID = row.CollectionObjectID

		row.Latitude = parseNullFloat(field(rec, "latitude1"))
		row.Longitude = parseNullFloat(field(rec, "longitude1"))
		row.MinElevation = parseNullFloat(field(rec, "minElevation"))
		row.MaxElevation = parseNullFloat(field(rec, "maxElevation"))

		if layout == layoutISO {
			row.StartDate = parseISODate(field(rec, "startDate"))
			row.EndDate = parseISODate(field(rec, "endDate"))
		} else {
			row.StartDate = buildDate(field(rec, "startDate"), field(rec, "ce_startDate"), field(rec, "ce_startDate1"))
			row.EndDate = buildDate(field(rec, "endDate"), field(rec, "ce_endDate"), field(rec, "ce_endDate1"))
		}

		if c := field(rec, "collectors"); c != "" {
			row.Collectors = c
		} else {
			row.Collectors = field(rec, "text1")
		}
		row.GeographyName = joinPlaceHierarchy(
			field(rec, "Continent"), field(rec, "Country"),
			field(rec, "State"), field(rec, "County"))

		row.Redact = truthy(field(rec, "yesNo2")) || truthy(field(rec, "co_yesNo2"))

		rows = append(rows, row)
	}
	return rows, nil
}

// detectDateLayout inspects the first populated startDate value: ISO dates
// contain dashes, bare years do not.
func detectDateLayout(raw [][]string, startDate func([]string) string) dateLayout {
	for _, rec := range raw {
		v := startDate(rec)
		if v == "" {
			continue
		}
		if strings.Contains(v, "-") {
			return layoutISO
		}
		return layoutComponents
	}
	return layoutComponents
}

func parseNullFloat(s string) sql.NullFloat64 {
	if s == "" {
		return sql.NullFloat64{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func parseISODate(s string) sql.NullTime {
	if s == "" {
		return sql.NullTime{}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// buildDate assembles a date from year/month/day component columns. Absent
// months and days default to 1 and out-of-range values are clamped; a
// combination that names no real calendar day (April 31) is treated as
// missing rather than rolled into the next month.
func buildDate(yearStr, monthStr, dayStr string) sql.NullTime {
	year := parseComponent(yearStr, 0)
	if year <= 0 {
		return sql.NullTime{}
	}
	month := clamp(parseComponent(monthStr, 1), 1, 12)
	day := clamp(parseComponent(dayStr, 1), 1, 31)

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// parseComponent reads an integer that may be serialized as a float
// ("2007.0" is common in portal exports).
func parseComponent(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return int(v)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// joinPlaceHierarchy builds the geography full name from the export's
// Continent/Country/State/County columns, skipping empty levels.
func joinPlaceHierarchy(parts ...string) string {
	var present []string
	for _, p := range parts {
		if p != "" {
			present = append(present, p)
		}
	}
	return strings.Join(present, ", ")
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// labeledHeader lists the output columns: the carried specimen fields
// followed by the assigned cluster ids.
var labeledHeader = []string{
	"collectingeventid",
	"collectionobjectid",
	"latitude1",
	"longitude1",
	"startdate",
	"enddate",
	"localityname",
	"namedplace",
	"fullname",
	"minelevation",
	"maxelevation",
	"collectors",
	"spatial_cluster_id",
	"temporal_cluster_id",
	"spatiotemporal_cluster_id",
	"batch_number",
}

// WriteLabeledCSV writes rows with their cluster assignments, one line per
// row in input order. Rows from a failed batch carry batch number zero and
// their id cells are left empty.
func WriteLabeledCSV(path string, rows []Row, labels []cluster.Labels) error {
	if len(rows) != len(labels) {
		return fmt.Errorf("row/label count mismatch: %d rows, %d labels", len(rows), len(labels))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %v", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %v", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(labeledHeader); err != nil {
		f.Close()
		return fmt.Errorf("failed to write csv header: %v", err)
	}

	for i, row := range rows {
		rec := []string{
			strconv.FormatInt(row.CollectingEventID, 10),
			strconv.FormatInt(row.CollectionObjectID, 10),
			formatNullFloat(row.Latitude),
			formatNullFloat(row.Longitude),
			formatNullDate(row.StartDate),
			formatNullDate(row.EndDate),
			row.LocalityName,
			row.NamedPlace,
			row.GeographyName,
			formatNullFloat(row.MinElevation),
			formatNullFloat(row.MaxElevation),
			row.Collectors,
			"", "", "", "0",
		}
		if l := labels[i]; l.BatchNumber > 0 {
			rec[12] = strconv.FormatInt(l.SpatialID, 10)
			rec[13] = strconv.FormatInt(l.TemporalID, 10)
			rec[14] = strconv.FormatInt(l.SpatiotemporalID, 10)
			rec[15] = strconv.FormatInt(int64(l.BatchNumber), 10)
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return fmt.Errorf("failed to write csv row: %v", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush csv: %v", err)
	}
	return f.Close()
}

func formatNullFloat(v sql.NullFloat64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}

func formatNullDate(v sql.NullTime) string {
	if !v.Valid {
		return ""
	}
	return v.Time.Format("2006-01-02")
}
