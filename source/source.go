// Package source loads specimen collection records from the collections
// MySQL database or from portal CSV exports, validates them for clustering,
// and applies locality redaction rules to the labeled output.
package source

import (
	"database/sql"
)

// Row is one joined specimen row: a collecting event with its collection
// object and locality/geography lookups. Latitude and Longitude are already
// resolved against the geography centroid fallback; CentroidFallback records
// when that fallback supplied the coordinates.
type Row struct {
	CollectingEventID  int64           `db:"collectingeventid"`
	CollectionObjectID int64           `db:"collectionobjectid"`
	StartDate          sql.NullTime    `db:"startdate"`
	EndDate            sql.NullTime    `db:"enddate"`
	Latitude           sql.NullFloat64 `db:"latitude1"`
	Longitude          sql.NullFloat64 `db:"longitude1"`
	CentroidFallback   bool            `db:"centroid_fallback"`
	LocalityID         sql.NullInt64   `db:"localityid"`
	LocalityName       string          `db:"localityname"`
	NamedPlace         string          `db:"namedplace"`
	Remarks            string          `db:"remarks"`
	Collectors         string          `db:"text1"`
	MinElevation       sql.NullFloat64 `db:"minelevation"`
	MaxElevation       sql.NullFloat64 `db:"maxelevation"`
	GeographyID        sql.NullInt64   `db:"geographyid"`
	GeographyName      string          `db:"fullname"`

	// Redact is set by the CSV reader when the export carries its own
	// redaction flags; database rows are flagged via FetchRedactionFlags.
	Redact bool `db:"-"`
}
