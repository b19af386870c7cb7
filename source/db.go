package source

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	_ "github.com/go-sql-driver/mysql"
)

// DBConfig describes the collections MySQL connection. The defaults match
// the docker-compose service used for local development, so a zero-config
// environment still connects.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// LoadDBConfig reads connection settings from EXPED_DB_* environment
// variables, loading a .env file first when one is present.
func LoadDBConfig() DBConfig {
	_ = godotenv.Load()

	cfg := DBConfig{
		Host:     envOr("EXPED_DB_HOST", "localhost"),
		Port:     3306,
		User:     envOr("EXPED_DB_USER", "myuser"),
		Password: envOr("EXPED_DB_PASSWORD", "mypassword"),
		Name:     envOr("EXPED_DB_NAME", "exped_cluster_db"),
	}
	if port := os.Getenv("EXPED_DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// DSN renders the config as a go-sql-driver connection string. parseTime
// makes DATE columns scan directly into time.Time.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// DB loads specimen rows from the collections database.
type DB struct {
	db *sqlx.DB
}

// OpenDB connects to the database and verifies the connection.
func OpenDB(cfg DBConfig) (*DB, error) {
	db, err := sqlx.Connect("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// specimenQuery joins collecting events to their collection objects and
// locality/geography lookups, falling back to the geography centroid when
// the locality has no coordinates of its own. Rows with neither are
// excluded up front.
const specimenQuery = `
SELECT
    ce.CollectingEventID AS collectingeventid,
    ce.StartDate AS startdate,
    ce.EndDate AS enddate,
    COALESCE(ce.Remarks, '') AS remarks,
    ce.LocalityID AS localityid,
    co.CollectionObjectID AS collectionobjectid,
    COALESCE(co.Text1, '') AS text1,
    COALESCE(l.Latitude1, g.CentroidLat) AS latitude1,
    COALESCE(l.Longitude1, g.CentroidLon) AS longitude1,
    (l.Latitude1 IS NULL) AS centroid_fallback,
    COALESCE(l.LocalityName, '') AS localityname,
    COALESCE(l.NamedPlace, '') AS namedplace,
    l.MinElevation AS minelevation,
    l.MaxElevation AS maxelevation,
    l.GeographyID AS geographyid,
    COALESCE(g.FullName, '') AS fullname
FROM collectingevent ce
INNER JOIN collectionobject co ON ce.CollectingEventID = co.CollectingEventID
LEFT JOIN locality l ON ce.LocalityID = l.LocalityID
LEFT JOIN geography g ON l.GeographyID = g.GeographyID
WHERE ce.StartDate IS NOT NULL
  AND (l.Latitude1 IS NOT NULL OR g.CentroidLat IS NOT NULL)
  AND (l.Longitude1 IS NOT NULL OR g.CentroidLon IS NOT NULL)`

// FetchRows loads every specimen row with usable coordinates and a start
// date. limit > 0 caps the result, which keeps test runs fast.
func (d *DB) FetchRows(ctx context.Context, limit int) ([]Row, error) {
	query := specimenQuery
	if limit > 0 {
		query = fmt.Sprintf("%s\nLIMIT %d", query, limit)
	}

	var rows []Row
	if err := d.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to query specimens: %v", err)
	}
	return rows, nil
}

// redactionChunkSize bounds the IN clause of the flag lookups.
const redactionChunkSize = 1000

// redactionQuery resolves the publishing rules for a set of collection
// objects: an object is redacted when it is flagged directly (YesNo2) or
// its current determination points at a redacted taxon.
const redactionQuery = `
SELECT
    co.CollectionObjectID AS collectionobjectid,
    MAX(CASE WHEN co.YesNo2 = 1 OR vt.RedactLocality = 1 THEN 1 ELSE 0 END) AS is_redacted
FROM collectionobject co
LEFT JOIN determination d
    ON co.CollectionObjectID = d.CollectionObjectID AND d.IsCurrent = 1
LEFT JOIN vtaxon2 vt
    ON d.TaxonID = vt.TaxonID
WHERE co.CollectionObjectID IN (?)
GROUP BY co.CollectionObjectID`

// FetchRedactionFlags looks up which of the given collection objects must
// have their locality details withheld. IDs are fetched in chunks so the
// IN clause stays within sane bounds.
func (d *DB) FetchRedactionFlags(ctx context.Context, ids []int64) (Flags, error) {
	flags := make(Flags)
	for start := 0; start < len(ids); start += redactionChunkSize {
		end := start + redactionChunkSize
		if end > len(ids) {
			end = len(ids)
		}

		query, args, err := sqlx.In(redactionQuery, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to build redaction query: %v", err)
		}

		var chunk []struct {
			CollectionObjectID int64 `db:"collectionobjectid"`
			IsRedacted         int   `db:"is_redacted"`
		}
		if err := d.db.SelectContext(ctx, &chunk, d.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to query redaction flags: %v", err)
		}
		for _, r := range chunk {
			if r.IsRedacted == 1 {
				flags[r.CollectionObjectID] = true
			}
		}
	}
	return flags, nil
}
