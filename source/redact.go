package source

import (
	"database/sql"
	"fmt"

	"github.com/calacademy-research/expedition-clustering/cluster"
)

// RedactedPlaceholder replaces free-text locality fields on flagged rows,
// matching the placeholder the publishing feed uses.
const RedactedPlaceholder = "*"

// Flags maps collection object ids to their redaction flag.
type Flags map[int64]bool

// FlagsFromRows collects the redaction flags the rows carry themselves.
// Portal CSV exports embed the flags; database rows are flagged via
// DB.FetchRedactionFlags instead.
func FlagsFromRows(rows []Row) Flags {
	flags := make(Flags)
	for _, row := range rows {
		if row.Redact {
			flags[row.CollectionObjectID] = true
		}
	}
	return flags
}

// Policy selects what happens to flagged rows.
type Policy int

const (
	// PolicyMask replaces locality text with the placeholder and withholds
	// coordinates, keeping the row and its expedition assignment.
	PolicyMask Policy = iota
	// PolicyDrop removes flagged rows from the output entirely.
	PolicyDrop
)

// ParsePolicy maps the command-line policy names to their Policy value.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "mask":
		return PolicyMask, nil
	case "drop":
		return PolicyDrop, nil
	}
	return 0, fmt.Errorf("unknown redaction policy %q (want mask or drop)", s)
}

// Redact applies the policy to labeled output rows. Rows and labels stay
// aligned: PolicyMask edits flagged rows in place and returns the same
// slices, PolicyDrop returns fresh slices with flagged rows removed. The
// count of affected rows is returned either way.
func Redact(rows []Row, labels []cluster.Labels, flags Flags, policy Policy) ([]Row, []cluster.Labels, int) {
	if policy == PolicyDrop {
		keptRows := make([]Row, 0, len(rows))
		keptLabels := make([]cluster.Labels, 0, len(labels))
		dropped := 0
		for i := range rows {
			if flags[rows[i].CollectionObjectID] {
				dropped++
				continue
			}
			keptRows = append(keptRows, rows[i])
			keptLabels = append(keptLabels, labels[i])
		}
		return keptRows, keptLabels, dropped
	}

	masked := 0
	for i := range rows {
		if !flags[rows[i].CollectionObjectID] {
			continue
		}
		masked++
		rows[i].LocalityName = RedactedPlaceholder
		rows[i].NamedPlace = RedactedPlaceholder
		rows[i].Latitude = sql.NullFloat64{}
		rows[i].Longitude = sql.NullFloat64{}
		rows[i].CentroidFallback = false
	}
	return rows, labels, masked
}

// VerifyResult reports redaction violations found in an output set.
type VerifyResult struct {
	Flagged       int
	BadLocality   int
	BadCoordinate int
}

// OK reports whether every flagged row was properly redacted.
func (r VerifyResult) OK() bool {
	return r.BadLocality == 0 && r.BadCoordinate == 0
}

// VerifyMask checks that every flagged row in the output is fully masked:
// locality text replaced by the placeholder and coordinates withheld.
func VerifyMask(rows []Row, flags Flags) VerifyResult {
	var res VerifyResult
	for _, row := range rows {
		if !flags[row.CollectionObjectID] {
			continue
		}
		res.Flagged++
		if row.LocalityName != RedactedPlaceholder || row.NamedPlace != RedactedPlaceholder {
			res.BadLocality++
		}
		if row.Latitude.Valid || row.Longitude.Valid {
			res.BadCoordinate++
		}
	}
	return res
}

// VerifyDrop counts flagged rows that survived a drop-policy redaction.
// A clean output returns zero.
func VerifyDrop(rows []Row, flags Flags) int {
	offenders := 0
	for _, row := range rows {
		if flags[row.CollectionObjectID] {
			offenders++
		}
	}
	return offenders
}
