package cluster

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// ExpeditionSummary is a per-expedition rollup used by reporting surfaces.
type ExpeditionSummary struct {
	ExpeditionID int64     `json:"spatiotemporal_cluster_id"`
	BatchNumber  int32     `json:"batch_number"`
	Count        int       `json:"count"`
	Centroid     orb.Point `json:"centroid"`
	Bounds       orb.Bound `json:"bounds"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	SpanDays     float64   `json:"spanDays"`
	ExtentKm     float64   `json:"extentKm"` // diagonal of the bounding box
}

// RunSummary aggregates a whole labeled run.
type RunSummary struct {
	TotalRecords   int       `json:"totalRecords"`
	NumExpeditions int       `json:"numExpeditions"`
	NumSingletons  int       `json:"numSingletons"`
	LargestID      int64     `json:"largestId"`
	LargestCount   int       `json:"largestCount"`
	Earliest       time.Time `json:"earliest"`
	Latest         time.Time `json:"latest"`
}

// SummarizeExpeditions rolls up namespaced labels into one summary per
// expedition, sorted by expedition id. Records whose BatchNumber is zero
// (batch failed, no assignment) are skipped.
func SummarizeExpeditions(records []Record, labels []Labels) []ExpeditionSummary {
	type accum struct {
		batch   int32
		count   int
		sumLat  float64
		sumLon  float64
		points  orb.MultiPoint
		start   time.Time
		end     time.Time
	}

	byID := make(map[int64]*accum)
	for i := range records {
		if i >= len(labels) || labels[i].BatchNumber == 0 {
			continue
		}
		l := labels[i]
		a, ok := byID[l.SpatiotemporalID]
		if !ok {
			a = &accum{batch: l.BatchNumber, start: records[i].Date, end: records[i].Date}
			byID[l.SpatiotemporalID] = a
		}
		a.count++
		a.sumLat += records[i].Lat
		a.sumLon += records[i].Lon
		a.points = append(a.points, orb.Point{records[i].Lon, records[i].Lat})
		if records[i].Date.Before(a.start) {
			a.start = records[i].Date
		}
		if records[i].Date.After(a.end) {
			a.end = records[i].Date
		}
	}

	summaries := make([]ExpeditionSummary, 0, len(byID))
	for id, a := range byID {
		bounds := a.points.Bound()
		summaries = append(summaries, ExpeditionSummary{
			ExpeditionID: id,
			BatchNumber:  a.batch,
			Count:        a.count,
			Centroid:     orb.Point{a.sumLon / float64(a.count), a.sumLat / float64(a.count)},
			Bounds:       bounds,
			Start:        a.start,
			End:          a.end,
			SpanDays:     a.end.Sub(a.start).Hours() / 24,
			ExtentKm:     geo.Distance(bounds.Min, bounds.Max) / 1000,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ExpeditionID < summaries[j].ExpeditionID
	})
	return summaries
}

// SummarizeRun aggregates expedition summaries into run totals.
func SummarizeRun(summaries []ExpeditionSummary) RunSummary {
	out := RunSummary{NumExpeditions: len(summaries)}
	for _, s := range summaries {
		out.TotalRecords += s.Count
		if s.Count == 1 {
			out.NumSingletons++
		}
		if s.Count > out.LargestCount {
			out.LargestCount = s.Count
			out.LargestID = s.ExpeditionID
		}
		if out.Earliest.IsZero() || s.Start.Before(out.Earliest) {
			out.Earliest = s.Start
		}
		if s.End.After(out.Latest) {
			out.Latest = s.End
		}
	}
	return out
}

// FilterSummaries returns the summaries whose centroid lies inside bounds.
func FilterSummaries(summaries []ExpeditionSummary, bounds orb.Bound) []ExpeditionSummary {
	out := make([]ExpeditionSummary, 0, len(summaries))
	for _, s := range summaries {
		if bounds.Contains(s.Centroid) {
			out = append(out, s)
		}
	}
	return out
}

// GenerateTestRecords creates n records uniformly placed within bounds and
// dated within a one-year window. Deterministic for a fixed seed.
func GenerateTestRecords(n int, bounds orb.Bound, seed int64) []Record {
	r := rand.New(rand.NewSource(seed))
	base := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)

	records := make([]Record, n)
	for i := 0; i < n; i++ {
		lon := bounds.Min[0] + r.Float64()*(bounds.Max[0]-bounds.Min[0])
		lat := bounds.Min[1] + r.Float64()*(bounds.Max[1]-bounds.Min[1])
		records[i] = Record{
			ID:   int64(i + 1),
			Lat:  math.Round(lat*1e6) / 1e6,
			Lon:  math.Round(lon*1e6) / 1e6,
			Date: base.AddDate(0, 0, r.Intn(365)),
		}
	}
	return records
}
