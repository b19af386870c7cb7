// Package cluster implements two-stage spatiotemporal density clustering of
// specimen collecting events into expeditions, plus the coarse partitioning
// and batch assignment that bound the memory of a clustering run.
package cluster

import (
	"fmt"
	"math"
	"time"
)

// Record is one specimen collecting event. Records are immutable inputs;
// the engine never reorders or mutates the slice it is given.
type Record struct {
	ID   int64     `json:"collectingeventid" db:"collectingeventid"`
	Lat  float64   `json:"latitude1" db:"latitude1"`
	Lon  float64   `json:"longitude1" db:"longitude1"`
	Date time.Time `json:"startdate" db:"startdate"`
}

// Labels carries the cluster assignment for one record. A Labels slice is
// always aligned with the record slice it was computed from. Spatial and
// temporal ids are batch-local (the temporal id is additionally scoped to
// its spatial cluster, matching the upstream collections pipeline); only
// the spatiotemporal id is rebased into the batch's global range.
// BatchNumber is 1-indexed; zero means the record's batch failed and
// produced no assignment.
type Labels struct {
	SpatialID        int64 `json:"spatial_cluster_id" db:"spatial_cluster_id"`
	TemporalID       int64 `json:"temporal_cluster_id" db:"temporal_cluster_id"`
	SpatiotemporalID int64 `json:"spatiotemporal_cluster_id" db:"spatiotemporal_cluster_id"`
	BatchNumber      int32 `json:"batch_number" db:"batch_number"`
}

// Default clustering thresholds, matching the production configuration of
// the collections pipeline.
const (
	DefaultEpsKm   = 10.0
	DefaultEpsDays = 7.0
)

// Options configures the clustering engine.
type Options struct {
	EpsKm       float64 // spatial reach in kilometers
	EpsDays     float64 // temporal reach in days; zero groups same-day records only
	MinSpatial  int     // minimum neighborhood size for the spatial pass
	MinTemporal int     // minimum neighborhood size for the temporal pass
	Log         bool
}

// Engine runs the per-batch clustering stages. Engines hold no state
// between calls; the same Engine may label any number of batches.
type Engine struct {
	Options Options
}

// NewEngine creates an engine with the specified options. Unset or invalid
// option values fall back to defaults; EpsDays may legitimately be zero, so
// only a negative value takes the default there.
func NewEngine(options Options) *Engine {
	if options.EpsKm <= 0 {
		options.EpsKm = DefaultEpsKm
	}
	if options.EpsDays < 0 {
		options.EpsDays = DefaultEpsDays
	}
	if options.MinSpatial <= 0 {
		options.MinSpatial = 1
	}
	if options.MinTemporal <= 0 {
		options.MinTemporal = 1
	}
	return &Engine{Options: options}
}

// ClusterBatch labels one batch of records with batch-local cluster ids.
// The stages run in order: spatial density clustering with a great-circle
// metric, temporal density clustering inside each spatial cluster, a
// connectivity repair pass that splits temporal sub-clusters whose members
// are no longer mutually reachable at EpsKm, and a combine step that numbers
// the distinct (spatial, temporal, component) groups in first-seen input
// order. Every record receives a label; unclustered records become
// singleton expeditions. BatchNumber is left zero: callers rebase ids and
// stamp batch numbers with ApplyNamespace.
//
// The call is atomic. It either returns a fully labeled batch or an error:
// ErrEmptyBatch for a batch with no records, or a RecordError if a value
// that cannot enter the distance computation slipped past the normalizer.
func (e *Engine) ClusterBatch(records []Record) ([]Labels, error) {
	if len(records) == 0 {
		return nil, ErrEmptyBatch
	}

	days := make([]float64, len(records))
	for i, r := range records {
		if math.IsNaN(r.Lat) || math.IsInf(r.Lat, 0) ||
			math.IsNaN(r.Lon) || math.IsInf(r.Lon, 0) {
			return nil, &RecordError{RecordID: r.ID, Reason: "non-finite coordinate"}
		}
		if r.Date.IsZero() {
			return nil, &RecordError{RecordID: r.ID, Reason: "missing date"}
		}
		days[i] = dayValue(r.Date)
	}

	start := time.Now()
	if e.Options.Log {
		fmt.Printf("Clustering %d records (eps %.2f km / %.2f days)\n",
			len(records), e.Options.EpsKm, e.Options.EpsDays)
	}

	spatial := e.clusterSpatial(records)
	if e.Options.Log {
		fmt.Printf("  spatial clusters: %d\n", labelCount(spatial))
	}

	temporal := e.clusterTemporal(spatial, days)
	components := e.repairConnectivity(records, spatial, temporal)
	labels := combineLabels(spatial, temporal, components)

	if e.Options.Log {
		fmt.Printf("  expeditions: %d (in %v)\n", CountExpeditions(labels), time.Since(start))
	}
	return labels, nil
}

// clusterSpatial runs the stage-A density scan over record coordinates.
func (e *Engine) clusterSpatial(records []Record) []int32 {
	ix := newGeoIndex(records)
	scan, clusters := densityScan(len(records), e.Options.MinSpatial,
		func(i int32, out []int32) []int32 {
			return ix.neighbors(i, e.Options.EpsKm, out)
		})
	return materialize(scan, clusters)
}

// clusterTemporal runs the stage-B density scan over the projected day
// values of each spatial cluster independently. The returned labels are
// scoped to their spatial cluster.
func (e *Engine) clusterTemporal(spatial []int32, days []float64) []int32 {
	temporal := make([]int32, len(spatial))
	for _, members := range groupByLabel(spatial) {
		groupDays := make([]float64, len(members))
		for k, idx := range members {
			groupDays[k] = days[idx]
		}
		ix := newDayIndex(groupDays)
		scan, clusters := densityScan(len(members), e.Options.MinTemporal,
			func(i int32, out []int32) []int32 {
				return ix.neighbors(i, e.Options.EpsDays, out)
			})
		local := materialize(scan, clusters)
		for k, idx := range members {
			temporal[idx] = local[k]
		}
	}
	return temporal
}

// repairConnectivity runs stage C. Time-windowing can cut a spatial
// cluster's reachability chain: a member may sit within EpsKm only of a
// bridging record that landed in a different temporal window. Each
// temporal sub-cluster is therefore re-checked for spatial connectivity at
// EpsKm and split into one component per connected piece.
func (e *Engine) repairConnectivity(records []Record, spatial, temporal []int32) []int32 {
	components := make([]int32, len(records))
	for _, sMembers := range groupByLabel(spatial) {
		// Temporal labels are local to the spatial cluster, so regroup
		// just this cluster's members by their temporal id.
		local := make([]int32, len(sMembers))
		for k, idx := range sMembers {
			local[k] = temporal[idx]
		}
		for _, tMembers := range groupByLabel(local) {
			group := make([]int32, len(tMembers))
			for k, li := range tMembers {
				group[k] = sMembers[li]
			}
			if len(group) == 1 {
				components[group[0]] = 0
				continue
			}
			comp := e.connectedComponents(records, group)
			for k, idx := range group {
				components[idx] = comp[k]
			}
		}
	}
	return components
}

// combineLabels numbers the distinct (spatial, temporal, component) groups
// in first-seen input order, producing the batch-local spatiotemporal id.
func combineLabels(spatial, temporal, components []int32) []Labels {
	type key struct{ s, t, c int32 }
	seq := make(map[key]int64, len(spatial)/4+1)
	labels := make([]Labels, len(spatial))
	next := int64(0)
	for i := range spatial {
		k := key{spatial[i], temporal[i], components[i]}
		id, ok := seq[k]
		if !ok {
			id = next
			next++
			seq[k] = id
		}
		labels[i] = Labels{
			SpatialID:        int64(spatial[i]),
			TemporalID:       int64(temporal[i]),
			SpatiotemporalID: id,
		}
	}
	return labels
}

// CountExpeditions returns the number of distinct spatiotemporal clusters
// in a labeled batch.
func CountExpeditions(labels []Labels) int {
	seen := make(map[int64]struct{}, len(labels)/4+1)
	for _, l := range labels {
		seen[l.SpatiotemporalID] = struct{}{}
	}
	return len(seen)
}

// dayValue projects a date onto the fractional-day axis used by the
// temporal pass: seconds since the Unix epoch divided by one day.
func dayValue(t time.Time) float64 {
	return float64(t.Unix()) / 86400.0
}

// groupByLabel collects the indices carrying each dense label, in input
// order. Labels must be 0..k-1 as produced by materialize.
func groupByLabel(labels []int32) [][]int32 {
	count := labelCount(labels)
	groups := make([][]int32, count)
	for i, l := range labels {
		groups[l] = append(groups[l], int32(i))
	}
	return groups
}

func labelCount(labels []int32) int {
	max := int32(-1)
	for _, l := range labels {
		if l > max {
			max = l
		}
	}
	return int(max + 1)
}
