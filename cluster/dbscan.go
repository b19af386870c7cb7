package cluster

import (
	"math"
	"sort"
)

const earthRadiusKm = 6371 // mean Earth radius, km

// haversineKm returns the great-circle distance between two points in
// kilometers. Comparing it against EpsKm is equivalent to comparing the
// central angle against EpsKm/earthRadiusKm radians.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// assignment is the outcome of a density scan for one point: either a
// cluster id, or still unclustered (density noise). Keeping the two cases
// explicit avoids arithmetic on a sentinel id; unclustered points become
// singleton clusters only at the stage boundary, never dropped.
type assignment struct {
	cluster   int32
	clustered bool
}

// densityScan is a DBSCAN-style scan over n points. neighbors must append
// to out the indices of all points within reach of point i, including i
// itself, in ascending index order. A point whose neighborhood holds at
// least minPts members seeds or extends a cluster; the frontier is
// expanded in FIFO order so results are deterministic for a fixed input
// order. Returns per-point assignments and the number of clusters found.
func densityScan(n, minPts int, neighbors func(i int32, out []int32) []int32) ([]assignment, int32) {
	scan := make([]assignment, n)
	visited := make([]bool, n)
	next := int32(0)
	var frontier []int32
	var buf []int32

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		buf = neighbors(int32(i), buf[:0])
		if len(buf) < minPts {
			// Below density here, but the point may still be claimed as a
			// border member of a cluster seeded later.
			continue
		}
		cid := next
		next++
		scan[i] = assignment{cluster: cid, clustered: true}
		frontier = append(frontier[:0], buf...)
		for head := 0; head < len(frontier); head++ {
			j := frontier[head]
			if !scan[j].clustered {
				scan[j] = assignment{cluster: cid, clustered: true}
			}
			if visited[j] {
				continue
			}
			visited[j] = true
			buf = neighbors(j, buf[:0])
			if len(buf) >= minPts {
				frontier = append(frontier, buf...)
			}
		}
	}
	return scan, next
}

// materialize converts scan results to dense labels 0..k-1, assigning
// fresh singleton ids to unclustered points in input order after the
// clusters found by the scan.
func materialize(scan []assignment, clusters int32) []int32 {
	labels := make([]int32, len(scan))
	next := clusters
	for i, a := range scan {
		if a.clustered {
			labels[i] = a.cluster
		} else {
			labels[i] = next
			next++
		}
	}
	return labels
}

// geoIndex answers radius queries over records. Entries are kept sorted by
// latitude: two points d kilometers apart differ in latitude by at most
// d/earthRadiusKm radians, so candidates are confined to a latitude band
// and checked with the exact great-circle distance. Longitude needs no
// separate bound; the exact check handles meridian wraparound.
type geoIndex struct {
	records []Record
	order   []int32   // record indices sorted by latitude
	lats    []float64 // latitude per order slot
}

func newGeoIndex(records []Record) *geoIndex {
	ix := &geoIndex{
		records: records,
		order:   make([]int32, len(records)),
		lats:    make([]float64, len(records)),
	}
	for i := range ix.order {
		ix.order[i] = int32(i)
	}
	sort.Slice(ix.order, func(a, b int) bool {
		ia, ib := ix.order[a], ix.order[b]
		if records[ia].Lat != records[ib].Lat {
			return records[ia].Lat < records[ib].Lat
		}
		return ia < ib
	})
	for slot, idx := range ix.order {
		ix.lats[slot] = records[idx].Lat
	}
	return ix
}

// neighbors appends to out the indices of all records within epsKm of
// record i, including i itself, in ascending index order.
func (ix *geoIndex) neighbors(i int32, epsKm float64, out []int32) []int32 {
	p := ix.records[i]
	band := (epsKm / earthRadiusKm) * (180 / math.Pi)
	lo := sort.SearchFloat64s(ix.lats, p.Lat-band)
	for slot := lo; slot < len(ix.lats) && ix.lats[slot] <= p.Lat+band; slot++ {
		idx := ix.order[slot]
		q := ix.records[idx]
		if haversineKm(p.Lat, p.Lon, q.Lat, q.Lon) <= epsKm {
			out = append(out, idx)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// dayIndex answers window queries over projected day values.
type dayIndex struct {
	days   []float64
	order  []int32   // indices sorted by day value
	sorted []float64 // day value per order slot
}

func newDayIndex(days []float64) *dayIndex {
	ix := &dayIndex{
		days:   days,
		order:  make([]int32, len(days)),
		sorted: make([]float64, len(days)),
	}
	for i := range ix.order {
		ix.order[i] = int32(i)
	}
	sort.Slice(ix.order, func(a, b int) bool {
		ia, ib := ix.order[a], ix.order[b]
		if days[ia] != days[ib] {
			return days[ia] < days[ib]
		}
		return ia < ib
	})
	for slot, idx := range ix.order {
		ix.sorted[slot] = days[idx]
	}
	return ix
}

// neighbors appends to out the indices of all values within epsDays of
// value i, inclusive on both ends, in ascending index order.
func (ix *dayIndex) neighbors(i int32, epsDays float64, out []int32) []int32 {
	v := ix.days[i]
	lo := sort.SearchFloat64s(ix.sorted, v-epsDays)
	for slot := lo; slot < len(ix.sorted) && ix.sorted[slot] <= v+epsDays; slot++ {
		out = append(out, ix.order[slot])
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}
