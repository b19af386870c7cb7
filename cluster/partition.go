package cluster

// Partition is a coarse pre-cluster used only while assigning batches.
// Members holds record indices in ascending input order.
type Partition struct {
	Members []int32
}

// CoarseRadiusKm returns the partitioning radius for a clustering radius:
// twice the fine threshold. Any two records within epsKm of each other are
// within the coarse radius, so a single minimum-neighborhood-1 pass at the
// coarse radius can never place them in different partitions; batching
// whole partitions therefore cannot split an expedition.
func CoarseRadiusKm(epsKm float64) float64 {
	return 2 * epsKm
}

// PartitionRecords groups records at the coarse radius. The minimum
// neighborhood size is fixed at 1 regardless of engine options: every
// record lands in exactly one partition, and a record with no neighbors
// becomes its own singleton partition. Partitions are returned in
// first-seen input order.
func PartitionRecords(records []Record, coarseKm float64) []Partition {
	if len(records) == 0 {
		return nil
	}
	ix := newGeoIndex(records)
	scan, clusters := densityScan(len(records), 1,
		func(i int32, out []int32) []int32 {
			return ix.neighbors(i, coarseKm, out)
		})
	labels := materialize(scan, clusters)

	partitions := make([]Partition, 0, clusters)
	for _, members := range groupByLabel(labels) {
		partitions = append(partitions, Partition{Members: members})
	}
	return partitions
}
