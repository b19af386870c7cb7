package cluster

import "sort"

// IDOffset is the width of each batch's spatiotemporal id range: batch b
// (1-indexed) owns [(b-1)*IDOffset, b*IDOffset). Spatial and temporal ids
// stay batch-local and are never rebased.
const IDOffset = 1_000_000

// Batch is one memory-bounded unit of clustering work: a disjoint set of
// whole partitions. Members holds record indices in ascending input order.
type Batch struct {
	Number    int
	Members   []int32
	Size      int
	Oversized bool // a single partition exceeded the capacity
}

// AssignBatches packs partitions into capacity-bounded batches. Partitions
// are taken in descending size order (stable for equal sizes) and each is
// assigned whole to the open batch with the greatest remaining capacity,
// lowest batch number winning ties; a new batch opens when no batch has
// positive remaining capacity. Because larger partitions are placed first,
// a partition exceeding the capacity always opens its own over-capacity
// batch and never receives company — a documented condition, not an error.
// capacity <= 0 disables batching: every record lands in batch 1 and no
// coarse pass is needed.
//
// The assignment depends only on partition sizes and order, so identical
// inputs reproduce identical batch contents.
func AssignBatches(partitions []Partition, capacity int) []Batch {
	if len(partitions) == 0 {
		return nil
	}

	if capacity <= 0 {
		var all []int32
		for _, p := range partitions {
			all = append(all, p.Members...)
		}
		sort.Slice(all, func(a, b int) bool { return all[a] < all[b] })
		return []Batch{{Number: 1, Members: all, Size: len(all)}}
	}

	order := make([]int, len(partitions))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(partitions[order[a]].Members) > len(partitions[order[b]].Members)
	})

	var batches []Batch
	var remaining []int
	for _, pi := range order {
		members := partitions[pi].Members
		best := -1
		for b := range remaining {
			if remaining[b] > 0 && (best < 0 || remaining[b] > remaining[best]) {
				best = b
			}
		}
		if best < 0 {
			batches = append(batches, Batch{Number: len(batches) + 1})
			remaining = append(remaining, capacity)
			best = len(batches) - 1
		}
		batches[best].Members = append(batches[best].Members, members...)
		batches[best].Size += len(members)
		remaining[best] -= len(members)
		if len(members) > capacity {
			batches[best].Oversized = true
		}
	}

	// Records inside a batch keep their original input order.
	for i := range batches {
		m := batches[i].Members
		sort.Slice(m, func(a, b int) bool { return m[a] < m[b] })
	}
	return batches
}

// ApplyNamespace rebases a batch's spatiotemporal ids into the batch's
// exclusive global range and stamps the batch number. Spatial and temporal
// ids are left batch-local.
func ApplyNamespace(labels []Labels, batch int) {
	offset := int64(batch-1) * IDOffset
	for i := range labels {
		labels[i].SpatiotemporalID += offset
		labels[i].BatchNumber = int32(batch)
	}
}
