package cluster

// unionFind is a disjoint-set forest over an index-addressed arena.
// find uses iterative path halving; union is by size. No recursion, so
// arbitrarily large temporal sub-clusters cannot exhaust the stack.
type unionFind struct {
	parent []int32
	size   []int32
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int32, n),
		size:   make([]int32, n),
	}
	for i := range uf.parent {
		uf.parent[i] = int32(i)
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(x int32) int32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int32) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}

// connectedComponents computes the EpsKm proximity components of one
// group of records. members holds record indices in ascending input
// order; the returned slice assigns each member a component id numbered
// by first appearance in that order.
func (e *Engine) connectedComponents(records []Record, members []int32) []int32 {
	group := make([]Record, len(members))
	for k, idx := range members {
		group[k] = records[idx]
	}

	ix := newGeoIndex(group)
	uf := newUnionFind(len(group))
	var buf []int32
	for k := range group {
		buf = ix.neighbors(int32(k), e.Options.EpsKm, buf[:0])
		for _, nb := range buf {
			uf.union(int32(k), nb)
		}
	}

	comp := make([]int32, len(group))
	roots := make(map[int32]int32, 4)
	next := int32(0)
	for k := range group {
		root := uf.find(int32(k))
		id, ok := roots[root]
		if !ok {
			id = next
			next++
			roots[root] = id
		}
		comp[k] = id
	}
	return comp
}
