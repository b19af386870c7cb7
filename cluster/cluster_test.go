package cluster

import (
	"errors"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
)

var testBounds = orb.Bound{Min: orb.Point{-124.0, 32.0}, Max: orb.Point{-114.0, 42.0}}

func day(d int) time.Time {
	return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func makeRecord(id int64, lat, lon float64, d int) Record {
	return Record{ID: id, Lat: lat, Lon: lon, Date: day(d)}
}

// expeditionSets canonicalizes a labeling into sorted membership sets, so
// two labelings can be compared independently of the ids they assigned.
func expeditionSets(records []Record, labels []Labels) []string {
	groups := make(map[int64][]string)
	for i, l := range labels {
		groups[l.SpatiotemporalID] = append(groups[l.SpatiotemporalID],
			strconv.FormatInt(records[i].ID, 10))
	}
	sets := make([]string, 0, len(groups))
	for _, members := range groups {
		sort.Strings(members)
		sets = append(sets, strings.Join(members, ","))
	}
	sort.Strings(sets)
	return sets
}

func TestCloseRecordsFormOneExpedition(t *testing.T) {
	// About 1.1 km between neighbors at the equator, same day
	records := []Record{
		makeRecord(1, 0, 0.00, 0),
		makeRecord(2, 0, 0.01, 0),
		makeRecord(3, 0, 0.02, 0),
	}

	engine := NewEngine(Options{EpsKm: 10, EpsDays: 7})
	labels, err := engine.ClusterBatch(records)
	if err != nil {
		t.Fatalf("ClusterBatch failed: %v", err)
	}

	if got := CountExpeditions(labels); got != 1 {
		t.Errorf("Expected 1 expedition, got %d", got)
	}
	for i, l := range labels {
		if l.SpatiotemporalID != labels[0].SpatiotemporalID {
			t.Errorf("Expected record %d to share the expedition id, got %d", i, l.SpatiotemporalID)
		}
		if l.BatchNumber != 0 {
			t.Errorf("Expected batch number to be unset before namespacing, got %d", l.BatchNumber)
		}
	}
}

func TestTemporalSplitSharesSpatialCluster(t *testing.T) {
	// Same place, visited twice a month apart
	records := []Record{
		makeRecord(1, 0, 0.00, 0),
		makeRecord(2, 0, 0.00, 0),
		makeRecord(3, 0, 0.01, 31),
	}

	engine := NewEngine(Options{EpsKm: 10, EpsDays: 7})
	labels, err := engine.ClusterBatch(records)
	if err != nil {
		t.Fatalf("ClusterBatch failed: %v", err)
	}

	if got := CountExpeditions(labels); got != 2 {
		t.Errorf("Expected 2 expeditions, got %d", got)
	}
	if labels[0].SpatialID != labels[2].SpatialID {
		t.Errorf("Expected one spatial cluster, got ids %d and %d",
			labels[0].SpatialID, labels[2].SpatialID)
	}
	if labels[0].SpatiotemporalID != labels[1].SpatiotemporalID {
		t.Error("Expected the two same-day records to share an expedition")
	}
	if labels[0].SpatiotemporalID == labels[2].SpatiotemporalID {
		t.Error("Expected the later visit to be its own expedition")
	}
}

func TestRepairSplitsBridgedGroups(t *testing.T) {
	// Two record groups 45 km apart, joined into one spatial cluster only by
	// a chain of bridge records collected seven weeks later. Time-windowing
	// pulls the bridge out, so the repair pass must split the remainder.
	// Steps of 0.08 degrees longitude are about 8.9 km at the equator.
	var records []Record
	id := int64(1)
	for i := 0; i < 5; i++ { // group A, days 0-4
		records = append(records, makeRecord(id, 0, float64(i)*0.08, i))
		id++
	}
	for i := 0; i < 4; i++ { // bridge, day 50
		records = append(records, makeRecord(id, 0, 0.40+float64(i)*0.08, 50))
		id++
	}
	for i := 0; i < 5; i++ { // group B, days 0-4
		records = append(records, makeRecord(id, 0, 0.72+float64(i)*0.08, i))
		id++
	}

	engine := NewEngine(Options{EpsKm: 10, EpsDays: 7})
	labels, err := engine.ClusterBatch(records)
	if err != nil {
		t.Fatalf("ClusterBatch failed: %v", err)
	}

	for i, l := range labels {
		if l.SpatialID != labels[0].SpatialID {
			t.Fatalf("Expected the whole chain in one spatial cluster, record %d got %d", i, l.SpatialID)
		}
	}
	if got := CountExpeditions(labels); got != 3 {
		t.Errorf("Expected 3 expeditions after repair, got %d", got)
	}

	want := []string{"1,2,3,4,5", "10,11,12,13,14", "6,7,8,9"}
	got := expeditionSets(records, labels)
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Expected expedition sets %v, got %v", want, got)
	}
}

func TestUnclusteredRecordsBecomeSingletons(t *testing.T) {
	records := []Record{
		makeRecord(1, 0, 0.00, 0),
		makeRecord(2, 0, 0.01, 0),
		makeRecord(3, 0, 0.02, 0),
		makeRecord(4, 5, 0, 0),  // isolated
		makeRecord(5, -5, 0, 0), // isolated
	}

	engine := NewEngine(Options{EpsKm: 10, EpsDays: 7, MinSpatial: 3})
	labels, err := engine.ClusterBatch(records)
	if err != nil {
		t.Fatalf("ClusterBatch failed: %v", err)
	}

	if got := CountExpeditions(labels); got != 3 {
		t.Errorf("Expected 3 expeditions, got %d", got)
	}
	if labels[3].SpatiotemporalID == labels[4].SpatiotemporalID {
		t.Error("Expected isolated records to get distinct singleton expeditions")
	}
	for i, l := range labels {
		if l.SpatiotemporalID < 0 || l.SpatialID < 0 || l.TemporalID < 0 {
			t.Errorf("Expected non-negative ids for record %d, got %+v", i, l)
		}
	}
}

func TestMinSpatialNeighborhood(t *testing.T) {
	pair := []Record{
		makeRecord(1, 0, 0.00, 0),
		makeRecord(2, 0, 0.01, 0),
	}

	// A pair satisfies a neighborhood of 2 but not of 3
	engine := NewEngine(Options{EpsKm: 10, EpsDays: 7, MinSpatial: 2})
	labels, err := engine.ClusterBatch(pair)
	if err != nil {
		t.Fatalf("ClusterBatch failed: %v", err)
	}
	if got := CountExpeditions(labels); got != 1 {
		t.Errorf("Expected 1 expedition with neighborhood 2, got %d", got)
	}

	engine = NewEngine(Options{EpsKm: 10, EpsDays: 7, MinSpatial: 3})
	labels, err = engine.ClusterBatch(pair)
	if err != nil {
		t.Fatalf("ClusterBatch failed: %v", err)
	}
	if got := CountExpeditions(labels); got != 2 {
		t.Errorf("Expected 2 singleton expeditions with neighborhood 3, got %d", got)
	}
}

func TestMinTemporalNeighborhood(t *testing.T) {
	records := []Record{
		makeRecord(1, 0, 0, 0),
		makeRecord(2, 0, 0, 1),
		makeRecord(3, 0, 0, 30),
	}

	engine := NewEngine(Options{EpsKm: 10, EpsDays: 7, MinTemporal: 2})
	labels, err := engine.ClusterBatch(records)
	if err != nil {
		t.Fatalf("ClusterBatch failed: %v", err)
	}

	if got := CountExpeditions(labels); got != 2 {
		t.Errorf("Expected 2 expeditions, got %d", got)
	}
	if labels[0].SpatiotemporalID != labels[1].SpatiotemporalID {
		t.Error("Expected the adjacent-day records to cluster")
	}
	if labels[2].SpatiotemporalID == labels[0].SpatiotemporalID {
		t.Error("Expected the lone later record to become a singleton")
	}
}

func TestEpsDaysZeroGroupsSameDayOnly(t *testing.T) {
	records := []Record{
		makeRecord(1, 0, 0, 0),
		makeRecord(2, 0, 0, 0),
		makeRecord(3, 0, 0, 1),
	}

	engine := NewEngine(Options{EpsKm: 10, EpsDays: 0})
	if engine.Options.EpsDays != 0 {
		t.Fatalf("Expected EpsDays 0 to survive option defaulting, got %v", engine.Options.EpsDays)
	}

	labels, err := engine.ClusterBatch(records)
	if err != nil {
		t.Fatalf("ClusterBatch failed: %v", err)
	}
	if got := CountExpeditions(labels); got != 2 {
		t.Errorf("Expected same-day grouping only, got %d expeditions", got)
	}
}

func TestClusterBatchDeterministic(t *testing.T) {
	a := GenerateTestRecords(500, testBounds, 42)
	b := GenerateTestRecords(500, testBounds, 42)

	engine := NewEngine(Options{EpsKm: 10, EpsDays: 7})
	labelsA, err := engine.ClusterBatch(a)
	if err != nil {
		t.Fatalf("ClusterBatch failed: %v", err)
	}
	labelsB, err := engine.ClusterBatch(b)
	if err != nil {
		t.Fatalf("ClusterBatch failed: %v", err)
	}

	for i := range labelsA {
		if labelsA[i] != labelsB[i] {
			t.Fatalf("Expected identical labels for identical input, record %d got %+v and %+v",
				i, labelsA[i], labelsB[i])
		}
	}
}

func TestEmptyBatch(t *testing.T) {
	engine := NewEngine(Options{})
	_, err := engine.ClusterBatch(nil)
	if !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("Expected ErrEmptyBatch, got %v", err)
	}
}

func TestRecordErrorOnBadValues(t *testing.T) {
	engine := NewEngine(Options{})

	_, err := engine.ClusterBatch([]Record{{ID: 7, Lat: math.NaN(), Lon: 0, Date: day(0)}})
	var re *RecordError
	if !errors.As(err, &re) {
		t.Fatalf("Expected a RecordError, got %v", err)
	}
	if re.RecordID != 7 {
		t.Errorf("Expected record id 7 in error, got %d", re.RecordID)
	}

	_, err = engine.ClusterBatch([]Record{{ID: 8, Lat: 0, Lon: 0}})
	if !errors.As(err, &re) {
		t.Fatalf("Expected a RecordError for a missing date, got %v", err)
	}
	if re.RecordID != 8 {
		t.Errorf("Expected record id 8 in error, got %d", re.RecordID)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Nashville to Los Angeles, a standard reference pair
	got := haversineKm(36.12, -86.67, 33.94, -118.40)
	if math.Abs(got-2886.44) > 2 {
		t.Errorf("Expected distance near 2886.44 km, got %f", got)
	}

	if d := haversineKm(10, 20, 10, 20); d != 0 {
		t.Errorf("Expected zero distance for identical points, got %f", d)
	}
	if a, b := haversineKm(1, 2, 3, 4), haversineKm(3, 4, 1, 2); math.Abs(a-b) > 1e-9 {
		t.Errorf("Expected symmetric distances, got %f and %f", a, b)
	}
}

func TestGeoIndexMatchesBruteForce(t *testing.T) {
	records := GenerateTestRecords(200, testBounds, 1)
	ix := newGeoIndex(records)
	const eps = 25.0

	for _, i := range []int32{0, 17, 99, 199} {
		got := ix.neighbors(i, eps, nil)

		var want []int32
		p := records[i]
		for j, q := range records {
			if haversineKm(p.Lat, p.Lon, q.Lat, q.Lon) <= eps {
				want = append(want, int32(j))
			}
		}

		if len(got) != len(want) {
			t.Fatalf("Expected %d neighbors for record %d, got %d", len(want), i, len(got))
		}
		for k := range want {
			if got[k] != want[k] {
				t.Errorf("Expected neighbor %d of record %d to be %d, got %d", k, i, want[k], got[k])
			}
		}
	}
}

func TestDayIndexWindow(t *testing.T) {
	ix := newDayIndex([]float64{0, 3, 7.5, 8, 20})

	got := ix.neighbors(0, 7.5, nil)
	want := []int32{0, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("Expected %d neighbors, got %v", len(want), got)
	}
	for k := range want {
		if got[k] != want[k] {
			t.Errorf("Expected neighbor %d to be %d, got %d", k, want[k], got[k])
		}
	}

	got = ix.neighbors(4, 7.5, nil)
	if len(got) != 1 || got[0] != 4 {
		t.Errorf("Expected the far value to only neighbor itself, got %v", got)
	}
}

func TestPartitionKeepsReachablePairsTogether(t *testing.T) {
	records := GenerateTestRecords(300, testBounds, 3)
	const eps = 10.0

	partitions := PartitionRecords(records, CoarseRadiusKm(eps))

	assigned := make([]int, len(records))
	for i := range assigned {
		assigned[i] = -1
	}
	for pi, p := range partitions {
		for _, idx := range p.Members {
			if assigned[idx] != -1 {
				t.Fatalf("Record %d assigned to two partitions", idx)
			}
			assigned[idx] = pi
		}
	}
	for i, pi := range assigned {
		if pi == -1 {
			t.Fatalf("Record %d not assigned to any partition", i)
		}
	}

	// Any two records within clustering reach must share a partition, or
	// batching could split an expedition.
	for i := range records {
		for j := i + 1; j < len(records); j++ {
			d := haversineKm(records[i].Lat, records[i].Lon, records[j].Lat, records[j].Lon)
			if d <= eps && assigned[i] != assigned[j] {
				t.Fatalf("Records %d and %d are %.2f km apart but in partitions %d and %d",
					i, j, d, assigned[i], assigned[j])
			}
		}
	}
}

func partitionOfSize(n, startIdx int) Partition {
	members := make([]int32, n)
	for i := range members {
		members[i] = int32(startIdx + i)
	}
	return Partition{Members: members}
}

func TestAssignBatchesGreedyFill(t *testing.T) {
	sizes := []int{40, 35, 30, 25, 20}
	var partitions []Partition
	next := 0
	for _, n := range sizes {
		partitions = append(partitions, partitionOfSize(n, next))
		next += n
	}

	batches := AssignBatches(partitions, 50)

	// Greedy best-fit: 40+35 overfill batch 1, 30+25 batch 2, 20 batch 3
	wantSizes := []int{75, 55, 20}
	if len(batches) != len(wantSizes) {
		t.Fatalf("Expected %d batches, got %d", len(wantSizes), len(batches))
	}
	for i, b := range batches {
		if b.Number != i+1 {
			t.Errorf("Expected batch number %d, got %d", i+1, b.Number)
		}
		if b.Size != wantSizes[i] {
			t.Errorf("Expected batch %d size to be %d, got %d", b.Number, wantSizes[i], b.Size)
		}
		if b.Oversized {
			t.Errorf("Expected batch %d to not be flagged oversized", b.Number)
		}
		if len(b.Members) != b.Size {
			t.Errorf("Expected batch %d member count to match size, got %d", b.Number, len(b.Members))
		}
		for k := 1; k < len(b.Members); k++ {
			if b.Members[k-1] >= b.Members[k] {
				t.Fatalf("Expected batch %d members in ascending input order", b.Number)
			}
		}
	}
}

func TestAssignBatchesOversizedPartition(t *testing.T) {
	partitions := []Partition{
		partitionOfSize(120, 0),
		partitionOfSize(30, 120),
	}

	batches := AssignBatches(partitions, 50)
	if len(batches) != 2 {
		t.Fatalf("Expected 2 batches, got %d", len(batches))
	}
	if batches[0].Size != 120 || !batches[0].Oversized {
		t.Errorf("Expected batch 1 to hold the whole oversized partition, got size %d oversized %v",
			batches[0].Size, batches[0].Oversized)
	}
	if batches[1].Size != 30 || batches[1].Oversized {
		t.Errorf("Expected batch 2 size 30 and not oversized, got size %d oversized %v",
			batches[1].Size, batches[1].Oversized)
	}
}

func TestAssignBatchesCapacityDisabled(t *testing.T) {
	partitions := []Partition{
		partitionOfSize(5, 10),
		partitionOfSize(5, 0),
		partitionOfSize(5, 5),
	}

	batches := AssignBatches(partitions, 0)
	if len(batches) != 1 {
		t.Fatalf("Expected a single batch with capacity disabled, got %d", len(batches))
	}
	if batches[0].Number != 1 || batches[0].Size != 15 {
		t.Errorf("Expected batch 1 with 15 records, got batch %d with %d", batches[0].Number, batches[0].Size)
	}
	for k := int32(0); k < 15; k++ {
		if batches[0].Members[k] != k {
			t.Fatalf("Expected members in input order, slot %d got %d", k, batches[0].Members[k])
		}
	}
}

func TestApplyNamespace(t *testing.T) {
	labels := []Labels{
		{SpatialID: 0, TemporalID: 0, SpatiotemporalID: 0},
		{SpatialID: 0, TemporalID: 1, SpatiotemporalID: 1},
		{SpatialID: 1, TemporalID: 0, SpatiotemporalID: 2},
	}

	ApplyNamespace(labels, 3)

	base := int64(2) * IDOffset
	for i, l := range labels {
		if l.SpatiotemporalID != base+int64(i) {
			t.Errorf("Expected expedition id %d, got %d", base+int64(i), l.SpatiotemporalID)
		}
		if l.BatchNumber != 3 {
			t.Errorf("Expected batch number 3, got %d", l.BatchNumber)
		}
	}
	if labels[1].TemporalID != 1 || labels[2].SpatialID != 1 {
		t.Error("Expected spatial and temporal ids to stay batch-local")
	}
}

func TestBatchedRunMatchesSingleBatch(t *testing.T) {
	records := GenerateTestRecords(800, testBounds, 7)
	engine := NewEngine(Options{EpsKm: 10, EpsDays: 7})

	single, err := engine.ClusterBatch(records)
	if err != nil {
		t.Fatalf("single batch failed: %v", err)
	}

	partitions := PartitionRecords(records, CoarseRadiusKm(10))
	batches := AssignBatches(partitions, 100)
	if len(batches) < 2 {
		t.Fatalf("Expected the capacity to force multiple batches, got %d", len(batches))
	}

	batched := make([]Labels, len(records))
	for _, batch := range batches {
		sub := make([]Record, len(batch.Members))
		for k, idx := range batch.Members {
			sub[k] = records[idx]
		}
		local, err := engine.ClusterBatch(sub)
		if err != nil {
			t.Fatalf("batch %d failed: %v", batch.Number, err)
		}
		ApplyNamespace(local, batch.Number)
		for k, idx := range batch.Members {
			batched[idx] = local[k]
		}
	}

	want := expeditionSets(records, single)
	got := expeditionSets(records, batched)
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Expected batched grouping to match the single batch\nsingle:  %d sets\nbatched: %d sets",
			len(want), len(got))
	}
}

func TestSummarizeExpeditions(t *testing.T) {
	records := []Record{
		makeRecord(1, 10, 20, 0),
		makeRecord(2, 10, 21, 2),
		makeRecord(3, -5, 150, 10),
		makeRecord(4, 0, 0, 0), // failed batch, no assignment
	}
	labels := []Labels{
		{SpatiotemporalID: 0, BatchNumber: 1},
		{SpatiotemporalID: 0, BatchNumber: 1},
		{SpatiotemporalID: 1, BatchNumber: 1},
		{},
	}

	summaries := SummarizeExpeditions(records, labels)
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 summaries, got %d", len(summaries))
	}

	s := summaries[0]
	if s.ExpeditionID != 0 || s.Count != 2 {
		t.Errorf("Expected expedition 0 with 2 records, got id %d count %d", s.ExpeditionID, s.Count)
	}
	if s.Centroid.Lat() != 10 || s.Centroid.Lon() != 20.5 {
		t.Errorf("Expected centroid (10, 20.5), got (%f, %f)", s.Centroid.Lat(), s.Centroid.Lon())
	}
	if !s.Start.Equal(day(0)) || !s.End.Equal(day(2)) {
		t.Errorf("Expected date range day 0 to day 2, got %v to %v", s.Start, s.End)
	}
	if s.SpanDays != 2 {
		t.Errorf("Expected span of 2 days, got %f", s.SpanDays)
	}
	if s.ExtentKm <= 0 {
		t.Errorf("Expected a positive extent, got %f", s.ExtentKm)
	}

	if summaries[1].Count != 1 || summaries[1].SpanDays != 0 {
		t.Errorf("Expected a singleton summary, got %+v", summaries[1])
	}
}

func TestSummarizeRunAndFilter(t *testing.T) {
	records := []Record{
		makeRecord(1, 10, 20, 0),
		makeRecord(2, 10, 21, 2),
		makeRecord(3, -5, 150, 10),
	}
	labels := []Labels{
		{SpatiotemporalID: 0, BatchNumber: 1},
		{SpatiotemporalID: 0, BatchNumber: 1},
		{SpatiotemporalID: 1, BatchNumber: 1},
	}
	summaries := SummarizeExpeditions(records, labels)

	run := SummarizeRun(summaries)
	if run.TotalRecords != 3 || run.NumExpeditions != 2 || run.NumSingletons != 1 {
		t.Errorf("Expected totals 3/2/1, got %d/%d/%d",
			run.TotalRecords, run.NumExpeditions, run.NumSingletons)
	}
	if run.LargestID != 0 || run.LargestCount != 2 {
		t.Errorf("Expected expedition 0 to be largest with 2 records, got id %d count %d",
			run.LargestID, run.LargestCount)
	}
	if !run.Earliest.Equal(day(0)) || !run.Latest.Equal(day(10)) {
		t.Errorf("Expected run dates day 0 to day 10, got %v to %v", run.Earliest, run.Latest)
	}

	visible := FilterSummaries(summaries, orb.Bound{Min: orb.Point{19, 9}, Max: orb.Point{22, 11}})
	if len(visible) != 1 || visible[0].ExpeditionID != 0 {
		t.Errorf("Expected only expedition 0 in view, got %+v", visible)
	}
}

func TestGenerateTestRecords(t *testing.T) {
	a := GenerateTestRecords(100, testBounds, 42)
	b := GenerateTestRecords(100, testBounds, 42)

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Expected deterministic records for a fixed seed, record %d differs", i)
		}
	}
	for i, r := range a {
		if r.Lon < testBounds.Min[0] || r.Lon > testBounds.Max[0] ||
			r.Lat < testBounds.Min[1] || r.Lat > testBounds.Max[1] {
			t.Errorf("Record %d outside bounds: (%f, %f)", i, r.Lat, r.Lon)
		}
		if r.Date.Year() != 2019 {
			t.Errorf("Record %d dated outside the generation window: %v", i, r.Date)
		}
	}
}

func testSnapshot(t *testing.T, n int) *RunSnapshot {
	t.Helper()
	records := GenerateTestRecords(n, testBounds, 9)
	engine := NewEngine(Options{EpsKm: 25, EpsDays: 14})
	labels, err := engine.ClusterBatch(records)
	if err != nil {
		t.Fatalf("ClusterBatch failed: %v", err)
	}
	ApplyNamespace(labels, 1)
	return &RunSnapshot{
		EpsKm:       25,
		EpsDays:     14,
		MinSpatial:  1,
		MinTemporal: 1,
		BatchSize:   50000,
		Batches:     1,
		Records:     records,
		Labels:      labels,
	}
}

func assertSnapshotsEqual(t *testing.T, want, got *RunSnapshot) {
	t.Helper()
	if got.EpsKm != want.EpsKm || got.EpsDays != want.EpsDays ||
		got.MinSpatial != want.MinSpatial || got.MinTemporal != want.MinTemporal ||
		got.BatchSize != want.BatchSize || got.Batches != want.Batches {
		t.Fatalf("Configuration mismatch: want %+v, got %+v", want, got)
	}
	if len(got.Records) != len(want.Records) || len(got.Labels) != len(want.Labels) {
		t.Fatalf("Expected %d records and %d labels, got %d and %d",
			len(want.Records), len(want.Labels), len(got.Records), len(got.Labels))
	}
	for i := range want.Records {
		if got.Records[i].ID != want.Records[i].ID ||
			got.Records[i].Lat != want.Records[i].Lat ||
			got.Records[i].Lon != want.Records[i].Lon ||
			!got.Records[i].Date.Equal(want.Records[i].Date) {
			t.Fatalf("Record %d mismatch: want %+v, got %+v", i, want.Records[i], got.Records[i])
		}
		if got.Labels[i] != want.Labels[i] {
			t.Fatalf("Label %d mismatch: want %+v, got %+v", i, want.Labels[i], got.Labels[i])
		}
	}
}

func TestSnapshotCompressedRoundTrip(t *testing.T) {
	snap := testSnapshot(t, 200)
	path := filepath.Join(t.TempDir(), "run.zst")

	if err := snap.SaveCompressed(path); err != nil {
		t.Fatalf("SaveCompressed failed: %v", err)
	}
	loaded, err := LoadCompressedSnapshot(path)
	if err != nil {
		t.Fatalf("LoadCompressedSnapshot failed: %v", err)
	}
	assertSnapshotsEqual(t, snap, loaded)

	opts := loaded.ClusterOptions()
	if opts.EpsKm != 25 || opts.EpsDays != 14 {
		t.Errorf("Expected snapshot options 25 km / 14 days, got %+v", opts)
	}
}

func TestSnapshotMMapRoundTrip(t *testing.T) {
	snap := testSnapshot(t, 150)
	dir := t.TempDir()

	plain := filepath.Join(dir, "run.bin")
	if err := snap.SaveMMap(plain); err != nil {
		t.Fatalf("SaveMMap failed: %v", err)
	}
	loaded, err := LoadMMapSnapshot(plain)
	if err != nil {
		t.Fatalf("LoadMMapSnapshot failed: %v", err)
	}
	assertSnapshotsEqual(t, snap, loaded)

	compressed := filepath.Join(dir, "run.bin.zst")
	if err := snap.SaveCompressedMMap(compressed); err != nil {
		t.Fatalf("SaveCompressedMMap failed: %v", err)
	}
	loaded, err = LoadCompressedMMap(compressed)
	if err != nil {
		t.Fatalf("LoadCompressedMMap failed: %v", err)
	}
	assertSnapshotsEqual(t, snap, loaded)
}
