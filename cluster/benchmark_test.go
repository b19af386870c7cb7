package cluster

import (
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/paulmach/orb"
)

var benchBounds = orb.Bound{Min: orb.Point{-125.0, 25.0}, Max: orb.Point{-67.0, 49.0}}

// benchmarkClustering runs clustering benchmarks with different record counts and reaches
func benchmarkClustering(b *testing.B, numRecords int, epsKm float64) {
	engine := NewEngine(Options{
		EpsKm:       epsKm,
		EpsDays:     7,
		MinSpatial:  1,
		MinTemporal: 1,
		Log:         false,
	})

	// Generate random records in the US region with a deterministic seed
	records := GenerateTestRecords(numRecords, benchBounds, 42)

	// Track memory usage before and after
	var memStatsBefore, memStatsAfter runtime.MemStats
	runtime.ReadMemStats(&memStatsBefore)

	// Reset timer before the actual benchmark
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := engine.ClusterBatch(records); err != nil {
			b.Fatalf("ClusterBatch failed: %v", err)
		}
	}

	b.StopTimer()

	// Measure memory after benchmark
	runtime.ReadMemStats(&memStatsAfter)
	allocMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024

	// Report additional metrics
	b.ReportMetric(allocMB, "MB/op")
}

// Benchmark with different record counts and spatial reaches
func BenchmarkClusteringSmall_TightReach(b *testing.B) {
	benchmarkClustering(b, 1000, 1)
}

func BenchmarkClusteringSmall_DefaultReach(b *testing.B) {
	benchmarkClustering(b, 1000, 10)
}

func BenchmarkClusteringSmall_WideReach(b *testing.B) {
	benchmarkClustering(b, 1000, 50)
}

func BenchmarkClusteringMedium_TightReach(b *testing.B) {
	benchmarkClustering(b, 10000, 1)
}

func BenchmarkClusteringMedium_DefaultReach(b *testing.B) {
	benchmarkClustering(b, 10000, 10)
}

func BenchmarkClusteringMedium_WideReach(b *testing.B) {
	benchmarkClustering(b, 10000, 50)
}

func BenchmarkClusteringLarge_TightReach(b *testing.B) {
	benchmarkClustering(b, 100000, 1)
}

func BenchmarkClusteringLarge_DefaultReach(b *testing.B) {
	benchmarkClustering(b, 100000, 10)
}

func BenchmarkClusteringLarge_WideReach(b *testing.B) {
	benchmarkClustering(b, 100000, 50)
}

func BenchmarkPartitionRecords(b *testing.B) {
	records := GenerateTestRecords(100000, benchBounds, 42)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		PartitionRecords(records, CoarseRadiusKm(10))
	}
}

// runBatched partitions the records and clusters each batch separately,
// the way a full run executes.
func runBatched(records []Record, engine *Engine, capacity int) error {
	partitions := PartitionRecords(records, CoarseRadiusKm(engine.Options.EpsKm))
	batches := AssignBatches(partitions, capacity)
	for _, batch := range batches {
		sub := make([]Record, len(batch.Members))
		for k, idx := range batch.Members {
			sub[k] = records[idx]
		}
		labels, err := engine.ClusterBatch(sub)
		if err != nil {
			return err
		}
		ApplyNamespace(labels, batch.Number)
	}
	return nil
}

// TestProfileClustering profiles single-batch clustering against batched runs
func TestProfileClustering(t *testing.T) {
	// Skip during normal testing unless explicitly enabled
	if testing.Short() {
		t.Skip("Skipping profile test in short mode")
	}

	recordCounts := []int{1000, 10000, 100000}
	batchSizes := []int{10000, 25000}

	fmt.Println("Starting clustering profiling...")
	fmt.Println("=================================")

	for _, numRecords := range recordCounts {
		engine := NewEngine(Options{EpsKm: 10, EpsDays: 7})
		records := GenerateTestRecords(numRecords, benchBounds, 42)

		fmt.Printf("Testing %d records\n", numRecords)

		// Measure a single whole-dataset batch
		var singleDuration time.Duration
		{
			start := time.Now()
			if _, err := engine.ClusterBatch(records); err != nil {
				t.Fatalf("single batch failed: %v", err)
			}
			singleDuration = time.Since(start)
		}
		fmt.Printf("  Single batch:  %v\n", singleDuration)

		// Measure partitioned runs at each batch size
		for _, capacity := range batchSizes {
			start := time.Now()
			if err := runBatched(records, engine, capacity); err != nil {
				t.Fatalf("batched run failed: %v", err)
			}
			batchedDuration := time.Since(start)

			improvement := float64(singleDuration-batchedDuration) / float64(singleDuration) * 100
			fmt.Printf("  Batched %-6d %v (%.2f%%)\n", capacity, batchedDuration, improvement)
		}
		fmt.Println()
	}
}
