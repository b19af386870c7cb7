package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/paulmach/orb"

	"github.com/calacademy-research/expedition-clustering/cluster"
)

var (
	cpuprofile  = flag.String("cpuprofile", "", "write cpu profile to file")
	memprofile  = flag.String("memprofile", "", "write memory profile to file")
	heapprofile = flag.String("heapprofile", "", "write heap profile to file")
	numRecords  = flag.Int("records", 100000, "number of records to generate")
	epsKm       = flag.Float64("eps", cluster.DefaultEpsKm, "spatial reach in kilometers")
	epsDays     = flag.Float64("eps-days", cluster.DefaultEpsDays, "temporal reach in days")
	testall     = flag.Bool("testall", false, "test all configurations")
)

// profileBounds covers the Continental US, the densest region in the
// collections database.
var profileBounds = orb.Bound{Min: orb.Point{-125.0, 25.0}, Max: orb.Point{-67.0, 49.0}}

func runSingleProfile(numRecords int, epsKm, epsDays float64) {
	fmt.Printf("Profiling %d records at eps %.1f km / %.1f days\n", numRecords, epsKm, epsDays)

	engine := cluster.NewEngine(cluster.Options{
		EpsKm:   epsKm,
		EpsDays: epsDays,
	})

	// Deterministic seed for reproducibility
	records := cluster.GenerateTestRecords(numRecords, profileBounds, 42)

	// Measure memory before clustering
	var memStatsBefore, memStatsAfter runtime.MemStats
	runtime.ReadMemStats(&memStatsBefore)

	// Time the clustering
	start := time.Now()
	labels, err := engine.ClusterBatch(records)
	duration := time.Since(start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Clustering failed: %v\n", err)
		return
	}

	// Measure memory after clustering
	runtime.ReadMemStats(&memStatsAfter)
	allocMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024

	fmt.Printf("Clustering completed in %v\n", duration)
	fmt.Printf("Expeditions found: %d\n", cluster.CountExpeditions(labels))
	fmt.Printf("Memory allocated: %.2f MB\n", allocMB)
	fmt.Printf("Memory usage: %.2f MB\n", float64(memStatsAfter.Alloc)/1024/1024)
}

func runProfileBattery() {
	recordCounts := []int{1000, 10000, 50000, 100000}
	epsValues := []float64{1, 5, 10, 25, 50}

	fmt.Println("Running comprehensive profile battery...")
	fmt.Println("=======================================")

	// Table header
	fmt.Printf("%-10s | %-10s | %-15s | %-12s | %-11s | %-10s\n",
		"Records", "Eps (km)", "Duration", "Expeditions", "Memory (MB)", "GC Runs")
	fmt.Printf("%s\n", "--------------------------------------------------------------------------------")

	for _, count := range recordCounts {
		for _, eps := range epsValues {
			engine := cluster.NewEngine(cluster.Options{
				EpsKm:   eps,
				EpsDays: cluster.DefaultEpsDays,
			})
			records := cluster.GenerateTestRecords(count, profileBounds, 42)

			// Collect GC stats before
			var memStatsBefore, memStatsAfter runtime.MemStats
			runtime.ReadMemStats(&memStatsBefore)

			// Time the execution
			start := time.Now()
			labels, err := engine.ClusterBatch(records)
			duration := time.Since(start)

			// Collect stats after
			runtime.ReadMemStats(&memStatsAfter)
			memMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024
			gcRuns := memStatsAfter.NumGC - memStatsBefore.NumGC

			expeditions := 0
			if err == nil {
				expeditions = cluster.CountExpeditions(labels)
			}

			// Print result row
			fmt.Printf("%-10d | %-10.1f | %-15s | %-12d | %-11.2f | %-10d\n",
				count, eps, duration, expeditions, memMB, gcRuns)
		}

		// Add separator between record counts
		fmt.Printf("%s\n", "--------------------------------------------------------------------------------")
	}
}

func main() {
	flag.Parse()

	// Set up CPU profiling if requested
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			return
		}
		defer f.Close()

		fmt.Println("Starting CPU profiling...")
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			return
		}
		defer pprof.StopCPUProfile()
	}

	// Run tests
	if *testall {
		runProfileBattery()
	} else {
		runSingleProfile(*numRecords, *epsKm, *epsDays)
	}

	// Write memory profile if requested
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create memory profile: %v\n", err)
			return
		}
		defer f.Close()
		runtime.GC() // Get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write memory profile: %v\n", err)
		}
	}

	// Write heap profile if requested
	if *heapprofile != "" {
		f, err := os.Create(*heapprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create heap profile: %v\n", err)
			return
		}
		defer f.Close()

		memProfile := pprof.Lookup("heap")
		if memProfile == nil {
			fmt.Fprintf(os.Stderr, "Could not find heap profile\n")
			return
		}

		if err := memProfile.WriteTo(f, 0); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write heap profile: %v\n", err)
		}
	}
}
