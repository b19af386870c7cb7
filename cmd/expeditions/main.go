package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"time"

	"github.com/calacademy-research/expedition-clustering/cluster"
	"github.com/calacademy-research/expedition-clustering/geoclass"
	"github.com/calacademy-research/expedition-clustering/runner"
	"github.com/calacademy-research/expedition-clustering/source"
)

var (
	csvPath     = flag.String("csv", "", "cluster a portal CSV export instead of the database")
	useDB       = flag.Bool("db", false, "cluster specimens from the collections database")
	limit       = flag.Int("limit", 0, "maximum rows to load, 0 loads everything")
	epsKm       = flag.Float64("e-dist", cluster.DefaultEpsKm, "spatial reach in kilometers")
	epsDays     = flag.Float64("e-days", cluster.DefaultEpsDays, "temporal reach in days")
	minSpatial  = flag.Int("min-spatial", 1, "minimum neighborhood size for the spatial pass")
	minTemporal = flag.Int("min-temporal", 1, "minimum neighborhood size for the temporal pass")
	batchSize   = flag.Int("batch-size", runner.DefaultBatchSize, "records per batch")
	noBatch     = flag.Bool("no-batch", false, "cluster everything as a single batch")
	workers     = flag.Int("workers", 1, "concurrent batch workers")
	output      = flag.String("output", "data/clustered_expeditions.csv", "labeled csv output path")
	snapshotDir = flag.String("snapshot", "", "also save a run snapshot into this directory")
	redactMode  = flag.String("redact", "", "redaction policy for flagged specimens: mask or drop")
	showTop     = flag.Bool("summary", false, "print the largest expeditions with their geography")
	verbose     = flag.Bool("v", false, "log per-batch clustering progress")
)

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if *csvPath == "" && !*useDB {
		fmt.Fprintln(os.Stderr, "specify a specimen source: -csv FILE or -db")
		flag.Usage()
		os.Exit(2)
	}
	if *csvPath != "" && *useDB {
		fmt.Fprintln(os.Stderr, "-csv and -db are mutually exclusive")
		os.Exit(2)
	}

	ctx := context.Background()

	var (
		rows []source.Row
		db   *source.DB
		err  error
	)
	if *csvPath != "" {
		rows, err = source.ReadPortalCSV(*csvPath, *limit)
	} else {
		cfg := source.LoadDBConfig()
		db, err = source.OpenDB(cfg)
		if err != nil {
			fatal(logger, "failed to open database", "host", cfg.Host, "err", err)
		}
		defer db.Close()
		rows, err = db.FetchRows(ctx, *limit)
	}
	if err != nil {
		fatal(logger, "failed to load specimens", "err", err)
	}

	kept, records, drops := source.Normalize(rows)
	logger.Info("loaded specimens",
		"rows", len(rows),
		"clusterable", len(records),
		"duplicates", drops.Duplicate,
		"badCoordinates", drops.MissingCoordinate+drops.CoordinateRange,
		"badDates", drops.MissingDate+drops.DateRange)
	if len(records) == 0 {
		fatal(logger, "no clusterable records")
	}

	size := *batchSize
	if *noBatch {
		size = -1
	}
	result, err := runner.Run(ctx, records, runner.Options{
		Cluster: cluster.Options{
			EpsKm:       *epsKm,
			EpsDays:     *epsDays,
			MinSpatial:  *minSpatial,
			MinTemporal: *minTemporal,
			Log:         *verbose,
		},
		BatchSize: size,
		Workers:   *workers,
		Logger:    logger,
	})
	if err != nil {
		fatal(logger, "clustering failed", "err", err)
	}

	summaries := cluster.SummarizeExpeditions(result.Records, result.Labels)
	printResults(result, summaries)

	outRows, outLabels := kept, result.Labels
	if *redactMode != "" {
		policy, err := source.ParsePolicy(*redactMode)
		if err != nil {
			fatal(logger, "invalid -redact value", "err", err)
		}

		var flags source.Flags
		if db != nil {
			ids := make([]int64, len(kept))
			for i, r := range kept {
				ids[i] = r.CollectionObjectID
			}
			flags, err = db.FetchRedactionFlags(ctx, ids)
			if err != nil {
				fatal(logger, "failed to load redaction flags", "err", err)
			}
		} else {
			flags = source.FlagsFromRows(kept)
		}

		var affected int
		outRows, outLabels, affected = source.Redact(kept, result.Labels, flags, policy)

		if policy == source.PolicyMask {
			if v := source.VerifyMask(outRows, flags); !v.OK() {
				fatal(logger, "redaction verification failed",
					"badLocality", v.BadLocality, "badCoordinate", v.BadCoordinate)
			}
		} else if n := source.VerifyDrop(outRows, flags); n > 0 {
			fatal(logger, "redaction verification failed", "remaining", n)
		}
		logger.Info("redaction applied", "policy", *redactMode, "flagged", len(flags), "specimens", affected)
	}

	if err := source.WriteLabeledCSV(*output, outRows, outLabels); err != nil {
		fatal(logger, "failed to write labeled output", "err", err)
	}
	logger.Info("wrote labeled specimens", "path", *output, "rows", len(outRows))

	if *snapshotDir != "" {
		registry := runner.NewRegistry(*snapshotDir, 1, logger)
		if _, err := registry.Save(result.Snapshot()); err != nil {
			fatal(logger, "failed to save snapshot", "err", err)
		}
	}

	if *showTop {
		printLargestExpeditions(summaries, expeditionElevations(kept, result.Labels))
	}
}

func fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	os.Exit(1)
}

func printResults(result *runner.Result, summaries []cluster.ExpeditionSummary) {
	run := cluster.SummarizeRun(summaries)

	fmt.Printf("\n=== Clustering results ===\n")
	fmt.Printf("Records:     %d\n", run.TotalRecords)
	fmt.Printf("Expeditions: %d\n", run.NumExpeditions)
	fmt.Printf("Singletons:  %d\n", run.NumSingletons)
	if run.NumExpeditions > 0 {
		fmt.Printf("Mean size:   %.1f records\n", float64(run.TotalRecords)/float64(run.NumExpeditions))
		fmt.Printf("Median size: %d records\n", medianCount(summaries))
		fmt.Printf("Largest:     %d records (expedition %d)\n", run.LargestCount, run.LargestID)
		fmt.Printf("Date range:  %s to %s\n",
			run.Earliest.Format("2006-01-02"), run.Latest.Format("2006-01-02"))
	}
	fmt.Printf("Batches:     %d (%d failed)\n", len(result.Batches), result.Failed)
	fmt.Printf("Elapsed:     %v\n", result.Duration.Round(time.Millisecond))
}

func medianCount(summaries []cluster.ExpeditionSummary) int {
	counts := make([]int, len(summaries))
	for i, s := range summaries {
		counts[i] = s.Count
	}
	sort.Ints(counts)
	return counts[len(counts)/2]
}

// expeditionElevations averages the reported specimen elevations of each
// expedition's rows. Expeditions with no elevation data are absent.
func expeditionElevations(rows []source.Row, labels []cluster.Labels) map[int64]float64 {
	sums := make(map[int64]float64)
	counts := make(map[int64]int)
	for i, row := range rows {
		if i >= len(labels) || labels[i].BatchNumber == 0 || !row.MinElevation.Valid {
			continue
		}
		id := labels[i].SpatiotemporalID
		sums[id] += row.MinElevation.Float64
		counts[id]++
	}
	out := make(map[int64]float64, len(sums))
	for id, sum := range sums {
		out[id] = sum / float64(counts[id])
	}
	return out
}

func printLargestExpeditions(summaries []cluster.ExpeditionSummary, elevations map[int64]float64) {
	bySize := make([]cluster.ExpeditionSummary, len(summaries))
	copy(bySize, summaries)
	sort.SliceStable(bySize, func(i, j int) bool { return bySize[i].Count > bySize[j].Count })
	if len(bySize) > 15 {
		bySize = bySize[:15]
	}

	fmt.Printf("\n=== Largest expeditions ===\n")
	fmt.Printf("%-12s | %-7s | %-24s | %-10s | %s\n",
		"Expedition", "Records", "Dates", "Extent", "Geography")
	for _, s := range bySize {
		elevation, ok := elevations[s.ExpeditionID]
		if !ok {
			elevation = math.NaN()
		}
		geo := geoclass.ClassifyPoint(s.Centroid, elevation)
		place := geo.Realm
		if geo.Region != "" {
			place = fmt.Sprintf("%s (%s)", geo.Region, geo.Realm)
		}
		fmt.Printf("%-12d | %-7d | %s to %s | %7.1f km | %s, %s\n",
			s.ExpeditionID, s.Count,
			s.Start.Format("2006-01-02"), s.End.Format("2006-01-02"),
			s.ExtentKm, place, geo.Biome)
	}
}
