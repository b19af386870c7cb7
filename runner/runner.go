// Package runner drives full clustering runs: coarse partitioning, batch
// assignment, per-batch clustering with failure isolation, and merging the
// per-batch labels back into input order. It also keeps a registry of saved
// run snapshots with LRU eviction.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/calacademy-research/expedition-clustering/cluster"
)

// DefaultBatchSize matches the production configuration of the collections
// pipeline: large enough that most runs fit in a handful of batches, small
// enough that one batch's neighborhood structure stays in memory.
const DefaultBatchSize = 50_000

// Options configures a run.
type Options struct {
	Cluster   cluster.Options
	BatchSize int // records per batch; zero takes the default, negative disables batching
	Workers   int // concurrent batch workers; batches share no state
	Logger    *slog.Logger
}

// BatchResult reports the outcome of one batch. A failed batch leaves its
// records unlabeled (BatchNumber zero in the merged output); other batches
// are unaffected.
type BatchResult struct {
	Number      int           `json:"number"`
	Records     int           `json:"records"`
	Expeditions int           `json:"expeditions"`
	Oversized   bool          `json:"oversized,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`

	Err error `json:"-"`
}

// Result is a completed run. Labels is aligned with Records: the label at
// index i belongs to the record at index i, whatever batch it was routed
// through.
type Result struct {
	Records  []cluster.Record
	Labels   []cluster.Labels
	Batches  []BatchResult
	Failed   int
	Options  Options
	Duration time.Duration
}

// Snapshot packages the run for persistence.
func (r *Result) Snapshot() *cluster.RunSnapshot {
	return &cluster.RunSnapshot{
		EpsKm:       r.Options.Cluster.EpsKm,
		EpsDays:     r.Options.Cluster.EpsDays,
		MinSpatial:  int32(r.Options.Cluster.MinSpatial),
		MinTemporal: int32(r.Options.Cluster.MinTemporal),
		BatchSize:   int32(r.Options.BatchSize),
		Batches:     int32(len(r.Batches)),
		Records:     r.Records,
		Labels:      r.Labels,
	}
}

// Run clusters records into expeditions. Records are partitioned at twice
// the spatial threshold, partitions are packed whole into capacity-bounded
// batches, and each batch is clustered independently and namespaced into
// its own ID range, so the grouping is identical whether the run uses one
// batch or many. Batch failures are isolated: the failed batch is reported
// in the result and its records stay unlabeled, while the rest of the run
// completes. Run returns an error only when the context is cancelled or
// every batch failed.
func Run(ctx context.Context, records []cluster.Record, opts Options) (*Result, error) {
	engine := cluster.NewEngine(opts.Cluster)
	opts.Cluster = engine.Options
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "runner")

	start := time.Now()
	result := &Result{Records: records, Options: opts}
	if len(records) == 0 {
		logger.Warn("no records to cluster")
		result.Duration = time.Since(start)
		return result, nil
	}

	batches := planBatches(records, opts, logger)
	result.Labels = make([]cluster.Labels, len(records))
	result.Batches = make([]BatchResult, len(batches))

	workers := opts.Workers
	if workers > len(batches) {
		workers = len(batches)
	}

	// Each batch owns a disjoint set of record indices and its own result
	// slot, so workers never write the same memory.
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for bi := range jobs {
				result.Batches[bi] = runBatch(engine, records, batches[bi], result.Labels)
				if workers == 1 && len(batches) > 1 && bi > 0 && bi%10 == 0 {
					runtime.GC()
				}
			}
		}()
	}

feed:
	for bi := range batches {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- bi:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, br := range result.Batches {
		if br.Err != nil {
			result.Failed++
			logger.Error("batch failed", "batch", br.Number, "records", br.Records, "err", br.Err)
		}
		if br.Expeditions > cluster.IDOffset {
			logger.Warn("batch expedition count exceeds its id range",
				"batch", br.Number, "expeditions", br.Expeditions, "range", cluster.IDOffset)
		}
	}
	result.Duration = time.Since(start)

	logger.Info("run complete",
		"records", len(records),
		"batches", len(batches),
		"failed", result.Failed,
		"expeditions", cluster.CountExpeditions(result.Labels),
		"in", result.Duration.Round(time.Millisecond))

	if result.Failed == len(batches) {
		return result, fmt.Errorf("all %d batches failed", len(batches))
	}
	return result, nil
}

// planBatches builds the batch list. Batching disabled means one batch
// covering every record with no coarse pass at all.
func planBatches(records []cluster.Record, opts Options, logger *slog.Logger) []cluster.Batch {
	if opts.BatchSize <= 0 {
		members := make([]int32, len(records))
		for i := range members {
			members[i] = int32(i)
		}
		return []cluster.Batch{{Number: 1, Members: members, Size: len(members)}}
	}

	coarse := cluster.CoarseRadiusKm(opts.Cluster.EpsKm)
	partitions := cluster.PartitionRecords(records, coarse)
	batches := cluster.AssignBatches(partitions, opts.BatchSize)
	logger.Info("planned batches",
		"records", len(records),
		"partitions", len(partitions),
		"batches", len(batches),
		"coarseKm", coarse)
	for _, b := range batches {
		if b.Oversized {
			logger.Warn("partition exceeds batch capacity, keeping it whole",
				"batch", b.Number, "records", b.Size, "capacity", opts.BatchSize)
		}
	}
	return batches
}

// runBatch clusters one batch and scatters its namespaced labels into the
// shared slice. On failure the batch's label slots are left zeroed.
func runBatch(engine *cluster.Engine, records []cluster.Record, batch cluster.Batch, labels []cluster.Labels) BatchResult {
	br := BatchResult{
		Number:    batch.Number,
		Records:   len(batch.Members),
		Oversized: batch.Oversized,
	}
	start := time.Now()

	sub := make([]cluster.Record, len(batch.Members))
	for k, idx := range batch.Members {
		sub[k] = records[idx]
	}

	local, err := engine.ClusterBatch(sub)
	if err != nil {
		br.Err = err
		br.Error = err.Error()
		br.Duration = time.Since(start)
		return br
	}

	br.Expeditions = cluster.CountExpeditions(local)
	cluster.ApplyNamespace(local, batch.Number)
	for k, idx := range batch.Members {
		labels[idx] = local[k]
	}
	br.Duration = time.Since(start)
	return br
}

// Registry caches completed run snapshots loaded from disk, keyed by the
// short id embedded in the snapshot filename. At most maxLoaded snapshots
// stay in memory; the least recently used is evicted first, and snapshots
// untouched for 30 minutes are dropped by a background sweep.
type Registry struct {
	dir        string
	mu         sync.RWMutex
	runs       map[string]*cluster.RunSnapshot
	lastAccess map[string]time.Time
	maxLoaded  int
	logger     *slog.Logger
}

func NewRegistry(dir string, maxLoaded int, logger *slog.Logger) *Registry {
	if maxLoaded < 1 {
		maxLoaded = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Registry{
		dir:        dir,
		runs:       make(map[string]*cluster.RunSnapshot),
		lastAccess: make(map[string]time.Time),
		maxLoaded:  maxLoaded,
		logger:     logger.With("component", "registry"),
	}

	go g.cleanupInactiveRuns()

	return g
}

// Save writes the snapshot to the registry directory and keeps it loaded.
func (g *Registry) Save(s *cluster.RunSnapshot) (RunInfo, error) {
	if err := ensureDir(g.dir); err != nil {
		return RunInfo{}, fmt.Errorf("failed to create runs directory: %v", err)
	}
	path := generateRunFilename(g.dir, len(s.Records))
	if err := s.SaveCompressed(path); err != nil {
		return RunInfo{}, fmt.Errorf("failed to save run: %v", err)
	}

	info, err := statRunFile(path)
	if err != nil {
		return RunInfo{}, err
	}

	g.mu.Lock()
	g.evictToFitLocked()
	g.runs[info.ID] = s
	g.lastAccess[info.ID] = time.Now()
	g.mu.Unlock()

	g.logger.Info("saved run", "id", info.ID, "records", info.NumRecords, "size", info.FileSize)
	return info, nil
}

// Load returns the snapshot with the given id, reading it from disk if it
// is not already in memory.
func (g *Registry) Load(id string) (*cluster.RunSnapshot, error) {
	if err := g.loadRunIfNeeded(id); err != nil {
		return nil, err
	}

	g.mu.RLock()
	s := g.runs[id]
	g.mu.RUnlock()
	return s, nil
}

// List describes every saved run in the registry directory, newest first.
func (g *Registry) List() ([]RunInfo, error) {
	return ListSavedRuns(g.dir)
}

func (g *Registry) loadRunIfNeeded(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Update access time if the run is already loaded
	if _, exists := g.runs[id]; exists {
		g.lastAccess[id] = time.Now()
		return nil
	}

	g.evictToFitLocked()

	runFile, err := findRunFile(g.dir, id)
	if err != nil {
		return fmt.Errorf("failed to find run file: %v", err)
	}

	snapshot, err := cluster.LoadCompressedSnapshot(runFile)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %v", id, err)
	}

	g.runs[id] = snapshot
	g.lastAccess[id] = time.Now()
	return nil
}

// evictToFitLocked removes least recently used snapshots until there is
// room for one more. Callers must hold the write lock.
func (g *Registry) evictToFitLocked() {
	for len(g.runs) >= g.maxLoaded {
		var oldestID string
		var oldestTime time.Time
		first := true

		for id, accessTime := range g.lastAccess {
			if first || accessTime.Before(oldestTime) {
				oldestID = id
				oldestTime = accessTime
				first = false
			}
		}
		if oldestID == "" {
			return
		}
		delete(g.runs, oldestID)
		delete(g.lastAccess, oldestID)
		g.logger.Info("evicted run", "id", oldestID)
	}
}

func (g *Registry) cleanupInactiveRuns() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		g.mu.Lock()
		now := time.Now()

		var toRemove []string
		for id, lastAccess := range g.lastAccess {
			if now.Sub(lastAccess) > 30*time.Minute {
				toRemove = append(toRemove, id)
			}
		}
		for _, id := range toRemove {
			delete(g.runs, id)
			delete(g.lastAccess, id)
		}

		g.mu.Unlock()

		if len(toRemove) > 0 {
			g.logger.Info("dropped inactive runs", "count", len(toRemove))
		}
	}
}
