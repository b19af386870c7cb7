package main

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"

	"github.com/calacademy-research/expedition-clustering/cluster"
	"github.com/calacademy-research/expedition-clustering/geoclass"
	"github.com/calacademy-research/expedition-clustering/runner"
)

const RUN_SAVE_DIR = "data/runs"

// Demo runs generate synthetic records across the Continental US.
var continentalUS = orb.Bound{Min: orb.Point{-125.0, 25.0}, Max: orb.Point{-67.0, 49.0}}

type ExpeditionServer struct {
	registry *runner.Registry
	logger   *slog.Logger

	mu        sync.RWMutex
	snapshot  *cluster.RunSnapshot
	summaries []cluster.ExpeditionSummary
}

func NewExpeditionServer(logger *slog.Logger) *ExpeditionServer {
	return &ExpeditionServer{
		registry: runner.NewRegistry(RUN_SAVE_DIR, 2, logger),
		logger:   logger,
	}
}

// setSnapshot swaps in a run and precomputes its expedition summaries, so
// map requests only filter.
func (s *ExpeditionServer) setSnapshot(snap *cluster.RunSnapshot) {
	summaries := cluster.SummarizeExpeditions(snap.Records, snap.Labels)
	s.mu.Lock()
	s.snapshot = snap
	s.summaries = summaries
	s.mu.Unlock()
}

func (s *ExpeditionServer) current() (*cluster.RunSnapshot, []cluster.ExpeditionSummary) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.summaries
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// boundsFromQuery parses the viewport parameters shared by the expedition
// endpoints. It writes the error response itself and reports success.
func boundsFromQuery(c *gin.Context) (orb.Bound, bool) {
	north, err := strconv.ParseFloat(c.Query("north"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid north parameter"})
		return orb.Bound{}, false
	}

	south, err := strconv.ParseFloat(c.Query("south"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid south parameter"})
		return orb.Bound{}, false
	}

	east, err := strconv.ParseFloat(c.Query("east"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid east parameter"})
		return orb.Bound{}, false
	}

	west, err := strconv.ParseFloat(c.Query("west"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid west parameter"})
		return orb.Bound{}, false
	}

	return orb.Bound{Min: orb.Point{west, south}, Max: orb.Point{east, north}}, true
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := os.MkdirAll(RUN_SAVE_DIR, 0755); err != nil {
		fmt.Printf("Error creating runs directory: %v\n", err)
	}

	server := NewExpeditionServer(logger)
	fmt.Println("Started with no run loaded - create or load one via the API...")

	r := gin.Default()

	// Enable CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Expeditions inside the current viewport, as GeoJSON
	r.GET("/api/expeditions", func(c *gin.Context) {
		snap, summaries := server.current()
		if snap == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "No run loaded"})
			return
		}

		bounds, ok := boundsFromQuery(c)
		if !ok {
			return
		}

		visible := cluster.FilterSummaries(summaries, bounds)
		fmt.Printf("Returning %d of %d expeditions for bounds %+v\n",
			len(visible), len(summaries), bounds)

		features := make([]map[string]interface{}, len(visible))
		for i, s := range visible {
			geo := geoclass.ClassifyPoint(s.Centroid, math.NaN())

			properties := map[string]interface{}{
				"expedition":  s.ExpeditionID,
				"batch":       s.BatchNumber,
				"count":       s.Count,
				"start":       s.Start.Format("2006-01-02"),
				"end":         s.End.Format("2006-01-02"),
				"spanDays":    s.SpanDays,
				"extentKm":    s.ExtentKm,
				"realm":       geo.Realm,
				"environment": geo.Environment,
			}
			if geo.Region != "" {
				properties["region"] = geo.Region
			}

			features[i] = map[string]interface{}{
				"type": "Feature",
				"geometry": map[string]interface{}{
					"type":        "Point",
					"coordinates": []float64{s.Centroid.Lon(), s.Centroid.Lat()},
				},
				"properties": properties,
			}
		}

		c.JSON(http.StatusOK, map[string]interface{}{
			"type":     "FeatureCollection",
			"features": features,
		})
	})

	// Whole-run rollup with the realm distribution
	r.GET("/api/expeditions/summary", func(c *gin.Context) {
		snap, summaries := server.current()
		if snap == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "No run loaded"})
			return
		}

		realms := make(map[string]int)
		for _, s := range summaries {
			realms[geoclass.ClassifyPoint(s.Centroid, math.NaN()).Realm]++
		}

		c.JSON(http.StatusOK, gin.H{
			"run":     cluster.SummarizeRun(summaries),
			"realms":  realms,
			"epsKm":   snap.EpsKm,
			"epsDays": snap.EpsDays,
			"batches": snap.Batches,
		})
	})

	// List saved runs
	r.GET("/api/runs/list", func(c *gin.Context) {
		runs, err := server.registry.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, runs)
	})

	// Create a run over synthetic records
	r.POST("/api/runs", func(c *gin.Context) {
		var req struct {
			NumRecords int     `json:"numRecords"`
			EpsKm      float64 `json:"epsKm"`
			EpsDays    float64 `json:"epsDays"`
			BatchSize  int     `json:"batchSize"`
			Workers    int     `json:"workers"`
			Seed       int64   `json:"seed"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if req.NumRecords <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "numRecords must be positive"})
			return
		}

		seed := req.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}

		fmt.Printf("\n=== Creating run with %d synthetic records ===\n", req.NumRecords)
		records := cluster.GenerateTestRecords(req.NumRecords, continentalUS, seed)

		result, err := runner.Run(c.Request.Context(), records, runner.Options{
			Cluster: cluster.Options{
				EpsKm:   req.EpsKm,
				EpsDays: req.EpsDays,
			},
			BatchSize: req.BatchSize,
			Workers:   req.Workers,
			Logger:    logger,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		snap := result.Snapshot()
		info, err := server.registry.Save(snap)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		server.setSnapshot(snap)

		fmt.Printf("Created run %s (%s)\n", info.ID, formatFileSize(info.FileSize))
		c.JSON(http.StatusOK, gin.H{
			"message":     "Run created",
			"runInfo":     info,
			"expeditions": cluster.CountExpeditions(snap.Labels),
			"batches":     result.Batches,
		})
	})

	// Load a saved run by id
	r.POST("/api/runs/load/:id", func(c *gin.Context) {
		id := c.Param("id")
		fmt.Printf("Received request to load run with ID: %s\n", id)

		loadStart := time.Now()
		snap, err := server.registry.Load(id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		server.setSnapshot(snap)
		fmt.Printf("Run loaded in %v\n", time.Since(loadStart))

		c.JSON(http.StatusOK, gin.H{
			"message":     "Run loaded successfully",
			"records":     len(snap.Records),
			"expeditions": cluster.CountExpeditions(snap.Labels),
		})
	})

	// Create a channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		fmt.Println("Starting server on :8000...")
		if err := r.Run(":8000"); err != nil {
			fmt.Printf("Server error: %v\n", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	fmt.Println("\nShutting down server...")
	fmt.Println("Server stopped")
}
