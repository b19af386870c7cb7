package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunInfo describes a saved run snapshot on disk.
type RunInfo struct {
	ID         string    `json:"id"`
	NumRecords int       `json:"numRecords"`
	Timestamp  time.Time `json:"timestamp"`
	FileSize   int64     `json:"fileSize"`
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// generateRunFilename builds a unique snapshot path of the form
// run-{records}p-{timestamp}-{id}.zst, where id is the first uuid segment.
func generateRunFilename(dir string, numRecords int) string {
	timestamp := time.Now().Format("20060102-150405")
	id := uuid.New().String()[:8]
	return filepath.Join(dir, fmt.Sprintf("run-%dp-%s-%s.zst", numRecords, timestamp, id))
}

// parseRunFilename recovers the RunInfo encoded in a snapshot filename.
func parseRunFilename(name string) (RunInfo, bool) {
	if !strings.HasSuffix(name, ".zst") {
		return RunInfo{}, false
	}
	parts := strings.Split(strings.TrimSuffix(name, ".zst"), "-")
	if len(parts) != 5 || parts[0] != "run" || !strings.HasSuffix(parts[1], "p") {
		return RunInfo{}, false
	}

	numRecords, err := strconv.Atoi(strings.TrimSuffix(parts[1], "p"))
	if err != nil {
		return RunInfo{}, false
	}
	timestamp, err := time.Parse("20060102-150405", parts[2]+"-"+parts[3])
	if err != nil {
		return RunInfo{}, false
	}

	return RunInfo{
		ID:         parts[4],
		NumRecords: numRecords,
		Timestamp:  timestamp,
	}, true
}

func statRunFile(path string) (RunInfo, error) {
	info, ok := parseRunFilename(filepath.Base(path))
	if !ok {
		return RunInfo{}, fmt.Errorf("unrecognized run filename: %s", filepath.Base(path))
	}
	fi, err := os.Stat(path)
	if err != nil {
		return RunInfo{}, fmt.Errorf("failed to stat run file: %v", err)
	}
	info.FileSize = fi.Size()
	return info, nil
}

// ListSavedRuns scans dir for run snapshots and returns them newest first.
// Files that do not match the snapshot naming scheme are ignored.
func ListSavedRuns(dir string) ([]RunInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read runs directory: %v", err)
	}

	var runs []RunInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, ok := parseRunFilename(entry.Name())
		if !ok {
			continue
		}
		if fi, err := entry.Info(); err == nil {
			info.FileSize = fi.Size()
		}
		runs = append(runs, info)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

// findRunFile locates the snapshot whose filename carries the given id.
func findRunFile(dir, id string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read runs directory: %v", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zst") {
			continue
		}
		if strings.Contains(entry.Name(), id) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("no run file found for id %s", id)
}
