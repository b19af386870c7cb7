package cluster

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
)

// RunSnapshot is a persisted clustering run: the records, their namespaced
// labels, and the configuration that produced them.
type RunSnapshot struct {
	EpsKm       float64
	EpsDays     float64
	MinSpatial  int32
	MinTemporal int32
	BatchSize   int32
	Batches     int32
	Records     []Record
	Labels      []Labels
}

// ClusterOptions reconstructs engine options from the snapshot header.
func (s *RunSnapshot) ClusterOptions() Options {
	return Options{
		EpsKm:       s.EpsKm,
		EpsDays:     s.EpsDays,
		MinSpatial:  int(s.MinSpatial),
		MinTemporal: int(s.MinTemporal),
	}
}

func (s *RunSnapshot) SaveCompressed(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %v", err)
	}
	defer file.Close()

	bufWriter := bufio.NewWriterSize(file, 1024*1024)
	enc, err := zstd.NewWriter(bufWriter,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %v", err)
	}
	defer enc.Close()

	// Write sizes first for allocation
	binary.Write(enc, binary.LittleEndian, uint32(len(s.Records)))
	binary.Write(enc, binary.LittleEndian, uint32(len(s.Labels)))

	// Write configuration
	binary.Write(enc, binary.LittleEndian, s.EpsKm)
	binary.Write(enc, binary.LittleEndian, s.EpsDays)
	binary.Write(enc, binary.LittleEndian, s.MinSpatial)
	binary.Write(enc, binary.LittleEndian, s.MinTemporal)
	binary.Write(enc, binary.LittleEndian, s.BatchSize)
	binary.Write(enc, binary.LittleEndian, s.Batches)

	// Write records
	for _, r := range s.Records {
		binary.Write(enc, binary.LittleEndian, r.ID)
		binary.Write(enc, binary.LittleEndian, r.Lat)
		binary.Write(enc, binary.LittleEndian, r.Lon)
		binary.Write(enc, binary.LittleEndian, r.Date.Unix())
	}

	// Write labels
	for _, l := range s.Labels {
		binary.Write(enc, binary.LittleEndian, l.SpatialID)
		binary.Write(enc, binary.LittleEndian, l.TemporalID)
		binary.Write(enc, binary.LittleEndian, l.SpatiotemporalID)
		if err := binary.Write(enc, binary.LittleEndian, l.BatchNumber); err != nil {
			return fmt.Errorf("failed to write labels: %v", err)
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %v", err)
	}

	if err := bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %v", err)
	}

	return nil
}

func LoadCompressedSnapshot(filename string) (*RunSnapshot, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	dec, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %v", err)
	}
	defer dec.Close()

	// Read sizes first
	var numRecords, numLabels uint32
	binary.Read(dec, binary.LittleEndian, &numRecords)
	if err := binary.Read(dec, binary.LittleEndian, &numLabels); err != nil {
		return nil, fmt.Errorf("failed to read header: %v", err)
	}
	if numLabels != 0 && numLabels != numRecords {
		return nil, fmt.Errorf("corrupt snapshot: %d records but %d labels", numRecords, numLabels)
	}

	s := &RunSnapshot{}
	binary.Read(dec, binary.LittleEndian, &s.EpsKm)
	binary.Read(dec, binary.LittleEndian, &s.EpsDays)
	binary.Read(dec, binary.LittleEndian, &s.MinSpatial)
	binary.Read(dec, binary.LittleEndian, &s.MinTemporal)
	binary.Read(dec, binary.LittleEndian, &s.BatchSize)
	if err := binary.Read(dec, binary.LittleEndian, &s.Batches); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %v", err)
	}

	// Read records with exact pre-allocation
	s.Records = make([]Record, numRecords)
	for i := range s.Records {
		var unix int64
		binary.Read(dec, binary.LittleEndian, &s.Records[i].ID)
		binary.Read(dec, binary.LittleEndian, &s.Records[i].Lat)
		binary.Read(dec, binary.LittleEndian, &s.Records[i].Lon)
		if err := binary.Read(dec, binary.LittleEndian, &unix); err != nil {
			return nil, fmt.Errorf("failed to read record %d: %v", i, err)
		}
		s.Records[i].Date = time.Unix(unix, 0).UTC()
	}

	// Read labels
	s.Labels = make([]Labels, numLabels)
	for i := range s.Labels {
		binary.Read(dec, binary.LittleEndian, &s.Labels[i].SpatialID)
		binary.Read(dec, binary.LittleEndian, &s.Labels[i].TemporalID)
		binary.Read(dec, binary.LittleEndian, &s.Labels[i].SpatiotemporalID)
		if err := binary.Read(dec, binary.LittleEndian, &s.Labels[i].BatchNumber); err != nil {
			return nil, fmt.Errorf("failed to read label %d: %v", i, err)
		}
	}

	return s, nil
}
