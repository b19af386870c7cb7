package cluster

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/zstd"
)

// MMapWriter handles writing to memory-mapped files
type MMapWriter struct {
	data   mmap.MMap
	offset int
}

func NewMMapWriter(data mmap.MMap) *MMapWriter {
	return &MMapWriter{
		data:   data,
		offset: 0,
	}
}

func (w *MMapWriter) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.data[w.offset:], v)
	w.offset += 4
}

func (w *MMapWriter) WriteInt32(v int32) {
	binary.LittleEndian.PutUint32(w.data[w.offset:], uint32(v))
	w.offset += 4
}

func (w *MMapWriter) WriteInt64(v int64) {
	binary.LittleEndian.PutUint64(w.data[w.offset:], uint64(v))
	w.offset += 8
}

func (w *MMapWriter) WriteFloat64(v float64) {
	binary.LittleEndian.PutUint64(w.data[w.offset:], math.Float64bits(v))
	w.offset += 8
}

// MMapReader handles reading from memory-mapped files
type MMapReader struct {
	data   mmap.MMap
	offset int
}

func NewMMapReader(data mmap.MMap) *MMapReader {
	return &MMapReader{
		data:   data,
		offset: 0,
	}
}

func (r *MMapReader) ReadUint32() uint32 {
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v
}

func (r *MMapReader) ReadInt32() int32 {
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return int32(v)
}

func (r *MMapReader) ReadInt64() int64 {
	v := binary.LittleEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return int64(v)
}

func (r *MMapReader) ReadFloat64() float64 {
	v := binary.LittleEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return math.Float64frombits(v)
}

// calculateSize calculates total size needed for memory mapping
func (s *RunSnapshot) calculateSize() int64 {
	size := int64(0)

	// Header sizes (2 uint32s)
	size += 8

	// Configuration (2 float64s + 4 int32s)
	size += 16 + 16

	// Records (id, lat, lon, unix date)
	size += 32 * int64(len(s.Records))

	// Labels (3 ids + batch number)
	size += 28 * int64(len(s.Labels))

	return size
}

func (s *RunSnapshot) SaveMMap(filename string) error {
	// Calculate required size
	size := s.calculateSize()

	// Create and truncate file
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %v", err)
	}
	defer file.Close()

	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("failed to truncate file: %v", err)
	}

	// Memory map the file
	mmapData, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to mmap file: %v", err)
	}
	defer mmapData.Unmap()

	writer := NewMMapWriter(mmapData)

	// Write sizes
	writer.WriteUint32(uint32(len(s.Records)))
	writer.WriteUint32(uint32(len(s.Labels)))

	// Write configuration
	writer.WriteFloat64(s.EpsKm)
	writer.WriteFloat64(s.EpsDays)
	writer.WriteInt32(s.MinSpatial)
	writer.WriteInt32(s.MinTemporal)
	writer.WriteInt32(s.BatchSize)
	writer.WriteInt32(s.Batches)

	// Write records
	for _, rec := range s.Records {
		writer.WriteInt64(rec.ID)
		writer.WriteFloat64(rec.Lat)
		writer.WriteFloat64(rec.Lon)
		writer.WriteInt64(rec.Date.Unix())
	}

	// Write labels
	for _, l := range s.Labels {
		writer.WriteInt64(l.SpatialID)
		writer.WriteInt64(l.TemporalID)
		writer.WriteInt64(l.SpatiotemporalID)
		writer.WriteInt32(l.BatchNumber)
	}

	return mmapData.Flush()
}

func LoadMMapSnapshot(filename string) (*RunSnapshot, error) {
	file, err := os.OpenFile(filename, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	// Memory map the file
	mmapData, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap file: %v", err)
	}
	defer mmapData.Unmap()

	reader := NewMMapReader(mmapData)

	// Read sizes
	numRecords := reader.ReadUint32()
	numLabels := reader.ReadUint32()

	s := &RunSnapshot{
		EpsKm:       reader.ReadFloat64(),
		EpsDays:     reader.ReadFloat64(),
		MinSpatial:  reader.ReadInt32(),
		MinTemporal: reader.ReadInt32(),
		BatchSize:   reader.ReadInt32(),
		Batches:     reader.ReadInt32(),
	}

	// Read records
	s.Records = make([]Record, numRecords)
	for i := range s.Records {
		s.Records[i].ID = reader.ReadInt64()
		s.Records[i].Lat = reader.ReadFloat64()
		s.Records[i].Lon = reader.ReadFloat64()
		s.Records[i].Date = time.Unix(reader.ReadInt64(), 0).UTC()
	}

	// Read labels
	s.Labels = make([]Labels, numLabels)
	for i := range s.Labels {
		s.Labels[i].SpatialID = reader.ReadInt64()
		s.Labels[i].TemporalID = reader.ReadInt64()
		s.Labels[i].SpatiotemporalID = reader.ReadInt64()
		s.Labels[i].BatchNumber = reader.ReadInt32()
	}

	return s, nil
}

func (s *RunSnapshot) SaveCompressedMMap(filename string) error {
	// First save to temporary mmap file
	tempFile := filename + ".tmp"
	if err := s.SaveMMap(tempFile); err != nil {
		return fmt.Errorf("failed to save mmap: %v", err)
	}
	defer os.Remove(tempFile)

	// Now compress the mmap file
	src, err := os.Open(tempFile)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %v", err)
	}
	defer src.Close()

	dst, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create compressed file: %v", err)
	}
	defer dst.Close()

	enc, err := zstd.NewWriter(dst,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %v", err)
	}
	defer enc.Close()

	_, err = io.Copy(enc, src)
	if err != nil {
		return fmt.Errorf("failed to compress data: %v", err)
	}

	return nil
}

func LoadCompressedMMap(filename string) (*RunSnapshot, error) {
	// Create temporary file for decompressed data
	tempFile := filename + ".tmp"
	dst, err := os.Create(tempFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %v", err)
	}
	defer os.Remove(tempFile)
	defer dst.Close()

	// Open compressed file
	src, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed file: %v", err)
	}
	defer src.Close()

	// Create decompressor
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %v", err)
	}
	defer dec.Close()

	// Decompress to temp file
	if _, err := io.Copy(dst, dec); err != nil {
		return nil, fmt.Errorf("failed to decompress data: %v", err)
	}

	// Sync to ensure all data is written
	if err := dst.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync temp file: %v", err)
	}

	// Now load using mmap
	return LoadMMapSnapshot(tempFile)
}
