package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// ReplaySource replays a recorded labeled_stream.csv as if it were a
// live stream. Used to re-run the engine against a past session and in
// tests. When paced, chunks are delivered at roughly the recorded
// cadence; otherwise as fast as the loop pulls.
type ReplaySource struct {
	file      *os.File
	reader    *csv.Reader
	info      StreamInfo
	chunkSize int
	paced     bool

	lastTail float64
	haveTail bool
}

// NewReplaySource opens the recording and validates its header against
// the configured channel layout.
func NewReplaySource(path string, cfg StreamConfig, paced bool) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file: %w", err)
	}

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read replay header: %w", err)
	}
	if len(header) != 2+len(cfg.ChannelNames) {
		f.Close()
		return nil, fmt.Errorf("replay file has %d columns, want %d", len(header), 2+len(cfg.ChannelNames))
	}

	chunkSize := int(cfg.NominalRate / 10)
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &ReplaySource{
		file:      f,
		reader:    r,
		chunkSize: chunkSize,
		paced:     paced,
		info: StreamInfo{
			NominalRate:  cfg.NominalRate,
			ChannelNames: append([]string(nil), cfg.ChannelNames...),
		},
	}, nil
}

// Info returns the static stream metadata.
func (s *ReplaySource) Info() StreamInfo {
	return s.info
}

// PullChunk returns the next batch of recorded samples. io.EOF signals
// the end of the recording and terminates the acquisition loop cleanly.
func (s *ReplaySource) PullChunk(timeout time.Duration) (Chunk, error) {
	var chunk Chunk
	for len(chunk.Timestamps) < s.chunkSize {
		row, err := s.reader.Read()
		if err == io.EOF {
			if chunk.Len() > 0 {
				break
			}
			return Chunk{}, io.EOF
		}
		if err != nil {
			return Chunk{}, fmt.Errorf("failed to read replay row: %w", err)
		}

		t, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return Chunk{}, fmt.Errorf("bad replay timestamp %q: %w", row[1], err)
		}
		sample := make([]float32, len(row)-2)
		for i, field := range row[2:] {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return Chunk{}, fmt.Errorf("bad replay sample %q: %w", field, err)
			}
			sample[i] = float32(v)
		}
		chunk.Timestamps = append(chunk.Timestamps, t)
		chunk.Data = append(chunk.Data, sample)
	}

	if s.paced && chunk.Len() > 0 {
		tail := chunk.Timestamps[len(chunk.Timestamps)-1]
		if s.haveTail && tail > s.lastTail {
			delay := time.Duration((tail - s.lastTail) * float64(time.Second))
			if delay > timeout {
				delay = timeout
			}
			time.Sleep(delay)
		}
		s.lastTail = tail
		s.haveTail = true
	}
	return chunk, nil
}

// Close closes the recording file.
func (s *ReplaySource) Close() error {
	return s.file.Close()
}
