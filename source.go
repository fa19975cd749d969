package main

import (
	"errors"
	"time"
)

// Chunk is a batch of consecutive samples delivered by one pull.
// Data is sample-major: Data[i][ch] is channel ch of sample i.
// An empty chunk (Len() == 0) means no data arrived within the pull
// timeout, which is an ordinary condition, not an error.
type Chunk struct {
	Timestamps []float64
	Data       [][]float32
}

// Len returns the number of samples in the chunk.
func (c Chunk) Len() int {
	return len(c.Timestamps)
}

// StreamInfo is the static metadata declared by a sample source.
type StreamInfo struct {
	NominalRate  float64
	ChannelNames []string
}

// ChannelCount returns the declared number of channels.
func (si StreamInfo) ChannelCount() int {
	return len(si.ChannelNames)
}

// ErrStreamLost indicates the source is gone for good; the acquisition
// loop terminates when it sees this error.
var ErrStreamLost = errors.New("sample stream lost")

// SampleSource delivers timestamped multi-channel samples. PullChunk
// blocks for at most timeout and returns an empty chunk when nothing
// arrived. Implementations: UDPSource (live headset bridge) and
// ReplaySource (recorded session playback).
type SampleSource interface {
	PullChunk(timeout time.Duration) (Chunk, error)
	Info() StreamInfo
	Close() error
}
