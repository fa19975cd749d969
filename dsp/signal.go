package dsp

import "fmt"

// Signal holds a multi-channel time series in channel-major layout.
// All channels have the same length and share the same sample rate.
type Signal struct {
	Rate  float64     // sample rate in Hz
	Names []string    // channel names, one per row of Data
	Data  [][]float64 // Data[ch][i] is sample i of channel ch
}

// NewSignal allocates a signal with the given channel names and length.
func NewSignal(rate float64, names []string, length int) *Signal {
	data := make([][]float64, len(names))
	for i := range data {
		data[i] = make([]float64, length)
	}
	return &Signal{
		Rate:  rate,
		Names: append([]string(nil), names...),
		Data:  data,
	}
}

// Len returns the number of samples per channel.
func (s *Signal) Len() int {
	if len(s.Data) == 0 {
		return 0
	}
	return len(s.Data[0])
}

// NumChannels returns the number of channels.
func (s *Signal) NumChannels() int {
	return len(s.Data)
}

// Channel returns the sample slice for the named channel.
func (s *Signal) Channel(name string) ([]float64, error) {
	for i, n := range s.Names {
		if n == name {
			return s.Data[i], nil
		}
	}
	return nil, fmt.Errorf("unknown channel %q (have %v)", name, s.Names)
}

// Clone returns a deep copy. Filtering and normalization operate on
// clones so the raw recording is never mutated.
func (s *Signal) Clone() *Signal {
	out := NewSignal(s.Rate, s.Names, s.Len())
	for ch := range s.Data {
		copy(out.Data[ch], s.Data[ch])
	}
	return out
}
