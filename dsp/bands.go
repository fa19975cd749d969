package dsp

import (
	"fmt"
	"strings"
)

// FrequencyBand is a named cutoff pair from the standard EEG band
// catalogue.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// Bands is the fixed catalogue of EEG frequency bands. Mu and beta are
// the bands of interest for motor imagery detection; the rest are kept
// for completeness.
var Bands = []FrequencyBand{
	{Name: "delta", LowHz: 0.5, HighHz: 4},
	{Name: "theta", LowHz: 4, HighHz: 8},
	{Name: "mu", LowHz: 8, HighHz: 13},
	{Name: "beta", LowHz: 13, HighHz: 30},
	{Name: "gamma", LowHz: 30, HighHz: 100},
}

// InvalidBandError reports a request for a band name outside the
// catalogue.
type InvalidBandError struct {
	Band string
}

func (e *InvalidBandError) Error() string {
	return fmt.Sprintf("unknown frequency band %q, valid bands: %s", e.Band, strings.Join(BandNames(), ", "))
}

// BandNames returns the catalogue names in order.
func BandNames() []string {
	names := make([]string, len(Bands))
	for i, b := range Bands {
		names[i] = b.Name
	}
	return names
}

// LookupBand resolves a band name against the catalogue.
func LookupBand(name string) (FrequencyBand, error) {
	for _, b := range Bands {
		if b.Name == name {
			return b, nil
		}
	}
	return FrequencyBand{}, &InvalidBandError{Band: name}
}

// BandSegmenter extracts named frequency bands from a filtered signal
// by designing a dedicated band-pass filter per band.
type BandSegmenter struct {
	order int
}

// NewBandSegmenter creates a segmenter using Butterworth filters of the
// given order (the collection pipeline uses order 5).
func NewBandSegmenter(order int) *BandSegmenter {
	return &BandSegmenter{order: order}
}

// Extract band-passes every channel of sig at the named band's cutoffs
// and returns the result as a new Signal. Unknown names fail with
// InvalidBandError; a band whose upper cutoff is at or above Nyquist
// (gamma at low sample rates) fails with FilterDesignError.
func (bs *BandSegmenter) Extract(sig *Signal, band string) (*Signal, error) {
	fb, err := LookupBand(band)
	if err != nil {
		return nil, err
	}
	filt, err := DesignBandpass(fb.LowHz, fb.HighHz, bs.order, sig.Rate)
	if err != nil {
		return nil, err
	}
	out := NewSignal(sig.Rate, sig.Names, sig.Len())
	for ch := range sig.Data {
		out.Data[ch] = filt.Apply(sig.Data[ch])
	}
	return out, nil
}

// ExtractMultiple extracts each requested band independently and returns
// the outputs keyed by band name. Bands share no state, so an error on
// one band leaves no partial result.
func (bs *BandSegmenter) ExtractMultiple(sig *Signal, bands []string) (map[string]*Signal, error) {
	out := make(map[string]*Signal, len(bands))
	for _, name := range bands {
		seg, err := bs.Extract(sig, name)
		if err != nil {
			return nil, err
		}
		out[name] = seg
	}
	return out, nil
}
