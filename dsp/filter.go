package dsp

// Pipeline applies a band-pass followed by a notch filter to every
// channel of a recorded signal. Both filters are designed once at
// construction; Apply always returns a new Signal so the raw recording
// can be re-filtered with different parameters later.
type Pipeline struct {
	bandpass *Filter
	notch    *Filter
}

// PipelineParams are the offline filtering parameters. These mirror the
// defaults used during data collection: 1-50 Hz band-pass with a 60 Hz
// mains notch.
type PipelineParams struct {
	LowHz   float64
	HighHz  float64
	Order   int
	NotchHz float64
	NotchQ  float64
}

// NewPipeline designs both filters for the given sample rate. Any
// invalid parameter fails with FilterDesignError before any data is
// touched.
func NewPipeline(p PipelineParams, sampleRate float64) (*Pipeline, error) {
	bp, err := DesignBandpass(p.LowHz, p.HighHz, p.Order, sampleRate)
	if err != nil {
		return nil, err
	}
	notch, err := DesignNotch(p.NotchHz, p.NotchQ, sampleRate)
	if err != nil {
		return nil, err
	}
	return &Pipeline{bandpass: bp, notch: notch}, nil
}

// Apply filters every channel of sig and returns the result as a new
// Signal; sig is never mutated.
func (p *Pipeline) Apply(sig *Signal) *Signal {
	out := NewSignal(sig.Rate, sig.Names, sig.Len())
	for ch := range sig.Data {
		out.Data[ch] = p.notch.Apply(p.bandpass.Apply(sig.Data[ch]))
	}
	return out
}
