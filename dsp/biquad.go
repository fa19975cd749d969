package dsp

import (
	"fmt"
	"math"
)

// FilterDesignError reports invalid filter parameters. Design functions
// fail with this error before any samples are processed; no partial
// output signal is ever produced.
type FilterDesignError struct {
	Reason string
}

func (e *FilterDesignError) Error() string {
	return "filter design: " + e.Reason
}

// biquad holds normalized second-order IIR coefficients (a0 == 1).
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// newLowpassBiquad designs a single lowpass stage at freq with quality q.
func newLowpassBiquad(freq, sampleRate, q float64) biquad {
	omega := 2.0 * math.Pi * freq / sampleRate
	sinOmega := math.Sin(omega)
	cosOmega := math.Cos(omega)
	alpha := sinOmega / (2.0 * q)

	a0 := 1.0 + alpha
	return biquad{
		b0: (1.0 - cosOmega) / 2.0 / a0,
		b1: (1.0 - cosOmega) / a0,
		b2: (1.0 - cosOmega) / 2.0 / a0,
		a1: -2.0 * cosOmega / a0,
		a2: (1.0 - alpha) / a0,
	}
}

// newHighpassBiquad designs a single highpass stage at freq with quality q.
func newHighpassBiquad(freq, sampleRate, q float64) biquad {
	omega := 2.0 * math.Pi * freq / sampleRate
	sinOmega := math.Sin(omega)
	cosOmega := math.Cos(omega)
	alpha := sinOmega / (2.0 * q)

	a0 := 1.0 + alpha
	return biquad{
		b0: (1.0 + cosOmega) / 2.0 / a0,
		b1: -(1.0 + cosOmega) / a0,
		b2: (1.0 + cosOmega) / 2.0 / a0,
		a1: -2.0 * cosOmega / a0,
		a2: (1.0 - alpha) / a0,
	}
}

// newNotchBiquad designs a notch stage at freq with quality q.
func newNotchBiquad(freq, sampleRate, q float64) biquad {
	omega := 2.0 * math.Pi * freq / sampleRate
	sinOmega := math.Sin(omega)
	cosOmega := math.Cos(omega)
	alpha := sinOmega / (2.0 * q)

	a0 := 1.0 + alpha
	return biquad{
		b0: 1.0 / a0,
		b1: -2.0 * cosOmega / a0,
		b2: 1.0 / a0,
		a1: -2.0 * cosOmega / a0,
		a2: (1.0 - alpha) / a0,
	}
}

// firstOrder holds first-order IIR coefficients for odd filter orders.
type firstOrder struct {
	b0, b1 float64
	a1     float64
}

func newLowpassFirstOrder(freq, sampleRate float64) firstOrder {
	// Bilinear transform of H(s) = 1/(s+1).
	k := math.Tan(math.Pi * freq / sampleRate)
	a0 := k + 1.0
	return firstOrder{
		b0: k / a0,
		b1: k / a0,
		a1: (k - 1.0) / a0,
	}
}

func newHighpassFirstOrder(freq, sampleRate float64) firstOrder {
	k := math.Tan(math.Pi * freq / sampleRate)
	a0 := k + 1.0
	return firstOrder{
		b0: 1.0 / a0,
		b1: -1.0 / a0,
		a1: (k - 1.0) / a0,
	}
}

// Filter is a cascade of IIR sections applied with zero initial
// conditions. Apply never mutates its input and a Filter holds no
// per-run state, so the same Filter can be reused across channels.
type Filter struct {
	sections []biquad
	first    []firstOrder
}

// butterworthQs returns the per-stage quality factors for a Butterworth
// response of the given order realized as cascaded biquads. Odd orders
// contribute one additional first-order stage.
func butterworthQs(order int) []float64 {
	pairs := order / 2
	qs := make([]float64, 0, pairs)
	for k := 0; k < pairs; k++ {
		theta := math.Pi * float64(2*k+1) / float64(2*order)
		qs = append(qs, 1.0/(2.0*math.Cos(theta)))
	}
	return qs
}

// DesignBandpass designs an order-N Butterworth band-pass filter as a
// highpass cascade at low followed by a lowpass cascade at high.
// Fails with FilterDesignError when the cutoffs are non-positive,
// inverted, or at/above the Nyquist frequency.
func DesignBandpass(low, high float64, order int, sampleRate float64) (*Filter, error) {
	nyquist := sampleRate / 2.0
	switch {
	case sampleRate <= 0:
		return nil, &FilterDesignError{Reason: fmt.Sprintf("sample rate %.3f Hz must be positive", sampleRate)}
	case order < 1:
		return nil, &FilterDesignError{Reason: fmt.Sprintf("order %d must be >= 1", order)}
	case low <= 0:
		return nil, &FilterDesignError{Reason: fmt.Sprintf("low cutoff %.3f Hz must be positive", low)}
	case high >= nyquist:
		return nil, &FilterDesignError{Reason: fmt.Sprintf("high cutoff %.3f Hz must be below Nyquist (%.3f Hz)", high, nyquist)}
	case low >= high:
		return nil, &FilterDesignError{Reason: fmt.Sprintf("low cutoff %.3f Hz must be below high cutoff %.3f Hz", low, high)}
	}

	f := &Filter{}
	for _, q := range butterworthQs(order) {
		f.sections = append(f.sections, newHighpassBiquad(low, sampleRate, q))
		f.sections = append(f.sections, newLowpassBiquad(high, sampleRate, q))
	}
	if order%2 == 1 {
		f.first = append(f.first, newHighpassFirstOrder(low, sampleRate))
		f.first = append(f.first, newLowpassFirstOrder(high, sampleRate))
	}
	return f, nil
}

// DesignNotch designs a single-stage IIR notch at center with the given
// quality factor (bandwidth = center/quality).
func DesignNotch(center, quality, sampleRate float64) (*Filter, error) {
	nyquist := sampleRate / 2.0
	switch {
	case sampleRate <= 0:
		return nil, &FilterDesignError{Reason: fmt.Sprintf("sample rate %.3f Hz must be positive", sampleRate)}
	case center <= 0:
		return nil, &FilterDesignError{Reason: fmt.Sprintf("notch frequency %.3f Hz must be positive", center)}
	case center >= nyquist:
		return nil, &FilterDesignError{Reason: fmt.Sprintf("notch frequency %.3f Hz must be below Nyquist (%.3f Hz)", center, nyquist)}
	case quality <= 0:
		return nil, &FilterDesignError{Reason: fmt.Sprintf("quality factor %.3f must be positive", quality)}
	}

	return &Filter{sections: []biquad{newNotchBiquad(center, sampleRate, quality)}}, nil
}

// Apply runs the cascade over x with zero initial conditions and returns
// a new slice; x is never modified.
func (f *Filter) Apply(x []float64) []float64 {
	y := append([]float64(nil), x...)
	for _, s := range f.sections {
		var x1, x2, y1, y2 float64
		for i, in := range y {
			out := s.b0*in + s.b1*x1 + s.b2*x2 - s.a1*y1 - s.a2*y2
			x2, x1 = x1, in
			y2, y1 = y1, out
			y[i] = out
		}
	}
	for _, s := range f.first {
		var x1, y1 float64
		for i, in := range y {
			out := s.b0*in + s.b1*x1 - s.a1*y1
			x1 = in
			y1 = out
			y[i] = out
		}
	}
	return y
}
