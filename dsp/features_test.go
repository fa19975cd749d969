package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestExtractWindowsCount(t *testing.T) {
	// window 256 samples, 50% overlap -> step 128:
	// floor((1280-256)/128)+1 = 9 windows
	x := make([]float64, 1280)
	for i := range x {
		x[i] = math.Sin(float64(i) / 10.0)
	}
	features := ExtractWindows(x, 256.0, 1.0, 0.5)
	assert.Len(t, features, 9)
}

func TestExtractWindowsTooShort(t *testing.T) {
	x := make([]float64, 100)
	features := ExtractWindows(x, 256.0, 1.0, 0.5)
	assert.Empty(t, features)
}

func TestExtractWindowsEnergyIdentity(t *testing.T) {
	// energy is a raw sum of squares, so energy == rms^2 * windowSize
	// holds for every window regardless of content
	x := make([]float64, 1280)
	for i := range x {
		x[i] = math.Sin(float64(i)/7.0) + 0.3*math.Cos(float64(i)/3.0)
	}
	const windowSize = 256
	features := ExtractWindows(x, 256.0, 1.0, 0.5)
	require.NotEmpty(t, features)
	for _, f := range features {
		assert.InDelta(t, f.RMS*f.RMS*windowSize, f.Energy, 1e-9)
		assert.GreaterOrEqual(t, f.RMS, 0.0)
		assert.GreaterOrEqual(t, f.MAV, 0.0)
	}
}

func TestExtractWindowsAllZero(t *testing.T) {
	x := make([]float64, 512)
	features := ExtractWindows(x, 256.0, 1.0, 0.5)
	require.NotEmpty(t, features)
	for _, f := range features {
		assert.Zero(t, f.RMS)
		assert.Zero(t, f.MAV)
		assert.Zero(t, f.Energy)
	}
}

func TestExtractWindowsCenterTimes(t *testing.T) {
	x := make([]float64, 512)
	features := ExtractWindows(x, 256.0, 1.0, 0.5)
	require.Len(t, features, 3)
	assert.InDelta(t, 0.5, features[0].CenterTime, 1e-9)
	assert.InDelta(t, 1.0, features[1].CenterTime, 1e-9)
	assert.InDelta(t, 1.5, features[2].CenterTime, 1e-9)
}

func TestExtractWindowsStepClamp(t *testing.T) {
	// overlap so high the rounded step would be zero; clamp to 1
	x := make([]float64, 20)
	for i := range x {
		x[i] = float64(i)
	}
	features := ExtractWindows(x, 10.0, 1.0, 0.99)
	assert.Len(t, features, 11) // n=20, w=10, step=1
}

func makeTestSignal(names []string, length int, gen func(ch, i int) float64) *Signal {
	sig := NewSignal(256.0, names, length)
	for ch := range sig.Data {
		for i := range sig.Data[ch] {
			sig.Data[ch][i] = gen(ch, i)
		}
	}
	return sig
}

func TestNormalizeSelfReference(t *testing.T) {
	sig := makeTestSignal([]string{"TP9", "AF7"}, 2048, func(ch, i int) float64 {
		return 40.0*math.Sin(float64(i)/float64(10+ch)) + 12.5
	})

	normRef, _, err := Normalize(sig, sig.Clone(), StdFromReference)
	require.NoError(t, err)

	for ch := range normRef.Data {
		assert.InDelta(t, 0.0, stat.Mean(normRef.Data[ch], nil), 1e-9)
		assert.InDelta(t, 1.0, stat.StdDev(normRef.Data[ch], nil), 1e-9)
	}
}

func TestNormalizeDoesNotMutateInputs(t *testing.T) {
	ref := makeTestSignal([]string{"TP9"}, 256, func(ch, i int) float64 { return math.Sin(float64(i)) })
	target := makeTestSignal([]string{"TP9"}, 256, func(ch, i int) float64 { return math.Cos(float64(i)) })
	refBefore := append([]float64(nil), ref.Data[0]...)
	targetBefore := append([]float64(nil), target.Data[0]...)

	_, _, err := Normalize(ref, target, StdFromReference)
	require.NoError(t, err)
	assert.Equal(t, refBefore, ref.Data[0])
	assert.Equal(t, targetBefore, target.Data[0])
}

func TestNormalizeStdSourceParameter(t *testing.T) {
	// reference has std 1x, target has std 2x; the chosen source must
	// change the scaling of the normalized target
	ref := makeTestSignal([]string{"TP9"}, 1024, func(ch, i int) float64 {
		return math.Sin(float64(i) / 5.0)
	})
	target := makeTestSignal([]string{"TP9"}, 1024, func(ch, i int) float64 {
		return 2.0 * math.Sin(float64(i)/5.0)
	})

	_, byRef, err := Normalize(ref, target, StdFromReference)
	require.NoError(t, err)
	_, byTarget, err := Normalize(ref, target, StdFromTarget)
	require.NoError(t, err)

	refStd := stat.StdDev(byRef.Data[0], nil)
	targetStd := stat.StdDev(byTarget.Data[0], nil)
	// dividing by the target's larger deviation yields smaller values
	assert.InDelta(t, 2.0, refStd/targetStd, 1e-6)
}

func TestNormalizeChannelMismatch(t *testing.T) {
	ref := makeTestSignal([]string{"TP9"}, 64, func(ch, i int) float64 { return float64(i) })
	target := makeTestSignal([]string{"TP9", "AF7"}, 64, func(ch, i int) float64 { return float64(i) })
	_, _, err := Normalize(ref, target, StdFromReference)
	assert.Error(t, err)
}

func TestNormalizeZeroVariance(t *testing.T) {
	ref := makeTestSignal([]string{"TP9"}, 64, func(ch, i int) float64 { return 5.0 })
	target := makeTestSignal([]string{"TP9"}, 64, func(ch, i int) float64 { return float64(i) })
	_, _, err := Normalize(ref, target, StdFromReference)
	assert.Error(t, err)
}
