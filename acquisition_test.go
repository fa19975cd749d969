package main

import (
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource plays back a fixed sequence of pull results, then
// reports end of stream. drained is closed when the script runs out.
type scriptedSource struct {
	mu      sync.Mutex
	pulls   []scriptedPull
	pos     int
	info    StreamInfo
	drained chan struct{}
	once    sync.Once
}

type scriptedPull struct {
	chunk Chunk
	err   error
}

func newScriptedSource(pulls ...scriptedPull) *scriptedSource {
	return &scriptedSource{pulls: pulls, drained: make(chan struct{})}
}

func (s *scriptedSource) PullChunk(timeout time.Duration) (Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.pulls) {
		s.once.Do(func() { close(s.drained) })
		return Chunk{}, io.EOF
	}
	p := s.pulls[s.pos]
	s.pos++
	return p.chunk, p.err
}

func (s *scriptedSource) Info() StreamInfo { return s.info }
func (s *scriptedSource) Close() error     { return nil }

// waitDrained blocks until the loop has consumed the whole script.
func (s *scriptedSource) waitDrained(t *testing.T) {
	t.Helper()
	select {
	case <-s.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("acquisition loop did not drain the scripted source")
	}
}

func makeChunk(startT float64, n, channels int, rate float64) Chunk {
	chunk := Chunk{}
	for i := 0; i < n; i++ {
		chunk.Timestamps = append(chunk.Timestamps, startT+float64(i)/rate)
		sample := make([]float32, channels)
		for ch := range sample {
			sample[ch] = float32(i + ch)
		}
		chunk.Data = append(chunk.Data, sample)
	}
	return chunk
}

func testStreamConfig() StreamConfig {
	return StreamConfig{
		NominalRate:         256.0,
		ChannelNames:        []string{"TP9", "AF7"},
		PullTimeoutMs:       10,
		MaxConsecutiveFails: 3,
	}
}

func runLoop(t *testing.T, source SampleSource, writer *ContinuousWriter) (*AcquisitionLoop, *RingBuffer, *LabelController) {
	t.Helper()
	cfg := testStreamConfig()
	ring := NewRingBuffer(20.0, cfg.NominalRate, len(cfg.ChannelNames))
	labels := NewLabelController("REST", []string{"REST", "UP"})
	if writer == nil {
		writer = NewContinuousWriter(testRecordingConfig(t), nil)
	}
	loop := NewAcquisitionLoop(cfg, source, ring, labels, writer, nil)
	require.NoError(t, loop.Start())
	return loop, ring, labels
}

func waitForStop(t *testing.T, loop *AcquisitionLoop) {
	t.Helper()
	require.Eventually(t, func() bool {
		return loop.Stop(time.Second) == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAcquisitionPushesToRing(t *testing.T) {
	source := newScriptedSource(
		scriptedPull{chunk: makeChunk(0, 10, 2, 256.0)},
		scriptedPull{chunk: makeChunk(10.0/256.0, 10, 2, 256.0)},
	)
	loop, ring, _ := runLoop(t, source, nil)
	source.waitDrained(t)
	waitForStop(t, loop)

	assert.Equal(t, 20, ring.Len())
	assert.NoError(t, loop.Err())
}

func TestAcquisitionChannelMismatchDiscardsChunk(t *testing.T) {
	source := newScriptedSource(
		scriptedPull{chunk: makeChunk(0, 10, 2, 256.0)},
		scriptedPull{chunk: makeChunk(1, 10, 3, 256.0)}, // wrong channel count
		scriptedPull{chunk: makeChunk(2, 10, 2, 256.0)},
	)
	loop, ring, _ := runLoop(t, source, nil)
	source.waitDrained(t)
	waitForStop(t, loop)

	assert.Equal(t, 20, ring.Len(), "mismatched chunk discarded, not fatal")
	assert.Equal(t, uint64(1), loop.Dropouts())
	assert.NoError(t, loop.Err())
}

func TestAcquisitionEmptyPullContinues(t *testing.T) {
	source := newScriptedSource(
		scriptedPull{chunk: Chunk{}}, // timeout, no data
		scriptedPull{chunk: Chunk{}},
		scriptedPull{chunk: makeChunk(0, 5, 2, 256.0)},
	)
	loop, ring, _ := runLoop(t, source, nil)
	source.waitDrained(t)
	waitForStop(t, loop)

	assert.Equal(t, 5, ring.Len())
	assert.Zero(t, loop.Dropouts(), "empty pulls are not dropouts")
}

func TestAcquisitionStreamLostAfterRepeatedFailures(t *testing.T) {
	source := newScriptedSource(
		scriptedPull{err: ErrStreamLost},
	)
	loop, _, _ := runLoop(t, source, nil)

	require.Eventually(t, func() bool { return loop.Err() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, loop.Err(), ErrStreamLost)
	waitForStop(t, loop)
}

func TestAcquisitionLabelsRecordedSamples(t *testing.T) {
	cfg := testRecordingConfig(t)
	writer, session := startTestSession(t, cfg)

	source := newScriptedSource(
		scriptedPull{chunk: makeChunk(0, 10, 2, 256.0)},
	)
	loop, _, _ := runLoop(t, source, writer)
	source.waitDrained(t)
	waitForStop(t, loop)
	require.NoError(t, writer.Stop())

	rows := readCSV(t, filepath.Join(session.Dir, "labeled_stream.csv"))
	require.Len(t, rows, 11)
	for _, row := range rows[1:] {
		assert.Equal(t, "REST", row[0])
	}
	assert.Equal(t, uint64(10), session.Meta().SamplesTotal)
}

func TestAcquisitionTransientLabelStampsChunks(t *testing.T) {
	cfg := testRecordingConfig(t)
	writer, session := startTestSession(t, cfg)

	// three chunks: tail timestamps ~0.039, 1.039, 2.039
	source := newScriptedSource(
		scriptedPull{chunk: makeChunk(0, 10, 2, 256.0)},
		scriptedPull{chunk: makeChunk(1, 10, 2, 256.0)},
		scriptedPull{chunk: makeChunk(2, 10, 2, 256.0)},
	)

	cfgStream := testStreamConfig()
	ring := NewRingBuffer(20.0, cfgStream.NominalRate, 2)
	labels := NewLabelController("REST", []string{"REST", "UP"})
	// gesture window covering only the second chunk's tail
	require.NoError(t, labels.TriggerTransient("UP", 1.1, 0))

	loop := NewAcquisitionLoop(cfgStream, source, ring, labels, writer, nil)
	require.NoError(t, loop.Start())
	source.waitDrained(t)
	waitForStop(t, loop)
	require.NoError(t, writer.Stop())

	rows := readCSV(t, filepath.Join(session.Dir, "labeled_stream.csv"))
	require.Len(t, rows, 31)
	assert.Equal(t, "UP", rows[1][0])   // first chunk: within window
	assert.Equal(t, "UP", rows[11][0])  // second chunk tail 1.039 < 1.1
	assert.Equal(t, "REST", rows[21][0]) // third chunk tail 2.039 >= 1.1
}

func TestAcquisitionStopIsBounded(t *testing.T) {
	source := newScriptedSource(make([]scriptedPull, 10000)...)
	loop, _, _ := runLoop(t, source, nil)

	start := time.Now()
	require.NoError(t, loop.Stop(2*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second)
}
