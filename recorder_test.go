package main

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecordingConfig(t *testing.T) RecordingConfig {
	t.Helper()
	return RecordingConfig{
		DataDir:         t.TempDir(),
		FlushIntervalS:  0.05,
		MaxBufferedRows: 1000,
	}
}

func startTestSession(t *testing.T, cfg RecordingConfig) (*ContinuousWriter, *Session) {
	t.Helper()
	cw := NewContinuousWriter(cfg, nil)
	session, err := NewSession(cfg.DataDir, 256.0, []string{"TP9", "AF7"})
	require.NoError(t, err)
	require.NoError(t, cw.Start(session))
	return cw, session
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestContinuousWriterHeaderFirst(t *testing.T) {
	cfg := testRecordingConfig(t)
	cw, session := startTestSession(t, cfg)

	cw.WriteChunk([]float64{1.0, 1.1}, [][]float32{{10, 20}, {11, 21}}, "REST")
	require.NoError(t, cw.Stop())

	rows := readCSV(t, filepath.Join(session.Dir, "labeled_stream.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"label", "timestamp", "TP9", "AF7"}, rows[0])
	assert.Equal(t, "REST", rows[1][0])
	assert.Equal(t, "1.000000", rows[1][1])
	assert.Equal(t, "10.000000", rows[1][2])
	assert.Equal(t, "21.000000", rows[2][3])
}

func TestContinuousWriterPerChannelFiles(t *testing.T) {
	cfg := testRecordingConfig(t)
	cfg.PerChannelFiles = true
	cw, session := startTestSession(t, cfg)

	cw.WriteChunk([]float64{1.0}, [][]float32{{10, 20}}, "REST")
	require.NoError(t, cw.Stop())

	for _, name := range []string{"TP9", "AF7"} {
		rows := readCSV(t, filepath.Join(session.Dir, "continuous_"+name+".csv"))
		require.Len(t, rows, 2)
		assert.Equal(t, []string{"timestamp", "value"}, rows[0])
	}
}

func TestContinuousWriterStopSealsMetadata(t *testing.T) {
	cfg := testRecordingConfig(t)
	cw, session := startTestSession(t, cfg)

	session.AddSamples(42)
	session.AddDropout()
	session.CountEvent("UP")
	require.NoError(t, cw.Stop())
	assert.True(t, session.Sealed())

	data, err := os.ReadFile(filepath.Join(session.Dir, "meta.json"))
	require.NoError(t, err)
	var meta SessionMeta
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, session.ID, meta.SessionID)
	assert.Equal(t, uint64(42), meta.SamplesTotal)
	assert.Equal(t, uint64(1), meta.Dropouts)
	assert.Equal(t, uint64(1), meta.EventCounts["UP"])
	assert.NotEmpty(t, meta.StoppedAt)
}

func TestContinuousWriterStopIsIdempotent(t *testing.T) {
	cfg := testRecordingConfig(t)
	cw, _ := startTestSession(t, cfg)
	require.NoError(t, cw.Stop())
	require.NoError(t, cw.Stop())
}

func TestContinuousWriterConcurrentStop(t *testing.T) {
	cfg := testRecordingConfig(t)
	cw, session := startTestSession(t, cfg)
	cw.WriteChunk([]float64{1.0}, [][]float32{{1, 1}}, "REST")

	// racing stop calls must not double-close the flusher
	const callers = 8
	errs := make(chan error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- cw.Stop()
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.True(t, session.Sealed())
	rows := readCSV(t, filepath.Join(session.Dir, "labeled_stream.csv"))
	require.Len(t, rows, 2)
}

func TestSessionsAreIsolated(t *testing.T) {
	cfg := testRecordingConfig(t)
	cw := NewContinuousWriter(cfg, nil)

	first, err := NewSession(cfg.DataDir, 256.0, []string{"TP9", "AF7"})
	require.NoError(t, err)
	require.NoError(t, cw.Start(first))
	cw.WriteChunk([]float64{1.0}, [][]float32{{1, 1}}, "REST")
	require.NoError(t, cw.Stop())

	second, err := NewSession(cfg.DataDir, 256.0, []string{"TP9", "AF7"})
	require.NoError(t, err)
	require.NoError(t, cw.Start(second))
	cw.WriteChunk([]float64{2.0}, [][]float32{{2, 2}}, "UP")
	require.NoError(t, cw.Stop())

	// distinct identifiers and directories
	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.Dir, second.Dir)

	// no row from one session appears in the other
	firstRows := readCSV(t, filepath.Join(first.Dir, "labeled_stream.csv"))
	secondRows := readCSV(t, filepath.Join(second.Dir, "labeled_stream.csv"))
	require.Len(t, firstRows, 2)
	require.Len(t, secondRows, 2)
	assert.Equal(t, "REST", firstRows[1][0])
	assert.Equal(t, "UP", secondRows[1][0])
}

func TestStartWhileActiveFails(t *testing.T) {
	cfg := testRecordingConfig(t)
	cw, _ := startTestSession(t, cfg)
	defer cw.Stop()

	other, err := NewSession(cfg.DataDir, 256.0, []string{"TP9", "AF7"})
	require.NoError(t, err)
	assert.Error(t, cw.Start(other))
}

func TestRowBufferCapDropsOldest(t *testing.T) {
	b := newRowBuffer(filepath.Join(t.TempDir(), "out.csv"), []string{"v"}, 3)
	for _, v := range []string{"1", "2", "3", "4", "5"} {
		b.Append([]string{v})
	}
	assert.Equal(t, uint64(2), b.Dropped())

	_, err := b.Flush()
	require.NoError(t, err)
	rows := readCSV(t, b.path)
	require.Len(t, rows, 4) // header + 3 newest
	assert.Equal(t, "3", rows[1][0])
	assert.Equal(t, "5", rows[3][0])
}

func TestRowBufferFlushFailureKeepsRows(t *testing.T) {
	// point the buffer at an unwritable path
	b := newRowBuffer(filepath.Join(t.TempDir(), "missing", "out.csv"), []string{"v"}, 10)
	b.Append([]string{"1"})

	_, err := b.Flush()
	require.Error(t, err)

	// rows survive the failure and flush once the directory exists
	require.NoError(t, os.MkdirAll(filepath.Dir(b.path), 0755))
	n, err := b.Flush()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	rows := readCSV(t, b.path)
	require.Len(t, rows, 2)
}

func TestRowBufferRetryWritesEachRowOnce(t *testing.T) {
	b := newRowBuffer(filepath.Join(t.TempDir(), "missing", "out.csv"), []string{"v"}, 10)

	// two failed flush attempts accumulate rows without touching disk
	b.Append([]string{"1"})
	_, err := b.Flush()
	require.Error(t, err)
	b.Append([]string{"2"})
	_, err = b.Flush()
	require.Error(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(b.path), 0755))
	n, err := b.Flush()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// exactly one header and each row exactly once
	rows := readCSV(t, b.path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"v"}, rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "2", rows[2][0])

	// an idle flush appends nothing
	n, err = b.Flush()
	require.NoError(t, err)
	assert.Zero(t, n)
	require.Len(t, readCSV(t, b.path), 3)
}
