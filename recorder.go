package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// rowBuffer accumulates CSV rows for one file until the next periodic
// flush. When the durable store fails, rows stay in memory up to
// maxRows; beyond that the oldest rows are dropped and counted.
type rowBuffer struct {
	mu          sync.Mutex
	path        string
	header      []string
	rows        [][]string
	maxRows     int
	dropped     uint64
	wroteHeader bool
}

func newRowBuffer(path string, header []string, maxRows int) *rowBuffer {
	return &rowBuffer{path: path, header: header, maxRows: maxRows}
}

// Append queues one row for the next flush.
func (b *rowBuffer) Append(row []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = append(b.rows, row)
	if len(b.rows) > b.maxRows {
		over := len(b.rows) - b.maxRows
		b.rows = b.rows[over:]
		b.dropped += uint64(over)
	}
}

// Flush writes all queued rows to the file. The buffer lock is not
// held across the file I/O; on failure the unwritten rows are requeued
// (still subject to the cap) and the error is returned.
func (b *rowBuffer) Flush() (int, error) {
	b.mu.Lock()
	pending := b.rows
	b.rows = nil
	needHeader := !b.wroteHeader
	b.mu.Unlock()

	if len(pending) == 0 && !needHeader {
		return 0, nil
	}

	written, err := b.writeRows(pending, needHeader)
	if err != nil {
		// requeue what we could not write, newest rows win the cap
		b.mu.Lock()
		b.rows = append(pending, b.rows...)
		if len(b.rows) > b.maxRows {
			over := len(b.rows) - b.maxRows
			b.rows = b.rows[over:]
			b.dropped += uint64(over)
		}
		b.mu.Unlock()
		return written, err
	}

	if needHeader {
		b.mu.Lock()
		b.wroteHeader = true
		b.mu.Unlock()
	}
	return written, nil
}

// writeRows appends the batch to the file. The write is all or
// nothing: on any error the file is truncated back to its pre-batch
// size, so a retry of the requeued rows can never duplicate rows or
// headers that partially reached disk.
func (b *rowBuffer) writeRows(rows [][]string, withHeader bool) (int, error) {
	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", b.path, err)
	}
	defer f.Close()

	startSize, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to seek %s: %w", b.path, err)
	}

	w := csv.NewWriter(f)
	writeErr := func() error {
		if withHeader {
			if err := w.Write(b.header); err != nil {
				return err
			}
		}
		for _, row := range rows {
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	}()
	if writeErr != nil {
		if trErr := f.Truncate(startSize); trErr != nil {
			return 0, fmt.Errorf("failed to write %s (%v) and roll back: %w", b.path, writeErr, trErr)
		}
		return 0, fmt.Errorf("failed to write %s: %w", b.path, writeErr)
	}
	return len(rows), nil
}

// Dropped returns the number of rows lost to the in-memory cap.
func (b *rowBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// ContinuousWriter appends labeled samples to the session's durable
// store. Rows are buffered in memory and flushed on a wall-clock
// interval by a dedicated goroutine, bounding data loss on abnormal
// termination to one flush interval.
type ContinuousWriter struct {
	cfg     RecordingConfig
	metrics *Metrics

	mu         sync.Mutex
	session    *Session
	labeled    *rowBuffer
	events     *rowBuffer
	markers    *rowBuffer
	perChannel []*rowBuffer
	writeErrs  uint64
	lastErr    error

	flushDone chan struct{}
	flushWG   sync.WaitGroup
}

// NewContinuousWriter creates an idle writer; Start binds it to a
// session.
func NewContinuousWriter(cfg RecordingConfig, metrics *Metrics) *ContinuousWriter {
	return &ContinuousWriter{cfg: cfg, metrics: metrics}
}

// Start opens the session-scoped store and launches the periodic
// flusher. Starting while a session is active is an error; the caller
// must stop the previous session first.
func (cw *ContinuousWriter) Start(session *Session) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.session != nil {
		return fmt.Errorf("recording already active for session %s", cw.session.ID)
	}

	streamHeader := append([]string{"label", "timestamp"}, session.ChannelNames...)
	eventHeader := append([]string{"event_id", "label", "trigger_timestamp", "sample_timestamp"}, session.ChannelNames...)

	cw.session = session
	cw.labeled = newRowBuffer(filepath.Join(session.Dir, "labeled_stream.csv"), streamHeader, cw.cfg.MaxBufferedRows)
	cw.events = newRowBuffer(filepath.Join(session.Dir, "events_samples.csv"), eventHeader, cw.cfg.MaxBufferedRows)
	cw.markers = newRowBuffer(filepath.Join(session.Dir, "markers.csv"),
		[]string{"event_id", "label", "trigger_timestamp", "sample_count"}, cw.cfg.MaxBufferedRows)

	cw.perChannel = nil
	if cw.cfg.PerChannelFiles {
		for _, name := range session.ChannelNames {
			path := filepath.Join(session.Dir, fmt.Sprintf("continuous_%s.csv", name))
			cw.perChannel = append(cw.perChannel, newRowBuffer(path, []string{"timestamp", "value"}, cw.cfg.MaxBufferedRows))
		}
	}

	cw.flushDone = make(chan struct{})
	cw.flushWG.Add(1)
	go cw.flushLoop(cw.flushDone)

	log.Printf("Recording started: session=%s dir=%s", session.ID, session.Dir)
	return nil
}

// Active reports whether a session is being recorded.
func (cw *ContinuousWriter) Active() bool {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.session != nil
}

// Session returns the active session, or nil.
func (cw *ContinuousWriter) Session() *Session {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.session
}

// WriteChunk appends one labeled row per sample to the continuous
// stream (and the per-channel files when enabled). No-op when no
// session is active.
func (cw *ContinuousWriter) WriteChunk(timestamps []float64, data [][]float32, label string) {
	cw.mu.Lock()
	labeled := cw.labeled
	perChannel := cw.perChannel
	cw.mu.Unlock()
	if labeled == nil {
		return
	}

	for i, t := range timestamps {
		row := make([]string, 0, 2+len(data[i]))
		row = append(row, label, formatTimestamp(t))
		for _, v := range data[i] {
			row = append(row, formatValue(v))
		}
		labeled.Append(row)

		for ch, buf := range perChannel {
			buf.Append([]string{formatTimestamp(t), formatValue(data[i][ch])})
		}
	}
}

// AppendEventRows writes the per-sample event log rows and the marker
// summary row for one extracted event.
func (cw *ContinuousWriter) AppendEventRows(eventID uint64, label string, triggerTime float64, window SampleWindow) {
	cw.mu.Lock()
	events := cw.events
	markers := cw.markers
	cw.mu.Unlock()
	if events == nil {
		return
	}

	id := strconv.FormatUint(eventID, 10)
	trigger := formatTimestamp(triggerTime)
	for i, t := range window.Timestamps {
		row := make([]string, 0, 4+len(window.Channels))
		row = append(row, id, label, trigger, formatTimestamp(t))
		for ch := range window.Channels {
			row = append(row, formatValue(window.Channels[ch][i]))
		}
		events.Append(row)
	}
	markers.Append([]string{id, label, trigger, strconv.Itoa(window.Len())})
}

// flushLoop flushes all buffers on the configured wall-clock interval.
func (cw *ContinuousWriter) flushLoop(done chan struct{}) {
	defer cw.flushWG.Done()
	interval := time.Duration(cw.cfg.FlushIntervalS * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cw.flushAll()
		case <-done:
			return
		}
	}
}

// flushAll flushes every buffer, logging failures and counting them as
// write errors rather than aborting the recording.
func (cw *ContinuousWriter) flushAll() {
	cw.mu.Lock()
	buffers := cw.allBuffersLocked()
	cw.mu.Unlock()

	start := time.Now()
	rows := 0
	for _, b := range buffers {
		n, err := b.Flush()
		rows += n
		if err != nil {
			log.Printf("Write error flushing %s: %v", b.path, err)
			cw.mu.Lock()
			cw.writeErrs++
			cw.lastErr = err
			cw.mu.Unlock()
			if cw.metrics != nil {
				cw.metrics.writeErrors.Inc()
			}
		}
	}
	if cw.metrics != nil {
		cw.metrics.flushDuration.Observe(time.Since(start).Seconds())
		cw.metrics.flushedRows.Add(float64(rows))
	}
}

func (cw *ContinuousWriter) allBuffersLocked() []*rowBuffer {
	buffers := make([]*rowBuffer, 0, 3+len(cw.perChannel))
	for _, b := range []*rowBuffer{cw.labeled, cw.events, cw.markers} {
		if b != nil {
			buffers = append(buffers, b)
		}
	}
	buffers = append(buffers, cw.perChannel...)
	return buffers
}

// WriteError returns the persistent store failure state: the error
// count and the most recent error, surfaced to the caller rather than
// silently dropped.
func (cw *ContinuousWriter) WriteError() (uint64, error) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.writeErrs, cw.lastErr
}

// Stop flushes remaining rows, stops the flusher, seals the session
// metadata, and optionally compresses the store. The writer can then
// start a new session with a fresh directory. Exactly one caller takes
// ownership of the flusher channel; concurrent Stop calls return
// immediately instead of closing it twice.
func (cw *ContinuousWriter) Stop() error {
	cw.mu.Lock()
	session := cw.session
	done := cw.flushDone
	cw.flushDone = nil
	cw.mu.Unlock()
	if session == nil || done == nil {
		return nil
	}

	close(done)
	cw.flushWG.Wait()
	cw.flushAll()

	cw.mu.Lock()
	cw.session = nil
	cw.labeled = nil
	cw.events = nil
	cw.markers = nil
	cw.perChannel = nil
	cw.mu.Unlock()

	if err := session.Seal(); err != nil {
		return err
	}
	if cw.cfg.CompressOnSeal {
		if err := compressSessionDir(session.Dir); err != nil {
			log.Printf("Failed to compress session %s: %v", session.ID, err)
		}
	}

	log.Printf("Recording stopped: session=%s samples=%d", session.ID, session.Meta().SamplesTotal)
	return nil
}

func formatTimestamp(t float64) string {
	return strconv.FormatFloat(t, 'f', 6, 64)
}

func formatValue(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', 6, 32)
}
