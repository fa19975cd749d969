package main

import (
	"log"
	"sync"
	"time"
)

// EventExtractor snapshots a window of buffered samples around a
// discrete trigger into an immutable event record. Triggers are
// debounced by a wall-clock cooldown; a call inside the cooldown
// returns immediately with no effect.
type EventExtractor struct {
	ring   *RingBuffer
	writer *ContinuousWriter

	preS     float64
	postS    float64
	cooldown time.Duration

	mu        sync.Mutex
	lastEvent time.Time
	nextID    uint64

	metrics *Metrics
}

// NewEventExtractor wires the extractor to the ring buffer and the
// session store.
func NewEventExtractor(cfg EventConfig, ring *RingBuffer, writer *ContinuousWriter, metrics *Metrics) *EventExtractor {
	return &EventExtractor{
		ring:     ring,
		writer:   writer,
		preS:     cfg.PreS,
		postS:    cfg.PostS,
		cooldown: time.Duration(cfg.CooldownS * float64(time.Second)),
		metrics:  metrics,
	}
}

// MarkEvent records one event labeled label around the most recent
// buffered sample. Returns true when an event was recorded. The call
// is a silent no-op when it lands inside the cooldown window, when no
// session is active, or when the ring buffer holds no qualifying
// samples; in those cases no event ID is allocated and no rows are
// written.
//
// The whole trigger path runs under one mutex so concurrent calls
// inside the cooldown window record exactly one event. Everything it
// touches is in-memory (the row append is buffered, never file I/O),
// so triggers still return promptly.
func (ee *EventExtractor) MarkEvent(label string) bool {
	ee.mu.Lock()
	defer ee.mu.Unlock()

	now := time.Now()
	if now.Sub(ee.lastEvent) < ee.cooldown {
		return false
	}

	session := ee.writer.Session()
	if session == nil {
		return false
	}

	triggerTime, ok := ee.ring.Last()
	if !ok {
		return false
	}
	window := ee.ring.Snapshot(triggerTime-ee.preS, triggerTime+ee.postS)
	if window.Len() == 0 {
		return false
	}

	// only a recorded event consumes the cooldown
	ee.lastEvent = now
	ee.nextID++
	eventID := ee.nextID

	ee.writer.AppendEventRows(eventID, label, triggerTime, window)
	session.CountEvent(label)
	if ee.metrics != nil {
		ee.metrics.eventsTotal.WithLabelValues(label).Inc()
	}

	log.Printf("Event %d marked: label=%s trigger=%.6f samples=%d", eventID, label, triggerTime, window.Len())
	return true
}

// LastID returns the most recently allocated event ID (0 before the
// first event).
func (ee *EventExtractor) LastID() uint64 {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	return ee.nextID
}
