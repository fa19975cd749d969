package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one bounded recording run. It owns its session directory
// and running counters; metadata is written once at start and sealed
// exactly once at stop. Sessions are never reused: a new recording
// always gets a fresh directory and ID.
type Session struct {
	ID           string
	Dir          string
	NominalRate  float64
	ChannelNames []string
	StartedAt    time.Time

	mu           sync.Mutex
	stoppedAt    time.Time
	samplesTotal uint64
	dropouts     uint64
	eventCounts  map[string]uint64
	sealed       bool
}

// SessionMeta is the persisted session metadata record (meta.json).
type SessionMeta struct {
	SessionID    string            `json:"session_id"`
	StartedAt    string            `json:"started_at"`
	StoppedAt    string            `json:"stopped_at,omitempty"`
	NominalRate  float64           `json:"fs_nominal"`
	ChannelNames []string          `json:"channels"`
	SamplesTotal uint64            `json:"samples_total"`
	Dropouts     uint64            `json:"dropouts"`
	EventCounts  map[string]uint64 `json:"event_counts"`
}

const metaTimeLayout = "2006-01-02 15:04:05"

// NewSession creates the session directory under dataDir and writes the
// initial metadata record.
func NewSession(dataDir string, rate float64, channelNames []string) (*Session, error) {
	id := fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), uuid.NewString()[:8])
	dir := filepath.Join(dataDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	s := &Session{
		ID:           id,
		Dir:          dir,
		NominalRate:  rate,
		ChannelNames: append([]string(nil), channelNames...),
		StartedAt:    time.Now(),
		eventCounts:  make(map[string]uint64),
	}
	if err := s.writeMeta(); err != nil {
		return nil, err
	}
	return s, nil
}

// AddSamples bumps the total sample counter.
func (s *Session) AddSamples(n int) {
	s.mu.Lock()
	s.samplesTotal += uint64(n)
	s.mu.Unlock()
}

// AddDropout bumps the dropout counter.
func (s *Session) AddDropout() {
	s.mu.Lock()
	s.dropouts++
	s.mu.Unlock()
}

// CountEvent bumps the per-label event counter.
func (s *Session) CountEvent(label string) {
	s.mu.Lock()
	s.eventCounts[label]++
	s.mu.Unlock()
}

// Meta returns a snapshot of the session metadata.
func (s *Session) Meta() SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metaLocked()
}

func (s *Session) metaLocked() SessionMeta {
	counts := make(map[string]uint64, len(s.eventCounts))
	for k, v := range s.eventCounts {
		counts[k] = v
	}
	meta := SessionMeta{
		SessionID:    s.ID,
		StartedAt:    s.StartedAt.Format(metaTimeLayout),
		NominalRate:  s.NominalRate,
		ChannelNames: append([]string(nil), s.ChannelNames...),
		SamplesTotal: s.samplesTotal,
		Dropouts:     s.dropouts,
		EventCounts:  counts,
	}
	if !s.stoppedAt.IsZero() {
		meta.StoppedAt = s.stoppedAt.Format(metaTimeLayout)
	}
	return meta
}

// writeMeta serializes the current metadata to meta.json.
func (s *Session) writeMeta() error {
	s.mu.Lock()
	meta := s.metaLocked()
	s.mu.Unlock()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}
	path := filepath.Join(s.Dir, "meta.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write session metadata: %w", err)
	}
	return nil
}

// Seal records the stop time and persists the final metadata. Sealing
// happens exactly once; repeated calls are no-ops.
func (s *Session) Seal() error {
	s.mu.Lock()
	if s.sealed {
		s.mu.Unlock()
		return nil
	}
	s.sealed = true
	s.stoppedAt = time.Now()
	s.mu.Unlock()

	return s.writeMeta()
}

// Sealed reports whether the session has been sealed.
func (s *Session) Sealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealed
}
