package main

import (
	"fmt"
	"log"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Engine owns the live acquisition path: ring buffer, label state,
// session writer, event extractor and the acquisition loop. All
// collaborators are created here and share the engine's lifetime.
type Engine struct {
	cfg     *Config
	source  SampleSource
	ring    *RingBuffer
	labels  *LabelController
	writer  *ContinuousWriter
	events  *EventExtractor
	acq     *AcquisitionLoop
	metrics *Metrics

	publisher *MQTTPublisher
}

// SetPublisher attaches the optional MQTT announcer.
func (e *Engine) SetPublisher(p *MQTTPublisher) {
	e.publisher = p
}

// NewEngine wires all components for the given source.
func NewEngine(cfg *Config, source SampleSource, metrics *Metrics) *Engine {
	ring := NewRingBuffer(cfg.Buffer.Seconds, cfg.Stream.NominalRate, len(cfg.Stream.ChannelNames))
	labels := NewLabelController(cfg.Labels.Default, cfg.Labels.Known)
	writer := NewContinuousWriter(cfg.Recording, metrics)
	events := NewEventExtractor(cfg.Events, ring, writer, metrics)
	acq := NewAcquisitionLoop(cfg.Stream, source, ring, labels, writer, metrics)

	return &Engine{
		cfg:     cfg,
		source:  source,
		ring:    ring,
		labels:  labels,
		writer:  writer,
		events:  events,
		acq:     acq,
		metrics: metrics,
	}
}

// Start launches the acquisition loop.
func (e *Engine) Start() error {
	return e.acq.Start()
}

// StartRecording creates a new session and begins continuous writing.
func (e *Engine) StartRecording() (*Session, error) {
	session, err := NewSession(e.cfg.Recording.DataDir, e.cfg.Stream.NominalRate, e.cfg.Stream.ChannelNames)
	if err != nil {
		return nil, err
	}
	if err := e.writer.Start(session); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.sessionActive.Set(1)
	}
	if e.publisher != nil {
		e.publisher.PublishSessionStart(session.ID)
	}
	return session, nil
}

// StopRecording flushes and seals the active session.
func (e *Engine) StopRecording() error {
	session := e.writer.Session()
	err := e.writer.Stop()
	if e.metrics != nil {
		e.metrics.sessionActive.Set(0)
	}
	if e.publisher != nil && session != nil {
		e.publisher.PublishSessionStop(session.ID)
	}
	return err
}

// SetLabel switches the persistent label.
func (e *Engine) SetLabel(label string) error {
	return e.labels.SetPersistent(label)
}

// TriggerGesture starts a transient gesture window labeled label,
// expiring after the configured duration of stream time.
func (e *Engine) TriggerGesture(label string) error {
	last, ok := e.ring.Last()
	if !ok {
		return fmt.Errorf("no samples buffered yet")
	}
	return e.labels.TriggerTransient(label, e.cfg.Labels.GestureWindowS, last)
}

// MarkEvent records a trigger event. Returns true when the event was
// recorded (i.e. not debounced or empty).
func (e *Engine) MarkEvent(label string) (bool, error) {
	if !containsLabel(e.cfg.Labels.Known, label) {
		return false, fmt.Errorf("unknown label %q", label)
	}
	recorded := e.events.MarkEvent(label)
	if recorded && e.publisher != nil {
		if session := e.writer.Session(); session != nil {
			e.publisher.PublishEvent(session.ID, label, e.events.LastID())
		}
	}
	return recorded, nil
}

// Shutdown stops the loop and seals any active session. The loop join
// is bounded by one pull timeout plus slack.
func (e *Engine) Shutdown() {
	joinTimeout := time.Duration(e.cfg.Stream.PullTimeoutMs)*time.Millisecond + 2*time.Second
	if err := e.acq.Stop(joinTimeout); err != nil {
		log.Printf("Warning: %v", err)
	}
	if err := e.StopRecording(); err != nil {
		log.Printf("Warning: failed to stop recording: %v", err)
	}
	if err := e.source.Close(); err != nil {
		log.Printf("Warning: failed to close sample source: %v", err)
	}
}

// EngineStatus is the status snapshot served by the HTTP API.
type EngineStatus struct {
	Stream struct {
		NominalRate     float64  `json:"nominal_rate"`
		ChannelNames    []string `json:"channel_names"`
		BufferedSamples int      `json:"buffered_samples"`
		BufferCapacity  int      `json:"buffer_capacity"`
		Dropouts        uint64   `json:"dropouts"`
		SequenceGaps    uint64   `json:"sequence_gaps"`
		LastTimestamp   float64  `json:"last_timestamp"`
	} `json:"stream"`
	Label       string       `json:"label"`
	Recording   bool         `json:"recording"`
	Session     *SessionMeta `json:"session,omitempty"`
	WriteErrors uint64       `json:"write_errors"`
	LastError   string       `json:"last_error,omitempty"`
	Host        HostStats    `json:"host"`
}

// HostStats is a small system health block for the status endpoint.
type HostStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`
}

// Status gathers a point-in-time snapshot of the engine.
func (e *Engine) Status() EngineStatus {
	var status EngineStatus
	status.Stream.NominalRate = e.cfg.Stream.NominalRate
	status.Stream.ChannelNames = e.cfg.Stream.ChannelNames
	status.Stream.BufferedSamples = e.ring.Len()
	status.Stream.BufferCapacity = e.ring.Capacity()
	status.Stream.Dropouts = e.acq.Dropouts()
	if gr, ok := e.source.(interface{ SequenceGaps() uint64 }); ok {
		status.Stream.SequenceGaps = gr.SequenceGaps()
	}
	if last, ok := e.ring.Last(); ok {
		status.Stream.LastTimestamp = last
	}
	status.Label = e.labels.Current()
	status.Recording = e.writer.Active()
	if count, err := e.writer.WriteError(); count > 0 {
		status.WriteErrors = count
		status.LastError = err.Error()
	}
	if session := e.writer.Session(); session != nil {
		meta := session.Meta()
		status.Session = &meta
	}
	status.Host = gatherHostStats()
	return status
}

// gatherHostStats samples CPU and memory usage; failures leave zeros
// rather than failing the status call.
func gatherHostStats() HostStats {
	var stats HostStats
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemPercent = vm.UsedPercent
	}
	return stats
}
