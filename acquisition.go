package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// AcquisitionLoop pulls chunks from the sample source and fans them out
// to the ring buffer and, when a session is active, the continuous
// writer. It runs as its own goroutine and never blocks longer than the
// configured pull timeout; trigger and flush paths are independent.
type AcquisitionLoop struct {
	source  SampleSource
	ring    *RingBuffer
	labels  *LabelController
	writer  *ContinuousWriter
	metrics *Metrics

	pullTimeout time.Duration
	maxFails    int
	numChannels int

	mu       sync.Mutex
	running  bool
	runErr   error
	dropouts uint64

	done    chan struct{}
	stopped chan struct{}
}

// NewAcquisitionLoop wires the loop to its collaborators.
func NewAcquisitionLoop(cfg StreamConfig, source SampleSource, ring *RingBuffer,
	labels *LabelController, writer *ContinuousWriter, metrics *Metrics) *AcquisitionLoop {
	return &AcquisitionLoop{
		source:      source,
		ring:        ring,
		labels:      labels,
		writer:      writer,
		metrics:     metrics,
		pullTimeout: time.Duration(cfg.PullTimeoutMs) * time.Millisecond,
		maxFails:    cfg.MaxConsecutiveFails,
		numChannels: len(cfg.ChannelNames),
	}
}

// Start launches the acquisition goroutine.
func (al *AcquisitionLoop) Start() error {
	al.mu.Lock()
	defer al.mu.Unlock()
	if al.running {
		return fmt.Errorf("acquisition loop already running")
	}
	al.running = true
	al.done = make(chan struct{})
	al.stopped = make(chan struct{})
	go al.run()
	return nil
}

func (al *AcquisitionLoop) run() {
	defer close(al.stopped)
	log.Printf("Acquisition loop started (pull timeout %v)", al.pullTimeout)

	consecutiveFails := 0
	for {
		select {
		case <-al.done:
			return
		default:
		}

		chunk, err := al.source.PullChunk(al.pullTimeout)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Printf("Sample source reached end of stream")
				return
			}
			consecutiveFails++
			al.recordDropout()
			if errors.Is(err, ErrStreamLost) || consecutiveFails >= al.maxFails {
				al.fail(fmt.Errorf("sample stream lost after %d failures: %w", consecutiveFails, err))
				return
			}
			continue
		}
		if chunk.Len() == 0 {
			// pull timeout with no data, keep going
			continue
		}
		// channel-count mismatch discards the whole chunk; repeated
		// mismatches mean the source is not the stream we configured
		if len(chunk.Data[0]) != al.numChannels {
			consecutiveFails++
			al.recordDropout()
			if consecutiveFails >= al.maxFails {
				al.fail(fmt.Errorf("%w: %d consecutive channel-count mismatches (got %d, want %d)",
					ErrStreamLost, consecutiveFails, len(chunk.Data[0]), al.numChannels))
				return
			}
			continue
		}
		consecutiveFails = 0

		for i, t := range chunk.Timestamps {
			al.ring.Push(t, chunk.Data[i])
		}

		tail := chunk.Timestamps[len(chunk.Timestamps)-1]
		label := al.labels.Evaluate(tail)

		if session := al.writer.Session(); session != nil {
			session.AddSamples(chunk.Len())
			al.writer.WriteChunk(chunk.Timestamps, chunk.Data, label)
		}
		if al.metrics != nil {
			al.metrics.samplesTotal.Add(float64(chunk.Len()))
			al.metrics.ringFill.Set(float64(al.ring.Len()))
		}
	}
}

func (al *AcquisitionLoop) recordDropout() {
	al.mu.Lock()
	al.dropouts++
	al.mu.Unlock()
	if session := al.writer.Session(); session != nil {
		session.AddDropout()
	}
	if al.metrics != nil {
		al.metrics.dropouts.Inc()
	}
}

func (al *AcquisitionLoop) fail(err error) {
	al.mu.Lock()
	al.runErr = err
	al.mu.Unlock()
	log.Printf("Acquisition loop terminated: %v", err)
}

// Dropouts returns the number of discarded chunks and failed pulls.
func (al *AcquisitionLoop) Dropouts() uint64 {
	al.mu.Lock()
	defer al.mu.Unlock()
	return al.dropouts
}

// Err returns the fatal error that terminated the loop, if any.
func (al *AcquisitionLoop) Err() error {
	al.mu.Lock()
	defer al.mu.Unlock()
	return al.runErr
}

// Stop signals the loop to stop and waits for it with a bounded
// timeout. The loop observes the stop flag between pulls, so the wait
// is bounded by one pull timeout.
func (al *AcquisitionLoop) Stop(timeout time.Duration) error {
	al.mu.Lock()
	if !al.running {
		al.mu.Unlock()
		return nil
	}
	al.running = false
	close(al.done)
	stopped := al.stopped
	al.mu.Unlock()

	select {
	case <-stopped:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("acquisition loop did not stop within %v", timeout)
	}
}
