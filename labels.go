package main

import (
	"fmt"
	"sync"
)

// LabelController tracks the label stamped onto incoming samples.
// Exactly one label is current at any instant. A transient trigger
// (gesture window) overrides the persistent label until a stream-time
// expiry; expiry is evaluated against sample timestamps, never the
// wall clock, so labeling is reproducible from recorded data.
type LabelController struct {
	mu         sync.Mutex
	persistent string
	current    string
	expiry     *float64 // stream time at which the transient label reverts
	known      map[string]bool
}

// NewLabelController creates a controller with the given persistent
// default label and the set of accepted label names.
func NewLabelController(defaultLabel string, known []string) *LabelController {
	knownSet := make(map[string]bool, len(known))
	for _, l := range known {
		knownSet[l] = true
	}
	return &LabelController{
		persistent: defaultLabel,
		current:    defaultLabel,
		known:      knownSet,
	}
}

// validate rejects labels outside the configured set.
func (lc *LabelController) validate(label string) error {
	if !lc.known[label] {
		return fmt.Errorf("unknown label %q", label)
	}
	return nil
}

// SetPersistent replaces the persistent label (the revert target) and
// makes it current immediately, clearing any pending expiry. Used for
// deliberate non-expiring states such as rest.
func (lc *LabelController) SetPersistent(label string) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if err := lc.validate(label); err != nil {
		return err
	}
	lc.persistent = label
	lc.current = label
	lc.expiry = nil
	return nil
}

// TriggerTransient makes label current until now+duration in stream
// time, where now is the most recent known sample timestamp. A second
// trigger before expiry replaces the pending expiry; expiries never
// stack.
func (lc *LabelController) TriggerTransient(label string, duration, lastSampleTime float64) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if err := lc.validate(label); err != nil {
		return err
	}
	expiry := lastSampleTime + duration
	lc.current = label
	lc.expiry = &expiry
	return nil
}

// Evaluate returns the label in effect at sampleTime, reverting to the
// persistent label exactly when sampleTime >= expiry. Called once per
// incoming chunk with the chunk-tail timestamp.
func (lc *LabelController) Evaluate(sampleTime float64) string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.expiry != nil && sampleTime >= *lc.expiry {
		lc.current = lc.persistent
		lc.expiry = nil
	}
	return lc.current
}

// Current returns the current label without evaluating expiry.
func (lc *LabelController) Current() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.current
}
