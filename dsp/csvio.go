package dsp

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// LoadLabeledStream reads a labeled_stream.csv recording (columns
// label, timestamp, then one column per channel) into a Signal plus the
// per-sample labels and timestamps.
func LoadLabeledStream(path string, sampleRate float64) (*Signal, []string, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open stream file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}
	if len(header) < 3 || header[0] != "label" || header[1] != "timestamp" {
		return nil, nil, nil, fmt.Errorf("unexpected header in %s: %v", path, header)
	}
	names := header[2:]

	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	sig := NewSignal(sampleRate, names, len(rows))
	labels := make([]string, len(rows))
	timestamps := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(header) {
			return nil, nil, nil, fmt.Errorf("row %d in %s has %d columns, want %d", i+1, path, len(row), len(header))
		}
		labels[i] = row[0]
		if timestamps[i], err = strconv.ParseFloat(row[1], 64); err != nil {
			return nil, nil, nil, fmt.Errorf("bad timestamp in row %d of %s: %w", i+1, path, err)
		}
		for ch := range names {
			if sig.Data[ch][i], err = strconv.ParseFloat(row[2+ch], 64); err != nil {
				return nil, nil, nil, fmt.Errorf("bad sample in row %d of %s: %w", i+1, path, err)
			}
		}
	}
	return sig, labels, timestamps, nil
}

// WriteFeatureCSV writes one feature tuple per row with a header-first
// layout matching the other recording files.
func WriteFeatureCSV(path string, features []WindowFeature) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create feature file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"center_time", "rms", "mav", "energy"}); err != nil {
		return fmt.Errorf("failed to write feature header: %w", err)
	}
	for _, feat := range features {
		row := []string{
			strconv.FormatFloat(feat.CenterTime, 'f', 6, 64),
			strconv.FormatFloat(feat.RMS, 'f', 6, 64),
			strconv.FormatFloat(feat.MAV, 'f', 6, 64),
			strconv.FormatFloat(feat.Energy, 'f', 6, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write feature row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
