package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/binivazqua/Phantom-Resense-Research-Log/dsp"
)

// runProcess is the offline pipeline: load a recorded session, apply
// band-pass + notch filtering, segment the configured frequency bands,
// and write per-window features for every channel. When referenceDir
// is set, each band is baseline-normalized against the same band of
// the reference (rest) session before feature extraction.
func runProcess(cfg *Config, sessionDir, referenceDir string) error {
	signal, err := loadSessionSignal(cfg, sessionDir)
	if err != nil {
		return err
	}
	log.Printf("Loaded session %s: %d channels, %d samples", sessionDir, signal.NumChannels(), signal.Len())

	pipeline, err := dsp.NewPipeline(dsp.PipelineParams{
		LowHz:   cfg.Filter.LowHz,
		HighHz:  cfg.Filter.HighHz,
		Order:   cfg.Filter.Order,
		NotchHz: cfg.Filter.NotchHz,
		NotchQ:  cfg.Filter.NotchQ,
	}, signal.Rate)
	if err != nil {
		return err
	}
	filtered := pipeline.Apply(signal)

	var filteredRef *dsp.Signal
	if referenceDir != "" {
		reference, err := loadSessionSignal(cfg, referenceDir)
		if err != nil {
			return fmt.Errorf("failed to load reference session: %w", err)
		}
		filteredRef = pipeline.Apply(reference)
	}

	segmenter := dsp.NewBandSegmenter(cfg.Filter.Order)
	bands, err := segmenter.ExtractMultiple(filtered, cfg.Features.Bands)
	if err != nil {
		return err
	}

	stdSource := dsp.StdFromReference
	if cfg.Features.StdSource == "target" {
		stdSource = dsp.StdFromTarget
	}

	outDir := filepath.Join(sessionDir, "features")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create features directory: %w", err)
	}

	for _, bandName := range cfg.Features.Bands {
		bandSig := bands[bandName]

		if filteredRef != nil {
			refBand, err := segmenter.Extract(filteredRef, bandName)
			if err != nil {
				return err
			}
			if _, bandSig, err = dsp.Normalize(refBand, bandSig, stdSource); err != nil {
				return err
			}
		}

		for ch, name := range bandSig.Names {
			features := dsp.ExtractWindows(bandSig.Data[ch], bandSig.Rate, cfg.Features.WindowS, cfg.Features.Overlap)
			path := filepath.Join(outDir, fmt.Sprintf("features_%s_%s.csv", bandName, name))
			if err := dsp.WriteFeatureCSV(path, features); err != nil {
				return err
			}
			log.Printf("Wrote %d windows to %s", len(features), path)
		}
	}
	return nil
}

// loadSessionSignal reads a session's labeled stream, transparently
// decompressing a sealed .zst store.
func loadSessionSignal(cfg *Config, sessionDir string) (*dsp.Signal, error) {
	path := filepath.Join(sessionDir, "labeled_stream.csv")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		expanded, err := decompressFile(path + ".zst")
		if err != nil {
			return nil, fmt.Errorf("no labeled stream in %s: %w", sessionDir, err)
		}
		path = expanded
	}
	signal, _, _, err := dsp.LoadLabeledStream(path, cfg.Stream.NominalRate)
	if err != nil {
		return nil, err
	}
	return signal, nil
}
