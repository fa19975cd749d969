package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// compressSessionDir replaces every CSV in a sealed session directory
// with a zstd-compressed copy. Recordings are append-heavy text, so
// this typically shrinks a session by an order of magnitude. meta.json
// is left uncompressed for quick inspection.
func compressSessionDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read session directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := compressFile(path); err != nil {
			return err
		}
	}
	return nil
}

// compressFile writes path.zst next to path and removes the original
// only after the compressed copy is fully synced.
func compressFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer in.Close()

	out, err := os.Create(path + ".zst")
	if err != nil {
		return fmt.Errorf("failed to create %s.zst: %w", path, err)
	}

	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		return fmt.Errorf("failed to compress %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return fmt.Errorf("failed to finish compressing %s: %w", path, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("failed to sync %s.zst: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s.zst: %w", path, err)
	}
	return os.Remove(path)
}

// decompressFile expands a .zst file back to its original name,
// keeping the compressed copy. Used by the offline pipeline to read
// sealed sessions.
func decompressFile(path string) (string, error) {
	if !strings.HasSuffix(path, ".zst") {
		return path, nil
	}
	in, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer in.Close()

	dec, err := zstd.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	outPath := strings.TrimSuffix(path, ".zst")
	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, dec); err != nil {
		return "", fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	return outPath, nil
}
