package monitoring

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	kgzip "github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// History is the exported raw-sample document.
type History struct {
	Summary Summary             `json:"summary"`
	Samples []PerformanceSample `json:"samples"`
}

// ExportHistory writes samples and their summary as JSON. A ".zst" suffix
// selects zstd and ".gz" selects gzip; anything else is written plain.
func ExportHistory(path string, samples []PerformanceSample) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("monitoring: create export dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("monitoring: create export: %w", err)
	}
	defer func() { _ = f.Close() }()

	w, closeFn, err := compressedWriter(path, f)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(History{Summary: Summarize(samples), Samples: samples}); err != nil {
		return fmt.Errorf("monitoring: encode history: %w", err)
	}
	if err := closeFn(); err != nil {
		return fmt.Errorf("monitoring: flush export: %w", err)
	}
	return f.Close()
}

// ReadHistory loads a document written by ExportHistory.
func ReadHistory(path string) (*History, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("monitoring: open history: %w", err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("monitoring: zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	case strings.HasSuffix(path, ".gz"):
		gz, err := kgzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("monitoring: gzip reader: %w", err)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var h History
	if err := json.NewDecoder(r).Decode(&h); err != nil {
		return nil, fmt.Errorf("monitoring: decode history: %w", err)
	}
	return &h, nil
}

func compressedWriter(path string, w io.Writer) (io.Writer, func() error, error) {
	switch {
	case strings.HasSuffix(path, ".zst"):
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, nil, fmt.Errorf("monitoring: zstd writer: %w", err)
		}
		return enc, enc.Close, nil
	case strings.HasSuffix(path, ".gz"):
		gz, err := kgzip.NewWriterLevel(w, kgzip.BestSpeed)
		if err != nil {
			return nil, nil, fmt.Errorf("monitoring: gzip writer: %w", err)
		}
		return gz, gz.Close, nil
	default:
		return w, func() error { return nil }, nil
	}
}
