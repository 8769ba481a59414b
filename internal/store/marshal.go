package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/sheetrelay/internal/ir"
)

// marshalCells converts a fact row to JSON TEXT for storage. Strings are
// stored exactly as ingested; canonical (NFC) encoding is for hashing only.
func marshalCells(values []ir.Value) (string, error) {
	if values == nil {
		values = []ir.Value{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshal cells: %w", err)
	}
	return string(data), nil
}

func unmarshalCells(data string) ([]ir.Value, error) {
	var values []ir.Value
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, fmt.Errorf("unmarshal cells: %w", err)
	}
	if values == nil {
		values = []ir.Value{}
	}
	return values, nil
}

// marshalMetrics converts a snapshot's metric map to JSON TEXT.
func marshalMetrics(snap ir.MetricSnapshot) (string, error) {
	data, err := json.Marshal(snap.Metrics)
	if err != nil {
		return "", fmt.Errorf("marshal metrics: %w", err)
	}
	return string(data), nil
}

func unmarshalMetrics(data string) (map[string]ir.MetricValue, error) {
	metrics := make(map[string]ir.MetricValue)
	if err := json.Unmarshal([]byte(data), &metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	return metrics, nil
}

// Timestamps are stored as RFC 3339 text in UTC; the zero time is "".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse ingested_at %q: %w", s, err)
	}
	return t, nil
}
