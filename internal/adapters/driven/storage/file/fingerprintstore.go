// Package file provides the durable, file-backed implementations of the
// driven storage ports. The fingerprint store is a single JSON file replaced
// atomically on every save, so a crash mid-write never corrupts it.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/thingsync/thingsync/internal/core/domain"
	"github.com/thingsync/thingsync/internal/core/ports/driven"
)

// Ensure FingerprintStore implements the interface.
var _ driven.FingerprintStore = (*FingerprintStore)(nil)

// storeVersion is written to the file so future format changes can migrate.
const storeVersion = 1

// Known JSON keys. Anything else found in the file is carried through a
// read-modify-write cycle untouched, keeping the format forward-compatible.
var (
	knownTopKeys    = map[string]bool{"version": true, "fingerprints": true}
	knownRecordKeys = map[string]bool{"content_hash": true, "target_id": true, "last_synced_at": true}
)

// FingerprintStore is a JSON-file implementation of driven.FingerprintStore.
type FingerprintStore struct {
	mu   sync.Mutex
	path string

	// Unknown fields captured at Load time, merged back at Save time.
	topExtra    map[string]json.RawMessage
	recordExtra map[string]map[string]json.RawMessage
}

// NewFingerprintStore creates a fingerprint store at path. If path is empty,
// defaults to ~/.thingsync/data/fingerprints.json.
func NewFingerprintStore(path string) (*FingerprintStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".thingsync", "data", "fingerprints.json")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &FingerprintStore{
		path:        path,
		topExtra:    map[string]json.RawMessage{},
		recordExtra: map[string]map[string]json.RawMessage{},
	}, nil
}

// Path returns the store file path.
func (s *FingerprintStore) Path() string {
	return s.path
}

// Load retrieves the full fingerprint mapping. A missing file is an empty
// mapping; an unparseable one is domain.ErrStoreCorrupt.
func (s *FingerprintStore) Load(_ context.Context) (domain.Fingerprints, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.topExtra = map[string]json.RawMessage{}
	s.recordExtra = map[string]map[string]json.RawMessage{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Fingerprints{}, nil
		}
		return nil, fmt.Errorf("reading fingerprint store: %w", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreCorrupt, err)
	}

	for key, raw := range top {
		if !knownTopKeys[key] {
			s.topExtra[key] = raw
		}
	}

	fps := domain.Fingerprints{}
	rawRecords := map[string]json.RawMessage{}
	if raw, ok := top["fingerprints"]; ok {
		if err := json.Unmarshal(raw, &rawRecords); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreCorrupt, err)
		}
	}

	for sid, raw := range rawRecords {
		var record domain.FingerprintRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("%w: record %s: %v", domain.ErrStoreCorrupt, sid, err)
		}
		fps[sid] = record

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%w: record %s: %v", domain.ErrStoreCorrupt, sid, err)
		}
		for key, val := range fields {
			if knownRecordKeys[key] {
				continue
			}
			if s.recordExtra[sid] == nil {
				s.recordExtra[sid] = map[string]json.RawMessage{}
			}
			s.recordExtra[sid][key] = val
		}
	}

	return fps, nil
}

// Save atomically replaces the persisted mapping: write to a temp file in
// the same directory, then rename over the old one.
func (s *FingerprintStore) Save(_ context.Context, fps domain.Fingerprints) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := map[string]json.RawMessage{}
	for sid, record := range fps {
		raw, err := s.encodeRecord(sid, record)
		if err != nil {
			return err
		}
		records[sid] = raw
	}

	top := map[string]any{
		"version":      storeVersion,
		"fingerprints": records,
	}
	for key, raw := range s.topExtra {
		top[key] = raw
	}

	data, err := json.MarshalIndent(top, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding fingerprint store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".fingerprints-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing fingerprint store: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing fingerprint store: %w", err)
	}
	return nil
}

// Clear removes all records.
func (s *FingerprintStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.topExtra = map[string]json.RawMessage{}
	s.recordExtra = map[string]map[string]json.RawMessage{}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing fingerprint store: %w", err)
	}
	return nil
}

// encodeRecord marshals one record, merging back any unknown fields the
// record carried when loaded.
func (s *FingerprintStore) encodeRecord(sid string, record domain.FingerprintRecord) (json.RawMessage, error) {
	known, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encoding record %s: %w", sid, err)
	}

	extra := s.recordExtra[sid]
	if len(extra) == 0 {
		return known, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, fmt.Errorf("encoding record %s: %w", sid, err)
	}
	for key, val := range extra {
		if _, taken := fields[key]; !taken {
			fields[key] = val
		}
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding record %s: %w", sid, err)
	}
	return merged, nil
}
