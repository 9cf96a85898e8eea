package domain

import "time"

// FingerprintRecord is the durable per-item sync state: what the engine last
// saw and where it put it. The fingerprint store owns the cross-system
// identity mapping and is the only state that survives between passes.
type FingerprintRecord struct {
	// ContentHash is the content fingerprint recorded at the last
	// successful reconciliation of this item.
	ContentHash string `json:"content_hash"`

	// TargetID is the Notion page id the item maps to.
	TargetID string `json:"target_id,omitempty"`

	// LastSyncedAt is when this record was last advanced.
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// Fingerprints is the full persisted mapping, keyed by source id.
type Fingerprints map[string]FingerprintRecord

// Clone returns a copy so a pass can never mutate state shared with the
// store or with another pass.
func (f Fingerprints) Clone() Fingerprints {
	out := make(Fingerprints, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
