package domain

import "fmt"

// Mode selects how a sync pass runs.
type Mode string

const (
	// ModeNormal is the default: fingerprint short-circuit enabled.
	ModeNormal Mode = "normal"

	// ModeForce re-evaluates every item against live target content,
	// ignoring recorded hashes. Recovery from drift.
	ModeForce Mode = "force"

	// ModeClearCache drops all fingerprints before the pass. Every item
	// goes through create/update logic; target creates must be idempotent
	// upserts so this never duplicates.
	ModeClearCache Mode = "clear-cache"

	// ModeLegacy runs a normal pass against the legacy export-file source
	// adapter instead of the Things database.
	ModeLegacy Mode = "legacy"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNormal, ModeForce, ModeClearCache, ModeLegacy:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: unknown sync mode %q", ErrInvalidInput, s)
	}
}
