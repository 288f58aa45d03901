package database

import "github.com/magnachain/magnachain/errors"

var (
	// ErrCorrupt marks unreadable chain-state data. It aborts startup; no
	// repair is attempted.
	ErrCorrupt = errors.New("chain-state data corrupt")

	// ErrInterrupted is returned by long scans when shutdown is
	// requested. The durable state written so far stays consistent and
	// the scan resumes on next start.
	ErrInterrupted = errors.New("operation interrupted")

	// ErrUpgradeRequired signals that legacy per-tx coin records are
	// present; the caller runs Upgrade and retries.
	ErrUpgradeRequired = errors.New("coin database holds legacy records, upgrade required")
)
