package domain

// SyncError records a single pending user that failed to reconcile.
type SyncError struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// ReconciliationResult classifies every pending user processed by a sync run.
// It is ephemeral: returned to the caller, never stored.
type ReconciliationResult struct {
	Synced  []string    `json:"synced"`
	Skipped []string    `json:"skipped"`
	Errors  []SyncError `json:"errors"`
}

// NewReconciliationResult returns a result with empty (non-nil) slices so the
// JSON encoding is always arrays, never null.
func NewReconciliationResult() *ReconciliationResult {
	return &ReconciliationResult{
		Synced:  []string{},
		Skipped: []string{},
		Errors:  []SyncError{},
	}
}
