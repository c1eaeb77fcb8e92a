package logging

import "time"

// #region event-entry
// EventEntry is a single row in the learning_log table: one per committed
// association write (reinforcement, penalty, decay, promotion, expiry).
type EventEntry struct {
	EventID       string
	Namespace     string
	KeyA          string
	KeyB          string
	DeltaStrength float64
	NewStatus     string // "staging" | "permanent" | "expired"
	Trigger       string // "observe" | "penalty" | "decay" | "import"
	CreatedAt     time.Time
}
// #endregion event-entry
