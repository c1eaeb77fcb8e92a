package budget

import "time"

// #region config

// Config holds the per-turn resource ceilings.
type Config struct {
	MaxWrites   int
	MaxLookups  int
	MaxQueries  int
	MaxTurnTime time.Duration
}

// DefaultConfig returns the stock per-turn ceilings.
func DefaultConfig() Config {
	return Config{
		MaxWrites:   5,
		MaxLookups:  20,
		MaxQueries:  10,
		MaxTurnTime: 15 * time.Second,
	}
}

// #endregion config

// #region budget

// Budget tracks learning work performed within one conversational turn.
// Ephemeral: owned exclusively by the call that created it, never persisted.
// Exceeding a ceiling never errors; the category silently no-ops for the
// rest of the turn.
type Budget struct {
	config    Config
	writes    int
	lookups   int
	queries   int
	denied    bool // set once any check refuses an operation
	startedAt time.Time
	now       func() time.Time
}

// Start opens a budget for one turn.
func Start(config Config) *Budget {
	b := &Budget{config: config, now: time.Now}
	b.startedAt = b.now()
	return b
}

// SetNow overrides the clock. Test hook; must be called before any reads.
func (b *Budget) SetNow(now func() time.Time) {
	b.now = now
	b.startedAt = now()
}

// #endregion budget

// #region checks

// CanWrite reports whether another write fits the ceiling. Checks never
// consume budget, so callers can branch before committing; a refusal marks
// the turn exhausted.
func (b *Budget) CanWrite() bool {
	if b.writes < b.config.MaxWrites {
		return true
	}
	b.denied = true
	return false
}

// CanLookup reports whether another lookup fits the ceiling.
func (b *Budget) CanLookup() bool {
	if b.lookups < b.config.MaxLookups {
		return true
	}
	b.denied = true
	return false
}

// CanQuery reports whether another query fits the ceiling.
func (b *Budget) CanQuery() bool {
	if b.queries < b.config.MaxQueries {
		return true
	}
	b.denied = true
	return false
}

// IsTimeExceeded reports whether the turn has used its wall-time ceiling.
func (b *Budget) IsTimeExceeded() bool {
	if b.now().Sub(b.startedAt) < b.config.MaxTurnTime {
		return false
	}
	b.denied = true
	return true
}

// #endregion checks

// #region record

// RecordWrite counts one committed write. No-ops at the ceiling.
func (b *Budget) RecordWrite() {
	if b.writes < b.config.MaxWrites {
		b.writes++
	}
}

// RecordLookup counts one lookup. No-ops at the ceiling.
func (b *Budget) RecordLookup() {
	if b.lookups < b.config.MaxLookups {
		b.lookups++
	}
}

// RecordQuery counts one query. No-ops at the ceiling.
func (b *Budget) RecordQuery() {
	if b.queries < b.config.MaxQueries {
		b.queries++
	}
}

// #endregion record

// #region summary

// Summary reports the work performed during the turn.
type Summary struct {
	Writes    int   `json:"writes"`
	Lookups   int   `json:"lookups"`
	Queries   int   `json:"queries"`
	ElapsedMs int64 `json:"elapsed_ms"`
	Exhausted bool  `json:"exhausted"`
}

// Summary snapshots the budget state. Exhausted is set only when a check
// actually refused an operation during the turn: a turn that uses exactly
// its ceiling without being refused is not exhausted.
func (b *Budget) Summary() Summary {
	return Summary{
		Writes:    b.writes,
		Lookups:   b.lookups,
		Queries:   b.queries,
		ElapsedMs: b.now().Sub(b.startedAt).Milliseconds(),
		Exhausted: b.denied,
	}
}

// #endregion summary
