package store

import (
	"database/sql"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/association-learning/go-learner/internal/assoc"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/hebbian"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/logging"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS associations (
	namespace           TEXT NOT NULL,
	key_a               TEXT NOT NULL,
	key_b               TEXT NOT NULL,
	strength            REAL NOT NULL,
	reinforced_strength REAL NOT NULL,
	observation_count   INTEGER NOT NULL,
	first_seen          TEXT NOT NULL,
	last_seen           TEXT NOT NULL,
	distinct_days       INTEGER NOT NULL,
	last_day            TEXT NOT NULL,
	status              TEXT NOT NULL,
	promoted_at         TEXT,
	PRIMARY KEY (namespace, key_a, key_b)
);

CREATE INDEX IF NOT EXISTS idx_associations_status
ON associations(namespace, status);

CREATE TABLE IF NOT EXISTS learning_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id       TEXT NOT NULL,
	namespace      TEXT NOT NULL,
	key_a          TEXT NOT NULL,
	key_b          TEXT NOT NULL,
	delta_strength REAL NOT NULL,
	new_status     TEXT NOT NULL,
	trigger_type   TEXT NOT NULL,
	created_at     TEXT NOT NULL
);
`
// #endregion schema

const dayLayout = "2006-01-02"

// lockStripes is the size of the keyed mutex pool that serializes
// same-key upserts across sessions.
const lockStripes = 64

// #region config

// Config holds per-namespace learning rates, quarantine thresholds, and
// retry behavior for the store.
type Config struct {
	Rates              map[assoc.Namespace]float64
	SiblingPenaltyRate float64
	Quarantine         assoc.QuarantinePolicy
	DecayWindowDays    float64
	RetryBackoff       time.Duration
}

// NewConfig builds a store config from learning parameters and a
// quarantine policy.
func NewConfig(h hebbian.Config, q assoc.QuarantinePolicy) Config {
	return Config{
		Rates: map[assoc.Namespace]float64{
			assoc.NamespaceVocab:     h.VocabRate,
			assoc.NamespaceDimension: h.DimensionRate,
			assoc.NamespaceSequence:  h.SequenceRate,
		},
		SiblingPenaltyRate: h.SiblingPenaltyRate,
		Quarantine:         q,
		DecayWindowDays:    h.DecayWindowDays,
		RetryBackoff:       50 * time.Millisecond,
	}
}

// DefaultConfig returns the stock store configuration.
func DefaultConfig() Config {
	return NewConfig(hebbian.DefaultConfig(), assoc.DefaultQuarantinePolicy())
}

// #endregion config

// #region store-struct

// Store is the shared association table: a namespaced key→(strength, stats)
// map in SQLite with staging/permanent/expired lifecycle.
type Store struct {
	db     *sql.DB
	config Config
	locks  [lockStripes]sync.Mutex
	now    func() time.Time
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string, config Config) (*Store, error) {
	if len(config.Rates) == 0 {
		return nil, fmt.Errorf("store config has no learning rates")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, config: config, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetNow overrides the clock used by maintenance sweeps. Test hook.
func (s *Store) SetNow(now func() time.Time) {
	s.now = now
}

// #endregion constructor

// #region upsert

// UpsertResult bundles the record after an observation plus any lifecycle
// transition that happened inside the upsert.
type UpsertResult struct {
	Record   assoc.AssociationRecord
	Created  bool
	Promoted bool
	Expired  bool
	Delta    float64
}

// Upsert applies the Hebbian reinforcement and quarantine check for one
// observation of key in namespace ns.
func (s *Store) Upsert(ns assoc.Namespace, key assoc.Key, ts time.Time) (UpsertResult, error) {
	return s.UpsertWeighted(ns, key, ts, 1.0)
}

// UpsertWeighted is Upsert with the namespace learning rate scaled by
// weight. The dimension learner scales by min(value_a, value_b).
func (s *Store) UpsertWeighted(ns assoc.Namespace, key assoc.Key, ts time.Time, weight float64) (UpsertResult, error) {
	rate := s.config.Rates[ns] * weight

	mu := s.stripe(ns, key)
	mu.Lock()
	defer mu.Unlock()

	var res UpsertResult
	err := s.withRetry(fmt.Sprintf("upsert %s/%s", ns, key), func() error {
		r, err := s.upsertOnce(ns, key, ts.UTC(), rate)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	return res, err
}

func (s *Store) upsertOnce(ns assoc.Namespace, key assoc.Key, ts time.Time, rate float64) (UpsertResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return UpsertResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rec, found, err := getRecord(tx, ns, key)
	if err != nil {
		return UpsertResult{}, err
	}

	day := ts.Format(dayLayout)
	var res UpsertResult

	// An expired record is a logical delete: a new observation restarts
	// the staging lifecycle from scratch.
	if !found || rec.Status == assoc.StatusExpired {
		rec = assoc.AssociationRecord{
			Namespace:        ns,
			Key:              key,
			Strength:         hebbian.Reinforce(0, rate),
			ObservationCount: 1,
			FirstSeen:        ts,
			LastSeen:         ts,
			DistinctDays:     1,
			LastDay:          day,
			Status:           assoc.StatusStaging,
		}
		rec.ReinforcedStrength = rec.Strength
		res = UpsertResult{Created: true, Delta: rec.Strength}
	} else {
		old := rec.Strength
		rec.Strength = hebbian.Reinforce(old, rate)
		rec.ReinforcedStrength = rec.Strength
		rec.ObservationCount++
		if day != rec.LastDay {
			rec.DistinctDays++
			rec.LastDay = day
		}
		rec.LastSeen = ts
		res = UpsertResult{Delta: rec.Strength - old}
	}

	// Promotion check runs only while staging; promotion is one-directional.
	if rec.Status == assoc.StatusStaging {
		if meetsQuarantine(rec, s.config.Quarantine) {
			rec.Status = assoc.StatusPermanent
			rec.PromotedAt = ts
			res.Promoted = true
		} else if daysBetween(rec.FirstSeen, ts) >= s.config.Quarantine.ExpirationDays {
			rec.Status = assoc.StatusExpired
			res.Expired = true
		}
	}

	if err := writeRecord(tx, rec); err != nil {
		return UpsertResult{}, err
	}
	if err := logging.LogEvent(tx, logging.EventEntry{
		EventID:       uuid.New().String(),
		Namespace:     string(ns),
		KeyA:          key.A,
		KeyB:          key.B,
		DeltaStrength: res.Delta,
		NewStatus:     string(rec.Status),
		Trigger:       "observe",
		CreatedAt:     ts,
	}); err != nil {
		return UpsertResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("commit: %w", err)
	}

	res.Record = rec
	return res, nil
}

// meetsQuarantine reports whether a staging record satisfies every
// promotion floor.
func meetsQuarantine(rec assoc.AssociationRecord, q assoc.QuarantinePolicy) bool {
	return rec.ObservationCount >= q.MinObservations &&
		daysBetween(rec.FirstSeen, rec.LastSeen) >= q.MinDaysSpan &&
		rec.DistinctDays >= q.MinUniqueDays
}

func daysBetween(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}

// #endregion upsert

// #region penalize

// PenalizeSiblings applies the competitive negative update to keys that did
// not co-occur this turn. Missing or expired keys are skipped. Returns the
// number of records penalized.
func (s *Store) PenalizeSiblings(ns assoc.Namespace, keys []assoc.Key, ts time.Time) (int, error) {
	count := 0
	for _, key := range keys {
		mu := s.stripe(ns, key)
		mu.Lock()
		err := s.withRetry(fmt.Sprintf("penalize %s/%s", ns, key), func() error {
			hit, err := s.penalizeOnce(ns, key, ts.UTC())
			if err != nil {
				return err
			}
			if hit {
				count++
			}
			return nil
		})
		mu.Unlock()
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

func (s *Store) penalizeOnce(ns assoc.Namespace, key assoc.Key, ts time.Time) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rec, found, err := getRecord(tx, ns, key)
	if err != nil {
		return false, err
	}
	if !found || rec.Status == assoc.StatusExpired {
		return false, nil
	}

	old := rec.Strength
	rec.Strength = hebbian.Penalize(old, s.config.SiblingPenaltyRate)
	rec.ReinforcedStrength = rec.Strength

	if err := writeRecord(tx, rec); err != nil {
		return false, err
	}
	if err := logging.LogEvent(tx, logging.EventEntry{
		EventID:       uuid.New().String(),
		Namespace:     string(ns),
		KeyA:          key.A,
		KeyB:          key.B,
		DeltaStrength: rec.Strength - old,
		NewStatus:     string(rec.Status),
		Trigger:       "penalty",
		CreatedAt:     ts,
	}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// #endregion penalize

// #region read

// Get returns the record for (ns, key), or nil when absent.
func (s *Store) Get(ns assoc.Namespace, key assoc.Key) (*assoc.AssociationRecord, error) {
	var rec assoc.AssociationRecord
	var found bool
	err := s.withRetry(fmt.Sprintf("get %s/%s", ns, key), func() error {
		r, ok, err := getRecord(s.db, ns, key)
		if err != nil {
			return err
		}
		rec, found = r, ok
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// QueryNamespace returns every record in ns matching predicate. A nil
// predicate matches everything.
func (s *Store) QueryNamespace(ns assoc.Namespace, predicate func(assoc.AssociationRecord) bool) ([]assoc.AssociationRecord, error) {
	var out []assoc.AssociationRecord
	err := s.withRetry(fmt.Sprintf("query %s", ns), func() error {
		rows, err := s.db.Query(selectColumns+` FROM associations WHERE namespace = ? ORDER BY key_a, key_b`, string(ns))
		if err != nil {
			return fmt.Errorf("query namespace: %w", err)
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			if predicate == nil || predicate(rec) {
				out = append(out, rec)
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion read

// #region decay

// Decay recomputes effective strength for every permanent record in ns whose
// last_seen is older than daysInactive. Strength is recomputed from the
// reinforcement-history value, so repeated sweeps at the same instant are
// idempotent. Returns the number of records whose strength changed.
func (s *Store) Decay(ns assoc.Namespace, daysInactive int) (int, error) {
	now := s.now().UTC()
	count := 0

	err := s.withRetry(fmt.Sprintf("decay %s", ns), func() error {
		candidates, err := s.QueryNamespace(ns, func(r assoc.AssociationRecord) bool {
			return r.Status == assoc.StatusPermanent
		})
		if err != nil {
			return err
		}

		count = 0
		for _, c := range candidates {
			changed, err := s.decayOnce(ns, c.Key, now, daysInactive)
			if err != nil {
				return err
			}
			if changed {
				count++
			}
		}
		return nil
	})
	return count, err
}

// decayOnce re-reads one record under its key stripe lock, so a
// reinforcement that committed after the sweep's snapshot is never
// overwritten from stale data.
func (s *Store) decayOnce(ns assoc.Namespace, key assoc.Key, now time.Time, daysInactive int) (bool, error) {
	mu := s.stripe(ns, key)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rec, found, err := getRecord(tx, ns, key)
	if err != nil {
		return false, err
	}
	if !found || rec.Status != assoc.StatusPermanent {
		return false, nil
	}
	elapsedDays := now.Sub(rec.LastSeen).Hours() / 24
	if elapsedDays < float64(daysInactive) {
		return false, nil
	}
	// Computed in Go rather than SQL: modernc.org/sqlite has no math
	// functions, and the factor must stay a pure function of elapsed time.
	newStrength := rec.ReinforcedStrength * hebbian.DecayFactor(elapsedDays, s.config.DecayWindowDays)
	if newStrength == rec.Strength {
		return false, nil
	}

	if _, err := tx.Exec(
		`UPDATE associations SET strength = ? WHERE namespace = ? AND key_a = ? AND key_b = ?`,
		newStrength, string(ns), key.A, key.B,
	); err != nil {
		return false, fmt.Errorf("decay update: %w", err)
	}
	if err := logging.LogEvent(tx, logging.EventEntry{
		EventID:       uuid.New().String(),
		Namespace:     string(ns),
		KeyA:          key.A,
		KeyB:          key.B,
		DeltaStrength: newStrength - rec.Strength,
		NewStatus:     string(rec.Status),
		Trigger:       "decay",
		CreatedAt:     now,
	}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// #endregion decay

// #region prune

// Prune deletes permanent records failing either the strength or the
// observation-count floor. Returns the number removed.
func (s *Store) Prune(ns assoc.Namespace, minStrength float64, minObservations int) (int, error) {
	count := 0
	err := s.withRetry(fmt.Sprintf("prune %s", ns), func() error {
		res, err := s.db.Exec(
			`DELETE FROM associations
			 WHERE namespace = ? AND status = ? AND (strength < ? OR observation_count < ?)`,
			string(ns), string(assoc.StatusPermanent), minStrength, minObservations,
		)
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("prune rows affected: %w", err)
		}
		count = int(n)
		return nil
	})
	return count, err
}

// ExpireStale transitions staging records past the expiration window to
// expired. Covers records that never receive another observation, since the
// in-upsert check only runs when a key is re-observed. Returns the number
// transitioned.
func (s *Store) ExpireStale(ns assoc.Namespace) (int, error) {
	now := s.now().UTC()
	count := 0

	err := s.withRetry(fmt.Sprintf("expire %s", ns), func() error {
		candidates, err := s.QueryNamespace(ns, func(r assoc.AssociationRecord) bool {
			return r.Status == assoc.StatusStaging &&
				daysBetween(r.FirstSeen, now) >= s.config.Quarantine.ExpirationDays
		})
		if err != nil {
			return err
		}

		count = 0
		for _, c := range candidates {
			expired, err := s.expireOnce(ns, c.Key, now)
			if err != nil {
				return err
			}
			if expired {
				count++
			}
		}
		return nil
	})
	return count, err
}

// expireOnce re-reads one record under its key stripe lock: a record that
// was re-observed or promoted after the sweep's snapshot is left alone.
func (s *Store) expireOnce(ns assoc.Namespace, key assoc.Key, now time.Time) (bool, error) {
	mu := s.stripe(ns, key)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rec, found, err := getRecord(tx, ns, key)
	if err != nil {
		return false, err
	}
	if !found || rec.Status != assoc.StatusStaging ||
		daysBetween(rec.FirstSeen, now) < s.config.Quarantine.ExpirationDays {
		return false, nil
	}

	if _, err := tx.Exec(
		`UPDATE associations SET status = ? WHERE namespace = ? AND key_a = ? AND key_b = ?`,
		string(assoc.StatusExpired), string(ns), key.A, key.B,
	); err != nil {
		return false, fmt.Errorf("expire update: %w", err)
	}
	if err := logging.LogEvent(tx, logging.EventEntry{
		EventID:   uuid.New().String(),
		Namespace: string(ns),
		KeyA:      key.A,
		KeyB:      key.B,
		NewStatus: string(assoc.StatusExpired),
		Trigger:   "expire",
		CreatedAt: now,
	}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// PurgeExpired deletes expired staging records. Returns the number removed.
func (s *Store) PurgeExpired(ns assoc.Namespace) (int, error) {
	count := 0
	err := s.withRetry(fmt.Sprintf("purge %s", ns), func() error {
		res, err := s.db.Exec(
			`DELETE FROM associations WHERE namespace = ? AND status = ?`,
			string(ns), string(assoc.StatusExpired),
		)
		if err != nil {
			return fmt.Errorf("purge expired: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("purge rows affected: %w", err)
		}
		count = int(n)
		return nil
	})
	return count, err
}

// #endregion prune

// #region export-import

// Export returns a read-only snapshot of every record in ns.
func (s *Store) Export(ns assoc.Namespace) ([]assoc.AssociationRecord, error) {
	return s.QueryNamespace(ns, nil)
}

// Import bulk-loads records, replacing any existing rows with the same key.
// All fields round-trip exactly; import does not re-run quarantine checks.
func (s *Store) Import(records []assoc.AssociationRecord) error {
	return s.withRetry("import", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		for _, rec := range records {
			if err := writeRecord(tx, rec); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// #endregion export-import

// #region stats

// CountByStatus returns record counts per lifecycle status for ns.
func (s *Store) CountByStatus(ns assoc.Namespace) (map[assoc.Status]int, error) {
	counts := make(map[assoc.Status]int)
	err := s.withRetry(fmt.Sprintf("count %s", ns), func() error {
		rows, err := s.db.Query(
			`SELECT status, COUNT(*) FROM associations WHERE namespace = ? GROUP BY status`,
			string(ns),
		)
		if err != nil {
			return fmt.Errorf("count by status: %w", err)
		}
		defer rows.Close()

		for k := range counts {
			delete(counts, k)
		}
		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				return fmt.Errorf("scan count: %w", err)
			}
			counts[assoc.Status(status)] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// RecentPromotions returns the most recently promoted records across all
// namespaces, newest first.
func (s *Store) RecentPromotions(limit int) ([]assoc.AssociationRecord, error) {
	var out []assoc.AssociationRecord
	err := s.withRetry("recent promotions", func() error {
		rows, err := s.db.Query(
			selectColumns+` FROM associations WHERE promoted_at IS NOT NULL ORDER BY promoted_at DESC LIMIT ?`,
			limit,
		)
		if err != nil {
			return fmt.Errorf("recent promotions: %w", err)
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OldestStagingFirstSeen returns the earliest first_seen among staging
// records in ns, and false when there are none.
func (s *Store) OldestStagingFirstSeen(ns assoc.Namespace) (time.Time, bool, error) {
	records, err := s.QueryNamespace(ns, func(r assoc.AssociationRecord) bool {
		return r.Status == assoc.StatusStaging
	})
	if err != nil {
		return time.Time{}, false, err
	}
	if len(records) == 0 {
		return time.Time{}, false, nil
	}
	oldest := records[0].FirstSeen
	for _, r := range records[1:] {
		if r.FirstSeen.Before(oldest) {
			oldest = r.FirstSeen
		}
	}
	return oldest, true, nil
}

// #endregion stats

// #region retry

// withRetry runs op, retrying once after a fixed short backoff. A second
// failure degrades to ErrStorageUnavailable; nothing above the manager
// boundary sees the raw driver error.
func (s *Store) withRetry(label string, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	log.Printf("[STORE] %s failed, retrying once: %v", label, err)
	time.Sleep(s.config.RetryBackoff)
	if err = op(); err != nil {
		return fmt.Errorf("%w: %s: %v", assoc.ErrStorageUnavailable, label, err)
	}
	return nil
}

// stripe maps (ns, key) onto the keyed mutex pool.
func (s *Store) stripe(ns assoc.Namespace, key assoc.Key) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(ns))
	h.Write([]byte{0})
	h.Write([]byte(key.A))
	h.Write([]byte{0})
	h.Write([]byte(key.B))
	return &s.locks[h.Sum32()%lockStripes]
}

// #endregion retry
