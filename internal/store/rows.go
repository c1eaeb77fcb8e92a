package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/danielpatrickdp/association-learning/go-learner/internal/assoc"
)

// #region queryer

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRow(query string, args ...interface{}) *sql.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// scannable is satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...interface{}) error
}

// #endregion queryer

const selectColumns = `SELECT namespace, key_a, key_b, strength, reinforced_strength,
	observation_count, first_seen, last_seen, distinct_days, last_day, status, promoted_at`

// #region scan

// getRecord reads one record by key. The second return is false when absent.
func getRecord(q queryer, ns assoc.Namespace, key assoc.Key) (assoc.AssociationRecord, bool, error) {
	row := q.QueryRow(
		selectColumns+` FROM associations WHERE namespace = ? AND key_a = ? AND key_b = ?`,
		string(ns), key.A, key.B,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return assoc.AssociationRecord{}, false, nil
	}
	if err != nil {
		return assoc.AssociationRecord{}, false, err
	}
	return rec, true, nil
}

// scanRecord decodes one associations row.
func scanRecord(row scannable) (assoc.AssociationRecord, error) {
	var rec assoc.AssociationRecord
	var ns, status, firstStr, lastStr string
	var promotedStr sql.NullString

	err := row.Scan(
		&ns, &rec.Key.A, &rec.Key.B,
		&rec.Strength, &rec.ReinforcedStrength,
		&rec.ObservationCount, &firstStr, &lastStr,
		&rec.DistinctDays, &rec.LastDay, &status, &promotedStr,
	)
	if err == sql.ErrNoRows {
		return assoc.AssociationRecord{}, err
	}
	if err != nil {
		return assoc.AssociationRecord{}, fmt.Errorf("scan record: %w", err)
	}

	rec.Namespace = assoc.Namespace(ns)
	rec.Status = assoc.Status(status)
	rec.FirstSeen, err = parseTime(firstStr)
	if err != nil {
		return assoc.AssociationRecord{}, err
	}
	rec.LastSeen, err = parseTime(lastStr)
	if err != nil {
		return assoc.AssociationRecord{}, err
	}
	if promotedStr.Valid {
		rec.PromotedAt, err = parseTime(promotedStr.String)
		if err != nil {
			return assoc.AssociationRecord{}, err
		}
	}
	return rec, nil
}

// writeRecord inserts or replaces one associations row.
func writeRecord(q queryer, rec assoc.AssociationRecord) error {
	var promotedPtr interface{}
	if !rec.PromotedAt.IsZero() {
		promotedPtr = fmtTime(rec.PromotedAt)
	}

	_, err := q.Exec(
		`INSERT INTO associations
		 (namespace, key_a, key_b, strength, reinforced_strength, observation_count,
		  first_seen, last_seen, distinct_days, last_day, status, promoted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, key_a, key_b) DO UPDATE SET
		  strength = excluded.strength,
		  reinforced_strength = excluded.reinforced_strength,
		  observation_count = excluded.observation_count,
		  first_seen = excluded.first_seen,
		  last_seen = excluded.last_seen,
		  distinct_days = excluded.distinct_days,
		  last_day = excluded.last_day,
		  status = excluded.status,
		  promoted_at = excluded.promoted_at`,
		string(rec.Namespace), rec.Key.A, rec.Key.B,
		rec.Strength, rec.ReinforcedStrength, rec.ObservationCount,
		fmtTime(rec.FirstSeen), fmtTime(rec.LastSeen),
		rec.DistinctDays, rec.LastDay, string(rec.Status), promotedPtr,
	)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// #endregion scan

// #region time

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// #endregion time
