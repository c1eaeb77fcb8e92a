package assoc

import (
	"errors"
	"strings"
	"time"
)

// #region namespaces

// Namespace identifies which learner owns an association.
type Namespace string

const (
	NamespaceVocab     Namespace = "vocab"
	NamespaceDimension Namespace = "dimension"
	NamespaceSequence  Namespace = "sequence"
)

// AllNamespaces returns every learner namespace in dispatch order.
func AllNamespaces() []Namespace {
	return []Namespace{NamespaceVocab, NamespaceDimension, NamespaceSequence}
}

// #endregion namespaces

// #region status

// Status is the lifecycle state of an association record.
type Status string

const (
	StatusStaging   Status = "staging"
	StatusPermanent Status = "permanent"
	StatusExpired   Status = "expired"
)

// #endregion status

// #region key

// Key is the composite identity of an association within a namespace:
// (term, context), (dimension_a, dimension_b), or (from_state, to_state).
type Key struct {
	A string
	B string
}

// NewKey builds an ordered key. Ordering is significant for directed
// namespaces (vocab, sequence).
func NewKey(a, b string) Key {
	return Key{A: a, B: b}
}

// PairKey builds a canonical unordered key: components are sorted
// lexicographically so (a,b) and (b,a) reference the same record.
func PairKey(a, b string) Key {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return Key{A: a, B: b}
}

// String renders the key as "a|b" for logging and cache keys.
func (k Key) String() string {
	return k.A + "|" + k.B
}

// #endregion key

// #region record

// AssociationRecord is the generic unit stored by all three learners.
type AssociationRecord struct {
	Namespace          Namespace
	Key                Key
	Strength           float64 // effective strength after any decay, in [0,1]
	ReinforcedStrength float64 // reinforcement-history value; decay recomputes from this
	ObservationCount   int
	FirstSeen          time.Time
	LastSeen           time.Time
	DistinctDays       int
	LastDay            string // UTC calendar date (2006-01-02) of the most recent observation
	Status             Status
	PromotedAt         time.Time // zero unless Status has reached permanent
}

// #endregion record

// #region quarantine-policy

// QuarantinePolicy holds the promotion and expiration floors for
// staging records. Immutable per manager instance.
type QuarantinePolicy struct {
	MinObservations int
	MinDaysSpan     int
	MinUniqueDays   int
	ExpirationDays  int
}

// DefaultQuarantinePolicy returns the stock promotion thresholds.
func DefaultQuarantinePolicy() QuarantinePolicy {
	return QuarantinePolicy{
		MinObservations: 5,
		MinDaysSpan:     7,
		MinUniqueDays:   3,
		ExpirationDays:  30,
	}
}

// #endregion quarantine-policy

// #region errors

var (
	// ErrStorageUnavailable marks a store operation that failed after its
	// single retry. The turn continues with storage_degraded set.
	ErrStorageUnavailable = errors.New("association storage unavailable")

	// ErrInvalidObservation marks a malformed key or value rejected at the
	// API boundary. The turn continues.
	ErrInvalidObservation = errors.New("invalid observation")
)

// #endregion errors
