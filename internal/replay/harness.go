package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/danielpatrickdp/association-learning/go-learner/internal/assoc"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/manager"
)

// #region types

// Mismatch is one expectation the replayed stream failed to meet.
type Mismatch struct {
	Namespace string
	Key       string
	Want      string
	Got       string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s %s: want %s, got %s", m.Namespace, m.Key, m.Want, m.Got)
}

// Summary aggregates one replay run.
type Summary struct {
	TotalTurns    int
	TurnsSkipped  int
	WritesTotal   int
	Promotions    int
	InvalidInputs int
	Mismatches    []Mismatch
}

// Passed reports whether every expectation held.
func (s Summary) Passed() bool {
	return len(s.Mismatches) == 0
}

// #endregion types

// #region replay

// Replay drives a recorded observation stream through the manager, then
// checks every fixture expectation against the resulting store. The fixture's
// day offsets are anchored at epoch.
func Replay(ctx context.Context, m *manager.Manager, f *Fixture, epoch time.Time) (Summary, error) {
	var s Summary
	for _, fo := range f.Observations {
		result := m.ProcessConversationTurn(ctx, fo.ToObservation(epoch))
		s.TotalTurns++
		if result.Skipped {
			s.TurnsSkipped++
		}
		s.WritesTotal += result.LearnersWritten
		s.Promotions += result.Promotions
		s.InvalidInputs += result.InvalidInputs
	}

	for _, e := range f.Expectations {
		got, err := recordStatus(m, e)
		if err != nil {
			return s, err
		}
		if got != e.Status {
			s.Mismatches = append(s.Mismatches, Mismatch{
				Namespace: e.Namespace,
				Key:       e.KeyA + "|" + e.KeyB,
				Want:      e.Status,
				Got:       got,
			})
		}
	}
	return s, nil
}

func recordStatus(m *manager.Manager, e FixtureExpectation) (string, error) {
	ns := assoc.Namespace(e.Namespace)
	key := assoc.NewKey(e.KeyA, e.KeyB)
	if ns == assoc.NamespaceDimension {
		key = assoc.PairKey(e.KeyA, e.KeyB)
	}
	rec, err := m.Store().Get(ns, key)
	if err != nil {
		return "", fmt.Errorf("lookup %s %s: %w", e.Namespace, key, err)
	}
	if rec == nil {
		return "absent", nil
	}
	return string(rec.Status), nil
}

// #endregion replay
