package dimension

import (
	"fmt"
	"sort"
	"time"

	"github.com/danielpatrickdp/association-learning/go-learner/internal/assoc"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/store"
)

// #region associator

// Associator learns which personality-response dimensions activate
// together. Pairs are unordered: (A,B) and (B,A) are the same record, so
// keys are canonicalized before hitting the store.
type Associator struct {
	store *store.Store

	// MinPredictionStrength is the floor below which a permanent pair is
	// excluded from predictions.
	MinPredictionStrength float64
}

// New creates an Associator over the shared store.
func New(s *store.Store) *Associator {
	return &Associator{store: s, MinPredictionStrength: 0.2}
}

// #endregion associator

// #region observe

// Observe records co-activation for every unordered pair of dimensions
// present in values. The reinforcement for a pair is scaled by the weaker
// of the two activations, so a pair only wires strongly when both fire.
func (a *Associator) Observe(values map[string]float64, ts time.Time) ([]store.UpsertResult, error) {
	names := make([]string, 0, len(values))
	for name, v := range values {
		if name == "" {
			return nil, fmt.Errorf("%w: empty dimension name", assoc.ErrInvalidObservation)
		}
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("%w: dimension %q value %f outside [0,1]", assoc.ErrInvalidObservation, name, v)
		}
		names = append(names, name)
	}
	if len(names) < 2 {
		return nil, nil
	}
	sort.Strings(names)

	var results []store.UpsertResult
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			weight := values[names[i]]
			if values[names[j]] < weight {
				weight = values[names[j]]
			}
			if weight == 0 {
				continue
			}
			res, err := a.store.UpsertWeighted(assoc.NamespaceDimension, assoc.PairKey(names[i], names[j]), ts, weight)
			if err != nil {
				return results, err
			}
			results = append(results, res)
		}
	}
	return results, nil
}

// #endregion observe

// #region predict

// Predict returns the expected co-activation of every partner dimension
// given that dimension fired at value: partner → value * strength. Only
// permanent pairs above the strength floor participate.
func (a *Associator) Predict(dimension string, value float64) (map[string]float64, error) {
	records, err := a.store.QueryNamespace(assoc.NamespaceDimension, func(r assoc.AssociationRecord) bool {
		return r.Status == assoc.StatusPermanent &&
			r.Strength >= a.MinPredictionStrength &&
			(r.Key.A == dimension || r.Key.B == dimension)
	})
	if err != nil {
		return nil, err
	}

	predictions := make(map[string]float64, len(records))
	for _, r := range records {
		partner := r.Key.A
		if partner == dimension {
			partner = r.Key.B
		}
		predictions[partner] = value * r.Strength
	}
	return predictions, nil
}

// #endregion predict
