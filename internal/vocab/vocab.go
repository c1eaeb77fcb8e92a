package vocab

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/danielpatrickdp/association-learning/go-learner/internal/assoc"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/store"
)

// #region associator

// Associator learns term↔context associations. Terms arrive pre-normalized
// (lower-cased, trimmed); contexts are a small fixed label set supplied by
// the caller — this component associates, it does not classify.
type Associator struct {
	store    *store.Store
	contexts []string
}

// DefaultContexts returns the stock conversational context labels.
func DefaultContexts() []string {
	return []string{"casual", "formal", "technical", "emotional"}
}

// New creates an Associator over the shared store with the given context
// label set.
func New(s *store.Store, contexts []string) *Associator {
	return &Associator{store: s, contexts: contexts}
}

// #endregion associator

// #region observe

// Observe records one co-occurrence of term in context, then applies the
// competitive penalty to the term's other contexts.
func (a *Associator) Observe(term, context string, ts time.Time) (store.UpsertResult, error) {
	if err := a.validate(term, context); err != nil {
		return store.UpsertResult{}, err
	}

	res, err := a.store.Upsert(assoc.NamespaceVocab, assoc.NewKey(term, context), ts)
	if err != nil {
		return store.UpsertResult{}, err
	}

	// Contexts that did not co-occur compete for the term.
	var siblings []assoc.Key
	for _, c := range a.contexts {
		if c != context {
			siblings = append(siblings, assoc.NewKey(term, c))
		}
	}
	if len(siblings) > 0 {
		if _, err := a.store.PenalizeSiblings(assoc.NamespaceVocab, siblings, ts); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (a *Associator) validate(term, context string) error {
	if term == "" || term != strings.ToLower(strings.TrimSpace(term)) {
		return fmt.Errorf("%w: term %q is not a normalized token", assoc.ErrInvalidObservation, term)
	}
	for _, c := range a.contexts {
		if c == context {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown context %q", assoc.ErrInvalidObservation, context)
}

// #endregion observe

// #region read

// ShouldUseTerm reports whether a permanent association for (term, context)
// exists with at least the given strength.
func (a *Associator) ShouldUseTerm(term, context string, threshold float64) (bool, error) {
	rec, err := a.store.Get(assoc.NamespaceVocab, assoc.NewKey(term, context))
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	return rec.Status == assoc.StatusPermanent && rec.Strength >= threshold, nil
}

// TermStrength pairs a term with its association strength for a context.
type TermStrength struct {
	Term     string  `json:"term"`
	Strength float64 `json:"strength"`
}

// TermsForContext returns every permanent term for context, strongest first.
func (a *Associator) TermsForContext(context string) ([]TermStrength, error) {
	records, err := a.store.QueryNamespace(assoc.NamespaceVocab, func(r assoc.AssociationRecord) bool {
		return r.Key.B == context && r.Status == assoc.StatusPermanent
	})
	if err != nil {
		return nil, err
	}

	terms := make([]TermStrength, len(records))
	for i, r := range records {
		terms[i] = TermStrength{Term: r.Key.A, Strength: r.Strength}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Strength != terms[j].Strength {
			return terms[i].Strength > terms[j].Strength
		}
		return terms[i].Term < terms[j].Term
	})
	return terms, nil
}

// #endregion read
