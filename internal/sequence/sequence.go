package sequence

import (
	"fmt"
	"sort"
	"time"

	"github.com/danielpatrickdp/association-learning/go-learner/internal/assoc"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/store"
)

// #region states

// The fixed conversation-state enumeration. Transition keys only ever use
// these labels.
const (
	StateGreeting              = "greeting"
	StateProblemStatement      = "problem_statement"
	StateClarificationQuestion = "clarification_question"
	StateInformationGathering  = "information_gathering"
	StatePositiveFeedback      = "positive_feedback"
	StateNegativeFeedback      = "negative_feedback"
	StateSolutionProvided      = "solution_provided"
	StateOffTopic              = "off_topic"
	StateDeepDiscussion        = "deep_discussion"
	StateEmotionalSupport      = "emotional_support"
	StateQuickQuery            = "quick_query"
	StateFarewell              = "farewell"
)

// States returns the full enumeration.
func States() []string {
	return []string{
		StateGreeting, StateProblemStatement, StateClarificationQuestion,
		StateInformationGathering, StatePositiveFeedback, StateNegativeFeedback,
		StateSolutionProvided, StateOffTopic, StateDeepDiscussion,
		StateEmotionalSupport, StateQuickQuery, StateFarewell,
	}
}

// IsValidState reports whether s is a known conversation state.
func IsValidState(s string) bool {
	for _, state := range States() {
		if s == state {
			return true
		}
	}
	return false
}

// #endregion states

// #region learner

// Learner learns conversation-state transition probabilities.
type Learner struct {
	store *store.Store
}

// New creates a Learner over the shared store.
func New(s *store.Store) *Learner {
	return &Learner{store: s}
}

// Observe records one from→to transition.
func (l *Learner) Observe(fromState, toState string, ts time.Time) (store.UpsertResult, error) {
	if !IsValidState(fromState) {
		return store.UpsertResult{}, fmt.Errorf("%w: unknown state %q", assoc.ErrInvalidObservation, fromState)
	}
	if !IsValidState(toState) {
		return store.UpsertResult{}, fmt.Errorf("%w: unknown state %q", assoc.ErrInvalidObservation, toState)
	}
	return l.store.Upsert(assoc.NamespaceSequence, assoc.NewKey(fromState, toState), ts)
}

// #endregion learner

// #region likely-next

// Transition pairs a destination state with its normalized probability.
type Transition struct {
	To          string  `json:"to"`
	Probability float64 `json:"probability"`
}

// LikelyNextStates returns the topK most probable successors of fromState.
// Probability is each permanent outgoing edge's strength normalized by the
// strength sum of all permanent outgoing edges. With no permanent edges the
// result is empty — a uniform prior is never fabricated.
func (l *Learner) LikelyNextStates(fromState string, topK int) ([]Transition, error) {
	if !IsValidState(fromState) {
		return nil, fmt.Errorf("%w: unknown state %q", assoc.ErrInvalidObservation, fromState)
	}
	if topK <= 0 {
		topK = 3
	}

	records, err := l.store.QueryNamespace(assoc.NamespaceSequence, func(r assoc.AssociationRecord) bool {
		return r.Key.A == fromState && r.Status == assoc.StatusPermanent
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	var total float64
	for _, r := range records {
		total += r.Strength
	}
	if total == 0 {
		return nil, nil
	}

	transitions := make([]Transition, len(records))
	for i, r := range records {
		transitions[i] = Transition{To: r.Key.B, Probability: r.Strength / total}
	}
	sort.Slice(transitions, func(i, j int) bool {
		if transitions[i].Probability != transitions[j].Probability {
			return transitions[i].Probability > transitions[j].Probability
		}
		return transitions[i].To < transitions[j].To
	})
	if len(transitions) > topK {
		transitions = transitions[:topK]
	}
	return transitions, nil
}

// #endregion likely-next
