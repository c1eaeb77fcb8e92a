package manager

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/association-learning/go-learner/internal/assoc"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/budget"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/dimension"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/judgment"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/sequence"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/store"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/vocab"
)

// #endregion

// #region observation

// TermObservation is one normalized term seen in one conversational context.
type TermObservation struct {
	Term    string `json:"term"`
	Context string `json:"context"`
}

// Observation is the per-turn learning input. All fields are derived
// features; raw message text never reaches this layer.
type Observation struct {
	TurnID        string             `json:"turn_id"`
	SessionID     string             `json:"session_id"`
	Timestamp     time.Time          `json:"timestamp"`
	MessageLength int                `json:"message_length"`
	Terms         []TermObservation  `json:"terms,omitempty"`
	Dimensions    map[string]float64 `json:"dimensions,omitempty"`
	FromState     string             `json:"from_state,omitempty"`
	ToState       string             `json:"to_state,omitempty"`
}

// TurnSummary reports what one turn's learning pass actually did.
type TurnSummary struct {
	TurnID          string         `json:"turn_id"`
	Skipped         bool           `json:"skipped"`
	SkipReason      string         `json:"skip_reason,omitempty"`
	LearnersWritten int            `json:"learners_written"`
	LearnersSkipped int            `json:"learners_skipped"`
	Promotions      int            `json:"promotions"`
	InvalidInputs   int            `json:"invalid_inputs"`
	StorageDegraded bool           `json:"storage_degraded"`
	Budget          budget.Summary `json:"budget"`
}

// #endregion observation

// #region manager

// Manager wires the three learners, the judgment gate, the per-turn budget,
// and the read cache over one shared store. One Manager per database.
type Manager struct {
	store    *store.Store
	vocab    *vocab.Associator
	dims     *dimension.Associator
	seq      *sequence.Learner
	assessor judgment.Assessor
	config   Config
	cache    *readCache
	enabled  bool

	mu             sync.Mutex
	turnsProcessed int
	turnsSkipped   int
	promotions     int
}

// NewManager opens the store at dbPath and wires every learner.
// assessor may be nil; learning then proceeds without an external judgment
// service. Kill switch: set LEARNING_ENABLED=false to observe without writing.
func NewManager(dbPath string, config Config, assessor judgment.Assessor) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	enabled := true
	if v := os.Getenv("LEARNING_ENABLED"); v == "false" {
		enabled = false
	}

	storeConfig := store.NewConfig(config.Learning, config.Quarantine)
	s, err := store.NewStore(dbPath, storeConfig)
	if err != nil {
		return nil, fmt.Errorf("open association store: %w", err)
	}

	cache, err := newReadCache(config.Cache)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("init read cache: %w", err)
	}

	if assessor == nil {
		assessor = judgment.Permissive()
	}

	return &Manager{
		store:    s,
		vocab:    vocab.New(s, vocab.DefaultContexts()),
		dims:     dimension.New(s),
		seq:      sequence.New(s),
		assessor: assessor,
		config:   config,
		cache:    cache,
		enabled:  enabled,
	}, nil
}

// Close releases the store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// Store exposes the underlying store for maintenance tooling.
func (m *Manager) Store() *store.Store {
	return m.store
}

// Enabled returns whether the kill switch allows writes.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// ResetSession clears per-session counters and the read cache. Learned
// associations persist across sessions; only ephemeral state resets.
func (m *Manager) ResetSession() {
	m.mu.Lock()
	m.turnsProcessed = 0
	m.turnsSkipped = 0
	m.promotions = 0
	m.mu.Unlock()
	m.cache.clear()
}

// #endregion manager

// #region process-turn

// ProcessConversationTurn runs one full learning pass. It never returns an
// error: a turn that cannot be learned from is skipped, and storage failures
// degrade the turn rather than the conversation.
func (m *Manager) ProcessConversationTurn(ctx context.Context, obs Observation) TurnSummary {
	if obs.TurnID == "" {
		obs.TurnID = uuid.NewString()
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now().UTC()
	}
	summary := TurnSummary{TurnID: obs.TurnID}

	if !m.enabled {
		return m.skip(summary, "learning disabled")
	}

	assessment, err := m.assessor.Assess(ctx, judgment.TurnContext{
		TurnID:        obs.TurnID,
		SessionID:     obs.SessionID,
		MessageLength: obs.MessageLength,
	})
	if err != nil {
		// Judgment outage is treated as an unsafe verdict, never a guess.
		log.Printf("[LEARN] judgment unavailable for turn %s: %v", obs.TurnID, err)
		return m.skip(summary, "judgment unavailable")
	}
	if ok, reason := judgment.ShouldLearn(assessment, obs.MessageLength, m.config.Safety); !ok {
		return m.skip(summary, reason)
	}

	b := budget.Start(m.config.Budget)

	// Learner order is fixed so budget exhaustion always starves the same
	// tail: vocabulary first, then dimensions, then sequence.
	for _, t := range obs.Terms {
		if !m.runLearner(b, &summary, func() (store.UpsertResult, error) {
			return m.vocab.Observe(t.Term, t.Context, obs.Timestamp)
		}) {
			break
		}
	}

	if !summary.StorageDegraded && len(obs.Dimensions) > 1 {
		if b.IsTimeExceeded() || !b.CanWrite() {
			summary.LearnersSkipped++
		} else {
			results, err := m.dims.Observe(obs.Dimensions, obs.Timestamp)
			m.recordOutcome(b, &summary, err)
			for _, r := range results {
				if r.Promoted {
					summary.Promotions++
				}
			}
		}
	}

	if !summary.StorageDegraded && obs.FromState != "" && obs.ToState != "" {
		if b.IsTimeExceeded() || !b.CanWrite() {
			summary.LearnersSkipped++
		} else {
			res, err := m.seq.Observe(obs.FromState, obs.ToState, obs.Timestamp)
			m.recordOutcome(b, &summary, err)
			if res.Promoted {
				summary.Promotions++
			}
		}
	}

	summary.Budget = b.Summary()

	m.mu.Lock()
	m.turnsProcessed++
	m.promotions += summary.Promotions
	m.mu.Unlock()

	log.Printf("[LEARN] turn=%s written=%d skipped=%d promotions=%d invalid=%d exhausted=%v",
		summary.TurnID, summary.LearnersWritten, summary.LearnersSkipped,
		summary.Promotions, summary.InvalidInputs, summary.Budget.Exhausted)
	return summary
}

// runLearner executes one write-producing observation under the budget.
// Returns false when the turn should stop learning entirely.
func (m *Manager) runLearner(b *budget.Budget, summary *TurnSummary, observe func() (store.UpsertResult, error)) bool {
	if b.IsTimeExceeded() || !b.CanWrite() {
		summary.LearnersSkipped++
		return false
	}
	res, err := observe()
	m.recordOutcome(b, summary, err)
	if res.Promoted {
		summary.Promotions++
	}
	return !summary.StorageDegraded
}

// recordOutcome folds one observation result into the turn summary.
func (m *Manager) recordOutcome(b *budget.Budget, summary *TurnSummary, err error) {
	switch {
	case err == nil:
		b.RecordWrite()
		summary.LearnersWritten++
	case errors.Is(err, assoc.ErrInvalidObservation):
		summary.InvalidInputs++
	case errors.Is(err, assoc.ErrStorageUnavailable):
		log.Printf("[LEARN] storage degraded, abandoning turn: %v", err)
		summary.StorageDegraded = true
	default:
		log.Printf("[LEARN] observation failed: %v", err)
		summary.StorageDegraded = true
	}
}

func (m *Manager) skip(summary TurnSummary, reason string) TurnSummary {
	summary.Skipped = true
	summary.SkipReason = reason
	m.mu.Lock()
	m.turnsSkipped++
	m.mu.Unlock()
	log.Printf("[LEARN] turn=%s skipped: %s", summary.TurnID, reason)
	return summary
}

// #endregion process-turn

// #region read-apis

// Read APIs are not writes and never touch a turn budget: they go through
// the read cache and then the store, whether or not a turn is in flight.
// Cached slices and maps are private to the cache; callers always receive
// a copy they may mutate freely.

// ShouldUseTerm reports whether term has a permanent association with
// context at or above threshold.
func (m *Manager) ShouldUseTerm(term, context string, threshold float64) (bool, error) {
	key := fmt.Sprintf("term:%s|%s|%.2f", term, context, threshold)
	if v, ok := m.cache.get(key); ok {
		return v.(bool), nil
	}
	ok, err := m.vocab.ShouldUseTerm(term, context, threshold)
	if err != nil {
		return false, err
	}
	m.cache.set(key, ok)
	return ok, nil
}

// GetVocabularyForContext returns every permanent term for context,
// strongest first.
func (m *Manager) GetVocabularyForContext(context string) ([]vocab.TermStrength, error) {
	key := "vocab:" + context
	if v, ok := m.cache.get(key); ok {
		return copyTerms(v.([]vocab.TermStrength)), nil
	}
	terms, err := m.vocab.TermsForContext(context)
	if err != nil {
		return nil, err
	}
	m.cache.set(key, terms)
	return copyTerms(terms), nil
}

// GetDimensionPredictionsFor predicts co-activations for one personality
// dimension at the given activation value.
func (m *Manager) GetDimensionPredictionsFor(dim string, value float64) (map[string]float64, error) {
	key := fmt.Sprintf("dims:%s|%.4f", dim, value)
	if v, ok := m.cache.get(key); ok {
		return copyPredictions(v.(map[string]float64)), nil
	}
	preds, err := m.dims.Predict(dim, value)
	if err != nil {
		return nil, err
	}
	m.cache.set(key, preds)
	return copyPredictions(preds), nil
}

// GetLikelyNextStates returns the topK most probable conversation states
// following fromState.
func (m *Manager) GetLikelyNextStates(fromState string, topK int) ([]sequence.Transition, error) {
	key := fmt.Sprintf("seq:%s|%d", fromState, topK)
	if v, ok := m.cache.get(key); ok {
		return copyTransitions(v.([]sequence.Transition)), nil
	}
	transitions, err := m.seq.LikelyNextStates(fromState, topK)
	if err != nil {
		return nil, err
	}
	m.cache.set(key, transitions)
	return copyTransitions(transitions), nil
}

func copyTerms(in []vocab.TermStrength) []vocab.TermStrength {
	if in == nil {
		return nil
	}
	out := make([]vocab.TermStrength, len(in))
	copy(out, in)
	return out
}

func copyPredictions(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyTransitions(in []sequence.Transition) []sequence.Transition {
	if in == nil {
		return nil
	}
	out := make([]sequence.Transition, len(in))
	copy(out, in)
	return out
}

// #endregion read-apis

// #region maintenance

// ApplyTemporalDecay weakens associations not reinforced in daysInactive
// days, across all namespaces. Returns decayed-record counts per namespace.
func (m *Manager) ApplyTemporalDecay(daysInactive int) (map[assoc.Namespace]int, error) {
	counts := make(map[assoc.Namespace]int, len(assoc.AllNamespaces()))
	for _, ns := range assoc.AllNamespaces() {
		n, err := m.store.Decay(ns, daysInactive)
		if err != nil {
			return counts, fmt.Errorf("decay %s: %w", ns, err)
		}
		counts[ns] = n
	}
	m.cache.clear()
	return counts, nil
}

// PruneResult reports one namespace's maintenance sweep.
type PruneResult struct {
	Expired int `json:"expired"`
	Pruned  int `json:"pruned"`
	Purged  int `json:"purged"`
}

// PruneAll runs the full maintenance sweep on every namespace: expire stale
// staging records, prune weak or rarely-seen permanent records, then purge
// expired rows entirely.
func (m *Manager) PruneAll(minStrength float64, minObservations int) (map[assoc.Namespace]PruneResult, error) {
	results := make(map[assoc.Namespace]PruneResult, len(assoc.AllNamespaces()))
	for _, ns := range assoc.AllNamespaces() {
		var r PruneResult
		var err error
		if r.Expired, err = m.store.ExpireStale(ns); err != nil {
			return results, fmt.Errorf("expire %s: %w", ns, err)
		}
		if r.Pruned, err = m.store.Prune(ns, minStrength, minObservations); err != nil {
			return results, fmt.Errorf("prune %s: %w", ns, err)
		}
		if r.Purged, err = m.store.PurgeExpired(ns); err != nil {
			return results, fmt.Errorf("purge %s: %w", ns, err)
		}
		results[ns] = r
	}
	m.cache.clear()
	return results, nil
}

// #endregion maintenance
