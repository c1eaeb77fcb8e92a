package manager

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/association-learning/go-learner/internal/assoc"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/judgment"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/sequence"
)

var base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func tempManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	config := DefaultConfig()
	config.Cache.Enabled = false // deterministic reads; cache covered separately
	if mutate != nil {
		mutate(&config)
	}
	m, err := NewManager(filepath.Join(t.TempDir(), "learn.db"), config, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func turnAt(ts time.Time) Observation {
	return Observation{
		TurnID:        "t-" + ts.Format("20060102-150405"),
		SessionID:     "s1",
		Timestamp:     ts,
		MessageLength: 12,
	}
}

func TestProcessTurnWritesAllLearners(t *testing.T) {
	m := tempManager(t, nil)

	obs := turnAt(base)
	obs.Terms = []TermObservation{{Term: "ngl", Context: "casual"}}
	obs.Dimensions = map[string]float64{"warmth": 0.8, "humor": 0.6}
	obs.FromState = sequence.StateGreeting
	obs.ToState = sequence.StateQuickQuery

	summary := m.ProcessConversationTurn(context.Background(), obs)
	if summary.Skipped {
		t.Fatalf("turn skipped: %s", summary.SkipReason)
	}
	// One vocab term, one dimension pass, one transition.
	if summary.LearnersWritten != 3 {
		t.Fatalf("expected 3 writes, got %d", summary.LearnersWritten)
	}
	if summary.Budget.Writes != 3 {
		t.Fatalf("budget writes = %d, want 3", summary.Budget.Writes)
	}

	rec, err := m.Store().Get(assoc.NamespaceVocab, assoc.NewKey("ngl", "casual"))
	if err != nil || rec == nil {
		t.Fatalf("vocab record missing: rec=%v err=%v", rec, err)
	}
}

func TestProcessTurnNeverErrorsOnInvalidInput(t *testing.T) {
	m := tempManager(t, nil)

	obs := turnAt(base)
	obs.Terms = []TermObservation{
		{Term: "NGL", Context: "casual"},     // not normalized
		{Term: "ngl", Context: "sarcastic"},  // unknown context
		{Term: "fine", Context: "emotional"}, // valid
	}

	summary := m.ProcessConversationTurn(context.Background(), obs)
	if summary.Skipped {
		t.Fatalf("turn skipped: %s", summary.SkipReason)
	}
	if summary.InvalidInputs != 2 {
		t.Fatalf("expected 2 invalid inputs, got %d", summary.InvalidInputs)
	}
	if summary.LearnersWritten != 1 {
		t.Fatalf("expected 1 write, got %d", summary.LearnersWritten)
	}
}

// With max_writes=2 and three pending term observations, exactly two commit
// and the third is skipped without error.
func TestBudgetWriteCeiling(t *testing.T) {
	m := tempManager(t, func(c *Config) { c.Budget.MaxWrites = 2 })

	obs := turnAt(base)
	obs.Terms = []TermObservation{
		{Term: "ngl", Context: "casual"},
		{Term: "fr", Context: "casual"},
		{Term: "lol", Context: "casual"},
	}

	summary := m.ProcessConversationTurn(context.Background(), obs)
	if summary.LearnersWritten != 2 {
		t.Fatalf("expected 2 committed writes, got %d", summary.LearnersWritten)
	}
	if summary.LearnersSkipped == 0 {
		t.Fatal("expected at least one skipped learner")
	}
	if !summary.Budget.Exhausted {
		t.Fatal("budget should report exhausted")
	}

	third, err := m.Store().Get(assoc.NamespaceVocab, assoc.NewKey("lol", "casual"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if third != nil {
		t.Fatal("third write committed past the ceiling")
	}
}

func TestUnsafeTurnIsHardSkip(t *testing.T) {
	config := DefaultConfig()
	config.Cache.Enabled = false
	assessor := &judgment.Static{Verdict: judgment.Assessment{Safe: false, Confidence: 0.9}}
	m, err := NewManager(filepath.Join(t.TempDir(), "learn.db"), config, assessor)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	obs := turnAt(base)
	obs.Terms = []TermObservation{{Term: "ngl", Context: "casual"}}

	summary := m.ProcessConversationTurn(context.Background(), obs)
	if !summary.Skipped {
		t.Fatal("unsafe turn not skipped")
	}
	if summary.SkipReason != "judgment marked turn unsafe" {
		t.Fatalf("unexpected skip reason: %q", summary.SkipReason)
	}

	rec, _ := m.Store().Get(assoc.NamespaceVocab, assoc.NewKey("ngl", "casual"))
	if rec != nil {
		t.Fatal("unsafe turn still wrote an association")
	}
}

func TestJudgmentOutageSkipsTurn(t *testing.T) {
	config := DefaultConfig()
	config.Cache.Enabled = false
	assessor := &judgment.Static{Err: context.DeadlineExceeded}
	m, err := NewManager(filepath.Join(t.TempDir(), "learn.db"), config, assessor)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	summary := m.ProcessConversationTurn(context.Background(), turnAt(base))
	if !summary.Skipped || summary.SkipReason != "judgment unavailable" {
		t.Fatalf("expected judgment-unavailable skip, got %+v", summary)
	}
}

func TestShortMessageSkipped(t *testing.T) {
	m := tempManager(t, nil)
	obs := turnAt(base)
	obs.MessageLength = 1
	summary := m.ProcessConversationTurn(context.Background(), obs)
	if !summary.Skipped {
		t.Fatal("short message not skipped")
	}
}

func TestKillSwitchDisablesWrites(t *testing.T) {
	t.Setenv("LEARNING_ENABLED", "false")
	m := tempManager(t, nil)

	if m.Enabled() {
		t.Fatal("kill switch ignored")
	}
	obs := turnAt(base)
	obs.Terms = []TermObservation{{Term: "ngl", Context: "casual"}}
	summary := m.ProcessConversationTurn(context.Background(), obs)
	if !summary.Skipped || summary.SkipReason != "learning disabled" {
		t.Fatalf("expected disabled skip, got %+v", summary)
	}
}

func promoteTransition(t *testing.T, m *Manager, from, to string) {
	t.Helper()
	ts := base
	for i := 0; i < 10; i++ {
		obs := turnAt(ts)
		obs.FromState = from
		obs.ToState = to
		summary := m.ProcessConversationTurn(context.Background(), obs)
		if summary.Promotions > 0 {
			return
		}
		ts = ts.Add(2 * 24 * time.Hour)
	}
	t.Fatal("transition never promoted")
}

func TestPromotionSurfacesInSummary(t *testing.T) {
	m := tempManager(t, nil)
	promoteTransition(t, m, sequence.StateGreeting, sequence.StateQuickQuery)

	got, err := m.GetLikelyNextStates(sequence.StateGreeting, 3)
	if err != nil {
		t.Fatalf("GetLikelyNextStates: %v", err)
	}
	if len(got) != 1 || got[0].To != sequence.StateQuickQuery {
		t.Fatalf("unexpected transitions: %v", got)
	}
}

// Read APIs bypass the turn budget entirely: once a turn completes, any
// number of reads still reach the store, regardless of the query and
// lookup ceilings.
func TestReadsAreUnbudgetedBetweenTurns(t *testing.T) {
	m := tempManager(t, func(c *Config) {
		c.Budget.MaxQueries = 2
		c.Budget.MaxLookups = 2
	})
	promoteTransition(t, m, sequence.StateGreeting, sequence.StateQuickQuery)

	for i := 1; i <= 15; i++ {
		got, err := m.GetLikelyNextStates(sequence.StateGreeting, 3)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if len(got) != 1 || got[0].To != sequence.StateQuickQuery {
			t.Fatalf("read %d degraded to %v", i, got)
		}
	}
	for i := 1; i <= 15; i++ {
		if _, err := m.ShouldUseTerm("ngl", "casual", 0.3); err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
	}
}

// Mutating a slice or map returned by a read API must not leak into the
// read cache and poison later calls.
func TestReadResultsAreIsolatedFromCache(t *testing.T) {
	config := DefaultConfig()
	config.Cache.RefreshInterval = 1000 // keep the refresh tick out of the way
	m, err := NewManager(filepath.Join(t.TempDir(), "learn.db"), config, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	ts := base
	for i := 0; i < 5; i++ {
		obs := turnAt(ts)
		obs.Terms = []TermObservation{{Term: "ngl", Context: "casual"}}
		obs.Dimensions = map[string]float64{"warmth": 0.9, "humor": 0.8}
		m.ProcessConversationTurn(context.Background(), obs)
		ts = ts.Add(2 * 24 * time.Hour)
	}

	terms, err := m.GetVocabularyForContext("casual")
	if err != nil || len(terms) != 1 {
		t.Fatalf("unexpected vocabulary: %v err=%v", terms, err)
	}
	preds, err := m.GetDimensionPredictionsFor("warmth", 0.9)
	if err != nil || len(preds) != 1 {
		t.Fatalf("unexpected predictions: %v err=%v", preds, err)
	}
	m.cache.cache.Wait()

	terms[0].Term = "clobbered"
	terms[0].Strength = -1
	preds["humor"] = -1

	terms, err = m.GetVocabularyForContext("casual")
	if err != nil || len(terms) != 1 {
		t.Fatalf("second vocabulary read: %v err=%v", terms, err)
	}
	if terms[0].Term != "ngl" || terms[0].Strength <= 0 {
		t.Fatalf("caller mutation leaked into cached vocabulary: %+v", terms[0])
	}
	preds, err = m.GetDimensionPredictionsFor("warmth", 0.9)
	if err != nil {
		t.Fatalf("second prediction read: %v", err)
	}
	if got := preds["humor"]; got <= 0 {
		t.Fatalf("caller mutation leaked into cached predictions: %f", got)
	}
}

func TestReadAPIsBeforeAnyPromotion(t *testing.T) {
	m := tempManager(t, nil)

	ok, err := m.ShouldUseTerm("ngl", "casual", 0.3)
	if err != nil || ok {
		t.Fatalf("unlearned term usable: ok=%v err=%v", ok, err)
	}
	terms, err := m.GetVocabularyForContext("casual")
	if err != nil || len(terms) != 0 {
		t.Fatalf("unexpected vocabulary: %v err=%v", terms, err)
	}
	preds, err := m.GetDimensionPredictionsFor("warmth", 0.8)
	if err != nil || len(preds) != 0 {
		t.Fatalf("unexpected predictions: %v err=%v", preds, err)
	}
}

func TestResetSessionClearsCounters(t *testing.T) {
	m := tempManager(t, nil)
	obs := turnAt(base)
	obs.Terms = []TermObservation{{Term: "ngl", Context: "casual"}}
	m.ProcessConversationTurn(context.Background(), obs)

	m.ResetSession()
	report, err := m.GetHealthSummary()
	if err != nil {
		t.Fatalf("GetHealthSummary: %v", err)
	}
	if report.TurnsProcessed != 0 {
		t.Fatalf("turn counter survived reset: %d", report.TurnsProcessed)
	}
	// Learned records persist across sessions.
	if report.StagingCount == 0 {
		t.Fatal("staging record lost on session reset")
	}
}

func TestHealthSummaryCountsAndWarnings(t *testing.T) {
	m := tempManager(t, func(c *Config) {
		c.StagingDriftThreshold = 1
		c.StagingStalenessDays = 14
	})

	obs := turnAt(base)
	obs.Terms = []TermObservation{
		{Term: "ngl", Context: "casual"},
		{Term: "fr", Context: "casual"},
	}
	m.ProcessConversationTurn(context.Background(), obs)
	promoteTransition(t, m, sequence.StateGreeting, sequence.StateQuickQuery)

	report, err := m.GetHealthSummary()
	if err != nil {
		t.Fatalf("GetHealthSummary: %v", err)
	}
	if report.PermanentCount != 1 {
		t.Fatalf("permanent count = %d, want 1", report.PermanentCount)
	}
	if report.StagingCount < 2 {
		t.Fatalf("staging count = %d, want >= 2", report.StagingCount)
	}
	if len(report.RecentPromotions) != 1 {
		t.Fatalf("recent promotions = %d, want 1", len(report.RecentPromotions))
	}
	if report.PromotionRate != 1.0 {
		t.Fatalf("promotion rate = %f, want 1.0", report.PromotionRate)
	}

	var sawBacklog bool
	for _, w := range report.Warnings {
		if strings.Contains(w, "staging backlog") {
			sawBacklog = true
		}
	}
	if !sawBacklog {
		t.Fatalf("expected staging backlog warning, got %v", report.Warnings)
	}
}

func TestMaintenanceSweep(t *testing.T) {
	m := tempManager(t, nil)
	promoteTransition(t, m, sequence.StateGreeting, sequence.StateQuickQuery)

	obs := turnAt(base)
	obs.Terms = []TermObservation{{Term: "ngl", Context: "casual"}}
	m.ProcessConversationTurn(context.Background(), obs)

	decayed, err := m.ApplyTemporalDecay(0)
	if err != nil {
		t.Fatalf("ApplyTemporalDecay: %v", err)
	}
	var total int
	for _, n := range decayed {
		total += n
	}
	if total == 0 {
		t.Fatal("nothing decayed with zero-day threshold")
	}

	results, err := m.PruneAll(2.0, 0) // strength floor above any record
	if err != nil {
		t.Fatalf("PruneAll: %v", err)
	}
	if results[assoc.NamespaceSequence].Pruned != 1 {
		t.Fatalf("expected the permanent transition pruned, got %+v", results[assoc.NamespaceSequence])
	}
}

func TestConfigValidation(t *testing.T) {
	config := DefaultConfig()
	config.Learning.VocabRate = 0
	if err := config.Validate(); err == nil {
		t.Fatal("zero learning rate accepted")
	}

	config = DefaultConfig()
	config.Quarantine.ExpirationDays = config.Quarantine.MinDaysSpan
	if err := config.Validate(); err == nil {
		t.Fatal("expiration inside quarantine span accepted")
	}

	config = DefaultConfig()
	config.Budget.MaxWrites = 0
	if err := config.Validate(); err == nil {
		t.Fatal("zero write budget accepted")
	}
}

func TestReadCacheRefreshTick(t *testing.T) {
	rc, err := newReadCache(CacheConfig{Enabled: true, Size: 64, RefreshInterval: 3})
	if err != nil {
		t.Fatalf("newReadCache: %v", err)
	}

	rc.set("k", true)
	rc.cache.Wait()

	// Reads 1 and 2 hit; read 3 falls on the refresh tick and misses.
	for i := 1; i <= 2; i++ {
		if _, ok := rc.get("k"); !ok {
			t.Fatalf("read %d missed", i)
		}
	}
	if _, ok := rc.get("k"); ok {
		t.Fatal("refresh tick served the cached value")
	}

	// Disabled cache is a nil receiver and always misses.
	var disabled *readCache
	if _, ok := disabled.get("k"); ok {
		t.Fatal("nil cache returned a hit")
	}
	disabled.set("k", true)
	disabled.clear()
}
