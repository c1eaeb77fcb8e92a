package replay

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/association-learning/go-learner/internal/manager"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func tempManager(t *testing.T) *manager.Manager {
	t.Helper()
	config := manager.DefaultConfig()
	config.Cache.Enabled = false
	m, err := manager.NewManager(filepath.Join(t.TempDir(), "replay.db"), config, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func writeFixture(t *testing.T, f Fixture) string {
	t.Helper()
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// promotionFixture reinforces one term every other day: five observations
// across eight days satisfies the quarantine gate.
func promotionFixture() Fixture {
	f := Fixture{Description: "term promotes, unrepeated term stays staging"}
	for i := 0; i < 5; i++ {
		f.Observations = append(f.Observations, FixtureObservation{
			TurnID:        "t" + string(rune('1'+i)),
			SessionID:     "s1",
			Day:           i * 2,
			MessageLength: 12,
			Terms:         []manager.TermObservation{{Term: "ngl", Context: "casual"}},
		})
	}
	f.Observations = append(f.Observations, FixtureObservation{
		TurnID:        "t-once",
		SessionID:     "s1",
		Day:           0,
		MessageLength: 12,
		Terms:         []manager.TermObservation{{Term: "fr", Context: "casual"}},
	})
	f.Expectations = []FixtureExpectation{
		{Namespace: "vocab", KeyA: "ngl", KeyB: "casual", Status: "permanent"},
		{Namespace: "vocab", KeyA: "fr", KeyB: "casual", Status: "staging"},
		{Namespace: "vocab", KeyA: "never", KeyB: "casual", Status: "absent"},
	}
	return f
}

func TestLoadFixtureRoundTrip(t *testing.T) {
	want := promotionFixture()
	path := writeFixture(t, want)

	got, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if got.Description != want.Description {
		t.Fatalf("description = %q", got.Description)
	}
	if len(got.Observations) != 6 || len(got.Expectations) != 3 {
		t.Fatalf("fixture shape: %d observations, %d expectations",
			len(got.Observations), len(got.Expectations))
	}
	if got.Observations[1].Day != 2 {
		t.Fatalf("day offset lost: %d", got.Observations[1].Day)
	}
}

func TestLoadFixtureErrors(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("missing file accepted")
	}
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json"), 0o644)
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("malformed JSON accepted")
	}
}

func TestReplayMeetsExpectations(t *testing.T) {
	m := tempManager(t)
	f := promotionFixture()

	s, err := Replay(context.Background(), m, &f, epoch)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !s.Passed() {
		t.Fatalf("replay mismatches: %v", s.Mismatches)
	}
	if s.TotalTurns != 6 || s.TurnsSkipped != 0 {
		t.Fatalf("turns=%d skipped=%d", s.TotalTurns, s.TurnsSkipped)
	}
	if s.Promotions != 1 {
		t.Fatalf("promotions = %d, want 1", s.Promotions)
	}
}

func TestReplayReportsMismatch(t *testing.T) {
	m := tempManager(t)
	f := promotionFixture()
	f.Expectations = []FixtureExpectation{
		{Namespace: "vocab", KeyA: "fr", KeyB: "casual", Status: "permanent"},
	}

	s, err := Replay(context.Background(), m, &f, epoch)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if s.Passed() {
		t.Fatal("expected a mismatch")
	}
	if s.Mismatches[0].Got != "staging" {
		t.Fatalf("mismatch got = %q", s.Mismatches[0].Got)
	}
}

func TestReplayDimensionExpectationUsesCanonicalKey(t *testing.T) {
	m := tempManager(t)
	f := Fixture{}
	for i := 0; i < 5; i++ {
		f.Observations = append(f.Observations, FixtureObservation{
			TurnID:        "d" + string(rune('1'+i)),
			SessionID:     "s1",
			Day:           i * 2,
			MessageLength: 12,
			Dimensions:    map[string]float64{"warmth": 0.9, "humor": 0.8},
		})
	}
	// Expectation names the pair in reverse order; the harness canonicalizes.
	f.Expectations = []FixtureExpectation{
		{Namespace: "dimension", KeyA: "warmth", KeyB: "humor", Status: "permanent"},
	}

	s, err := Replay(context.Background(), m, &f, epoch)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !s.Passed() {
		t.Fatalf("replay mismatches: %v", s.Mismatches)
	}
}

func TestReplayCountsSkippedTurns(t *testing.T) {
	m := tempManager(t)
	f := Fixture{
		Observations: []FixtureObservation{
			{TurnID: "short", SessionID: "s1", Day: 0, MessageLength: 1,
				Terms: []manager.TermObservation{{Term: "ngl", Context: "casual"}}},
		},
		Expectations: []FixtureExpectation{
			{Namespace: "vocab", KeyA: "ngl", KeyB: "casual", Status: "absent"},
		},
	}

	s, err := Replay(context.Background(), m, &f, epoch)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if s.TurnsSkipped != 1 {
		t.Fatalf("skipped = %d, want 1", s.TurnsSkipped)
	}
	if !s.Passed() {
		t.Fatalf("replay mismatches: %v", s.Mismatches)
	}
}
