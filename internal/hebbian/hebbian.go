package hebbian

// #region config

// Config holds the reinforcement, competition, and decay parameters shared
// by the three learners. Rates are fixed per namespace.
type Config struct {
	VocabRate          float64 // reinforcement rate for term↔context associations
	DimensionRate      float64 // base rate for dimension pairs, scaled by min co-activation
	SequenceRate       float64 // reinforcement rate for state transitions
	SiblingPenaltyRate float64 // competitive penalty for non-co-occurring sibling keys
	DecayWindowDays    float64 // elapsed days at which an unreinforced strength reaches zero
}

// DefaultConfig returns the stock learning parameters. The sibling penalty
// is one fifth of the reinforcement rate so a single co-occurrence always
// outweighs one round of competition.
func DefaultConfig() Config {
	return Config{
		VocabRate:          0.10,
		DimensionRate:      0.10,
		SequenceRate:       0.10,
		SiblingPenaltyRate: 0.02,
		DecayWindowDays:    90,
	}
}

// #endregion config

// #region update-rules

// Reinforce applies the Hebbian co-occurrence update:
// strength_new = strength_old + rate * (1 - strength_old), clamped to [0,1].
func Reinforce(old, rate float64) float64 {
	return clamp01(old + rate*(1-old))
}

// Penalize applies the competitive update for a sibling key that did not
// co-occur. Bounded so strength never goes negative.
func Penalize(old, rate float64) float64 {
	return clamp01(old * (1 - rate))
}

// DecayFactor returns the multiplier for an unreinforced strength after
// elapsedDays: max(0, 1 - elapsed/window). Pure in elapsed time, so a
// sweep applied twice at the same instant produces the same strength.
func DecayFactor(elapsedDays, windowDays float64) float64 {
	if windowDays <= 0 {
		return 1
	}
	f := 1 - elapsedDays/windowDays
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// #endregion update-rules

// #region helpers

// clamp01 restricts v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
