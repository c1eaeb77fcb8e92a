package judgment

import "context"

// #region contract

// TurnContext is what the external judgment service receives. Raw user text
// never crosses this boundary; only derived features do.
type TurnContext struct {
	TurnID        string
	SessionID     string
	MessageLength int
	Metadata      map[string]string
}

// Assessment is the upstream judgment verdict for one turn.
type Assessment struct {
	Safe       bool
	Confidence float64
	Issues     []string
}

// Assessor scores a conversational turn for ambiguity, contradiction, and
// confidence. Consumed once per turn before any learning occurs.
type Assessor interface {
	Assess(ctx context.Context, tc TurnContext) (Assessment, error)
}

// #endregion contract

// #region safety-config

// SafetyConfig holds the learning-gate thresholds applied to assessments.
type SafetyConfig struct {
	MinConfidence        float64
	MinMessageLength     int
	SkipIfJudgmentIssues bool
}

// DefaultSafetyConfig returns the stock gating thresholds.
func DefaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		MinConfidence:        0.6,
		MinMessageLength:     3,
		SkipIfJudgmentIssues: true,
	}
}

// #endregion safety-config

// #region gate

// ShouldLearn evaluates the hard vetoes for a turn. A false result is a
// by-design skip of the entire turn, not an error. The reason names the
// first veto that fired.
func ShouldLearn(a Assessment, messageLength int, config SafetyConfig) (bool, string) {
	if !a.Safe {
		return false, "judgment marked turn unsafe"
	}
	if a.Confidence < config.MinConfidence {
		return false, "judgment confidence below floor"
	}
	if messageLength < config.MinMessageLength {
		return false, "message too short to learn from"
	}
	if config.SkipIfJudgmentIssues && len(a.Issues) > 0 {
		return false, "judgment reported issues: " + a.Issues[0]
	}
	return true, ""
}

// #endregion gate
