package judgment

import "context"

// Static is an Assessor that always returns the same verdict. Used when no
// judgment service is configured and throughout the tests.
type Static struct {
	Verdict Assessment
	Err     error
}

// Permissive returns a Static assessor that approves every turn with full
// confidence. This is the offline default: learning proceeds without an
// external judgment service.
func Permissive() *Static {
	return &Static{Verdict: Assessment{Safe: true, Confidence: 1.0}}
}

// Assess returns the fixed verdict.
func (s *Static) Assess(_ context.Context, _ TurnContext) (Assessment, error) {
	return s.Verdict, s.Err
}
