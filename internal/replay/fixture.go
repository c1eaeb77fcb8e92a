package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/association-learning/go-learner/internal/manager"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a recorded
// observation stream plus the record states the stream must produce.
type Fixture struct {
	Description  string               `json:"description"`
	Observations []FixtureObservation `json:"observations"`
	Expectations []FixtureExpectation `json:"expectations"`
}

// FixtureObservation mirrors manager.Observation with a relative clock: Day
// offsets the observation from the fixture epoch so fixtures stay valid as
// wall time advances.
type FixtureObservation struct {
	TurnID        string                    `json:"turn_id"`
	SessionID     string                    `json:"session_id"`
	Day           int                       `json:"day"`
	MessageLength int                       `json:"message_length"`
	Terms         []manager.TermObservation `json:"terms,omitempty"`
	Dimensions    map[string]float64        `json:"dimensions,omitempty"`
	FromState     string                    `json:"from_state,omitempty"`
	ToState       string                    `json:"to_state,omitempty"`
}

// FixtureExpectation names one association and the lifecycle status the
// replayed stream must leave it in. Status "absent" asserts the record was
// never created.
type FixtureExpectation struct {
	Namespace string `json:"namespace"`
	KeyA      string `json:"key_a"`
	KeyB      string `json:"key_b"`
	Status    string `json:"status"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToObservation anchors a fixture observation to the given epoch.
func (fo *FixtureObservation) ToObservation(epoch time.Time) manager.Observation {
	return manager.Observation{
		TurnID:        fo.TurnID,
		SessionID:     fo.SessionID,
		Timestamp:     epoch.AddDate(0, 0, fo.Day),
		MessageLength: fo.MessageLength,
		Terms:         fo.Terms,
		Dimensions:    fo.Dimensions,
		FromState:     fo.FromState,
		ToState:       fo.ToState,
	}
}

// #endregion fixture-loader
