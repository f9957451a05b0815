// Package risk maps a fraud probability to the decision returned to callers.
package risk

import (
	"encoding/json"
	"fmt"
	"math"
)

// Probability cut-offs. Both bounds are inclusive on the higher level.
const (
	HighCutoff   = 0.8
	MediumCutoff = 0.5
)

// Level is an immutable value object representing the risk classification.
type Level struct {
	value string
}

var (
	LevelLow    = Level{value: "LOW"}
	LevelMedium = Level{value: "MEDIUM"}
	LevelHigh   = Level{value: "HIGH"}
)

// LevelFromString reconstructs a Level from its string representation.
func LevelFromString(s string) (Level, error) {
	switch s {
	case "LOW":
		return LevelLow, nil
	case "MEDIUM":
		return LevelMedium, nil
	case "HIGH":
		return LevelHigh, nil
	default:
		return Level{}, fmt.Errorf("invalid risk level: %s", s)
	}
}

// LevelFromProbability derives the level for P(fraud) p.
func LevelFromProbability(p float64) Level {
	switch {
	case p >= HighCutoff:
		return LevelHigh
	case p >= MediumCutoff:
		return LevelMedium
	default:
		return LevelLow
	}
}

// String returns the string representation.
func (l Level) String() string {
	return l.value
}

// IsZero returns true if the level has not been set.
func (l Level) IsZero() bool {
	return l.value == ""
}

// Equal checks equality with another Level.
func (l Level) Equal(other Level) bool {
	return l.value == other.value
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.value)
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := LevelFromString(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Decision is the scored outcome for one receipt.
type Decision struct {
	IsFraudulent     bool    `json:"is_fraudulent"`
	FraudProbability float64 `json:"fraud_probability"`
	RiskLevel        Level   `json:"risk_level"`
	Confidence       float64 `json:"confidence"`
}

// Decide builds the Decision for probability p. Values outside [0, 1] are
// clamped and NaN is treated as 0.
func Decide(p float64) Decision {
	if math.IsNaN(p) {
		p = 0
	}
	p = math.Min(math.Max(p, 0), 1)
	return Decision{
		IsFraudulent:     p >= MediumCutoff,
		FraudProbability: p,
		RiskLevel:        LevelFromProbability(p),
		Confidence:       math.Max(p, 1-p),
	}
}
