package score

import (
	"math"

	"github.com/evidentlabs/beacon/internal/model"
)

// Weights parameterizes the item score. Values come from configuration and
// never change after construction.
type Weights struct {
	Role      map[string]float64 // canonical role -> weight
	Age       float64            // per day unresolved
	Topic     float64            // flat bonus when a topic keyword is cited
	Repeat    float64            // per corroborating citation beyond the first
	RepeatCap int                // repeat contributions stop counting here
}

// DefaultWeights mirrors the shipped configuration defaults.
func DefaultWeights() Weights {
	return Weights{
		Role: map[string]float64{
			"director": 2.0,
			"pm":       1.5,
			"ba":       1.2,
			"dev":      1.0,
		},
		Age:       0.8,
		Topic:     0.7,
		Repeat:    0.5,
		RepeatCap: 3,
	}
}

// Inputs are the locally derived facts a score is computed from. None of
// them come from inference output: age is measured against the corpus
// snapshot, the topic flag is a keyword match over cited text, and the
// repeat count reflects merged citations.
type Inputs struct {
	Role            string // free-form owner hint, normalized internally
	DaysUnresolved  int
	HasTopicKeyword bool
	RepeatCount     int
}

// Engine computes item scores. Pure and total: identical inputs and weights
// produce identical output, and inputs outside their domain clamp instead of
// erroring.
type Engine struct {
	weights Weights
	roles   *RoleNormalizer
	lowest  float64
}

// NewEngine builds an engine around the given weights. An empty role table
// falls back to the defaults so the engine stays total.
func NewEngine(w Weights) *Engine {
	if len(w.Role) == 0 {
		w.Role = DefaultWeights().Role
	}
	if w.RepeatCap <= 0 {
		w.RepeatCap = DefaultWeights().RepeatCap
	}
	lowest := math.Inf(1)
	for _, v := range w.Role {
		if v < lowest {
			lowest = v
		}
	}
	return &Engine{
		weights: w,
		roles:   NewRoleNormalizer(w.Role),
		lowest:  lowest,
	}
}

// Score computes the item score and its per-term breakdown.
//
//	score = role_weight[role]
//	      + age_weight    * max(0, days_unresolved)
//	      + topic_weight  * [has_topic_keyword]
//	      + repeat_weight * min(repeat_count, repeat_cap)
//
// Unknown roles take the lowest configured tier.
func (e *Engine) Score(in Inputs) (float64, model.ScoreParts) {
	parts := model.ScoreParts{Role: e.lowest}
	if role, ok := e.roles.Normalize(in.Role); ok {
		parts.Role = e.weights.Role[role]
	}

	days := in.DaysUnresolved
	if days < 0 {
		days = 0
	}
	parts.Age = e.weights.Age * float64(days)

	if in.HasTopicKeyword {
		parts.Topic = e.weights.Topic
	}

	repeats := in.RepeatCount
	if repeats < 0 {
		repeats = 0
	}
	if repeats > e.weights.RepeatCap {
		repeats = e.weights.RepeatCap
	}
	parts.Repeat = e.weights.Repeat * float64(repeats)

	return parts.Role + parts.Age + parts.Topic + parts.Repeat, parts
}
