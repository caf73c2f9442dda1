// Package rules implements the smart-fix selector: guard conditions
// over the current health snapshot bound to repair actions with static
// confidence scores, ranked at selection time and biased by learning
// weights from past repair outcomes.
package rules

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/shizukutanaka/Kaifuku/internal/health"
)

// Snapshot is the health view a guard condition evaluates against
type Snapshot = map[health.Component]health.Status

// Rule binds a guard condition to a candidate repair action
type Rule struct {
	ID          string
	Description string
	Category    string
	Action      string
	Confidence  float64
	Condition   func(Snapshot) bool
}

// Learning weight bounds. The weight biases ranking multiplicatively
// but never zeroes a rule out entirely.
const (
	weightFloor   = 0.1
	weightCeiling = 10.0
	successFactor = 1.1
	failureFactor = 0.9
)

// Engine evaluates and ranks rules against a health snapshot
type Engine struct {
	logger  *zap.Logger
	rules   []Rule
	weights map[string]float64
	mu      sync.RWMutex
}

// NewEngine creates a rule engine. Confidences outside [0,1] are
// clamped at registration.
func NewEngine(logger *zap.Logger, ruleSet []Rule) *Engine {
	rules := make([]Rule, len(ruleSet))
	copy(rules, ruleSet)
	for i := range rules {
		if rules[i].Confidence < 0 {
			rules[i].Confidence = 0
		} else if rules[i].Confidence > 1 {
			rules[i].Confidence = 1
		}
	}

	return &Engine{
		logger:  logger,
		rules:   rules,
		weights: make(map[string]float64),
	}
}

// SelectApplicable returns the rules whose guard holds for the
// snapshot, ranked descending by effective confidence. A guard that
// panics counts as false and never aborts selection.
func (e *Engine) SelectApplicable(snapshot Snapshot) []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var applicable []Rule
	for _, rule := range e.rules {
		if e.guardHolds(rule, snapshot) {
			applicable = append(applicable, rule)
		}
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		return e.effectiveConfidence(applicable[i]) > e.effectiveConfidence(applicable[j])
	})

	return applicable
}

// SelectTop returns at most k applicable rules. The cap bounds repair
// cost per cycle; firing every matching rule each tick invites repair
// storms.
func (e *Engine) SelectTop(snapshot Snapshot, k int) []Rule {
	applicable := e.SelectApplicable(snapshot)
	if k > 0 && len(applicable) > k {
		applicable = applicable[:k]
	}
	return applicable
}

// EffectiveConfidence is the static confidence biased by the rule's
// learning weight, capped at 1.
func (e *Engine) EffectiveConfidence(rule Rule) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.effectiveConfidence(rule)
}

// RecordOutcome adjusts a rule's learning weight after a repair
// attempt. Success raises it, failure lowers it; the weight stays
// strictly positive.
func (e *Engine) RecordOutcome(ruleID string, success bool) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	weight := e.weight(ruleID)
	if success {
		weight *= successFactor
	} else {
		weight *= failureFactor
	}
	if weight < weightFloor {
		weight = weightFloor
	} else if weight > weightCeiling {
		weight = weightCeiling
	}
	e.weights[ruleID] = weight

	e.logger.Debug("Rule weight adjusted",
		zap.String("rule", ruleID),
		zap.Bool("success", success),
		zap.Float64("weight", weight),
	)

	return weight
}

// Weight returns the current learning weight for a rule
func (e *Engine) Weight(ruleID string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weight(ruleID)
}

// Rules returns a copy of the configured rule set
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

func (e *Engine) weight(ruleID string) float64 {
	if w, ok := e.weights[ruleID]; ok {
		return w
	}
	return 1.0
}

func (e *Engine) effectiveConfidence(rule Rule) float64 {
	c := rule.Confidence * e.weight(rule.ID)
	if c > 1 {
		c = 1
	}
	return c
}

func (e *Engine) guardHolds(rule Rule, snapshot Snapshot) (holds bool) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Warn("Rule guard panicked, treating as false",
				zap.String("rule", rule.ID),
				zap.Any("panic", rec),
			)
			holds = false
		}
	}()

	if rule.Condition == nil {
		return false
	}
	return rule.Condition(snapshot)
}
