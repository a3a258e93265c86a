package core

import (
	"context"

	"forestcore/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in policy set:
// the measurement screening rules feeding the validation overlay plus the
// blocking quadrat-bounds rule.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	for _, rule := range DefaultScreeningRules() {
		engine.Register(rule)
	}
	engine.Register(NewQuadratBoundsRule())
	return engine
}

// ScreeningRule is a measurement screen: it evaluates one measurement at a
// time and advertises the validation procedure metadata the overlay uses to
// attach failures to grid columns. Screening failures flag the measurement
// but never block the transaction.
type ScreeningRule interface {
	Rule
	Procedure() domain.ValidationProcedure
	Check(view RuleView, m CoreMeasurement) (string, bool)
}

// screeningRule adapts a per-measurement check into the transactional rule
// contract by screening every measurement written in the change set.
type screeningRule struct {
	procedure domain.ValidationProcedure
	check     func(view RuleView, m CoreMeasurement) (string, bool)
}

func (r screeningRule) Name() string { return r.procedure.Name }

func (r screeningRule) Procedure() domain.ValidationProcedure { return r.procedure }

func (r screeningRule) Check(view RuleView, m CoreMeasurement) (string, bool) {
	return r.check(view, m)
}

func (r screeningRule) Evaluate(_ context.Context, view RuleView, changes []Change) (Result, error) {
	var result Result
	if !r.procedure.Enabled {
		return result, nil
	}
	for _, change := range changes {
		if change.Entity != EntityMeasurement || change.Action == ActionDelete {
			continue
		}
		m, ok := change.After.(CoreMeasurement)
		if !ok {
			continue
		}
		if msg, failed := r.check(view, m); failed {
			result.Violations = append(result.Violations, Violation{
				Rule:         r.procedure.Name,
				ValidationID: r.procedure.ValidationID,
				Severity:     SeverityFlag,
				Message:      msg,
				Entity:       EntityMeasurement,
				EntityID:     m.ID,
			})
		}
	}
	return result, nil
}
