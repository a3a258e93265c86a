package core

import (
	"context"
	"fmt"

	"forestcore/pkg/domain"
)

// QuadratBoundsRule blocks quadrats whose footprint does not fit inside the
// owning plot. Unlike the measurement screens this rule rejects the commit.
type QuadratBoundsRule struct{}

// NewQuadratBoundsRule constructs the rule.
func NewQuadratBoundsRule() QuadratBoundsRule { return QuadratBoundsRule{} }

// Name implements Rule.
func (QuadratBoundsRule) Name() string { return "quadrat_within_plot_bounds" }

// Evaluate implements Rule.
func (QuadratBoundsRule) Evaluate(_ context.Context, view RuleView, changes []Change) (Result, error) {
	var result Result
	for _, change := range changes {
		if change.Entity != EntityQuadrat || change.Action == ActionDelete {
			continue
		}
		q, ok := change.After.(Quadrat)
		if !ok {
			continue
		}
		plot, ok := view.FindPlot(q.PlotID)
		if !ok {
			continue
		}
		if plot.DimensionX <= 0 || plot.DimensionY <= 0 {
			continue
		}
		if q.StartX < 0 || q.StartY < 0 || q.StartX+q.DimensionX > plot.DimensionX || q.StartY+q.DimensionY > plot.DimensionY {
			result.Violations = append(result.Violations, Violation{
				Rule:     "quadrat_within_plot_bounds",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("quadrat %q extends outside plot %q", q.QuadratName, plot.PlotName),
				Entity:   EntityQuadrat,
				EntityID: q.ID,
			})
		}
	}
	return result, nil
}

var _ domain.Rule = QuadratBoundsRule{}
