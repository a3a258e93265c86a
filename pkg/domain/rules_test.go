package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type stubRule struct {
	name       string
	violations []Violation
	err        error
	calls      int
}

func (r *stubRule) Name() string { return r.name }

func (r *stubRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	r.calls++
	if r.err != nil {
		return Result{}, r.err
	}
	return Result{Violations: r.violations}, nil
}

func TestRulesEngineAggregatesResults(t *testing.T) {
	engine := NewRulesEngine()
	first := &stubRule{name: "first", violations: []Violation{{Rule: "first", Severity: SeverityFlag}}}
	second := &stubRule{name: "second", violations: []Violation{{Rule: "second", Severity: SeverityBlock}}}
	engine.Register(first)
	engine.Register(second)

	res, err := engine.Evaluate(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(res.Violations))
	}
	if !res.HasBlocking() {
		t.Fatalf("blocking violation not detected")
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("rules not each evaluated once: %d %d", first.calls, second.calls)
	}
}

func TestRulesEngineErrorAborts(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(&stubRule{name: "broken", err: fmt.Errorf("boom")})
	after := &stubRule{name: "after"}
	engine.Register(after)
	if _, err := engine.Evaluate(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected evaluation error")
	}
	if after.calls != 0 {
		t.Fatalf("rules after a failure still ran")
	}
}

func TestResultHasBlockingIgnoresAdvisorySeverities(t *testing.T) {
	res := Result{Violations: []Violation{
		{Severity: SeverityFlag},
		{Severity: SeverityLog},
	}}
	if res.HasBlocking() {
		t.Fatalf("advisory severities reported as blocking")
	}
}

func TestConflictErrorUnwrapsThroughChain(t *testing.T) {
	base := &ConflictError{ReferencingTable: "coremeasurements"}
	wrapped := fmt.Errorf("delete census 7: %w", base)
	conflict, ok := AsConflict(wrapped)
	if !ok {
		t.Fatalf("conflict not found through wrap chain")
	}
	if conflict.ReferencingTable != "coremeasurements" {
		t.Fatalf("wrong table: %s", conflict.ReferencingTable)
	}
	if _, ok := AsConflict(errors.New("plain")); ok {
		t.Fatalf("plain error treated as conflict")
	}
}

func TestValidationProcedureAppliesTo(t *testing.T) {
	proc := ValidationProcedure{ValidationID: 1, Criteria: []string{"measuredDBH", "measuredHOM"}}
	if !proc.AppliesTo("measuredDBH") {
		t.Fatalf("declared criterion not matched")
	}
	if proc.AppliesTo("treeTag") {
		t.Fatalf("undeclared criterion matched")
	}
	none := ValidationProcedure{ValidationID: 2}
	if none.AppliesTo("measuredDBH") {
		t.Fatalf("criteria-less procedure matched a column")
	}
}
