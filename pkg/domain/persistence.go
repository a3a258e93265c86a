package domain

import "context"

// DataSource is the effect contract the grid engine consumes. Implementations
// include the direct service binding used by tests and the HTTP client used in
// production; the engine never sees anything richer than this.
type DataSource interface {
	// FetchPage returns the full visible window for a query plus the total
	// matching row count. The returned window replaces prior rows wholesale.
	FetchPage(ctx context.Context, req PageRequest) (PageResult, error)
	// SaveRow persists an edit: create when oldRow.IsNew, otherwise update
	// keyed by the entity's durable identifier. Returns the persisted row.
	SaveRow(ctx context.Context, entity EntityType, scope Scope, oldRow, newRow Row) (Row, error)
	// DeleteRow removes a durable record. A referential-integrity conflict is
	// reported as *ConflictError naming the referencing table.
	DeleteRow(ctx context.Context, entity EntityType, scope Scope, entityID int64) error
	// FetchValidationReport returns the current wholesale failure snapshot for
	// a schema.
	FetchValidationReport(ctx context.Context, schema string) (ValidationReport, error)
	// FetchValidationProcedures lists the screening rules and their criteria.
	FetchValidationProcedures(ctx context.Context) ([]ValidationProcedure, error)
	// RefreshSummaryView pokes the dependent measurements summary view. Best
	// effort: callers log failures and continue.
	RefreshSummaryView(ctx context.Context, schema string) error
}

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreatePlot(Plot) (Plot, error)
	UpdatePlot(id int64, mutator func(*Plot) error) (Plot, error)
	DeletePlot(id int64) error
	CreateCensus(Census) (Census, error)
	UpdateCensus(id int64, mutator func(*Census) error) (Census, error)
	DeleteCensus(id int64) error
	CreateQuadrat(Quadrat) (Quadrat, error)
	UpdateQuadrat(id int64, mutator func(*Quadrat) error) (Quadrat, error)
	DeleteQuadrat(id int64) error
	CreateAttribute(Attribute) (Attribute, error)
	UpdateAttribute(id int64, mutator func(*Attribute) error) (Attribute, error)
	DeleteAttribute(id int64) error
	CreatePersonnel(Personnel) (Personnel, error)
	UpdatePersonnel(id int64, mutator func(*Personnel) error) (Personnel, error)
	DeletePersonnel(id int64) error
	CreateSpecies(Species) (Species, error)
	UpdateSpecies(id int64, mutator func(*Species) error) (Species, error)
	DeleteSpecies(id int64) error
	CreateMeasurement(CoreMeasurement) (CoreMeasurement, error)
	UpdateMeasurement(id int64, mutator func(*CoreMeasurement) error) (CoreMeasurement, error)
	DeleteMeasurement(id int64) error
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListPlots() []Plot
	ListCensuses() []Census
	ListQuadrats() []Quadrat
	ListAttributes() []Attribute
	ListPersonnel() []Personnel
	ListSpecies() []Species
	ListMeasurements() []CoreMeasurement
	FindPlot(id int64) (Plot, bool)
	FindCensus(id int64) (Census, bool)
	FindQuadrat(id int64) (Quadrat, bool)
	FindMeasurement(id int64) (CoreMeasurement, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ListPlots() []Plot
	ListCensuses() []Census
	ListQuadrats() []Quadrat
	ListAttributes() []Attribute
	ListPersonnel() []Personnel
	ListSpecies() []Species
	ListMeasurements() []CoreMeasurement
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and reporting.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityFlag records the violation and marks the measurement failed but
	// allows commit; screening rules use this.
	SeverityFlag Severity = "flag"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule         string
	ValidationID int
	Severity     Severity
	Message      string
	Entity       EntityType
	EntityID     int64
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
