package domain

// ValidationProcedure describes one screening rule applied to measurements.
// Criteria lists the row fields the rule inspects; the grid overlay uses it to
// decide which cell an error annotation attaches to.
type ValidationProcedure struct {
	ValidationID int      `json:"validationID"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Criteria     []string `json:"criteria"`
	Enabled      bool     `json:"enabled"`
}

// AppliesTo reports whether the procedure's criteria reference a column.
func (p ValidationProcedure) AppliesTo(field string) bool {
	for _, c := range p.Criteria {
		if c == field {
			return true
		}
	}
	return false
}

// ValidationFailure records the rules a single measurement failed. The two
// slices are parallel: Descriptions[i] explains ValidationErrorIDs[i].
type ValidationFailure struct {
	CoreMeasurementID  int64    `json:"coreMeasurementID"`
	ValidationErrorIDs []int    `json:"validationErrorIDs"`
	Descriptions       []string `json:"descriptions"`
}

// ValidationReport is one wholesale snapshot of failing measurements within a
// schema. Reports replace each other entirely; absence of a prior entry means
// the measurement now passes.
type ValidationReport struct {
	Failed []ValidationFailure `json:"failed"`
}

// ValidationRunSummary reports the outcome of an explicit validation run.
type ValidationRunSummary struct {
	TotalRows  int    `json:"totalRows"`
	FailedRows int    `json:"failedRows"`
	Message    string `json:"message"`
}

// ValidationStatus classifies a measurement row for overlay display.
type ValidationStatus string

// Overlay row statuses.
const (
	ValidationPassed  ValidationStatus = "passed"
	ValidationFailed  ValidationStatus = "failed"
	ValidationPending ValidationStatus = "pending"
)

// ValidationCounts aggregates row statuses for the current scope.
type ValidationCounts struct {
	Valid   int `json:"countValid"`
	Errors  int `json:"countErrors"`
	Pending int `json:"countPending"`
}
