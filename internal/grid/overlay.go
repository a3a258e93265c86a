package grid

import (
	"context"
	"sync"

	"forestcore/pkg/domain"
)

// Overlay carries advisory validation state for a grid: the catalog of
// validation procedures and the latest failure report, keyed by the durable
// measurement identifier so annotations survive window replacement. The
// overlay never blocks edits or commits.
type Overlay struct {
	source domain.DataSource

	mu         sync.Mutex
	procedures map[int]domain.ValidationProcedure
	failures   map[int64]domain.ValidationFailure
}

// NewOverlay constructs an empty overlay over a data source. Until the first
// RefreshReport every row reads as unannotated.
func NewOverlay(source domain.DataSource) *Overlay {
	return &Overlay{
		source:     source,
		procedures: map[int]domain.ValidationProcedure{},
		failures:   map[int64]domain.ValidationFailure{},
	}
}

// RefreshReport replaces the overlay's state wholesale with a fresh report
// and procedure catalog. A fetch failure leaves the previous state in place.
func (o *Overlay) RefreshReport(ctx context.Context, schemaName string) error {
	report, err := o.source.FetchValidationReport(ctx, schemaName)
	if err != nil {
		return err
	}
	procs, err := o.source.FetchValidationProcedures(ctx)
	if err != nil {
		return err
	}
	procIndex := make(map[int]domain.ValidationProcedure, len(procs))
	for _, p := range procs {
		procIndex[p.ValidationID] = p
	}
	failures := make(map[int64]domain.ValidationFailure, len(report.Failed))
	for _, f := range report.Failed {
		failures[f.CoreMeasurementID] = f
	}
	o.mu.Lock()
	o.procedures = procIndex
	o.failures = failures
	o.mu.Unlock()
	return nil
}

// CellError pairs a failed rule with its human-readable description for one
// grid cell.
type CellError struct {
	ValidationID int
	Description  string
}

// RowFailure reports whether the given durable row id has any recorded
// validation failures.
func (o *Overlay) RowFailure(entityID int64) (domain.ValidationFailure, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.failures[entityID]
	return f, ok
}

// CellErrors returns the failures attributable to one column of one row. A
// failure maps onto a column when the column's field name appears among the
// failed procedure's criteria; failures whose procedure is unknown or has no
// criteria attach to no column.
func (o *Overlay) CellErrors(entityID int64, field string) []CellError {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.failures[entityID]
	if !ok {
		return nil
	}
	var out []CellError
	for i, vid := range f.ValidationErrorIDs {
		proc, ok := o.procedures[vid]
		if !ok || !proc.AppliesTo(field) {
			continue
		}
		desc := proc.Description
		if i < len(f.Descriptions) && f.Descriptions[i] != "" {
			desc = f.Descriptions[i]
		}
		out = append(out, CellError{ValidationID: vid, Description: desc})
	}
	return out
}

// CellHasError reports whether any recorded failure maps onto the given
// column of the given row.
func (o *Overlay) CellHasError(entityID int64, field string) bool {
	return len(o.CellErrors(entityID, field)) > 0
}

// RowStatus classifies a row for display: failed when the report names it,
// pending when the row has never been screened, passed otherwise.
func (o *Overlay) RowStatus(row Row) domain.ValidationStatus {
	o.mu.Lock()
	_, failed := o.failures[row.EntityID]
	o.mu.Unlock()
	if failed {
		return domain.ValidationFailed
	}
	switch v := row.Field("isValidated").(type) {
	case nil:
		return domain.ValidationPending
	case *bool:
		if v == nil {
			return domain.ValidationPending
		}
		if !*v {
			return domain.ValidationFailed
		}
	case bool:
		if !v {
			return domain.ValidationFailed
		}
	}
	return domain.ValidationPassed
}

// Counts tallies the visible window by validation status.
func (o *Overlay) Counts(rows []Row) domain.ValidationCounts {
	var c domain.ValidationCounts
	for _, r := range rows {
		switch o.RowStatus(r) {
		case domain.ValidationFailed:
			c.Errors++
		case domain.ValidationPending:
			c.Pending++
		default:
			c.Valid++
		}
	}
	return c
}
