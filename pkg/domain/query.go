package domain

import (
	"fmt"
	"strings"
)

// SortDirection orders a sorted column.
type SortDirection string

// Sort directions accepted by page requests.
const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// SortSpec names the single active sort column and its direction.
type SortSpec struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// FilterOperator enumerates structured filter predicates.
type FilterOperator string

// Structured filter operators supported by page requests.
const (
	FilterEquals      FilterOperator = "equals"
	FilterContains    FilterOperator = "contains"
	FilterGreaterThan FilterOperator = "gt"
	FilterLessThan    FilterOperator = "lt"
	FilterIsEmpty     FilterOperator = "isEmpty"
)

// FilterItem is one structured predicate against a named field.
type FilterItem struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    string         `json:"value,omitempty"`
}

// FilterSpec combines structured predicates with free-text quick-filter tokens.
// All predicates and all tokens must match for a row to pass.
type FilterSpec struct {
	Items       []FilterItem `json:"items,omitempty"`
	QuickFilter []string     `json:"quickFilterValues,omitempty"`
}

// Empty reports whether the filter constrains nothing.
func (f FilterSpec) Empty() bool {
	return len(f.Items) == 0 && len(f.QuickFilter) == 0
}

// Scope carries the ambient selection keys (site schema, plot, census, quadrat)
// as explicit request parameters. QuadratID is optional; the rest are required
// by ScopedEntities before a fetch may be issued.
type Scope struct {
	SchemaName       string `json:"schema"`
	PlotID           int64  `json:"plotID"`
	PlotCensusNumber int    `json:"plotCensusNumber"`
	QuadratID        int64  `json:"quadratID,omitempty"`
}

// Complete reports whether the scope carries every key the entity type needs.
// Site-level grids (plots, attributes, species, personnel) need only a schema;
// plot-scoped grids additionally need plot and census selections.
func (s Scope) Complete(entity EntityType) bool {
	if s.SchemaName == "" {
		return false
	}
	switch entity {
	case EntityPlot, EntityAttribute, EntitySpecies, EntityPersonnel:
		return true
	default:
		return s.PlotID != 0 && s.PlotCensusNumber != 0
	}
}

// PageRequest describes one window of a grid's backing data.
type PageRequest struct {
	Entity   EntityType `json:"entity"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
	Sort     *SortSpec  `json:"sort,omitempty"`
	Filter   FilterSpec `json:"filter"`
	Scope    Scope      `json:"scope"`
}

// Validate rejects malformed page requests before they reach a store.
func (r PageRequest) Validate() error {
	if r.Page < 0 {
		return fmt.Errorf("page must be non-negative, got %d", r.Page)
	}
	if r.PageSize <= 0 {
		return fmt.Errorf("pageSize must be positive, got %d", r.PageSize)
	}
	if !r.Scope.Complete(r.Entity) {
		return fmt.Errorf("incomplete scope for entity %s", r.Entity)
	}
	return nil
}

// PageResult is the server's answer to a PageRequest: the full visible window
// plus the total matching row count used for page-boundary math.
type PageResult struct {
	Rows       []Row `json:"output"`
	TotalCount int   `json:"totalCount"`
}

// PageCount computes the number of pages a total row count spans.
func PageCount(totalCount, pageSize int) int {
	if pageSize <= 0 || totalCount <= 0 {
		return 0
	}
	return (totalCount + pageSize - 1) / pageSize
}

// LastPage returns the zero-based index of the final page for a row count.
func LastPage(totalCount, pageSize int) int {
	pages := PageCount(totalCount, pageSize)
	if pages == 0 {
		return 0
	}
	return pages - 1
}

// TargetPageForInsert computes the page a newly added row will land on once
// the collection grows by one: ceil((rowCount+1)/pageSize)-1.
func TargetPageForInsert(totalCount, pageSize int) int {
	return LastPage(totalCount+1, pageSize)
}

// OpensNewPage reports whether adding one row starts a fresh page, i.e. the
// current count fills its final page exactly.
func OpensNewPage(totalCount, pageSize int) bool {
	if pageSize <= 0 {
		return false
	}
	return (totalCount+1)%pageSize == 1
}

// String renders a sort spec for diagnostics and cache keys.
func (s SortSpec) String() string {
	if s.Field == "" {
		return ""
	}
	return s.Field + ":" + string(s.Direction)
}

// String renders a scope for diagnostics.
func (s Scope) String() string {
	parts := []string{s.SchemaName}
	if s.PlotID != 0 {
		parts = append(parts, fmt.Sprintf("plot=%d", s.PlotID))
	}
	if s.PlotCensusNumber != 0 {
		parts = append(parts, fmt.Sprintf("census=%d", s.PlotCensusNumber))
	}
	if s.QuadratID != 0 {
		parts = append(parts, fmt.Sprintf("quadrat=%d", s.QuadratID))
	}
	return strings.Join(parts, " ")
}
