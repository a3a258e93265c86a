package core

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"forestcore/pkg/domain"
)

// FetchPage executes one window query: scope restriction, structured filters,
// quick-filter tokens, single-column sort, then pagination. The whole window
// plus the total matching count comes back so the grid can replace its rows
// wholesale.
func (s *Service) FetchPage(ctx context.Context, req domain.PageRequest) (domain.PageResult, error) {
	var result domain.PageResult
	err := s.instrument(ctx, "fetch_page", func(ctx context.Context) error {
		if err := req.Validate(); err != nil {
			return err
		}
		if err := s.checkSchema(req.Scope.SchemaName); err != nil {
			return err
		}
		rows, err := s.rowsFor(ctx, req.Entity, req.Scope)
		if err != nil {
			return err
		}
		rows = filterRows(rows, req.Filter)
		if req.Sort != nil {
			sortRows(rows, *req.Sort)
		} else {
			sortRowsByKey(rows)
		}
		result.TotalCount = len(rows)
		start := req.Page * req.PageSize
		if start >= len(rows) {
			result.Rows = []domain.Row{}
			return nil
		}
		end := start + req.PageSize
		if end > len(rows) {
			end = len(rows)
		}
		result.Rows = rows[start:end]
		return nil
	})
	if err != nil {
		return domain.PageResult{}, err
	}
	return result, nil
}

func (s *Service) rowsFor(ctx context.Context, entity EntityType, scope domain.Scope) ([]domain.Row, error) {
	if entity == EntityMeasurementsSummary {
		return s.summaryWindow(ctx, scope)
	}
	var rows []domain.Row
	err := s.store.View(ctx, func(view TransactionView) error {
		switch entity {
		case EntityCensus:
			for _, c := range view.ListCensuses() {
				if c.PlotID == scope.PlotID {
					rows = append(rows, domain.CensusRow(c))
				}
			}
		case EntityQuadrat:
			censusID, ok := censusIDForScope(view, scope)
			if !ok {
				return nil
			}
			for _, q := range view.ListQuadrats() {
				if q.CensusID == censusID {
					rows = append(rows, domain.QuadratRow(q))
				}
			}
		case EntityAttribute:
			for _, a := range view.ListAttributes() {
				rows = append(rows, domain.AttributeRow(a))
			}
		case EntityPersonnel:
			censusID, _ := censusIDForScope(view, scope)
			for _, p := range view.ListPersonnel() {
				if p.CensusID == 0 || p.CensusID == censusID {
					rows = append(rows, domain.PersonnelRow(p))
				}
			}
		case EntitySpecies:
			for _, sp := range view.ListSpecies() {
				rows = append(rows, domain.SpeciesRow(sp))
			}
		case EntityMeasurement:
			censusID, ok := censusIDForScope(view, scope)
			if !ok {
				return nil
			}
			for _, m := range view.ListMeasurements() {
				if m.CensusID != censusID {
					continue
				}
				if scope.QuadratID != 0 && m.QuadratID != scope.QuadratID {
					continue
				}
				rows = append(rows, domain.MeasurementRow(m))
			}
		default:
			return fmt.Errorf("entity %s has no grid window", entity)
		}
		return nil
	})
	return rows, err
}

// censusIDForScope resolves the scope's plot census number to a census record.
func censusIDForScope(view TransactionView, scope domain.Scope) (int64, bool) {
	for _, c := range view.ListCensuses() {
		if c.PlotID == scope.PlotID && c.PlotCensusNumber == scope.PlotCensusNumber {
			return c.ID, true
		}
	}
	return 0, false
}

func filterRows(rows []domain.Row, filter domain.FilterSpec) []domain.Row {
	if filter.Empty() {
		return rows
	}
	out := rows[:0:0]
	for _, row := range rows {
		if !matchesItems(row, filter.Items) {
			continue
		}
		if !row.MatchesTokens(filter.QuickFilter) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func matchesItems(row domain.Row, items []domain.FilterItem) bool {
	for _, item := range items {
		value := row.Field(item.Field)
		text := ""
		if value != nil {
			text = fmt.Sprint(value)
		}
		switch item.Operator {
		case domain.FilterEquals:
			if !strings.EqualFold(text, item.Value) {
				return false
			}
		case domain.FilterContains:
			if !strings.Contains(strings.ToLower(text), strings.ToLower(item.Value)) {
				return false
			}
		case domain.FilterGreaterThan:
			a, aerr := strconv.ParseFloat(text, 64)
			b, berr := strconv.ParseFloat(item.Value, 64)
			if aerr != nil || berr != nil || a <= b {
				return false
			}
		case domain.FilterLessThan:
			a, aerr := strconv.ParseFloat(text, 64)
			b, berr := strconv.ParseFloat(item.Value, 64)
			if aerr != nil || berr != nil || a >= b {
				return false
			}
		case domain.FilterIsEmpty:
			if value != nil && text != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func sortRows(rows []domain.Row, spec domain.SortSpec) {
	asc := spec.Direction != domain.SortDescending
	sort.SliceStable(rows, func(i, j int) bool {
		less := compareField(rows[i].Field(spec.Field), rows[j].Field(spec.Field))
		if asc {
			return less < 0
		}
		return less > 0
	})
}

// sortRowsByKey gives unsorted windows a stable natural order so pagination
// boundaries stay deterministic across fetches.
func sortRowsByKey(rows []domain.Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].EntityID < rows[j].EntityID
	})
}

func compareField(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := "", ""
	if a != nil {
		as = fmt.Sprint(a)
	}
	if b != nil {
		bs = fmt.Sprint(b)
	}
	return strings.Compare(strings.ToLower(as), strings.ToLower(bs))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
