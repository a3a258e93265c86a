package core

import (
	"context"

	"forestcore/pkg/domain"
)

// The measurements summary view denormalizes measurements with their quadrat
// and species names, mirroring a materialized view: it serves stale rows until
// RefreshSummaryView recomputes it.

func (s *Service) markSummaryStale() {
	s.summaryMu.Lock()
	s.summaryStale = true
	s.summaryMu.Unlock()
}

// RefreshSummaryView recomputes the summary rows from current state.
func (s *Service) RefreshSummaryView(ctx context.Context, schema string) error {
	return s.instrument(ctx, "refresh_summary_view", func(ctx context.Context) error {
		if err := s.checkSchema(schema); err != nil {
			return err
		}
		rows, err := s.computeSummaryRows(ctx)
		if err != nil {
			return err
		}
		s.summaryMu.Lock()
		s.summaryRows = rows
		s.summaryStale = false
		s.summaryMu.Unlock()
		return nil
	})
}

// summaryWindow returns the summary rows restricted to the request scope,
// materializing on first use.
func (s *Service) summaryWindow(ctx context.Context, scope domain.Scope) ([]domain.Row, error) {
	s.summaryMu.Lock()
	stale := s.summaryStale
	s.summaryMu.Unlock()
	if stale {
		rows, err := s.computeSummaryRows(ctx)
		if err != nil {
			return nil, err
		}
		s.summaryMu.Lock()
		s.summaryRows = rows
		s.summaryStale = false
		s.summaryMu.Unlock()
	}
	s.summaryMu.Lock()
	defer s.summaryMu.Unlock()
	var out []domain.Row
	for _, row := range s.summaryRows {
		if scope.PlotID != 0 && row.Field("plotID") != any(scope.PlotID) {
			continue
		}
		out = append(out, row.Clone())
	}
	return out, nil
}

func (s *Service) computeSummaryRows(ctx context.Context) ([]domain.Row, error) {
	var rows []domain.Row
	err := s.store.View(ctx, func(view TransactionView) error {
		quadratNames := make(map[int64]string)
		for _, q := range view.ListQuadrats() {
			quadratNames[q.ID] = q.QuadratName
		}
		for _, m := range view.ListMeasurements() {
			var validated any
			if m.IsValidated != nil {
				validated = *m.IsValidated
			}
			var dbh, hom any
			if m.MeasuredDBH != nil {
				dbh = *m.MeasuredDBH
			}
			if m.MeasuredHOM != nil {
				hom = *m.MeasuredHOM
			}
			var date any
			if m.MeasurementDate != nil {
				date = m.MeasurementDate.UTC().Format("2006-01-02")
			}
			rows = append(rows, domain.Row{EntityID: m.ID, Fields: map[string]any{
				"coreMeasurementID": m.ID,
				"plotID":            m.PlotID,
				"censusID":          m.CensusID,
				"quadratName":       quadratNames[m.QuadratID],
				"speciesCode":       m.SpeciesCode,
				"treeTag":           m.TreeTag,
				"stemTag":           m.StemTag,
				"measuredDBH":       dbh,
				"measuredHOM":       hom,
				"measurementDate":   date,
				"isValidated":       validated,
			}})
		}
		return nil
	})
	return rows, err
}
