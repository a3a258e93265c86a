package core

import (
	"context"
	"fmt"

	"forestcore/pkg/domain"
)

// FetchValidationProcedures lists the screening rules and their criteria.
func (s *Service) FetchValidationProcedures(_ context.Context) ([]domain.ValidationProcedure, error) {
	procs := make([]domain.ValidationProcedure, 0, len(s.screens))
	for _, rule := range s.screens {
		procs = append(procs, rule.Procedure())
	}
	return procs, nil
}

// FetchValidationReport computes the wholesale failure snapshot: every
// measurement checked against every enabled screen, failures keyed by the
// durable measurement ID. Reports replace each other entirely.
func (s *Service) FetchValidationReport(ctx context.Context, schema string) (domain.ValidationReport, error) {
	var report domain.ValidationReport
	err := s.instrument(ctx, "fetch_validation_report", func(ctx context.Context) error {
		if err := s.checkSchema(schema); err != nil {
			return err
		}
		return s.store.View(ctx, func(view TransactionView) error {
			for _, m := range view.ListMeasurements() {
				var failure domain.ValidationFailure
				for _, rule := range s.screens {
					proc := rule.Procedure()
					if !proc.Enabled {
						continue
					}
					if msg, failed := rule.Check(view, m); failed {
						failure.ValidationErrorIDs = append(failure.ValidationErrorIDs, proc.ValidationID)
						failure.Descriptions = append(failure.Descriptions, msg)
					}
				}
				if len(failure.ValidationErrorIDs) > 0 {
					failure.CoreMeasurementID = m.ID
					report.Failed = append(report.Failed, failure)
				}
			}
			return nil
		})
	})
	if err != nil {
		return domain.ValidationReport{}, err
	}
	return report, nil
}

// RunValidation re-screens every stored measurement and persists the derived
// validated flag, returning a run summary.
func (s *Service) RunValidation(ctx context.Context, schema string) (domain.ValidationRunSummary, error) {
	var summary domain.ValidationRunSummary
	err := s.instrument(ctx, "run_validation", func(ctx context.Context) error {
		if err := s.checkSchema(schema); err != nil {
			return err
		}
		ids := make([]int64, 0)
		if err := s.store.View(ctx, func(view TransactionView) error {
			for _, m := range view.ListMeasurements() {
				ids = append(ids, m.ID)
			}
			return nil
		}); err != nil {
			return err
		}
		// An identity rewrite of each measurement re-runs the screens and
		// folds the verdict back into the stored validated flag.
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			for _, id := range ids {
				if _, err := tx.UpdateMeasurement(id, func(*CoreMeasurement) error { return nil }); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		failed := make(map[int64]bool)
		for _, v := range res.Violations {
			if v.Severity == SeverityFlag && v.Entity == EntityMeasurement {
				failed[v.EntityID] = true
			}
		}
		summary = domain.ValidationRunSummary{
			TotalRows:  len(ids),
			FailedRows: len(failed),
			Message:    fmt.Sprintf("screened %d measurements, %d flagged", len(ids), len(failed)),
		}
		return nil
	})
	if err != nil {
		return domain.ValidationRunSummary{}, err
	}
	s.markSummaryStale()
	return summary, nil
}
