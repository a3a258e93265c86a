package core

import (
	"fmt"
	"time"

	"forestcore/pkg/domain"
)

// Screening bounds in centimeters / meters. Stems outside these ranges are
// flagged for review, not rejected.
const (
	minDBHCm = 1.0
	maxDBHCm = 350.0
	minHOMM  = 0.1
	maxHOMM  = 15.0
)

// DefaultScreeningRules returns the built-in measurement screens in
// validation-ID order.
func DefaultScreeningRules() []ScreeningRule {
	return []ScreeningRule{
		NewDBHRangeRule(),
		NewHOMRangeRule(),
		NewFutureDateRule(),
		NewMissingSpeciesRule(),
	}
}

// NewDBHRangeRule screens measured diameters against the plausible range.
func NewDBHRangeRule() ScreeningRule {
	return screeningRule{
		procedure: domain.ValidationProcedure{
			ValidationID: 1,
			Name:         "ScreenMeasuredDiameterMinMax",
			Description:  "Measured DBH is outside the plausible range",
			Criteria:     []string{"measuredDBH"},
			Enabled:      true,
		},
		check: func(_ RuleView, m CoreMeasurement) (string, bool) {
			if m.MeasuredDBH == nil {
				return "", false
			}
			if *m.MeasuredDBH < minDBHCm || *m.MeasuredDBH > maxDBHCm {
				return fmt.Sprintf("measured DBH %.2f outside range [%.1f, %.1f]", *m.MeasuredDBH, minDBHCm, maxDBHCm), true
			}
			return "", false
		},
	}
}

// NewHOMRangeRule screens heights of measure against the plausible range.
func NewHOMRangeRule() ScreeningRule {
	return screeningRule{
		procedure: domain.ValidationProcedure{
			ValidationID: 2,
			Name:         "ScreenHOMUpperLowerBounds",
			Description:  "Height of measure is outside the plausible range",
			Criteria:     []string{"measuredHOM"},
			Enabled:      true,
		},
		check: func(_ RuleView, m CoreMeasurement) (string, bool) {
			if m.MeasuredHOM == nil {
				return "", false
			}
			if *m.MeasuredHOM < minHOMM || *m.MeasuredHOM > maxHOMM {
				return fmt.Sprintf("height of measure %.2f outside range [%.1f, %.1f]", *m.MeasuredHOM, minHOMM, maxHOMM), true
			}
			return "", false
		},
	}
}

// NewFutureDateRule flags measurement dates in the future.
func NewFutureDateRule() ScreeningRule {
	return screeningRule{
		procedure: domain.ValidationProcedure{
			ValidationID: 3,
			Name:         "ScreenFutureDates",
			Description:  "Measurement date lies in the future",
			Criteria:     []string{"measurementDate"},
			Enabled:      true,
		},
		check: func(_ RuleView, m CoreMeasurement) (string, bool) {
			if m.MeasurementDate == nil {
				return "", false
			}
			if m.MeasurementDate.After(time.Now().UTC()) {
				return fmt.Sprintf("measurement date %s lies in the future", m.MeasurementDate.Format("2006-01-02")), true
			}
			return "", false
		},
	}
}

// NewMissingSpeciesRule flags measurements whose species code is absent or
// unknown to the species table.
func NewMissingSpeciesRule() ScreeningRule {
	return screeningRule{
		procedure: domain.ValidationProcedure{
			ValidationID: 4,
			Name:         "ScreenTreesWithMissingSpeciesCode",
			Description:  "Species code is missing or not recognized",
			Criteria:     []string{"speciesCode"},
			Enabled:      true,
		},
		check: func(view RuleView, m CoreMeasurement) (string, bool) {
			if m.SpeciesCode == "" {
				return "species code is missing", true
			}
			for _, sp := range view.ListSpecies() {
				if sp.SpeciesCode == m.SpeciesCode {
					return "", false
				}
			}
			return fmt.Sprintf("species code %q is not recognized", m.SpeciesCode), true
		},
	}
}
