package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row/entity conversion happens at the persistence boundary: stores keep typed
// entities, grids see field bags. The client-local row ID is assigned per page
// window by the caller.

const dateLayout = "2006-01-02"

// CensusRow flattens a census into its grid row shape.
func CensusRow(c Census) Row {
	row := Row{EntityID: c.ID, Fields: map[string]any{
		"censusID":         c.ID,
		"plotID":           c.PlotID,
		"plotCensusNumber": c.PlotCensusNumber,
		"startDate":        formatDate(c.StartDate),
		"endDate":          formatDate(c.EndDate),
		"description":      c.Description,
	}}
	return row
}

// QuadratRow flattens a quadrat into its grid row shape.
func QuadratRow(q Quadrat) Row {
	return Row{EntityID: q.ID, Fields: map[string]any{
		"quadratID":    q.ID,
		"plotID":       q.PlotID,
		"censusID":     q.CensusID,
		"quadratName":  q.QuadratName,
		"startX":       q.StartX,
		"startY":       q.StartY,
		"dimensionX":   q.DimensionX,
		"dimensionY":   q.DimensionY,
		"area":         q.Area,
		"quadratShape": q.QuadratShape,
	}}
}

// AttributeRow flattens an attribute code into its grid row shape.
func AttributeRow(a Attribute) Row {
	return Row{EntityID: a.ID, Fields: map[string]any{
		"attributeID": a.ID,
		"code":        a.Code,
		"description": a.Description,
		"status":      string(a.Status),
	}}
}

// PersonnelRow flattens a personnel record into its grid row shape.
func PersonnelRow(p Personnel) Row {
	return Row{EntityID: p.ID, Fields: map[string]any{
		"personnelID": p.ID,
		"censusID":    p.CensusID,
		"firstName":   p.FirstName,
		"lastName":    p.LastName,
		"role":        string(p.Role),
	}}
}

// SpeciesRow flattens a species record into its grid row shape.
func SpeciesRow(s Species) Row {
	return Row{EntityID: s.ID, Fields: map[string]any{
		"speciesID":      s.ID,
		"speciesCode":    s.SpeciesCode,
		"family":         s.Family,
		"genus":          s.Genus,
		"speciesName":    s.SpeciesName,
		"subspeciesName": s.SubspeciesName,
		"idLevel":        s.IDLevel,
		"authority":      s.Authority,
	}}
}

// MeasurementRow flattens a core measurement into its grid row shape.
func MeasurementRow(m CoreMeasurement) Row {
	var validated any
	if m.IsValidated != nil {
		validated = *m.IsValidated
	}
	return Row{EntityID: m.ID, Fields: map[string]any{
		"coreMeasurementID": m.ID,
		"plotID":            m.PlotID,
		"censusID":          m.CensusID,
		"quadratID":         m.QuadratID,
		"speciesCode":       m.SpeciesCode,
		"treeTag":           m.TreeTag,
		"stemTag":           m.StemTag,
		"measuredDBH":       floatOrNil(m.MeasuredDBH),
		"dbhUnits":          m.DBHUnits,
		"measuredHOM":       floatOrNil(m.MeasuredHOM),
		"homUnits":          m.HOMUnits,
		"measurementDate":   formatDate(m.MeasurementDate),
		"attributes":        strings.Join(m.Attributes, ";"),
		"isValidated":       validated,
		"description":       m.Description,
	}}
}

// CensusFromRow reassembles a census from a grid row.
func CensusFromRow(row Row) (Census, error) {
	c := Census{
		PlotID:           fieldInt64(row, "plotID"),
		PlotCensusNumber: int(fieldInt64(row, "plotCensusNumber")),
		Description:      fieldString(row, "description"),
	}
	c.ID = row.EntityID
	var err error
	if c.StartDate, err = parseDate(fieldString(row, "startDate")); err != nil {
		return Census{}, fmt.Errorf("startDate: %w", err)
	}
	if c.EndDate, err = parseDate(fieldString(row, "endDate")); err != nil {
		return Census{}, fmt.Errorf("endDate: %w", err)
	}
	return c, nil
}

// QuadratFromRow reassembles a quadrat from a grid row.
func QuadratFromRow(row Row) (Quadrat, error) {
	q := Quadrat{
		PlotID:       fieldInt64(row, "plotID"),
		CensusID:     fieldInt64(row, "censusID"),
		QuadratName:  fieldString(row, "quadratName"),
		StartX:       fieldFloat(row, "startX"),
		StartY:       fieldFloat(row, "startY"),
		DimensionX:   fieldFloat(row, "dimensionX"),
		DimensionY:   fieldFloat(row, "dimensionY"),
		Area:         fieldFloat(row, "area"),
		QuadratShape: fieldString(row, "quadratShape"),
	}
	q.ID = row.EntityID
	return q, nil
}

// AttributeFromRow reassembles an attribute code from a grid row.
func AttributeFromRow(row Row) (Attribute, error) {
	a := Attribute{
		Code:        fieldString(row, "code"),
		Description: fieldString(row, "description"),
		Status:      AttributeStatus(fieldString(row, "status")),
	}
	a.ID = row.EntityID
	return a, nil
}

// PersonnelFromRow reassembles a personnel record from a grid row.
func PersonnelFromRow(row Row) (Personnel, error) {
	p := Personnel{
		CensusID:  fieldInt64(row, "censusID"),
		FirstName: fieldString(row, "firstName"),
		LastName:  fieldString(row, "lastName"),
		Role:      PersonnelRole(fieldString(row, "role")),
	}
	p.ID = row.EntityID
	return p, nil
}

// SpeciesFromRow reassembles a species record from a grid row.
func SpeciesFromRow(row Row) (Species, error) {
	s := Species{
		SpeciesCode:    fieldString(row, "speciesCode"),
		Family:         fieldString(row, "family"),
		Genus:          fieldString(row, "genus"),
		SpeciesName:    fieldString(row, "speciesName"),
		SubspeciesName: fieldString(row, "subspeciesName"),
		IDLevel:        fieldString(row, "idLevel"),
		Authority:      fieldString(row, "authority"),
	}
	s.ID = row.EntityID
	return s, nil
}

// MeasurementFromRow reassembles a core measurement from a grid row.
func MeasurementFromRow(row Row) (CoreMeasurement, error) {
	m := CoreMeasurement{
		PlotID:      fieldInt64(row, "plotID"),
		CensusID:    fieldInt64(row, "censusID"),
		QuadratID:   fieldInt64(row, "quadratID"),
		SpeciesCode: fieldString(row, "speciesCode"),
		TreeTag:     fieldString(row, "treeTag"),
		StemTag:     fieldString(row, "stemTag"),
		DBHUnits:    fieldString(row, "dbhUnits"),
		HOMUnits:    fieldString(row, "homUnits"),
		Description: fieldString(row, "description"),
	}
	m.ID = row.EntityID
	m.MeasuredDBH = fieldFloatPtr(row, "measuredDBH")
	m.MeasuredHOM = fieldFloatPtr(row, "measuredHOM")
	if attrs := fieldString(row, "attributes"); attrs != "" {
		m.Attributes = strings.Split(attrs, ";")
	}
	var err error
	if m.MeasurementDate, err = parseDate(fieldString(row, "measurementDate")); err != nil {
		return CoreMeasurement{}, fmt.Errorf("measurementDate: %w", err)
	}
	return m, nil
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(dateLayout)
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func floatOrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func fieldString(row Row, name string) string {
	v := row.Field(name)
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func fieldInt64(row Row, name string) int64 {
	switch v := row.Field(name).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

func fieldFloat(row Row, name string) float64 {
	if p := fieldFloatPtr(row, name); p != nil {
		return *p
	}
	return 0
}

func fieldFloatPtr(row Row, name string) *float64 {
	switch v := row.Field(name).(type) {
	case float64:
		return &v
	case int64:
		f := float64(v)
		return &f
	case int:
		f := float64(v)
		return &f
	case string:
		if v == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return &f
		}
		return nil
	default:
		return nil
	}
}
