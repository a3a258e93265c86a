// Package domain defines the core persistent entities, grid row primitives, and
// validation types used by forestcore.
package domain

import "time"

// EntityType identifies the type of record presented by a grid and stored in
// persistence buckets.
type EntityType string

// Supported entity type identifiers. The string values double as the grid type
// segment in API routes.
const (
	// EntityPlot identifies a plot record.
	EntityPlot EntityType = "plots"
	// EntityCensus identifies a census record.
	EntityCensus EntityType = "census"
	// EntityQuadrat identifies a quadrat record.
	EntityQuadrat EntityType = "quadrats"
	// EntityAttribute identifies a measurement attribute code record.
	EntityAttribute EntityType = "attributes"
	// EntityPersonnel identifies a personnel record.
	EntityPersonnel EntityType = "personnel"
	// EntitySpecies identifies a species record.
	EntitySpecies EntityType = "species"
	// EntityMeasurement identifies a core stem measurement record.
	EntityMeasurement EntityType = "measurements"
	// EntityMeasurementsSummary identifies the derived measurements summary view.
	EntityMeasurementsSummary EntityType = "measurementssummary"
)

// AttributeStatus constrains the status column of measurement attribute codes.
type AttributeStatus string

// Canonical attribute statuses carried over from the CTFS schema.
const (
	AttributeStatusAlive      AttributeStatus = "alive"
	AttributeStatusDead       AttributeStatus = "dead"
	AttributeStatusMissing    AttributeStatus = "missing"
	AttributeStatusBroken     AttributeStatus = "broken below"
	AttributeStatusStemDead   AttributeStatus = "stem dead"
	AttributeStatusOmitted    AttributeStatus = "omitted"
	AttributeStatusNotCensued AttributeStatus = "not censused"
)

// PersonnelRole enumerates the field roles assignable to personnel records.
type PersonnelRole string

// Personnel roles recognised by census assignment workflows.
const (
	RoleLeadTechnician PersonnelRole = "lead technician"
	RoleFieldCrew      PersonnelRole = "field crew"
	RoleDataManager    PersonnelRole = "data manager"
)

// Base contains common fields for all durable records.
type Base struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Plot describes a surveyed forest plot within a site schema.
type Plot struct {
	Base
	PlotName        string  `json:"plotName"`
	LocationName    string  `json:"locationName"`
	CountryName     string  `json:"countryName"`
	DimensionX      float64 `json:"dimensionX"`
	DimensionY      float64 `json:"dimensionY"`
	Area            float64 `json:"area"`
	GlobalX         float64 `json:"globalX"`
	GlobalY         float64 `json:"globalY"`
	PlotShape       string  `json:"plotShape"`
	PlotDescription string  `json:"plotDescription"`
}

// Census is one dated enumeration of a plot. PlotCensusNumber orders censuses
// within a plot and is the scoping key grids filter by.
type Census struct {
	Base
	PlotID           int64      `json:"plotID"`
	PlotCensusNumber int        `json:"plotCensusNumber"`
	StartDate        *time.Time `json:"startDate"`
	EndDate          *time.Time `json:"endDate"`
	Description      string     `json:"description"`
}

// Quadrat is a subdivision of a plot surveyed during a census.
type Quadrat struct {
	Base
	PlotID       int64   `json:"plotID"`
	CensusID     int64   `json:"censusID"`
	QuadratName  string  `json:"quadratName"`
	StartX       float64 `json:"startX"`
	StartY       float64 `json:"startY"`
	DimensionX   float64 `json:"dimensionX"`
	DimensionY   float64 `json:"dimensionY"`
	Area         float64 `json:"area"`
	QuadratShape string  `json:"quadratShape"`
}

// Attribute is a measurement annotation code (alive, dead, broken below, ...).
type Attribute struct {
	Base
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Status      AttributeStatus `json:"status"`
}

// Personnel records a member of the census field team.
type Personnel struct {
	Base
	CensusID  int64         `json:"censusID"`
	FirstName string        `json:"firstName"`
	LastName  string        `json:"lastName"`
	Role      PersonnelRole `json:"role"`
}

// Species records a taxonomic determination referenced by measurements.
type Species struct {
	Base
	SpeciesCode    string `json:"speciesCode"`
	Family         string `json:"family"`
	Genus          string `json:"genus"`
	SpeciesName    string `json:"speciesName"`
	SubspeciesName string `json:"subspeciesName"`
	IDLevel        string `json:"idLevel"`
	Authority      string `json:"authority"`
}

// CoreMeasurement is a single stem measurement captured during a census.
// IsValidated is nil while the record awaits validation, then reflects the
// aggregate pass/fail outcome of the screening rules.
type CoreMeasurement struct {
	Base
	PlotID          int64      `json:"plotID"`
	CensusID        int64      `json:"censusID"`
	QuadratID       int64      `json:"quadratID"`
	SpeciesCode     string     `json:"speciesCode"`
	TreeTag         string     `json:"treeTag"`
	StemTag         string     `json:"stemTag"`
	MeasuredDBH     *float64   `json:"measuredDBH"`
	DBHUnits        string     `json:"dbhUnits"`
	MeasuredHOM     *float64   `json:"measuredHOM"`
	HOMUnits        string     `json:"homUnits"`
	MeasurementDate *time.Time `json:"measurementDate"`
	Attributes      []string   `json:"attributes"`
	IsValidated     *bool      `json:"isValidated"`
	Description     string     `json:"description"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)
