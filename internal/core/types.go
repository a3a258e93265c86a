package core

import "forestcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Plot               = domain.Plot
	Census             = domain.Census
	Quadrat            = domain.Quadrat
	Attribute          = domain.Attribute
	Personnel          = domain.Personnel
	Species            = domain.Species
	CoreMeasurement    = domain.CoreMeasurement
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityPlot                = domain.EntityPlot
	EntityCensus              = domain.EntityCensus
	EntityQuadrat             = domain.EntityQuadrat
	EntityAttribute           = domain.EntityAttribute
	EntityPersonnel           = domain.EntityPersonnel
	EntitySpecies             = domain.EntitySpecies
	EntityMeasurement         = domain.EntityMeasurement
	EntityMeasurementsSummary = domain.EntityMeasurementsSummary
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityFlag  = domain.SeverityFlag
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
