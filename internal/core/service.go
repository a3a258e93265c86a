package core

import (
	"context"
	"fmt"
	"sync"

	"forestcore/pkg/domain"
)

// Service satisfies the grid's data contract directly; the HTTP adapter is a
// thin shell around it.
var _ domain.DataSource = (*Service)(nil)

// Service exposes transactional CRUD, paginated window queries, validation
// reporting and the measurements summary view over a persistent store.
type Service struct {
	store      PersistentStore
	schemaName string
	logger     Logger
	metrics    MetricsRecorder
	tracer     Tracer
	screens    []ScreeningRule

	summaryMu    sync.Mutex
	summaryRows  []domain.Row
	summaryStale bool
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithLogger attaches a structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithTracer attaches a tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewService constructs a service backed by the supplied store. schemaName
// labels the site this instance serves.
func NewService(store PersistentStore, schemaName string, opts ...Option) *Service {
	s := &Service{
		store:        store,
		schemaName:   schemaName,
		logger:       noopLogger{},
		metrics:      nopMetrics{},
		tracer:       nopTracer{},
		screens:      DefaultScreeningRules(),
		summaryStale: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store with the
// default screening rules, for tests and ephemeral deployments.
func NewInMemoryService(schemaName string, opts ...Option) *Service {
	store, err := OpenPersistentStoreWithDriver(StorageMemory, NewDefaultRulesEngine())
	if err != nil {
		panic(err)
	}
	return NewService(store, schemaName, opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// SchemaName returns the site schema label this instance serves.
func (s *Service) SchemaName() string {
	return s.schemaName
}

func (s *Service) checkSchema(schema string) error {
	if schema != "" && schema != s.schemaName {
		return fmt.Errorf("unknown schema %q", schema)
	}
	return nil
}

// Typed CRUD helpers used by seeding, tests and the HTTP adapter.

// CreatePlot persists a new plot.
func (s *Service) CreatePlot(ctx context.Context, plot Plot) (Plot, Result, error) {
	var created Plot
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreatePlot(plot)
		return err
	})
	return created, res, err
}

// CreateCensus persists a new census.
func (s *Service) CreateCensus(ctx context.Context, census Census) (Census, Result, error) {
	var created Census
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateCensus(census)
		return err
	})
	return created, res, err
}

// CreateQuadrat persists a new quadrat.
func (s *Service) CreateQuadrat(ctx context.Context, quadrat Quadrat) (Quadrat, Result, error) {
	var created Quadrat
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateQuadrat(quadrat)
		return err
	})
	return created, res, err
}

// CreateAttribute persists a new attribute code.
func (s *Service) CreateAttribute(ctx context.Context, attribute Attribute) (Attribute, Result, error) {
	var created Attribute
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateAttribute(attribute)
		return err
	})
	return created, res, err
}

// CreatePersonnel persists a new personnel record.
func (s *Service) CreatePersonnel(ctx context.Context, personnel Personnel) (Personnel, Result, error) {
	var created Personnel
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreatePersonnel(personnel)
		return err
	})
	return created, res, err
}

// CreateSpecies persists a new species record.
func (s *Service) CreateSpecies(ctx context.Context, species Species) (Species, Result, error) {
	var created Species
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateSpecies(species)
		return err
	})
	return created, res, err
}

// CreateMeasurement persists a new core measurement.
func (s *Service) CreateMeasurement(ctx context.Context, m CoreMeasurement) (CoreMeasurement, Result, error) {
	var created CoreMeasurement
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateMeasurement(m)
		return err
	})
	if err == nil {
		s.markSummaryStale()
	}
	return created, res, err
}

// UpdateMeasurement mutates a core measurement.
func (s *Service) UpdateMeasurement(ctx context.Context, id int64, mutator func(*CoreMeasurement) error) (CoreMeasurement, Result, error) {
	var updated CoreMeasurement
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateMeasurement(id, mutator)
		return err
	})
	if err == nil {
		s.markSummaryStale()
	}
	return updated, res, err
}

// DeleteMeasurement removes a core measurement.
func (s *Service) DeleteMeasurement(ctx context.Context, id int64) (Result, error) {
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteMeasurement(id)
	})
	if err == nil {
		s.markSummaryStale()
	}
	return res, err
}

// SaveRow implements the grid contract: create when oldRow is ephemeral,
// otherwise update keyed by the durable identifier. The persisted entity is
// flattened back into its row shape with the caller's client-local ID.
func (s *Service) SaveRow(ctx context.Context, entity EntityType, scope domain.Scope, oldRow, newRow domain.Row) (domain.Row, error) {
	var saved domain.Row
	err := s.instrument(ctx, "save_row", func(ctx context.Context) error {
		if err := s.checkSchema(scope.SchemaName); err != nil {
			return err
		}
		if newRow.ID == "" {
			return domain.ErrEmptyKey
		}
		var err error
		if oldRow.IsNew {
			saved, err = s.createFromRow(ctx, entity, scope, newRow)
		} else {
			saved, err = s.updateFromRow(ctx, entity, newRow)
		}
		if err != nil {
			return err
		}
		saved.ID = newRow.ID
		return nil
	})
	if err != nil {
		return domain.Row{}, err
	}
	if entity == EntityMeasurement {
		s.markSummaryStale()
	}
	return saved, nil
}

func (s *Service) createFromRow(ctx context.Context, entity EntityType, scope domain.Scope, row domain.Row) (domain.Row, error) {
	var saved domain.Row
	_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		switch entity {
		case EntityCensus:
			c, err := domain.CensusFromRow(row)
			if err != nil {
				return err
			}
			if c.PlotID == 0 {
				c.PlotID = scope.PlotID
			}
			created, err := tx.CreateCensus(c)
			if err != nil {
				return err
			}
			saved = domain.CensusRow(created)
		case EntityQuadrat:
			q, err := domain.QuadratFromRow(row)
			if err != nil {
				return err
			}
			if q.PlotID == 0 {
				q.PlotID = scope.PlotID
			}
			created, err := tx.CreateQuadrat(q)
			if err != nil {
				return err
			}
			saved = domain.QuadratRow(created)
		case EntityAttribute:
			a, err := domain.AttributeFromRow(row)
			if err != nil {
				return err
			}
			created, err := tx.CreateAttribute(a)
			if err != nil {
				return err
			}
			saved = domain.AttributeRow(created)
		case EntityPersonnel:
			p, err := domain.PersonnelFromRow(row)
			if err != nil {
				return err
			}
			created, err := tx.CreatePersonnel(p)
			if err != nil {
				return err
			}
			saved = domain.PersonnelRow(created)
		case EntitySpecies:
			sp, err := domain.SpeciesFromRow(row)
			if err != nil {
				return err
			}
			created, err := tx.CreateSpecies(sp)
			if err != nil {
				return err
			}
			saved = domain.SpeciesRow(created)
		case EntityMeasurement:
			m, err := domain.MeasurementFromRow(row)
			if err != nil {
				return err
			}
			if m.PlotID == 0 {
				m.PlotID = scope.PlotID
			}
			created, err := tx.CreateMeasurement(m)
			if err != nil {
				return err
			}
			saved = domain.MeasurementRow(created)
		default:
			return fmt.Errorf("entity %s does not accept row creation", entity)
		}
		return nil
	})
	return saved, err
}

func (s *Service) updateFromRow(ctx context.Context, entity EntityType, row domain.Row) (domain.Row, error) {
	if row.EntityID == 0 {
		return domain.Row{}, domain.ErrEmptyKey
	}
	var saved domain.Row
	_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		switch entity {
		case EntityCensus:
			next, err := domain.CensusFromRow(row)
			if err != nil {
				return err
			}
			updated, err := tx.UpdateCensus(row.EntityID, func(c *Census) error {
				next.Base = c.Base
				*c = next
				return nil
			})
			if err != nil {
				return err
			}
			saved = domain.CensusRow(updated)
		case EntityQuadrat:
			next, err := domain.QuadratFromRow(row)
			if err != nil {
				return err
			}
			updated, err := tx.UpdateQuadrat(row.EntityID, func(q *Quadrat) error {
				next.Base = q.Base
				*q = next
				return nil
			})
			if err != nil {
				return err
			}
			saved = domain.QuadratRow(updated)
		case EntityAttribute:
			next, err := domain.AttributeFromRow(row)
			if err != nil {
				return err
			}
			updated, err := tx.UpdateAttribute(row.EntityID, func(a *Attribute) error {
				next.Base = a.Base
				*a = next
				return nil
			})
			if err != nil {
				return err
			}
			saved = domain.AttributeRow(updated)
		case EntityPersonnel:
			next, err := domain.PersonnelFromRow(row)
			if err != nil {
				return err
			}
			updated, err := tx.UpdatePersonnel(row.EntityID, func(p *Personnel) error {
				next.Base = p.Base
				*p = next
				return nil
			})
			if err != nil {
				return err
			}
			saved = domain.PersonnelRow(updated)
		case EntitySpecies:
			next, err := domain.SpeciesFromRow(row)
			if err != nil {
				return err
			}
			updated, err := tx.UpdateSpecies(row.EntityID, func(sp *Species) error {
				next.Base = sp.Base
				*sp = next
				return nil
			})
			if err != nil {
				return err
			}
			saved = domain.SpeciesRow(updated)
		case EntityMeasurement:
			next, err := domain.MeasurementFromRow(row)
			if err != nil {
				return err
			}
			updated, err := tx.UpdateMeasurement(row.EntityID, func(m *CoreMeasurement) error {
				next.Base = m.Base
				*m = next
				return nil
			})
			if err != nil {
				return err
			}
			saved = domain.MeasurementRow(updated)
		default:
			return fmt.Errorf("entity %s does not accept row updates", entity)
		}
		return nil
	})
	return saved, err
}

// DeleteRow removes a durable record. Referential conflicts surface as
// *domain.ConflictError from the store and pass through untouched.
func (s *Service) DeleteRow(ctx context.Context, entity EntityType, scope domain.Scope, entityID int64) error {
	err := s.instrument(ctx, "delete_row", func(ctx context.Context) error {
		if err := s.checkSchema(scope.SchemaName); err != nil {
			return err
		}
		if entityID == 0 {
			return domain.ErrEmptyKey
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			switch entity {
			case EntityPlot:
				return tx.DeletePlot(entityID)
			case EntityCensus:
				return tx.DeleteCensus(entityID)
			case EntityQuadrat:
				return tx.DeleteQuadrat(entityID)
			case EntityAttribute:
				return tx.DeleteAttribute(entityID)
			case EntityPersonnel:
				return tx.DeletePersonnel(entityID)
			case EntitySpecies:
				return tx.DeleteSpecies(entityID)
			case EntityMeasurement:
				return tx.DeleteMeasurement(entityID)
			default:
				return fmt.Errorf("entity %s does not accept row deletion", entity)
			}
		})
		return err
	})
	if err == nil && entity == EntityMeasurement {
		s.markSummaryStale()
	}
	return err
}
