// Package memory implements the authoritative in-memory persistent store. The
// sqlite and postgres stores embed it and add durable snapshots on top.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"forestcore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	RulesEngine     = domain.RulesEngine
	Result          = domain.Result
	Change          = domain.Change

	Plot            = domain.Plot
	Census          = domain.Census
	Quadrat         = domain.Quadrat
	Attribute       = domain.Attribute
	Personnel       = domain.Personnel
	Species         = domain.Species
	CoreMeasurement = domain.CoreMeasurement
)

type memoryState struct {
	plots        map[int64]Plot
	censuses     map[int64]Census
	quadrats     map[int64]Quadrat
	attributes   map[int64]Attribute
	personnel    map[int64]Personnel
	species      map[int64]Species
	measurements map[int64]CoreMeasurement
	sequences    map[domain.EntityType]int64
}

func newMemoryState() memoryState {
	return memoryState{
		plots:        make(map[int64]Plot),
		censuses:     make(map[int64]Census),
		quadrats:     make(map[int64]Quadrat),
		attributes:   make(map[int64]Attribute),
		personnel:    make(map[int64]Personnel),
		species:      make(map[int64]Species),
		measurements: make(map[int64]CoreMeasurement),
		sequences:    make(map[domain.EntityType]int64),
	}
}

// Snapshot is the serializable whole-state image exchanged with the durable
// backends. Buckets marshal as JSON arrays; Sequences preserves identifier
// allocation across restarts.
type Snapshot struct {
	Plots        []Plot                     `json:"plots"`
	Censuses     []Census                   `json:"censuses"`
	Quadrats     []Quadrat                  `json:"quadrats"`
	Attributes   []Attribute                `json:"attributes"`
	Personnel    []Personnel                `json:"personnel"`
	Species      []Species                  `json:"species"`
	Measurements []CoreMeasurement          `json:"measurements"`
	Sequences    map[domain.EntityType]int64 `json:"sequences"`
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{Sequences: make(map[domain.EntityType]int64, len(state.sequences))}
	for _, p := range state.plots {
		s.Plots = append(s.Plots, p)
	}
	for _, c := range state.censuses {
		s.Censuses = append(s.Censuses, c)
	}
	for _, q := range state.quadrats {
		s.Quadrats = append(s.Quadrats, q)
	}
	for _, a := range state.attributes {
		s.Attributes = append(s.Attributes, a)
	}
	for _, p := range state.personnel {
		s.Personnel = append(s.Personnel, p)
	}
	for _, sp := range state.species {
		s.Species = append(s.Species, sp)
	}
	for _, m := range state.measurements {
		s.Measurements = append(s.Measurements, cloneMeasurement(m))
	}
	for k, v := range state.sequences {
		s.Sequences[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, p := range s.Plots {
		state.plots[p.ID] = p
	}
	for _, c := range s.Censuses {
		state.censuses[c.ID] = c
	}
	for _, q := range s.Quadrats {
		state.quadrats[q.ID] = q
	}
	for _, a := range s.Attributes {
		state.attributes[a.ID] = a
	}
	for _, p := range s.Personnel {
		state.personnel[p.ID] = p
	}
	for _, sp := range s.Species {
		state.species[sp.ID] = sp
	}
	for _, m := range s.Measurements {
		state.measurements[m.ID] = cloneMeasurement(m)
	}
	for k, v := range s.Sequences {
		state.sequences[k] = v
	}
	// Sequences from older snapshots may lag the stored records; never hand
	// out an identifier that is already taken.
	bump := func(entity domain.EntityType, id int64) {
		if state.sequences[entity] < id {
			state.sequences[entity] = id
		}
	}
	for id := range state.plots {
		bump(domain.EntityPlot, id)
	}
	for id := range state.censuses {
		bump(domain.EntityCensus, id)
	}
	for id := range state.quadrats {
		bump(domain.EntityQuadrat, id)
	}
	for id := range state.attributes {
		bump(domain.EntityAttribute, id)
	}
	for id := range state.personnel {
		bump(domain.EntityPersonnel, id)
	}
	for id := range state.species {
		bump(domain.EntitySpecies, id)
	}
	for id := range state.measurements {
		bump(domain.EntityMeasurement, id)
	}
	return state
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.plots {
		cloned.plots[k] = v
	}
	for k, v := range s.censuses {
		cloned.censuses[k] = v
	}
	for k, v := range s.quadrats {
		cloned.quadrats[k] = v
	}
	for k, v := range s.attributes {
		cloned.attributes[k] = v
	}
	for k, v := range s.personnel {
		cloned.personnel[k] = v
	}
	for k, v := range s.species {
		cloned.species[k] = v
	}
	for k, v := range s.measurements {
		cloned.measurements[k] = cloneMeasurement(v)
	}
	for k, v := range s.sequences {
		cloned.sequences[k] = v
	}
	return cloned
}

func cloneMeasurement(m CoreMeasurement) CoreMeasurement {
	cp := m
	if m.Attributes != nil {
		cp.Attributes = append([]string(nil), m.Attributes...)
	}
	if m.MeasuredDBH != nil {
		v := *m.MeasuredDBH
		cp.MeasuredDBH = &v
	}
	if m.MeasuredHOM != nil {
		v := *m.MeasuredHOM
		cp.MeasuredHOM = &v
	}
	if m.MeasurementDate != nil {
		v := *m.MeasurementDate
		cp.MeasurementDate = &v
	}
	if m.IsValidated != nil {
		v := *m.IsValidated
		cp.IsValidated = &v
	}
	return cp
}

// Store provides the in-memory transactional store for the forest schema.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState returns a serializable whole-state snapshot.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store contents from a snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine returns the active engine.
func (s *Store) RulesEngine() *RulesEngine {
	return s.engine
}

// SetNowFunc overrides the transaction clock for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Rules run against the post-mutation view; a blocking violation discards the
// copy and surfaces RuleViolationError.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
		applyScreeningOutcome(&tx.state, tx.changes, res)
	}

	s.state = tx.state
	return result, nil
}

// applyScreeningOutcome folds flag-severity violations back into the touched
// measurements: a measurement written this transaction ends up validated true
// unless a screening rule flagged it.
func applyScreeningOutcome(state *memoryState, changes []Change, res Result) {
	flagged := make(map[int64]bool)
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityFlag && v.Entity == domain.EntityMeasurement {
			flagged[v.EntityID] = true
		}
	}
	for _, ch := range changes {
		if ch.Entity != domain.EntityMeasurement || ch.Action == domain.ActionDelete {
			continue
		}
		after, ok := ch.After.(CoreMeasurement)
		if !ok {
			continue
		}
		m, ok := state.measurements[after.ID]
		if !ok {
			continue
		}
		ok2 := !flagged[after.ID]
		m.IsValidated = &ok2
		state.measurements[after.ID] = m
	}
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) nextID(entity domain.EntityType) int64 {
	tx.state.sequences[entity]++
	return tx.state.sequences[entity]
}

func notFound(entity domain.EntityType, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, domain.ErrNotFound)
}

// Plot operations.

func (tx *transaction) CreatePlot(p Plot) (Plot, error) {
	if p.ID == 0 {
		p.ID = tx.nextID(domain.EntityPlot)
	}
	if _, exists := tx.state.plots[p.ID]; exists {
		return Plot{}, fmt.Errorf("plot %d already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.plots[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityPlot, Action: domain.ActionCreate, After: p})
	return p, nil
}

func (tx *transaction) UpdatePlot(id int64, mutator func(*Plot) error) (Plot, error) {
	current, ok := tx.state.plots[id]
	if !ok {
		return Plot{}, notFound(domain.EntityPlot, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Plot{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.plots[id] = current
	tx.recordChange(Change{Entity: domain.EntityPlot, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func (tx *transaction) DeletePlot(id int64) error {
	current, ok := tx.state.plots[id]
	if !ok {
		return notFound(domain.EntityPlot, id)
	}
	for _, c := range tx.state.censuses {
		if c.PlotID == id {
			return &domain.ConflictError{ReferencingTable: "census"}
		}
	}
	for _, q := range tx.state.quadrats {
		if q.PlotID == id {
			return &domain.ConflictError{ReferencingTable: "quadrats"}
		}
	}
	delete(tx.state.plots, id)
	tx.recordChange(Change{Entity: domain.EntityPlot, Action: domain.ActionDelete, Before: current})
	return nil
}

// Census operations.

func (tx *transaction) CreateCensus(c Census) (Census, error) {
	if c.ID == 0 {
		c.ID = tx.nextID(domain.EntityCensus)
	}
	if _, exists := tx.state.censuses[c.ID]; exists {
		return Census{}, fmt.Errorf("census %d already exists", c.ID)
	}
	if _, ok := tx.state.plots[c.PlotID]; !ok {
		return Census{}, notFound(domain.EntityPlot, c.PlotID)
	}
	if c.PlotCensusNumber == 0 {
		max := 0
		for _, other := range tx.state.censuses {
			if other.PlotID == c.PlotID && other.PlotCensusNumber > max {
				max = other.PlotCensusNumber
			}
		}
		c.PlotCensusNumber = max + 1
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.censuses[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityCensus, Action: domain.ActionCreate, After: c})
	return c, nil
}

func (tx *transaction) UpdateCensus(id int64, mutator func(*Census) error) (Census, error) {
	current, ok := tx.state.censuses[id]
	if !ok {
		return Census{}, notFound(domain.EntityCensus, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Census{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.censuses[id] = current
	tx.recordChange(Change{Entity: domain.EntityCensus, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func (tx *transaction) DeleteCensus(id int64) error {
	current, ok := tx.state.censuses[id]
	if !ok {
		return notFound(domain.EntityCensus, id)
	}
	for _, m := range tx.state.measurements {
		if m.CensusID == id {
			return &domain.ConflictError{ReferencingTable: "coremeasurements"}
		}
	}
	for _, q := range tx.state.quadrats {
		if q.CensusID == id {
			return &domain.ConflictError{ReferencingTable: "quadrats"}
		}
	}
	for _, p := range tx.state.personnel {
		if p.CensusID == id {
			return &domain.ConflictError{ReferencingTable: "personnel"}
		}
	}
	delete(tx.state.censuses, id)
	tx.recordChange(Change{Entity: domain.EntityCensus, Action: domain.ActionDelete, Before: current})
	return nil
}

// Quadrat operations.

func (tx *transaction) CreateQuadrat(q Quadrat) (Quadrat, error) {
	if q.ID == 0 {
		q.ID = tx.nextID(domain.EntityQuadrat)
	}
	if _, exists := tx.state.quadrats[q.ID]; exists {
		return Quadrat{}, fmt.Errorf("quadrat %d already exists", q.ID)
	}
	if _, ok := tx.state.censuses[q.CensusID]; !ok {
		return Quadrat{}, notFound(domain.EntityCensus, q.CensusID)
	}
	if q.Area == 0 {
		q.Area = q.DimensionX * q.DimensionY
	}
	q.CreatedAt = tx.now
	q.UpdatedAt = tx.now
	tx.state.quadrats[q.ID] = q
	tx.recordChange(Change{Entity: domain.EntityQuadrat, Action: domain.ActionCreate, After: q})
	return q, nil
}

func (tx *transaction) UpdateQuadrat(id int64, mutator func(*Quadrat) error) (Quadrat, error) {
	current, ok := tx.state.quadrats[id]
	if !ok {
		return Quadrat{}, notFound(domain.EntityQuadrat, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Quadrat{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.quadrats[id] = current
	tx.recordChange(Change{Entity: domain.EntityQuadrat, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func (tx *transaction) DeleteQuadrat(id int64) error {
	current, ok := tx.state.quadrats[id]
	if !ok {
		return notFound(domain.EntityQuadrat, id)
	}
	for _, m := range tx.state.measurements {
		if m.QuadratID == id {
			return &domain.ConflictError{ReferencingTable: "coremeasurements"}
		}
	}
	delete(tx.state.quadrats, id)
	tx.recordChange(Change{Entity: domain.EntityQuadrat, Action: domain.ActionDelete, Before: current})
	return nil
}

// Attribute operations.

func (tx *transaction) CreateAttribute(a Attribute) (Attribute, error) {
	if a.ID == 0 {
		a.ID = tx.nextID(domain.EntityAttribute)
	}
	if _, exists := tx.state.attributes[a.ID]; exists {
		return Attribute{}, fmt.Errorf("attribute %d already exists", a.ID)
	}
	if a.Code == "" {
		return Attribute{}, fmt.Errorf("attribute code cannot be empty")
	}
	for _, other := range tx.state.attributes {
		if other.Code == a.Code {
			return Attribute{}, fmt.Errorf("attribute code %q already exists", a.Code)
		}
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.attributes[a.ID] = a
	tx.recordChange(Change{Entity: domain.EntityAttribute, Action: domain.ActionCreate, After: a})
	return a, nil
}

func (tx *transaction) UpdateAttribute(id int64, mutator func(*Attribute) error) (Attribute, error) {
	current, ok := tx.state.attributes[id]
	if !ok {
		return Attribute{}, notFound(domain.EntityAttribute, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Attribute{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.attributes[id] = current
	tx.recordChange(Change{Entity: domain.EntityAttribute, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func (tx *transaction) DeleteAttribute(id int64) error {
	current, ok := tx.state.attributes[id]
	if !ok {
		return notFound(domain.EntityAttribute, id)
	}
	for _, m := range tx.state.measurements {
		for _, code := range m.Attributes {
			if code == current.Code {
				return &domain.ConflictError{ReferencingTable: "cmattributes"}
			}
		}
	}
	delete(tx.state.attributes, id)
	tx.recordChange(Change{Entity: domain.EntityAttribute, Action: domain.ActionDelete, Before: current})
	return nil
}

// Personnel operations.

func (tx *transaction) CreatePersonnel(p Personnel) (Personnel, error) {
	if p.ID == 0 {
		p.ID = tx.nextID(domain.EntityPersonnel)
	}
	if _, exists := tx.state.personnel[p.ID]; exists {
		return Personnel{}, fmt.Errorf("personnel %d already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.personnel[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityPersonnel, Action: domain.ActionCreate, After: p})
	return p, nil
}

func (tx *transaction) UpdatePersonnel(id int64, mutator func(*Personnel) error) (Personnel, error) {
	current, ok := tx.state.personnel[id]
	if !ok {
		return Personnel{}, notFound(domain.EntityPersonnel, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Personnel{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.personnel[id] = current
	tx.recordChange(Change{Entity: domain.EntityPersonnel, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func (tx *transaction) DeletePersonnel(id int64) error {
	current, ok := tx.state.personnel[id]
	if !ok {
		return notFound(domain.EntityPersonnel, id)
	}
	delete(tx.state.personnel, id)
	tx.recordChange(Change{Entity: domain.EntityPersonnel, Action: domain.ActionDelete, Before: current})
	return nil
}

// Species operations.

func (tx *transaction) CreateSpecies(sp Species) (Species, error) {
	if sp.ID == 0 {
		sp.ID = tx.nextID(domain.EntitySpecies)
	}
	if _, exists := tx.state.species[sp.ID]; exists {
		return Species{}, fmt.Errorf("species %d already exists", sp.ID)
	}
	if sp.SpeciesCode == "" {
		return Species{}, fmt.Errorf("species code cannot be empty")
	}
	for _, other := range tx.state.species {
		if other.SpeciesCode == sp.SpeciesCode {
			return Species{}, fmt.Errorf("species code %q already exists", sp.SpeciesCode)
		}
	}
	sp.CreatedAt = tx.now
	sp.UpdatedAt = tx.now
	tx.state.species[sp.ID] = sp
	tx.recordChange(Change{Entity: domain.EntitySpecies, Action: domain.ActionCreate, After: sp})
	return sp, nil
}

func (tx *transaction) UpdateSpecies(id int64, mutator func(*Species) error) (Species, error) {
	current, ok := tx.state.species[id]
	if !ok {
		return Species{}, notFound(domain.EntitySpecies, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Species{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.species[id] = current
	tx.recordChange(Change{Entity: domain.EntitySpecies, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func (tx *transaction) DeleteSpecies(id int64) error {
	current, ok := tx.state.species[id]
	if !ok {
		return notFound(domain.EntitySpecies, id)
	}
	for _, m := range tx.state.measurements {
		if m.SpeciesCode == current.SpeciesCode {
			return &domain.ConflictError{ReferencingTable: "coremeasurements"}
		}
	}
	delete(tx.state.species, id)
	tx.recordChange(Change{Entity: domain.EntitySpecies, Action: domain.ActionDelete, Before: current})
	return nil
}

// Measurement operations.

func (tx *transaction) CreateMeasurement(m CoreMeasurement) (CoreMeasurement, error) {
	if m.ID == 0 {
		m.ID = tx.nextID(domain.EntityMeasurement)
	}
	if _, exists := tx.state.measurements[m.ID]; exists {
		return CoreMeasurement{}, fmt.Errorf("measurement %d already exists", m.ID)
	}
	if m.QuadratID != 0 {
		if _, ok := tx.state.quadrats[m.QuadratID]; !ok {
			return CoreMeasurement{}, notFound(domain.EntityQuadrat, m.QuadratID)
		}
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	m.IsValidated = nil
	tx.state.measurements[m.ID] = cloneMeasurement(m)
	tx.recordChange(Change{Entity: domain.EntityMeasurement, Action: domain.ActionCreate, After: cloneMeasurement(m)})
	return cloneMeasurement(m), nil
}

func (tx *transaction) UpdateMeasurement(id int64, mutator func(*CoreMeasurement) error) (CoreMeasurement, error) {
	current, ok := tx.state.measurements[id]
	if !ok {
		return CoreMeasurement{}, notFound(domain.EntityMeasurement, id)
	}
	before := cloneMeasurement(current)
	working := cloneMeasurement(current)
	if err := mutator(&working); err != nil {
		return CoreMeasurement{}, err
	}
	working.ID = id
	working.UpdatedAt = tx.now
	// Edits reset the screening verdict until the rules run again.
	working.IsValidated = nil
	tx.state.measurements[id] = cloneMeasurement(working)
	tx.recordChange(Change{Entity: domain.EntityMeasurement, Action: domain.ActionUpdate, Before: before, After: cloneMeasurement(working)})
	return cloneMeasurement(working), nil
}

func (tx *transaction) DeleteMeasurement(id int64) error {
	current, ok := tx.state.measurements[id]
	if !ok {
		return notFound(domain.EntityMeasurement, id)
	}
	delete(tx.state.measurements, id)
	tx.recordChange(Change{Entity: domain.EntityMeasurement, Action: domain.ActionDelete, Before: cloneMeasurement(current)})
	return nil
}
