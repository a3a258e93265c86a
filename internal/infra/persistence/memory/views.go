package memory

func (v transactionView) ListPlots() []Plot {
	out := make([]Plot, 0, len(v.state.plots))
	for _, p := range v.state.plots {
		out = append(out, p)
	}
	return out
}

func (v transactionView) ListCensuses() []Census {
	out := make([]Census, 0, len(v.state.censuses))
	for _, c := range v.state.censuses {
		out = append(out, c)
	}
	return out
}

func (v transactionView) ListQuadrats() []Quadrat {
	out := make([]Quadrat, 0, len(v.state.quadrats))
	for _, q := range v.state.quadrats {
		out = append(out, q)
	}
	return out
}

func (v transactionView) ListAttributes() []Attribute {
	out := make([]Attribute, 0, len(v.state.attributes))
	for _, a := range v.state.attributes {
		out = append(out, a)
	}
	return out
}

func (v transactionView) ListPersonnel() []Personnel {
	out := make([]Personnel, 0, len(v.state.personnel))
	for _, p := range v.state.personnel {
		out = append(out, p)
	}
	return out
}

func (v transactionView) ListSpecies() []Species {
	out := make([]Species, 0, len(v.state.species))
	for _, sp := range v.state.species {
		out = append(out, sp)
	}
	return out
}

func (v transactionView) ListMeasurements() []CoreMeasurement {
	out := make([]CoreMeasurement, 0, len(v.state.measurements))
	for _, m := range v.state.measurements {
		out = append(out, cloneMeasurement(m))
	}
	return out
}

func (v transactionView) FindPlot(id int64) (Plot, bool) {
	p, ok := v.state.plots[id]
	return p, ok
}

func (v transactionView) FindCensus(id int64) (Census, bool) {
	c, ok := v.state.censuses[id]
	return c, ok
}

func (v transactionView) FindQuadrat(id int64) (Quadrat, bool) {
	q, ok := v.state.quadrats[id]
	return q, ok
}

func (v transactionView) FindMeasurement(id int64) (CoreMeasurement, bool) {
	m, ok := v.state.measurements[id]
	if !ok {
		return CoreMeasurement{}, false
	}
	return cloneMeasurement(m), true
}

// Committed-state read helpers.

func (s *Store) ListPlots() []Plot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListPlots()
}

func (s *Store) ListCensuses() []Census {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListCensuses()
}

func (s *Store) ListQuadrats() []Quadrat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListQuadrats()
}

func (s *Store) ListAttributes() []Attribute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListAttributes()
}

func (s *Store) ListPersonnel() []Personnel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListPersonnel()
}

func (s *Store) ListSpecies() []Species {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListSpecies()
}

func (s *Store) ListMeasurements() []CoreMeasurement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListMeasurements()
}
