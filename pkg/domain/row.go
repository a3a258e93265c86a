package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Row is one grid record: a keyed field bag with a client-local identity and,
// once persisted, a durable server key. The client-local ID is unique only
// within the currently loaded page window.
type Row struct {
	// ID is the client-local row identity, ephemeral until the server assigns
	// a durable key.
	ID string `json:"id"`
	// EntityID is the server primary key; zero until the first successful commit.
	EntityID int64 `json:"entityID,omitempty"`
	// IsNew marks rows created client-side that have never been persisted.
	IsNew bool `json:"isNew,omitempty"`
	// Fields holds the entity-specific column values keyed by field name.
	Fields map[string]any `json:"fields"`
}

// NewRowID produces a random client-local row identifier.
func NewRowID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("row-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// Clone returns a deep copy of the row's field bag. Snapshots taken before an
// edit must not alias the live map.
func (r Row) Clone() Row {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	r.Fields = fields
	return r
}

// Field returns the named field value, nil when absent.
func (r Row) Field(name string) any {
	if r.Fields == nil {
		return nil
	}
	return r.Fields[name]
}

// SetField assigns a field value, allocating the bag on first use.
func (r *Row) SetField(name string, value any) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[name] = value
}

// MatchesTokens reports whether every quick-filter token appears (case
// insensitively) in at least one field value of the row.
func (r Row) MatchesTokens(tokens []string) bool {
	for _, token := range tokens {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		found := false
		for _, v := range r.Fields {
			if strings.Contains(strings.ToLower(fmt.Sprint(v)), token) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FieldKind constrains the declared type of a grid column.
type FieldKind string

// Field kinds supported by grid schemas.
const (
	FieldString FieldKind = "string"
	FieldInt    FieldKind = "int"
	FieldFloat  FieldKind = "float"
	FieldBool   FieldKind = "bool"
	FieldDate   FieldKind = "date"
)

// FieldSpec declares one column of a grid schema.
type FieldSpec struct {
	Name     string    `json:"name"`
	Kind     FieldKind `json:"kind"`
	Editable bool      `json:"editable"`
	Required bool      `json:"required"`
}

// GridSchema is the ordered field declaration for one grid variant. Rows are
// validated against their schema at the boundary rather than assumed shaped
// throughout.
type GridSchema struct {
	Entity EntityType  `json:"entity"`
	Key    string      `json:"key"`
	Fields []FieldSpec `json:"fields"`
}

// FieldNames returns the declared column names in order.
func (s GridSchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// ValidateRow checks a row's field bag against the schema: required fields
// present and no undeclared fields. Kind coercion is deliberately loose since
// values travel as JSON.
func (s GridSchema) ValidateRow(row Row) error {
	declared := make(map[string]FieldSpec, len(s.Fields))
	for _, f := range s.Fields {
		declared[f.Name] = f
	}
	var unknown []string
	for name := range row.Fields {
		if _, ok := declared[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("row %s carries undeclared fields %v for grid %s", row.ID, unknown, s.Entity)
	}
	for _, f := range s.Fields {
		if !f.Required {
			continue
		}
		v, ok := row.Fields[f.Name]
		if !ok || v == nil || fmt.Sprint(v) == "" {
			return fmt.Errorf("row %s missing required field %q for grid %s", row.ID, f.Name, s.Entity)
		}
	}
	return nil
}

// SchemaFor returns the declared grid schema for an entity type.
func SchemaFor(entity EntityType) (GridSchema, bool) {
	s, ok := gridSchemas[entity]
	return s, ok
}

var gridSchemas = map[EntityType]GridSchema{
	EntityCensus: {
		Entity: EntityCensus,
		Key:    "censusID",
		Fields: []FieldSpec{
			{Name: "censusID", Kind: FieldInt},
			{Name: "plotID", Kind: FieldInt, Required: true},
			{Name: "plotCensusNumber", Kind: FieldInt, Editable: true, Required: true},
			{Name: "startDate", Kind: FieldDate, Editable: true},
			{Name: "endDate", Kind: FieldDate, Editable: true},
			{Name: "description", Kind: FieldString, Editable: true},
		},
	},
	EntityQuadrat: {
		Entity: EntityQuadrat,
		Key:    "quadratID",
		Fields: []FieldSpec{
			{Name: "quadratID", Kind: FieldInt},
			{Name: "plotID", Kind: FieldInt, Required: true},
			{Name: "censusID", Kind: FieldInt},
			{Name: "quadratName", Kind: FieldString, Editable: true, Required: true},
			{Name: "startX", Kind: FieldFloat, Editable: true},
			{Name: "startY", Kind: FieldFloat, Editable: true},
			{Name: "dimensionX", Kind: FieldFloat, Editable: true},
			{Name: "dimensionY", Kind: FieldFloat, Editable: true},
			{Name: "area", Kind: FieldFloat, Editable: true},
			{Name: "quadratShape", Kind: FieldString, Editable: true},
		},
	},
	EntityAttribute: {
		Entity: EntityAttribute,
		Key:    "attributeID",
		Fields: []FieldSpec{
			{Name: "attributeID", Kind: FieldInt},
			{Name: "code", Kind: FieldString, Editable: true, Required: true},
			{Name: "description", Kind: FieldString, Editable: true},
			{Name: "status", Kind: FieldString, Editable: true},
		},
	},
	EntityPersonnel: {
		Entity: EntityPersonnel,
		Key:    "personnelID",
		Fields: []FieldSpec{
			{Name: "personnelID", Kind: FieldInt},
			{Name: "censusID", Kind: FieldInt},
			{Name: "firstName", Kind: FieldString, Editable: true, Required: true},
			{Name: "lastName", Kind: FieldString, Editable: true, Required: true},
			{Name: "role", Kind: FieldString, Editable: true},
		},
	},
	EntitySpecies: {
		Entity: EntitySpecies,
		Key:    "speciesID",
		Fields: []FieldSpec{
			{Name: "speciesID", Kind: FieldInt},
			{Name: "speciesCode", Kind: FieldString, Editable: true, Required: true},
			{Name: "family", Kind: FieldString, Editable: true},
			{Name: "genus", Kind: FieldString, Editable: true},
			{Name: "speciesName", Kind: FieldString, Editable: true},
			{Name: "subspeciesName", Kind: FieldString, Editable: true},
			{Name: "idLevel", Kind: FieldString, Editable: true},
			{Name: "authority", Kind: FieldString, Editable: true},
		},
	},
	EntityMeasurement: {
		Entity: EntityMeasurement,
		Key:    "coreMeasurementID",
		Fields: []FieldSpec{
			{Name: "coreMeasurementID", Kind: FieldInt},
			{Name: "plotID", Kind: FieldInt, Required: true},
			{Name: "censusID", Kind: FieldInt, Required: true},
			{Name: "quadratID", Kind: FieldInt, Editable: true},
			{Name: "speciesCode", Kind: FieldString, Editable: true},
			{Name: "treeTag", Kind: FieldString, Editable: true, Required: true},
			{Name: "stemTag", Kind: FieldString, Editable: true},
			{Name: "measuredDBH", Kind: FieldFloat, Editable: true},
			{Name: "dbhUnits", Kind: FieldString, Editable: true},
			{Name: "measuredHOM", Kind: FieldFloat, Editable: true},
			{Name: "homUnits", Kind: FieldString, Editable: true},
			{Name: "measurementDate", Kind: FieldDate, Editable: true},
			{Name: "attributes", Kind: FieldString, Editable: true},
			{Name: "isValidated", Kind: FieldBool},
			{Name: "description", Kind: FieldString, Editable: true},
		},
	},
	EntityMeasurementsSummary: {
		Entity: EntityMeasurementsSummary,
		Key:    "coreMeasurementID",
		Fields: []FieldSpec{
			{Name: "coreMeasurementID", Kind: FieldInt},
			{Name: "plotID", Kind: FieldInt},
			{Name: "censusID", Kind: FieldInt},
			{Name: "quadratName", Kind: FieldString},
			{Name: "speciesCode", Kind: FieldString},
			{Name: "treeTag", Kind: FieldString},
			{Name: "stemTag", Kind: FieldString},
			{Name: "measuredDBH", Kind: FieldFloat},
			{Name: "measuredHOM", Kind: FieldFloat},
			{Name: "measurementDate", Kind: FieldDate},
			{Name: "isValidated", Kind: FieldBool},
		},
	},
}
