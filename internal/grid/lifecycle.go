// Package grid implements the paginated editable grid synchronization engine:
// query-state coordination, the fetch-reconcile loop, the edit/commit state
// machine with its confirmation gate, and the validation overlay.
package grid

import "fmt"

// RowState identifies where a row sits in its edit/commit lifecycle.
type RowState string

// Row lifecycle states. StateView is the resting state for fetched rows; every
// mutating path must pass through a pending (confirmation) state before any
// network call is issued.
const (
	// StateView marks a durable row rendered read-only.
	StateView RowState = "view"
	// StateEditing marks a row with uncommitted field edits.
	StateEditing RowState = "editing"
	// StatePendingSave marks an edit awaiting user confirmation.
	StatePendingSave RowState = "pending_save"
	// StateSaving marks a confirmed edit in flight to the server.
	StateSaving RowState = "saving"
	// StatePendingDelete marks a delete awaiting user confirmation.
	StatePendingDelete RowState = "pending_delete"
	// StateDeleting marks a confirmed delete in flight to the server.
	StateDeleting RowState = "deleting"
)

var legalTransitions = map[RowState][]RowState{
	StateView:          {StateEditing, StatePendingDelete},
	StateEditing:       {StatePendingSave, StateView, StatePendingDelete},
	StatePendingSave:   {StateSaving, StateEditing},
	StateSaving:        {StateView, StateEditing},
	StatePendingDelete: {StateDeleting, StateView, StateEditing},
	StateDeleting:      {StateView},
}

// CanTransition reports whether a row may move between two lifecycle states.
func CanTransition(from, to RowState) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// modesModel tracks per-row lifecycle state plus the pre-edit snapshot needed
// to roll an edit back. Rows absent from the model are implicitly StateView.
type modesModel struct {
	states    map[string]RowState
	snapshots map[string]snapshotEntry
}

type snapshotEntry struct {
	row   Row
	valid bool
}

func newModesModel() *modesModel {
	return &modesModel{
		states:    make(map[string]RowState),
		snapshots: make(map[string]snapshotEntry),
	}
}

func (m *modesModel) state(id string) RowState {
	if s, ok := m.states[id]; ok {
		return s
	}
	return StateView
}

func (m *modesModel) transition(id string, to RowState) error {
	from := m.state(id)
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("row %s: illegal transition %s -> %s", id, from, to)
	}
	if to == StateView {
		delete(m.states, id)
		delete(m.snapshots, id)
		return nil
	}
	m.states[id] = to
	return nil
}

// reset drops all tracked state, used when a fetch replaces the row window.
func (m *modesModel) reset() {
	m.states = make(map[string]RowState)
	m.snapshots = make(map[string]snapshotEntry)
}

func (m *modesModel) remember(id string, row Row) {
	if _, ok := m.snapshots[id]; ok {
		return
	}
	m.snapshots[id] = snapshotEntry{row: row, valid: true}
}

func (m *modesModel) recall(id string) (Row, bool) {
	e, ok := m.snapshots[id]
	if !ok || !e.valid {
		return Row{}, false
	}
	return e.row, true
}

func (m *modesModel) forget(id string) {
	delete(m.states, id)
	delete(m.snapshots, id)
}
