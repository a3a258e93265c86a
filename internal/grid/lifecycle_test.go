package grid

import "testing"

func TestLifecycleTransitions(t *testing.T) {
	cases := []struct {
		from, to RowState
		ok       bool
	}{
		{StateView, StateEditing, true},
		{StateView, StatePendingDelete, true},
		{StateView, StateSaving, false},
		{StateEditing, StatePendingSave, true},
		{StateEditing, StateView, true},
		{StatePendingSave, StateSaving, true},
		{StatePendingSave, StateEditing, true},
		{StatePendingSave, StateView, false},
		{StateSaving, StateView, true},
		{StateSaving, StateEditing, true},
		{StatePendingDelete, StateDeleting, true},
		{StatePendingDelete, StateView, true},
		{StateDeleting, StateView, true},
		{StateDeleting, StateEditing, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestModesModelDefaultsToView(t *testing.T) {
	m := newModesModel()
	if got := m.state("any"); got != StateView {
		t.Fatalf("untracked row should read as view, got %s", got)
	}
	if err := m.transition("r1", StateEditing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := m.transition("r1", StatePendingDelete); err != nil {
		t.Fatalf("editing rows may move straight to pending delete: %v", err)
	}
	if err := m.transition("r1", StateSaving); err == nil {
		t.Fatalf("expected illegal transition error")
	}
}

func TestModesModelTransitionToViewDropsTracking(t *testing.T) {
	m := newModesModel()
	if err := m.transition("r1", StateEditing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	m.remember("r1", Row{ID: "r1", Fields: map[string]any{"code": "a"}})
	if err := m.transition("r1", StateView); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, ok := m.snapshots["r1"]; ok {
		t.Fatalf("snapshot survived return to view")
	}
	if _, ok := m.states["r1"]; ok {
		t.Fatalf("state entry survived return to view")
	}
}

func TestModesModelRemembersFirstSnapshotOnly(t *testing.T) {
	m := newModesModel()
	m.remember("r1", Row{ID: "r1", Fields: map[string]any{"code": "first"}})
	m.remember("r1", Row{ID: "r1", Fields: map[string]any{"code": "second"}})
	snap, ok := m.recall("r1")
	if !ok {
		t.Fatalf("snapshot missing")
	}
	if got := snap.Field("code"); got != "first" {
		t.Fatalf("later remember overwrote the pre-edit snapshot: %v", got)
	}
}
