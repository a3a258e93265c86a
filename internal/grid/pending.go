package grid

import (
	"context"

	"forestcore/pkg/domain"
)

type actionType string

const (
	actionSave   actionType = "save"
	actionDelete actionType = "delete"
)

// pendingAction is the single in-flight user mutation awaiting confirmation.
// At most one exists per grid at any time.
type pendingAction struct {
	typ    actionType
	rowID  string
	oldRow Row
	newRow Row
}

// PendingSave is the handle for a proposed row save suspended at the
// confirmation gate. Exactly one of Confirm or Cancel must be called.
type PendingSave struct {
	g      *Grid
	action *pendingAction
}

// PendingDelete is the handle for a proposed row delete suspended at the
// confirmation gate.
type PendingDelete struct {
	g      *Grid
	action *pendingAction
}

// PendingActionInfo describes the outstanding action, if any, for UI display.
type PendingActionInfo struct {
	ActionType string
	RowID      string
}

// PendingAction reports the currently outstanding action.
func (g *Grid) PendingAction() (PendingActionInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return PendingActionInfo{}, false
	}
	return PendingActionInfo{ActionType: string(g.pending.typ), RowID: g.pending.rowID}, true
}

// ProposeUpdate suspends a row edit at the confirmation gate. It rejects
// immediately, without touching the server, when the row carries no
// identifying key, when the grid is locked, or while another action is
// outstanding. The grid keeps displaying newRow optimistically during the
// suspension; nothing is persisted until Confirm.
func (g *Grid) ProposeUpdate(oldRow, newRow Row) (*PendingSave, error) {
	if newRow.ID == "" {
		return nil, domain.ErrEmptyKey
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cfg.Locked {
		return nil, ErrLocked
	}
	if g.pending != nil {
		return nil, ErrActionPending
	}
	if err := g.schema.ValidateRow(newRow); err != nil {
		return nil, err
	}
	if _, present := g.indexLocked(newRow.ID); present {
		if err := g.modes.transition(newRow.ID, StatePendingSave); err != nil {
			return nil, err
		}
	}
	g.pending = &pendingAction{
		typ:    actionSave,
		rowID:  newRow.ID,
		oldRow: oldRow.Clone(),
		newRow: newRow.Clone(),
	}
	return &PendingSave{g: g, action: g.pending}, nil
}

// ProposeSave is the row-id convenience form of ProposeUpdate: the pre-edit
// snapshot becomes oldRow, the current provisional row becomes newRow.
func (g *Grid) ProposeSave(id string) (*PendingSave, error) {
	g.mu.Lock()
	row, ok := g.findLocked(id)
	if !ok {
		g.mu.Unlock()
		return nil, ErrRowNotFound
	}
	oldRow, hasSnapshot := g.modes.recall(id)
	g.mu.Unlock()
	if !hasSnapshot {
		oldRow = row
	}
	return g.ProposeUpdate(oldRow.Clone(), row.Clone())
}

// Confirm issues the suspended save: a create when the pre-edit row was
// ephemeral, otherwise an update keyed by the durable identifier. On success
// the grid clears new-row bookkeeping, re-fetches the current page for
// authoritative state, and (for validating grids) refreshes the dependent
// summary view and the overlay. On failure the row stays editable and one
// error notification is emitted; there is no automatic retry.
func (p *PendingSave) Confirm(ctx context.Context) (Row, error) {
	g := p.g
	g.mu.Lock()
	if g.pending != p.action {
		g.mu.Unlock()
		return Row{}, ErrActionPending
	}
	if _, present := g.indexLocked(p.action.rowID); present {
		if err := g.modes.transition(p.action.rowID, StateSaving); err != nil {
			g.pending = nil
			g.mu.Unlock()
			return Row{}, err
		}
	}
	entity := g.cfg.Entity
	scope := g.query.Scope
	oldRow, newRow := p.action.oldRow, p.action.newRow
	g.mu.Unlock()

	saved, err := g.source.SaveRow(ctx, entity, scope, oldRow, newRow)

	g.mu.Lock()
	g.pending = nil
	if err != nil {
		if _, present := g.indexLocked(p.action.rowID); present {
			_ = g.modes.transition(p.action.rowID, StateEditing)
		}
		g.mu.Unlock()
		g.notify(SeverityError, "Error: %v", err)
		return Row{}, err
	}
	wasNew := oldRow.IsNew
	if wasNew {
		g.isNewRowAdded = false
		g.addOpensNewPage = false
		g.focusRowID = ""
	}
	page := g.query.Page
	g.mu.Unlock()

	if wasNew {
		g.notify(SeveritySuccess, "New row added!")
	} else {
		g.notify(SeveritySuccess, "Row updated!")
	}
	_ = g.fetchPage(ctx, page)
	g.refreshDependents(ctx)
	return saved, nil
}

// Cancel abandons the suspended save: an ephemeral row is removed from the
// window, a durable row reverts to its pre-edit snapshot. Nothing reaches
// the server. Cancellation is not an error and produces no notification.
func (p *PendingSave) Cancel() {
	g := p.g
	g.mu.Lock()
	if g.pending != p.action {
		g.mu.Unlock()
		return
	}
	g.pending = nil
	id := p.action.rowID
	idx, present := g.indexLocked(id)
	if !present {
		g.mu.Unlock()
		return
	}
	if p.action.oldRow.IsNew {
		g.rows = append(g.rows[:idx], g.rows[idx+1:]...)
		g.modes.forget(id)
		g.isNewRowAdded = false
		g.addOpensNewPage = false
		g.focusRowID = ""
		g.mu.Unlock()
		return
	}
	if snapshot, ok := g.modes.recall(id); ok {
		g.rows[idx] = snapshot.Clone()
	}
	_ = g.modes.transition(id, StateEditing)
	_ = g.modes.transition(id, StateView)
	g.mu.Unlock()
}

// ProposeDelete suspends a row delete at the confirmation gate. It is
// rejected outright for locked grids, and client-side (before any dialog or
// network call) when the row backs the currently selected census scope.
func (g *Grid) ProposeDelete(id string) (*PendingDelete, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cfg.Locked {
		return nil, ErrLocked
	}
	if g.pending != nil {
		return nil, ErrActionPending
	}
	row, ok := g.findLocked(id)
	if !ok {
		return nil, ErrRowNotFound
	}
	if g.cfg.Entity == domain.EntityCensus {
		if n, ok := row.Field("plotCensusNumber").(int); ok && n == g.query.Scope.PlotCensusNumber {
			return nil, ErrProtectedScope
		}
		if n, ok := row.Field("plotCensusNumber").(int64); ok && int(n) == g.query.Scope.PlotCensusNumber {
			return nil, ErrProtectedScope
		}
	}
	if err := g.modes.transition(id, StatePendingDelete); err != nil {
		return nil, err
	}
	g.pending = &pendingAction{typ: actionDelete, rowID: id, oldRow: row.Clone()}
	return &PendingDelete{g: g, action: g.pending}, nil
}

// Confirm issues the suspended delete. A referential-integrity conflict keeps
// the row in place and produces exactly one error notification naming the
// referencing table; any other failure also leaves the row intact. On success
// the row leaves the window per the grid's configured refresh policy.
func (p *PendingDelete) Confirm(ctx context.Context) error {
	g := p.g
	g.mu.Lock()
	if g.pending != p.action {
		g.mu.Unlock()
		return ErrActionPending
	}
	if err := g.modes.transition(p.action.rowID, StateDeleting); err != nil {
		g.pending = nil
		g.mu.Unlock()
		return err
	}
	entity := g.cfg.Entity
	scope := g.query.Scope
	entityID := p.action.oldRow.EntityID
	g.mu.Unlock()

	err := g.source.DeleteRow(ctx, entity, scope, entityID)

	g.mu.Lock()
	g.pending = nil
	if err != nil {
		_ = g.modes.transition(p.action.rowID, StateView)
		g.mu.Unlock()
		if conflict, ok := domain.AsConflict(err); ok {
			g.notify(SeverityError, "Error: Cannot delete row due to foreign key constraint in table %s", conflict.ReferencingTable)
		} else {
			g.notify(SeverityError, "Error: %v", err)
		}
		return err
	}
	policy := g.cfg.DeleteRefresh
	page := g.query.Page
	if policy == RefreshLocal {
		if idx, present := g.indexLocked(p.action.rowID); present {
			g.rows = append(g.rows[:idx], g.rows[idx+1:]...)
		}
		g.modes.forget(p.action.rowID)
		if g.rowCount > 0 {
			g.rowCount--
		}
	}
	g.mu.Unlock()

	g.notify(SeveritySuccess, "Row successfully deleted")
	if policy == RefreshRefetch {
		_ = g.fetchPage(ctx, page)
	}
	g.refreshDependents(ctx)
	return nil
}

// Cancel abandons the suspended delete; the row is left unchanged.
func (p *PendingDelete) Cancel() {
	g := p.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != p.action {
		return
	}
	g.pending = nil
	_ = g.modes.transition(p.action.rowID, StateView)
}
