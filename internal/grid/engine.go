package grid

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"forestcore/pkg/domain"
)

// QueryState is the authoritative description of what the visible window
// should contain.
type QueryState struct {
	Page     int
	PageSize int
	Sort     *domain.SortSpec
	Filter   domain.FilterSpec
	Scope    domain.Scope
}

// Grid reconciles an in-memory row window with a server-paginated data source
// under optimistic edits, a user-confirmation gate, and an advisory validation
// overlay. All mutation of the window happens under the grid's own lock; the
// lock is never held across a network call, and stale fetch responses are
// discarded by generation (last-request-wins).
type Grid struct {
	cfg      Config
	schema   domain.GridSchema
	source   domain.DataSource
	notifier Notifier
	overlay  *Overlay

	mu       sync.Mutex
	query    QueryState
	gen      uint64
	rows     []Row
	rowCount int
	modes    *modesModel
	pending  *pendingAction

	// New-row placement bookkeeping: set by AddRow, consumed by the fetch
	// that lands on the computed last page.
	isNewRowAdded   bool
	newLastPage     int
	addOpensNewPage bool

	focusRowID string
	debouncer  *Debouncer
}

// New constructs a grid engine over a data source. The notifier receives the
// transient user-facing messages the grid produces; pass NopNotifier to drop
// them.
func New(cfg Config, source domain.DataSource, notifier Notifier) (*Grid, error) {
	if source == nil {
		return nil, fmt.Errorf("grid requires a data source")
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = NopNotifier
	}
	schema, _ := domain.SchemaFor(cfg.Entity)
	g := &Grid{
		cfg:      cfg,
		schema:   schema,
		source:   source,
		notifier: notifier,
		query:    QueryState{PageSize: cfg.PageSize},
		modes:    newModesModel(),
	}
	g.debouncer = NewDebouncer(cfg.QuickFilterDelay)
	if cfg.Validate {
		g.overlay = NewOverlay(source)
	}
	return g, nil
}

// Overlay returns the validation overlay, nil unless the grid was configured
// with Validate.
func (g *Grid) Overlay() *Overlay { return g.overlay }

// Rows returns a copy of the current visible window.
func (g *Grid) Rows() []Row {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Row, len(g.rows))
	for i, r := range g.rows {
		out[i] = r.Clone()
	}
	return out
}

// RowCount returns the server-side total for the current query state.
func (g *Grid) RowCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rowCount
}

// PageCount computes the number of pages the current total spans.
func (g *Grid) PageCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return domain.PageCount(g.rowCount, g.query.PageSize)
}

// Query returns a copy of the current query state.
func (g *Grid) Query() QueryState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.query
}

// RowState reports the lifecycle state of a row in the current window.
func (g *Grid) RowState(id string) RowState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.modes.state(id)
}

// FocusedRow returns the row that should receive input focus (the most
// recently appended ephemeral row) and the configured focus field.
func (g *Grid) FocusedRow() (string, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.focusRowID, g.cfg.FocusField
}

// Refresh re-fetches the current page and, on validating grids, reloads the
// validation overlay alongside the data.
func (g *Grid) Refresh(ctx context.Context) error {
	g.mu.Lock()
	page := g.query.Page
	g.mu.Unlock()
	if err := g.fetchPage(ctx, page); err != nil {
		return err
	}
	g.refreshOverlay(ctx)
	return nil
}

// ValidationRunner is the optional data-source capability behind the manual
// run-validations action. The production service and the HTTP client both
// provide it.
type ValidationRunner interface {
	RunValidation(ctx context.Context, schemaName string) (domain.ValidationRunSummary, error)
}

// RunValidations triggers a validation pass on the data source, then reloads
// the current window and the overlay so fresh verdicts are visible at once.
func (g *Grid) RunValidations(ctx context.Context) (domain.ValidationRunSummary, error) {
	runner, ok := g.source.(ValidationRunner)
	if !ok {
		return domain.ValidationRunSummary{}, fmt.Errorf("data source cannot run validations")
	}
	g.mu.Lock()
	schema := g.query.Scope.SchemaName
	page := g.query.Page
	g.mu.Unlock()
	summary, err := runner.RunValidation(ctx, schema)
	if err != nil {
		return domain.ValidationRunSummary{}, err
	}
	_ = g.fetchPage(ctx, page)
	g.refreshOverlay(ctx)
	return summary, nil
}

// fetchPage issues a read for one page of the current query state and, when
// the response is still the newest, replaces the visible window wholesale.
// A missing scope key makes the operation a no-op rather than a malformed
// request. On failure the previous window is left untouched.
func (g *Grid) fetchPage(ctx context.Context, page int) error {
	g.mu.Lock()
	if !g.query.Scope.Complete(g.cfg.Entity) {
		g.mu.Unlock()
		return nil
	}
	g.gen++
	gen := g.gen
	req := domain.PageRequest{
		Entity:   g.cfg.Entity,
		Page:     page,
		PageSize: g.query.PageSize,
		Sort:     g.query.Sort,
		Filter:   g.query.Filter,
		Scope:    g.query.Scope,
	}
	g.mu.Unlock()

	res, err := g.source.FetchPage(ctx, req)

	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen {
		// Superseded by a newer fetch; drop the stale response.
		return nil
	}
	if err != nil {
		g.notifier.Notify(Notification{Severity: SeverityError, Message: "Error fetching data"})
		return err
	}
	g.applyWindowLocked(page, res)
	return nil
}

// applyWindowLocked installs a fetched window and performs new-row placement
// when the fetch landed on the page computed for a pending add.
func (g *Grid) applyWindowLocked(page int, res domain.PageResult) {
	rows := make([]Row, len(res.Rows))
	for i, r := range res.Rows {
		if r.ID == "" {
			r.ID = strconv.Itoa(page*g.query.PageSize + i + 1)
		}
		rows[i] = r
	}
	g.rows = rows
	g.rowCount = res.TotalCount
	g.query.Page = page
	g.modes.reset()
	g.focusRowID = ""

	if g.isNewRowAdded && page == g.newLastPage {
		g.appendEphemeralLocked()
	}
}

func (g *Grid) appendEphemeralLocked() {
	row := Row{ID: domain.NewRowID(), IsNew: true, Fields: map[string]any{}}
	for k, v := range g.cfg.InitialRow {
		row.Fields[k] = v
	}
	g.rows = append(g.rows, row)
	g.modes.states[row.ID] = StateEditing
	g.modes.remember(row.ID, row.Clone())
	g.focusRowID = row.ID
}

// AddRow starts the add-row flow: it computes the page the grown collection
// ends on, records the placement override, and fetches that page. The fresh
// ephemeral row is appended in editing mode once that fetch resolves.
func (g *Grid) AddRow(ctx context.Context) error {
	g.mu.Lock()
	if g.cfg.Locked {
		g.mu.Unlock()
		return ErrLocked
	}
	if g.isNewRowAdded {
		g.mu.Unlock()
		return ErrAddInProgress
	}
	target := domain.TargetPageForInsert(g.rowCount, g.query.PageSize)
	g.isNewRowAdded = true
	g.addOpensNewPage = domain.OpensNewPage(g.rowCount, g.query.PageSize)
	g.newLastPage = target
	g.mu.Unlock()
	return g.fetchPage(ctx, target)
}

// BeginEdit puts a row into editing mode, retaining its pre-edit snapshot for
// rollback.
func (g *Grid) BeginEdit(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cfg.Locked {
		return ErrLocked
	}
	row, ok := g.findLocked(id)
	if !ok {
		return ErrRowNotFound
	}
	if err := g.modes.transition(id, StateEditing); err != nil {
		return err
	}
	g.modes.remember(id, row.Clone())
	return nil
}

// EditField applies one provisional field edit to a row in editing mode. The
// value is only displayed optimistically; nothing reaches the server until
// the edit is proposed and confirmed.
func (g *Grid) EditField(id, field string, value any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.modes.state(id) != StateEditing {
		return fmt.Errorf("row %s is not in editing mode", id)
	}
	idx, ok := g.indexLocked(id)
	if !ok {
		return ErrRowNotFound
	}
	g.rows[idx].SetField(field, value)
	return nil
}

// CancelEdit abandons an in-progress edit: an ephemeral row is removed from
// the window outright (stepping the page back when the add had opened a new
// page); a durable row reverts to its pre-edit snapshot. No server call is
// made either way.
func (g *Grid) CancelEdit(ctx context.Context, id string) error {
	g.mu.Lock()
	if g.cfg.Locked {
		g.mu.Unlock()
		return ErrLocked
	}
	idx, ok := g.indexLocked(id)
	if !ok {
		g.mu.Unlock()
		return ErrRowNotFound
	}
	// A not-yet-confirmed action for this row dies with the edit, reopening
	// the single-action gate.
	if g.pending != nil && g.pending.rowID == id {
		g.pending = nil
		if g.modes.state(id) == StatePendingSave {
			_ = g.modes.transition(id, StateEditing)
		}
	}
	row := g.rows[idx]
	if row.IsNew {
		g.rows = append(g.rows[:idx], g.rows[idx+1:]...)
		g.modes.forget(id)
		stepBack := g.addOpensNewPage && g.query.Page > 0
		g.isNewRowAdded = false
		g.addOpensNewPage = false
		g.focusRowID = ""
		if stepBack {
			page := g.query.Page - 1
			g.mu.Unlock()
			return g.fetchPage(ctx, page)
		}
		g.mu.Unlock()
		return nil
	}
	if snapshot, ok := g.modes.recall(id); ok {
		g.rows[idx] = snapshot.Clone()
	}
	err := g.modes.transition(id, StateView)
	g.mu.Unlock()
	return err
}

// Snapshot returns the pre-edit snapshot of a row currently being edited.
func (g *Grid) Snapshot(id string) (Row, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap, ok := g.modes.recall(id)
	if !ok {
		return Row{}, false
	}
	return snap.Clone(), true
}

func (g *Grid) findLocked(id string) (Row, bool) {
	idx, ok := g.indexLocked(id)
	if !ok {
		return Row{}, false
	}
	return g.rows[idx], true
}

func (g *Grid) indexLocked(id string) (int, bool) {
	for i, r := range g.rows {
		if r.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (g *Grid) notify(severity Severity, format string, args ...any) {
	g.notifier.Notify(Notification{Severity: severity, Message: fmt.Sprintf(format, args...)})
}

// refreshDependents is the post-commit side-effect chain for validating
// grids: best-effort summary-view refresh plus a wholesale overlay reload.
func (g *Grid) refreshDependents(ctx context.Context) {
	if !g.cfg.Validate {
		return
	}
	g.mu.Lock()
	schema := g.query.Scope.SchemaName
	g.mu.Unlock()
	if err := g.source.RefreshSummaryView(ctx, schema); err != nil {
		// Fire-and-forget contract: failures are surfaced, never fatal.
		g.notify(SeverityInfo, "Summary view refresh failed: %v", err)
	}
	g.refreshOverlay(ctx)
}

// refreshOverlay reloads the validation overlay after a data (re)load or a
// committed mutation. Page moves within already-loaded data never requalify
// rows, so plain pagination skips this.
func (g *Grid) refreshOverlay(ctx context.Context) {
	if g.overlay == nil {
		return
	}
	g.mu.Lock()
	scope := g.query.Scope
	g.mu.Unlock()
	if !scope.Complete(g.cfg.Entity) {
		return
	}
	if err := g.overlay.RefreshReport(ctx, scope.SchemaName); err != nil {
		g.notify(SeverityInfo, "Validation refresh failed: %v", err)
	}
}
