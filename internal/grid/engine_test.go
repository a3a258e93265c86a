package grid

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"forestcore/pkg/domain"
)

// fakeSource is an in-memory DataSource backing the grid tests. It serves
// windows out of a mutable dataset, records every call, and can be scripted
// to fail or to block individual fetches.
type fakeSource struct {
	mu      sync.Mutex
	data    []domain.Row
	fetches []domain.PageRequest
	deletes []int64
	saves   []savedCall

	fetchErr  error
	saveErr   error
	deleteErr error

	report       domain.ValidationReport
	procedures   []domain.ValidationProcedure
	refreshErr   error
	refreshCalls int
	reportCalls  int
	runCalls     int
	runErr       error

	nextID int64
	// blockFetch gates fetches by call index; a fetch with a registered
	// channel computes its response first, then waits for release.
	blockFetch map[int]chan struct{}
}

type savedCall struct {
	oldRow domain.Row
	newRow domain.Row
}

func newFakeSource(total int) *fakeSource {
	s := &fakeSource{nextID: int64(total)}
	for i := 0; i < total; i++ {
		s.data = append(s.data, domain.Row{
			EntityID: int64(i + 1),
			Fields: map[string]any{
				"attributeID": int64(i + 1),
				"code":        fmt.Sprintf("attr-%03d", i+1),
				"description": fmt.Sprintf("attribute %d", i+1),
				"status":      "alive",
			},
		})
	}
	return s
}

func (s *fakeSource) FetchPage(_ context.Context, req domain.PageRequest) (domain.PageResult, error) {
	s.mu.Lock()
	idx := len(s.fetches)
	s.fetches = append(s.fetches, req)
	if s.fetchErr != nil {
		err := s.fetchErr
		s.mu.Unlock()
		return domain.PageResult{}, err
	}
	var matched []domain.Row
	for _, r := range s.data {
		if r.MatchesTokens(req.Filter.QuickFilter) {
			matched = append(matched, r.Clone())
		}
	}
	total := len(matched)
	start := req.Page * req.PageSize
	end := start + req.PageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	res := domain.PageResult{Rows: matched[start:end], TotalCount: total}
	gate := s.blockFetch[idx]
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return res, nil
}

func (s *fakeSource) SaveRow(_ context.Context, _ domain.EntityType, _ domain.Scope, oldRow, newRow domain.Row) (domain.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, savedCall{oldRow: oldRow.Clone(), newRow: newRow.Clone()})
	if s.saveErr != nil {
		return domain.Row{}, s.saveErr
	}
	saved := newRow.Clone()
	if oldRow.IsNew {
		s.nextID++
		saved.EntityID = s.nextID
		saved.IsNew = false
		s.data = append(s.data, saved.Clone())
		return saved, nil
	}
	for i, r := range s.data {
		if r.EntityID == newRow.EntityID {
			s.data[i] = saved.Clone()
			break
		}
	}
	return saved, nil
}

func (s *fakeSource) DeleteRow(_ context.Context, _ domain.EntityType, _ domain.Scope, entityID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, entityID)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for i, r := range s.data {
		if r.EntityID == entityID {
			s.data = append(s.data[:i], s.data[i+1:]...)
			break
		}
	}
	return nil
}

func (s *fakeSource) FetchValidationReport(context.Context, string) (domain.ValidationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportCalls++
	return s.report, nil
}

func (s *fakeSource) RunValidation(context.Context, string) (domain.ValidationRunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runCalls++
	if s.runErr != nil {
		return domain.ValidationRunSummary{}, s.runErr
	}
	return domain.ValidationRunSummary{TotalRows: len(s.data)}, nil
}

func (s *fakeSource) FetchValidationProcedures(context.Context) ([]domain.ValidationProcedure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procedures, nil
}

func (s *fakeSource) RefreshSummaryView(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++
	return s.refreshErr
}

func (s *fakeSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fetches)
}

func (s *fakeSource) lastFetch(t *testing.T) domain.PageRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.fetches) == 0 {
		t.Fatalf("no fetches recorded")
	}
	return s.fetches[len(s.fetches)-1]
}

var siteScope = domain.Scope{SchemaName: "forest", PlotID: 1, PlotCensusNumber: 1}

func newAttributeGrid(t *testing.T, source domain.DataSource, notifier Notifier) *Grid {
	t.Helper()
	g, err := New(Config{Entity: domain.EntityAttribute, QuickFilterDelay: time.Hour}, source, notifier)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	t.Cleanup(g.Close)
	if err := g.SetScope(context.Background(), siteScope); err != nil {
		t.Fatalf("set scope: %v", err)
	}
	return g
}

func TestFetchPageReplacesWindowWholesale(t *testing.T) {
	source := newFakeSource(25)
	g := newAttributeGrid(t, source, nil)

	rows := g.Rows()
	if len(rows) != 10 {
		t.Fatalf("expected 10 rows in window, got %d", len(rows))
	}
	if got := g.RowCount(); got != 25 {
		t.Fatalf("expected total 25, got %d", got)
	}
	if got := g.PageCount(); got != 3 {
		t.Fatalf("expected 3 pages, got %d", got)
	}
	if rows[0].ID != "1" || rows[9].ID != "10" {
		t.Fatalf("expected assigned client ids 1..10, got %s..%s", rows[0].ID, rows[9].ID)
	}

	if err := g.SetPage(context.Background(), 1); err != nil {
		t.Fatalf("set page: %v", err)
	}
	rows = g.Rows()
	if len(rows) != 10 {
		t.Fatalf("expected 10 rows on page 1, got %d", len(rows))
	}
	if rows[0].EntityID != 11 {
		t.Fatalf("expected page 1 to start at entity 11, got %d", rows[0].EntityID)
	}
	if rows[0].ID != "11" {
		t.Fatalf("expected assigned client id 11, got %s", rows[0].ID)
	}
}

func TestStaleFetchResponseIsDiscarded(t *testing.T) {
	source := newFakeSource(5)
	g, err := New(Config{Entity: domain.EntityAttribute, QuickFilterDelay: time.Hour}, source, nil)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	t.Cleanup(g.Close)
	if err := g.SetScope(context.Background(), siteScope); err != nil {
		t.Fatalf("set scope: %v", err)
	}

	// Gate the next fetch so its (already computed) response returns late.
	gate := make(chan struct{})
	source.mu.Lock()
	source.blockFetch = map[int]chan struct{}{len(source.fetches): gate}
	source.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- g.Refresh(context.Background()) }()

	// Wait for the gated fetch to be registered.
	deadline := time.Now().Add(2 * time.Second)
	for source.fetchCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("gated fetch never issued")
		}
		time.Sleep(time.Millisecond)
	}

	// Shrink the dataset, then issue a newer fetch that resolves first.
	source.mu.Lock()
	source.data = source.data[:2]
	source.mu.Unlock()
	if err := g.Refresh(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if got := g.RowCount(); got != 2 {
		t.Fatalf("expected newer total 2, got %d", got)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("gated refresh: %v", err)
	}
	// The stale five-row response must not have overwritten the newer window.
	if got := g.RowCount(); got != 2 {
		t.Fatalf("stale response overwrote window: total %d", got)
	}
	if got := len(g.Rows()); got != 2 {
		t.Fatalf("stale response overwrote window: %d rows", got)
	}
}

func TestFetchErrorLeavesWindowAndNotifies(t *testing.T) {
	source := newFakeSource(12)
	rec := &RecordingNotifier{}
	g := newAttributeGrid(t, source, rec)

	source.mu.Lock()
	source.fetchErr = fmt.Errorf("backend down")
	source.mu.Unlock()

	if err := g.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	if got := len(g.Rows()); got != 10 {
		t.Fatalf("window changed on failed fetch: %d rows", got)
	}
	errs := rec.BySeverity(SeverityError)
	if len(errs) != 1 || errs[0].Message != "Error fetching data" {
		t.Fatalf("unexpected notifications: %+v", errs)
	}
}

func TestIncompleteScopeMakesFetchNoOp(t *testing.T) {
	source := newFakeSource(3)
	g, err := New(Config{Entity: domain.EntityAttribute, QuickFilterDelay: time.Hour}, source, nil)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	t.Cleanup(g.Close)
	if err := g.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh with empty scope: %v", err)
	}
	if got := source.fetchCount(); got != 0 {
		t.Fatalf("expected no fetches without a schema, got %d", got)
	}
}

func TestAddRowLandsOnLastPageMidPage(t *testing.T) {
	source := newFakeSource(23)
	g := newAttributeGrid(t, source, nil)

	if err := g.AddRow(context.Background()); err != nil {
		t.Fatalf("add row: %v", err)
	}
	if got := g.Query().Page; got != 2 {
		t.Fatalf("expected add to land on page 2, got %d", got)
	}
	rows := g.Rows()
	if len(rows) != 4 {
		t.Fatalf("expected 3 durable rows plus ephemeral, got %d", len(rows))
	}
	last := rows[len(rows)-1]
	if !last.IsNew {
		t.Fatalf("expected trailing ephemeral row")
	}
	if got := g.RowState(last.ID); got != StateEditing {
		t.Fatalf("expected ephemeral row editing, got %s", got)
	}
	focusID, _ := g.FocusedRow()
	if focusID != last.ID {
		t.Fatalf("expected focus on ephemeral row %s, got %s", last.ID, focusID)
	}
}

func TestAddRowOpeningNewPageStepsBackOnCancel(t *testing.T) {
	source := newFakeSource(20)
	g := newAttributeGrid(t, source, nil)

	if err := g.AddRow(context.Background()); err != nil {
		t.Fatalf("add row: %v", err)
	}
	rows := g.Rows()
	if len(rows) != 1 || !rows[0].IsNew {
		t.Fatalf("expected freshly opened page with only the ephemeral row, got %d rows", len(rows))
	}
	if got := g.Query().Page; got != 2 {
		t.Fatalf("expected page 2, got %d", got)
	}

	if err := g.CancelEdit(context.Background(), rows[0].ID); err != nil {
		t.Fatalf("cancel edit: %v", err)
	}
	if got := g.Query().Page; got != 1 {
		t.Fatalf("expected step back to page 1, got %d", got)
	}
	if got := len(g.Rows()); got != 10 {
		t.Fatalf("expected full page 1 window, got %d rows", got)
	}
}

func TestAddRowRejectedWhileAddInProgress(t *testing.T) {
	source := newFakeSource(5)
	g := newAttributeGrid(t, source, nil)
	if err := g.AddRow(context.Background()); err != nil {
		t.Fatalf("add row: %v", err)
	}
	if err := g.AddRow(context.Background()); err != ErrAddInProgress {
		t.Fatalf("expected ErrAddInProgress, got %v", err)
	}
}

func TestCancelEditRestoresSnapshotWithoutServerCall(t *testing.T) {
	source := newFakeSource(5)
	g := newAttributeGrid(t, source, nil)
	fetchesBefore := source.fetchCount()

	rows := g.Rows()
	id := rows[0].ID
	if err := g.BeginEdit(id); err != nil {
		t.Fatalf("begin edit: %v", err)
	}
	if err := g.EditField(id, "code", "edited"); err != nil {
		t.Fatalf("edit field: %v", err)
	}
	if got := g.Rows()[0].Field("code"); got != "edited" {
		t.Fatalf("optimistic edit not visible: %v", got)
	}
	if err := g.CancelEdit(context.Background(), id); err != nil {
		t.Fatalf("cancel edit: %v", err)
	}
	if got := g.Rows()[0].Field("code"); got != "attr-001" {
		t.Fatalf("snapshot not restored: %v", got)
	}
	if got := g.RowState(id); got != StateView {
		t.Fatalf("expected view state after cancel, got %s", got)
	}
	if got := source.fetchCount(); got != fetchesBefore {
		t.Fatalf("cancel made a server call: %d fetches", got-fetchesBefore)
	}
	if len(source.saves) != 0 {
		t.Fatalf("cancel persisted an edit")
	}
}

func TestLockedGridRejectsMutations(t *testing.T) {
	source := newFakeSource(5)
	g, err := New(Config{Entity: domain.EntityAttribute, Locked: true, QuickFilterDelay: time.Hour}, source, nil)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	t.Cleanup(g.Close)
	if err := g.SetScope(context.Background(), siteScope); err != nil {
		t.Fatalf("set scope: %v", err)
	}
	id := g.Rows()[0].ID
	if err := g.AddRow(context.Background()); err != ErrLocked {
		t.Fatalf("add: expected ErrLocked, got %v", err)
	}
	if err := g.BeginEdit(id); err != ErrLocked {
		t.Fatalf("edit: expected ErrLocked, got %v", err)
	}
	if _, err := g.ProposeDelete(id); err != ErrLocked {
		t.Fatalf("delete: expected ErrLocked, got %v", err)
	}
}

func TestQuickFilterDebouncesToSingleFetch(t *testing.T) {
	source := newFakeSource(30)
	g := newAttributeGrid(t, source, nil)
	before := source.fetchCount()

	ctx := context.Background()
	g.SetQuickFilter(ctx, "attr")
	g.SetQuickFilter(ctx, "attr-0")
	g.SetQuickFilter(ctx, "attr-001")
	if got := source.fetchCount(); got != before {
		t.Fatalf("fetch fired before quiescence: %d extra", got-before)
	}
	g.FlushQuickFilter()
	if got := source.fetchCount(); got != before+1 {
		t.Fatalf("expected exactly one debounced fetch, got %d", got-before)
	}
	req := source.lastFetch(t)
	if len(req.Filter.QuickFilter) != 1 || req.Filter.QuickFilter[0] != "attr-001" {
		t.Fatalf("expected final token only, got %v", req.Filter.QuickFilter)
	}
	if got := g.RowCount(); got != 1 {
		t.Fatalf("expected one matching row, got %d", got)
	}
}

func TestSetFilterResetsToPageZero(t *testing.T) {
	source := newFakeSource(25)
	g := newAttributeGrid(t, source, nil)
	if err := g.SetPage(context.Background(), 2); err != nil {
		t.Fatalf("set page: %v", err)
	}
	items := []domain.FilterItem{{Field: "status", Operator: domain.FilterEquals, Value: "alive"}}
	if err := g.SetFilter(context.Background(), items); err != nil {
		t.Fatalf("set filter: %v", err)
	}
	if got := g.Query().Page; got != 0 {
		t.Fatalf("expected reset to page 0, got %d", got)
	}
	req := source.lastFetch(t)
	if len(req.Filter.Items) != 1 || req.Filter.Items[0].Field != "status" {
		t.Fatalf("filter items not forwarded: %+v", req.Filter.Items)
	}
}

func TestSetSortForwardsSortSpec(t *testing.T) {
	source := newFakeSource(5)
	g := newAttributeGrid(t, source, nil)
	if err := g.SetSort(context.Background(), "code", domain.SortDescending); err != nil {
		t.Fatalf("set sort: %v", err)
	}
	req := source.lastFetch(t)
	if req.Sort == nil || req.Sort.Field != "code" || req.Sort.Direction != domain.SortDescending {
		t.Fatalf("sort spec not forwarded: %+v", req.Sort)
	}
	if err := g.ClearSort(context.Background()); err != nil {
		t.Fatalf("clear sort: %v", err)
	}
	if req := source.lastFetch(t); req.Sort != nil {
		t.Fatalf("sort spec not cleared: %+v", req.Sort)
	}
}

func TestSetScopeAbandonsNewRowBookkeeping(t *testing.T) {
	source := newFakeSource(5)
	g := newAttributeGrid(t, source, nil)
	if err := g.AddRow(context.Background()); err != nil {
		t.Fatalf("add row: %v", err)
	}
	other := siteScope
	other.PlotID = 2
	if err := g.SetScope(context.Background(), other); err != nil {
		t.Fatalf("set scope: %v", err)
	}
	for _, r := range g.Rows() {
		if r.IsNew {
			t.Fatalf("ephemeral row survived scope switch")
		}
	}
	// The add flow must be restartable in the new scope.
	if err := g.AddRow(context.Background()); err != nil {
		t.Fatalf("add row after scope switch: %v", err)
	}
}

func TestRowsReturnsDetachedCopies(t *testing.T) {
	source := newFakeSource(3)
	g := newAttributeGrid(t, source, nil)
	rows := g.Rows()
	rows[0].Fields["code"] = "mutated"
	if got := g.Rows()[0].Field("code"); got == "mutated" {
		t.Fatalf("external mutation leaked into window")
	}
}

func TestNewGridRequiresDeclaredEntity(t *testing.T) {
	if _, err := New(Config{Entity: "nonsense"}, newFakeSource(0), nil); err == nil {
		t.Fatalf("expected error for undeclared entity")
	}
	if _, err := New(Config{}, newFakeSource(0), nil); err == nil {
		t.Fatalf("expected error for missing entity")
	}
	if _, err := New(Config{Entity: domain.EntityAttribute}, nil, nil); err == nil ||
		!strings.Contains(err.Error(), "data source") {
		t.Fatalf("expected data source error, got %v", err)
	}
}
