package grid

import (
	"context"
	"strings"

	"forestcore/pkg/domain"
)

// SetPage moves the visible window to another page and fetches it. Out of
// range pages are clamped by the data source, not here; the authoritative
// total arrives with the response.
func (g *Grid) SetPage(ctx context.Context, page int) error {
	if page < 0 {
		page = 0
	}
	g.mu.Lock()
	g.query.Page = page
	g.mu.Unlock()
	return g.fetchPage(ctx, page)
}

// SetPageSize changes the window size and refetches from page zero, since the
// old page index is meaningless under the new partitioning.
func (g *Grid) SetPageSize(ctx context.Context, size int) error {
	if size <= 0 {
		size = DefaultPageSize
	}
	g.mu.Lock()
	g.query.PageSize = size
	g.query.Page = 0
	g.mu.Unlock()
	return g.fetchPage(ctx, 0)
}

// SetSort replaces the sort order and refetches the current page immediately.
func (g *Grid) SetSort(ctx context.Context, field string, dir domain.SortDirection) error {
	g.mu.Lock()
	g.query.Sort = &domain.SortSpec{Field: field, Direction: dir}
	page := g.query.Page
	g.mu.Unlock()
	return g.fetchPage(ctx, page)
}

// ClearSort restores the data source's natural order.
func (g *Grid) ClearSort(ctx context.Context) error {
	g.mu.Lock()
	g.query.Sort = nil
	page := g.query.Page
	g.mu.Unlock()
	return g.fetchPage(ctx, page)
}

// SetFilter replaces the structured filter items and refetches immediately
// from page zero. The quick-filter tokens ride along unchanged.
func (g *Grid) SetFilter(ctx context.Context, items []domain.FilterItem) error {
	g.mu.Lock()
	g.query.Filter.Items = items
	g.query.Page = 0
	g.mu.Unlock()
	return g.fetchPage(ctx, 0)
}

// SetQuickFilter records free-text search input. The refetch is debounced on
// the trailing edge so only the final value of a burst of keystrokes reaches
// the data source; each call supersedes any not-yet-fired predecessor.
func (g *Grid) SetQuickFilter(ctx context.Context, text string) {
	tokens := strings.Fields(text)
	g.mu.Lock()
	g.query.Filter.QuickFilter = tokens
	g.mu.Unlock()
	g.debouncer.Trigger(func() {
		g.mu.Lock()
		page := g.query.Page
		g.mu.Unlock()
		_ = g.fetchPage(ctx, page)
	})
}

// FlushQuickFilter fires a pending debounced quick-filter fetch immediately.
func (g *Grid) FlushQuickFilter() {
	g.debouncer.Flush()
}

// SetScope switches the grid to a different site, plot or census selection.
// The window resets to page zero and any in-progress new-row bookkeeping is
// abandoned, since the row belonged to the previous scope. When the new scope
// is incomplete for this grid's entity the fetch is a no-op and the window
// empties on the next complete scope. Validating grids reload their overlay
// with the data so annotations are present from the first render.
func (g *Grid) SetScope(ctx context.Context, scope domain.Scope) error {
	g.mu.Lock()
	g.query.Scope = scope
	g.query.Page = 0
	g.isNewRowAdded = false
	g.addOpensNewPage = false
	g.focusRowID = ""
	g.mu.Unlock()
	if err := g.fetchPage(ctx, 0); err != nil {
		return err
	}
	g.refreshOverlay(ctx)
	return nil
}

// Close releases the grid's timer resources. Pending debounced work is
// dropped, not fired.
func (g *Grid) Close() {
	g.debouncer.Stop()
}
