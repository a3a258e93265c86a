package grid

import (
	"errors"
	"fmt"
	"time"

	"forestcore/pkg/domain"
)

// Row aliases domain.Row for grid operations.
type Row = domain.Row

// RefreshPolicy selects how a grid reconciles after a successful delete. One
// policy per grid instance; the two are never mixed within one grid.
type RefreshPolicy string

const (
	// RefreshLocal removes the deleted row from the in-memory window directly.
	RefreshLocal RefreshPolicy = "local"
	// RefreshRefetch re-fetches the current page after a delete. Used by the
	// validation-overlaid measurement grids where derived state may shift.
	RefreshRefetch RefreshPolicy = "refetch"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultPageSize         = 10
	DefaultQuickFilterDelay = 500 * time.Millisecond
)

// Config declares one grid variant.
type Config struct {
	// Entity selects the backing entity type and its declared schema.
	Entity domain.EntityType
	// PageSize is the fixed window size (default 10).
	PageSize int
	// Locked renders the grid read-only: add, edit, and delete are rejected.
	Locked bool
	// FocusField names the column focused when a fresh ephemeral row enters
	// edit mode.
	FocusField string
	// InitialRow is the field template for newly added rows.
	InitialRow map[string]any
	// DeleteRefresh picks the post-delete reconciliation policy
	// (default RefreshLocal, RefreshRefetch when Validate is set).
	DeleteRefresh RefreshPolicy
	// QuickFilterDelay is the quiescence period for quick-filter debouncing
	// (default 500ms).
	QuickFilterDelay time.Duration
	// Validate enables the validation overlay and the dependent summary-view
	// refresh after commits and deletes.
	Validate bool
}

// Grid operation errors surfaced to callers before any network activity.
var (
	// ErrLocked rejects mutations against a read-only grid configuration.
	ErrLocked = errors.New("grid is locked")
	// ErrActionPending rejects starting a new action while a confirmation is
	// outstanding.
	ErrActionPending = errors.New("another action is awaiting confirmation")
	// ErrRowNotFound reports an operation against a row outside the window.
	ErrRowNotFound = errors.New("row not present in current window")
	// ErrAddInProgress rejects adding a second ephemeral row before the first
	// is committed or cancelled.
	ErrAddInProgress = errors.New("a new row is already being added")
	// ErrProtectedScope rejects deleting the record backing the active scope.
	ErrProtectedScope = errors.New("cannot delete the currently selected census")
)

func (c *Config) applyDefaults() error {
	if c.Entity == "" {
		return fmt.Errorf("grid config requires an entity type")
	}
	if _, ok := domain.SchemaFor(c.Entity); !ok {
		return fmt.Errorf("no grid schema declared for entity %s", c.Entity)
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.QuickFilterDelay == 0 {
		c.QuickFilterDelay = DefaultQuickFilterDelay
	}
	if c.DeleteRefresh == "" {
		if c.Validate {
			c.DeleteRefresh = RefreshRefetch
		} else {
			c.DeleteRefresh = RefreshLocal
		}
	}
	return nil
}
