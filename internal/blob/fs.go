package blob

import (
	fsstore "forestcore/internal/infra/blob/fs"
)

// NewFilesystem returns a filesystem-backed blob.Store rooted at root.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }
