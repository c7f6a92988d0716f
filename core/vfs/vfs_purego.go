//go:build !cgo_sqlite

package vfs

import (
	"fmt"

	"github.com/craft-ec/craftsql/core/pagestore"
)

// Register always fails under the pure Go driver: registering a custom
// VFS requires the CGO sqlite3 driver. Build with -tags cgo_sqlite.
func Register(name string, store pagestore.PageStore) error {
	return fmt.Errorf("vfs: registering %q requires the cgo_sqlite build tag", name)
}
