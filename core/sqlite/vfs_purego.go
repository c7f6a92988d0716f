//go:build !cgo_sqlite

package sqlite

import (
	"github.com/craft-ec/craftsql/core/pagestore"
	"github.com/craft-ec/craftsql/core/vfs"
)

// RegisterVFS always fails under the pure Go driver: registering a
// custom VFS requires the CGO sqlite3 driver. Build with -tags cgo_sqlite.
func RegisterVFS(name string, store pagestore.PageStore) error {
	return vfs.Register(name, store)
}
