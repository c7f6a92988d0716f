//go:build cgo_sqlite

package sqlite

import (
	"github.com/craft-ec/craftsql/core/pagestore"
	"github.com/craft-ec/craftsql/core/vfs"
)

// RegisterVFS installs store as a custom SQLite VFS under name. Open a
// database against it with Open("file:mydb?vfs=" + name). Only
// available under the CGO driver; mattn/go-sqlite3 is the only driver
// here that can register a custom VFS.
func RegisterVFS(name string, store pagestore.PageStore) error {
	return vfs.Register(name, store)
}
