package main

import (
	"fmt"

	craftsqlerrors "github.com/craft-ec/craftsql/core/errors"
	"github.com/craft-ec/craftsql/core/localstore"
)

// StoreInfoCmd prints the store's directory, its default root, and its
// named roots. It does not count the store's pages.
type StoreInfoCmd struct {
	Dir string `arg:"" help:"Store directory" type:"path"`
}

func (c *StoreInfoCmd) Run(rc runContext) error {
	store, err := localstore.New(c.Dir)
	if err != nil {
		return craftsqlerrors.Wrap(err, "open store")
	}

	root, ok, err := store.CurrentRoot(rc.ctx)
	if err != nil {
		return craftsqlerrors.Wrap(err, "read root")
	}

	fmt.Printf("directory: %s\n", c.Dir)
	if ok {
		fmt.Printf("root:      %s\n", root)
	} else {
		fmt.Printf("root:      (none)\n")
	}

	roots, err := store.ListNamedRoots(rc.ctx)
	if err != nil {
		return craftsqlerrors.Wrap(err, "list named roots")
	}
	fmt.Printf("named roots: %d\n", len(roots))
	for _, r := range roots {
		fmt.Printf("  %-20s %s\n", r.Name, r.CID)
	}
	return nil
}
