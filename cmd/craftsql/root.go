package main

import (
	"fmt"

	craftsqlerrors "github.com/craft-ec/craftsql/core/errors"
	"github.com/craft-ec/craftsql/core/localstore"
	"github.com/craft-ec/craftsql/core/pagestore"
)

// RootShowCmd prints the store's current default root.
type RootShowCmd struct {
	Dir string `arg:"" help:"Store directory" type:"path"`
}

func (c *RootShowCmd) Run(rc runContext) error {
	store, err := localstore.New(c.Dir)
	if err != nil {
		return craftsqlerrors.Wrap(err, "open store")
	}
	root, ok, err := store.CurrentRoot(rc.ctx)
	if err != nil {
		return craftsqlerrors.Wrap(err, "read root")
	}
	if !ok {
		fmt.Println("(none)")
		return nil
	}
	fmt.Println(root)
	return nil
}

// RootSetCmd sets the store's default root by CID.
type RootSetCmd struct {
	Dir string `arg:"" help:"Store directory" type:"path"`
	CID string `arg:"" help:"Root CID, hex-encoded"`
}

func (c *RootSetCmd) Run(rc runContext) error {
	store, err := localstore.New(c.Dir)
	if err != nil {
		return craftsqlerrors.Wrap(err, "open store")
	}
	cid, err := pagestore.CIDFromHex(c.CID)
	if err != nil {
		return &craftsqlerrors.ValidationError{Field: "cid", Value: c.CID, Message: err.Error(), Err: err}
	}
	if err := store.UpdateRoot(rc.ctx, cid); err != nil {
		return craftsqlerrors.Wrap(err, "update root")
	}
	return nil
}

// RootClearCmd resets the store's default root to nil.
type RootClearCmd struct {
	Dir string `arg:"" help:"Store directory" type:"path"`
}

func (c *RootClearCmd) Run(rc runContext) error {
	store, err := localstore.New(c.Dir)
	if err != nil {
		return craftsqlerrors.Wrap(err, "open store")
	}
	if err := store.UpdateRoot(rc.ctx, pagestore.NilCID); err != nil {
		return craftsqlerrors.Wrap(err, "clear root")
	}
	return nil
}
