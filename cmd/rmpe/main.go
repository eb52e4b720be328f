// Command rmpe bulk-deletes a single perspective (or the local/staging)
// tree from a db's store, per spec.md §4.1 "delete(pe) (used by the rmpe
// tool)".
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Netsend/persdb/internal/kv"
	"github.com/Netsend/persdb/internal/tree"
	"github.com/Netsend/persdb/internal/version"
)

func main() {
	var dbDir, treeName string
	flag.StringVar(&dbDir, "db", "", "path to the db's store directory")
	flag.StringVar(&treeName, "tree", "", `tree to delete, e.g. "pe/alice", "l", "stage"`)
	flag.Parse()

	if dbDir == "" || treeName == "" {
		fmt.Fprintln(os.Stderr, "usage: rmpe -db <path> -tree <name>")
		os.Exit(2)
	}

	if err := run(dbDir, treeName); err != nil {
		fmt.Fprintln(os.Stderr, "rmpe:", err)
		os.Exit(1)
	}
}

func run(dbDir, treeName string) error {
	log, _ := zap.NewProduction()
	defer log.Sync()

	store, err := kv.Open(dbDir)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	alloc := version.New(version.DefaultSize, log)
	t, err := tree.Open(ctx, treeName, store, alloc, log)
	if err != nil {
		return err
	}
	defer t.Close()

	if err := t.Delete(ctx); err != nil {
		return err
	}
	log.Info("deleted tree", zap.String("tree", treeName))
	return nil
}
