// Command statsdump opens a db's store and prints its
// MergeTree stats as JSON, mirroring the SIGUSR2 dump-stats path of
// spec.md §6.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/Netsend/persdb/internal/kv"
	"github.com/Netsend/persdb/internal/mergetree"
)

func main() {
	var dbDir, perspectives string
	var vSize int
	flag.StringVar(&dbDir, "db", "", "path to the db's store directory")
	flag.StringVar(&perspectives, "perspectives", "", "comma-separated perspective names")
	flag.IntVar(&vSize, "vsize", 3, "version identifier size in bytes")
	flag.Parse()

	if dbDir == "" {
		fmt.Fprintln(os.Stderr, "usage: statsdump -db <path> [-perspectives a,b,c]")
		os.Exit(2)
	}

	if err := run(dbDir, perspectives, vSize); err != nil {
		fmt.Fprintln(os.Stderr, "statsdump:", err)
		os.Exit(1)
	}
}

func run(dbDir, perspectives string, vSize int) error {
	log, _ := zap.NewProduction()
	defer log.Sync()

	store, err := kv.Open(dbDir)
	if err != nil {
		return err
	}

	var pes []string
	if perspectives != "" {
		pes = strings.Split(perspectives, ",")
	}

	ctx := context.Background()
	mt, err := mergetree.Open(ctx, store, mergetree.Config{Perspectives: pes, VSize: vSize}, log)
	if err != nil {
		return err
	}
	defer mt.Close()

	stats, err := mt.ComputeStats(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
