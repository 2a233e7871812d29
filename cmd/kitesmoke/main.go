// Command kitesmoke runs a short scripted session against a fresh database
// and prints what it sees: a table of people, an update that a concurrent
// reader does not observe, a rollback and a checkpoint.
package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alexflint/go-arg"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/naveen246/kite/cli"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/exec"
	"github.com/naveen246/kite/logger"
	"github.com/naveen246/kite/server"
)

const sampleTable = "sample_table"

type config struct {
	Path     string `arg:"positional" help:"Database file to use (default: a new file in the temp directory)"`
	PageSize int    `arg:"--page-size" help:"Page size of the new database" default:"4096"`
	Keep     bool   `arg:"--keep" help:"Keep the database file afterwards"`
	Verbose  bool   `arg:"-v,--verbose" help:"Log debug messages to stderr"`
}

type person struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func personKey(id uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, id)
}

func main() {
	var cfg config
	arg.MustParse(&cfg)
	if cfg.Path == "" {
		cfg.Path = filepath.Join(os.TempDir(), fmt.Sprintf("kitesmoke-%s.db", uuid.NewString()))
	}
	if err := run(context.Background(), cfg); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg config) error {
	opts := server.DefaultOptions()
	opts.PageSize = cfg.PageSize
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	opts.Logger = logger.New(os.Stderr, level)

	db, err := server.Open(cfg.Path, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Println(err)
		}
		if !cfg.Keep {
			os.Remove(cfg.Path)
			os.Remove(cfg.Path + "-wal")
		}
	}()
	fmt.Printf("Opened %s\n\n", cfg.Path)

	if err := dropIfExists(ctx, db, sampleTable); err != nil {
		return err
	}
	if _, err := db.Run(ctx, exec.Statement{Op: exec.OpCreate, Table: sampleTable}); err != nil {
		return err
	}
	alice := person{ID: 1, Name: "Alice", Age: 25}
	if err := insert(ctx, db, alice); err != nil {
		return err
	}
	if err := printTable(ctx, db, "After insert"); err != nil {
		return err
	}

	tx, err := db.Begin(ctx, server.Write)
	if err != nil {
		return err
	}
	alice.Age = 90
	value, err := json.Marshal(alice)
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, tx, exec.Statement{Op: exec.OpUpdate, Table: sampleTable, Key: personKey(alice.ID), Value: value}); err != nil {
		tx.Rollback()
		return err
	}
	if err := printRows(ctx, db, tx, "Inside the write transaction"); err != nil {
		tx.Rollback()
		return err
	}
	if err := printTable(ctx, db, "Concurrent reader"); err != nil {
		tx.Rollback()
		return err
	}
	if err := server.Rollback(tx); err != nil {
		return err
	}
	if err := printTable(ctx, db, "After rollback"); err != nil {
		return err
	}

	result, err := db.Checkpoint(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Checkpointed %d pages\n", len(result.Pages))

	stats, err := db.Stats()
	if err != nil {
		return err
	}
	cli.DimmedColor().Printf("%s\n", stats)
	cli.DimmedColor().Printf("Database file is %s\n", humanize.IBytes(uint64(stats.PageCount)*uint64(stats.PageSize)))
	return nil
}

func dropIfExists(ctx context.Context, db *server.DB, table string) error {
	_, err := db.Run(ctx, exec.Statement{Op: exec.OpDrop, Table: table})
	if errors.Is(err, dberr.ErrTreeNotFound) {
		return nil
	}
	return err
}

func insert(ctx context.Context, db *server.DB, p person) error {
	value, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = db.Run(ctx, exec.Statement{Op: exec.OpInsert, Table: sampleTable, Key: personKey(p.ID), Value: value})
	return err
}

// printTable prints the table as seen by a new read transaction.
func printTable(ctx context.Context, db *server.DB, title string) error {
	return db.View(ctx, func(tx *server.Tx) error {
		return printRows(ctx, db, tx, title)
	})
}

func printRows(ctx context.Context, db *server.DB, tx *server.Tx, title string) error {
	result, err := db.Exec(ctx, tx, exec.Statement{Op: exec.OpScan, Table: sampleTable})
	if err != nil {
		return err
	}

	tw := cli.NewTableWriter()
	tw.SetTitle(title)
	tw.AppendHeader(table.Row{"ID", "Name", "Age"})
	for _, row := range result.Rows {
		var p person
		if err := json.Unmarshal(row.Value, &p); err != nil {
			return fmt.Errorf("decode row %x: %w", row.Key, err)
		}
		tw.AppendRow(table.Row{p.ID, p.Name, p.Age})
	}
	fmt.Println(tw.Render())
	fmt.Println()
	return nil
}
