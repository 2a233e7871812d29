package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/exec"
	"github.com/naveen246/kite/server"
	"github.com/naveen246/kite/txn"
)

// Session runs shell input against an open database. Statements run in
// their own transaction unless one was started with .begin.
type Session struct {
	db  *server.DB
	out io.Writer
	tx  *server.Tx
	// err is the failure of the last handled line, if any.
	err error
}

func NewSession(db *server.DB, out io.Writer) *Session {
	return &Session{db: db, out: out}
}

// InTx reports whether an explicit transaction is open.
func (s *Session) InTx() bool {
	return s.tx != nil
}

// Close rolls back an open transaction.
func (s *Session) Close() {
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
}

// Err returns the error of the last line passed to Handle, or nil.
func (s *Session) Err() error {
	return s.err
}

// Handle runs one line of input. It returns false when the shell should exit.
func (s *Session) Handle(ctx context.Context, input string) bool {
	s.err = nil
	input = strings.TrimSpace(input)
	if input == "" {
		return true
	}
	if !strings.HasPrefix(input, ".") {
		s.statement(ctx, input)
		return true
	}

	fields := strings.Fields(input)
	switch fields[0] {
	case ".quit", ".exit":
		return false
	case ".help":
		cmdHelp(s.out)
	case ".begin":
		s.begin(ctx, fields[1:])
	case ".commit":
		s.finish(true)
	case ".rollback":
		s.finish(false)
	case ".tables":
		s.tables(ctx)
	case ".count":
		s.count(ctx, fields[1:])
	case ".checkpoint":
		s.checkpoint(ctx)
	case ".stats":
		s.stats()
	default:
		fmt.Fprintln(s.out, "Unknown command, type .help for usage hints")
	}
	return true
}

func (s *Session) fail(err error) {
	s.err = err
	ErrorColor().Fprintf(s.out, "Error: %v\n", err)
	if s.tx != nil && s.tx.State() == txn.Closed {
		DimmedColor().Fprintln(s.out, "The transaction was rolled back")
		s.tx = nil
	}
}

func (s *Session) statement(ctx context.Context, input string) {
	stmt, err := ParseStatement(input)
	if err != nil {
		s.fail(err)
		return
	}

	var result exec.Result
	if s.tx != nil {
		result, err = s.db.Exec(ctx, s.tx, stmt)
	} else {
		result, err = s.db.Run(ctx, stmt)
	}
	if err != nil {
		s.fail(err)
		return
	}
	s.render(result)
}

func (s *Session) render(result exec.Result) {
	tw := NewTableWriter()
	switch result.Op {
	case exec.OpGet, exec.OpScan:
		tw.AppendHeader(table.Row{"Key", "Value"})
		for _, row := range result.Rows {
			tw.AppendRow(table.Row{printable(row.Key), printable(row.Value)})
		}
		tw.AppendFooter(table.Row{"Rows", humanize.Comma(int64(len(result.Rows)))})
	case exec.OpCreate:
		tw.AppendHeader(table.Row{"OK"})
		tw.AppendRow(table.Row{"Table created"})
	case exec.OpDrop:
		tw.AppendHeader(table.Row{"OK"})
		tw.AppendRow(table.Row{"Table dropped"})
	default:
		tw.AppendHeader(table.Row{"-", "Keys Affected"})
		tw.AppendRow(table.Row{"OK", result.Affected})
	}
	fmt.Fprintln(s.out, tw.Render())
}

func (s *Session) begin(ctx context.Context, args []string) {
	if s.tx != nil {
		s.fail(dberr.InvalidArgf("transaction %d is already open", s.tx.ID()))
		return
	}
	mode := server.Write
	if len(args) > 0 && args[0] == "read" {
		mode = server.Read
	}
	tx, err := s.db.Begin(ctx, mode)
	if err != nil {
		s.fail(err)
		return
	}
	s.tx = tx
	fmt.Fprintf(s.out, "Transaction %d started (%s)\n", tx.ID(), mode)
}

func (s *Session) finish(commit bool) {
	if s.tx == nil {
		s.fail(dberr.InvalidArgf("no transaction is open"))
		return
	}
	tx := s.tx
	s.tx = nil
	if commit {
		if err := tx.Commit(); err != nil {
			s.fail(err)
			return
		}
		fmt.Fprintln(s.out, "Transaction committed")
		return
	}
	if err := tx.Rollback(); err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintln(s.out, "Transaction rolled back")
}

// view runs fn in the open transaction or in a new read transaction.
func (s *Session) view(ctx context.Context, fn func(tx *server.Tx) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	return s.db.View(ctx, fn)
}

func (s *Session) tables(ctx context.Context) {
	tw := NewTableWriter()
	tw.AppendHeader(table.Row{"Table", "Keys"})
	err := s.view(ctx, func(tx *server.Tx) error {
		names, err := tx.Trees()
		if err != nil {
			return err
		}
		for _, name := range names {
			n, err := tx.Count(name)
			if err != nil {
				return err
			}
			tw.AppendRow(table.Row{name, humanize.Comma(int64(n))})
		}
		return nil
	})
	if err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintln(s.out, tw.Render())
}

func (s *Session) count(ctx context.Context, args []string) {
	if len(args) != 1 {
		s.fail(dberr.InvalidArgf("usage: .count <table>"))
		return
	}
	var n int
	err := s.view(ctx, func(tx *server.Tx) error {
		var err error
		n, err = tx.Count(args[0])
		return err
	})
	if err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "%s keys in %s\n", humanize.Comma(int64(n)), args[0])
}

func (s *Session) checkpoint(ctx context.Context) {
	result, err := s.db.Checkpoint(ctx)
	if err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "Checkpointed %d pages from %d frames\n", len(result.Pages), result.Frames)
	if result.Reset {
		DimmedColor().Fprintln(s.out, "The log was reset")
	}
}

func (s *Session) stats() {
	st, err := s.db.Stats()
	if err != nil {
		s.fail(err)
		return
	}
	tw := NewTableWriter()
	tw.AppendHeader(table.Row{"Stat", "Value"})
	tw.AppendRows([]table.Row{
		{"Page size", humanize.IBytes(uint64(st.PageSize))},
		{"Pages", humanize.Comma(int64(st.PageCount))},
		{"Free pages", humanize.Comma(int64(st.FreePages))},
		{"Tables", len(st.Trees)},
		{"Log state", st.WALState},
		{"Log frames", humanize.Comma(int64(st.WALFrames))},
		{"Log size", humanize.IBytes(uint64(st.WALSize))},
		{"Last committed", st.LastCommitted},
		{"Backfilled", st.Backfilled},
		{"Open snapshots", st.OpenSnapshots},
		{"Cached pages", st.CachedPages},
		{"Writer active", st.WriterActive},
	})
	fmt.Fprintln(s.out, tw.Render())
	DimmedColor().Fprintf(s.out, "%s\n", s.db.Path)
}

// printable quotes keys and values that are not plain text.
func printable(b []byte) string {
	s := string(b)
	if strconv.CanBackquote(s) {
		return s
	}
	return strconv.Quote(s)
}
