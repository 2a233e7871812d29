package cli

import (
	"strconv"
	"strings"

	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/exec"
)

// openBound stands for a missing scan bound.
const openBound = "-"

// ParseStatement reads one statement of the form
//
//	get <table> <key>
//	put|insert|update <table> <key> <value...>
//	delete <table> <key>
//	scan <table> [low|-] [high|-] [limit]
//	create|drop <table>
//
// Keys are taken as written. A value is the rest of the line after the key.
func ParseStatement(line string) (exec.Statement, error) {
	fields, rest := splitFields(line, 3)
	if len(fields) == 0 {
		return exec.Statement{}, dberr.InvalidArgf("empty statement")
	}
	op, err := exec.ParseOp(strings.ToLower(fields[0]))
	if err != nil {
		return exec.Statement{}, err
	}
	stmt := exec.Statement{Op: op}
	if len(fields) < 2 {
		return stmt, dberr.InvalidArgf("%s: missing table name", op)
	}
	stmt.Table = fields[1]

	switch op {
	case exec.OpCreate, exec.OpDrop:
		if len(fields) > 2 {
			return stmt, dberr.InvalidArgf("%s takes only a table name", op)
		}
	case exec.OpGet, exec.OpDelete:
		if len(fields) != 3 || rest != "" {
			return stmt, dberr.InvalidArgf("usage: %s <table> <key>", op)
		}
		stmt.Key = []byte(fields[2])
	case exec.OpInsert, exec.OpPut, exec.OpUpdate:
		if len(fields) != 3 || rest == "" {
			return stmt, dberr.InvalidArgf("usage: %s <table> <key> <value>", op)
		}
		stmt.Key = []byte(fields[2])
		stmt.Value = []byte(rest)
	case exec.OpScan:
		return parseScan(stmt, append(fields[2:], strings.Fields(rest)...))
	}
	return stmt, nil
}

func parseScan(stmt exec.Statement, args []string) (exec.Statement, error) {
	if len(args) > 3 {
		return stmt, dberr.InvalidArgf("usage: scan <table> [low|-] [high|-] [limit]")
	}
	bound := func(s string) []byte {
		if s == openBound {
			return nil
		}
		return []byte(s)
	}
	if len(args) > 0 {
		stmt.Low = bound(args[0])
	}
	if len(args) > 1 {
		stmt.High = bound(args[1])
	}
	if len(args) > 2 {
		limit, err := strconv.Atoi(args[2])
		if err != nil || limit < 0 {
			return stmt, dberr.InvalidArgf("scan limit %q is not a non-negative number", args[2])
		}
		stmt.Limit = limit
	}
	return stmt, nil
}

// splitFields returns up to n whitespace separated fields of s and the
// remainder of the line after them with surrounding spaces trimmed.
func splitFields(s string, n int) ([]string, string) {
	var fields []string
	s = strings.TrimSpace(s)
	for len(fields) < n && s != "" {
		end := strings.IndexAny(s, " \t")
		if end < 0 {
			fields = append(fields, s)
			s = ""
			break
		}
		fields = append(fields, s[:end])
		s = strings.TrimSpace(s[end:])
	}
	return fields, s
}
