package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

type dotCmd struct {
	name         string
	autocomplete string
	help         string
	args         string
}

func cmdHelpCommands() []dotCmd {
	cmds := []dotCmd{
		{name: ".begin [read]", autocomplete: ".begin", help: "Start a transaction, a write transaction unless read is given", args: "read (optional)"},
		{name: ".count [table]", autocomplete: ".count", help: "Count the keys of a table", args: "table (required)"},

		{name: ".commit", autocomplete: ".commit", help: "Commit the open transaction"},
		{name: ".rollback", autocomplete: ".rollback", help: "Roll back the open transaction"},
		{name: ".checkpoint", autocomplete: ".checkpoint", help: "Copy committed log frames into the database file"},
		{name: ".tables", autocomplete: ".tables", help: "List all tables with their key counts"},
		{name: ".stats", autocomplete: ".stats", help: "Show page, log and cache statistics"},
		{name: ".help", autocomplete: ".help", help: "Show the help message"},
		{name: ".quit", autocomplete: ".quit", help: "Exit the application"},
		{name: ".exit", autocomplete: ".exit", help: "Exit the application"},
		{name: "CTRL+c", help: "Exit the application"},
	}

	sort.Slice(cmds, func(i, j int) bool {
		return cmds[i].name < cmds[j].name
	})

	return cmds
}

func statementHelp() []dotCmd {
	return []dotCmd{
		{name: "create <table>", help: "Create a table"},
		{name: "drop <table>", help: "Drop a table and free its pages"},
		{name: "get <table> <key>", help: "Read the value of a key"},
		{name: "put <table> <key> <value>", help: "Insert or replace a key"},
		{name: "insert <table> <key> <value>", help: "Insert a key that must not exist"},
		{name: "update <table> <key> <value>", help: "Replace the value of an existing key"},
		{name: "delete <table> <key>", help: "Remove a key"},
		{name: "scan <table> [low] [high] [limit]", help: "List keys in [low, high], - leaves a bound open"},
	}
}

func cmdHelp(out io.Writer) {
	fmt.Fprintln(out, "Statements:")
	tw := NewTableWriter()
	tw.AppendHeader(table.Row{"Statement", "Description"})
	for _, cmd := range statementHelp() {
		tw.AppendRow(table.Row{cmd.name, cmd.help})
	}
	fmt.Fprintln(out, tw.Render())

	fmt.Fprintln(out, "Available commands:")
	tw = NewTableWriter()
	tw.AppendHeader(table.Row{"Command", "Description", "Arguments"})
	for _, cmd := range cmdHelpCommands() {
		tw.AppendRow(table.Row{cmd.name, cmd.help, cmd.args})
	}
	fmt.Fprintln(out, tw.Render())
}

func cmdHelpCompleter(line string) []string {
	suggestions := []string{
		"create ",
		"drop ",
		"get ",
		"put ",
		"insert ",
		"update ",
		"delete ",
		"scan ",
	}

	for _, cmd := range cmdHelpCommands() {
		if cmd.autocomplete != "" {
			suggestions = append(suggestions, cmd.autocomplete)
		}
	}

	results := []string{}
	for _, suggestion := range suggestions {
		if strings.HasPrefix(strings.ToLower(suggestion), strings.ToLower(line)) {
			results = append(results, suggestion)
		}
	}

	return results
}
