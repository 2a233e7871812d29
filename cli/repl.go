package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

type Repl struct {
	ctx         context.Context
	stop        context.CancelFunc
	session     *Session
	line        *liner.State
	historyPath string
}

func NewRepl(ctx context.Context, stop context.CancelFunc, session *Session) *Repl {
	return &Repl{
		ctx:         ctx,
		stop:        stop,
		session:     session,
		historyPath: filepath.Join(os.TempDir(), ".kite_history"),
	}
}

// Start reads and runs input until the user quits or the context ends.
func (r *Repl) Start() error {
	r.line = liner.NewLiner()
	defer r.line.Close()
	r.line.SetCtrlCAborts(true)
	r.line.SetCompleter(cmdHelpCompleter)

	if file, err := os.Open(r.historyPath); err == nil {
		_, _ = r.line.ReadHistory(file)
		file.Close()
	}
	defer r.saveHistory()

	fmt.Println(`Enter ".help" for usage hints and ".quit" or "CTRL+C" to quit`)
	fmt.Println()

	for {
		select {
		case <-r.ctx.Done():
			return nil
		default:
		}

		input, err := r.line.Prompt(r.label())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				r.Shutdown()
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.line.AppendHistory(input)

		if !r.session.Handle(r.ctx, input) {
			r.Shutdown()
			return nil
		}
	}
}

// Shutdown stops the REPL.
func (r *Repl) Shutdown() {
	r.stop()
}

func (r *Repl) label() string {
	if r.session.InTx() {
		return fmt.Sprintf("kite(tx %d)> ", r.session.tx.ID())
	}
	return "kite> "
}

func (r *Repl) saveHistory() {
	if file, err := os.Create(r.historyPath); err == nil {
		_, _ = r.line.WriteHistory(file)
		file.Close()
	}
}
