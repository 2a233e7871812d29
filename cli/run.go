// Package cli is the interactive shell of kite.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/naveen246/kite/server"
)

// Run opens the database named by cfg and runs the shell until the user
// quits or the process is interrupted. With a script file, or with standard
// input that is not a terminal, it runs the script instead.
func Run(ctx context.Context, cfg Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := server.Open(cfg.Path, cfg.Options())
	if err != nil {
		return err
	}

	if cfg.File != "" || !isatty.IsTerminal(os.Stdin.Fd()) {
		return runScript(ctx, cfg, db)
	}

	fmt.Printf("kite %s\n", Version)

	session := NewSession(db, os.Stdout)
	rp := NewRepl(ctx, stop, session)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := rp.Start(); err != nil {
			fmt.Println(err)
			stop()
		}
	}()

	<-ctx.Done()
	select {
	case <-done:
		session.Close()
	default:
		// the prompt is still blocked reading the terminal
	}
	if err := db.Close(); err != nil {
		return err
	}
	fmt.Printf("\nGoodbye!\n\n")
	return nil
}

func runScript(ctx context.Context, cfg Config, db *server.DB) (err error) {
	defer func() {
		if closeErr := db.Close(); err == nil {
			err = closeErr
		}
	}()

	in := os.Stdin
	if cfg.File != "" {
		f, err := os.Open(cfg.File)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	session := NewSession(db, os.Stdout)
	defer session.Close()
	return RunScript(ctx, session, in)
}
