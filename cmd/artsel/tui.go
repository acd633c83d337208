package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/artsel/internal/session"
	"github.com/Sternrassler/artsel/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// errNoTerminal is returned by tui when stdout is redirected.
var errNoTerminal = errors.New("tui needs an interactive terminal; use 'artsel select' for scripted use")

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "tui",
		Short:       "Browse the artworks table and select rows interactively",
		Annotations: map[string]string{annotationOwnsScreen: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !isTerminal(os.Stdout) {
				return errNoTerminal
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			c, cleanup, err := a.newClient(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			return tui.Run(ctx, session.New(c, c.PageSize()))
		},
	}
}
