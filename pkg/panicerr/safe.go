// Package panicerr converts panics in background goroutines into errors so
// that a misbehaving handler never takes the whole process down.
package panicerr

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc/panics"
)

// Safe wraps fn, catching any panic and returning it as an error.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

// SafeContext wraps a context-taking function the same way.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn(ctx)
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

// Go runs fn in a new goroutine, logging a recovered panic instead of
// crashing.
func Go(fn func()) {
	go func() {
		var catcher panics.Catcher
		catcher.Try(fn)
		if r := catcher.Recovered(); r != nil {
			slog.Error("recovered panic in background goroutine", "error", r.AsError())
		}
	}()
}
