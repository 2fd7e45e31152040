package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		report(os.Stderr, err)
		os.Exit(1)
	}
}

// loggedError marks a failure already written to the structured log.
type loggedError struct {
	err error
}

func (e *loggedError) Error() string { return e.err.Error() }

func (e *loggedError) Unwrap() error { return e.err }

// report prints err unless the logger has seen it.
func report(w io.Writer, err error) {
	var logged *loggedError
	if errors.As(err, &logged) {
		return
	}
	fmt.Fprintln(w, "harvest:", err)
}
