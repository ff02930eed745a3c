package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes
const (
	ExitSuccess  = 0
	ExitNotReady = 1 // the evaluation ran and the model fell short
	ExitError    = 2
)

// NotReadyError reports a completed evaluation whose verdict is negative
type NotReadyError struct {
	Message string
}

func (e *NotReadyError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var notReady *NotReadyError
		if errors.As(err, &notReady) {
			os.Exit(ExitNotReady)
		}
		os.Exit(ExitError)
	}
}
