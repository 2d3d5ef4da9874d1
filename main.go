package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess      = 0 // Normal exit
	ExitAnswerFailed = 1 // A one-shot question got no answer
	ExitError        = 2 // Configuration or runtime error
)

// AnswerFailedError reports a one-shot question the backend could not
// answer
type AnswerFailedError struct {
	Err error
}

func (e *AnswerFailedError) Error() string {
	return "no answer: " + e.Err.Error()
}

func (e *AnswerFailedError) Unwrap() error {
	return e.Err
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)

		var failed *AnswerFailedError
		if errors.As(err, &failed) {
			os.Exit(ExitAnswerFailed)
		}
		os.Exit(ExitError)
	}
}
