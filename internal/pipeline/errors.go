package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoOutput is returned when the compiler emitted nothing for a pair.
var ErrNoOutput = errors.New("compiler produced no output")

// PairError is the failure of one (entry point, format) pair.
type PairError struct {
	Input  string
	Format string
	Phase  Phase
	Err    error
}

func (e *PairError) Error() string {
	return fmt.Sprintf("%s (%s): %s: %v", e.Input, e.Format, e.Phase, e.Err)
}

func (e *PairError) Unwrap() error {
	return e.Err
}
