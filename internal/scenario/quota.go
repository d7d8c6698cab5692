package scenario

import (
	"errors"
	"fmt"
)

// StepsExceededError reports a propagation that took more steps than the
// scenario's max_steps allows.
type StepsExceededError struct {
	Propagation string
	Steps       int
	Limit       int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("propagation %s: %d steps exceed max_steps %d", e.Propagation, e.Steps, e.Limit)
}

// IsStepsExceededError reports whether err is, or wraps, a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var e *StepsExceededError
	return errors.As(err, &e)
}

func checkQuota(propagation string, steps, limit int) error {
	if steps > limit {
		return &StepsExceededError{Propagation: propagation, Steps: steps, Limit: limit}
	}
	return nil
}
