package workouts

import (
	"errors"
	"fmt"
)

var (
	ErrProfileNotFound = errors.New("user not found")
	ErrFutureDate      = errors.New("cannot log workouts for future dates")
	ErrNoGoal          = errors.New("goal not set for this activity")
	ErrDuplicateEntry  = errors.New("an entry for this activity already exists on this date")
)

// ErrNoGoals is returned when the user has no profile, thus no goals at all.
// It matches ErrNoGoal with errors.Is.
var ErrNoGoals error = noGoalsError{}

type noGoalsError struct{}

func (noGoalsError) Error() string {
	return "no goals set for this user"
}

func (noGoalsError) Is(target error) bool {
	return target == ErrNoGoal
}

// ValidationError reports malformed user input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
