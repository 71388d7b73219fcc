package split

import "errors"

var (
	// ErrSplitIO is returned when a part cannot be written.
	ErrSplitIO = errors.New("cannot write split part")

	// ErrBudget is returned for a non-positive byte budget.
	ErrBudget = errors.New("split budget must be positive")
)
