package position

// Result is the outcome of a contract call that may legitimately revert.
// A revert is an expected answer, not a fault; faults travel as errors.
type Result[T any] struct {
	value    T
	reverted bool
	reason   string
}

func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

func Reverted[T any](reason string) Result[T] {
	return Result[T]{reverted: true, reason: reason}
}

// Get returns the value and true, or the zero value and false after a revert.
func (r Result[T]) Get() (T, bool) {
	if r.reverted {
		var zero T
		return zero, false
	}
	return r.value, true
}

func (r Result[T]) IsReverted() bool {
	return r.reverted
}

// Reason is the revert reason, empty for Ok results.
func (r Result[T]) Reason() string {
	return r.reason
}
