package fetcher

// Result represents the outcome of a fetch operation.
// A Result is in exactly one of three states:
//   - ok: Value holds the fetched data and Err is nil
//   - failed: Err holds a tagged error and Value is the zero value
//   - absent: neither a value nor an error (the call was skipped on purpose)
//
// Fetch boundaries return a Result instead of an error so that callers check
// presence rather than handle failures.
type Result[T any] struct {
	// Value is the fetched data. Only meaningful when Present is true.
	Value T

	// Err contains the tagged error when the fetch failed.
	Err *FetchError

	present bool
}

// Ok wraps a fetched value
func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value, present: true}
}

// Fail wraps an error, classifying it if it is not already a FetchError
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: Classify(err)}
}

// Absent returns a Result carrying neither a value nor an error
func Absent[T any]() Result[T] {
	return Result[T]{}
}

// From builds a Result from a conventional (value, error) pair
func From[T any](value T, err error) Result[T] {
	if err != nil {
		return Fail[T](err)
	}
	return Ok(value)
}

// Present reports whether the Result carries a value
func (r Result[T]) Present() bool {
	return r.present
}

// Failed reports whether the Result carries an error
func (r Result[T]) Failed() bool {
	return r.Err != nil
}

// Get returns the value and whether it is present
func (r Result[T]) Get() (T, bool) {
	return r.Value, r.present
}
