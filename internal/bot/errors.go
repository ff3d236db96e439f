package bot

import "fmt"

// ErrorKind distinguishes expected transient faults from truly unexpected
// ones. Transient faults are logged and the next cycle starts on schedule;
// unexpected faults add a recovery delay before the loop continues.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindUnexpected
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// CycleError is a failure of one poll cycle.
type CycleError struct {
	Kind ErrorKind
	Err  error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s cycle error: %v", e.Kind, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

func transientErr(err error) *CycleError {
	return &CycleError{Kind: KindTransient, Err: err}
}

func unexpectedErr(err error) *CycleError {
	return &CycleError{Kind: KindUnexpected, Err: err}
}
