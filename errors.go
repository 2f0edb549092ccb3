package guardcache

import (
	"errors"
	"fmt"
)

// ErrWaitTimeout is returned when a flag was still held after MaxWait.
var ErrWaitTimeout = errors.New("guardcache: timed out waiting for in-progress write")

// BackendError wraps an infrastructural failure of the flag store or provider.
// It is never returned for an ordinary lock conflict.
type BackendError struct {
	Op  string // "exists", "create", "get", "set", "del"
	Key string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("guardcache: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// PutError reports a failed guarded write. WriteErr is the provider failure,
// ReleaseErr the failure to remove the flag afterwards; either may be nil.
type PutError struct {
	Key        string
	WriteErr   error
	ReleaseErr error
}

func (e *PutError) Error() string {
	switch {
	case e.WriteErr != nil && e.ReleaseErr != nil:
		return fmt.Sprintf("put %q failed: write and flag release failed: write=%v; release=%v",
			e.Key, e.WriteErr, e.ReleaseErr)
	case e.WriteErr != nil:
		return fmt.Sprintf("put %q: write failed: %v", e.Key, e.WriteErr)
	case e.ReleaseErr != nil:
		return fmt.Sprintf("put %q: flag release failed: %v", e.Key, e.ReleaseErr)
	default:
		return fmt.Sprintf("put %q: unknown error", e.Key)
	}
}

func (e *PutError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.WriteErr != nil {
		errs = append(errs, e.WriteErr)
	}
	if e.ReleaseErr != nil {
		errs = append(errs, e.ReleaseErr)
	}
	return errs
}

// PanicError is returned by Remember and RememberForever when the producer
// panicked. The flag has been released and nothing was cached.
type PanicError struct {
	Key   string
	Value any    // value passed to panic
	Stack []byte // stack of the panicking goroutine
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("guardcache: producer for %q panicked: %v", e.Key, e.Value)
}
