package job

import "errors"

// Result is the outcome of running a handler once. The zero value is a
// success.
type Result struct {
	err       error
	permanent bool
}

// Success reports a completed job.
func Success() Result { return Result{} }

// Retry reports a transient failure. The job is retried while it has
// attempts left.
func Retry(err error) Result {
	if err == nil {
		err = errors.New("unspecified failure")
	}
	return Result{err: err}
}

// Permanent reports a failure that no retry can fix. The job goes to dead
// without spending its remaining attempts.
func Permanent(err error) Result {
	if err == nil {
		err = errors.New("unspecified failure")
	}
	return Result{err: err, permanent: true}
}

// OK reports whether the handler succeeded.
func (r Result) OK() bool { return r.err == nil }

// Retryable reports whether a failed result may be retried.
func (r Result) Retryable() bool { return r.err != nil && !r.permanent }

// Err returns the failure, or nil on success.
func (r Result) Err() error { return r.err }

// Reason returns the failure text stored on the job.
func (r Result) Reason() string {
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

// PermanentError marks an error returned by a typed handler as
// non-retryable.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// MarkPermanent wraps err so that FromError classifies it as permanent.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// FromError converts a handler error into a Result. nil is success, a
// PermanentError anywhere in the chain is permanent, anything else is
// retryable.
func FromError(err error) Result {
	if err == nil {
		return Success()
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return Permanent(err)
	}
	return Retry(err)
}
