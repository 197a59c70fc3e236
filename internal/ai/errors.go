package ai

import "errors"

// PermanentError wraps inference failures that can never succeed on retry,
// such as request validation rejections from the upstream.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent error: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err as permanent.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// Permanent reports whether err carries a PermanentError anywhere in its
// chain.
func Permanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
