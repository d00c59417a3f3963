package media

import (
	"errors"
	"fmt"
)

// Kind classifies a failed operation.
type Kind int

const (
	KindInternal Kind = iota
	KindForbidden
	KindUploadError
	KindNotFound
	KindRejected
	KindMoveFailed
)

func (k Kind) String() string {
	switch k {
	case KindForbidden:
		return "forbidden"
	case KindUploadError:
		return "upload_error"
	case KindNotFound:
		return "not_found"
	case KindRejected:
		return "rejected"
	case KindMoveFailed:
		return "move_failed"
	default:
		return "internal_error"
	}
}

// ErrNotFound is returned by repositories when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Failure is the single structured error surfaced to callers.
// Reason is safe to show to a user; Err is for logs only.
type Failure struct {
	Kind   Kind
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Reason, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(kind Kind, reason string, err error) *Failure {
	return &Failure{Kind: kind, Reason: reason, Err: err}
}

func rejected(format string, args ...any) *Failure {
	return &Failure{Kind: KindRejected, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the failure kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindInternal
}
