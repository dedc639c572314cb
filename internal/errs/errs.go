package errs

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Kind classifies a failure for callers that need to decide policy,
// for example treating a codec failure on retrieve as an empty cache.
type Kind int

const (
	KindUnknown Kind = iota
	// KindMediumAccess: the file or database could not be read, written or removed.
	KindMediumAccess
	// KindCodec: a stored record could not be decoded, or a snapshot could not be encoded.
	KindCodec
	// KindConstruction: the store could not be opened or its schema failed to load.
	KindConstruction
	// KindInvalid: the caller passed something the store refuses to persist.
	KindInvalid
	// KindClosed: the store was closed before the operation was submitted.
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindMediumAccess:
		return "medium_access"
	case KindCodec:
		return "codec"
	case KindConstruction:
		return "construction"
	case KindInvalid:
		return "invalid"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var ErrClosed = Mark(errors.New("store is closed"), KindClosed)

// KindError attaches a Kind to an error without changing its message.
type KindError struct {
	kind Kind
	err  error
}

func (e *KindError) Error() string { return e.err.Error() }
func (e *KindError) Unwrap() error { return e.err }
func (e *KindError) Kind() Kind    { return e.kind }

// Mark tags err with kind. The outermost mark wins when an error is marked twice.
func Mark(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &KindError{kind: kind, err: err}
}

// KindOf returns the outermost Kind found in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Wrap adds context and preserves the error chain (errors.Is/As works).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf adds formatted context and preserves the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	args = append(args, err)
	return fmt.Errorf(format+": %w", args...)
}

// WithStack captures a stack trace once, at the boundary where a panic or
// unexpected fault is turned into an error.
func WithStack(err error) error {
	if err == nil {
		return nil
	}

	var se *StackError
	if errors.As(err, &se) {
		return err
	}

	return &StackError{
		err:   err,
		stack: debug.Stack(),
	}
}

// StackError wraps an error and stores a stack trace.
type StackError struct {
	err   error
	stack []byte
}

func (e *StackError) Error() string { return e.err.Error() }
func (e *StackError) Unwrap() error { return e.err }
func (e *StackError) Stack() []byte { return e.stack }

// Loggable makes slog encode the error as structured fields.
// Usage: slog.Any("err", errs.Loggable(err))
func Loggable(err error) slog.LogValuer { return loggable{err: err} }

type loggable struct{ err error }

func (l loggable) LogValue() slog.Value {
	if l.err == nil {
		return slog.GroupValue()
	}

	attrs := []slog.Attr{
		slog.String("message", l.err.Error()),
		slog.String("kind", KindOf(l.err).String()),
		slog.Any("chain", ErrorChainStrings(l.err)),
	}

	var se *StackError
	if errors.As(l.err, &se) {
		attrs = append(attrs, slog.String("stack", string(se.Stack())))
	}

	return slog.GroupValue(attrs...)
}

// ErrorChainStrings returns the unwrap chain as strings (outer -> inner).
func ErrorChainStrings(err error) []string {
	if err == nil {
		return nil
	}

	out := make([]string, 0, 8)
	for e := err; e != nil; e = errors.Unwrap(e) {
		out = append(out, e.Error())
	}
	return out
}
