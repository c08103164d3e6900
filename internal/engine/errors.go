// ABOUTME: Error taxonomy for signature store operations
// ABOUTME: StoreError carries a kind, the failed operation, and the underlying cause

package engine

import (
	"errors"
	"fmt"
	"log/slog"
)

// Kind classifies a StoreError.
type Kind int

const (
	// KindUnavailable means the store could not be opened or has been closed.
	KindUnavailable Kind = iota + 1
	// KindQueryFailed means a membership lookup failed.
	KindQueryFailed
	// KindRefreshFailed means a refresh was rejected or aborted; the store is unchanged.
	KindRefreshFailed
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindQueryFailed:
		return "query_failed"
	case KindRefreshFailed:
		return "refresh_failed"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrUnavailable   = &StoreError{Kind: KindUnavailable}
	ErrQueryFailed   = &StoreError{Kind: KindQueryFailed}
	ErrRefreshFailed = &StoreError{Kind: KindRefreshFailed}
)

// ErrRefreshInProgress is wrapped by the error returned when a second
// refresh starts while one is running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// ErrEmptyFeed is wrapped when a feed yields no valid digests.
var ErrEmptyFeed = errors.New("feed contained no valid digests")

// StoreError is returned by SignatureStore operations.
type StoreError struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("signature store %s", e.Kind)
	}
	if e.Op == "" {
		return fmt.Sprintf("signature store %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("signature store %s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a StoreError of the same kind.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// LogValue implements slog.LogValuer.
func (e *StoreError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", e.Kind.String()),
	}
	if e.Op != "" {
		attrs = append(attrs, slog.String("op", e.Op))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("cause", e.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}

func storeErr(kind Kind, op string, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Err: err}
}
