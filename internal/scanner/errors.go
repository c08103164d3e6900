// ABOUTME: Typed scan errors for conditions that abort a whole scan
// ABOUTME: Kinds match with errors.Is and render as readable strings for callers

package scanner

import (
	"log/slog"
)

// Kind classifies a ScanError.
type Kind int

const (
	// KindPathInvalid means the scan root does not exist.
	KindPathInvalid Kind = iota + 1
	// KindSizeUnavailable means the size pre-pass could not read metadata.
	KindSizeUnavailable
	// KindFolderSizeZero means the tree contains no bytes to scan.
	KindFolderSizeZero
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindPathInvalid:
		return "path_invalid"
	case KindSizeUnavailable:
		return "size_unavailable"
	case KindFolderSizeZero:
		return "folder_size_zero"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrPathInvalid     = &ScanError{Kind: KindPathInvalid}
	ErrSizeUnavailable = &ScanError{Kind: KindSizeUnavailable}
	ErrFolderSizeZero  = &ScanError{Kind: KindFolderSizeZero}
)

// ScanError is returned when a scan cannot produce a result.
type ScanError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	var msg string
	switch e.Kind {
	case KindPathInvalid:
		msg = "invalid path"
	case KindSizeUnavailable:
		msg = "can't get folder size"
	case KindFolderSizeZero:
		msg = "calculated folder size is 0"
	default:
		msg = "scan failed"
	}
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Is matches any ScanError of the same kind.
func (e *ScanError) Is(target error) bool {
	t, ok := target.(*ScanError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// LogValue implements slog.LogValuer.
func (e *ScanError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", e.Kind.String()),
		slog.String("path", e.Path),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}

func scanErr(kind Kind, path string, err error) *ScanError {
	return &ScanError{Kind: kind, Path: path, Err: err}
}
