package ingest

import "fmt"

// ParseErrorKind classifies header-level failures.
type ParseErrorKind string

const (
	KindUnsupportedFormat ParseErrorKind = "unsupported_format"
	KindMissingColumn     ParseErrorKind = "missing_column"
	KindEmpty             ParseErrorKind = "empty"
	KindRead              ParseErrorKind = "read"
	KindProfile           ParseErrorKind = "profile"
)

// ParseError aborts a whole parse. The user has to fix the source file.
type ParseError struct {
	Kind   ParseErrorKind
	File   string
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s: %s", e.File, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// RowSkipped is a row-local failure. It is counted and reported, never fatal.
type RowSkipped struct {
	Line   int
	Field  string
	Reason string
}

func (e *RowSkipped) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d %s: %s", e.Line, e.Field, e.Reason)
}
