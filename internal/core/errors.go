package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors wrapped by FileError, usable with errors.Is.
var (
	ErrEmptyFile      = errors.New("csv file is empty")
	ErrMissingColumns = errors.New("csv header is missing required columns")
	ErrNoRows         = errors.New("csv file has no data rows")
	ErrNoValidRows    = errors.New("csv file has no valid rows")
	ErrMalformedCSV   = errors.New("csv file is malformed")
)

// FileErrorKind classifies a fatal parse failure.
type FileErrorKind int

const (
	FileErrorEmpty FileErrorKind = iota
	FileErrorMissingColumns
	FileErrorNoRows
	FileErrorNoValidRows
	FileErrorMalformed
)

func (k FileErrorKind) String() string {
	switch k {
	case FileErrorEmpty:
		return "empty"
	case FileErrorMissingColumns:
		return "missing_columns"
	case FileErrorNoRows:
		return "no_rows"
	case FileErrorNoValidRows:
		return "no_valid_rows"
	case FileErrorMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// RowError describes one row that was dropped during parsing.
type RowError struct {
	Row    int // 1-based line in the file, header is line 1
	Column string
	Value  string
	Reason string
}

func (e RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d: %s %q: %s", e.Row, e.Column, e.Value, e.Reason)
}

// FileError aborts a parse. No transactions accompany it.
type FileError struct {
	Kind      FileErrorKind
	Missing   []string   // set for FileErrorMissingColumns
	RowErrors []RowError // set for FileErrorNoValidRows
	Err       error      // underlying reader error for FileErrorMalformed
}

func (e *FileError) Error() string {
	switch e.Kind {
	case FileErrorMissingColumns:
		return fmt.Sprintf("%v: %s", ErrMissingColumns, strings.Join(e.Missing, ", "))
	case FileErrorNoValidRows:
		return fmt.Sprintf("%v (%d rows rejected)", ErrNoValidRows, len(e.RowErrors))
	case FileErrorMalformed:
		if e.Err != nil {
			return fmt.Sprintf("%v: %v", ErrMalformedCSV, e.Err)
		}
		return ErrMalformedCSV.Error()
	default:
		return e.sentinel().Error()
	}
}

// Unwrap exposes both the sentinel for the kind and the reader error, if any.
func (e *FileError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.sentinel(), e.Err}
	}
	return []error{e.sentinel()}
}

func (e *FileError) sentinel() error {
	switch e.Kind {
	case FileErrorEmpty:
		return ErrEmptyFile
	case FileErrorMissingColumns:
		return ErrMissingColumns
	case FileErrorNoRows:
		return ErrNoRows
	case FileErrorNoValidRows:
		return ErrNoValidRows
	default:
		return ErrMalformedCSV
	}
}

// UserMessage renders the error for display in place of the analytics view.
func (e *FileError) UserMessage() string {
	switch e.Kind {
	case FileErrorEmpty:
		return "The file is empty."
	case FileErrorMissingColumns:
		return "Missing required columns: " + strings.Join(e.Missing, ", ") + ". Expected format: Date, Description, Category, Amount."
	case FileErrorNoRows:
		return "The file contains a header but no transactions."
	case FileErrorNoValidRows:
		return fmt.Sprintf("None of the %d rows could be parsed.", len(e.RowErrors))
	default:
		return "The file could not be parsed as CSV."
	}
}
