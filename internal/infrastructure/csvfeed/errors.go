package csvfeed

import (
	"errors"
	"fmt"
)

// Common feed file errors
var (
	// ErrEmptyFile is returned when the feed file has no content
	ErrEmptyFile = errors.New("csvfeed: file is empty")

	// ErrInvalidEncoding is returned when the file is not valid UTF-8
	ErrInvalidEncoding = errors.New("csvfeed: invalid file encoding")

	// ErrMissingHeader is returned when the feed has no header row
	ErrMissingHeader = errors.New("csvfeed: missing header row")

	// ErrMissingColumns is returned when required feed columns are absent
	ErrMissingColumns = errors.New("csvfeed: missing required columns")
)

// RowError describes a problem confined to a single feed row. Row errors
// never abort the feed; the row is dropped and the error surfaces in batch
// diagnostics.
type RowError struct {
	Row     int
	Column  string
	Message string
}

// Error implements the error interface.
func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column %q: %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}
