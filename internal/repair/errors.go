package repair

import "fmt"

// LoadError means the source document could not be opened or parsed. It is
// fatal to the whole run; no partial output is produced.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load document %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// PageError means a specific page could not be materialized. Recoverable:
// the page contributes a placeholder entry and processing continues.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page+1, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// WriteError means the destination could not be written. Fatal to the write
// step only; in-memory results remain available to the caller.
type WriteError struct {
	Dest string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Dest, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
