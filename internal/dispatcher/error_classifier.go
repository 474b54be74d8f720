package dispatcher

import (
	"context"
	"errors"
	"strings"

	"github.com/local/pdfmend/internal/repair"
)

// isTransientError reports whether the job failure may succeed on retry.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if isFatalError(err) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var transferErr *TransferError
	if errors.As(err, &transferErr) {
		return true
	}

	var writeErr *repair.WriteError
	if errors.As(err, &writeErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "eof") {
		return true
	}

	return false
}

// isFatalError reports whether the job can never succeed and must go to the DLQ.
func isFatalError(err error) bool {
	if err == nil {
		return false
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return true
	}

	// A document that cannot be opened stays broken between attempts.
	var loadErr *repair.LoadError
	if errors.As(err, &loadErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "not a pdf") ||
		strings.Contains(errStr, "invalid request") ||
		strings.Contains(errStr, "malformed")
}
