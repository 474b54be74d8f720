package dispatcher

import "fmt"

// TransferError represents a failure to materialize the source document from
// its reference (HTTP download, S3 fetch, local read).
type TransferError struct {
	Ref    string
	Reason string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed for %s: %s", e.Ref, e.Reason)
}

// ValidationError represents a fatal problem with the job input itself.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}
