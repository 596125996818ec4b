package domain

import "github.com/zeebo/errs"

// Unit outcomes that are not successes. Each class is checked with Has.
var (
	// ErrRawMissing means no candidate produced usable raw input.
	ErrRawMissing = errs.Class("raw data missing")
	// ErrAlreadyProcessed means every selected raw input was already consumed.
	ErrAlreadyProcessed = errs.Class("already processed")
	// ErrFrozen means a frozen product exists and reprocessing was not requested.
	ErrFrozen = errs.Class("frozen product exists")
	// ErrDerivedMissing means a product this kind depends on has not been published.
	ErrDerivedMissing = errs.Class("missing input")
	// ErrInputInsufficient means the converter rejected the inputs as insufficient.
	ErrInputInsufficient = errs.Class("insufficient input")
	// ErrConversion means the converter failed unexpectedly.
	ErrConversion = errs.Class("conversion fault")
	// ErrIntegrity means the metadata directory holds conflicting records.
	ErrIntegrity = errs.Class("metadata integrity")
	// ErrPublish means the product could not be stored or recorded.
	ErrPublish = errs.Class("publish")
	// ErrAlreadyFrozen means a file already carries a permanent identifier.
	ErrAlreadyFrozen = errs.Class("already frozen")
)

// Errors that abort more than one unit or describe missing objects.
var (
	// ErrDirectory means the metadata directory could not be queried.
	ErrDirectory = errs.Class("metadata directory")
	// ErrNotFound means a record or stored object does not exist.
	ErrNotFound = errs.Class("not found")
	// ErrConfig means the run was misconfigured.
	ErrConfig = errs.Class("config")
)

// Submission errors.
var (
	// ErrInvalidUpload means a submitted file or its metadata was rejected.
	ErrInvalidUpload = errs.Class("invalid upload")
	// ErrDuplicate means a file with the same checksum was already submitted.
	ErrDuplicate = errs.Class("duplicate")
)
