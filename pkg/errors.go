package pkg

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of a backup run
type ErrorKind string

const (
	KindDumpFailed             ErrorKind = "DumpFailed"
	KindCompressionFailed      ErrorKind = "CompressionFailed"
	KindSegmentationFailed     ErrorKind = "SegmentationFailed"
	KindChecksumFailed         ErrorKind = "ChecksumFailed"
	KindManifestFailed         ErrorKind = "ManifestFailed"
	KindUploadTransient        ErrorKind = "UploadTransient"
	KindUploadExhausted        ErrorKind = "UploadExhausted"
	KindRollbackPartialFailure ErrorKind = "RollbackPartialFailure"
	KindWorkspaceFailed        ErrorKind = "WorkspaceFailed"
	KindVerificationFailed     ErrorKind = "VerificationFailed"
	KindConfigInvalid          ErrorKind = "ConfigInvalid"
)

// BackupError is the error type returned by every step of the backup pipeline
type BackupError struct {
	Kind     ErrorKind
	Message  string
	Filename string
	Cause    error
}

func (e *BackupError) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Filename != "" {
		msg += fmt.Sprintf(" (file: %s)", e.Filename)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *BackupError) Unwrap() error {
	return e.Cause
}

// NewError creates a BackupError
func NewError(kind ErrorKind, message string, cause error) *BackupError {
	return &BackupError{Kind: kind, Message: message, Cause: cause}
}

// NewFileError creates a BackupError tied to a single file
func NewFileError(kind ErrorKind, filename string, message string, cause error) *BackupError {
	return &BackupError{Kind: kind, Message: message, Filename: filename, Cause: cause}
}

// IsKind reports whether any BackupError in err's chain has the given kind
func IsKind(err error, kind ErrorKind) bool {
	var backupErr *BackupError
	for err != nil {
		if !errors.As(err, &backupErr) {
			return false
		}
		if backupErr.Kind == kind {
			return true
		}
		err = backupErr.Cause
	}
	return false
}
