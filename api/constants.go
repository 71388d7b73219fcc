package api

import "time"

const (
	// FileCleanupDelay is the delay before removing single-file temp data
	// after a failed request.
	FileCleanupDelay = 2 * time.Second

	// DefaultFilePermissions for temp directory creation
	DefaultFilePermissions = 0755

	// MaxErrorMessageLength caps error messages returned to clients.
	MaxErrorMessageLength = 200

	// FormFileField is the multipart field carrying uploaded PDFs.
	FormFileField = "pdf"
)
