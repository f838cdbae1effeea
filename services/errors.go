package services

import "errors"

var (
	// ErrNotFound indicates the named file does not exist in the namespace.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidFilename indicates a name that is empty, hidden or escapes its directory.
	ErrInvalidFilename = errors.New("invalid file name")

	// ErrReservedFile indicates an attempt to overwrite or delete the placeholder file.
	ErrReservedFile = errors.New("file name is reserved")

	// ErrUnknownNamespace indicates a namespace other than direct or webhook.
	ErrUnknownNamespace = errors.New("unknown namespace")

	// ErrUnsupportedContent indicates a file whose text cannot be extracted.
	ErrUnsupportedContent = errors.New("unsupported file content")

	// ErrInvalidURL indicates a webhook URL that is not absolute http(s).
	ErrInvalidURL = errors.New("invalid url")

	// ErrWebhookStatus indicates the remote server answered with a non-2xx status.
	ErrWebhookStatus = errors.New("unexpected webhook response status")

	// ErrTooLarge indicates a download exceeding the configured size limit.
	ErrTooLarge = errors.New("content exceeds size limit")

	// ErrEmptyQuery indicates a blank query string.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrEmptyText indicates a text upload with no content.
	ErrEmptyText = errors.New("text is empty")
)

// IsValidationError reports whether err stems from bad caller input rather
// than an IO or network failure.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidFilename,
		ErrReservedFile,
		ErrUnknownNamespace,
		ErrUnsupportedContent,
		ErrInvalidURL,
		ErrEmptyQuery,
		ErrEmptyText,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
