package records

import errors "github.com/Laisky/errors/v2"

var (
	// ErrInvalidIntent indicates an intent that cannot be resolved into a fetch plan,
	// such as a blank search term or a blank parent path.
	ErrInvalidIntent = errors.New("invalid records intent")
	// ErrNilFetcher is returned when a service is constructed without a record fetcher.
	ErrNilFetcher = errors.New("record fetcher is required")
	// ErrInvalidTableName indicates the configured table name is not a plain identifier.
	ErrInvalidTableName = errors.New("invalid table name")
)
