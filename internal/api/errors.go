package api

import "errors"

var (
	// ErrReauthRequired indicates the account's refresh token no longer
	// works and the user must reconnect the account.
	ErrReauthRequired = errors.New("account requires re-authentication")

	// ErrNameConflict indicates the destination folder already contains a
	// node with the same name. The operation aborts before any mutation.
	ErrNameConflict = errors.New("a node with this name already exists in the destination folder")

	// ErrSourceNotDeleted indicates a move uploaded the destination copy but
	// failed to delete the source, so the file now exists in both accounts.
	ErrSourceNotDeleted = errors.New("destination copy written but source delete failed; file exists in both accounts")

	// ErrNotFound indicates the requested node does not exist.
	ErrNotFound = errors.New("node not found")
)
