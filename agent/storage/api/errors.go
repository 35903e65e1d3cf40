package api

import "errors"

// Wallet level errors. Callers should test them with errors.Is because the
// backends annotate them with context.
var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletAlreadyExists = errors.New("wallet already exists")
	ErrWalletAlreadyOpened = errors.New("wallet already opened")
	ErrWalletInUse         = errors.New("wallet in use")
	ErrInvalidHandle       = errors.New("invalid wallet handle")
	ErrInvalidCredentials  = errors.New("invalid wallet credentials")
	ErrUnknownBackend      = errors.New("unknown wallet backend")
)

// Record level errors.
var (
	ErrItemNotFound      = errors.New("item not found")
	ErrItemAlreadyExists = errors.New("item already exists")
	ErrItemExpired       = errors.New("item expired")
)

// ErrInvalidFilterAttribute is returned when a filter refers to an attribute
// the schema doesn't have.
var ErrInvalidFilterAttribute = errors.New("invalid filter attribute")

// Remote backend errors.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRemoteUnavailable    = errors.New("remote wallet unavailable")
)

// IsNotFound tells if err means that a record cannot be used: it doesn't
// exist or it has expired.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrItemExpired)
}
