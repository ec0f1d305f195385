package service

import "errors"

var (
	// ErrInvalidCode rejects instrument codes that cannot be sent upstream.
	ErrInvalidCode = errors.New("service: invalid instrument code")
	// ErrInvalidArgument covers every other malformed input (empty user, keyword, range).
	ErrInvalidArgument = errors.New("service: invalid argument")
	// ErrProviderUnavailable is recorded in Result.Err when a provider returned nothing.
	ErrProviderUnavailable = errors.New("service: provider returned no data")
)
