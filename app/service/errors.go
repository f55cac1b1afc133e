package service

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrProviderUnsupported = errors.New("provider is not supported")
	ErrCallbackRejected    = errors.New("callback rejected")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrNotConfigured       = errors.New("payment provider is not configured")
	ErrUpstream            = errors.New("payment provider request failed")
)
