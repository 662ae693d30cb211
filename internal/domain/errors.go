package domain

import "errors"

var (
	// ErrInvalidPrice is returned for non-positive or non-finite prices.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrStreamClosed is returned by Recv after the stream was closed.
	ErrStreamClosed = errors.New("stream closed")

	// ErrMissingCredentials means the API key or secret is empty.
	ErrMissingCredentials = errors.New("missing API credentials")
)
