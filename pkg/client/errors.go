package client

import (
	"errors"

	"github.com/solarecho3/web-tools/pkg/pagination"
)

// Common errors returned by the client.
var (
	// ErrMissingToken is returned when a session is created without a bearer token.
	ErrMissingToken = errors.New("bearer token is required")

	// ErrMissingScheme is returned for a request target without http(s)
	// scheme. Session.Fetch recovers from it once by switching to https.
	ErrMissingScheme = errors.New("request target has no scheme")

	// ErrUsageCapExceeded is returned when the account-level quota is
	// exhausted. Callers should stop issuing requests.
	ErrUsageCapExceeded = pagination.ErrUsageCapExceeded

	// ErrEmptyUsername is returned for a profile lookup without a username.
	ErrEmptyUsername = errors.New("username is required")

	// ErrEmptyQuery is returned for a search without a query term.
	ErrEmptyQuery = errors.New("query term is required")
)

// APIError is an API error response that stops a collection.
type APIError = pagination.APIError
