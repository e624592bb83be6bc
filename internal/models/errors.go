package models

import "errors"

// Error kinds surfaced across the engine. Callers classify with errors.Is;
// wrapping sites add context with fmt.Errorf and %w.
var (
	// ErrInsufficientData means fewer than 23h of PWS samples, an incomplete
	// yesterday bucket, or both composition sources empty.
	ErrInsufficientData = errors.New("insufficient weather data")

	// ErrMissingField means a required field was absent from an upstream
	// forecast response.
	ErrMissingField = errors.New("missing field in upstream response")

	// ErrUpstreamTransient means a network or HTTP failure from a forecast
	// upstream; recoverable at the next cache miss.
	ErrUpstreamTransient = errors.New("transient upstream failure")

	// ErrInvalidProvider means the requested forecast-provider tag has no
	// registered adapter.
	ErrInvalidProvider = errors.New("unknown forecast provider")

	// ErrConfiguration means the persistence directory is inaccessible or
	// another startup-time setting is unusable.
	ErrConfiguration = errors.New("configuration error")
)
