// Package faults defines the error kinds shared by both sync pipelines.
// Callers classify with errors.Is and map kinds to HTTP status codes.
package faults

import "errors"

var (
	// ErrAuth covers a bad or missing webhook signature and a bad sync
	// service key. Terminal; never retried by this service.
	ErrAuth = errors.New("authentication failed")

	// ErrValidation covers missing required headers or body fields.
	ErrValidation = errors.New("validation failed")

	// ErrTenantNotFound means no connected store matches the shop domain.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrUpstream covers Shopify API failures. Safe to retry wholesale.
	ErrUpstream = errors.New("upstream source failure")

	// ErrPersistence covers store write failures. Safe to retry since
	// every write is an upsert.
	ErrPersistence = errors.New("persistence failure")
)
