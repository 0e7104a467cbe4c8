package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Entitlement decisions
	ErrBlocked           = errors.New("temporarily blocked")
	ErrQuotaExhausted    = errors.New("quota exhausted")
	ErrInvalidAmount     = errors.New("amount must be at least 1")
	ErrUnknownActionKind = errors.New("unknown action kind")

	// Settlement
	ErrUnknownOrder        = errors.New("unknown order")
	ErrDuplicateSettlement = errors.New("order already settled")
	ErrUnknownPurchaseKind = errors.New("unknown purchase kind")

	// Referral
	ErrReferrerAlreadySet = errors.New("referrer already set")
	ErrSelfReferral       = errors.New("user cannot refer themselves")

	// Operator grants
	ErrNoActivePlan = errors.New("user has no active paid plan")

	// ErrTransientStore is returned when the entitlement store could not be
	// read or written; callers may retry.
	ErrTransientStore = errors.New("entitlement store unavailable")

	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)
