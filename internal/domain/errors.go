package domain

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")

	ErrCustomerNotFound = errors.New("customer not found")

	// ErrCustomerUnavailable covers transport failures and malformed
	// responses from the Customer service.
	ErrCustomerUnavailable = errors.New("customer service unavailable")

	ErrRequestNotFound = errors.New("money request not found")

	// ErrRequestAlreadyProcessed is returned when accepting or rejecting
	// a request that is no longer Pending.
	ErrRequestAlreadyProcessed = errors.New("money request already processed")

	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrNegativeBalance is returned when update-balance targets a value
	// below zero.
	ErrNegativeBalance = errors.New("balance cannot be negative")

	ErrSameAccount = errors.New("source and destination must be different accounts")

	// ErrIDMismatch is returned when the id in the URL disagrees with the
	// id in the request body.
	ErrIDMismatch = errors.New("account id mismatch")

	// ErrInvalidAccountType is returned when an account number cannot be
	// generated for the requested type.
	ErrInvalidAccountType = errors.New("unknown account type")

	// ErrAccountNumberTaken signals a generated account number collided
	// with an existing one; the caller retries with a fresh number.
	ErrAccountNumberTaken = errors.New("account number already in use")

	// ErrIdempotencyConflict is returned while a transfer with the same
	// key is still in flight.
	ErrIdempotencyConflict = errors.New("request in progress")

	// ErrIdempotencyMismatch is returned when a key is reused with a
	// different payload.
	ErrIdempotencyMismatch = errors.New("idempotency key reuse with mismatched payload")
)
