package store

import (
	"context"

	"github.com/retailbank/accountsvc/internal/domain"
)

// LedgerStore is the single capability interface over the durable
// ledger: accounts, transactions, money requests and transfer
// idempotency records. It is implemented directly by Postgres and
// Memory; no operation enforces cross-entity constraints, callers
// pre-validate existence.
type LedgerStore interface {
	// Accounts.
	GetAccountByID(ctx context.Context, id int64) (*domain.Account, error)
	GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error)
	ListAccountsByCustomer(ctx context.Context, customerID int64) ([]domain.Account, error)
	// InsertAccount assigns AccountID and fails with
	// domain.ErrAccountNumberTaken if the number is already in use.
	InsertAccount(ctx context.Context, a *domain.Account) error
	UpdateAccount(ctx context.Context, a *domain.Account) error
	// DeleteAccount is unconditional; the account's transactions go
	// with it.
	DeleteAccount(ctx context.Context, id int64) error
	// LockAccountByNumber reads the account for update. Within Atomic it
	// holds a row lock until the unit commits; outside it degrades to a
	// plain read.
	LockAccountByNumber(ctx context.Context, number string) (*domain.Account, error)

	// Transactions.
	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	UpdateTransaction(ctx context.Context, t *domain.Transaction) error
	// ListTransactionsByAccount returns entries most-recent-first.
	ListTransactionsByAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error)

	// Money requests.
	InsertMoneyRequest(ctx context.Context, r *domain.MoneyRequest) error
	GetMoneyRequestByID(ctx context.Context, id int64) (*domain.MoneyRequest, error)
	// ListPendingRequestsForNumbers returns Pending requests whose
	// ToAccountNumber is one of numbers, i.e. requests awaiting payment
	// to those accounts.
	ListPendingRequestsForNumbers(ctx context.Context, numbers []string) ([]domain.MoneyRequest, error)
	// LatestPendingRequest returns the newest Pending request for the
	// exact payer/payee pair, or nil if there is none.
	LatestPendingRequest(ctx context.Context, fromNumber, toNumber string) (*domain.MoneyRequest, error)
	UpdateMoneyRequest(ctx context.Context, r *domain.MoneyRequest) error

	// Transfer idempotency.
	GetIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	// ReserveIdempotencyKey fails with domain.ErrIdempotencyConflict if
	// the key is already reserved.
	ReserveIdempotencyKey(ctx context.Context, key, requestHash string) error
	CompleteIdempotencyKey(ctx context.Context, key string, responseStatus int, responseBody []byte) error

	// Atomic runs fn against a store view whose operations form one
	// atomic unit: a database transaction in Postgres, a critical
	// section with snapshot rollback in Memory. An error from fn
	// undoes every mutation the unit made. Row locks taken via
	// LockAccountByNumber are held until the unit ends.
	Atomic(ctx context.Context, fn func(ctx context.Context, s LedgerStore) error) error
}
