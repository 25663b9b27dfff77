package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/retailbank/accountsvc/internal/domain"
)

const pgUniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every query
// method works inside and outside Atomic.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the pgx-backed LedgerStore.
type Postgres struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// NewPostgres connects to the database and verifies the connection.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) q() querier {
	if p.tx != nil {
		return p.tx
	}
	return p.pool
}

// InitSchema creates the ledger tables if they do not exist.
func (p *Postgres) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		account_id BIGSERIAL PRIMARY KEY,
		customer_id BIGINT NOT NULL,
		account_type TEXT NOT NULL,
		account_number TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL DEFAULT '',
		joint_account_holder_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'Active',
		date_opened TIMESTAMPTZ NOT NULL,
		interest_rate DOUBLE PRECISION,
		balance NUMERIC(20,2) DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS transactions (
		transaction_id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(account_id) ON DELETE CASCADE,
		amount NUMERIC(20,2) NOT NULL,
		transaction_date TIMESTAMPTZ NOT NULL,
		transaction_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL,
		request_id BIGINT
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_account
		ON transactions (account_id, transaction_date DESC);
	CREATE TABLE IF NOT EXISTS money_requests (
		money_request_id BIGSERIAL PRIMARY KEY,
		from_account_number TEXT NOT NULL,
		to_account_number TEXT NOT NULL,
		amount NUMERIC(20,2) NOT NULL,
		request_date TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_money_requests_to
		ON money_requests (to_account_number) WHERE status = 'Pending';
	CREATE TABLE IF NOT EXISTS idempotency_keys (
		key TEXT PRIMARY KEY,
		request_hash TEXT NOT NULL,
		status TEXT NOT NULL,
		response_status INT,
		response_body JSONB
	);`

	if _, err := p.q().Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Atomic runs fn inside a repeatable-read transaction. The callback's
// store view routes every query through the transaction.
func (p *Postgres) Atomic(ctx context.Context, fn func(ctx context.Context, s LedgerStore) error) error {
	if p.tx != nil {
		return fn(ctx, p)
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &Postgres{pool: p.pool, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

const accountColumns = `account_id, customer_id, account_type, account_number,
	category, joint_account_holder_name, status, date_opened, interest_rate,
	COALESCE(balance, 0)::text, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var balance string
	err := row.Scan(
		&a.AccountID, &a.CustomerID, &a.AccountType, &a.AccountNumber,
		&a.Category, &a.JointAccountHolderName, &a.Status, &a.DateOpened,
		&a.InterestRate, &balance, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	a.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("bad balance value %q: %w", balance, err)
	}
	return &a, nil
}

func (p *Postgres) GetAccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	row := p.q().QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE account_id = $1", id)
	return scanAccount(row)
}

func (p *Postgres) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	row := p.q().QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE account_number = $1", number)
	return scanAccount(row)
}

func (p *Postgres) LockAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts WHERE account_number = $1"
	if p.tx != nil {
		query += " FOR UPDATE"
	}
	return scanAccount(p.q().QueryRow(ctx, query, number))
}

func (p *Postgres) ListAccountsByCustomer(ctx context.Context, customerID int64) ([]domain.Account, error) {
	rows, err := p.q().Query(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE customer_id = $1 ORDER BY account_id",
		customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertAccount(ctx context.Context, a *domain.Account) error {
	err := p.q().QueryRow(ctx, `
		INSERT INTO accounts (customer_id, account_type, account_number, category,
			joint_account_holder_name, status, date_opened, interest_rate,
			balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING account_id`,
		a.CustomerID, a.AccountType, a.AccountNumber, a.Category,
		a.JointAccountHolderName, a.Status, a.DateOpened, a.InterestRate,
		a.Balance.String(), a.CreatedAt, a.UpdatedAt,
	).Scan(&a.AccountID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrAccountNumberTaken
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateAccount(ctx context.Context, a *domain.Account) error {
	tag, err := p.q().Exec(ctx, `
		UPDATE accounts
		SET customer_id = $2, account_type = $3, account_number = $4,
			category = $5, joint_account_holder_name = $6, status = $7,
			date_opened = $8, interest_rate = $9, balance = $10, updated_at = $11
		WHERE account_id = $1`,
		a.AccountID, a.CustomerID, a.AccountType, a.AccountNumber,
		a.Category, a.JointAccountHolderName, a.Status,
		a.DateOpened, a.InterestRate, a.Balance.String(), a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (p *Postgres) DeleteAccount(ctx context.Context, id int64) error {
	tag, err := p.q().Exec(ctx, "DELETE FROM accounts WHERE account_id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (p *Postgres) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	err := p.q().QueryRow(ctx, `
		INSERT INTO transactions (account_id, amount, transaction_date,
			transaction_type, description, reference, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING transaction_id`,
		t.AccountID, t.Amount.String(), t.TransactionDate,
		t.TransactionType, t.Description, t.Reference, t.RequestID,
	).Scan(&t.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateTransaction(ctx context.Context, t *domain.Transaction) error {
	tag, err := p.q().Exec(ctx, `
		UPDATE transactions
		SET transaction_type = $2, description = $3, request_id = $4
		WHERE transaction_id = $1`,
		t.TransactionID, t.TransactionType, t.Description, t.RequestID)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d not found", t.TransactionID)
	}
	return nil
}

func (p *Postgres) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	rows, err := p.q().Query(ctx, `
		SELECT transaction_id, account_id, amount::text, transaction_date,
			transaction_type, description, reference, request_id
		FROM transactions
		WHERE account_id = $1
		ORDER BY transaction_date DESC, transaction_id DESC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var amount string
		if err := rows.Scan(&t.TransactionID, &t.AccountID, &amount,
			&t.TransactionDate, &t.TransactionType, &t.Description,
			&t.Reference, &t.RequestID); err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("bad amount value %q: %w", amount, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertMoneyRequest(ctx context.Context, r *domain.MoneyRequest) error {
	err := p.q().QueryRow(ctx, `
		INSERT INTO money_requests (from_account_number, to_account_number,
			amount, request_date, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING money_request_id`,
		r.FromAccountNumber, r.ToAccountNumber, r.Amount.String(),
		r.RequestDate, string(r.Status),
	).Scan(&r.MoneyRequestID)
	if err != nil {
		return fmt.Errorf("failed to insert money request: %w", err)
	}
	return nil
}

func scanMoneyRequest(row pgx.Row) (*domain.MoneyRequest, error) {
	var r domain.MoneyRequest
	var amount, status string
	err := row.Scan(&r.MoneyRequestID, &r.FromAccountNumber, &r.ToAccountNumber,
		&amount, &r.RequestDate, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad amount value %q: %w", amount, err)
	}
	r.Status = domain.RequestStatus(status)
	return &r, nil
}

func (p *Postgres) GetMoneyRequestByID(ctx context.Context, id int64) (*domain.MoneyRequest, error) {
	row := p.q().QueryRow(ctx, `
		SELECT money_request_id, from_account_number, to_account_number,
			amount::text, request_date, status
		FROM money_requests WHERE money_request_id = $1`, id)
	return scanMoneyRequest(row)
}

func (p *Postgres) ListPendingRequestsForNumbers(ctx context.Context, numbers []string) ([]domain.MoneyRequest, error) {
	rows, err := p.q().Query(ctx, `
		SELECT money_request_id, from_account_number, to_account_number,
			amount::text, request_date, status
		FROM money_requests
		WHERE status = 'Pending' AND to_account_number = ANY($1)
		ORDER BY money_request_id`, numbers)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	var out []domain.MoneyRequest
	for rows.Next() {
		r, err := scanMoneyRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (p *Postgres) LatestPendingRequest(ctx context.Context, fromNumber, toNumber string) (*domain.MoneyRequest, error) {
	row := p.q().QueryRow(ctx, `
		SELECT money_request_id, from_account_number, to_account_number,
			amount::text, request_date, status
		FROM money_requests
		WHERE status = 'Pending' AND from_account_number = $1 AND to_account_number = $2
		ORDER BY money_request_id DESC
		LIMIT 1`, fromNumber, toNumber)
	r, err := scanMoneyRequest(row)
	if errors.Is(err, domain.ErrRequestNotFound) {
		return nil, nil
	}
	return r, err
}

func (p *Postgres) UpdateMoneyRequest(ctx context.Context, r *domain.MoneyRequest) error {
	tag, err := p.q().Exec(ctx, `
		UPDATE money_requests
		SET status = $2
		WHERE money_request_id = $1`,
		r.MoneyRequestID, string(r.Status))
	if err != nil {
		return fmt.Errorf("failed to update money request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

func (p *Postgres) GetIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	var responseStatus *int
	err := p.q().QueryRow(ctx,
		"SELECT key, request_hash, status, response_status, response_body FROM idempotency_keys WHERE key = $1",
		key,
	).Scan(&rec.Key, &rec.RequestHash, &rec.Status, &responseStatus, &rec.ResponseBody)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("idempotency query failed: %w", err)
	}
	if responseStatus != nil {
		rec.ResponseStatus = *responseStatus
	}
	return &rec, nil
}

func (p *Postgres) ReserveIdempotencyKey(ctx context.Context, key, requestHash string) error {
	_, err := p.q().Exec(ctx,
		"INSERT INTO idempotency_keys (key, request_hash, status) VALUES ($1, $2, $3)",
		key, requestHash, domain.IdempotencyInProgress)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrIdempotencyConflict
		}
		return fmt.Errorf("key reservation failed: %w", err)
	}
	return nil
}

func (p *Postgres) CompleteIdempotencyKey(ctx context.Context, key string, responseStatus int, responseBody []byte) error {
	_, err := p.q().Exec(ctx,
		"UPDATE idempotency_keys SET status = $2, response_status = $3, response_body = $4 WHERE key = $1",
		key, domain.IdempotencyCompleted, responseStatus, responseBody)
	if err != nil {
		return fmt.Errorf("idempotency update failed: %w", err)
	}
	return nil
}
