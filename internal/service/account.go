package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/retailbank/accountsvc/internal/domain"
	"github.com/retailbank/accountsvc/internal/events"
	"github.com/retailbank/accountsvc/internal/store"
)

// numberGenRetries bounds how many fresh account numbers OpenAccount
// tries when the store reports a collision.
const numberGenRetries = 5

// AccountService owns account lifecycle and single-account balance
// mutation: open, read, update, delete, add-money and update-balance.
type AccountService struct {
	store     store.LedgerStore
	publisher events.Publisher
}

func NewAccountService(s store.LedgerStore, p events.Publisher) *AccountService {
	return &AccountService{store: s, publisher: p}
}

// OpenAccount creates an account with a generated "CA"/"SB" number and
// status Active. Uniqueness is enforced by the store; on collision a
// fresh number is generated and the insert retried.
func (s *AccountService) OpenAccount(ctx context.Context, req domain.OpenAccountRequest) (*domain.Account, error) {
	if req.Balance.IsNegative() {
		return nil, domain.ErrNegativeBalance
	}

	now := time.Now().UTC()
	dateOpened := req.DateOpened
	if dateOpened.IsZero() {
		dateOpened = now
	}

	account := &domain.Account{
		CustomerID:             req.CustomerID,
		AccountType:            req.AccountType,
		Category:               req.Category,
		JointAccountHolderName: req.JointAccountHolderName,
		Status:                 "Active",
		DateOpened:             dateOpened,
		InterestRate:           req.InterestRate,
		Balance:                req.Balance,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	for attempt := 0; attempt < numberGenRetries; attempt++ {
		number, err := domain.GenerateAccountNumber(req.AccountType)
		if err != nil {
			return nil, err
		}
		account.AccountNumber = number

		err = s.store.InsertAccount(ctx, account)
		if err == nil {
			return account, nil
		}
		if err != domain.ErrAccountNumberTaken {
			return nil, err
		}
	}
	return nil, fmt.Errorf("could not allocate a unique account number after %d attempts: %w",
		numberGenRetries, domain.ErrAccountNumberTaken)
}

func (s *AccountService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return s.store.GetAccountByID(ctx, id)
}

func (s *AccountService) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return s.store.GetAccountByNumber(ctx, number)
}

func (s *AccountService) ListAccountsByCustomer(ctx context.Context, customerID int64) ([]domain.Account, error) {
	accounts, err := s.store.ListAccountsByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts for customer %d: %w", customerID, domain.ErrAccountNotFound)
	}
	return accounts, nil
}

// UpdateAccount overwrites the account's mutable fields. CreatedAt is
// preserved from the stored row.
func (s *AccountService) UpdateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	existing, err := s.store.GetAccountByID(ctx, account.AccountID)
	if err != nil {
		return nil, err
	}

	account.CreatedAt = existing.CreatedAt
	account.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AccountService) DeleteAccount(ctx context.Context, id int64) error {
	if _, err := s.store.GetAccountByID(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteAccount(ctx, id)
}

// AddMoney credits amount to the account and appends a Credit
// transaction. The whole mutation is one atomic unit.
func (s *AccountService) AddMoney(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	var account *domain.Account
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.LedgerStore) error {
		var err error
		account, err = tx.LockAccountByNumber(ctx, accountNumber)
		if err != nil {
			return err
		}

		account.Balance = account.Balance.Add(amount)
		account.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateAccount(ctx, account); err != nil {
			return err
		}

		return tx.InsertTransaction(ctx, &domain.Transaction{
			AccountID:       account.AccountID,
			Amount:          amount,
			TransactionDate: time.Now().UTC(),
			TransactionType: domain.TransactionCredit,
			Description:     "Money added to account",
			Reference:       uuid.NewString(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.LedgerEvent{
		EventID:            uuid.NewString(),
		Kind:               domain.EventMoneyAdded,
		DestinationAccount: accountNumber,
		Amount:             amount,
		OccurredAt:         time.Now().UTC(),
	})
	return account, nil
}

// SetBalance replaces the balance outright. No transaction record is
// written; negative targets are rejected.
func (s *AccountService) SetBalance(ctx context.Context, accountNumber string, newBalance decimal.Decimal) (*domain.Account, error) {
	if newBalance.IsNegative() {
		return nil, domain.ErrNegativeBalance
	}

	var account *domain.Account
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.LedgerStore) error {
		var err error
		account, err = tx.LockAccountByNumber(ctx, accountNumber)
		if err != nil {
			return err
		}
		account.Balance = newBalance
		account.UpdatedAt = time.Now().UTC()
		return tx.UpdateAccount(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Transactions returns the account's ledger entries most-recent-first,
// with the account number attached.
func (s *AccountService) Transactions(ctx context.Context, accountID int64) ([]domain.TransactionView, error) {
	account, err := s.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	transactions, err := s.store.ListTransactionsByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	views := make([]domain.TransactionView, 0, len(transactions))
	for _, t := range transactions {
		views = append(views, domain.TransactionView{
			TransactionID:   t.TransactionID,
			Amount:          t.Amount,
			TransactionDate: t.TransactionDate,
			TransactionType: t.TransactionType,
			Description:     t.Description,
			Reference:       t.Reference,
			RequestID:       t.RequestID,
			AccountNumber:   account.AccountNumber,
		})
	}
	return views, nil
}

func (s *AccountService) publish(ctx context.Context, ev domain.LedgerEvent) {
	if err := s.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		log.Printf("warning: failed to publish ledger event %s: %v", ev.Kind, err)
	}
}
