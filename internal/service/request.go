package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/retailbank/accountsvc/internal/domain"
	"github.com/retailbank/accountsvc/internal/events"
	"github.com/retailbank/accountsvc/internal/store"
)

// RequestService runs the money-request workflow. A request names the
// payer (FromAccountNumber) and the payee who raised it
// (ToAccountNumber); accepting it debits the payer and credits the
// payee. Pending is the only state a request can be resolved from.
type RequestService struct {
	store     store.LedgerStore
	publisher events.Publisher
}

func NewRequestService(s store.LedgerStore, p events.Publisher) *RequestService {
	return &RequestService{store: s, publisher: p}
}

// RequestMoney records a new Pending request after checking both
// accounts exist. The payer's balance is not checked at creation time;
// it only matters at acceptance.
func (s *RequestService) RequestMoney(ctx context.Context, req domain.RequestMoneyRequest) (*domain.MoneyRequest, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if req.FromAccountNumber == req.ToAccountNumber {
		return nil, domain.ErrSameAccount
	}

	if _, err := s.store.GetAccountByNumber(ctx, req.FromAccountNumber); err != nil {
		return nil, fmt.Errorf("from account %s: %w", req.FromAccountNumber, err)
	}
	if _, err := s.store.GetAccountByNumber(ctx, req.ToAccountNumber); err != nil {
		return nil, fmt.Errorf("to account %s: %w", req.ToAccountNumber, err)
	}

	request := &domain.MoneyRequest{
		FromAccountNumber: req.FromAccountNumber,
		ToAccountNumber:   req.ToAccountNumber,
		Amount:            req.Amount,
		RequestDate:       time.Now().UTC(),
		Status:            domain.RequestPending,
	}
	if err := s.store.InsertMoneyRequest(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

// PendingRequestsForCustomer lists Pending requests payable to any of
// the customer's accounts, i.e. requests this customer raised and is
// still waiting on.
func (s *RequestService) PendingRequestsForCustomer(ctx context.Context, customerID int64) ([]domain.MoneyRequest, error) {
	accounts, err := s.store.ListAccountsByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("customer %d has no accounts: %w", customerID, domain.ErrAccountNotFound)
	}

	numbers := make([]string, 0, len(accounts))
	for _, a := range accounts {
		numbers = append(numbers, a.AccountNumber)
	}

	requests, err := s.store.ListPendingRequestsForNumbers(ctx, numbers)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("no pending requests for customer %d: %w", customerID, domain.ErrRequestNotFound)
	}
	return requests, nil
}

// AcceptRequest settles a Pending request: the payer account is
// debited, the payee account credited, both legs recorded, and the
// request marked Completed. A request resolves exactly once; a second
// accept fails without touching balances.
func (s *RequestService) AcceptRequest(ctx context.Context, requestID int64) (*domain.MoneyRequest, error) {
	var request *domain.MoneyRequest

	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.LedgerStore) error {
		var err error
		request, err = tx.GetMoneyRequestByID(ctx, requestID)
		if err != nil {
			return err
		}
		if request.Status != domain.RequestPending {
			return domain.ErrRequestAlreadyProcessed
		}

		payer, payee, err := lockAccountPair(ctx, tx,
			request.FromAccountNumber, request.ToAccountNumber)
		if err != nil {
			return err
		}

		if payer.Balance.LessThan(request.Amount) {
			return domain.ErrInsufficientFunds
		}

		now := time.Now().UTC()
		payer.Balance = payer.Balance.Sub(request.Amount)
		payer.UpdatedAt = now
		payee.Balance = payee.Balance.Add(request.Amount)
		payee.UpdatedAt = now

		if err := tx.UpdateAccount(ctx, payer); err != nil {
			return err
		}
		if err := tx.UpdateAccount(ctx, payee); err != nil {
			return err
		}

		if err := tx.InsertTransaction(ctx, &domain.Transaction{
			AccountID:       payer.AccountID,
			Amount:          request.Amount.Neg(),
			TransactionDate: now,
			TransactionType: domain.TransactionDebit,
			Description:     fmt.Sprintf("Money request accepted. Paid to account %s.", payee.AccountNumber),
			Reference:       uuid.NewString(),
			RequestID:       &request.MoneyRequestID,
		}); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, &domain.Transaction{
			AccountID:       payee.AccountID,
			Amount:          request.Amount,
			TransactionDate: now,
			TransactionType: domain.TransactionCredit,
			Description:     fmt.Sprintf("Money request accepted. Received from account %s.", payer.AccountNumber),
			Reference:       uuid.NewString(),
			RequestID:       &request.MoneyRequestID,
		}); err != nil {
			return err
		}

		request.Status = domain.RequestCompleted
		return tx.UpdateMoneyRequest(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	if err := s.publisher.PublishLedgerEvent(ctx, domain.LedgerEvent{
		EventID:            uuid.NewString(),
		Kind:               domain.EventRequestAccepted,
		SourceAccount:      request.FromAccountNumber,
		DestinationAccount: request.ToAccountNumber,
		Amount:             request.Amount,
		OccurredAt:         time.Now().UTC(),
	}); err != nil {
		log.Printf("warning: failed to publish request-accepted event: %v", err)
	}

	return request, nil
}

// RejectRequest resolves a Pending request as Rejected. No balances or
// ledger entries change.
func (s *RequestService) RejectRequest(ctx context.Context, requestID int64) (*domain.MoneyRequest, error) {
	var request *domain.MoneyRequest

	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.LedgerStore) error {
		var err error
		request, err = tx.GetMoneyRequestByID(ctx, requestID)
		if err != nil {
			return err
		}
		if request.Status != domain.RequestPending {
			return domain.ErrRequestAlreadyProcessed
		}
		request.Status = domain.RequestRejected
		return tx.UpdateMoneyRequest(ctx, request)
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}
