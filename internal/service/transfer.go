package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/retailbank/accountsvc/internal/domain"
	"github.com/retailbank/accountsvc/internal/events"
	"github.com/retailbank/accountsvc/internal/store"
)

// TransferOutcome is the result of an executed transfer.
type TransferOutcome struct {
	Message            string `json:"message"`
	SourceAccount      string `json:"sourceAccountNumber"`
	DestinationAccount string `json:"destinationAccountNumber"`
	// FulfilledRequestID is set when the transfer settled a pending
	// money request for the same pair and amount.
	FulfilledRequestID *int64 `json:"fulfilledRequestId,omitempty"`
}

// TransferService moves money between two accounts as one atomic unit,
// leaving a debit leg on the source and a credit leg on the destination.
type TransferService struct {
	store     store.LedgerStore
	publisher events.Publisher
}

func NewTransferService(s store.LedgerStore, p events.Publisher) *TransferService {
	return &TransferService{store: s, publisher: p}
}

// Transfer executes req. When idempotencyKey is non-empty the outcome
// is recorded under the key: a retry with the same key and payload
// replays the recorded response instead of moving money again.
//
// Preconditions are checked in order: amount valid, source exists,
// destination exists, source balance covers the amount. Accounts are
// locked in account-number order so concurrent transfers over the same
// pair cannot deadlock.
func (s *TransferService) Transfer(ctx context.Context, req domain.TransferRequest, idempotencyKey, requestHash string) (*TransferOutcome, *domain.IdempotencyRecord, error) {
	if !req.Amount.IsPositive() {
		return nil, nil, domain.ErrInvalidAmount
	}
	if req.SourceAccountNumber == req.DestinationAccountNumber {
		return nil, nil, domain.ErrSameAccount
	}

	var outcome *TransferOutcome
	var replay *domain.IdempotencyRecord

	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.LedgerStore) error {
		if idempotencyKey != "" {
			record, err := tx.GetIdempotencyRecord(ctx, idempotencyKey)
			if err != nil {
				return err
			}
			if record != nil {
				if record.RequestHash != requestHash {
					return domain.ErrIdempotencyMismatch
				}
				if record.Status != domain.IdempotencyCompleted {
					return domain.ErrIdempotencyConflict
				}
				replay = record
				return nil
			}
			if err := tx.ReserveIdempotencyKey(ctx, idempotencyKey, requestHash); err != nil {
				return err
			}
		}

		source, destination, err := lockAccountPair(ctx, tx,
			req.SourceAccountNumber, req.DestinationAccountNumber)
		if err != nil {
			return err
		}

		if source.Balance.LessThan(req.Amount) {
			return domain.ErrInsufficientFunds
		}

		now := time.Now().UTC()
		source.Balance = source.Balance.Sub(req.Amount)
		source.UpdatedAt = now
		destination.Balance = destination.Balance.Add(req.Amount)
		destination.UpdatedAt = now

		if err := tx.UpdateAccount(ctx, source); err != nil {
			return err
		}
		if err := tx.UpdateAccount(ctx, destination); err != nil {
			return err
		}

		debit := &domain.Transaction{
			AccountID:       source.AccountID,
			Amount:          req.Amount.Neg(),
			TransactionDate: now,
			TransactionType: domain.TransactionDebit,
			Description:     fmt.Sprintf("Transfer to account %s", destination.AccountNumber),
			Reference:       uuid.NewString(),
		}
		if err := tx.InsertTransaction(ctx, debit); err != nil {
			return err
		}

		credit := &domain.Transaction{
			AccountID:       destination.AccountID,
			Amount:          req.Amount,
			TransactionDate: now,
			TransactionType: domain.TransactionCredit,
			Description:     fmt.Sprintf("Transfer from account %s", source.AccountNumber),
			Reference:       uuid.NewString(),
		}
		if err := tx.InsertTransaction(ctx, credit); err != nil {
			return err
		}

		outcome = &TransferOutcome{
			Message: fmt.Sprintf("Transferred %s from account %s to %s.",
				req.Amount, source.AccountNumber, destination.AccountNumber),
			SourceAccount:      source.AccountNumber,
			DestinationAccount: destination.AccountNumber,
		}

		// A direct transfer that matches a pending money request for the
		// same pair and amount settles that request: the credit leg is
		// relabeled and linked to the request by id.
		requestID, err := s.reconcileRequest(ctx, tx, credit, source.AccountNumber, destination.AccountNumber)
		if err != nil {
			return err
		}
		outcome.FulfilledRequestID = requestID

		if idempotencyKey != "" {
			body, err := json.Marshal(outcome)
			if err != nil {
				return err
			}
			return tx.CompleteIdempotencyKey(ctx, idempotencyKey, http.StatusOK, body)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if replay != nil {
		return nil, replay, nil
	}

	if err := s.publisher.PublishLedgerEvent(ctx, domain.LedgerEvent{
		EventID:            uuid.NewString(),
		Kind:               domain.EventTransfer,
		SourceAccount:      req.SourceAccountNumber,
		DestinationAccount: req.DestinationAccountNumber,
		Amount:             req.Amount,
		OccurredAt:         time.Now().UTC(),
	}); err != nil {
		log.Printf("warning: failed to publish transfer event: %v", err)
	}

	return outcome, nil, nil
}

// reconcileRequest checks for the newest pending money request from
// source to destination with the transferred amount. If one exists it
// is completed and the credit leg is updated to reference it.
func (s *TransferService) reconcileRequest(ctx context.Context, tx store.LedgerStore, credit *domain.Transaction, sourceNumber, destinationNumber string) (*int64, error) {
	request, err := tx.LatestPendingRequest(ctx, sourceNumber, destinationNumber)
	if err != nil {
		return nil, err
	}
	if request == nil || !request.Amount.Equal(credit.Amount) {
		return nil, nil
	}

	credit.TransactionType = domain.TransactionRequestFulfilled
	credit.RequestID = &request.MoneyRequestID
	if err := tx.UpdateTransaction(ctx, credit); err != nil {
		return nil, err
	}

	request.Status = domain.RequestCompleted
	if err := tx.UpdateMoneyRequest(ctx, request); err != nil {
		return nil, err
	}
	return &request.MoneyRequestID, nil
}

// lockAccountPair locks both accounts in account-number order to keep
// lock acquisition deterministic across concurrent transfers. The
// returned accounts are in (first, second) argument order, and a
// missing account is reported against the number that failed.
func lockAccountPair(ctx context.Context, tx store.LedgerStore, firstNumber, secondNumber string) (*domain.Account, *domain.Account, error) {
	lockOrder := []string{firstNumber, secondNumber}
	if lockOrder[0] > lockOrder[1] {
		lockOrder[0], lockOrder[1] = lockOrder[1], lockOrder[0]
	}

	locked := make(map[string]*domain.Account, 2)
	for _, number := range lockOrder {
		account, err := tx.LockAccountByNumber(ctx, number)
		if err != nil {
			return nil, nil, fmt.Errorf("account %s: %w", number, err)
		}
		locked[number] = account
	}
	return locked[firstNumber], locked[secondNumber], nil
}
