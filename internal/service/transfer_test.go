package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/retailbank/accountsvc/internal/domain"
	"github.com/retailbank/accountsvc/internal/events"
	"github.com/retailbank/accountsvc/internal/store"
)

func newTransferService(t *testing.T) (*TransferService, *store.Memory) {
	t.Helper()
	m := store.NewMemory()
	return NewTransferService(m, events.Nop{}), m
}

func hashOf(req domain.TransferRequest) string {
	body, _ := json.Marshal(req)
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func TestTransferMovesMoneyAndWritesBothLegs(t *testing.T) {
	svc, m := newTransferService(t)
	ctx := context.Background()
	src := mustSeed(t, m, "SB000000000001", 1, "100")
	dst := mustSeed(t, m, "SB000000000002", 2, "50")

	outcome, replay, err := svc.Transfer(ctx, domain.TransferRequest{
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("30"),
	}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if replay != nil {
		t.Fatal("unexpected replay without idempotency key")
	}
	if outcome.SourceAccount != src.AccountNumber || outcome.DestinationAccount != dst.AccountNumber {
		t.Fatalf("outcome %+v", outcome)
	}
	if outcome.FulfilledRequestID != nil {
		t.Fatalf("no request to fulfill, got id %d", *outcome.FulfilledRequestID)
	}

	gotSrc, _ := m.GetAccountByID(ctx, src.AccountID)
	gotDst, _ := m.GetAccountByID(ctx, dst.AccountID)
	if !gotSrc.Balance.Equal(dec("70")) {
		t.Errorf("source balance=%s want=70", gotSrc.Balance)
	}
	if !gotDst.Balance.Equal(dec("80")) {
		t.Errorf("destination balance=%s want=80", gotDst.Balance)
	}

	srcTxs, _ := m.ListTransactionsByAccount(ctx, src.AccountID)
	dstTxs, _ := m.ListTransactionsByAccount(ctx, dst.AccountID)
	if len(srcTxs) != 1 || len(dstTxs) != 1 {
		t.Fatalf("legs: source=%d destination=%d, want 1 each", len(srcTxs), len(dstTxs))
	}

	debit, credit := srcTxs[0], dstTxs[0]
	if debit.TransactionType != domain.TransactionDebit || !debit.Amount.Equal(dec("-30")) {
		t.Errorf("debit leg %+v", debit)
	}
	if debit.Description != fmt.Sprintf("Transfer to account %s", dst.AccountNumber) {
		t.Errorf("debit description=%q", debit.Description)
	}
	if credit.TransactionType != domain.TransactionCredit || !credit.Amount.Equal(dec("30")) {
		t.Errorf("credit leg %+v", credit)
	}
	if credit.Description != fmt.Sprintf("Transfer from account %s", src.AccountNumber) {
		t.Errorf("credit description=%q", credit.Description)
	}
	if debit.Reference == "" || credit.Reference == "" || debit.Reference == credit.Reference {
		t.Errorf("references: debit=%q credit=%q", debit.Reference, credit.Reference)
	}
}

func TestTransferInsufficientFundsLeavesStateUntouched(t *testing.T) {
	svc, m := newTransferService(t)
	ctx := context.Background()
	src := mustSeed(t, m, "SB000000000001", 1, "100")
	dst := mustSeed(t, m, "SB000000000002", 2, "50")

	_, _, err := svc.Transfer(ctx, domain.TransferRequest{
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("100.01"),
	}, "", "")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}

	gotSrc, _ := m.GetAccountByID(ctx, src.AccountID)
	gotDst, _ := m.GetAccountByID(ctx, dst.AccountID)
	if !gotSrc.Balance.Equal(dec("100")) || !gotDst.Balance.Equal(dec("50")) {
		t.Errorf("balances moved: %s / %s", gotSrc.Balance, gotDst.Balance)
	}
	srcTxs, _ := m.ListTransactionsByAccount(ctx, src.AccountID)
	dstTxs, _ := m.ListTransactionsByAccount(ctx, dst.AccountID)
	if len(srcTxs)+len(dstTxs) != 0 {
		t.Errorf("legs written on failed transfer")
	}
}

func TestTransferExactBalanceAllowed(t *testing.T) {
	svc, m := newTransferService(t)
	ctx := context.Background()
	src := mustSeed(t, m, "SB000000000001", 1, "100")
	dst := mustSeed(t, m, "SB000000000002", 2, "0")

	if _, _, err := svc.Transfer(ctx, domain.TransferRequest{
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("100"),
	}, "", ""); err != nil {
		t.Fatal(err)
	}

	gotSrc, _ := m.GetAccountByID(ctx, src.AccountID)
	if !gotSrc.Balance.IsZero() {
		t.Errorf("source balance=%s want=0", gotSrc.Balance)
	}
}

func TestTransferValidation(t *testing.T) {
	svc, m := newTransferService(t)
	ctx := context.Background()
	src := mustSeed(t, m, "SB000000000001", 1, "100")
	dst := mustSeed(t, m, "SB000000000002", 2, "0")

	tests := []struct {
		name    string
		req     domain.TransferRequest
		wantErr error
	}{
		{
			name:    "zero amount",
			req:     domain.TransferRequest{SourceAccountNumber: src.AccountNumber, DestinationAccountNumber: dst.AccountNumber, Amount: dec("0")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			req:     domain.TransferRequest{SourceAccountNumber: src.AccountNumber, DestinationAccountNumber: dst.AccountNumber, Amount: dec("-10")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "same account",
			req:     domain.TransferRequest{SourceAccountNumber: src.AccountNumber, DestinationAccountNumber: src.AccountNumber, Amount: dec("10")},
			wantErr: domain.ErrSameAccount,
		},
		{
			name:    "unknown source",
			req:     domain.TransferRequest{SourceAccountNumber: "SB999999999999", DestinationAccountNumber: dst.AccountNumber, Amount: dec("10")},
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name:    "unknown destination",
			req:     domain.TransferRequest{SourceAccountNumber: src.AccountNumber, DestinationAccountNumber: "SB999999999999", Amount: dec("10")},
			wantErr: domain.ErrAccountNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := svc.Transfer(ctx, tc.req, "", ""); !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestTransferIdempotentReplay(t *testing.T) {
	svc, m := newTransferService(t)
	ctx := context.Background()
	src := mustSeed(t, m, "SB000000000001", 1, "100")
	dst := mustSeed(t, m, "SB000000000002", 2, "0")

	req := domain.TransferRequest{
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("40"),
	}
	hash := hashOf(req)

	outcome, replay, err := svc.Transfer(ctx, req, "key-1", hash)
	if err != nil {
		t.Fatal(err)
	}
	if replay != nil || outcome == nil {
		t.Fatalf("first call: outcome=%v replay=%v", outcome, replay)
	}

	// Same key, same payload: replayed, no second movement.
	outcome2, replay2, err := svc.Transfer(ctx, req, "key-1", hash)
	if err != nil {
		t.Fatal(err)
	}
	if outcome2 != nil {
		t.Fatal("replayed call produced a fresh outcome")
	}
	if replay2 == nil || replay2.ResponseStatus != http.StatusOK {
		t.Fatalf("replay record %+v", replay2)
	}
	var recorded TransferOutcome
	if err := json.Unmarshal(replay2.ResponseBody, &recorded); err != nil {
		t.Fatalf("recorded body: %v", err)
	}
	if recorded.SourceAccount != src.AccountNumber {
		t.Fatalf("recorded outcome %+v", recorded)
	}

	gotSrc, _ := m.GetAccountByID(ctx, src.AccountID)
	if !gotSrc.Balance.Equal(dec("60")) {
		t.Fatalf("balance=%s, money moved twice", gotSrc.Balance)
	}
	srcTxs, _ := m.ListTransactionsByAccount(ctx, src.AccountID)
	if len(srcTxs) != 1 {
		t.Fatalf("%d debit legs, want 1", len(srcTxs))
	}
}

func TestTransferIdempotencyKeyReusedWithDifferentPayload(t *testing.T) {
	svc, m := newTransferService(t)
	ctx := context.Background()
	src := mustSeed(t, m, "SB000000000001", 1, "100")
	dst := mustSeed(t, m, "SB000000000002", 2, "0")

	req := domain.TransferRequest{
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("40"),
	}
	if _, _, err := svc.Transfer(ctx, req, "key-1", hashOf(req)); err != nil {
		t.Fatal(err)
	}

	other := req
	other.Amount = dec("41")
	if _, _, err := svc.Transfer(ctx, other, "key-1", hashOf(other)); !errors.Is(err, domain.ErrIdempotencyMismatch) {
		t.Fatalf("want ErrIdempotencyMismatch, got %v", err)
	}
}

func TestTransferKeyFreedAfterFailedAttempt(t *testing.T) {
	svc, m := newTransferService(t)
	ctx := context.Background()
	src := mustSeed(t, m, "SB000000000001", 1, "10")
	dst := mustSeed(t, m, "SB000000000002", 2, "0")

	req := domain.TransferRequest{
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("50"),
	}
	hash := hashOf(req)

	if _, _, err := svc.Transfer(ctx, req, "key-1", hash); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}

	// The failed unit must not leave the key reserved; once the payer
	// is funded, the same key and payload go through.
	funded, err := m.GetAccountByID(ctx, src.AccountID)
	if err != nil {
		t.Fatal(err)
	}
	funded.Balance = dec("100")
	if err := m.UpdateAccount(ctx, funded); err != nil {
		t.Fatal(err)
	}

	outcome, replay, err := svc.Transfer(ctx, req, "key-1", hash)
	if err != nil {
		t.Fatalf("retry after funding: %v", err)
	}
	if outcome == nil || replay != nil {
		t.Fatalf("retry after funding: outcome=%v replay=%v, want a fresh transfer", outcome, replay)
	}

	gotSrc, _ := m.GetAccountByID(ctx, src.AccountID)
	gotDst, _ := m.GetAccountByID(ctx, dst.AccountID)
	if !gotSrc.Balance.Equal(dec("50")) || !gotDst.Balance.Equal(dec("50")) {
		t.Fatalf("balances %s / %s, want 50 / 50", gotSrc.Balance, gotDst.Balance)
	}
}

func TestTransferInFlightKeyConflicts(t *testing.T) {
	svc, m := newTransferService(t)
	ctx := context.Background()
	src := mustSeed(t, m, "SB000000000001", 1, "100")
	dst := mustSeed(t, m, "SB000000000002", 2, "0")

	req := domain.TransferRequest{
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("40"),
	}
	hash := hashOf(req)

	// Simulate a crashed first attempt: key reserved, never completed.
	if err := m.ReserveIdempotencyKey(ctx, "key-1", hash); err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.Transfer(ctx, req, "key-1", hash); !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("want ErrIdempotencyConflict, got %v", err)
	}
}

func TestTransferFulfillsMatchingPendingRequest(t *testing.T) {
	svc, m := newTransferService(t)
	ctx := context.Background()
	payer := mustSeed(t, m, "SB000000000001", 1, "100")
	payee := mustSeed(t, m, "SB000000000002", 2, "0")

	request := &domain.MoneyRequest{
		FromAccountNumber: payer.AccountNumber,
		ToAccountNumber:   payee.AccountNumber,
		Amount:            dec("30"),
		Status:            domain.RequestPending,
	}
	if err := m.InsertMoneyRequest(ctx, request); err != nil {
		t.Fatal(err)
	}

	outcome, _, err := svc.Transfer(ctx, domain.TransferRequest{
		SourceAccountNumber:      payer.AccountNumber,
		DestinationAccountNumber: payee.AccountNumber,
		Amount:                   dec("30"),
	}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if outcome.FulfilledRequestID == nil || *outcome.FulfilledRequestID != request.MoneyRequestID {
		t.Fatalf("outcome %+v, want fulfilled request %d", outcome, request.MoneyRequestID)
	}

	got, err := m.GetMoneyRequestByID(ctx, request.MoneyRequestID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RequestCompleted {
		t.Fatalf("request status=%q want=Completed", got.Status)
	}

	payeeTxs, _ := m.ListTransactionsByAccount(ctx, payee.AccountID)
	if len(payeeTxs) != 1 {
		t.Fatalf("%d credit legs, want 1", len(payeeTxs))
	}
	credit := payeeTxs[0]
	if credit.TransactionType != domain.TransactionRequestFulfilled {
		t.Errorf("credit type=%q want=%q", credit.TransactionType, domain.TransactionRequestFulfilled)
	}
	if credit.RequestID == nil || *credit.RequestID != request.MoneyRequestID {
		t.Errorf("credit not linked to request: %+v", credit)
	}
}

func TestTransferIgnoresRequestWithDifferentAmount(t *testing.T) {
	svc, m := newTransferService(t)
	ctx := context.Background()
	payer := mustSeed(t, m, "SB000000000001", 1, "100")
	payee := mustSeed(t, m, "SB000000000002", 2, "0")

	request := &domain.MoneyRequest{
		FromAccountNumber: payer.AccountNumber,
		ToAccountNumber:   payee.AccountNumber,
		Amount:            dec("30"),
		Status:            domain.RequestPending,
	}
	if err := m.InsertMoneyRequest(ctx, request); err != nil {
		t.Fatal(err)
	}

	outcome, _, err := svc.Transfer(ctx, domain.TransferRequest{
		SourceAccountNumber:      payer.AccountNumber,
		DestinationAccountNumber: payee.AccountNumber,
		Amount:                   dec("29.99"),
	}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if outcome.FulfilledRequestID != nil {
		t.Fatalf("request wrongly fulfilled: %+v", outcome)
	}

	got, _ := m.GetMoneyRequestByID(ctx, request.MoneyRequestID)
	if got.Status != domain.RequestPending {
		t.Fatalf("request status=%q want=Pending", got.Status)
	}
}

func TestTransferPublishesEvent(t *testing.T) {
	m := store.NewMemory()
	pub := &recordingPublisher{}
	svc := NewTransferService(m, pub)
	ctx := context.Background()
	src := mustSeed(t, m, "SB000000000001", 1, "100")
	dst := mustSeed(t, m, "SB000000000002", 2, "0")

	if _, _, err := svc.Transfer(ctx, domain.TransferRequest{
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("10"),
	}, "", ""); err != nil {
		t.Fatal(err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Kind != domain.EventTransfer || ev.SourceAccount != src.AccountNumber || ev.DestinationAccount != dst.AccountNumber {
		t.Fatalf("event %+v", ev)
	}
}
