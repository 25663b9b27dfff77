package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a customer's bank account and its current balance.
type Account struct {
	AccountID              int64           `json:"accountId"`
	CustomerID             int64           `json:"customerId"`
	AccountType            string          `json:"accountType"`
	AccountNumber          string          `json:"accountNumber"`
	Category               string          `json:"category,omitempty"`
	JointAccountHolderName string          `json:"jointAccountHolderName,omitempty"`
	Status                 string          `json:"status"`
	DateOpened             time.Time       `json:"dateOpened"`
	InterestRate           *float64        `json:"interestRate,omitempty"`
	Balance                decimal.Decimal `json:"balance"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`

	// Customer is populated by the enrichment call, never persisted.
	Customer *Customer `json:"customer,omitempty"`
}

// Transaction is one immutable entry in an account's audit trail.
// RequestID links the entry to the money request it fulfilled, if any.
type Transaction struct {
	TransactionID   int64           `json:"transactionId"`
	AccountID       int64           `json:"accountId"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionDate time.Time       `json:"transactionDate"`
	TransactionType string          `json:"transactionType"`
	Description     string          `json:"description,omitempty"`
	Reference       string          `json:"reference"`
	RequestID       *int64          `json:"requestId,omitempty"`
}

// Transaction type labels as they appear in the ledger.
const (
	TransactionCredit           = "Credit"
	TransactionDebit            = "Debit"
	TransactionRequestFulfilled = "Money Request Fulfilled"
)

// RequestStatus is the lifecycle state of a money request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "Pending"
	RequestCompleted RequestStatus = "Completed"
	RequestRejected  RequestStatus = "Rejected"
)

// MoneyRequest is a payee-initiated, payer-confirmed deferred transfer.
// FromAccountNumber names the payer, ToAccountNumber the payee who
// created the request. Accounts are referenced by number, not id.
type MoneyRequest struct {
	MoneyRequestID    int64           `json:"moneyRequestId"`
	FromAccountNumber string          `json:"fromAccountNumber"`
	ToAccountNumber   string          `json:"toAccountNumber"`
	Amount            decimal.Decimal `json:"amount"`
	RequestDate       time.Time       `json:"requestDate"`
	Status            RequestStatus   `json:"status"`
}

// Customer is the slice of the Customer service's record this service
// consumes for enrichment.
type Customer struct {
	CustomerID int64  `json:"customerId"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email,omitempty"`
}

// OpenAccountRequest is the payload for opening a new account.
// The account number is generated server-side.
type OpenAccountRequest struct {
	CustomerID             int64           `json:"customerId"`
	AccountType            string          `json:"accountType"`
	Category               string          `json:"category,omitempty"`
	JointAccountHolderName string          `json:"jointAccountHolderName,omitempty"`
	DateOpened             time.Time       `json:"dateOpened"`
	InterestRate           *float64        `json:"interestRate,omitempty"`
	Balance                decimal.Decimal `json:"balance"`
}

// TransferRequest is the payload for a direct account-to-account transfer.
type TransferRequest struct {
	SourceAccountNumber      string          `json:"sourceAccountNumber"`
	DestinationAccountNumber string          `json:"destinationAccountNumber"`
	Amount                   decimal.Decimal `json:"amount"`
}

// RequestMoneyRequest is the payload for creating a money request.
type RequestMoneyRequest struct {
	FromAccountNumber string          `json:"fromAccountNumber"`
	ToAccountNumber   string          `json:"toAccountNumber"`
	Amount            decimal.Decimal `json:"amount"`
}

// AccountSummary is the per-account view returned by the customer
// summary endpoint, carrying the customer's full name.
type AccountSummary struct {
	AccountType            string          `json:"accountType"`
	AccountNumber          string          `json:"accountNumber"`
	Category               string          `json:"category,omitempty"`
	JointAccountHolderName string          `json:"jointAccountHolderName,omitempty"`
	Status                 string          `json:"status"`
	Balance                decimal.Decimal `json:"balance"`
	CustomerName           string          `json:"customerName"`
}

// TransactionView is a ledger entry as presented over HTTP, with the
// owning account's number attached.
type TransactionView struct {
	TransactionID   int64           `json:"transactionId"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionDate time.Time       `json:"transactionDate"`
	TransactionType string          `json:"transactionType"`
	Description     string          `json:"description,omitempty"`
	Reference       string          `json:"reference"`
	RequestID       *int64          `json:"requestId,omitempty"`
	AccountNumber   string          `json:"accountNumber"`
}

// IdempotencyRecord holds the recorded outcome of a keyed transfer so
// a retried request can be answered without re-executing it.
type IdempotencyRecord struct {
	Key            string
	RequestHash    string
	Status         string
	ResponseStatus int
	ResponseBody   []byte
}

// Idempotency record states.
const (
	IdempotencyInProgress = "in_progress"
	IdempotencyCompleted  = "completed"
)

// LedgerEvent is the message published after a committed
// balance-affecting operation.
type LedgerEvent struct {
	EventID            string          `json:"eventId"`
	Kind               string          `json:"kind"`
	SourceAccount      string          `json:"sourceAccount,omitempty"`
	DestinationAccount string          `json:"destinationAccount,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	OccurredAt         time.Time       `json:"occurredAt"`
}

// Ledger event kinds.
const (
	EventMoneyAdded      = "money_added"
	EventTransfer        = "transfer"
	EventRequestAccepted = "request_accepted"
)
