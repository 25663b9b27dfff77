package store

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/retailbank/accountsvc/internal/domain"
)

// Memory is an in-process LedgerStore used by the test suite and the
// memory store driver. Atomic runs its callback under the store mutex
// and restores a pre-callback snapshot on error, so a failed unit
// rolls back the same way a database transaction does.
type Memory struct {
	mu sync.Mutex

	accounts     map[int64]domain.Account
	byNumber     map[string]int64
	transactions map[int64]domain.Transaction
	requests     map[int64]domain.MoneyRequest
	idempotency  map[string]domain.IdempotencyRecord

	nextAccountID     int64
	nextTransactionID int64
	nextRequestID     int64
}

// NewMemory returns an empty in-memory ledger store.
func NewMemory() *Memory {
	return &Memory{
		accounts:          make(map[int64]domain.Account),
		byNumber:          make(map[string]int64),
		transactions:      make(map[int64]domain.Transaction),
		requests:          make(map[int64]domain.MoneyRequest),
		idempotency:       make(map[string]domain.IdempotencyRecord),
		nextAccountID:     1,
		nextTransactionID: 1,
		nextRequestID:     1,
	}
}

func (m *Memory) Atomic(ctx context.Context, fn func(ctx context.Context, s LedgerStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(ctx, &memoryTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// memorySnapshot captures all store state so Atomic can undo a failed
// unit. Map values are structs, so cloning the maps is enough.
type memorySnapshot struct {
	accounts     map[int64]domain.Account
	byNumber     map[string]int64
	transactions map[int64]domain.Transaction
	requests     map[int64]domain.MoneyRequest
	idempotency  map[string]domain.IdempotencyRecord

	nextAccountID     int64
	nextTransactionID int64
	nextRequestID     int64
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		accounts:          maps.Clone(m.accounts),
		byNumber:          maps.Clone(m.byNumber),
		transactions:      maps.Clone(m.transactions),
		requests:          maps.Clone(m.requests),
		idempotency:       maps.Clone(m.idempotency),
		nextAccountID:     m.nextAccountID,
		nextTransactionID: m.nextTransactionID,
		nextRequestID:     m.nextRequestID,
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.accounts = s.accounts
	m.byNumber = s.byNumber
	m.transactions = s.transactions
	m.requests = s.requests
	m.idempotency = s.idempotency
	m.nextAccountID = s.nextAccountID
	m.nextTransactionID = s.nextTransactionID
	m.nextRequestID = s.nextRequestID
}

func (m *Memory) GetAccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAccountByID(id)
}

func (m *Memory) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAccountByNumber(number)
}

func (m *Memory) ListAccountsByCustomer(ctx context.Context, customerID int64) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listAccountsByCustomer(customerID)
}

func (m *Memory) InsertAccount(ctx context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertAccount(a)
}

func (m *Memory) UpdateAccount(ctx context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAccount(a)
}

func (m *Memory) DeleteAccount(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteAccount(id)
}

func (m *Memory) LockAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAccountByNumber(number)
}

func (m *Memory) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertTransaction(t)
}

func (m *Memory) UpdateTransaction(ctx context.Context, t *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateTransaction(t)
}

func (m *Memory) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listTransactionsByAccount(accountID)
}

func (m *Memory) InsertMoneyRequest(ctx context.Context, r *domain.MoneyRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertMoneyRequest(r)
}

func (m *Memory) GetMoneyRequestByID(ctx context.Context, id int64) (*domain.MoneyRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getMoneyRequestByID(id)
}

func (m *Memory) ListPendingRequestsForNumbers(ctx context.Context, numbers []string) ([]domain.MoneyRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listPendingRequestsForNumbers(numbers)
}

func (m *Memory) LatestPendingRequest(ctx context.Context, fromNumber, toNumber string) (*domain.MoneyRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestPendingRequest(fromNumber, toNumber)
}

func (m *Memory) UpdateMoneyRequest(ctx context.Context, r *domain.MoneyRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateMoneyRequest(r)
}

func (m *Memory) GetIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getIdempotencyRecord(key)
}

func (m *Memory) ReserveIdempotencyKey(ctx context.Context, key, requestHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserveIdempotencyKey(key, requestHash)
}

func (m *Memory) CompleteIdempotencyKey(ctx context.Context, key string, responseStatus int, responseBody []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeIdempotencyKey(key, responseStatus, responseBody)
}

// memoryTx is the view handed to Atomic callbacks. The mutex is already
// held, so it delegates to the unlocked helpers.
type memoryTx struct {
	m *Memory
}

func (t *memoryTx) Atomic(ctx context.Context, fn func(ctx context.Context, s LedgerStore) error) error {
	return fn(ctx, t)
}

func (t *memoryTx) GetAccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	return t.m.getAccountByID(id)
}

func (t *memoryTx) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return t.m.getAccountByNumber(number)
}

func (t *memoryTx) ListAccountsByCustomer(ctx context.Context, customerID int64) ([]domain.Account, error) {
	return t.m.listAccountsByCustomer(customerID)
}

func (t *memoryTx) InsertAccount(ctx context.Context, a *domain.Account) error {
	return t.m.insertAccount(a)
}

func (t *memoryTx) UpdateAccount(ctx context.Context, a *domain.Account) error {
	return t.m.updateAccount(a)
}

func (t *memoryTx) DeleteAccount(ctx context.Context, id int64) error {
	return t.m.deleteAccount(id)
}

func (t *memoryTx) LockAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return t.m.getAccountByNumber(number)
}

func (t *memoryTx) InsertTransaction(ctx context.Context, tr *domain.Transaction) error {
	return t.m.insertTransaction(tr)
}

func (t *memoryTx) UpdateTransaction(ctx context.Context, tr *domain.Transaction) error {
	return t.m.updateTransaction(tr)
}

func (t *memoryTx) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	return t.m.listTransactionsByAccount(accountID)
}

func (t *memoryTx) InsertMoneyRequest(ctx context.Context, r *domain.MoneyRequest) error {
	return t.m.insertMoneyRequest(r)
}

func (t *memoryTx) GetMoneyRequestByID(ctx context.Context, id int64) (*domain.MoneyRequest, error) {
	return t.m.getMoneyRequestByID(id)
}

func (t *memoryTx) ListPendingRequestsForNumbers(ctx context.Context, numbers []string) ([]domain.MoneyRequest, error) {
	return t.m.listPendingRequestsForNumbers(numbers)
}

func (t *memoryTx) LatestPendingRequest(ctx context.Context, fromNumber, toNumber string) (*domain.MoneyRequest, error) {
	return t.m.latestPendingRequest(fromNumber, toNumber)
}

func (t *memoryTx) UpdateMoneyRequest(ctx context.Context, r *domain.MoneyRequest) error {
	return t.m.updateMoneyRequest(r)
}

func (t *memoryTx) GetIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	return t.m.getIdempotencyRecord(key)
}

func (t *memoryTx) ReserveIdempotencyKey(ctx context.Context, key, requestHash string) error {
	return t.m.reserveIdempotencyKey(key, requestHash)
}

func (t *memoryTx) CompleteIdempotencyKey(ctx context.Context, key string, responseStatus int, responseBody []byte) error {
	return t.m.completeIdempotencyKey(key, responseStatus, responseBody)
}

// Unlocked internals. Values are copied in and out so callers never
// alias store-owned state.

func (m *Memory) getAccountByID(id int64) (*domain.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &a, nil
}

func (m *Memory) getAccountByNumber(number string) (*domain.Account, error) {
	id, ok := m.byNumber[number]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	a := m.accounts[id]
	return &a, nil
}

func (m *Memory) listAccountsByCustomer(customerID int64) ([]domain.Account, error) {
	var out []domain.Account
	for _, a := range m.accounts {
		if a.CustomerID == customerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (m *Memory) insertAccount(a *domain.Account) error {
	if _, taken := m.byNumber[a.AccountNumber]; taken {
		return domain.ErrAccountNumberTaken
	}
	a.AccountID = m.nextAccountID
	m.nextAccountID++
	m.accounts[a.AccountID] = *a
	m.byNumber[a.AccountNumber] = a.AccountID
	return nil
}

func (m *Memory) updateAccount(a *domain.Account) error {
	old, ok := m.accounts[a.AccountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if old.AccountNumber != a.AccountNumber {
		if _, taken := m.byNumber[a.AccountNumber]; taken {
			return domain.ErrAccountNumberTaken
		}
		delete(m.byNumber, old.AccountNumber)
		m.byNumber[a.AccountNumber] = a.AccountID
	}
	m.accounts[a.AccountID] = *a
	return nil
}

func (m *Memory) deleteAccount(id int64) error {
	a, ok := m.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	delete(m.byNumber, a.AccountNumber)
	delete(m.accounts, id)
	for txID, tr := range m.transactions {
		if tr.AccountID == id {
			delete(m.transactions, txID)
		}
	}
	return nil
}

func (m *Memory) insertTransaction(t *domain.Transaction) error {
	t.TransactionID = m.nextTransactionID
	m.nextTransactionID++
	m.transactions[t.TransactionID] = *t
	return nil
}

func (m *Memory) updateTransaction(t *domain.Transaction) error {
	if _, ok := m.transactions[t.TransactionID]; !ok {
		return domain.ErrRequestNotFound
	}
	m.transactions[t.TransactionID] = *t
	return nil
}

func (m *Memory) listTransactionsByAccount(accountID int64) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range m.transactions {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	// Most-recent-first; insertion order breaks timestamp ties.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TransactionDate.Equal(out[j].TransactionDate) {
			return out[i].TransactionDate.After(out[j].TransactionDate)
		}
		return out[i].TransactionID > out[j].TransactionID
	})
	return out, nil
}

func (m *Memory) insertMoneyRequest(r *domain.MoneyRequest) error {
	r.MoneyRequestID = m.nextRequestID
	m.nextRequestID++
	m.requests[r.MoneyRequestID] = *r
	return nil
}

func (m *Memory) getMoneyRequestByID(id int64) (*domain.MoneyRequest, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	return &r, nil
}

func (m *Memory) listPendingRequestsForNumbers(numbers []string) ([]domain.MoneyRequest, error) {
	set := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		set[n] = struct{}{}
	}
	var out []domain.MoneyRequest
	for _, r := range m.requests {
		if r.Status != domain.RequestPending {
			continue
		}
		if _, ok := set[r.ToAccountNumber]; ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MoneyRequestID < out[j].MoneyRequestID })
	return out, nil
}

func (m *Memory) latestPendingRequest(fromNumber, toNumber string) (*domain.MoneyRequest, error) {
	var latest *domain.MoneyRequest
	for id := range m.requests {
		r := m.requests[id]
		if r.Status != domain.RequestPending ||
			r.FromAccountNumber != fromNumber || r.ToAccountNumber != toNumber {
			continue
		}
		if latest == nil || r.MoneyRequestID > latest.MoneyRequestID {
			latest = &r
		}
	}
	return latest, nil
}

func (m *Memory) updateMoneyRequest(r *domain.MoneyRequest) error {
	if _, ok := m.requests[r.MoneyRequestID]; !ok {
		return domain.ErrRequestNotFound
	}
	m.requests[r.MoneyRequestID] = *r
	return nil
}

func (m *Memory) getIdempotencyRecord(key string) (*domain.IdempotencyRecord, error) {
	rec, ok := m.idempotency[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) reserveIdempotencyKey(key, requestHash string) error {
	if _, ok := m.idempotency[key]; ok {
		return domain.ErrIdempotencyConflict
	}
	m.idempotency[key] = domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyInProgress,
	}
	return nil
}

func (m *Memory) completeIdempotencyKey(key string, responseStatus int, responseBody []byte) error {
	rec, ok := m.idempotency[key]
	if !ok {
		return domain.ErrIdempotencyConflict
	}
	rec.Status = domain.IdempotencyCompleted
	rec.ResponseStatus = responseStatus
	rec.ResponseBody = responseBody
	m.idempotency[key] = rec
	return nil
}
