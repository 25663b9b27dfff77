package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/retailbank/accountsvc/internal/domain"
)

// NewRouter builds the full HTTP surface: health, metrics, and the
// versioned account API.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/accounts", h.OpenAccount).Methods("POST")
	api.HandleFunc("/accounts/by-number/{accountNumber}", h.GetAccountByNumber).Methods("GET")
	api.HandleFunc("/accounts/add-money/{accountNumber}", h.AddMoney).Methods("PUT")
	api.HandleFunc("/accounts/update-balance/{accountNumber}", h.UpdateBalance).Methods("PUT")
	api.HandleFunc("/accounts/transfer", h.Transfer).Methods("POST")
	api.HandleFunc("/accounts/request-money", h.RequestMoney).Methods("POST")
	api.HandleFunc("/accounts/pending-requests/{customerId:[0-9]+}", h.PendingRequests).Methods("GET")
	api.HandleFunc("/accounts/accept-request/{requestId:[0-9]+}", h.AcceptRequest).Methods("POST")
	api.HandleFunc("/accounts/reject-request/{requestId:[0-9]+}", h.RejectRequest).Methods("POST")
	api.HandleFunc("/accounts/{accountId:[0-9]+}", h.GetAccount).Methods("GET")
	api.HandleFunc("/accounts/{accountId:[0-9]+}", h.UpdateAccount).Methods("PUT")
	api.HandleFunc("/accounts/{accountId:[0-9]+}", h.DeleteAccount).Methods("DELETE")
	api.HandleFunc("/accounts/{accountId:[0-9]+}/transactions", h.GetTransactions).Methods("GET")
	api.HandleFunc("/customers/{customerId:[0-9]+}/accounts", h.ListCustomerAccounts).Methods("GET")
	api.HandleFunc("/customers/{customerId:[0-9]+}/accounts/summary", h.CustomerAccountSummary).Methods("GET")

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req domain.OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request payload", "POST", "/accounts")
		return
	}

	account, err := h.accounts.OpenAccount(r.Context(), req)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/accounts")
		return
	}
	h.respondJSON(w, http.StatusCreated, account, "POST", "/accounts")
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["accountId"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid account id", "GET", "/accounts/{accountId}")
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/{accountId}")
		return
	}

	customer, err := h.customers.GetCustomer(r.Context(), account.CustomerID)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/{accountId}")
		return
	}
	account.Customer = customer

	h.respondJSON(w, http.StatusOK, account, "GET", "/accounts/{accountId}")
}

func (h *Handler) GetAccountByNumber(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["accountNumber"]

	account, err := h.accounts.GetAccountByNumber(r.Context(), number)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/by-number/{accountNumber}")
		return
	}
	h.respondJSON(w, http.StatusOK, account, "GET", "/accounts/by-number/{accountNumber}")
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["accountId"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid account id", "PUT", "/accounts/{accountId}")
		return
	}

	var account domain.Account
	if err := json.NewDecoder(r.Body).Decode(&account); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request payload", "PUT", "/accounts/{accountId}")
		return
	}
	if account.AccountID != id {
		h.respondDomainError(w, domain.ErrIDMismatch, "PUT", "/accounts/{accountId}")
		return
	}

	updated, err := h.accounts.UpdateAccount(r.Context(), &account)
	if err != nil {
		h.respondDomainError(w, err, "PUT", "/accounts/{accountId}")
		return
	}
	h.respondJSON(w, http.StatusOK, updated, "PUT", "/accounts/{accountId}")
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["accountId"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid account id", "DELETE", "/accounts/{accountId}")
		return
	}

	if err := h.accounts.DeleteAccount(r.Context(), id); err != nil {
		h.respondDomainError(w, err, "DELETE", "/accounts/{accountId}")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Account deleted successfully"}, "DELETE", "/accounts/{accountId}")
}

func (h *Handler) ListCustomerAccounts(w http.ResponseWriter, r *http.Request) {
	customerID, err := parseID(mux.Vars(r)["customerId"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid customer id", "GET", "/customers/{customerId}/accounts")
		return
	}

	customer, err := h.customers.GetCustomer(r.Context(), customerID)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/customers/{customerId}/accounts")
		return
	}

	accounts, err := h.accounts.ListAccountsByCustomer(r.Context(), customerID)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/customers/{customerId}/accounts")
		return
	}
	for i := range accounts {
		accounts[i].Customer = customer
	}

	h.respondJSON(w, http.StatusOK, accounts, "GET", "/customers/{customerId}/accounts")
}

func (h *Handler) CustomerAccountSummary(w http.ResponseWriter, r *http.Request) {
	customerID, err := parseID(mux.Vars(r)["customerId"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid customer id", "GET", "/customers/{customerId}/accounts/summary")
		return
	}

	customer, err := h.customers.GetCustomer(r.Context(), customerID)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/customers/{customerId}/accounts/summary")
		return
	}

	accounts, err := h.accounts.ListAccountsByCustomer(r.Context(), customerID)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/customers/{customerId}/accounts/summary")
		return
	}

	summaries := make([]domain.AccountSummary, 0, len(accounts))
	for _, a := range accounts {
		summaries = append(summaries, domain.AccountSummary{
			AccountType:            a.AccountType,
			AccountNumber:          a.AccountNumber,
			Category:               a.Category,
			JointAccountHolderName: a.JointAccountHolderName,
			Status:                 a.Status,
			Balance:                a.Balance,
			CustomerName:           fmt.Sprintf("%s %s", customer.FirstName, customer.LastName),
		})
	}

	h.respondJSON(w, http.StatusOK, summaries, "GET", "/customers/{customerId}/accounts/summary")
}

// AddMoney credits the posted amount to the account. The body is a
// bare JSON decimal, quoted or not.
func (h *Handler) AddMoney(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["accountNumber"]

	var amount decimal.Decimal
	if err := json.NewDecoder(r.Body).Decode(&amount); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid amount", "PUT", "/accounts/add-money/{accountNumber}")
		return
	}

	account, err := h.accounts.AddMoney(r.Context(), number, amount)
	if err != nil {
		h.respondDomainError(w, err, "PUT", "/accounts/add-money/{accountNumber}")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":       fmt.Sprintf("Amount of %s added to account %s. New balance: %s", amount, number, account.Balance),
		"accountNumber": number,
		"balance":       account.Balance,
	}, "PUT", "/accounts/add-money/{accountNumber}")
}

func (h *Handler) UpdateBalance(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["accountNumber"]

	var newBalance decimal.Decimal
	if err := json.NewDecoder(r.Body).Decode(&newBalance); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid balance", "PUT", "/accounts/update-balance/{accountNumber}")
		return
	}

	account, err := h.accounts.SetBalance(r.Context(), number, newBalance)
	if err != nil {
		h.respondDomainError(w, err, "PUT", "/accounts/update-balance/{accountNumber}")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":       fmt.Sprintf("Balance for account number %s updated to %s.", number, account.Balance),
		"accountNumber": number,
		"balance":       account.Balance,
	}, "PUT", "/accounts/update-balance/{accountNumber}")
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/accounts/transfer"))
	defer timer.ObserveDuration()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "stream read error", "POST", "/accounts/transfer")
		return
	}
	hash := sha256.Sum256(body)
	reqHash := hex.EncodeToString(hash[:])

	var req domain.TransferRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request payload", "POST", "/accounts/transfer")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	outcome, replay, err := h.transfers.Transfer(r.Context(), req, idempotencyKey, reqHash)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/accounts/transfer")
		return
	}

	if replay != nil {
		httpRequestsTotal.WithLabelValues("POST", "/accounts/transfer", "200").Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(replay.ResponseStatus)
		w.Write(replay.ResponseBody)
		return
	}

	// Keyed retries replay the recorded bytes verbatim, so the first
	// response must come from the same encoding the service stored.
	respBody, err := json.Marshal(outcome)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "encoding response", "POST", "/accounts/transfer")
		return
	}
	httpRequestsTotal.WithLabelValues("POST", "/accounts/transfer", "200").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(respBody)
}

func (h *Handler) RequestMoney(w http.ResponseWriter, r *http.Request) {
	var req domain.RequestMoneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request payload", "POST", "/accounts/request-money")
		return
	}

	request, err := h.requests.RequestMoney(r.Context(), req)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/accounts/request-money")
		return
	}
	h.respondJSON(w, http.StatusCreated, request, "POST", "/accounts/request-money")
}

func (h *Handler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	customerID, err := parseID(mux.Vars(r)["customerId"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid customer id", "GET", "/accounts/pending-requests/{customerId}")
		return
	}

	requests, err := h.requests.PendingRequestsForCustomer(r.Context(), customerID)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/pending-requests/{customerId}")
		return
	}
	h.respondJSON(w, http.StatusOK, requests, "GET", "/accounts/pending-requests/{customerId}")
}

func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := parseID(mux.Vars(r)["requestId"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request id", "POST", "/accounts/accept-request/{requestId}")
		return
	}

	request, err := h.requests.AcceptRequest(r.Context(), requestID)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/accounts/accept-request/{requestId}")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Money request accepted and transaction completed.",
		"request": request,
	}, "POST", "/accounts/accept-request/{requestId}")
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := parseID(mux.Vars(r)["requestId"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request id", "POST", "/accounts/reject-request/{requestId}")
		return
	}

	request, err := h.requests.RejectRequest(r.Context(), requestID)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/accounts/reject-request/{requestId}")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Money request rejected.",
		"request": request,
	}, "POST", "/accounts/reject-request/{requestId}")
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseID(mux.Vars(r)["accountId"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid account id", "GET", "/accounts/{accountId}/transactions")
		return
	}

	transactions, err := h.accounts.Transactions(r.Context(), accountID)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/{accountId}/transactions")
		return
	}
	h.respondJSON(w, http.StatusOK, transactions, "GET", "/accounts/{accountId}/transactions")
}
