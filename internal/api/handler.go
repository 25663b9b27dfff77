package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/retailbank/accountsvc/internal/domain"
	"github.com/retailbank/accountsvc/internal/service"
)

// Metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "account_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "account_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// CustomerLookup is the slice of the Customer service consumed for
// account enrichment.
type CustomerLookup interface {
	GetCustomer(ctx context.Context, customerID int64) (*domain.Customer, error)
}

// Handler wires the account, transfer and request services to the HTTP
// surface.
type Handler struct {
	accounts  *service.AccountService
	transfers *service.TransferService
	requests  *service.RequestService
	customers CustomerLookup
}

func NewHandler(accounts *service.AccountService, transfers *service.TransferService, requests *service.RequestService, customers CustomerLookup) *Handler {
	return &Handler{
		accounts:  accounts,
		transfers: transfers,
		requests:  requests,
		customers: customers,
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}

// respondDomainError maps the domain error taxonomy onto HTTP statuses:
// not-found sentinels to 404, validation and funds failures to 400,
// in-flight idempotency conflicts to 409, upstream trouble to 500.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrCustomerNotFound):
		h.respondError(w, http.StatusNotFound, err.Error(), method, endpoint)
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrNegativeBalance),
		errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrRequestAlreadyProcessed),
		errors.Is(err, domain.ErrIDMismatch),
		errors.Is(err, domain.ErrInvalidAccountType),
		errors.Is(err, domain.ErrIdempotencyMismatch):
		h.respondError(w, http.StatusBadRequest, err.Error(), method, endpoint)
	case errors.Is(err, domain.ErrIdempotencyConflict):
		h.respondError(w, http.StatusConflict, err.Error(), method, endpoint)
	default:
		h.respondError(w, http.StatusInternalServerError, err.Error(), method, endpoint)
	}
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
