package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/retailbank/accountsvc/internal/domain"
)

// CustomerClient reads customer records from the Customer service for
// account enrichment. The Customer service is an external collaborator;
// only its lookup endpoint is consumed here.
type CustomerClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewCustomerClient(baseURL string) *CustomerClient {
	return &CustomerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// GetCustomer fetches one customer by id. Transport failures and
// malformed bodies map to domain.ErrCustomerUnavailable; any
// non-success status maps to domain.ErrCustomerNotFound.
func (c *CustomerClient) GetCustomer(ctx context.Context, customerID int64) (*domain.Customer, error) {
	url := fmt.Sprintf("%s/api/customers/%d", c.baseURL, customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCustomerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("customer %d: %w", customerID, domain.ErrCustomerNotFound)
	}

	var customer domain.Customer
	if err := json.NewDecoder(resp.Body).Decode(&customer); err != nil {
		return nil, fmt.Errorf("%w: decoding customer response: %v", domain.ErrCustomerUnavailable, err)
	}
	return &customer, nil
}
