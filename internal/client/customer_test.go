package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/retailbank/accountsvc/internal/domain"
)

func TestGetCustomer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/customers/7" {
			t.Errorf("path=%q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"customerId":7,"firstName":"Ada","lastName":"Lovelace"}`))
	}))
	defer srv.Close()

	c := NewCustomerClient(srv.URL)
	customer, err := c.GetCustomer(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if customer.CustomerID != 7 || customer.FirstName != "Ada" || customer.LastName != "Lovelace" {
		t.Fatalf("customer %+v", customer)
	}
}

func TestGetCustomerNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such customer", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewCustomerClient(srv.URL)
	if _, err := c.GetCustomer(context.Background(), 404); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("want ErrCustomerNotFound, got %v", err)
	}
}

func TestGetCustomerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewCustomerClient(srv.URL)
	if _, err := c.GetCustomer(context.Background(), 1); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("want ErrCustomerNotFound, got %v", err)
	}
}

func TestGetCustomerTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewCustomerClient(srv.URL)
	if _, err := c.GetCustomer(context.Background(), 1); !errors.Is(err, domain.ErrCustomerUnavailable) {
		t.Fatalf("want ErrCustomerUnavailable, got %v", err)
	}
}

func TestGetCustomerMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewCustomerClient(srv.URL)
	if _, err := c.GetCustomer(context.Background(), 1); !errors.Is(err, domain.ErrCustomerUnavailable) {
		t.Fatalf("want ErrCustomerUnavailable, got %v", err)
	}
}

func TestBaseURLTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/customers/1" {
			t.Errorf("path=%q, trailing slash not trimmed", r.URL.Path)
		}
		w.Write([]byte(`{"customerId":1}`))
	}))
	defer srv.Close()

	c := NewCustomerClient(srv.URL + "/")
	if _, err := c.GetCustomer(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
}
