package config

import (
	"fmt"
	"os"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	DBSource           string
	Port               string
	Env                string
	StoreDriver        string
	CustomerServiceURL string
	// AMQPURL is optional; empty disables event publishing.
	AMQPURL string
}

func Load() (*Config, error) {
	driver := os.Getenv("STORE_DRIVER")
	if driver == "" {
		driver = DriverPostgres
	}
	if driver != DriverPostgres && driver != DriverMemory {
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}

	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" && driver == DriverPostgres {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	customerURL := os.Getenv("CUSTOMER_SERVICE_URL")
	if customerURL == "" {
		customerURL = "http://localhost:8081"
	}

	return &Config{
		DBSource:           dbSource,
		Port:               port,
		Env:                env,
		StoreDriver:        driver,
		CustomerServiceURL: customerURL,
		AMQPURL:            os.Getenv("AMQP_URL"),
	}, nil
}
