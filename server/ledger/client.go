package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nakshatratalks/consult-engine/server/domain"
)

// Client talks to the balance service over HTTP. It implements
// usecase.Ledger; any transport or server failure is wrapped in a
// domain.LedgerUnavailableError so the caller can queue a retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logrus.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *logrus.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type balanceResponse struct {
	CustomerID string  `json:"customer_id"`
	Balance    float64 `json:"balance"`
}

type debitRequest struct {
	Amount         float64 `json:"amount"`
	IdempotencyKey string  `json:"idempotency_key"`
}

func (c *Client) GetBalance(ctx context.Context, customerID string) (float64, error) {
	url := fmt.Sprintf("%s/customers/%s/balance", c.baseURL, customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &domain.LedgerUnavailableError{Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &domain.LedgerUnavailableError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &domain.LedgerUnavailableError{Cause: fmt.Errorf("balance lookup returned status %d", resp.StatusCode)}
	}

	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, &domain.LedgerUnavailableError{Cause: err}
	}
	return body.Balance, nil
}

func (c *Client) Debit(ctx context.Context, customerID string, amount float64, idempotencyKey string) (float64, error) {
	payload, err := json.Marshal(debitRequest{Amount: amount, IdempotencyKey: idempotencyKey})
	if err != nil {
		return 0, &domain.LedgerUnavailableError{Cause: err}
	}

	url := fmt.Sprintf("%s/customers/%s/debits", c.baseURL, customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, &domain.LedgerUnavailableError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("customer_id", customerID).Warn("ledger debit failed")
		return 0, &domain.LedgerUnavailableError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, &domain.LedgerUnavailableError{Cause: fmt.Errorf("debit returned status %d", resp.StatusCode)}
	}

	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, &domain.LedgerUnavailableError{Cause: err}
	}
	return body.Balance, nil
}
