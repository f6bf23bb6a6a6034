package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nakshatratalks/consult-engine/server/domain"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestClientGetBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/c1/balance", r.URL.Path)
		json.NewEncoder(w).Encode(balanceResponse{CustomerID: "c1", Balance: 123.45})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, quietLog())
	balance, err := c.GetBalance(context.Background(), "c1")
	require.NoError(t, err)
	assert.InDelta(t, 123.45, balance, 1e-9)
}

func TestClientDebitSendsIdempotencyKey(t *testing.T) {
	var got debitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/c1/debits", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(balanceResponse{CustomerID: "c1", Balance: 90})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, quietLog())
	balance, err := c.Debit(context.Background(), "c1", 10, "session-123")
	require.NoError(t, err)
	assert.InDelta(t, 90.0, balance, 1e-9)
	assert.Equal(t, "session-123", got.IdempotencyKey)
	assert.InDelta(t, 10.0, got.Amount, 1e-9)
}

func TestClientWrapsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, quietLog())

	var unavailable *domain.LedgerUnavailableError
	_, err := c.GetBalance(context.Background(), "c1")
	require.ErrorAs(t, err, &unavailable)

	_, err = c.Debit(context.Background(), "c1", 10, "k")
	require.ErrorAs(t, err, &unavailable)

	// Unreachable host fails the same way.
	dead := NewClient("http://127.0.0.1:1", 200*time.Millisecond, quietLog())
	_, err = dead.GetBalance(context.Background(), "c1")
	require.ErrorAs(t, err, &unavailable)
}

func TestMemoryLedgerIdempotentDebit(t *testing.T) {
	m := NewMemory(500)

	balance, err := m.Debit(context.Background(), "c1", 50, "key-1")
	require.NoError(t, err)
	assert.InDelta(t, 450.0, balance, 1e-9)

	// Same key: no double charge.
	balance, err = m.Debit(context.Background(), "c1", 50, "key-1")
	require.NoError(t, err)
	assert.InDelta(t, 450.0, balance, 1e-9)

	balance, err = m.Debit(context.Background(), "c1", 50, "key-2")
	require.NoError(t, err)
	assert.InDelta(t, 400.0, balance, 1e-9)
}
