package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/protocolwhisper/paymeskill/pkg/logging"
	"github.com/protocolwhisper/paymeskill/pkg/x402"
)

// newTestMetrics builds unregistered metrics so tests never collide on the
// global Prometheus registry.
func newTestMetrics() *PaymasterMetrics {
	return &PaymasterMetrics{
		PaymentEvents:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "payment_events_total"}, []string{"mode", "status"}),
		SponsorSpendCents: prometheus.NewCounter(prometheus.CounterOpts{Name: "sponsor_spend_cents_total"}),
		CreatorEvents:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "creator_events_total"}, []string{"skill", "platform", "event_type"}),
		DBQueries:         prometheus.NewCounterVec(prometheus.CounterOpts{Name: "db_queries_total"}, []string{"query_type", "status"}),
		DBDuration:        prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "db_query_duration_seconds"}, []string{"query_type"}),
		DBConnections:     prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "db_connections_active"}, []string{"database"}),
	}
}

func testConfig() Config {
	return Config{
		PublicBaseURL: "http://localhost:3000",
		X402: x402.Config{
			Network:           "base-sepolia",
			PayTo:             "0xpayee",
			Asset:             "0xasset",
			PublicBaseURL:     "http://localhost:3000",
			MaxTimeoutSeconds: 12,
		},
		SponsoredApiCreatePriceCents: 25,
		SponsoredApiTimeout:          5 * time.Second,
	}
}

// setupTest wires the package globals against a sqlmock database.
func setupTest(t *testing.T, v Verifier) sqlmock.Sqlmock {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	Init(mockDB, logging.NewLogger(), newTestMetrics(), testConfig(), v)
	return mock
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// doJSON performs one JSON request against a router and returns the recorder.
func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

// settledProofHeader builds a ledger-mode proof header for tests.
func settledProofHeader(t *testing.T, service string, amountCents int64, txHash string) string {
	t.Helper()
	header, err := x402.EncodePaymentProof(x402.PaymentProof{
		Service:     service,
		AmountCents: amountCents,
		TxHash:      txHash,
		Payer:       "0xcaller",
	})
	if err != nil {
		t.Fatalf("failed to encode proof: %v", err)
	}
	return header
}
