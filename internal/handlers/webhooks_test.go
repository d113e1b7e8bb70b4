package handlers

import (
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	paymasterapi "github.com/protocolwhisper/paymeskill/pkg/api/paymaster"
)

func webhookRouter() *gin.Engine {
	router := newTestRouter()
	router.POST("/webhooks/x402scan/settlement", IngestSettlement)
	return router
}

func TestIngestSettlement_Accepted(t *testing.T) {
	mock := setupTest(t, LedgerVerifier{})

	mock.ExpectExec("INSERT INTO payments").
		WithArgs("0xuser", sqlmock.AnyArg(), "scraping", int64(5), "0xpayer", "user", "settled", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := doJSON(t, webhookRouter(), http.MethodPost, "/webhooks/x402scan/settlement",
		paymasterapi.SettlementWebhookRequest{
			TxHash:      "0xuser",
			Service:     "scraping",
			AmountCents: 5,
			Payer:       "0xpayer",
			Source:      "user",
			Status:      "settled",
		}, nil)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp paymasterapi.MessageResponse
	decodeBody(t, rec, &resp)
	if resp.Message != "settlement ingested" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// A replayed settlement inserts nothing and still returns 202.
func TestIngestSettlement_ReplayIsIdempotent(t *testing.T) {
	mock := setupTest(t, LedgerVerifier{})

	mock.ExpectExec("INSERT INTO payments").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := doJSON(t, webhookRouter(), http.MethodPost, "/webhooks/x402scan/settlement",
		paymasterapi.SettlementWebhookRequest{
			TxHash:      "0xdup",
			Service:     "scraping",
			AmountCents: 5,
			Payer:       "0xpayer",
			Source:      "user",
			Status:      "settled",
		}, nil)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 on replay, got %d", rec.Code)
	}
}

func TestIngestSettlement_RejectsUnknownSource(t *testing.T) {
	setupTest(t, LedgerVerifier{})

	rec := doJSON(t, webhookRouter(), http.MethodPost, "/webhooks/x402scan/settlement",
		paymasterapi.SettlementWebhookRequest{
			TxHash:      "0xbad",
			Service:     "scraping",
			AmountCents: 5,
			Payer:       "0xpayer",
			Source:      "exchange",
			Status:      "settled",
		}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var envelope paymasterapi.ErrorResponse
	decodeBody(t, rec, &envelope)
	if envelope.Error.Code != "validation_error" {
		t.Fatalf("unexpected code: %q", envelope.Error.Code)
	}
}
