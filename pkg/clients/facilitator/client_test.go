package facilitator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	facilitatorapi "github.com/protocolwhisper/paymeskill/pkg/api/facilitator"
	"github.com/protocolwhisper/paymeskill/pkg/logging"
	"github.com/protocolwhisper/paymeskill/pkg/x402"
)

func verifyRequest() *facilitatorapi.VerifyRequest {
	req, _ := x402.BuildRequirement("scraping", 5, "/tool/scraping/run", x402.Config{
		Network:           "base-sepolia",
		PayTo:             "0xpayee",
		Asset:             "0xasset",
		PublicBaseURL:     "https://pay.example.com",
		MaxTimeoutSeconds: 12,
	})
	return &facilitatorapi.VerifyRequest{
		X402Version:         2,
		PaymentHeader:       "aGVhZGVy",
		PaymentRequirements: req,
	}
}

func TestVerify_Success(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		var req facilitatorapi.VerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.X402Version != 2 || req.PaymentRequirements == nil {
			t.Errorf("unexpected request: %+v", req)
		}

		_ = json.NewEncoder(w).Encode(facilitatorapi.VerifyResponse{IsValid: true, Payer: "0xpayer"})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, BearerToken: "secret", Logger: logging.NewLogger()})
	verdict, err := client.Verify(context.Background(), verifyRequest())
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !verdict.IsValid || verdict.Payer != "0xpayer" {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
}

func TestVerify_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Logger: logging.NewLogger()})
	if _, err := client.Verify(context.Background(), verifyRequest()); err == nil {
		t.Fatal("expected error for non-2xx facilitator response")
	}
}

func TestSettle_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/settle" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(facilitatorapi.SettleResponse{Success: false, ErrorReason: "expired"})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Logger: logging.NewLogger()})
	outcome, err := client.Settle(context.Background(), &facilitatorapi.SettleRequest{X402Version: 2})
	if err != nil {
		t.Fatalf("settle transport failed: %v", err)
	}
	if outcome.Success || outcome.ErrorReason != "expired" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}
