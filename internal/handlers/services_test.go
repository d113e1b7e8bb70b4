package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	paymasterapi "github.com/protocolwhisper/paymeskill/pkg/api/paymaster"
	"github.com/protocolwhisper/paymeskill/pkg/models"
	"github.com/protocolwhisper/paymeskill/pkg/x402"
)

func toolRouter() *gin.Engine {
	router := newTestRouter()
	router.POST("/tool/:service/run", RunTool)
	return router
}

func proxyRouter() *gin.Engine {
	router := newTestRouter()
	router.POST("/proxy/:service/run", RunProxy)
	return router
}

func userRows(user models.UserProfile) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "region", "roles", "tools_used", "attributes", "created_at"}).
		AddRow(user.ID, user.Email, user.Region, "{}", "{}", []byte(`{}`), time.Now())
}

func TestRunTool_MissingPaymentChallenges(t *testing.T) {
	setupTest(t, LedgerVerifier{})

	rec := doJSON(t, toolRouter(), http.MethodPost, "/tool/scraping/run",
		paymasterapi.ServiceRunRequest{UserID: uuid.New().String(), Input: "hello"}, nil)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(x402.HeaderVersion); got != "2" {
		t.Fatalf("expected x402-version header 2, got %q", got)
	}

	var challenge paymasterapi.PaymentRequired
	decodeBody(t, rec, &challenge)
	if challenge.Service != "scraping" || challenge.AmountCents != 5 {
		t.Fatalf("unexpected challenge: %+v", challenge)
	}
	if challenge.AcceptedHeader != x402.HeaderPayment {
		t.Fatalf("unexpected accepted header: %q", challenge.AcceptedHeader)
	}
	if challenge.Message != "missing payment proof" {
		t.Fatalf("unexpected message: %q", challenge.Message)
	}
	if challenge.PaymentRequirement == "" {
		t.Fatal("expected encoded payment requirement in challenge")
	}
}

// Services outside the catalog are priced at the default, not rejected.
func TestRunTool_UnknownServiceDefaultPrice(t *testing.T) {
	setupTest(t, LedgerVerifier{})

	rec := doJSON(t, toolRouter(), http.MethodPost, "/tool/translation/run",
		paymasterapi.ServiceRunRequest{UserID: uuid.New().String()}, nil)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}

	var challenge paymasterapi.PaymentRequired
	decodeBody(t, rec, &challenge)
	if challenge.Service != "translation" || challenge.AmountCents != DefaultPriceCents {
		t.Fatalf("unexpected challenge: %+v", challenge)
	}
}

func TestRunTool_SettledProofAccepted(t *testing.T) {
	mock := setupTest(t, LedgerVerifier{})
	userID := uuid.New().String()

	mock.ExpectQuery("SELECT status FROM payments").
		WithArgs("0xsettled").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("settled"))

	rec := doJSON(t, toolRouter(), http.MethodPost, "/tool/scraping/run",
		paymasterapi.ServiceRunRequest{UserID: userID, Input: "crawl docs"},
		map[string]string{x402.HeaderPayment: settledProofHeader(t, "scraping", 5, "0xsettled")})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(x402.HeaderVersion); got != "2" {
		t.Fatalf("expected x402-version header, got %q", got)
	}
	if rec.Header().Get(x402.HeaderReceipt) == "" {
		t.Fatal("expected settlement receipt header")
	}

	var resp paymasterapi.ServiceRunResponse
	decodeBody(t, rec, &resp)
	if resp.Service != "scraping" || resp.PaymentMode != "user_direct" || resp.TxHash != "0xsettled" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.Contains(resp.Output, userID) || !strings.Contains(resp.Output, "crawl docs") {
		t.Fatalf("unexpected output: %q", resp.Output)
	}
}

func TestRunTool_FallbackPaymentHeader(t *testing.T) {
	mock := setupTest(t, LedgerVerifier{})

	mock.ExpectQuery("SELECT status FROM payments").
		WithArgs("0xsettled").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("settled"))

	rec := doJSON(t, toolRouter(), http.MethodPost, "/tool/scraping/run",
		paymasterapi.ServiceRunRequest{UserID: uuid.New().String()},
		map[string]string{x402.HeaderPaymentFallback: settledProofHeader(t, "scraping", 5, "0xsettled")})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected X-PAYMENT fallback to be accepted, got %d", rec.Code)
	}
}

func TestRunTool_InsufficientProofAmount(t *testing.T) {
	setupTest(t, LedgerVerifier{})

	rec := doJSON(t, toolRouter(), http.MethodPost, "/tool/scraping/run",
		paymasterapi.ServiceRunRequest{UserID: uuid.New().String()},
		map[string]string{x402.HeaderPayment: settledProofHeader(t, "scraping", 3, "0xabc")})

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}

	var challenge paymasterapi.PaymentRequired
	decodeBody(t, rec, &challenge)
	if challenge.Message != "insufficient amount in proof: 3 < 5" {
		t.Fatalf("unexpected message: %q", challenge.Message)
	}
}

func TestRunProxy_SponsoredCall(t *testing.T) {
	mock := setupTest(t, LedgerVerifier{})

	user := models.UserProfile{ID: uuid.New().String(), Email: "dev@example.com", Region: "eu"}
	campaign := models.Campaign{
		ID: uuid.New().String(), Name: "launch", Sponsor: "Acme",
		RequiredTask: "follow", SubsidyPerCallCents: 5,
		BudgetTotalCents: 12, BudgetRemainingCents: 12,
		Active: true, CreatedAt: time.Now(),
	}

	mock.ExpectQuery("SELECT id, email, region").
		WithArgs(user.ID).
		WillReturnRows(userRows(user))
	mock.ExpectQuery("SELECT id, name, sponsor, target_roles").
		WithArgs(int64(5)).
		WillReturnRows(campaignRows(campaign))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(campaign.ID, user.ID, "follow").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("UPDATE campaigns").
		WithArgs(int64(5), campaign.ID).
		WillReturnRows(sqlmock.NewRows([]string{"budget_remaining_cents", "active"}).AddRow(int64(7), true))
	mock.ExpectExec("INSERT INTO payments").
		WithArgs(sqlmock.AnyArg(), campaign.ID, "scraping", int64(5), "Acme", "sponsor", "settled", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := doJSON(t, proxyRouter(), http.MethodPost, "/proxy/scraping/run",
		paymasterapi.ServiceRunRequest{UserID: user.ID, Input: "crawl"}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp paymasterapi.ServiceRunResponse
	decodeBody(t, rec, &resp)
	if resp.PaymentMode != "sponsored" || resp.SponsoredBy != "Acme" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.HasPrefix(resp.TxHash, "sponsor-") {
		t.Fatalf("expected synthetic sponsor tx hash, got %q", resp.TxHash)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRunProxy_PendingTaskPrecondition(t *testing.T) {
	mock := setupTest(t, LedgerVerifier{})

	user := models.UserProfile{ID: uuid.New().String(), Email: "dev@example.com", Region: "eu"}
	campaign := models.Campaign{
		ID: uuid.New().String(), Name: "launch", Sponsor: "Acme",
		RequiredTask: "follow", SubsidyPerCallCents: 5,
		BudgetTotalCents: 100, BudgetRemainingCents: 100,
		Active: true, CreatedAt: time.Now(),
	}

	mock.ExpectQuery("SELECT id, email, region").
		WithArgs(user.ID).
		WillReturnRows(userRows(user))
	mock.ExpectQuery("SELECT id, name, sponsor, target_roles").
		WithArgs(int64(5)).
		WillReturnRows(campaignRows(campaign))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(campaign.ID, user.ID, "follow").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	rec := doJSON(t, proxyRouter(), http.MethodPost, "/proxy/scraping/run",
		paymasterapi.ServiceRunRequest{UserID: user.ID}, nil)

	if rec.Code != http.StatusPreconditionRequired {
		t.Fatalf("expected 428, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope paymasterapi.ErrorResponse
	decodeBody(t, rec, &envelope)
	want := "complete sponsor task 'follow' for campaign 'launch' before sponsored usage"
	if envelope.Error.Code != "precondition_required" || envelope.Error.Message != want {
		t.Fatalf("unexpected error: %+v", envelope.Error)
	}
}

func TestRunProxy_NoEligibleCampaign(t *testing.T) {
	mock := setupTest(t, LedgerVerifier{})
	user := models.UserProfile{ID: uuid.New().String(), Email: "dev@example.com", Region: "eu"}

	mock.ExpectQuery("SELECT id, email, region").
		WithArgs(user.ID).
		WillReturnRows(userRows(user))
	mock.ExpectQuery("SELECT id, name, sponsor, target_roles").
		WithArgs(int64(5)).
		WillReturnRows(campaignRows())

	rec := doJSON(t, proxyRouter(), http.MethodPost, "/proxy/scraping/run",
		paymasterapi.ServiceRunRequest{UserID: user.ID}, nil)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}

	var challenge paymasterapi.PaymentRequired
	decodeBody(t, rec, &challenge)
	if challenge.Message != "no eligible sponsor campaign found" {
		t.Fatalf("unexpected message: %q", challenge.Message)
	}
	if challenge.NextStep != "either complete a sponsor task or pay with PAYMENT-SIGNATURE" {
		t.Fatalf("unexpected next step: %q", challenge.NextStep)
	}
}

func TestRunProxy_UnknownUser(t *testing.T) {
	mock := setupTest(t, LedgerVerifier{})
	userID := uuid.New().String()

	mock.ExpectQuery("SELECT id, email, region").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "region", "roles", "tools_used", "attributes", "created_at"}))

	rec := doJSON(t, proxyRouter(), http.MethodPost, "/proxy/scraping/run",
		paymasterapi.ServiceRunRequest{UserID: userID}, nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	var envelope paymasterapi.ErrorResponse
	decodeBody(t, rec, &envelope)
	if envelope.Error.Message != "user profile is required before proxy usage" {
		t.Fatalf("unexpected message: %q", envelope.Error.Message)
	}
}

func TestRunProxy_HeaderRequiresRegisteredUser(t *testing.T) {
	mock := setupTest(t, LedgerVerifier{})
	userID := uuid.New().String()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	rec := doJSON(t, proxyRouter(), http.MethodPost, "/proxy/scraping/run",
		paymasterapi.ServiceRunRequest{UserID: userID},
		map[string]string{x402.HeaderPayment: settledProofHeader(t, "scraping", 5, "0xsettled")})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
