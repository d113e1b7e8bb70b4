package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	paymasterapi "github.com/protocolwhisper/paymeskill/pkg/api/paymaster"
	"github.com/protocolwhisper/paymeskill/pkg/logging"
	"github.com/protocolwhisper/paymeskill/pkg/models"
	"github.com/protocolwhisper/paymeskill/pkg/x402"
)

// CreateSponsoredApi registers a sponsor-funded upstream API. Creation itself
// is a priced service when the deployment sets a creation price, so the
// sponsor pays through the same x402 gate their users will.
func CreateSponsoredApi(c *gin.Context) {
	var req paymasterapi.CreateSponsoredApiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if err := validateRequest(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	priceCents := DefaultPriceCents
	if req.PriceCents != nil {
		priceCents = *req.PriceCents
	}
	if priceCents <= 0 {
		respondValidationError(c, "price_cents must be greater than 0")
		return
	}

	method, err := normalizeUpstreamMethod(req.UpstreamMethod)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	if cfg.SponsoredApiCreatePriceCents > 0 {
		payment, ok := verifyPayment(c, SponsoredApiCreateService, cfg.SponsoredApiCreatePriceCents, "/sponsored-apis")
		if !ok {
			return
		}
		metrics.PaymentEvents.WithLabelValues(paymentModeUserDirect, "settled").Inc()
		logger.WithFields(logging.Fields{
			"tx_hash":  payment.TxHash,
			"amount_c": cfg.SponsoredApiCreatePriceCents,
		}).Info("Sponsored API creation charged")
	}

	headers := models.JSONB{}
	for key, value := range req.UpstreamHeaders {
		headers[key] = value
	}

	apiID := uuid.New().String()
	api := models.SponsoredApi{
		ID:                   apiID,
		Name:                 req.Name,
		Sponsor:              req.Sponsor,
		Description:          req.Description,
		UpstreamURL:          req.UpstreamURL,
		UpstreamMethod:       method,
		UpstreamHeaders:      headers,
		PriceCents:           priceCents,
		BudgetTotalCents:     req.BudgetCents,
		BudgetRemainingCents: req.BudgetCents,
		Active:               true,
		ServiceKey:           sponsoredApiServiceKey(apiID),
		CreatedAt:            time.Now().UTC(),
	}

	start := time.Now()
	_, err = db.ExecContext(c.Request.Context(), `
		INSERT INTO sponsored_apis (
			id, name, sponsor, description, upstream_url, upstream_method,
			upstream_headers, price_cents, budget_total_cents, budget_remaining_cents,
			active, service_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		api.ID, api.Name, api.Sponsor, api.Description, api.UpstreamURL, api.UpstreamMethod,
		api.UpstreamHeaders, api.PriceCents, api.BudgetTotalCents, api.BudgetRemainingCents,
		api.Active, api.ServiceKey, api.CreatedAt,
	)
	observeQuery("insert_sponsored_api", start, err)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, api)
}

// ListSponsoredApis returns sponsored APIs, newest first
func ListSponsoredApis(c *gin.Context) {
	start := time.Now()
	rows, err := db.QueryContext(c.Request.Context(), `
		SELECT id, name, sponsor, description, upstream_url, upstream_method,
		       upstream_headers, price_cents, budget_total_cents, budget_remaining_cents,
		       active, service_key, created_at
		FROM sponsored_apis
		ORDER BY created_at DESC`)
	observeQuery("list_sponsored_apis", start, err)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	defer rows.Close()

	apis := []models.SponsoredApi{}
	for rows.Next() {
		var api models.SponsoredApi
		if err := scanSponsoredApi(rows.Scan, &api); err != nil {
			respondDatabaseError(c, err)
			return
		}
		apis = append(apis, api)
	}
	if err := rows.Err(); err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, apis)
}

// GetSponsoredApi returns one sponsored API by id
func GetSponsoredApi(c *gin.Context) {
	api, err := loadSponsoredApi(c, c.Param("api_id"))
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if api == nil {
		respondNotFound(c, "sponsored api not found")
		return
	}

	c.JSON(http.StatusOK, api)
}

// RunSponsoredApi proxies one call to the upstream API. A payment header
// means the caller pays the API's own price; otherwise the API's budget is
// debited. The debit happens before the upstream call and is kept even when
// the upstream fails.
func RunSponsoredApi(c *gin.Context) {
	apiID := c.Param("api_id")

	var req paymasterapi.SponsoredApiRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	api, err := loadSponsoredApi(c, apiID)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if api == nil {
		respondNotFound(c, "sponsored api not found")
		return
	}

	ctx := c.Request.Context()
	resourcePath := fmt.Sprintf("/sponsored-apis/%s/run", api.ID)

	paymentMode := paymentModeSponsored
	sponsoredBy := ""
	txHash := ""
	receiptHeader := ""

	if x402.GetPaymentHeaderFromRequest(c.Request) != "" {
		payment, ok := verifyPayment(c, api.ServiceKey, api.PriceCents, resourcePath)
		if !ok {
			return
		}
		metrics.PaymentEvents.WithLabelValues(paymentModeUserDirect, "settled").Inc()
		paymentMode = paymentModeUserDirect
		txHash = payment.TxHash
		receiptHeader = payment.ReceiptHeader
	} else {
		_, _, err := debitSponsoredApiBudget(ctx, api.ID, api.PriceCents)
		if err == sql.ErrNoRows {
			respondPaymentRequired(c, paymentRequiredChallenge(
				api.ServiceKey, api.PriceCents, resourcePath,
				"sponsored budget exhausted",
				"pay with PAYMENT-SIGNATURE and retry",
			))
			return
		}
		if err != nil {
			respondDatabaseError(c, err)
			return
		}
		metrics.PaymentEvents.WithLabelValues(paymentModeSponsored, "settled").Inc()
		metrics.SponsorSpendCents.Add(float64(api.PriceCents))
		sponsoredBy = api.Sponsor
	}

	upstreamStatus, upstreamBody, err := callUpstream(c, api, req.Input)
	if err != nil {
		respondUpstreamError(c, err)
		return
	}

	call := models.SponsoredApiCall{
		ID:             uuid.New().String(),
		SponsoredApiID: api.ID,
		PaymentMode:    paymentMode,
		AmountCents:    api.PriceCents,
		TxHash:         txHash,
		Caller:         req.Caller,
		CreatedAt:      time.Now().UTC(),
	}

	start := time.Now()
	_, err = db.ExecContext(ctx, `
		INSERT INTO sponsored_api_calls (
			id, sponsored_api_id, payment_mode, amount_cents, tx_hash, caller, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		call.ID, call.SponsoredApiID, call.PaymentMode,
		call.AmountCents, call.TxHash, call.Caller, call.CreatedAt,
	)
	observeQuery("insert_sponsored_api_call", start, err)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.Header(x402.HeaderVersion, x402.Version)
	if receiptHeader != "" {
		c.Header(x402.HeaderReceipt, receiptHeader)
	}
	c.JSON(http.StatusOK, paymasterapi.SponsoredApiRunResponse{
		ApiID:          api.ID,
		PaymentMode:    paymentMode,
		SponsoredBy:    sponsoredBy,
		TxHash:         txHash,
		UpstreamStatus: upstreamStatus,
		UpstreamBody:   upstreamBody,
	})
}

// callUpstream forwards the call payload to the API's upstream endpoint.
// GET upstreams receive the payload as query parameters, POST upstreams as a
// JSON body.
func callUpstream(c *gin.Context, api *models.SponsoredApi, input map[string]interface{}) (int, string, error) {
	request := upstream.R().SetContext(c.Request.Context())

	for key, value := range api.UpstreamHeaders {
		if text, ok := value.(string); ok {
			request.SetHeader(key, text)
		}
	}

	var resp *resty.Response
	var err error

	switch api.UpstreamMethod {
	case http.MethodGet:
		params := map[string]string{}
		for key, value := range input {
			params[key] = fmt.Sprintf("%v", value)
		}
		resp, err = request.SetQueryParams(params).Get(api.UpstreamURL)
	case http.MethodPost:
		resp, err = request.SetHeader("Content-Type", "application/json").SetBody(input).Post(api.UpstreamURL)
	default:
		return 0, "", fmt.Errorf("unsupported upstream method: %s", api.UpstreamMethod)
	}
	if err != nil {
		return 0, "", err
	}

	return resp.StatusCode(), resp.String(), nil
}

// normalizeUpstreamMethod defaults to POST and rejects anything that is not
// GET or POST.
func normalizeUpstreamMethod(method string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(method))
	if normalized == "" {
		normalized = http.MethodPost
	}
	switch normalized {
	case http.MethodGet, http.MethodPost:
		return normalized, nil
	default:
		return "", fmt.Errorf("upstream_method must be GET or POST")
	}
}

func scanSponsoredApi(scan func(dest ...interface{}) error, api *models.SponsoredApi) error {
	return scan(
		&api.ID, &api.Name, &api.Sponsor, &api.Description,
		&api.UpstreamURL, &api.UpstreamMethod, &api.UpstreamHeaders,
		&api.PriceCents, &api.BudgetTotalCents, &api.BudgetRemainingCents,
		&api.Active, &api.ServiceKey, &api.CreatedAt,
	)
}

// loadSponsoredApi fetches one sponsored API by id. Returns nil when absent.
func loadSponsoredApi(c *gin.Context, apiID string) (*models.SponsoredApi, error) {
	start := time.Now()
	var api models.SponsoredApi
	err := db.QueryRowContext(c.Request.Context(), `
		SELECT id, name, sponsor, description, upstream_url, upstream_method,
		       upstream_headers, price_cents, budget_total_cents, budget_remaining_cents,
		       active, service_key, created_at
		FROM sponsored_apis
		WHERE id = $1`,
		apiID,
	).Scan(
		&api.ID, &api.Name, &api.Sponsor, &api.Description,
		&api.UpstreamURL, &api.UpstreamMethod, &api.UpstreamHeaders,
		&api.PriceCents, &api.BudgetTotalCents, &api.BudgetRemainingCents,
		&api.Active, &api.ServiceKey, &api.CreatedAt,
	)
	observeQuery("load_sponsored_api", start, err)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &api, nil
}
