package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/protocolwhisper/paymeskill/pkg/models"
)

// nextBudgetState computes the post-debit budget. A budget that can no longer
// cover another call of the same price deactivates, so the last affordable
// call drains it rather than stranding a remainder below the price.
func nextBudgetState(remainingCents, priceCents int64) (int64, bool) {
	newRemaining := remainingCents - priceCents
	if newRemaining < 0 {
		newRemaining = 0
	}
	stillActive := newRemaining >= priceCents && newRemaining > 0
	return newRemaining, stillActive
}

// debitCampaignBudget atomically debits one subsidized call from a campaign.
// The conditional UPDATE is the only writer of budget_remaining_cents, so two
// concurrent calls can never both spend the same cents: the row qualifies for
// at most one of them. Returns sql.ErrNoRows when the campaign is inactive,
// exhausted, or gone.
func debitCampaignBudget(ctx context.Context, campaignID string, priceCents int64) (int64, bool, error) {
	start := time.Now()
	var remaining int64
	var active bool
	err := db.QueryRowContext(ctx, `
		UPDATE campaigns
		SET budget_remaining_cents = budget_remaining_cents - $1,
		    active = (budget_remaining_cents - $1 >= $1 AND budget_remaining_cents - $1 > 0)
		WHERE id = $2 AND active = true AND budget_remaining_cents >= $1
		RETURNING budget_remaining_cents, active`,
		priceCents, campaignID,
	).Scan(&remaining, &active)
	observeQuery("debit_campaign_budget", start, err)
	return remaining, active, err
}

// debitSponsoredApiBudget is the sponsored API equivalent of
// debitCampaignBudget.
func debitSponsoredApiBudget(ctx context.Context, apiID string, priceCents int64) (int64, bool, error) {
	start := time.Now()
	var remaining int64
	var active bool
	err := db.QueryRowContext(ctx, `
		UPDATE sponsored_apis
		SET budget_remaining_cents = budget_remaining_cents - $1,
		    active = (budget_remaining_cents - $1 >= $1 AND budget_remaining_cents - $1 > 0)
		WHERE id = $2 AND active = true AND budget_remaining_cents >= $1
		RETURNING budget_remaining_cents, active`,
		priceCents, apiID,
	).Scan(&remaining, &active)
	observeQuery("debit_sponsored_api_budget", start, err)
	return remaining, active, err
}

// recordSponsorPayment writes the settlement record for one sponsor-funded
// call and returns its synthetic transaction reference.
func recordSponsorPayment(ctx context.Context, campaignID, service string, amountCents int64, sponsor string) (string, error) {
	txHash := fmt.Sprintf("sponsor-%s", uuid.New().String())

	start := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO payments (tx_hash, campaign_id, service, amount_cents, payer, source, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		txHash, campaignID, service, amountCents, sponsor,
		models.PaymentSourceSponsor, models.PaymentStatusSettled, time.Now().UTC(),
	)
	observeQuery("insert_payment", start, err)
	if err != nil {
		return "", err
	}
	return txHash, nil
}

// recordUserPayment persists a facilitator-settled user payment. Idempotent
// on the transaction reference; replays of the same settlement are no-ops.
func recordUserPayment(ctx context.Context, txHash, service string, amountCents int64, payer string) error {
	start := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO payments (tx_hash, campaign_id, service, amount_cents, payer, source, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_hash) DO NOTHING`,
		txHash, sql.NullString{}, service, amountCents, payer,
		models.PaymentSourceUser, models.PaymentStatusSettled, time.Now().UTC(),
	)
	observeQuery("insert_payment", start, err)
	return err
}
