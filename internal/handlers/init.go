package handlers

import (
	"database/sql"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/protocolwhisper/paymeskill/pkg/logging"
	"github.com/protocolwhisper/paymeskill/pkg/x402"
)

var (
	db       *sql.DB
	logger   logging.Logger
	metrics  *PaymasterMetrics
	cfg      Config
	verifier Verifier
	upstream *resty.Client
)

// PaymasterMetrics holds all Prometheus metrics for Paymaster
type PaymasterMetrics struct {
	PaymentEvents     *prometheus.CounterVec
	SponsorSpendCents prometheus.Counter
	CreatorEvents     *prometheus.CounterVec
	DBQueries         *prometheus.CounterVec
	DBDuration        *prometheus.HistogramVec
	DBConnections     *prometheus.GaugeVec
}

// Config carries the runtime settings handlers need beyond the database.
type Config struct {
	PublicBaseURL                string
	X402                         x402.Config
	SponsoredApiCreatePriceCents int64
	SponsoredApiTimeout          time.Duration
}

// Init initializes the handlers with database, logger, metrics, config and
// the payment verifier selected at startup
func Init(database *sql.DB, log logging.Logger, paymasterMetrics *PaymasterMetrics, conf Config, paymentVerifier Verifier) {
	db = database
	logger = log
	metrics = paymasterMetrics
	cfg = conf
	verifier = paymentVerifier
	upstream = resty.New().SetTimeout(conf.SponsoredApiTimeout)
}

// observeQuery records database metrics for one query.
func observeQuery(queryType string, start time.Time, err error) {
	if metrics == nil || metrics.DBQueries == nil {
		return
	}
	status := "success"
	if err != nil && err != sql.ErrNoRows {
		status = "error"
	}
	metrics.DBQueries.WithLabelValues(queryType, status).Inc()
	metrics.DBDuration.WithLabelValues(queryType).Observe(time.Since(start).Seconds())
}
