// Package worker consumes decision events and maintains rolling
// verification statistics.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Counter keys for rolling decision statistics. The cache namespaces
// nothing on its own, so keys carry the full prefix.
const (
	counterSubmissions = "kestrel:stats:submissions"
	counterAlerts      = "kestrel:stats:alerts"
	counterPrefix      = "kestrel:stats:status:"
)

// statusCounterKey maps a final status to its rolling counter key.
func statusCounterKey(status domain.FinalStatus) string {
	return counterPrefix + strings.ToLower(string(status))
}

// DecisionMessage is the payload published on the decision topic after a
// submission has been scored and persisted.
type DecisionMessage struct {
	SubmissionID      string             `json:"submissionId"`
	UserName          string             `json:"userName"`
	OverallFraudScore int                `json:"overallFraudScore"`
	OverallRiskLevel  domain.RiskLevel   `json:"overallRiskLevel"`
	FinalStatus       domain.FinalStatus `json:"finalStatus"`
	AlertCount        int                `json:"alertCount"`
}

// Worker subscribes to submission decisions, keeps rolling counters for
// the stats endpoint, and fans flagged decisions out to the AML alert
// topic for external consumers.
type Worker struct {
	bus    domain.EventBus
	cache  domain.Cache
	window time.Duration
	logger *slog.Logger

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// CounterWindow is how long a decision contributes to the rolling
	// statistics. Zero means 24 hours.
	CounterWindow time.Duration
}

// NewWorker creates a decision worker.
func NewWorker(bus domain.EventBus, cache domain.Cache, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	window := cfg.CounterWindow
	if window == 0 {
		window = 24 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		cache:  cache,
		window: window,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the decision topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicSubmissionDecision, w.handleDecision)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("decision worker started",
		"topic", domain.TopicSubmissionDecision,
		"counter_window", w.window.String(),
	)
	return nil
}

// handleDecision updates counters for one scored submission.
func (w *Worker) handleDecision(ctx context.Context, msg *domain.Message) error {
	var decision DecisionMessage
	if err := json.Unmarshal(msg.Payload, &decision); err != nil {
		w.logger.Error("failed to parse decision message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if _, err := w.cache.IncrementCounter(ctx, counterSubmissions, w.window); err != nil {
		w.logger.Error("failed to increment submission counter", "error", err)
	}

	if _, err := w.cache.IncrementCounter(ctx, statusCounterKey(decision.FinalStatus), w.window); err != nil {
		w.logger.Error("failed to increment status counter",
			"status", decision.FinalStatus,
			"error", err,
		)
	}

	if decision.AlertCount > 0 {
		if _, err := w.cache.IncrementCounter(ctx, counterAlerts, w.window); err != nil {
			w.logger.Error("failed to increment alert counter", "error", err)
		}

		// Flagged submissions with alerts are re-published for AML
		// consumers (case management, SIEM forwarders).
		if err := w.bus.Publish(ctx, domain.TopicAmlAlert, msg.Payload); err != nil {
			w.logger.Error("failed to publish AML alert",
				"submission_id", decision.SubmissionID,
				"error", err,
			)
		}
	}

	w.logger.Debug("decision recorded",
		"submission_id", decision.SubmissionID,
		"final_status", decision.FinalStatus,
		"fraud_score", decision.OverallFraudScore,
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	w.logger.Info("decision worker stopped")
	return nil
}

// Stats returns worker subscription statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

// DecisionStats is a snapshot of the rolling counters.
type DecisionStats struct {
	Submissions int64 `json:"submissions"`
	AutoPass    int64 `json:"autoPass"`
	Review      int64 `json:"review"`
	Flagged     int64 `json:"flagged"`
	AmlAlerts   int64 `json:"amlAlerts"`
}

// Snapshot reads the rolling counters without modifying them.
func Snapshot(ctx context.Context, cache domain.Cache) (DecisionStats, error) {
	var stats DecisionStats
	var err error

	if stats.Submissions, err = cache.GetCounter(ctx, counterSubmissions); err != nil {
		return stats, err
	}
	if stats.AutoPass, err = cache.GetCounter(ctx, statusCounterKey(domain.StatusAutoPass)); err != nil {
		return stats, err
	}
	if stats.Review, err = cache.GetCounter(ctx, statusCounterKey(domain.StatusReview)); err != nil {
		return stats, err
	}
	if stats.Flagged, err = cache.GetCounter(ctx, statusCounterKey(domain.StatusFlagged)); err != nil {
		return stats, err
	}
	if stats.AmlAlerts, err = cache.GetCounter(ctx, counterAlerts); err != nil {
		return stats, err
	}

	return stats, nil
}
