// Package worker persists score and reward events to the audit trail
// asynchronously, off the request path.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/open-sustainability/heron/internal/domain"
)

// AuditWorker subscribes to the evaluation topics and writes audit records
// to the repository. Running it off the request path keeps scoring latency
// independent of the database.
type AuditWorker struct {
	bus  domain.EventBus
	repo domain.Repository

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewAuditWorker creates a new audit worker.
func NewAuditWorker(bus domain.EventBus, repo domain.Repository) *AuditWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &AuditWorker{
		bus:    bus,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the score and reward topics.
func (w *AuditWorker) Start() error {
	scoreSub, err := w.bus.Subscribe(w.ctx, domain.TopicScoreEvaluated, w.handleScore)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, scoreSub)

	rewardSub, err := w.bus.Subscribe(w.ctx, domain.TopicRewardGranted, w.handleReward)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, rewardSub)

	slog.Info("audit worker started",
		"topics", []string{domain.TopicScoreEvaluated, domain.TopicRewardGranted},
	)
	return nil
}

// handleScore persists one score evaluation event.
func (w *AuditWorker) handleScore(ctx context.Context, msg *domain.Message) error {
	var result domain.ScoreResult
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		slog.Error("failed to parse score event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	rec := &domain.ScoreRecord{
		ProfileID:      result.ProfileID,
		RuleSetVersion: result.RuleSetVersion,
		OverallScore:   result.OverallScore,
		Tier:           result.Tier,
		CategoryScores: result.CategoryScores,
		EvaluatedAt:    time.Unix(0, msg.Timestamp).UTC(),
	}

	if err := w.repo.SaveScoreRecord(ctx, rec); err != nil {
		slog.Error("failed to save score record",
			"profile_id", result.ProfileID,
			"error", err,
		)
		return err
	}

	slog.Debug("score record saved",
		"profile_id", result.ProfileID,
		"rule_set_version", result.RuleSetVersion,
		"overall_score", result.OverallScore,
		"tier", result.Tier,
	)
	return nil
}

// handleReward persists one reward grant event.
func (w *AuditWorker) handleReward(ctx context.Context, msg *domain.Message) error {
	var result domain.RewardResult
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		slog.Error("failed to parse reward event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	rec := &domain.RewardRecord{
		Identity:       result.Identity,
		ProfileID:      result.ProfileID,
		RuleSetVersion: result.RuleSetVersion,
		Points:         result.Points,
		Badges:         result.NewlyEarnedBadges,
		Messages:       result.Messages,
		LedgerDegraded: result.LedgerDegraded,
		GrantedAt:      time.Unix(0, msg.Timestamp).UTC(),
	}

	if err := w.repo.SaveRewardRecord(ctx, rec); err != nil {
		slog.Error("failed to save reward record",
			"identity", result.Identity,
			"error", err,
		)
		return err
	}

	slog.Debug("reward record saved",
		"identity", result.Identity,
		"points", result.Points,
		"new_badges", len(result.NewlyEarnedBadges),
	)
	return nil
}

// Stop unsubscribes from all topics.
func (w *AuditWorker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("audit worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *AuditWorker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
