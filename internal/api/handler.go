package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/open-sustainability/heron/internal/domain"
	"github.com/open-sustainability/heron/internal/metrics"
	"github.com/open-sustainability/heron/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *rules.Engine
	ledger   domain.BadgeLedger
	metrics  *metrics.Metrics
	version  string
	scoreTTL time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, ledger domain.BadgeLedger, m *metrics.Metrics, version string, scoreTTL time.Duration) *Handler {
	if scoreTTL <= 0 {
		scoreTTL = 5 * time.Minute
	}
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		engine:   engine,
		ledger:   ledger,
		metrics:  m,
		version:  version,
		scoreTTL: scoreTTL,
	}
}

// ScoreRequest is the request body for POST /score.
type ScoreRequest struct {
	Profile        domain.AttributeProfile `json:"profile"`
	RuleSetVersion string                  `json:"ruleSetVersion"`
}

// Score handles POST /score: weighted category scoring plus tier
// classification for one profile.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.Profile.ID == "" {
		writeError(w, http.StatusBadRequest, "profile.id is required")
		return
	}
	if req.RuleSetVersion == "" {
		writeError(w, http.StatusBadRequest, "ruleSetVersion is required")
		return
	}

	compiled, err := h.engine.Get(req.RuleSetVersion)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	// Results are deterministic per (profile, version), so a cache hit is
	// exact, not approximate.
	if h.cache != nil {
		if cached, err := h.cache.GetScore(ctx, req.Profile.ID, req.RuleSetVersion); err != nil {
			slog.Warn("score cache read failed", "error", err)
		} else if cached != nil {
			if h.metrics != nil {
				h.metrics.RecordCacheHit()
			}
			writeJSON(w, http.StatusOK, cached)
			return
		}
		if h.metrics != nil {
			h.metrics.RecordCacheMiss()
		}
	}

	start := time.Now()
	result, err := compiled.EvaluateScore(&req.Profile)
	if err != nil {
		var missing *domain.MissingAttributeError
		if errors.As(err, &missing) {
			writeError(w, http.StatusBadRequest, missing.Error())
			return
		}
		slog.Error("score evaluation failed",
			"profile_id", req.Profile.ID,
			"rule_set_version", req.RuleSetVersion,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "score evaluation failed")
		return
	}

	if h.metrics != nil {
		h.metrics.RecordEvaluation(result.Tier, time.Since(start).Seconds())
	}

	if h.cache != nil {
		if err := h.cache.SetScore(ctx, result, h.scoreTTL); err != nil {
			slog.Warn("score cache write failed", "error", err)
		}
	}

	h.publish(ctx, domain.TopicScoreEvaluated, result)

	writeJSON(w, http.StatusOK, result)
}

// ClassifyActionRequest is the request body for POST /classify-action.
type ClassifyActionRequest struct {
	RuleSetVersion string `json:"ruleSetVersion"`

	// Classification names the condition label directly. When empty, the
	// profile's categorical attribute is used instead.
	Classification string                   `json:"classification,omitempty"`
	Profile        *domain.AttributeProfile `json:"profile,omitempty"`
}

// ClassifyActionResponse is the response for POST /classify-action.
type ClassifyActionResponse struct {
	Classification string `json:"classification"`
	Action         string `json:"recommendedAction"`
	RuleSetVersion string `json:"ruleSetVersion"`
}

// ClassifyAction handles POST /classify-action: maps a condition label to
// the single recommended action of the rule set.
func (h *Handler) ClassifyAction(w http.ResponseWriter, r *http.Request) {
	var req ClassifyActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.RuleSetVersion == "" {
		writeError(w, http.StatusBadRequest, "ruleSetVersion is required")
		return
	}

	classification := req.Classification
	if classification == "" && req.Profile != nil {
		classification = req.Profile.Condition
	}
	if classification == "" {
		writeError(w, http.StatusBadRequest, "classification or profile.categoricalAttribute is required")
		return
	}

	compiled, err := h.engine.Get(req.RuleSetVersion)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if !compiled.Config.InVocabulary(classification) {
		writeError(w, http.StatusBadRequest, "unknown classification: "+classification)
		return
	}

	action, err := compiled.SelectAction(classification)
	if err != nil {
		// Vocabulary coverage is validated at load, so this is a rule set
		// defect rather than bad input.
		slog.Error("action selection failed",
			"classification", classification,
			"rule_set_version", req.RuleSetVersion,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ClassifyActionResponse{
		Classification: classification,
		Action:         action,
		RuleSetVersion: req.RuleSetVersion,
	})
}

// RewardRequest is the request body for POST /reward.
type RewardRequest struct {
	Identity       string                  `json:"identity"`
	Profile        domain.AttributeProfile `json:"profile"`
	RuleSetVersion string                  `json:"ruleSetVersion"`
}

// badgeEvent is the payload published per first-time badge grant.
type badgeEvent struct {
	Identity string `json:"identity"`
	BadgeID  string `json:"badgeId"`
}

// Reward handles POST /reward: bonus points plus one-time badge grants.
func (h *Handler) Reward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}
	if req.Profile.ID == "" {
		writeError(w, http.StatusBadRequest, "profile.id is required")
		return
	}
	if req.RuleSetVersion == "" {
		writeError(w, http.StatusBadRequest, "ruleSetVersion is required")
		return
	}

	compiled, err := h.engine.Get(req.RuleSetVersion)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	result, err := compiled.ComputeReward(ctx, &req.Profile, req.Identity, h.ledger)
	if err != nil {
		var missing *domain.MissingAttributeError
		if errors.As(err, &missing) {
			writeError(w, http.StatusBadRequest, missing.Error())
			return
		}
		slog.Error("reward computation failed",
			"identity", req.Identity,
			"profile_id", req.Profile.ID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "reward computation failed")
		return
	}

	if h.metrics != nil {
		h.metrics.RecordReward(result.Points, result.NewlyEarnedBadges, result.LedgerDegraded)
	}

	h.publish(ctx, domain.TopicRewardGranted, result)
	for _, badgeID := range result.NewlyEarnedBadges {
		h.publish(ctx, domain.TopicBadgeEarned, badgeEvent{Identity: req.Identity, BadgeID: badgeID})
	}

	writeJSON(w, http.StatusOK, result)
}

// GetBadges handles GET /badges/{identity}: the identity's earned badge set.
func (h *Handler) GetBadges(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	if identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}

	badges, err := h.ledger.Badges(r.Context(), identity)
	if err != nil {
		slog.Error("failed to list badges", "identity", identity, "error", err)
		writeError(w, http.StatusServiceUnavailable, "badge ledger unavailable")
		return
	}
	if badges == nil {
		badges = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"identity": identity,
		"badges":   badges,
	})
}

// ListRuleSets returns all rule sets currently loaded in the engine.
func (h *Handler) ListRuleSets(w http.ResponseWriter, r *http.Request) {
	loaded := h.engine.RuleSets()
	writeJSON(w, http.StatusOK, map[string]any{
		"ruleSets": loaded,
		"count":    len(loaded),
	})
}

// GetRuleSet retrieves a loaded rule set by version.
func (h *Handler) GetRuleSet(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")
	if version == "" {
		writeError(w, http.StatusBadRequest, "rule set version is required")
		return
	}

	compiled, err := h.engine.Get(version)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, compiled.Config)
}

// CreateRuleSet handles POST /rulesets: validates, persists and loads a new
// rule set version. Versions are immutable, so re-posting an existing
// version is a conflict.
func (h *Handler) CreateRuleSet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rs domain.RuleSet
	if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	// Compile first so an invalid rule set is rejected before touching
	// storage.
	if _, err := h.engine.Compile(&rs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleSet(ctx, &rs); err != nil {
			if errors.Is(err, domain.ErrRuleSetExists) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			slog.Error("failed to save rule set", "version", rs.Version, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save rule set")
			return
		}
	}

	if rs.Enabled {
		if err := h.engine.Load(&rs); err != nil {
			slog.Error("failed to load rule set", "version", rs.Version, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load rule set")
			return
		}
	}

	if h.metrics != nil {
		h.metrics.SetRuleSetsLoaded(h.engine.Count())
	}

	slog.Info("rule set created", "version", rs.Version, "name", rs.Name, "enabled", rs.Enabled)
	writeJSON(w, http.StatusCreated, map[string]any{
		"ruleSet": rs,
		"loaded":  rs.Enabled,
	})
}

// ReloadRuleSets reloads all rule sets from storage into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRuleSets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	ruleSets, err := h.repo.ListRuleSets(ctx)
	if err != nil {
		slog.Error("failed to list rule sets from storage", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rule sets from storage")
		return
	}

	if err := h.engine.Reload(ruleSets); err != nil {
		slog.Error("failed to reload rule sets into engine", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload rule sets: "+err.Error())
		return
	}

	if h.metrics != nil {
		h.metrics.SetRuleSetsLoaded(h.engine.Count())
	}

	slog.Info("rule sets reloaded from storage", "count", h.engine.Count())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rule sets reloaded successfully",
		"count":   h.engine.Count(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.ledger != nil {
		if err := h.ledger.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":          true,
		"ruleSetsLoaded": h.engine.Count(),
	})
}

// publish marshals the payload and publishes it, logging failures without
// failing the request.
func (h *Handler) publish(ctx context.Context, topic string, payload any) {
	if h.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := h.bus.Publish(ctx, topic, data); err != nil {
		slog.Error("failed to publish event", "topic", topic, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
