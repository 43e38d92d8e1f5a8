package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/open-sustainability/heron/internal/bus"
	"github.com/open-sustainability/heron/internal/cache"
	"github.com/open-sustainability/heron/internal/domain"
	"github.com/open-sustainability/heron/internal/ledger"
	"github.com/open-sustainability/heron/internal/metrics"
	"github.com/open-sustainability/heron/internal/rules"
)

// stubRepo is an in-memory repository for handler tests.
type stubRepo struct {
	ruleSets map[string]*domain.RuleSet
}

func newStubRepo() *stubRepo {
	return &stubRepo{ruleSets: make(map[string]*domain.RuleSet)}
}

func (s *stubRepo) SaveRuleSet(ctx context.Context, rs *domain.RuleSet) error {
	if _, ok := s.ruleSets[rs.Version]; ok {
		return fmt.Errorf("%w: %s", domain.ErrRuleSetExists, rs.Version)
	}
	s.ruleSets[rs.Version] = rs
	return nil
}

func (s *stubRepo) GetRuleSet(ctx context.Context, version string) (*domain.RuleSet, error) {
	return s.ruleSets[version], nil
}

func (s *stubRepo) ListRuleSets(ctx context.Context) ([]*domain.RuleSet, error) {
	out := make([]*domain.RuleSet, 0, len(s.ruleSets))
	for _, rs := range s.ruleSets {
		out = append(out, rs)
	}
	return out, nil
}

func (s *stubRepo) EarnBadge(ctx context.Context, identity, badgeID string) (bool, error) {
	return false, nil
}
func (s *stubRepo) ListBadges(ctx context.Context, identity string) ([]string, error) {
	return nil, nil
}
func (s *stubRepo) SaveScoreRecord(ctx context.Context, rec *domain.ScoreRecord) error   { return nil }
func (s *stubRepo) SaveRewardRecord(ctx context.Context, rec *domain.RewardRecord) error { return nil }
func (s *stubRepo) Ping(ctx context.Context) error                                       { return nil }
func (s *stubRepo) Close() error                                                         { return nil }

func testRuleSet() *domain.RuleSet {
	return &domain.RuleSet{
		Version:     "2025-01",
		Name:        "Product Scorecard",
		WeightTotal: domain.WeightTotalPercent,
		Categories: []domain.CategoryWeight{
			{Category: "materials", Weight: 60, Expression: `numeric["materialsScore"]`, Requires: []string{"materialsScore"}},
			{Category: "packaging", Weight: 40, Expression: `numeric["packagingScore"]`, Requires: []string{"packagingScore"}},
		},
		Tiers: []domain.TierThreshold{
			{MinScore: 95, Tier: "A+"},
			{MinScore: 90, Tier: "A"},
			{MinScore: 80, Tier: "B"},
			{MinScore: 70, Tier: "C"},
			{MinScore: 0, Tier: "D"},
		},
		BaseValue: 10,
		Bonuses: []domain.BonusRule{
			{ID: "plastic-free", When: `boolean["plasticFree"]`, Points: 20, BadgeID: "plastic-free-hero", Message: "Plastic-free packaging", Requires: []string{"plasticFree"}},
			{ID: "organic", When: `boolean["organic"]`, Points: 10, BadgeID: "organic-champion", Message: "Certified organic", Requires: []string{"organic"}},
			{ID: "chemical-free", When: `boolean["chemicalFree"]`, Points: 5, BadgeID: "clean-living-advocate", Message: "No harsh chemicals", Requires: []string{"chemicalFree"}},
			{ID: "high-recycled", When: `numeric["recycledContent"] > 80.0`, Points: 15, BadgeID: "circular-economy-hero", Message: "Mostly recycled materials", Requires: []string{"recycledContent"}},
			{ID: "low-water", When: `numeric["waterUsage"] < 2.0`, Points: 8, Message: "Low water footprint", Requires: []string{"waterUsage"}},
		},
		Actions: []domain.ActionRule{
			{Classification: "Like New", Action: "Resell", Priority: 1},
			{Classification: "Minor Wear", Action: "Resell", Priority: 1},
			{Classification: "Moderate Wear", Action: "Repair", Priority: 1},
			{Classification: "Major Damage", Action: "Recycle", Priority: 1},
			{Classification: "Major Damage", Action: "Dispose", Priority: 1},
		},
		Enabled: true,
	}
}

func newTestServer(t *testing.T) (*Server, *stubRepo) {
	t.Helper()

	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	repo := newStubRepo()
	rs := testRuleSet()
	if err := repo.SaveRuleSet(context.Background(), rs); err != nil {
		t.Fatalf("failed to seed repo: %v", err)
	}
	if err := engine.Load(rs); err != nil {
		t.Fatalf("failed to load rule set: %v", err)
	}

	eventBus := bus.NewChannelBus(10)
	t.Cleanup(func() { eventBus.Close() })

	srv := NewServer(
		domain.ServerConfig{Host: "127.0.0.1", Port: 0},
		repo,
		cache.NewLRUCache(100),
		eventBus,
		engine,
		ledger.NewMemory(),
		metrics.New(),
		"test",
		0,
	)
	return srv, repo
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestScoreEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("WeightedScoreAndTier", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/score", ScoreRequest{
			Profile: domain.AttributeProfile{
				ID:      "prod-001",
				Numeric: map[string]float64{"materialsScore": 90, "packagingScore": 75},
			},
			RuleSetVersion: "2025-01",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		result := decodeBody[domain.ScoreResult](t, rec)
		if result.OverallScore != 84 {
			t.Errorf("expected overall score 84, got %d", result.OverallScore)
		}
		if result.Tier != "B" {
			t.Errorf("expected tier B, got %s", result.Tier)
		}
		if result.CategoryScores["materials"] != 90 {
			t.Errorf("expected materials 90, got %d", result.CategoryScores["materials"])
		}
	})

	t.Run("CacheHitReturnsSameResult", func(t *testing.T) {
		req := ScoreRequest{
			Profile: domain.AttributeProfile{
				ID:      "prod-cache",
				Numeric: map[string]float64{"materialsScore": 100, "packagingScore": 100},
			},
			RuleSetVersion: "2025-01",
		}
		first := doRequest(t, srv, http.MethodPost, "/score", req)
		second := doRequest(t, srv, http.MethodPost, "/score", req)
		if first.Code != http.StatusOK || second.Code != http.StatusOK {
			t.Fatalf("expected 200s, got %d and %d", first.Code, second.Code)
		}
		if first.Body.String() != second.Body.String() {
			t.Errorf("expected identical responses, got %s vs %s", first.Body.String(), second.Body.String())
		}
	})

	t.Run("UnknownVersion", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/score", ScoreRequest{
			Profile:        domain.AttributeProfile{ID: "prod-001", Numeric: map[string]float64{"materialsScore": 1, "packagingScore": 1}},
			RuleSetVersion: "no-such-version",
		})
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("MissingAttribute", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/score", ScoreRequest{
			Profile:        domain.AttributeProfile{ID: "prod-002", Numeric: map[string]float64{"materialsScore": 90}},
			RuleSetVersion: "2025-01",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("InvalidBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestClassifyActionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("MapsClassification", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/classify-action", ClassifyActionRequest{
			RuleSetVersion: "2025-01",
			Classification: "Minor Wear",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[ClassifyActionResponse](t, rec)
		if resp.Action != "Resell" {
			t.Errorf("expected Resell, got %s", resp.Action)
		}
	})

	t.Run("PriorityTieKeepsFirstDeclared", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/classify-action", ClassifyActionRequest{
			RuleSetVersion: "2025-01",
			Classification: "Major Damage",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[ClassifyActionResponse](t, rec)
		if resp.Action != "Recycle" {
			t.Errorf("expected Recycle on tie, got %s", resp.Action)
		}
	})

	t.Run("ClassificationFromProfile", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/classify-action", ClassifyActionRequest{
			RuleSetVersion: "2025-01",
			Profile:        &domain.AttributeProfile{ID: "ret-001", Condition: "Moderate Wear"},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[ClassifyActionResponse](t, rec)
		if resp.Action != "Repair" {
			t.Errorf("expected Repair, got %s", resp.Action)
		}
	})

	t.Run("UnknownClassification", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/classify-action", ClassifyActionRequest{
			RuleSetVersion: "2025-01",
			Classification: "Pristine",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestRewardEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	profile := domain.AttributeProfile{
		ID: "prod-eco",
		Numeric: map[string]float64{
			"recycledContent": 85,
			"waterUsage":      1.5,
		},
		Boolean: map[string]bool{
			"plasticFree":  true,
			"organic":      true,
			"chemicalFree": true,
		},
	}

	t.Run("FullBonusSweep", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/reward", RewardRequest{
			Identity:       "user-001",
			Profile:        profile,
			RuleSetVersion: "2025-01",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		result := decodeBody[domain.RewardResult](t, rec)
		// 10 base + 20 + 10 + 5 + 15 + 8
		if result.Points != 68 {
			t.Errorf("expected 68 points, got %d", result.Points)
		}
		if len(result.NewlyEarnedBadges) != 4 {
			t.Errorf("expected 4 new badges, got %v", result.NewlyEarnedBadges)
		}
		if len(result.Messages) != 5 {
			t.Errorf("expected 5 messages, got %v", result.Messages)
		}
		if result.LedgerDegraded {
			t.Error("did not expect degraded ledger")
		}
	})

	t.Run("RepeatKeepsPointsDropsBadges", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/reward", RewardRequest{
			Identity:       "user-001",
			Profile:        profile,
			RuleSetVersion: "2025-01",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		result := decodeBody[domain.RewardResult](t, rec)
		if result.Points != 68 {
			t.Errorf("expected points to repeat at 68, got %d", result.Points)
		}
		if len(result.NewlyEarnedBadges) != 0 {
			t.Errorf("expected no new badges on repeat, got %v", result.NewlyEarnedBadges)
		}
	})

	t.Run("BadgesEndpointListsEarned", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/badges/user-001", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		resp := decodeBody[map[string]any](t, rec)
		badges, _ := resp["badges"].([]any)
		if len(badges) != 4 {
			t.Errorf("expected 4 badges, got %v", badges)
		}
	})

	t.Run("MissingIdentity", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/reward", RewardRequest{
			Profile:        profile,
			RuleSetVersion: "2025-01",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestRuleSetEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("List", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/rulesets", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		resp := decodeBody[map[string]any](t, rec)
		if resp["count"].(float64) != 1 {
			t.Errorf("expected 1 rule set, got %v", resp["count"])
		}
	})

	t.Run("GetByVersion", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/rulesets/2025-01", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		rs := decodeBody[domain.RuleSet](t, rec)
		if rs.Version != "2025-01" {
			t.Errorf("expected version 2025-01, got %s", rs.Version)
		}
	})

	t.Run("GetUnknownVersion", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/rulesets/1999-01", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("CreateNewVersion", func(t *testing.T) {
		rs := testRuleSet()
		rs.Version = "2025-02"
		rec := doRequest(t, srv, http.MethodPost, "/rulesets", rs)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = doRequest(t, srv, http.MethodGet, "/rulesets/2025-02", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected new version to be loaded, got %d", rec.Code)
		}
	})

	t.Run("CreateExistingVersionConflicts", func(t *testing.T) {
		rs := testRuleSet()
		rec := doRequest(t, srv, http.MethodPost, "/rulesets", rs)
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("CreateInvalidRuleSet", func(t *testing.T) {
		rs := testRuleSet()
		rs.Version = "2025-03"
		rs.Categories[0].Weight = 10 // weights no longer sum to 100
		rec := doRequest(t, srv, http.MethodPost, "/rulesets", rs)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("Reload", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/rulesets/reload", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	health := decodeBody[map[string]string](t, rec)
	if health["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", health["status"])
	}

	rec = doRequest(t, srv, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
}
