//go:build integration
// +build integration

// Package integration provides end-to-end tests for a running Heron server.
//
// These tests exercise the complete pipeline over HTTP:
//
//	Profile → Score Evaluator → Tier Classifier
//	Profile → Reward Calculator → Badge Ledger
//	Condition → Action Selector
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The server must be started with the sample rule sets from ./rulesets
// loaded (the default configuration does this), e.g.:
//
//	./heron &
//	HERON_TEST_URL=http://localhost:8080 go test -tags=integration ./tests/integration/...
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

const ruleSetVersion = "products-2025-01"

func baseURL() string {
	if url := os.Getenv("HERON_TEST_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func postJSON(t *testing.T, path string, body any, out any) int {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(baseURL()+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response from %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, path string, out any) int {
	t.Helper()

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL() + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response from %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

type scoreResponse struct {
	OverallScore   int            `json:"overallScore"`
	CategoryScores map[string]int `json:"categoryScores"`
	Tier           string         `json:"tier"`
}

type rewardResponse struct {
	Points            int      `json:"points"`
	NewlyEarnedBadges []string `json:"newlyEarnedBadges"`
	Messages          []string `json:"messages"`
	LedgerDegraded    bool     `json:"ledgerDegraded"`
}

func TestHealthy(t *testing.T) {
	var health map[string]string
	if code := getJSON(t, "/health", &health); code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", code)
	}
	if health["status"] != "healthy" {
		t.Fatalf("expected healthy server, got %q", health["status"])
	}
}

func TestScorePipeline(t *testing.T) {
	req := map[string]any{
		"ruleSetVersion": ruleSetVersion,
		"profile": map[string]any{
			"id": fmt.Sprintf("it-prod-%d", time.Now().UnixNano()),
			"numericAttributes": map[string]float64{
				"recycledContent": 90,
				"co2Grams":        150,
				"waterUsage":      1.2,
			},
			"booleanAttributes": map[string]bool{
				"plasticFree": true,
				"compostable": true,
			},
		},
	}

	var resp scoreResponse
	if code := postJSON(t, "/score", req, &resp); code != http.StatusOK {
		t.Fatalf("expected 200 from /score, got %d", code)
	}
	if resp.OverallScore < 0 || resp.OverallScore > 100 {
		t.Errorf("overall score out of range: %d", resp.OverallScore)
	}
	if resp.Tier == "" {
		t.Error("expected a tier label")
	}
	if len(resp.CategoryScores) == 0 {
		t.Error("expected category scores")
	}
}

func TestRewardPipeline(t *testing.T) {
	identity := fmt.Sprintf("it-user-%d", time.Now().UnixNano())
	req := map[string]any{
		"identity":       identity,
		"ruleSetVersion": ruleSetVersion,
		"profile": map[string]any{
			"id": identity + "-profile",
			"numericAttributes": map[string]float64{
				"recycledContent": 85,
				"waterUsage":      1.5,
			},
			"booleanAttributes": map[string]bool{
				"plasticFree":  true,
				"organic":      true,
				"chemicalFree": true,
			},
		},
	}

	var first rewardResponse
	if code := postJSON(t, "/reward", req, &first); code != http.StatusOK {
		t.Fatalf("expected 200 from /reward, got %d", code)
	}
	if first.Points != 68 {
		t.Errorf("expected 68 points, got %d", first.Points)
	}
	if len(first.NewlyEarnedBadges) == 0 {
		t.Error("expected first evaluation to earn badges")
	}

	// Same identity again: points repeat, badges do not.
	var second rewardResponse
	if code := postJSON(t, "/reward", req, &second); code != http.StatusOK {
		t.Fatalf("expected 200 from repeat /reward, got %d", code)
	}
	if second.Points != first.Points {
		t.Errorf("expected repeated points %d, got %d", first.Points, second.Points)
	}
	if len(second.NewlyEarnedBadges) != 0 {
		t.Errorf("expected no new badges on repeat, got %v", second.NewlyEarnedBadges)
	}

	// The ledger reflects the grants.
	var badges struct {
		Badges []string `json:"badges"`
	}
	if code := getJSON(t, "/badges/"+identity, &badges); code != http.StatusOK {
		t.Fatalf("expected 200 from /badges, got %d", code)
	}
	if len(badges.Badges) != len(first.NewlyEarnedBadges) {
		t.Errorf("expected ledger to hold %d badges, got %v", len(first.NewlyEarnedBadges), badges.Badges)
	}
}

func TestActionSelection(t *testing.T) {
	req := map[string]any{
		"ruleSetVersion": "returns-2025-01",
		"classification": "Minor Wear",
	}

	var resp struct {
		Action string `json:"recommendedAction"`
	}
	if code := postJSON(t, "/classify-action", req, &resp); code != http.StatusOK {
		t.Fatalf("expected 200 from /classify-action, got %d", code)
	}
	if resp.Action == "" {
		t.Error("expected a recommended action")
	}
}
