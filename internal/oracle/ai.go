package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mon-metrics/incentive-dashboard/internal/config"
	"github.com/mon-metrics/incentive-dashboard/internal/model"
)

const analysisSystemPrompt = `You are an analyst reviewing weekly DeFi incentive spend on the Monad network.
Given this week's and last week's per-pool MON incentive figures, identify pools where spend is inefficient
(high cost against TVL or volume, sharp week-over-week growth without matching activity).
Respond with JSON only: {"summary": "<2-3 sentence overview>",
"efficiencyIssues": [{"poolId": "<protocol-funding-market>", "issue": "<what is wrong>",
"recommendation": "<action sentence. optional detail.>"}]}.`

// AnalysisClient generates the optional efficiency commentary through
// an OpenAI-compatible chat completions API.
type AnalysisClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewAnalysisClient(cfg config.Config) *AnalysisClient {
	return &AnalysisClient{
		baseURL: cfg.AIAPIURL,
		apiKey:  cfg.AIAPIKey,
		model:   cfg.AIModel,
		client:  newRetryClient(cfg.AITimeout),
	}
}

// Configured reports whether an API key is present. Enrichment is
// skipped entirely, not failed, when the key is absent.
func (c *AnalysisClient) Configured() bool { return c.apiKey != "" }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate asks the model for a spend-efficiency read on the week. The
// reply is expected as JSON; a reply that is not JSON is preserved
// verbatim in Analysis.Raw rather than discarded, the commentary is
// advisory either way.
func (c *AnalysisClient) Generate(ctx context.Context, current, previous []model.PoolRow) (*model.Analysis, error) {
	start := time.Now()
	analysis, err := c.generate(ctx, current, previous)
	observe("ai", start, err)
	return analysis, err
}

func (c *AnalysisClient) generate(ctx context.Context, current, previous []model.PoolRow) (*model.Analysis, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("ai API: no api key configured")
	}

	userPayload, err := json.Marshal(map[string]any{
		"currentWeek":  current,
		"previousWeek": previous,
	})
	if err != nil {
		return nil, fmt.Errorf("ai API: marshal pools: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: string(userPayload)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("ai API: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ai API: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ai API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, fmt.Errorf("ai API: status %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("ai API: decode response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("ai API: empty choices")
	}

	return parseAnalysis(chat.Choices[0].Message.Content), nil
}

// parseAnalysis decodes the model's reply. Models sometimes wrap JSON
// in a markdown fence; strip it before decoding.
func parseAnalysis(content string) *model.Analysis {
	text := strings.TrimSpace(content)
	if stripped, ok := strings.CutPrefix(text, "```json"); ok {
		text = stripped
	} else if stripped, ok := strings.CutPrefix(text, "```"); ok {
		text = stripped
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)

	var analysis model.Analysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return &model.Analysis{Raw: content}
	}
	return &analysis
}
