package oracle

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mon-metrics/incentive-dashboard/internal/config"
	"github.com/mon-metrics/incentive-dashboard/internal/model"
)

// monChain is the DefiLlama chain key TVL figures are read from.
const monChain = "Monad"

// TVLClient fetches protocol TVL from a DefiLlama-compatible API.
type TVLClient struct {
	baseURL string
	client  *http.Client
}

func NewTVLClient(cfg config.Config) *TVLClient {
	return &TVLClient{
		baseURL: cfg.LlamaAPIURL,
		client:  newRetryClient(cfg.MarketTimeout),
	}
}

type llamaProtocol struct {
	CurrentChainTvls map[string]float64 `json:"currentChainTvls"`
	TVL              []struct {
		Date              int64   `json:"date"`
		TotalLiquidityUSD float64 `json:"totalLiquidityUSD"`
	} `json:"tvl"`
}

// TVL returns the protocol's Monad TVL as of the given day. Recent days
// use the live figure; older days are looked up in the protocol's TVL
// history and flagged Historical so the dashboard can label them.
func (c *TVLClient) TVL(ctx context.Context, slug string, asOf time.Time) (model.TVLResult, error) {
	start := time.Now()
	result, err := c.tvl(ctx, slug, asOf)
	observe("tvl", start, err)
	return result, err
}

func (c *TVLClient) tvl(ctx context.Context, slug string, asOf time.Time) (model.TVLResult, error) {
	var proto llamaProtocol
	url := fmt.Sprintf("%s/protocol/%s", c.baseURL, slug)
	if err := getJSON(ctx, c.client, url, nil, &proto); err != nil {
		return model.TVLResult{}, fmt.Errorf("tvl API %s: %w", slug, err)
	}

	// A day that is still within the live window reads the current
	// figure; history points lag by up to a day.
	if time.Since(asOf) < 48*time.Hour {
		if v, ok := proto.CurrentChainTvls[monChain]; ok && v > 0 {
			return model.TVLResult{Value: model.Float(v)}, nil
		}
	}

	point, ok := c.historyAt(proto, asOf)
	if !ok {
		return model.TVLResult{}, fmt.Errorf("tvl API %s: no figure for %s", slug, asOf.Format("2006-01-02"))
	}
	return model.TVLResult{Value: model.Float(point), Historical: true}, nil
}

// historyAt picks the history point closest to asOf, rejecting anything
// more than three days away. A protocol listed last month has no figure
// for a week it did not exist in.
func (c *TVLClient) historyAt(proto llamaProtocol, asOf time.Time) (float64, bool) {
	const tolerance = 3 * 24 * time.Hour

	target := asOf.Unix()
	var (
		best     float64
		bestDist int64 = -1
	)
	for _, p := range proto.TVL {
		dist := p.Date - target
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best = p.TotalLiquidityUSD
			bestDist = dist
		}
	}
	if bestDist < 0 || bestDist > int64(tolerance.Seconds()) || best <= 0 {
		return 0, false
	}
	return best, true
}
