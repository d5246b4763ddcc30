package oracle

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mon-metrics/incentive-dashboard/internal/config"
	"github.com/mon-metrics/incentive-dashboard/internal/model"
)

// RewardsClient fetches incentive campaigns from a Merkl-compatible
// API and folds them into per-protocol weekly MON totals.
type RewardsClient struct {
	baseURL string
	chainID string
	client  *http.Client
}

func NewRewardsClient(cfg config.Config) *RewardsClient {
	return &RewardsClient{
		baseURL: cfg.RewardsAPIURL,
		chainID: cfg.RewardsChainID,
		client:  newRetryClient(cfg.MarketTimeout),
	}
}

// rewardCampaign is the campaigns API wire shape. Amount is the whole
// campaign budget as an integer string scaled by the token's decimals.
type rewardCampaign struct {
	StartTimestamp int64  `json:"startTimestamp"`
	EndTimestamp   int64  `json:"endTimestamp"`
	Amount         string `json:"amount"`

	RewardToken struct {
		Symbol   string `json:"symbol"`
		Decimals int    `json:"decimals"`
	} `json:"rewardToken"`

	// Creator names the funding protocol paying for the campaign;
	// campaigns created on the platform itself carry no name.
	Creator struct {
		Name string `json:"name"`
	} `json:"creator"`

	Opportunity struct {
		Name     string `json:"name"`
		Protocol struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"protocol"`
	} `json:"opportunity"`
}

// WeeklyTotals aggregates MON distributed during [startDate, endDate]
// (inclusive UTC days) into protocol -> funding protocol -> market
// totals. Campaign budgets are pro-rated by the time the campaign
// overlaps the window. The returned slice lists protocols in
// first-seen order, which downstream report rendering preserves.
func (c *RewardsClient) WeeklyTotals(ctx context.Context, startDate, endDate time.Time) (model.IncentiveTotals, []string, error) {
	start := time.Now()
	totals, order, err := c.weeklyTotals(ctx, startDate, endDate)
	observe("rewards", start, err)
	return totals, order, err
}

func (c *RewardsClient) weeklyTotals(ctx context.Context, startDate, endDate time.Time) (model.IncentiveTotals, []string, error) {
	url := fmt.Sprintf("%s/campaigns?chainId=%s&items=500", c.baseURL, c.chainID)

	var campaigns []rewardCampaign
	if err := getJSON(ctx, c.client, url, nil, &campaigns); err != nil {
		return nil, nil, fmt.Errorf("rewards API: %w", err)
	}

	windowStart := startDate.Unix()
	windowEnd := endDate.Unix() + 24*60*60

	totals := model.IncentiveTotals{}
	var order []string

	for _, camp := range campaigns {
		if !strings.EqualFold(camp.RewardToken.Symbol, "MON") {
			continue
		}
		if camp.EndTimestamp <= camp.StartTimestamp {
			continue
		}

		overlap := overlapSeconds(camp.StartTimestamp, camp.EndTimestamp, windowStart, windowEnd)
		if overlap <= 0 {
			continue
		}

		budget, err := parseTokenAmount(camp.Amount, camp.RewardToken.Decimals)
		if err != nil || budget <= 0 {
			continue
		}

		mon := budget * overlap / float64(camp.EndTimestamp-camp.StartTimestamp)

		protocol := campaignProtocol(camp)
		funding := campaignFunding(camp)
		market := campaignMarket(camp)

		if _, seen := totals[protocol]; !seen {
			order = append(order, protocol)
		}
		totals.Add(protocol, funding, market, mon)
	}

	return totals, order, nil
}

func overlapSeconds(start, end, windowStart, windowEnd int64) float64 {
	s := max(start, windowStart)
	e := min(end, windowEnd)
	if e <= s {
		return 0
	}
	return float64(e - s)
}

// parseTokenAmount converts an integer token amount string to a float
// using the token's decimals. Dashboard aggregation tolerates float64
// precision; these are report figures, not accounting entries.
func parseTokenAmount(amount string, decimals int) (float64, error) {
	raw, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if decimals <= 0 {
		decimals = 18
	}
	return raw / math.Pow10(decimals), nil
}

func campaignProtocol(c rewardCampaign) string {
	if id := strings.TrimSpace(c.Opportunity.Protocol.ID); id != "" {
		return strings.ToLower(id)
	}
	if name := strings.TrimSpace(c.Opportunity.Protocol.Name); name != "" {
		return strings.ToLower(name)
	}
	return "unknown"
}

func campaignFunding(c rewardCampaign) string {
	if name := strings.TrimSpace(c.Creator.Name); name != "" {
		return strings.ToLower(name)
	}
	return "merkl"
}

func campaignMarket(c rewardCampaign) string {
	if name := strings.TrimSpace(c.Opportunity.Name); name != "" {
		return name
	}
	return "unknown"
}
