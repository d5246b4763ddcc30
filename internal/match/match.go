// Package match recovers action/notes recommendations for a pool from
// AI-generated efficiency issues. The AI phrases pool identifiers
// inconsistently (mixed case, spacing, separators), so matching is
// fuzzy: an exact normalized comparison first, then a structural
// fallback on the protocol/funding/market triple.
package match

import (
	"regexp"
	"strings"

	"github.com/mon-metrics/incentive-dashboard/internal/model"
)

var idSeparators = regexp.MustCompile(`[\s-]+`)

// Normalize canonicalizes a pool identifier for comparison: lowercase,
// trimmed, with runs of whitespace and hyphens collapsed to a single
// hyphen. "Uniswap - MON Pool" and "uniswap-mon-pool" normalize to the
// same key.
func Normalize(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = idSeparators.ReplaceAllString(id, "-")
	return strings.Trim(id, "-")
}

// splitPoolID breaks a normalized id into its (protocol, funding,
// market) parts on the first two hyphens. The market name may itself
// contain hyphens; it is everything after the second one.
func splitPoolID(id string) (protocol, funding, market string, ok bool) {
	parts := strings.SplitN(id, "-", 3)
	if len(parts) < 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// Find returns the recommendation for poolID from the issue list, or a
// zero Recommendation (Matched=false) when nothing applies. Absence of
// a match is a valid terminal outcome; callers must not fall back to a
// remote AI call per row.
//
// Exact normalized matches always win. The structural fallback requires
// protocol and funding to match exactly and accepts market names that
// are equal or substrings of each other. The substring rule tolerates
// AI paraphrasing of market names at the cost of occasional false
// positives on short names ("MON" matches "MON-USDC"); that tradeoff is
// intentional. When several candidates survive, the first in list order
// wins.
func Find(poolID string, issues []model.EfficiencyIssue) model.Recommendation {
	if len(issues) == 0 {
		return model.Recommendation{}
	}

	query := Normalize(poolID)

	for _, issue := range issues {
		if Normalize(issue.PoolID) == query {
			return extract(issue)
		}
	}

	qProtocol, qFunding, qMarket, ok := splitPoolID(query)
	if !ok {
		return model.Recommendation{}
	}

	for _, issue := range issues {
		cProtocol, cFunding, cMarket, ok := splitPoolID(Normalize(issue.PoolID))
		if !ok {
			continue
		}
		if cProtocol != qProtocol || cFunding != qFunding {
			continue
		}
		if cMarket == qMarket || strings.Contains(cMarket, qMarket) || strings.Contains(qMarket, cMarket) {
			return extract(issue)
		}
	}

	return model.Recommendation{}
}

// extract derives the action/notes pair from a matched issue. The
// action is the recommendation text up to the first sentence
// terminator; the notes prefer the issue's reasoning over the full
// recommendation. A matched issue with an empty recommendation yields
// nothing usable, so it reads as no match.
func extract(issue model.EfficiencyIssue) model.Recommendation {
	rec := strings.TrimSpace(issue.Recommendation)
	if rec == "" {
		return model.Recommendation{}
	}

	action := rec
	if i := strings.Index(rec, "."); i >= 0 {
		action = rec[:i]
	}

	notes := strings.TrimSpace(issue.Issue)
	if notes == "" {
		notes = rec
	}

	return model.Recommendation{
		Action:  strings.TrimSpace(action),
		Notes:   notes,
		Matched: true,
	}
}
