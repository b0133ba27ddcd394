package pools

import "strings"

const (
	minTVLUsd    = 200_000
	minAPY       = 3
	symbolMarker = "ETH"
)

var allowedChains = []string{
	"Ethereum",
	"Polygon",
	"Base",
	"Optimism",
	"Arbitrum",
	"Avalanche",
	"zkSync Era",
	"Polygon zkEVM",
}

// Criteria is the predicate a Record must satisfy to become a Pool.
// Thresholds are exclusive.
type Criteria struct {
	MinTVLUsd      float64
	MinAPY         float64
	Chains         map[string]bool
	SymbolContains string
}

// DefaultCriteria returns the ETH pool rules: TVL above $200k, APY above 3%,
// an allow-listed chain, no impermanent-loss risk, not a stablecoin pool and
// "ETH" somewhere in the symbol.
func DefaultCriteria() Criteria {
	chains := make(map[string]bool, len(allowedChains))
	for _, c := range allowedChains {
		chains[c] = true
	}
	return Criteria{
		MinTVLUsd:      minTVLUsd,
		MinAPY:         minAPY,
		Chains:         chains,
		SymbolContains: symbolMarker,
	}
}

// Match reports whether r passes every rule.
func (c Criteria) Match(r Record) bool {
	return r.TVLUsd > c.MinTVLUsd &&
		r.APY > c.MinAPY &&
		c.Chains[r.Chain] &&
		r.ILRisk == "no" &&
		!r.Stablecoin &&
		strings.Contains(r.Symbol, c.SymbolContains)
}

// Filter returns the matching records, in input order, projected to Pools.
func Filter(records []Record, c Criteria) []Pool {
	out := make([]Pool, 0, len(records))
	for _, r := range records {
		if c.Match(r) {
			out = append(out, project(r))
		}
	}
	return out
}

// Record converts a Pool back to a Record. The result satisfies the default
// risk rules (ILRisk "no", not a stablecoin).
func (p Pool) Record() Record {
	return Record{
		Chain:            p.Chain,
		Project:          p.Project,
		Symbol:           p.Symbol,
		TVLUsd:           p.TVLUsd,
		APYBase:          p.APYBase,
		APYReward:        p.APYReward,
		APY:              p.APY,
		RewardTokens:     p.RewardTokens,
		Pool:             p.Pool,
		APYPct1D:         p.APYPct1D,
		APYPct7D:         p.APYPct7D,
		APYPct30D:        p.APYPct30D,
		UnderlyingTokens: p.UnderlyingTokens,
		APYMean30d:       p.APYMean30d,
		ILRisk:           "no",
		Stablecoin:       false,
	}
}

// SplitNew partitions filtered into pools whose identifier is not in known
// (fresh) and those that are (seen). Both keep input order. A pool id that
// repeats within filtered is fresh only on its first occurrence.
func SplitNew(known IDSet, filtered []Pool) (fresh, seen []Pool) {
	batch := make(map[string]struct{})
	for _, p := range filtered {
		if known.Has(p.Pool) {
			seen = append(seen, p)
			continue
		}
		if _, dup := batch[p.Pool]; dup {
			seen = append(seen, p)
			continue
		}
		batch[p.Pool] = struct{}{}
		fresh = append(fresh, p)
	}
	return fresh, seen
}
