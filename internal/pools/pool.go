package pools

// Record is a single pool as reported by the yields provider.
type Record struct {
	Chain            string
	Project          string
	Symbol           string
	TVLUsd           float64
	APYBase          *float64
	APYReward        *float64
	APY              float64
	RewardTokens     []string
	Pool             string
	APYPct1D         *float64
	APYPct7D         *float64
	APYPct30D        *float64
	UnderlyingTokens []string
	APYMean30d       *float64
	ILRisk           string
	Stablecoin       bool
}

// Pool is a Record that passed the filter. ILRisk and Stablecoin are dropped
// since every Pool is known to satisfy them.
type Pool struct {
	Chain            string
	Project          string
	Symbol           string
	TVLUsd           float64
	APYBase          *float64
	APYReward        *float64
	APY              float64
	RewardTokens     []string
	Pool             string
	APYPct1D         *float64
	APYPct7D         *float64
	APYPct30D        *float64
	UnderlyingTokens []string
	APYMean30d       *float64
}

// IDSet holds pool identifiers already present in the store.
type IDSet map[string]struct{}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func project(r Record) Pool {
	return Pool{
		Chain:            r.Chain,
		Project:          r.Project,
		Symbol:           r.Symbol,
		TVLUsd:           r.TVLUsd,
		APYBase:          r.APYBase,
		APYReward:        r.APYReward,
		APY:              r.APY,
		RewardTokens:     r.RewardTokens,
		Pool:             r.Pool,
		APYPct1D:         r.APYPct1D,
		APYPct7D:         r.APYPct7D,
		APYPct30D:        r.APYPct30D,
		UnderlyingTokens: r.UnderlyingTokens,
		APYMean30d:       r.APYMean30d,
	}
}
