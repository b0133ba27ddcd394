package llama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/web3-frozen/ethyields/internal/pools"
)

// PoolsURL is the DefiLlama yields endpoint.
const PoolsURL = "https://yields.llama.fi/pools"

var (
	// ErrFetch reports an unreachable provider or a body that is not JSON.
	ErrFetch = errors.New("fetch pools")
	// ErrSchema reports a JSON body missing keys the pipeline depends on.
	ErrSchema = errors.New("pools schema")
)

// Response is the validated provider payload.
type Response struct {
	Status string
	Data   []pools.Record
}

type poolsResponse struct {
	Status *string     `json:"status"`
	Data   *[]wirePool `json:"data"`
}

type wirePool struct {
	Chain            *string  `json:"chain"`
	Project          *string  `json:"project"`
	Symbol           *string  `json:"symbol"`
	TVLUsd           *float64 `json:"tvlUsd"`
	APYBase          *float64 `json:"apyBase"`
	APYReward        *float64 `json:"apyReward"`
	APY              *float64 `json:"apy"`
	RewardTokens     []string `json:"rewardTokens"`
	Pool             *string  `json:"pool"`
	APYPct1D         *float64 `json:"apyPct1D"`
	APYPct7D         *float64 `json:"apyPct7D"`
	APYPct30D        *float64 `json:"apyPct30D"`
	UnderlyingTokens []string `json:"underlyingTokens"`
	APYMean30d       *float64 `json:"apyMean30d"`
	ILRisk           *string  `json:"ilRisk"`
	Stablecoin       *bool    `json:"stablecoin"`
}

// Client fetches the pools list from the yields API.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient returns a Client for baseURL. An empty baseURL means PoolsURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = PoolsURL
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchPools issues one GET and returns the validated records. It never retries.
func (c *Client) FetchPools(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: yields API status %d", ErrFetch, resp.StatusCode)
	}

	var body poolsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode pools: %w", ErrFetch, err)
	}
	return body.validate()
}

func (r *poolsResponse) validate() (*Response, error) {
	if r.Status == nil {
		return nil, fmt.Errorf("%w: missing key %q", ErrSchema, "status")
	}
	if r.Data == nil {
		return nil, fmt.Errorf("%w: missing key %q", ErrSchema, "data")
	}

	records := make([]pools.Record, 0, len(*r.Data))
	for i, w := range *r.Data {
		rec, err := w.record()
		if err != nil {
			return nil, fmt.Errorf("%w: data[%d]: %w", ErrSchema, i, err)
		}
		records = append(records, rec)
	}
	return &Response{Status: *r.Status, Data: records}, nil
}

func (w wirePool) record() (pools.Record, error) {
	switch {
	case w.Pool == nil:
		return pools.Record{}, missing("pool")
	case w.Chain == nil:
		return pools.Record{}, missing("chain")
	case w.Project == nil:
		return pools.Record{}, missing("project")
	case w.Symbol == nil:
		return pools.Record{}, missing("symbol")
	case w.TVLUsd == nil:
		return pools.Record{}, missing("tvlUsd")
	case w.APY == nil:
		return pools.Record{}, missing("apy")
	case w.ILRisk == nil:
		return pools.Record{}, missing("ilRisk")
	case w.Stablecoin == nil:
		return pools.Record{}, missing("stablecoin")
	}

	return pools.Record{
		Chain:            *w.Chain,
		Project:          *w.Project,
		Symbol:           *w.Symbol,
		TVLUsd:           *w.TVLUsd,
		APYBase:          w.APYBase,
		APYReward:        w.APYReward,
		APY:              *w.APY,
		RewardTokens:     nonNil(w.RewardTokens),
		Pool:             *w.Pool,
		APYPct1D:         w.APYPct1D,
		APYPct7D:         w.APYPct7D,
		APYPct30D:        w.APYPct30D,
		UnderlyingTokens: nonNil(w.UnderlyingTokens),
		APYMean30d:       w.APYMean30d,
		ILRisk:           *w.ILRisk,
		Stablecoin:       *w.Stablecoin,
	}, nil
}

func missing(field string) error {
	return fmt.Errorf("missing field %q", field)
}

// null and absent token lists both mean "no tokens"
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
