package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/web3-frozen/ethyields/internal/pools"
)

// DateLayout renders dates as "March 05, 2024".
const DateLayout = "January 02, 2006"

// Digest renders the operator message for one run.
func Digest(date time.Time, fresh []pools.Pool) string {
	day := date.Format(DateLayout)
	if len(fresh) == 0 {
		return day + "\n\nNo new ETH pools were found."
	}

	blocks := make([]string, 0, 2*len(fresh))
	for _, p := range fresh {
		blocks = append(blocks, poolBlock(p), "")
	}
	return fmt.Sprintf("%s\n\nNew ETH pools were found:\n%s", day, strings.Join(blocks, "\n"))
}

func poolBlock(p pools.Pool) string {
	return strings.Join([]string{
		"pool : " + p.Pool,
		"chain : " + p.Chain + ",",
		"project : " + p.Project + ",",
		"symbol : " + p.Symbol + ",",
		"tvlUsd : " + formatUSD(p.TVLUsd) + ",",
		fmt.Sprintf("apy : %.2f,", p.APY),
	}, "\n")
}

// formatUSD renders v with thousands separators and two decimals.
func formatUSD(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	if strings.HasPrefix(s, "-") {
		return "-" + addCommas(s[1:])
	}
	return addCommas(s)
}

func addCommas(s string) string {
	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]
	n := len(intPart)
	if n <= 3 {
		return s
	}
	var result []byte
	for i, c := range intPart {
		if i > 0 && (n-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	if len(parts) == 2 {
		return string(result) + "." + parts[1]
	}
	return string(result)
}
