package stellar

import (
	"github.com/stellar/go/amount"
)

// AggregateBalances converts a raw account balance list into a BalanceMap
// keyed by asset symbol, with the native asset under "XLM".
//
// The result is all-or-nothing: a malformed balance string fails the whole
// aggregation so callers can keep their previous map instead of showing a
// partially cleared one. Same-code assets from different issuers collapse
// onto one key; the issuer is still carried on Balance.Asset for callers
// that need to distinguish them.
func AggregateBalances(balances []Balance) (BalanceMap, error) {
	out := make(BalanceMap, len(balances))
	for _, b := range balances {
		stroops, err := amount.ParseInt64(b.Amount)
		if err != nil {
			return nil, &ParseError{
				Field: "balance",
				Value: b.Amount,
				Err:   err,
			}
		}
		out[b.Asset.Symbol()] += float64(stroops) / stroopsPerUnit
	}
	return out, nil
}
