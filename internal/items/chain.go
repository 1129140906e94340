package items

import (
	"fmt"
	"math/big"
	"strings"
)

// Chain is the blockchain an item is listed on.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainPolygon  Chain = "polygon"
	ChainKlaytn   Chain = "klaytn"
	ChainSolana   Chain = "solana"
)

type chainRules struct {
	minPrice string
	decimals int
	currency string
}

var rules = map[Chain]chainRules{
	ChainEthereum: {minPrice: "0.000001", decimals: 18, currency: "ETH"},
	ChainPolygon:  {minPrice: "0.000001", decimals: 18, currency: "ETH"},
	ChainKlaytn:   {minPrice: "0.000001", decimals: 18, currency: "KLAY"},
	ChainSolana:   {minPrice: "0.01", decimals: 9, currency: "SOL"},
}

// ParseChain accepts chain names case-insensitively, plus common aliases.
func ParseChain(s string) (Chain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ethereum", "eth", "mainnet":
		return ChainEthereum, nil
	case "polygon", "matic":
		return ChainPolygon, nil
	case "klaytn", "klay":
		return ChainKlaytn, nil
	case "solana", "sol":
		return ChainSolana, nil
	}
	return "", fmt.Errorf("unsupported blockchain %q", s)
}

// Currency returns the symbol prices are quoted in on the chain.
func (c Chain) Currency() string {
	return rules[c].currency
}

// CheckPrice reports whether price is a listable amount on chain: a positive
// plain decimal with no more fractional digits than the chain supports, at
// or above the chain's minimum.
func CheckPrice(price string, chain Chain) error {
	r, ok := rules[chain]
	if !ok {
		return fmt.Errorf("unsupported blockchain %q", chain)
	}
	price = strings.TrimSpace(price)
	if price == "" {
		return fmt.Errorf("price is empty")
	}
	for _, c := range price {
		if (c < '0' || c > '9') && c != '.' {
			return fmt.Errorf("price %q is not a plain decimal", price)
		}
	}
	if strings.Count(price, ".") > 1 || strings.HasPrefix(price, ".") || strings.HasSuffix(price, ".") {
		return fmt.Errorf("price %q is not a plain decimal", price)
	}
	if i := strings.IndexByte(price, '.'); i >= 0 && len(price)-i-1 > r.decimals {
		return fmt.Errorf("price %q has more than %d decimals allowed on %s", price, r.decimals, chain)
	}

	value, ok := new(big.Rat).SetString(price)
	if !ok {
		return fmt.Errorf("price %q is not a number", price)
	}
	minimum, _ := new(big.Rat).SetString(r.minPrice)
	if value.Cmp(minimum) < 0 {
		return fmt.Errorf("price %s is below the %s minimum of %s %s", price, chain, r.minPrice, r.currency)
	}
	return nil
}
