package market

import (
	"strings"

	"market-gateway/pkg/apierr"
)

// Market is the exchange region of a symbol.
type Market string

const (
	MarketUS Market = "US"
	MarketHK Market = "HK"
	MarketCN Market = "CN"
	MarketSG Market = "SG"
)

// ParseSymbol splits "<code>.<market>" and validates both halves.
func ParseSymbol(symbol string) (code string, m Market, err error) {
	idx := strings.LastIndexByte(symbol, '.')
	if idx <= 0 || idx == len(symbol)-1 {
		return "", "", apierr.Invalid("symbol", "%q is not <code>.<market>", symbol)
	}
	code = symbol[:idx]
	switch suffix := strings.ToUpper(symbol[idx+1:]); suffix {
	case "US":
		m = MarketUS
	case "HK":
		m = MarketHK
	case "SG":
		m = MarketSG
	case "SH", "SZ":
		m = MarketCN
	default:
		return "", "", apierr.Invalid("symbol", "%q has unknown market %q", symbol, suffix)
	}
	return code, m, nil
}

// MarketOf returns the market of a symbol, or "" when it cannot be parsed.
func MarketOf(symbol string) Market {
	_, m, err := ParseSymbol(symbol)
	if err != nil {
		return ""
	}
	return m
}

// ValidateSymbols checks every symbol and rejects an empty list.
func ValidateSymbols(symbols []string) error {
	if len(symbols) == 0 {
		return apierr.Invalid("symbols", "empty symbol list")
	}
	for _, s := range symbols {
		if _, _, err := ParseSymbol(s); err != nil {
			return err
		}
	}
	return nil
}
