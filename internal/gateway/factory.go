package gateway

import (
	"context"

	"go.uber.org/zap"

	"market-gateway/pkg/config"
	"market-gateway/pkg/httpclient"
	"market-gateway/pkg/i18n"
	"market-gateway/pkg/quote"
	"market-gateway/pkg/trade"
)

// Factory builds the pieces a Manager owns. Zero fields fall back to the
// production constructors.
type Factory struct {
	HTTP  func(c *config.Config, log *zap.Logger) *httpclient.Client
	Quote func(ctx context.Context, cfg quote.Config, log *zap.Logger) (*quote.QuoteContext, error)
	Trade func(ctx context.Context, cfg trade.Config, log *zap.Logger) (*trade.TradeContext, error)
	// Tune adjusts the derived context configs before they are used.
	Tune func(q *quote.Config, t *trade.Config)
}

func DefaultFactory() Factory {
	return Factory{HTTP: NewHTTPClient, Quote: quote.New, Trade: trade.New}
}

func (f Factory) withDefaults() Factory {
	d := DefaultFactory()
	if f.HTTP == nil {
		f.HTTP = d.HTTP
	}
	if f.Quote == nil {
		f.Quote = d.Quote
	}
	if f.Trade == nil {
		f.Trade = d.Trade
	}
	return f
}

// NewHTTPClient builds the signed REST client both contexts share.
func NewHTTPClient(c *config.Config, log *zap.Logger) *httpclient.Client {
	lang, _ := i18n.ParseLanguage(c.Language)
	return httpclient.New(httpclient.Config{
		BaseURL:     c.HTTPURL,
		AppKey:      c.AppKey,
		AppSecret:   c.AppSecret,
		AccessToken: c.AccessToken,
		Language:    lang,
		Timeout:     c.RequestTimeout,
	}, log)
}
