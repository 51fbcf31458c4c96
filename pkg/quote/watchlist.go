package quote

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"market-gateway/internal/jsonx"
	"market-gateway/pkg/apierr"
	"market-gateway/pkg/market"
)

const watchlistPath = "/v1/watchlist/groups"

type WatchlistSecurity struct {
	Symbol       string
	Market       string
	Name         string
	WatchedPrice *decimal.Decimal
	WatchedAt    time.Time
}

type WatchlistGroup struct {
	ID         int64
	Name       string
	Securities []WatchlistSecurity
}

// SecuritiesUpdateMode selects how UpdateWatchlistGroup applies Securities.
type SecuritiesUpdateMode string

const (
	UpdateAdd     SecuritiesUpdateMode = "add"
	UpdateRemove  SecuritiesUpdateMode = "remove"
	UpdateReplace SecuritiesUpdateMode = "replace"
)

// UpdateWatchlistGroup changes a group. Nil fields are left as they are.
type UpdateWatchlistGroup struct {
	ID         int64
	Name       *string
	Securities []string
	Mode       SecuritiesUpdateMode
}

type watchlistSecurityJSON struct {
	Symbol       string          `json:"symbol"`
	Market       string          `json:"market"`
	Name         string          `json:"name"`
	WatchedPrice jsonx.Decimal   `json:"watched_price"`
	WatchedAt    jsonx.Timestamp `json:"watched_at"`
}

type watchlistGroupJSON struct {
	ID         jsonx.Int64             `json:"id"`
	Name       string                  `json:"name"`
	Securities []watchlistSecurityJSON `json:"securities"`
}

func (qc *QuoteContext) restClient() error {
	if qc.http == nil {
		return fmt.Errorf("%w: no http client configured", apierr.ErrNotConnected)
	}
	return nil
}

// Watchlist returns every watchlist group of the account.
func (qc *QuoteContext) Watchlist(ctx context.Context) ([]WatchlistGroup, error) {
	if err := qc.restClient(); err != nil {
		return nil, err
	}
	var resp struct {
		Groups []watchlistGroupJSON `json:"groups"`
	}
	if err := qc.http.Get(ctx, watchlistPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("watchlist: %w", err)
	}
	out := make([]WatchlistGroup, 0, len(resp.Groups))
	for _, g := range resp.Groups {
		group := WatchlistGroup{ID: int64(g.ID), Name: g.Name}
		for _, s := range g.Securities {
			group.Securities = append(group.Securities, WatchlistSecurity{
				Symbol:       s.Symbol,
				Market:       s.Market,
				Name:         s.Name,
				WatchedPrice: s.WatchedPrice.Ptr(),
				WatchedAt:    s.WatchedAt.Time,
			})
		}
		out = append(out, group)
	}
	return out, nil
}

// CreateWatchlistGroup creates a group and returns its id.
func (qc *QuoteContext) CreateWatchlistGroup(ctx context.Context, name string, securities []string) (int64, error) {
	if name == "" {
		return 0, apierr.Invalid("name", "required")
	}
	for _, s := range securities {
		if _, _, err := market.ParseSymbol(s); err != nil {
			return 0, err
		}
	}
	if err := qc.restClient(); err != nil {
		return 0, err
	}
	body := struct {
		Name       string   `json:"name"`
		Securities []string `json:"securities,omitempty"`
	}{name, securities}
	var resp struct {
		ID jsonx.Int64 `json:"id"`
	}
	if err := qc.http.Post(ctx, watchlistPath, body, &resp); err != nil {
		return 0, fmt.Errorf("create watchlist group: %w", err)
	}
	return int64(resp.ID), nil
}

// DeleteWatchlistGroup removes a group. With purge the securities are also
// removed from every other group.
func (qc *QuoteContext) DeleteWatchlistGroup(ctx context.Context, id int64, purge bool) error {
	if id <= 0 {
		return apierr.Invalid("id", "must be positive")
	}
	if err := qc.restClient(); err != nil {
		return err
	}
	q := url.Values{}
	q.Set("id", strconv.FormatInt(id, 10))
	q.Set("purge", strconv.FormatBool(purge))
	if err := qc.http.Delete(ctx, watchlistPath, q, nil, nil); err != nil {
		return fmt.Errorf("delete watchlist group %d: %w", id, err)
	}
	return nil
}

func (qc *QuoteContext) UpdateWatchlistGroup(ctx context.Context, req UpdateWatchlistGroup) error {
	if req.ID <= 0 {
		return apierr.Invalid("id", "must be positive")
	}
	if req.Securities != nil {
		switch req.Mode {
		case UpdateAdd, UpdateRemove, UpdateReplace:
		default:
			return apierr.Invalid("mode", "unknown mode %q", req.Mode)
		}
		for _, s := range req.Securities {
			if _, _, err := market.ParseSymbol(s); err != nil {
				return err
			}
		}
	}
	if err := qc.restClient(); err != nil {
		return err
	}
	body := struct {
		ID         int64    `json:"id"`
		Name       *string  `json:"name,omitempty"`
		Securities []string `json:"securities,omitempty"`
		Mode       string   `json:"mode,omitempty"`
	}{ID: req.ID, Name: req.Name}
	if req.Securities != nil {
		body.Securities = req.Securities
		body.Mode = string(req.Mode)
	}
	if err := qc.http.Put(ctx, watchlistPath, body, nil); err != nil {
		return fmt.Errorf("update watchlist group %d: %w", req.ID, err)
	}
	return nil
}
