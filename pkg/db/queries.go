package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrNotFound = errors.New("record not found")

const insertOrderEvent = `
	INSERT INTO order_events (id, order_id, symbol, side, order_type, status,
		submitted_quantity, submitted_price, executed_quantity, executed_price,
		currency, msg, updated_at, received_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertOrderEventQuery returns the insert statement and its arguments for
// batch writers.
func (d *Database) InsertOrderEventQuery(ev OrderEvent) (string, []any) {
	return d.Rebind(insertOrderEvent), []any{
		ev.ID, ev.OrderID, ev.Symbol, ev.Side, ev.OrderType, ev.Status,
		ev.SubmittedQuantity, ev.SubmittedPrice, ev.ExecutedQuantity, ev.ExecutedPrice,
		ev.Currency, ev.Msg, ev.UpdatedAt.UnixMilli(), ev.ReceivedAt.UnixMilli(),
	}
}

// InsertOrderEvent writes one event immediately.
func (d *Database) InsertOrderEvent(ctx context.Context, ev OrderEvent) error {
	q, args := d.InsertOrderEventQuery(ev)
	if _, err := d.DB.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert order event: %w", err)
	}
	return nil
}

// OrderEvents returns the journal of one order, oldest first.
func (d *Database) OrderEvents(ctx context.Context, orderID string) ([]OrderEvent, error) {
	return d.queryOrderEvents(ctx, `
		SELECT id, order_id, symbol, side, order_type, status, submitted_quantity,
			submitted_price, executed_quantity, executed_price, currency, msg,
			updated_at, received_at
		FROM order_events
		WHERE order_id = ?
		ORDER BY received_at ASC, id ASC`, orderID)
}

// RecentOrderEvents returns the newest events across orders, newest first.
func (d *Database) RecentOrderEvents(ctx context.Context, limit int) ([]OrderEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	return d.queryOrderEvents(ctx, `
		SELECT id, order_id, symbol, side, order_type, status, submitted_quantity,
			submitted_price, executed_quantity, executed_price, currency, msg,
			updated_at, received_at
		FROM order_events
		ORDER BY received_at DESC, id DESC
		LIMIT ?`, limit)
}

func (d *Database) queryOrderEvents(ctx context.Context, query string, args ...any) ([]OrderEvent, error) {
	rows, err := d.DB.QueryContext(ctx, d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query order events: %w", err)
	}
	defer rows.Close()

	var out []OrderEvent
	for rows.Next() {
		var (
			ev                OrderEvent
			updated, received int64
		)
		if err := rows.Scan(&ev.ID, &ev.OrderID, &ev.Symbol, &ev.Side, &ev.OrderType, &ev.Status,
			&ev.SubmittedQuantity, &ev.SubmittedPrice, &ev.ExecutedQuantity, &ev.ExecutedPrice,
			&ev.Currency, &ev.Msg, &updated, &received); err != nil {
			return nil, fmt.Errorf("scan order event: %w", err)
		}
		ev.UpdatedAt = time.UnixMilli(updated)
		ev.ReceivedAt = time.UnixMilli(received)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// UpsertSubscription stores the subscription state of a symbol.
func (d *Database) UpsertSubscription(ctx context.Context, s Subscription) error {
	_, err := d.DB.ExecContext(ctx, d.Rebind(`
		INSERT INTO subscriptions (symbol, flags, periods, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			flags = excluded.flags,
			periods = excluded.periods,
			updated_at = excluded.updated_at`),
		s.Symbol, int64(s.Flags), joinPeriods(s.Periods), s.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes a symbol; a missing row is ErrNotFound.
func (d *Database) DeleteSubscription(ctx context.Context, symbol string) error {
	res, err := d.DB.ExecContext(ctx, d.Rebind(`DELETE FROM subscriptions WHERE symbol = ?`), symbol)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Subscriptions returns every persisted subscription ordered by symbol.
func (d *Database) Subscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT symbol, flags, periods, updated_at FROM subscriptions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var (
			s       Subscription
			flags   int64
			periods string
			updated int64
		)
		if err := rows.Scan(&s.Symbol, &flags, &periods, &updated); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		s.Flags = uint8(flags)
		s.Periods = splitPeriods(periods)
		s.UpdatedAt = time.UnixMilli(updated)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Subscription returns one persisted subscription.
func (d *Database) Subscription(ctx context.Context, symbol string) (Subscription, error) {
	var (
		s       Subscription
		flags   int64
		periods string
		updated int64
	)
	err := d.DB.QueryRowContext(ctx, d.Rebind(`SELECT symbol, flags, periods, updated_at FROM subscriptions WHERE symbol = ?`), symbol).
		Scan(&s.Symbol, &flags, &periods, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{}, ErrNotFound
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("query subscription: %w", err)
	}
	s.Flags = uint8(flags)
	s.Periods = splitPeriods(periods)
	s.UpdatedAt = time.UnixMilli(updated)
	return s, nil
}

func joinPeriods(ps []int32) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = strconv.Itoa(int(p))
	}
	return strings.Join(parts, ",")
}

func splitPeriods(s string) []int32 {
	if s == "" {
		return nil
	}
	var out []int32
	for _, part := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(part); err == nil {
			out = append(out, int32(n))
		}
	}
	return out
}
