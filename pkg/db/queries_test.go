package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestOrderEventJournal(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	base := time.UnixMilli(1700000000000)

	statuses := []string{"NotReported", "NewStatus", "FilledStatus"}
	for i, st := range statuses {
		ev := OrderEvent{
			ID:                string(rune('a' + i)),
			OrderID:           "701276261045858304",
			Symbol:            "700.HK",
			Side:              "Buy",
			OrderType:         "LO",
			Status:            st,
			SubmittedQuantity: "200",
			SubmittedPrice:    "50",
			ExecutedQuantity:  "0",
			ExecutedPrice:     "0",
			Currency:          "HKD",
			UpdatedAt:         base.Add(time.Duration(i) * time.Second),
			ReceivedAt:        base.Add(time.Duration(i) * time.Second),
		}
		if err := d.InsertOrderEvent(ctx, ev); err != nil {
			t.Fatalf("insert %s: %v", st, err)
		}
	}

	events, err := d.OrderEvents(ctx, "701276261045858304")
	if err != nil {
		t.Fatalf("OrderEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, ev := range events {
		if ev.Status != statuses[i] {
			t.Errorf("event %d status = %s, want %s", i, ev.Status, statuses[i])
		}
	}
	if !events[2].UpdatedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("updated_at = %v", events[2].UpdatedAt)
	}

	recent, err := d.RecentOrderEvents(ctx, 1)
	if err != nil {
		t.Fatalf("RecentOrderEvents: %v", err)
	}
	if len(recent) != 1 || recent[0].Status != "FilledStatus" {
		t.Fatalf("recent = %+v", recent)
	}
}

func TestSubscriptionsRoundTrip(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	now := time.UnixMilli(1700000000000)

	if err := d.UpsertSubscription(ctx, Subscription{Symbol: "700.HK", Flags: 1, UpdatedAt: now}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := d.UpsertSubscription(ctx, Subscription{Symbol: "700.HK", Flags: 9, Periods: []int32{1, 1000}, UpdatedAt: now}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	s, err := d.Subscription(ctx, "700.HK")
	if err != nil {
		t.Fatalf("Subscription: %v", err)
	}
	if s.Flags != 9 || len(s.Periods) != 2 || s.Periods[1] != 1000 {
		t.Fatalf("subscription = %+v", s)
	}

	if err := d.DeleteSubscription(ctx, "700.HK"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := d.DeleteSubscription(ctx, "700.HK"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}
	if _, err := d.Subscription(ctx, "700.HK"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("lookup after delete = %v, want ErrNotFound", err)
	}
	all, err := d.Subscriptions(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("Subscriptions = %v, %v", all, err)
	}
}

func TestRebind(t *testing.T) {
	pg := &Database{Driver: DriverPostgres}
	if got := pg.Rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("postgres rebind = %q", got)
	}
	lite := &Database{Driver: DriverSQLite}
	if got := lite.Rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite rebind = %q", got)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if _, err := Open(DriverSQLite, ""); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
