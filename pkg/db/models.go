package db

import "time"

// OrderEvent is one journaled order-changed push.
type OrderEvent struct {
	ID                string
	OrderID           string
	Symbol            string
	Side              string
	OrderType         string
	Status            string
	SubmittedQuantity string
	SubmittedPrice    string
	ExecutedQuantity  string
	ExecutedPrice     string
	Currency          string
	Msg               string
	UpdatedAt         time.Time
	ReceivedAt        time.Time
}

// Subscription is the persisted subscription of one symbol.
type Subscription struct {
	Symbol    string
	Flags     uint8
	Periods   []int32
	UpdatedAt time.Time
}
