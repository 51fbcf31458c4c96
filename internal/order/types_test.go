package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"market-gateway/pkg/apierr"
)

func d(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func limitOrder() SubmitRequest {
	return SubmitRequest{
		Symbol:            "700.HK",
		Type:              TypeLO,
		Side:              SideBuy,
		SubmittedQuantity: decimal.NewFromInt(200),
		TimeInForce:       TIFDay,
		SubmittedPrice:    d("50"),
	}
}

func TestSubmitValidation(t *testing.T) {
	tomorrow := time.Now().AddDate(0, 0, 1)
	tests := []struct {
		name  string
		edit  func(*SubmitRequest)
		field string
	}{
		{"valid limit", func(*SubmitRequest) {}, ""},
		{"bad symbol", func(r *SubmitRequest) { r.Symbol = "700" }, "symbol"},
		{"zero quantity", func(r *SubmitRequest) { r.SubmittedQuantity = decimal.Zero }, "submitted_quantity"},
		{"no side", func(r *SubmitRequest) { r.Side = "" }, "side"},
		{"unknown type", func(r *SubmitRequest) { r.Type = "XYZ" }, "order_type"},
		{"no tif", func(r *SubmitRequest) { r.TimeInForce = "" }, "time_in_force"},
		{"limit with trigger", func(r *SubmitRequest) { r.TriggerPrice = d("49") }, "trigger_price"},
		{"limit with trailing amount", func(r *SubmitRequest) { r.TrailingAmount = d("1") }, "trailing_amount"},
		{"limit without price", func(r *SubmitRequest) { r.SubmittedPrice = nil }, "submitted_price"},
		{"market without price", func(r *SubmitRequest) { r.Type, r.SubmittedPrice = TypeMO, nil }, ""},
		{"lit without trigger", func(r *SubmitRequest) { r.Type = TypeLIT }, "trigger_price"},
		{"mit with trigger", func(r *SubmitRequest) { r.Type, r.SubmittedPrice, r.TriggerPrice = TypeMIT, nil, d("48") }, ""},
		{"tslpamt missing offset", func(r *SubmitRequest) {
			r.Type, r.SubmittedPrice, r.TrailingAmount = TypeTSLPAMT, nil, d("0.5")
		}, "limit_offset"},
		{"tslppct complete", func(r *SubmitRequest) {
			r.Type, r.SubmittedPrice, r.TrailingPercent, r.LimitOffset = TypeTSLPPCT, nil, d("5"), d("0.1")
		}, ""},
		{"tsmpct percent too big", func(r *SubmitRequest) {
			r.Type, r.SubmittedPrice, r.TrailingPercent = TypeTSMPCT, nil, d("100")
		}, "trailing_percent"},
		{"tsmamt missing amount", func(r *SubmitRequest) { r.Type, r.SubmittedPrice = TypeTSMAMT, nil }, "trailing_amount"},
		{"gtd without date", func(r *SubmitRequest) { r.TimeInForce = TIFGTD }, "expire_date"},
		{"gtd with date", func(r *SubmitRequest) { r.TimeInForce, r.ExpireDate = TIFGTD, &tomorrow }, ""},
		{"bad outside rth", func(r *SubmitRequest) { r.OutsideRTH = "SOMETIMES" }, "outside_rth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := limitOrder()
			tt.edit(&r)
			err := r.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *apierr.ValidationError
			if assert.ErrorAs(t, err, &ve) {
				assert.Equal(t, tt.field, ve.Field)
			}
		})
	}
}

func TestForbiddenFieldReportedInOrder(t *testing.T) {
	r := limitOrder()
	r.TriggerPrice, r.LimitOffset, r.TrailingAmount, r.TrailingPercent = d("49"), d("0.1"), d("1"), d("5")
	for i := 0; i < 50; i++ {
		var ve *apierr.ValidationError
		if assert.ErrorAs(t, r.Validate(), &ve) {
			assert.Equal(t, "trigger_price", ve.Field)
		}
	}

	r.TriggerPrice = nil
	var ve *apierr.ValidationError
	if assert.ErrorAs(t, r.Validate(), &ve) {
		assert.Equal(t, "limit_offset", ve.Field)
	}
}

func TestReplaceValidation(t *testing.T) {
	assert.NoError(t, ReplaceRequest{OrderID: "1", Quantity: decimal.NewFromInt(1), Price: d("2")}.Validate())
	assert.ErrorIs(t, ReplaceRequest{Quantity: decimal.NewFromInt(1)}.Validate(), apierr.ErrValidation)
	assert.ErrorIs(t, ReplaceRequest{OrderID: "1"}.Validate(), apierr.ErrValidation)
	assert.ErrorIs(t, ReplaceRequest{OrderID: "1", Quantity: decimal.NewFromInt(1), TrailingPercent: d("0")}.Validate(), apierr.ErrValidation)
}
