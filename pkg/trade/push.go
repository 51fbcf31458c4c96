package trade

import (
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"market-gateway/internal/events"
	"market-gateway/internal/monitor"
	"market-gateway/pkg/protocol"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const eventOrderChanged = "order_changed_lb"

type pushEnvelope struct {
	Event string              `json:"event"`
	Data  jsoniter.RawMessage `json:"data"`
}

func (tc *TradeContext) handlePush(cmd uint8, body []byte) {
	if cmd != protocol.CmdTradeNotify {
		tc.log.Debug("unhandled push", zap.Uint8("cmd", cmd))
		return
	}
	var n protocol.Notification
	if err := protocol.Unmarshal(body, &n); err != nil {
		tc.log.Warn("notification decode failed", zap.Error(err))
		return
	}
	if n.ContentType != protocol.ContentJSON {
		tc.log.Warn("unsupported notification content", zap.String("topic", n.Topic), zap.Int32("content_type", n.ContentType))
		return
	}
	var env pushEnvelope
	if err := json.Unmarshal(n.Data, &env); err != nil {
		tc.log.Warn("notification json invalid", zap.String("topic", n.Topic), zap.Error(err))
		return
	}
	if env.Event != eventOrderChanged {
		tc.log.Debug("ignored notification", zap.String("topic", n.Topic), zap.String("event", env.Event))
		return
	}
	var raw orderChangedJSON
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		tc.log.Warn("order changed decode failed", zap.Error(err))
		return
	}
	ev := raw.toEvent()
	if ev.OrderID == "" {
		tc.log.Warn("order changed without order id")
		return
	}
	monitor.ObservePush(contextName, events.KindOrderChanged.String())
	if tc.pending.Offer(ev.OrderID, ev) {
		tc.log.Debug("order push held until submit ack", zap.String("order_id", ev.OrderID))
	}
}

// release runs under the pending buffer lock once a push may be delivered.
// Pushes that break the status machine are dropped.
func (tc *TradeContext) release(orderID string, ev OrderChanged) {
	if !tc.tracker.Apply(orderID, ev.Status) {
		return
	}
	tc.dispatch.Dispatch(events.Push{Kind: events.KindOrderChanged, Key: orderID, Payload: ev})
}
