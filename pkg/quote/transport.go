package quote

import (
	"context"
	"fmt"

	"market-gateway/internal/wsclient"
	"market-gateway/pkg/market"
	"market-gateway/pkg/protocol"
)

// wireTransport sends registry changes over the quote connection.
type wireTransport struct {
	ws *wsclient.Client
}

func (t wireTransport) Subscribe(ctx context.Context, symbols []string, flags market.SubFlags, firstPush bool) error {
	req := &protocol.SubscribeRequest{Symbol: symbols, SubType: flags.SubTypes(), IsFirstPush: firstPush}
	if err := t.ws.Request(ctx, protocol.CmdSubscribe, req, nil); err != nil {
		return fmt.Errorf("subscribe %v %s: %w", symbols, flags, err)
	}
	return nil
}

func (t wireTransport) Unsubscribe(ctx context.Context, symbols []string, flags market.SubFlags) error {
	req := &protocol.UnsubscribeRequest{Symbol: symbols, SubType: flags.SubTypes()}
	if err := t.ws.Request(ctx, protocol.CmdUnsubscribe, req, nil); err != nil {
		return fmt.Errorf("unsubscribe %v %s: %w", symbols, flags, err)
	}
	return nil
}
