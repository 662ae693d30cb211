package deribit

// trading.go - llamadas REST de cuenta y órdenes.
//
// Todas las órdenes son limit post_only. Si Deribit tuviera que cruzar el
// libro, la rechaza (reject_post_only=true) en vez de re-pricearla.

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/skewmm/internal/domain"
)

// FetchPosition devuelve la posición en el instrumento. found=false si está flat.
func (c *Client) FetchPosition(ctx context.Context, instrument string) (domain.Position, bool, error) {
	params := url.Values{"instrument_name": {instrument}}

	var res *positionResult
	if err := c.private(ctx, "private/get_position", params, &res); err != nil {
		return domain.Position{}, false, fmt.Errorf("deribit.FetchPosition: %w", err)
	}
	if res == nil {
		return domain.Position{}, false, nil
	}
	pos, found := mapPosition(*res)
	return pos, found, nil
}

// FetchBalance devuelve el resumen de cuenta para la moneda. found=false si
// la cuenta no tiene esa moneda.
func (c *Client) FetchBalance(ctx context.Context, currency string) (domain.Balance, bool, error) {
	params := url.Values{"currency": {currency}}

	var res *accountSummary
	if err := c.private(ctx, "private/get_account_summary", params, &res); err != nil {
		return domain.Balance{}, false, fmt.Errorf("deribit.FetchBalance: %w", err)
	}
	if res == nil {
		return domain.Balance{}, false, nil
	}
	return mapBalance(*res), true, nil
}

// PlaceLimitOrder envía una orden limit por private/buy o private/sell.
func (c *Client) PlaceLimitOrder(ctx context.Context, req domain.OrderRequest) (domain.PlacedOrder, error) {
	var method string
	switch req.Side {
	case domain.SideBuy:
		method = "private/buy"
	case domain.SideSell:
		method = "private/sell"
	default:
		return domain.PlacedOrder{}, fmt.Errorf("deribit.PlaceLimitOrder: unknown side %q", req.Side)
	}

	params := url.Values{
		"instrument_name": {req.Instrument},
		"amount":          {formatFloat(req.Amount)},
		"type":            {"limit"},
		"price":           {formatFloat(req.Price)},
	}
	if req.PostOnly {
		params.Set("post_only", "true")
		params.Set("reject_post_only", "true")
	}
	if req.Label != "" {
		params.Set("label", req.Label)
	}

	var res orderResult
	if err := c.privateOnce(ctx, method, params, &res); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("deribit.PlaceLimitOrder: %s %s@%s: %w",
			req.Side, formatFloat(req.Amount), formatFloat(req.Price), err)
	}
	return mapOrder(res.Order), nil
}

// CancelAll cancela todas las órdenes abiertas del instrumento y devuelve cuántas.
func (c *Client) CancelAll(ctx context.Context, instrument string) (int, error) {
	params := url.Values{"instrument_name": {instrument}}

	var n int
	if err := c.private(ctx, "private/cancel_all_by_instrument", params, &n); err != nil {
		return 0, fmt.Errorf("deribit.CancelAll: %w", err)
	}
	return n, nil
}

// FetchTrades devuelve hasta limit trades propios desde since, más recientes primero.
func (c *Client) FetchTrades(ctx context.Context, instrument string, since time.Time, limit int) ([]domain.Trade, error) {
	params := url.Values{
		"instrument_name": {instrument},
		"start_timestamp": {strconv.FormatInt(since.UnixMilli(), 10)},
		"end_timestamp":   {strconv.FormatInt(time.Now().Add(time.Minute).UnixMilli(), 10)},
		"count":           {strconv.Itoa(limit)},
		"sorting":         {"desc"},
	}

	var res userTradesResult
	if err := c.private(ctx, "private/get_user_trades_by_instrument_and_time", params, &res); err != nil {
		return nil, fmt.Errorf("deribit.FetchTrades: %w", err)
	}
	return mapTrades(res.Trades), nil
}

// ServerTime devuelve el reloj del exchange.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var ms int64
	if err := c.public(ctx, "public/get_time", nil, &ms); err != nil {
		return time.Time{}, fmt.Errorf("deribit.ServerTime: %w", err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
