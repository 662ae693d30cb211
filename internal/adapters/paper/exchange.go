package paper

// exchange.go - venue simulado para dry runs.
//
// Los precios vienen del stream público real; órdenes, fills, posición y
// equity viven en memoria. Una orden post-only en reposo se llena entera,
// a su precio, cuando el lado opuesto del libro la cruza:
//   - buy  @ P se llena si best_ask <= P
//   - sell @ P se llena si best_bid >= P
// El matching corre dentro de Recv del ticker stream, así que solo avanza
// mientras alguien consume precios (el control loop).
//
// Contabilidad de perpetuo inverso: tamaño en USD, PnL y fees en la moneda base.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/skewmm/internal/application/engine"
	"github.com/alejandrodnm/skewmm/internal/domain"
	"github.com/alejandrodnm/skewmm/internal/ports"
)

const (
	defaultInitialEquity = 1.0
	fillBuffer           = 64
)

// ErrPostOnlyReject: la orden cruzaría el libro y se rechaza en vez de ejecutarse como taker.
var ErrPostOnlyReject = errors.New("paper: post_only_reject")

// Config del venue simulado.
type Config struct {
	Instrument    string
	InitialEquity float64 // en moneda base
	MakerFeeRate  float64 // fracción del nocional; negativo = rebate
}

type restingOrder struct {
	id       string
	side     domain.Side
	price    decimal.Decimal
	amount   decimal.Decimal
	label    string
	placedAt time.Time
}

// Exchange implementa ports.Exchange sobre datos de mercado reales.
type Exchange struct {
	market   ports.MarketData
	cfg      Config
	currency string
	now      func() time.Time

	mu       sync.Mutex
	orders   map[string]*restingOrder
	size     decimal.Decimal // USD, con signo
	avgPrice decimal.Decimal
	realized decimal.Decimal // moneda base
	fees     decimal.Decimal // moneda base
	last     domain.Ticker
	trades   []domain.Trade
	subs     map[*fillStream]struct{}
	closed   bool
}

// New crea un venue simulado alimentado por market.
func New(market ports.MarketData, cfg Config) *Exchange {
	if cfg.InitialEquity <= 0 {
		cfg.InitialEquity = defaultInitialEquity
	}
	return &Exchange{
		market:   market,
		cfg:      cfg,
		currency: engine.BaseCurrency(cfg.Instrument),
		now:      time.Now,
		orders:   make(map[string]*restingOrder),
		subs:     make(map[*fillStream]struct{}),
	}
}

// SubscribeTicker abre el stream real y hace matching con cada precio recibido.
func (e *Exchange) SubscribeTicker(ctx context.Context, instrument string) (ports.TickerStream, error) {
	upstream, err := e.market.SubscribeTicker(ctx, instrument)
	if err != nil {
		return nil, fmt.Errorf("paper.SubscribeTicker: %w", err)
	}
	return &matchingStream{upstream: upstream, ex: e}, nil
}

type matchingStream struct {
	upstream ports.TickerStream
	ex       *Exchange
}

func (m *matchingStream) Recv(ctx context.Context) (domain.Ticker, error) {
	t, err := m.upstream.Recv(ctx)
	if err != nil {
		return t, err
	}
	m.ex.OnTicker(t)
	return t, nil
}

func (m *matchingStream) Close() error { return m.upstream.Close() }

// OnTicker actualiza el último precio y llena las órdenes cruzadas.
func (e *Exchange) OnTicker(t domain.Ticker) {
	if !t.Valid() {
		return
	}

	e.mu.Lock()
	e.last = t
	bid := decimal.NewFromFloat(t.BestBid)
	ask := decimal.NewFromFloat(t.BestAsk)

	var crossed []*restingOrder
	for _, o := range e.orders {
		if (o.side == domain.SideBuy && ask.LessThanOrEqual(o.price)) ||
			(o.side == domain.SideSell && bid.GreaterThanOrEqual(o.price)) {
			crossed = append(crossed, o)
		}
	}
	sort.Slice(crossed, func(i, j int) bool { return crossed[i].placedAt.Before(crossed[j].placedAt) })

	ts := t.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}
	fills := make([]domain.Fill, 0, len(crossed))
	for _, o := range crossed {
		delete(e.orders, o.id)
		fills = append(fills, e.fillLocked(o, ts))
	}
	subs := e.subscribersLocked()
	e.mu.Unlock()

	if len(fills) == 0 {
		return
	}
	for _, s := range subs {
		s.push(fills)
	}
}

// fillLocked ejecuta o completa y devuelve el fill. Requiere e.mu.
func (e *Exchange) fillLocked(o *restingOrder, ts time.Time) domain.Fill {
	signed := o.amount
	if o.side == domain.SideSell {
		signed = signed.Neg()
	}
	e.applyLocked(signed, o.price)

	// fee en moneda base: nocional USD / precio * tasa
	fee := o.amount.Div(o.price).Mul(decimal.NewFromFloat(e.cfg.MakerFeeRate))
	e.fees = e.fees.Add(fee)

	tradeID := uuid.NewString()
	price, _ := o.price.Float64()
	amount, _ := o.amount.Float64()
	feeF, _ := fee.Float64()

	e.trades = append(e.trades, domain.Trade{
		ID:          tradeID,
		TimestampMs: ts.UnixMilli(),
		Symbol:      e.cfg.Instrument,
		Side:        o.side,
		Price:       price,
		Amount:      amount,
		Fee:         feeF,
		Liquidity:   domain.LiquidityMaker,
	})

	slog.Debug("paper: order filled",
		"side", o.side,
		"price", price,
		"amount", amount,
		"order_id", engine.TruncateStr(o.id, 8),
		"position", e.size.String(),
	)

	return domain.Fill{
		TradeID:    tradeID,
		OrderID:    o.id,
		Instrument: e.cfg.Instrument,
		Side:       o.side,
		Price:      price,
		Amount:     amount,
		Timestamp:  ts,
	}
}

// applyLocked suma q (USD con signo) a la posición al precio p, realizando
// PnL sobre la parte que reduce. Requiere e.mu.
func (e *Exchange) applyLocked(q, p decimal.Decimal) {
	one := decimal.NewFromInt(1)

	if e.size.IsZero() {
		e.size = q
		e.avgPrice = p
		return
	}
	if e.size.Sign() == q.Sign() {
		// entrada media de un inverso: USD totales / BTC totales
		usd := e.size.Abs().Add(q.Abs())
		btc := q.Abs().Div(p).Add(e.size.Abs().Div(e.avgPrice))
		e.size = e.size.Add(q)
		e.avgPrice = usd.Div(btc)
		return
	}

	closing := decimal.Min(q.Abs(), e.size.Abs())
	pnlPerUSD := one.Div(e.avgPrice).Sub(one.Div(p))
	if e.size.IsNegative() {
		pnlPerUSD = pnlPerUSD.Neg()
	}
	e.realized = e.realized.Add(closing.Mul(pnlPerUSD))

	e.size = e.size.Add(q)
	switch {
	case e.size.IsZero():
		e.avgPrice = decimal.Zero
	case e.size.Sign() == q.Sign():
		// dio la vuelta: el resto abre al precio del fill
		e.avgPrice = p
	}
}

// unrealizedLocked valora la posición al mid actual. Requiere e.mu.
func (e *Exchange) unrealizedLocked() decimal.Decimal {
	if e.size.IsZero() || !e.last.Valid() {
		return decimal.Zero
	}
	one := decimal.NewFromInt(1)
	mid := decimal.NewFromFloat(e.last.Mid())
	return e.size.Mul(one.Div(e.avgPrice).Sub(one.Div(mid)))
}

func (e *Exchange) SubscribeFills(_ context.Context, _ string) (ports.FillStream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("paper.SubscribeFills: %w", domain.ErrStreamClosed)
	}
	s := newFillStream(e)
	e.subs[s] = struct{}{}
	return s, nil
}

func (e *Exchange) subscribersLocked() []*fillStream {
	out := make([]*fillStream, 0, len(e.subs))
	for s := range e.subs {
		out = append(out, s)
	}
	return out
}

func (e *Exchange) FetchPosition(_ context.Context, instrument string) (domain.Position, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if instrument != e.cfg.Instrument || e.size.IsZero() {
		return domain.Position{}, false, nil
	}
	size, _ := e.size.Float64()
	avg, _ := e.avgPrice.Float64()
	upnl, _ := e.unrealizedLocked().Float64()
	return domain.Position{
		Instrument:    instrument,
		Size:          size,
		AveragePrice:  avg,
		UnrealizedPnL: upnl,
	}, true, nil
}

// FetchBalance: equity = inicial + realizado + no realizado − fees.
func (e *Exchange) FetchBalance(_ context.Context, currency string) (domain.Balance, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !strings.EqualFold(currency, e.currency) {
		return domain.Balance{}, false, nil
	}
	bal := decimal.NewFromFloat(e.cfg.InitialEquity).Add(e.realized).Sub(e.fees)
	eq := bal.Add(e.unrealizedLocked())
	balance, _ := bal.Float64()
	equity, _ := eq.Float64()
	return domain.Balance{Currency: e.currency, Equity: equity, Balance: balance}, true, nil
}

func (e *Exchange) PlaceLimitOrder(_ context.Context, req domain.OrderRequest) (domain.PlacedOrder, error) {
	if req.Amount <= 0 || req.Price <= 0 {
		return domain.PlacedOrder{}, fmt.Errorf("paper.PlaceLimitOrder: amount %v price %v: %w",
			req.Amount, req.Price, domain.ErrInvalidPrice)
	}
	if req.Instrument != e.cfg.Instrument {
		return domain.PlacedOrder{}, fmt.Errorf("paper.PlaceLimitOrder: unknown instrument %q", req.Instrument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.last.Valid() && req.PostOnly {
		if (req.Side == domain.SideBuy && req.Price >= e.last.BestAsk) ||
			(req.Side == domain.SideSell && req.Price <= e.last.BestBid) {
			return domain.PlacedOrder{}, fmt.Errorf("paper.PlaceLimitOrder: %s @ %v: %w", req.Side, req.Price, ErrPostOnlyReject)
		}
	}

	o := &restingOrder{
		id:       uuid.NewString(),
		side:     req.Side,
		price:    decimal.NewFromFloat(req.Price),
		amount:   decimal.NewFromFloat(req.Amount),
		label:    req.Label,
		placedAt: e.now(),
	}
	e.orders[o.id] = o

	return domain.PlacedOrder{
		OrderID: o.id,
		State:   "open",
		Side:    req.Side,
		Price:   req.Price,
		Amount:  req.Amount,
		Label:   req.Label,
	}, nil
}

func (e *Exchange) CancelAll(_ context.Context, instrument string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if instrument != e.cfg.Instrument {
		return 0, nil
	}
	n := len(e.orders)
	e.orders = make(map[string]*restingOrder)
	return n, nil
}

// FetchTrades devuelve hasta limit trades desde since, más recientes primero.
func (e *Exchange) FetchTrades(_ context.Context, instrument string, since time.Time, limit int) ([]domain.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sinceMs := since.UnixMilli()
	var out []domain.Trade
	for i := len(e.trades) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		t := e.trades[i]
		if t.Symbol == instrument && t.TimestampMs >= sinceMs {
			out = append(out, t)
		}
	}
	return out, nil
}

func (e *Exchange) ServerTime(_ context.Context) (time.Time, error) {
	return e.now(), nil
}

// Close cierra los fill streams y, si el proveedor de mercado lo permite, sus conexiones.
func (e *Exchange) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	subs := e.subscribersLocked()
	e.subs = make(map[*fillStream]struct{})
	e.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
	if c, ok := e.market.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// fillStream entrega los fills simulados a un suscriptor.
type fillStream struct {
	ex   *Exchange
	ch   chan []domain.Fill
	done chan struct{}
	once sync.Once
}

func newFillStream(ex *Exchange) *fillStream {
	return &fillStream{ex: ex, ch: make(chan []domain.Fill, fillBuffer), done: make(chan struct{})}
}

func (s *fillStream) push(fills []domain.Fill) {
	select {
	case s.ch <- fills:
	case <-s.done:
	default:
		// la reconciliación corrige el inventario perdido
		slog.Warn("paper: fill subscriber lagging, dropping batch", "fills", len(fills))
	}
}

func (s *fillStream) Recv(ctx context.Context) ([]domain.Fill, error) {
	select {
	case f := <-s.ch:
		return f, nil
	case <-s.done:
		return nil, domain.ErrStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fillStream) close() {
	s.once.Do(func() { close(s.done) })
}

func (s *fillStream) Close() error {
	s.close()
	s.ex.mu.Lock()
	delete(s.ex.subs, s)
	s.ex.mu.Unlock()
	return nil
}
