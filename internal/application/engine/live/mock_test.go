package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alejandrodnm/skewmm/internal/application/engine/inventory"
	"github.com/alejandrodnm/skewmm/internal/domain"
	"github.com/alejandrodnm/skewmm/internal/ports"
	"github.com/alejandrodnm/skewmm/internal/strategy"
)

// --- streams ---

type chanTickerStream struct {
	ch     chan domain.Ticker
	closed chan struct{}
	once   sync.Once
}

func newTickerStream(buf int) *chanTickerStream {
	return &chanTickerStream{ch: make(chan domain.Ticker, buf), closed: make(chan struct{})}
}

func (s *chanTickerStream) Recv(ctx context.Context) (domain.Ticker, error) {
	select {
	case t, ok := <-s.ch:
		if !ok {
			return domain.Ticker{}, domain.ErrStreamClosed
		}
		return t, nil
	case <-s.closed:
		return domain.Ticker{}, domain.ErrStreamClosed
	case <-ctx.Done():
		return domain.Ticker{}, ctx.Err()
	}
}

func (s *chanTickerStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type chanFillStream struct {
	ch     chan []domain.Fill
	closed chan struct{}
	once   sync.Once
}

func newFillStream(buf int) *chanFillStream {
	return &chanFillStream{ch: make(chan []domain.Fill, buf), closed: make(chan struct{})}
}

func (s *chanFillStream) Recv(ctx context.Context) ([]domain.Fill, error) {
	select {
	case f, ok := <-s.ch:
		if !ok {
			return nil, domain.ErrStreamClosed
		}
		return f, nil
	case <-s.closed:
		return nil, domain.ErrStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *chanFillStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// --- exchange ---

type mockExchange struct {
	mu sync.Mutex

	tickerStreams []ports.TickerStream
	tickerSubs    int
	fillStreams   []ports.FillStream
	fillSubs      int
	subscribeErr  error

	position    domain.Position
	hasPosition bool
	positionErr error

	balance    domain.Balance
	hasBalance bool
	balanceErr error

	trades     []domain.Trade
	tradesErr  error
	lastSince  time.Time
	lastLimit  int
	serverTime time.Time
	timeErr    error

	placeErr   map[domain.Side]error
	placed     []domain.OrderRequest
	placeDelay time.Duration

	cancelCalls    int
	cancelErr      error
	cancelDelay    time.Duration
	cancelInFlight int
	maxInFlight    int

	closed bool
}

var errNoStream = errors.New("no stream configured")

func (m *mockExchange) SubscribeTicker(_ context.Context, _ string) (ports.TickerStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickerSubs++
	if len(m.tickerStreams) == 0 {
		return nil, errNoStream
	}
	s := m.tickerStreams[0]
	m.tickerStreams = m.tickerStreams[1:]
	return s, nil
}

func (m *mockExchange) SubscribeFills(_ context.Context, _ string) (ports.FillStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fillSubs++
	if m.subscribeErr != nil {
		err := m.subscribeErr
		m.subscribeErr = nil
		return nil, err
	}
	if len(m.fillStreams) == 0 {
		return nil, errNoStream
	}
	s := m.fillStreams[0]
	m.fillStreams = m.fillStreams[1:]
	return s, nil
}

func (m *mockExchange) FetchPosition(_ context.Context, _ string) (domain.Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position, m.hasPosition, m.positionErr
}

func (m *mockExchange) FetchBalance(_ context.Context, currency string) (domain.Balance, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.balance
	b.Currency = currency
	return b, m.hasBalance, m.balanceErr
}

func (m *mockExchange) PlaceLimitOrder(ctx context.Context, req domain.OrderRequest) (domain.PlacedOrder, error) {
	if m.placeDelay > 0 {
		sleepCtx(ctx, m.placeDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.placeErr[req.Side]; err != nil {
		return domain.PlacedOrder{}, err
	}
	m.placed = append(m.placed, req)
	return domain.PlacedOrder{OrderID: "ord-" + string(req.Side), State: "open", Side: req.Side, Price: req.Price, Amount: req.Amount}, nil
}

func (m *mockExchange) CancelAll(ctx context.Context, _ string) (int, error) {
	m.mu.Lock()
	m.cancelCalls++
	m.cancelInFlight++
	if m.cancelInFlight > m.maxInFlight {
		m.maxInFlight = m.cancelInFlight
	}
	delay := m.cancelDelay
	m.mu.Unlock()

	if delay > 0 {
		sleepCtx(ctx, delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelInFlight--
	if m.cancelErr != nil {
		return 0, m.cancelErr
	}
	return 2, nil
}

func (m *mockExchange) FetchTrades(_ context.Context, _ string, since time.Time, limit int) ([]domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSince = since
	m.lastLimit = limit
	return m.trades, m.tradesErr
}

func (m *mockExchange) ServerTime(_ context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serverTime, m.timeErr
}

func (m *mockExchange) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockExchange) placedOrders() []domain.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrderRequest(nil), m.placed...)
}

func (m *mockExchange) cancelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelCalls
}

// --- store ---

type mockStore struct {
	mu    sync.Mutex
	ids   map[string]bool
	err   error
	saves int
}

func newMockStore(existing ...string) *mockStore {
	s := &mockStore{ids: make(map[string]bool)}
	for _, id := range existing {
		s.ids[id] = true
	}
	return s
}

func (s *mockStore) SaveTrades(_ context.Context, trades []domain.Trade) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.err != nil {
		return 0, s.err
	}
	n := 0
	for _, t := range trades {
		if !s.ids[t.ID] {
			s.ids[t.ID] = true
			n++
		}
	}
	return n, nil
}

func (s *mockStore) RecentTrades(_ context.Context, _ int) ([]domain.Trade, error) { return nil, nil }
func (s *mockStore) Close() error                                                  { return nil }

func (s *mockStore) CountTrades(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids), nil
}

// --- quoter ---

type panicQuoter struct{}

func (panicQuoter) Name() string { return "panic" }
func (panicQuoter) Quote(_, _ float64) (domain.Quote, error) {
	panic("boom")
}

// --- helpers ---

func testConfig() Config {
	return Config{
		Instrument:           "BTC-PERPETUAL",
		PositionSize:         1000,
		MaxInventory:         50000,
		PriceUpdateThreshold: 1.0,
		TickSize:             0.5,
		ReconcileInterval:    time.Hour,
		ArchiveInterval:      time.Hour,
		StreamRetryDelay:     time.Millisecond,
		ShutdownTimeout:      time.Second,
	}
}

func newTestEngine(ex *mockExchange, store *mockStore, cfg Config) (*Engine, *inventory.State) {
	state := inventory.New()
	q := strategy.NewInventorySkew(strategy.InventorySkewConfig{Spread: 0.0002, SkewFactor: 0.00005})
	le := New(ex, store, q, state, nil, cfg)
	le.newLabel = func() string { return "mm-test" }
	return le, state
}

func ticker(bid, ask float64) domain.Ticker {
	return domain.Ticker{Instrument: "BTC-PERPETUAL", BestBid: bid, BestAsk: ask, Timestamp: time.Now()}
}
