package deribit

// stream.go - suscripciones WebSocket (JSON-RPC sobre ws).
//
// Una conexión por suscripción. Secuencia al abrir:
//   1. public/auth (solo canales privados)
//   2. public/set_heartbeat
//   3. public/subscribe | private/subscribe
// Después, un goroutine lector despacha notificaciones y contesta los
// test_request del heartbeat con public/test. Si el exchange deja de
// mandar nada durante 3 intervalos, la conexión se da por muerta.
//
// El canal de quotes entrega solo el último top of book (buzón de un
// slot, el nuevo pisa al viejo). Los fills se encolan: hay que aplicarlos
// todos.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/skewmm/internal/domain"
	"github.com/alejandrodnm/skewmm/internal/ports"
)

const (
	heartbeatSeconds = 10 // mínimo que acepta Deribit
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	notifyBuffer     = 256
)

// SubscribeTicker abre el canal quote.{instrument} (mejor bid/ask).
func (c *Client) SubscribeTicker(ctx context.Context, instrument string) (ports.TickerStream, error) {
	s, err := c.openStream(ctx, "quote."+instrument, streamOptions{latestOnly: true})
	if err != nil {
		return nil, fmt.Errorf("deribit.SubscribeTicker: %w", err)
	}
	return &tickerStream{s: s}, nil
}

// SubscribeFills abre el canal user.trades.{instrument}.raw (fills propios).
func (c *Client) SubscribeFills(ctx context.Context, instrument string) (ports.FillStream, error) {
	s, err := c.openStream(ctx, "user.trades."+instrument+".raw", streamOptions{private: true})
	if err != nil {
		return nil, fmt.Errorf("deribit.SubscribeFills: %w", err)
	}
	return &fillStream{s: s}, nil
}

type tickerStream struct{ s *wsStream }

func (t *tickerStream) Recv(ctx context.Context) (domain.Ticker, error) {
	for {
		raw, err := t.s.recv(ctx)
		if err != nil {
			return domain.Ticker{}, err
		}
		var q quoteData
		if err := json.Unmarshal(raw, &q); err != nil {
			slog.Debug("deribit: malformed quote", "err", err)
			continue
		}
		return mapTicker(q), nil
	}
}

func (t *tickerStream) Close() error { return t.s.Close() }

type fillStream struct{ s *wsStream }

func (f *fillStream) Recv(ctx context.Context) ([]domain.Fill, error) {
	for {
		raw, err := f.s.recv(ctx)
		if err != nil {
			return nil, err
		}
		var trades []userTrade
		if err := json.Unmarshal(raw, &trades); err != nil {
			slog.Debug("deribit: malformed user trades", "err", err)
			continue
		}
		if fills := mapFills(trades); len(fills) > 0 {
			return fills, nil
		}
	}
}

func (f *fillStream) Close() error { return f.s.Close() }

type streamOptions struct {
	private    bool // requiere public/auth antes de suscribir
	latestOnly bool // conflación: recv devuelve siempre la notificación más reciente
}

// wsStream es una conexión con una única suscripción.
type wsStream struct {
	client  *Client
	channel string
	conn    *websocket.Conn
	writeMu sync.Mutex
	nextID  atomic.Int64

	notes      chan json.RawMessage
	latestOnly bool
	done       chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error

	readTimeout time.Duration
}

func (c *Client) openStream(ctx context.Context, channel string, opts streamOptions) (*wsStream, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, errors.New("client closed")
	}
	if opts.private && !c.creds.valid() {
		return nil, domain.ErrMissingCredentials
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.ws, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	buffer := notifyBuffer
	if opts.latestOnly {
		buffer = 1
	}
	s := &wsStream{
		client:      c,
		channel:     channel,
		conn:        conn,
		notes:       make(chan json.RawMessage, buffer),
		latestOnly:  opts.latestOnly,
		done:        make(chan struct{}),
		readTimeout: 3 * heartbeatSeconds * time.Second,
	}

	subscribe := "public/subscribe"
	if opts.private {
		if _, err := s.call(ctx, "public/auth", c.creds.params()); err != nil {
			s.Close()
			return nil, fmt.Errorf("auth: %w", err)
		}
		subscribe = "private/subscribe"
	}
	if _, err := s.call(ctx, "public/set_heartbeat", map[string]any{"interval": heartbeatSeconds}); err != nil {
		s.Close()
		return nil, fmt.Errorf("set heartbeat: %w", err)
	}
	if _, err := s.call(ctx, subscribe, map[string]any{"channels": []string{channel}}); err != nil {
		s.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		s.Close()
		return nil, errors.New("client closed")
	}
	c.streams[s] = struct{}{}
	c.mu.Unlock()

	go s.readLoop()
	slog.Debug("deribit: subscribed", "channel", channel)
	return s, nil
}

// call envía un request y lee hasta recibir su respuesta. Solo se usa antes
// de arrancar readLoop; las notificaciones intermedias se despachan igual.
func (s *wsStream) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	id, err := s.send(method, params)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetReadDeadline(deadline)

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%s: read: %w", method, err)
		}
		var env rpcResponse
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		if env.ID != nil && *env.ID == id {
			if env.Error != nil {
				return nil, env.Error
			}
			return env.Result, nil
		}
		s.dispatch(env)
	}
}

func (s *wsStream) send(method string, params map[string]any) (int64, error) {
	id := s.nextID.Add(1)
	b, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", method, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return 0, fmt.Errorf("write %s: %w", method, err)
	}
	return id, nil
}

func (s *wsStream) readLoop() {
	for {
		s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("read: %w", err))
			return
		}
		var env rpcResponse
		if err := json.Unmarshal(msg, &env); err != nil {
			slog.Debug("deribit: malformed message", "channel", s.channel, "err", err)
			continue
		}
		s.dispatch(env)
	}
}

func (s *wsStream) dispatch(env rpcResponse) {
	switch env.Method {
	case "heartbeat":
		var hb heartbeatParams
		if json.Unmarshal(env.Params, &hb) == nil && hb.Type == "test_request" {
			if _, err := s.send("public/test", nil); err != nil {
				s.fail(fmt.Errorf("heartbeat reply: %w", err))
			}
		}
	case "subscription":
		var p subscriptionParams
		if err := json.Unmarshal(env.Params, &p); err != nil || p.Channel != s.channel {
			return
		}
		if s.latestOnly {
			s.replaceLatest(p.Data)
			return
		}
		select {
		case s.notes <- p.Data:
		case <-s.done:
		}
	default:
		if env.Error != nil {
			slog.Debug("deribit: request error on stream", "channel", s.channel, "err", env.Error)
		}
	}
}

// replaceLatest deja en el buzón solo raw, sin bloquear al lector.
func (s *wsStream) replaceLatest(raw json.RawMessage) {
	for {
		select {
		case s.notes <- raw:
			return
		default:
		}
		select {
		case <-s.notes:
		default:
		}
	}
}

// recv devuelve el siguiente payload de la suscripción. Una vez cerrado el
// stream, devuelve un error que envuelve domain.ErrStreamClosed.
func (s *wsStream) recv(ctx context.Context) (json.RawMessage, error) {
	select {
	case raw := <-s.notes:
		return raw, nil
	case <-s.done:
		return nil, s.closeErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *wsStream) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	s.Close()
}

func (s *wsStream) closeErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err != nil {
		return fmt.Errorf("%s: %w: %v", s.channel, domain.ErrStreamClosed, s.err)
	}
	return fmt.Errorf("%s: %w", s.channel, domain.ErrStreamClosed)
}

// Close cierra la conexión. Es idempotente.
func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()

		err = s.conn.Close()

		s.client.mu.Lock()
		delete(s.client.streams, s)
		s.client.mu.Unlock()
	})
	return err
}
