package deribit

import (
	"encoding/json"
	"fmt"
)

// DTOs raw de la API v2 de Deribit. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- JSON-RPC envelope ---

// rpcRequest es un request JSON-RPC 2.0 (solo se usa por WebSocket;
// por HTTP los params van en la query string).
type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int64          `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// rpcResponse cubre respuestas a requests y notificaciones (method != "").
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// APIError es el objeto error de JSON-RPC devuelto por Deribit.
type APIError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("deribit error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("deribit error %d: %s", e.Code, e.Message)
}

// Códigos que indican token inválido o caducado.
const (
	codeUnauthorized = 13009
	codeInvalidToken = 13004
)

func (e *APIError) isAuth() bool {
	return e.Code == codeUnauthorized || e.Code == codeInvalidToken
}

// --- auth ---

// authResult es el resultado de public/auth (grant_type=client_credentials).
type authResult struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"` // segundos
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

// --- account ---

// positionResult es el resultado de private/get_position.
// size va en USD para perpetuos inversos, con signo (negativo = short).
type positionResult struct {
	InstrumentName     string  `json:"instrument_name"`
	Size               float64 `json:"size"`
	Direction          string  `json:"direction"` // buy | sell | zero
	AveragePrice       float64 `json:"average_price"`
	FloatingProfitLoss float64 `json:"floating_profit_loss"`
}

// accountSummary es el resultado de private/get_account_summary.
type accountSummary struct {
	Currency string  `json:"currency"`
	Equity   float64 `json:"equity"`
	Balance  float64 `json:"balance"`
}

// --- orders ---

// orderResult es el resultado de private/buy y private/sell.
type orderResult struct {
	Order  orderInfo   `json:"order"`
	Trades []userTrade `json:"trades"`
}

type orderInfo struct {
	OrderID        string  `json:"order_id"`
	OrderState     string  `json:"order_state"` // open | filled | rejected | cancelled | untriggered
	Direction      string  `json:"direction"`
	Price          float64 `json:"price"`
	Amount         float64 `json:"amount"`
	Label          string  `json:"label"`
	PostOnly       bool    `json:"post_only"`
	InstrumentName string  `json:"instrument_name"`
}

// --- trades ---

// userTrade es un trade propio, tanto en REST como en user.trades.{instrument}.raw.
type userTrade struct {
	TradeID        string  `json:"trade_id"`
	OrderID        string  `json:"order_id"`
	Timestamp      int64   `json:"timestamp"` // ms
	InstrumentName string  `json:"instrument_name"`
	Direction      string  `json:"direction"`
	Price          float64 `json:"price"`
	Amount         float64 `json:"amount"`
	Fee            float64 `json:"fee"`
	FeeCurrency    string  `json:"fee_currency"`
	Liquidity      string  `json:"liquidity"` // M | T
	Label          string  `json:"label"`
}

// userTradesResult es el resultado de private/get_user_trades_by_instrument_and_time.
type userTradesResult struct {
	Trades  []userTrade `json:"trades"`
	HasMore bool        `json:"has_more"`
}

// --- streams ---

// subscriptionParams es el params de una notificación method=subscription.
type subscriptionParams struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// heartbeatParams es el params de una notificación method=heartbeat.
type heartbeatParams struct {
	Type string `json:"type"` // heartbeat | test_request
}

// quoteData es el payload del canal quote.{instrument}.
type quoteData struct {
	Timestamp      int64   `json:"timestamp"`
	InstrumentName string  `json:"instrument_name"`
	BestBidPrice   float64 `json:"best_bid_price"`
	BestBidAmount  float64 `json:"best_bid_amount"`
	BestAskPrice   float64 `json:"best_ask_price"`
	BestAskAmount  float64 `json:"best_ask_amount"`
}
