package deribit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/skewmm/internal/domain"
)

const (
	ProdRESTBase    = "https://www.deribit.com/api/v2"
	ProdWSBase      = "wss://www.deribit.com/ws/api/v2"
	TestnetRESTBase = "https://test.deribit.com/api/v2"
	TestnetWSBase   = "wss://test.deribit.com/ws/api/v2"

	// Deribit da 20 req/s sostenidas a cuentas nuevas (credit pool).
	// Nos quedamos al 50%.
	defaultRatePerSec = 10
	defaultBurst      = 5

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Config configura el cliente. Si RESTBase o WSBase están vacíos se usan
// los de testnet.
type Config struct {
	RESTBase     string
	WSBase       string
	ClientID     string
	ClientSecret string
	RatePerSec   float64
}

// Client es el gateway de Deribit: HTTP con rate limiting y retries para
// las llamadas REST, WebSocket para los streams. Implementa ports.Exchange.
type Client struct {
	http    *http.Client
	rest    string
	ws      string
	limiter *rate.Limiter
	creds   credentials
	tokens  tokenCache

	mu      sync.Mutex
	streams map[*wsStream]struct{}
	closed  bool

	retryWait time.Duration
}

// NewClient crea un Client. Las credenciales pueden ir vacías si solo se
// usan llamadas públicas (p. ej. en modo paper).
func NewClient(cfg Config) *Client {
	if cfg.RESTBase == "" {
		cfg.RESTBase = TestnetRESTBase
	}
	if cfg.WSBase == "" {
		cfg.WSBase = TestnetWSBase
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		rest:      strings.TrimRight(cfg.RESTBase, "/"),
		ws:        cfg.WSBase,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), defaultBurst),
		creds:     credentials{id: cfg.ClientID, secret: cfg.ClientSecret},
		streams:   make(map[*wsStream]struct{}),
		retryWait: baseRetryWait,
	}
}

// HasCredentials indica si el cliente puede hacer llamadas privadas.
func (c *Client) HasCredentials() bool {
	return c.creds.valid()
}

// Close cierra todos los streams abiertos y las conexiones HTTP ociosas.
// Es idempotente.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	streams := make([]*wsStream, 0, len(c.streams))
	for s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()

	var errs []error
	for _, s := range streams {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.http.CloseIdleConnections()
	return errors.Join(errs...)
}

// callOpts describe cómo se envía un request.
type callOpts struct {
	auth bool
	// unsafe: el request no es idempotente (private/buy, private/sell). No se
	// reintenta tras errores de red o 5xx: el exchange pudo haberlo aceptado.
	unsafe bool
}

// public hace un GET a un método public/*.
func (c *Client) public(ctx context.Context, method string, params url.Values, out any) error {
	return c.call(ctx, method, params, callOpts{}, out)
}

// private hace un GET autenticado a un método private/*. Si el token fue
// rechazado, se descarta y se reintenta una vez con uno nuevo.
func (c *Client) private(ctx context.Context, method string, params url.Values, out any) error {
	return c.privateCall(ctx, method, params, callOpts{auth: true}, out)
}

// privateOnce es private para requests que crean órdenes: solo se reintentan
// los rechazos explícitos (429, token inválido).
func (c *Client) privateOnce(ctx context.Context, method string, params url.Values, out any) error {
	return c.privateCall(ctx, method, params, callOpts{auth: true, unsafe: true}, out)
}

func (c *Client) privateCall(ctx context.Context, method string, params url.Values, opts callOpts, out any) error {
	err := c.call(ctx, method, params, opts, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.isAuth() {
		slog.Debug("deribit: token rejected, re-authenticating", "method", method)
		c.tokens.invalidate()
		return c.call(ctx, method, params, opts, out)
	}
	return err
}

func (c *Client) call(ctx context.Context, method string, params url.Values, opts callOpts, out any) error {
	u := c.rest + "/" + method
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if opts.unsafe {
			// net/http reenvía GETs fallidos sobre conexiones reutilizadas
			req.Close = true
		}
		if opts.auth {
			tok, err := c.accessToken(ctx)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		return c.http.Do(req)
	}, opts.unsafe, out)
}

// doWithRetry ejecuta la función con backoff exponencial. Reintenta errores
// de red, 429 y 5xx; un error JSON-RPC se devuelve como *APIError sin reintentar.
// Con unsafe solo se reintenta el 429.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), unsafe bool, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if errors.Is(err, domain.ErrMissingCredentials) || ctx.Err() != nil {
				return err
			}
			if unsafe {
				return fmt.Errorf("request failed, not retried: %w", err)
			}
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("deribit: rate limited by API", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			if unsafe {
				return fmt.Errorf("server error %d, not retried", resp.StatusCode)
			}
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if readErr != nil {
			return fmt.Errorf("read response: %w", readErr)
		}

		var env rpcResponse
		if err := json.Unmarshal(body, &env); err != nil {
			if resp.StatusCode >= 400 {
				return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
			}
			return fmt.Errorf("decode response: %w", err)
		}
		if env.Error != nil {
			return env.Error
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		if out != nil {
			if err := json.Unmarshal(env.Result, out); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
