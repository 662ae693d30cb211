package deribit

// auth.go - autenticación client_credentials.
//
// public/auth devuelve un access token con expires_in. Se cachea y se
// renueva un poco antes de caducar; un rechazo explícito lo invalida.

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/alejandrodnm/skewmm/internal/domain"
)

// refreshMargin: renovar el token este tiempo antes de que caduque.
const refreshMargin = 30 * time.Second

type credentials struct {
	id     string
	secret string
}

func (c credentials) valid() bool {
	return c.id != "" && c.secret != ""
}

// params devuelve los parámetros de public/auth para el grant client_credentials.
func (c credentials) params() map[string]any {
	return map[string]any{
		"grant_type":    "client_credentials",
		"client_id":     c.id,
		"client_secret": c.secret,
	}
}

type tokenCache struct {
	mu      sync.Mutex
	token   string
	expires time.Time
}

func (t *tokenCache) invalidate() {
	t.mu.Lock()
	t.token = ""
	t.expires = time.Time{}
	t.mu.Unlock()
}

// accessToken devuelve un token válido, autenticando si hace falta.
// Las llamadas concurrentes esperan a una única autenticación.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if !c.creds.valid() {
		return "", fmt.Errorf("deribit: %w", domain.ErrMissingCredentials)
	}

	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()

	if c.tokens.token != "" && time.Now().Before(c.tokens.expires.Add(-refreshMargin)) {
		return c.tokens.token, nil
	}

	params := url.Values{}
	for k, v := range c.creds.params() {
		params.Set(k, fmt.Sprint(v))
	}

	var res authResult
	if err := c.public(ctx, "public/auth", params, &res); err != nil {
		return "", fmt.Errorf("deribit.accessToken: %w", err)
	}
	if res.AccessToken == "" {
		return "", fmt.Errorf("deribit.accessToken: empty access token")
	}

	c.tokens.token = res.AccessToken
	c.tokens.expires = time.Now().Add(time.Duration(res.ExpiresIn) * time.Second)
	return c.tokens.token, nil
}
