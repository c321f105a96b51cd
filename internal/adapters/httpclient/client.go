// Package httpclient es el cliente HTTP compartido por los adaptadores de
// clima, descubrimiento de mercados, y venue: rate limiting por token
// bucket y reintentos con backoff exponencial y jitter, generalizando el
// patrón de internal/adapters/polymarket/client.go del repositorio
// original a los tres colaboradores externos de §6.1.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es un cliente JSON sobre HTTP con límite de tasa y reintentos.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
	name    string
}

// New crea un Client apuntando a baseURL, limitado a ratePerSec peticiones
// por segundo con una ráfaga de 2x la tasa. name identifica el colaborador
// en los logs (p.ej. "weather", "market", "venue").
func New(name, baseURL string, ratePerSec float64, timeout time.Duration) *Client {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	burst := int(ratePerSec * 2)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		base:    baseURL,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		name:    name,
	}
}

// BaseURL devuelve la URL base configurada.
func (c *Client) BaseURL() string { return c.base }

// Get hace un GET con rate limiting y reintentos, decodificando el body JSON en out.
func (c *Client) Get(ctx context.Context, url string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// Post hace un POST JSON con rate limiting y reintentos.
func (c *Client) Post(ctx context.Context, url string, body, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limiter: %w", c.name, err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("%s: request failed after %d retries: %w", c.name, maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by upstream", "collaborator", c.name, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("%s: server error %d after %d retries", c.name, resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("%s: client error %d: %s", c.name, resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode response: %w", c.name, err)
		}
		return nil
	}
	return fmt.Errorf("%s: exhausted %d retries", c.name, maxRetries)
}

// sleep espera con backoff exponencial y jitter, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	jitter := time.Duration(rand.Int63n(int64(baseRetryWait)))
	select {
	case <-time.After(wait + jitter):
	case <-ctx.Done():
	}
}
